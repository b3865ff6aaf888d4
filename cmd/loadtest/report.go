package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

// Исходы вызова помимо HTTP-кода.
const (
	resultOK             = "ok"
	resultTransportError = "transport_error"
	resultBadResponse    = "bad_response"
)

// latencyMs: задержки в миллисекундах, перцентили по ближайшему рангу.
type latencyMs struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type callSummary struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Outcomes  map[string]int64 `json:"outcomes"`
	Latency   latencyMs        `json:"latency_ms"`
}

type report struct {
	StartedAt       time.Time              `json:"started_at"`
	DurationSeconds float64                `json:"duration_seconds"`
	TotalScenarios  int64                  `json:"total_scenarios"`
	FailedScenarios int64                  `json:"failed_scenarios"`
	ScenariosPerSec float64                `json:"scenarios_per_sec"`
	Calls           map[string]callSummary `json:"calls"`
}

type samples struct {
	failed   int64
	outcomes map[string]int64
	took     []time.Duration
}

// collector копит исходы и задержки по имени вызова; безопасен для воркеров.
type collector struct {
	mu    sync.Mutex
	calls map[string]*samples
}

func newCollector() *collector {
	return &collector{calls: make(map[string]*samples)}
}

func (c *collector) record(name string, took time.Duration, outcome string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.calls[name]
	if s == nil {
		s = &samples{outcomes: make(map[string]int64)}
		c.calls[name] = s
	}
	if !ok {
		s.failed++
	}
	s.outcomes[outcome]++
	s.took = append(s.took, took)
}

func (c *collector) buildReport(startedAt time.Time, elapsed time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Calls:           make(map[string]callSummary, len(c.calls)),
	}
	for name, s := range c.calls {
		total := int64(len(s.took))
		summary := callSummary{
			Calls:    total,
			Success:  total - s.failed,
			Failed:   s.failed,
			Outcomes: maps.Clone(s.outcomes),
			Latency:  summarize(s.took),
		}
		if total > 0 {
			summary.ErrorRate = float64(s.failed) / float64(total)
		}
		r.Calls[name] = summary
	}

	scenario := r.Calls[callScenario]
	r.TotalScenarios = scenario.Calls
	r.FailedScenarios = scenario.Failed
	if elapsed > 0 {
		r.ScenariosPerSec = float64(scenario.Calls) / elapsed.Seconds()
	}
	return r
}

func summarize(took []time.Duration) latencyMs {
	if len(took) == 0 {
		return latencyMs{}
	}
	sorted := slices.Clone(took)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	rank := func(p int) float64 {
		i := (p*len(sorted)+99)/100 - 1
		return ms(sorted[max(i, 0)])
	}
	return latencyMs{
		Min: ms(sorted[0]),
		Avg: ms(sum / time.Duration(len(sorted))),
		P50: rank(50),
		P95: rank(95),
		P99: rank(99),
		Max: ms(sorted[len(sorted)-1]),
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// printReport выводит сводку таблицей: сценарий первой строкой, вызовы по алфавиту.
func printReport(w io.Writer, r report, cfg config) {
	fmt.Fprintf(w, "mode=%s run=%s scenarios=%d failed=%d duration=%.2fs rate=%.2f/s\n\n",
		cfg.mode, runTarget(cfg), r.TotalScenarios, r.FailedScenarios, r.DurationSeconds, r.ScenariosPerSec)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "call\tcalls\tfailed\tp50 ms\tp95 ms\tp99 ms\tmax ms\t")

	names := slices.Sorted(maps.Keys(r.Calls))
	if i := slices.Index(names, callScenario); i > 0 {
		names = append([]string{callScenario}, slices.Delete(names, i, i+1)...)
	}
	for _, name := range names {
		s := r.Calls[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			name, s.Calls, s.Failed, s.Latency.P50, s.Latency.P95, s.Latency.P99, s.Latency.Max)
	}
	_ = tw.Flush()
}

// writeJSONReport пишет отчёт во временный файл рядом и переименовывает его.
func writeJSONReport(path string, r report) error {
	clean := filepath.Clean(path)
	switch {
	case clean == "." || clean == string(filepath.Separator):
		return errors.New("output path must point to a file")
	case clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(clean), ".loadtest-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), clean)
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}

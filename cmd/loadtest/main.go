// Command loadtest нагружает HTTP API заказов сценариями оформления и ведения заказа.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type loadMode string

const (
	// modePlace только оформляет заказы.
	modePlace loadMode = "place"
	// modePlaceTrack оформляет заказ и читает его по номеру, как страница отслеживания.
	modePlaceTrack loadMode = "place-track"
	// modeLifecycle проводит заказ до финального статуса через админку.
	modeLifecycle loadMode = "lifecycle"
)

// maxAdvanceSteps с запасом покрывает самый длинный путь статусов.
const maxAdvanceSteps = 5

type config struct {
	baseURL       string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	connections   int
	timeout       time.Duration
	mode          loadMode
	pickupRate    int
	adminPassword string
	customerTag   string
	outputPath    string
}

func parseConfig(args []string, output io.Writer) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "order service base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; with -duration only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "max HTTP connections to the service")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modePlace), "load mode: place | place-track | lifecycle")
	fs.IntVar(&cfg.pickupRate, "pickup-rate", 30, "share of pickup orders in percent (0..100)")
	fs.StringVar(&cfg.adminPassword, "admin-password", os.Getenv("ADMIN_PASSWORD"), "admin password for lifecycle mode")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "customer name prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.pickupRate < 0 || cfg.pickupRate > 100:
		return cfg, errors.New("pickup-rate must be between 0 and 100")
	case strings.TrimSpace(cfg.customerTag) == "":
		return cfg, errors.New("customer-tag is required")
	case cfg.mode == modeLifecycle && cfg.adminPassword == "":
		return cfg, errors.New("admin-password (or ADMIN_PASSWORD) is required for lifecycle mode")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modePlace, modePlaceTrack, modeLifecycle:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	col := newCollector()
	startedAt := time.Now()
	if err := run(cfg, col, startedAt); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	result := col.buildReport(startedAt, time.Since(startedAt))
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func run(cfg config, col *collector, startedAt time.Time) error {
	client, err := newAPIClient(cfg.baseURL, cfg.timeout, cfg.connections, col)
	if err != nil {
		return err
	}
	if cfg.mode == modeLifecycle {
		if err := client.login(cfg.adminPassword); err != nil {
			return fmt.Errorf("admin login: %w", err)
		}
	}

	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	jobs := make(chan int, cfg.concurrency*2)

	var wg sync.WaitGroup
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				_ = runScenario(client, cfg, id, runID)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()
	return nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := range cfg.total {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(client *apiClient, cfg config, index int, runID string) (err error) {
	start := time.Now()
	defer func() {
		result := resultOK
		if err != nil {
			result = "failed"
		}
		client.col.record(callScenario, time.Since(start), result, err == nil)
	}()

	placed, err := client.placeOrder(scenarioOrder(cfg, index, runID), fmt.Sprintf("lt-%s-%d", runID, index))
	if err != nil {
		return err
	}

	switch cfg.mode {
	case modePlaceTrack:
		var tracked trackedOrder
		if tracked, err = client.trackOrder(placed.OrderNumber); err != nil {
			return err
		}
		if tracked.ID != placed.ID {
			return fmt.Errorf("order %s tracked as %s", placed.OrderNumber, tracked.ID)
		}
	case modeLifecycle:
		if err = client.updateNotes(placed.ID, "load test note"); err != nil {
			return err
		}
		return advanceToTerminal(client, placed)
	}
	return nil
}

// advanceToTerminal двигает заказ, передавая ожидаемый статус, пока переход возможен.
func advanceToTerminal(client *apiClient, placed placedOrder) error {
	status := placed.Status
	for range maxAdvanceSteps {
		reply, err := client.advance(placed.ID, status)
		if err != nil {
			return err
		}
		if !reply.Advanced || !reply.Order.CanAdvance {
			return nil
		}
		status = reply.Order.Status
	}
	return fmt.Errorf("order %s did not reach a final status", placed.ID)
}

func scenarioOrder(cfg config, index int, runID string) placeOrderBody {
	body := placeOrderBody{
		Name:     fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index),
		Phone:    fmt.Sprintf("06%08d", index%100000000),
		Quantity: 1 + index%3,
	}
	if index%100 < cfg.pickupRate {
		body.DeliveryMode = "pickup"
		return body
	}
	body.DeliveryMode = "delivery"
	body.Address = fmt.Sprintf("%d rue de la Charge", 1+index%200)
	return body
}

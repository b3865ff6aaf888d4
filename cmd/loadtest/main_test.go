package main

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/lahmacun/internal/metrics"
	"github.com/vladislavdragonenkov/lahmacun/internal/realtime"
	"github.com/vladislavdragonenkov/lahmacun/internal/service/auth"
	"github.com/vladislavdragonenkov/lahmacun/internal/service/httpapi"
	"github.com/vladislavdragonenkov/lahmacun/internal/service/orders"
	"github.com/vladislavdragonenkov/lahmacun/internal/storage/memory"
)

const testAdminPassword = "load-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	hub := realtime.NewHub(nil)
	svc, err := orders.NewService(orders.Dependencies{
		Orders:      memory.NewOrderRepository(),
		Numbers:     memory.NewNumberAllocator(0),
		Timeline:    memory.NewTimelineRepository(),
		Outbox:      memory.NewOutboxRepository(),
		Idempotency: memory.NewPlacementClaimRepository(),
		Changes:     hub,
		Subscriber:  hub,
	})
	require.NoError(t, err)
	authSvc, err := auth.NewService(memory.NewSessionRepository(), auth.Config{Password: testAdminPassword})
	require.NoError(t, err)

	server := httptest.NewServer(httpapi.NewRouter(httpapi.Deps{
		Orders:  svc,
		Auth:    authSvc,
		Metrics: metrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry()),
	}))
	t.Cleanup(server.Close)
	return server
}

func TestParseMode(t *testing.T) {
	for _, mode := range []loadMode{modePlace, modePlaceTrack, modeLifecycle} {
		got, err := parseMode(" " + string(mode) + " ")
		require.NoError(t, err)
		require.Equal(t, mode, got)
	}
	_, err := parseMode("create-pay")
	require.ErrorContains(t, err, "unsupported mode")
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{"-total", "10", "-mode", "place-track", "-pickup-rate", "50"}, io.Discard)
	require.NoError(t, err)
	require.True(t, cfg.totalSet)
	require.Equal(t, 10, cfg.total)
	require.Equal(t, modePlaceTrack, cfg.mode)
	require.Equal(t, 5*time.Second, cfg.timeout)

	tests := map[string][]string{
		"pickup-rate must be between 0 and 100": {"-pickup-rate", "101"},
		"concurrency must be > 0":               {"-concurrency", "0"},
		"total must be > 0":                     {"-total", "0"},
		"admin-password":                        {"-mode", "lifecycle", "-admin-password", ""},
		"unsupported mode":                      {"-mode", "pay"},
	}
	for want, args := range tests {
		_, err := parseConfig(args, io.Discard)
		require.ErrorContains(t, err, want, args)
	}
}

func TestRun_LifecycleAgainstService(t *testing.T) {
	server := newTestServer(t)

	cfg, err := parseConfig([]string{
		"-base-url", server.URL,
		"-total", "12",
		"-concurrency", "4",
		"-mode", "lifecycle",
		"-admin-password", testAdminPassword,
	}, io.Discard)
	require.NoError(t, err)

	col := newCollector()
	startedAt := time.Now()
	require.NoError(t, run(cfg, col, startedAt))

	result := col.buildReport(startedAt, time.Since(startedAt))
	require.EqualValues(t, 12, result.TotalScenarios)
	require.Zero(t, result.FailedScenarios)
	require.EqualValues(t, 12, result.Calls[callPlaceOrder].Success)
	require.EqualValues(t, 1, result.Calls[callAdminLogin].Success)
	// 30% самовывоза: 2 перехода вместо 3
	require.Positive(t, result.Calls[callAdvance].Success)
}

func TestRun_PlaceTrack(t *testing.T) {
	server := newTestServer(t)

	cfg, err := parseConfig([]string{"-base-url", server.URL, "-total", "5", "-mode", "place-track"}, io.Discard)
	require.NoError(t, err)

	col := newCollector()
	require.NoError(t, run(cfg, col, time.Now()))

	result := col.buildReport(time.Now(), time.Second)
	require.Zero(t, result.FailedScenarios)
	require.EqualValues(t, 5, result.Calls[callTrackOrder].Success)
	require.EqualValues(t, 5, result.Calls[callTrackOrder].Outcomes["200"])
}

func TestRun_LoginFailure(t *testing.T) {
	server := newTestServer(t)

	cfg, err := parseConfig([]string{"-base-url", server.URL, "-mode", "lifecycle", "-admin-password", "wrong"}, io.Discard)
	require.NoError(t, err)
	require.ErrorContains(t, run(cfg, newCollector(), time.Now()), "admin login")
}

func TestScenarioOrder_PickupRate(t *testing.T) {
	cfg := config{pickupRate: 30, customerTag: "load"}

	pickups := 0
	for i := range 100 {
		body := scenarioOrder(cfg, i, "run")
		if body.DeliveryMode == "pickup" {
			pickups++
			require.Empty(t, body.Address)
		} else {
			require.NotEmpty(t, body.Address)
		}
	}
	require.Equal(t, 30, pickups)
}

func TestSummarize_NearestRank(t *testing.T) {
	took := []time.Duration{4 * time.Millisecond, time.Millisecond, 3 * time.Millisecond, 2 * time.Millisecond, 5 * time.Millisecond}
	require.Equal(t, latencyMs{Min: 1, Avg: 3, P50: 3, P95: 5, P99: 5, Max: 5}, summarize(took))
	require.Equal(t, latencyMs{}, summarize(nil))
}

func TestCollector_BuildReport(t *testing.T) {
	col := newCollector()
	col.record(callScenario, 10*time.Millisecond, resultOK, true)
	col.record(callScenario, 30*time.Millisecond, "failed", false)
	col.record(callPlaceOrder, 5*time.Millisecond, "201", true)
	col.record(callPlaceOrder, time.Millisecond, resultTransportError, false)

	result := col.buildReport(time.Now(), 2*time.Second)
	require.EqualValues(t, 2, result.TotalScenarios)
	require.EqualValues(t, 1, result.FailedScenarios)
	require.InDelta(t, 1.0, result.ScenariosPerSec, 0.001)

	place := result.Calls[callPlaceOrder]
	require.EqualValues(t, 1, place.Success)
	require.InDelta(t, 0.5, place.ErrorRate, 0.001)
	require.Equal(t, map[string]int64{"201": 1, resultTransportError: 1}, place.Outcomes)

	var out strings.Builder
	printReport(&out, result, config{mode: modePlace, total: 2})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Contains(t, lines[0], "run=count:2")
	require.Contains(t, lines[3], callScenario)
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.ErrorContains(t, writeJSONReport("../escape.json", report{}), "inside current directory")
	require.Error(t, writeJSONReport(".", report{}))

	require.NoError(t, writeJSONReport("report.json", report{TotalScenarios: 3, Calls: map[string]callSummary{}}))
	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)

	var decoded report
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.EqualValues(t, 3, decoded.TotalScenarios)
}

func TestRunTarget(t *testing.T) {
	require.Equal(t, "count:5", runTarget(config{total: 5}))
	require.True(t, strings.HasPrefix(runTarget(config{duration: time.Minute}), "duration:1m"))
	require.Equal(t, "duration:1m0s,max-total:7", runTarget(config{duration: time.Minute, total: 7, totalSet: true}))
}

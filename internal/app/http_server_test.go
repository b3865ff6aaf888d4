package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/health"
)

func findFreePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func waitForHTTP(t *testing.T, url string) *http.Response {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			return resp
		}
		if time.Now().After(deadline) {
			t.Fatalf("server at %s did not start: %v", url, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestStartMetricsServer_Endpoints(t *testing.T) {
	port := findFreePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := health.NewHandler()
	healthHandler.Register("storage", true, func(context.Context) error { return nil })
	healthHandler.Register("nats", false, func(context.Context) error { return errors.New("down") })
	startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), log.WithField("test", "http"), healthHandler)

	resp := waitForHTTP(t, base+"/metrics")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		t.Fatalf("unexpected /metrics response: %d", resp.StatusCode)
	}

	for _, path := range []string{"/healthz", "/livez"} {
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || string(body) != "ok" {
			t.Fatalf("unexpected %s response: %d %q", path, resp.StatusCode, body)
		}
	}

	resp, err := http.Get(base + "/readyz")
	if err != nil {
		t.Fatalf("get /readyz: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("degraded service must be ready, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"status":"degraded"`) {
		t.Fatalf("unexpected /readyz body: %s", body)
	}
}

func TestStartMetricsServer_Shutdown(t *testing.T) {
	port := findFreePort(t)
	url := fmt.Sprintf("http://127.0.0.1:%d/livez", port)

	ctx, cancel := context.WithCancel(context.Background())
	srv := startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), log.WithField("test", "http-shutdown"), health.NewHandler())
	if srv == nil {
		t.Fatal("startMetricsServer should not return nil")
	}

	resp := waitForHTTP(t, url)
	resp.Body.Close()

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err != nil {
			return
		}
		resp.Body.Close()
		if time.Now().After(deadline) {
			t.Fatal("server should be stopped after context cancellation")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestShutdownHTTP_Nil(t *testing.T) {
	shutdownHTTP(nil, log.WithField("test", "shutdown"))
}

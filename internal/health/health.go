package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/lahmacun/internal/version"
)

const defaultCheckTimeout = 2 * time.Second

// Status: состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded: некритичный компонент недоступен, заказы принимаются.
	StatusDegraded Status = "degraded"
)

// CheckFunc проверяет зависимость; nil означает, что она доступна.
type CheckFunc func(ctx context.Context) error

// Check: результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Critical   bool   `json:"critical"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response: тело ответа /readyz.
type Response struct {
	Status        Status        `json:"status"`
	Timestamp     time.Time     `json:"timestamp"`
	Checks        []Check       `json:"checks,omitempty"`
	Build         version.Build `json:"build"`
	UptimeSeconds int64         `json:"uptime_seconds"`
}

type registration struct {
	fn       CheckFunc
	critical bool
}

// Handler собирает проверки зависимостей сервиса.
type Handler struct {
	mu        sync.RWMutex
	checks    map[string]registration
	timeout   time.Duration
	startedAt time.Time
	now       func() time.Time
}

func NewHandler() *Handler {
	return &Handler{
		checks:    make(map[string]registration),
		timeout:   defaultCheckTimeout,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// SetTimeout ограничивает время каждой проверки.
func (h *Handler) SetTimeout(d time.Duration) {
	if d > 0 {
		h.timeout = d
	}
}

// Register добавляет проверку. Отказ критичной проверки переводит сервис в unhealthy,
// некритичной: в degraded.
func (h *Handler) Register(name string, critical bool, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registration{fn: fn, critical: critical}
}

// Run выполняет все проверки параллельно.
func (h *Handler) Run(ctx context.Context) Response {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	regs := make(map[string]registration, len(h.checks))
	for name, reg := range h.checks {
		names = append(names, name)
		regs[name] = reg
	}
	h.mu.RUnlock()
	sort.Strings(names)

	checks := make([]Check, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checks[i] = h.runOne(ctx, name, regs[name])
		}()
	}
	wg.Wait()

	overall := StatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == StatusUnhealthy && c.Critical:
			overall = StatusUnhealthy
		case c.Status == StatusUnhealthy && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return Response{
		Status:        overall,
		Timestamp:     h.now().UTC(),
		Checks:        checks,
		Build:         version.Current(),
		UptimeSeconds: int64(h.now().Sub(h.startedAt).Seconds()),
	}
}

func (h *Handler) runOne(ctx context.Context, name string, reg registration) Check {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := reg.fn(ctx)
	check := Check{
		Name:       name,
		Status:     StatusHealthy,
		Critical:   reg.critical,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}

// Readiness: GET /readyz. 503 только при отказе критичной зависимости.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := h.Run(r.Context())
	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// Liveness: GET /healthz, процесс жив.
func Liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

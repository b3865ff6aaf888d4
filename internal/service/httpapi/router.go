// Package httpapi публикует сценарии заказов как JSON API и SSE-потоки.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/metrics"
	"github.com/vladislavdragonenkov/lahmacun/internal/service/auth"
	"github.com/vladislavdragonenkov/lahmacun/internal/service/orders"
)

const (
	// MaxBodyBytes ограничивает тело JSON-запроса.
	MaxBodyBytes = 1 << 20

	defaultKeepAlive = 30 * time.Second
)

// Deps: зависимости роутера.
type Deps struct {
	Orders  *orders.Service
	Auth    *auth.Service
	Metrics *metrics.HTTPMetrics
	Logger  *log.Entry
	// SecureCookie выставляет флаг Secure у cookie сессии.
	SecureCookie bool
	// KeepAlive: период комментариев-пингов в SSE-потоках.
	KeepAlive time.Duration
	// StreamsDone закрывается при остановке сервера и завершает SSE-потоки.
	StreamsDone <-chan struct{}
}

// Handler обслуживает HTTP API.
type Handler struct {
	orders       *orders.Service
	auth         *auth.Service
	metrics      *metrics.HTTPMetrics
	logger       *log.Entry
	secureCookie bool
	keepAlive    time.Duration
	streamsDone  <-chan struct{}
}

func NewHandler(deps Deps) *Handler {
	h := &Handler{
		orders:       deps.Orders,
		auth:         deps.Auth,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		secureCookie: deps.SecureCookie,
		keepAlive:    deps.KeepAlive,
		streamsDone:  deps.StreamsDone,
	}
	if h.logger == nil {
		h.logger = log.WithField("component", "http-api")
	}
	if h.keepAlive <= 0 {
		h.keepAlive = defaultKeepAlive
	}
	return h
}

// NewRouter собирает chi-роутер со всеми маршрутами.
func NewRouter(deps Deps) http.Handler {
	h := NewHandler(deps)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(h.recoverer)
	r.Use(h.requestLogger)

	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes вешает маршруты на переданный роутер.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", h.PlaceOrder)
		r.Get("/by-number/{orderNumber}", h.GetOrderByNumber)
		r.Get("/{id}", h.GetOrder)
		r.Patch("/{id}/notes", h.UpdateNotes)
		r.Get("/{id}/events", h.OrderEvents)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)

			r.Get("/session", h.Session)
			r.Get("/stats", h.Stats)
			r.Get("/events", h.AdminEvents)
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListOrders)
				r.Get("/{id}", h.GetOrder)
				r.Get("/{id}/timeline", h.Timeline)
				r.Post("/{id}/advance", h.AdvanceStatus)
				r.Patch("/{id}/notes", h.UpdateNotes)
			})
		})
	})
}

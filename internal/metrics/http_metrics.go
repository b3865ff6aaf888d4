package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics содержит метрики HTTP API.
type HTTPMetrics struct {
	duration   *prometheus.HistogramVec
	sseClients prometheus.Gauge
}

func NewHTTPMetrics() *HTTPMetrics {
	return NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewHTTPMetricsWithRegisterer(registerer prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "lahmacun_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"route", "method", "status"}),
		sseClients: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "lahmacun_sse_clients",
			Help: "Number of connected server-sent events clients",
		}),
	}
}

// ObserveRequest записывает длительность запроса; route: шаблон маршрута chi.
func (m *HTTPMetrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.duration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(duration.Seconds())
}

func (m *HTTPMetrics) SSEClientConnected() {
	if m == nil {
		return
	}
	m.sseClients.Inc()
}

func (m *HTTPMetrics) SSEClientDisconnected() {
	if m == nil {
		return
	}
	m.sseClients.Dec()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики жизненного цикла заказов.
// Методы безопасно вызывать на nil.
type OrderMetrics struct {
	ordersPlaced      *prometheus.CounterVec
	statusTransitions *prometheus.CounterVec
	advanceConflicts  prometheus.Counter
	advanceNoops      prometheus.Counter
	notesUpdates      *prometheus.CounterVec
	timelineEvents    prometheus.Counter
	outboxEnqueued    *prometheus.CounterVec
	changeFeedErrors  prometheus.Counter
}

// NewOrderMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		ordersPlaced: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "lahmacun_orders_placed_total",
			Help: "Total number of orders placed, by fulfillment mode",
		}, []string{"mode"}),
		statusTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "lahmacun_order_status_transitions_total",
			Help: "Total number of committed status transitions",
		}, []string{"from", "to"}),
		advanceConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "lahmacun_order_advance_conflicts_total",
			Help: "Advance requests rejected because the stored status changed",
		}),
		advanceNoops: registerCounter(registerer, prometheus.CounterOpts{
			Name: "lahmacun_order_advance_noops_total",
			Help: "Advance requests on terminal or unknown statuses",
		}),
		notesUpdates: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "lahmacun_order_notes_updates_total",
			Help: "Notes update attempts, by result",
		}, []string{"result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "lahmacun_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEnqueued: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "lahmacun_outbox_enqueued_total",
			Help: "Outbox messages enqueued, by event type and result",
		}, []string{"event_type", "result"}),
		changeFeedErrors: registerCounter(registerer, prometheus.CounterOpts{
			Name: "lahmacun_change_feed_errors_total",
			Help: "Failures to publish an order change to subscribers",
		}),
	}
}

func (m *OrderMetrics) RecordOrderPlaced(mode string) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(mode).Inc()
}

// RecordStatusTransition учитывает успешный CAS from -> to.
func (m *OrderMetrics) RecordStatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(from, to).Inc()
}

func (m *OrderMetrics) RecordAdvanceConflict() {
	if m == nil {
		return
	}
	m.advanceConflicts.Inc()
}

func (m *OrderMetrics) RecordAdvanceNoop() {
	if m == nil {
		return
	}
	m.advanceNoops.Inc()
}

// RecordNotesUpdate принимает result: updated, locked, invalid, error.
func (m *OrderMetrics) RecordNotesUpdate(result string) {
	if m == nil {
		return
	}
	m.notesUpdates.WithLabelValues(result).Inc()
}

func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

func (m *OrderMetrics) RecordOutboxEnqueue(eventType string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.outboxEnqueued.WithLabelValues(eventType, result).Inc()
}

func (m *OrderMetrics) RecordChangeFeedError() {
	if m == nil {
		return
	}
	m.changeFeedErrors.Inc()
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotificationMetrics считает отправленные письма.
type NotificationMetrics struct {
	sent *prometheus.CounterVec
}

func NewNotificationMetrics() *NotificationMetrics {
	return NewNotificationMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewNotificationMetricsWithRegisterer(registerer prometheus.Registerer) *NotificationMetrics {
	return &NotificationMetrics{
		sent: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "lahmacun_notifications_sent_total",
			Help: "Notification emails, by template and result",
		}, []string{"template", "result"}),
	}
}

// RecordSent учитывает попытку отправки письма по шаблону.
func (m *NotificationMetrics) RecordSent(template string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.sent.WithLabelValues(template, result).Inc()
}

package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 200 * time.Millisecond
)

var (
	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lahmacun_outbox_publish_attempts_total",
		Help: "Outbox publish attempts grouped by result.",
	}, []string{"event_type", "result"})
	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lahmacun_outbox_pending_records",
		Help: "Pending records in the notification outbox.",
	})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lahmacun_outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest pending outbox record.",
	})
	deadRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lahmacun_outbox_dead_records",
		Help: "Notifications that exhausted their delivery attempts.",
	})
)

// Options задаёт параметры Worker.
type Options struct {
	Logger         *log.Entry
	DLQPublisher   domain.OutboxPublisher
	OnDead         func(domain.OutboxMessage)
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*Options)

func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithDLQPublisher получает сообщения, для которых исчерпаны попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(o *Options) { o.DLQPublisher = publisher }
}

// WithOnDead вызывается после перевода сообщения в dead.
func WithOnDead(fn func(domain.OutboxMessage)) Option {
	return func(o *Options) { o.OnDead = fn }
}

func WithPollInterval(interval time.Duration) Option {
	return func(o *Options) { o.PollInterval = interval }
}

func WithBatchSize(size int) Option {
	return func(o *Options) { o.BatchSize = size }
}

func WithMaxAttempts(attempts int) Option {
	return func(o *Options) { o.MaxAttempts = attempts }
}

// WithRetryBaseDelay задаёт первую паузу; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(o *Options) { o.RetryBaseDelay = delay }
}

// Worker доставляет отложенные уведомления о заказах.
// Ошибка доставки не влияет на сам заказ: сообщение переводится в dead.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	opts      Options
	logger    *log.Entry
}

// NewWorker создаёт воркер; некорректные опции заменяются значениями по умолчанию.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := Options{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "outbox-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Worker{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		logger:    opts.Logger,
	}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce обрабатывает один батч и возвращает число доставленных сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	w.refreshBacklogMetrics(ctx)
	defer w.refreshBacklogMetrics(ctx)

	batch, err := w.repo.PullPending(ctx, w.opts.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0
	}

	sent := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		if w.handle(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (w *Worker) handle(ctx context.Context, msg domain.OutboxMessage) bool {
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"event_type":   msg.EventType,
		"aggregate_id": msg.AggregateID,
	})

	attempts, publishErr := w.publishWithRetry(ctx, msg)
	if publishErr == nil {
		if err := w.repo.MarkDelivered(ctx, msg.ID, attempts); err != nil {
			entry.WithError(err).Warn("failed to mark notification as delivered")
		}
		return true
	}
	if ctx.Err() != nil {
		// сообщение останется pending и будет взято при следующем запуске
		return false
	}

	entry.WithError(publishErr).Error("outbox publish failed after retries")
	publishAttempts.WithLabelValues(msg.EventType, "failed").Inc()

	if err := w.publishToDLQ(ctx, msg, publishErr); err != nil {
		entry.WithError(err).Warn("failed to publish to DLQ")
		publishAttempts.WithLabelValues(msg.EventType, "dlq_failed").Inc()
	}
	if err := w.repo.MarkDead(ctx, msg.ID, attempts, publishErr.Error()); err != nil {
		entry.WithError(err).Warn("failed to mark notification as dead")
	}
	if w.opts.OnDead != nil {
		w.opts.OnDead(msg)
	}
	return false
}

// publishWithRetry возвращает число сделанных попыток вместе с итоговой ошибкой.
func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		lastErr = w.publisher.Publish(ctx, msg)
		if lastErr == nil {
			publishAttempts.WithLabelValues(msg.EventType, "sent").Inc()
			return attempt, nil
		}
		publishAttempts.WithLabelValues(msg.EventType, "retry_error").Inc()

		if attempt == w.opts.MaxAttempts {
			break
		}
		if delay := w.retryBackoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return w.opts.MaxAttempts, fmt.Errorf("publish failed after %d attempts: %w", w.opts.MaxAttempts, lastErr)
}

func (w *Worker) refreshBacklogMetrics(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Debug("failed to collect outbox backlog stats")
		return
	}

	pendingRecords.Set(float64(stats.PendingCount))
	deadRecords.Set(float64(stats.DeadCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		oldestPendingAge.Set(0)
		return
	}
	oldestPendingAge.Set(max(time.Since(stats.OldestPendingAt).Seconds(), 0))
}

func (w *Worker) retryBackoff(attempt int) time.Duration {
	delay := w.opts.RetryBaseDelay
	if delay <= 0 {
		return 0
	}
	const ceiling = time.Minute
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	return delay
}

func (w *Worker) publishToDLQ(ctx context.Context, msg domain.OutboxMessage, publishErr error) error {
	if w.opts.DLQPublisher == nil {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"outbox_id":        msg.ID,
		"aggregate_type":   msg.AggregateType,
		"aggregate_id":     msg.AggregateID,
		"event_type":       msg.EventType,
		"payload":          json.RawMessage(msg.Payload),
		"publish_error":    publishErr.Error(),
		"dlq_published_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dead := msg
	dead.Payload = payload
	if err := w.opts.DLQPublisher.Publish(ctx, dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

package retention

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	defaultInterval  = time.Minute
	defaultBatchSize = 500
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lahmacun_retention_runs_total",
		Help: "Retention sweeps grouped by store and result.",
	}, []string{"store", "result"})
	sweepDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lahmacun_retention_deleted_total",
		Help: "Expired records removed by retention sweeps.",
	}, []string{"store"})
)

// ExpiredDeleter удаляет не больше limit записей, истёкших к моменту before.
// Ему соответствуют хранилища idempotency-ключей и сессий администратора.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Options задаёт параметры Sweeper.
type Options struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

// Option настраивает Sweeper.
type Option func(*Options)

func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithInterval задаёт период для Run.
func WithInterval(interval time.Duration) Option {
	return func(o *Options) { o.Interval = interval }
}

// WithBatchSize задаёт размер одного DELETE.
func WithBatchSize(size int) Option {
	return func(o *Options) { o.BatchSize = size }
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

// Sweeper периодически вычищает просроченные записи одного хранилища.
type Sweeper struct {
	name   string
	store  ExpiredDeleter
	opts   Options
	logger *log.Entry
}

// NewSweeper создаёт Sweeper; name попадает в метки метрик и логи.
func NewSweeper(name string, store ExpiredDeleter, options ...Option) *Sweeper {
	opts := Options{
		Interval:  defaultInterval,
		BatchSize: defaultBatchSize,
		Now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Sweeper{
		name:   name,
		store:  store,
		opts:   opts,
		logger: opts.Logger.WithFields(log.Fields{"component": "retention-sweeper", "store": name}),
	}
}

// Name возвращает имя обслуживаемого хранилища.
func (s *Sweeper) Name() string {
	return s.name
}

// Run чистит хранилище сразу и затем раз в Interval, пока ctx жив.
func (s *Sweeper) Run(ctx context.Context) {
	if s.store == nil {
		s.logger.Warn("retention sweeper is disabled: store is nil")
		return
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce выполняет один проход и пишет результат в лог и метрики.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	deleted, err := s.DeleteExpired(ctx, s.opts.Now())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return deleted
		}
		sweepRuns.WithLabelValues(s.name, "error").Inc()
		s.logger.WithError(err).Warn("retention sweep failed")
		return deleted
	}

	sweepRuns.WithLabelValues(s.name, "ok").Inc()
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Info("retention sweep completed")
	}
	return deleted
}

// DeleteExpired удаляет все записи с истёкшим сроком порциями BatchSize.
func (s *Sweeper) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = s.opts.Now()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := s.store.DeleteExpired(ctx, before, s.opts.BatchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted > 0 {
			sweepDeleted.WithLabelValues(s.name).Add(float64(deleted))
		}
		if deleted < s.opts.BatchSize {
			return total, nil
		}
	}
}

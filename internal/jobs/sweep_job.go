package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Sweeper: единица работы, которую выполняет SweepJob.
type Sweeper interface {
	Name() string
	SweepOnce(ctx context.Context) int
}

// SweepJob запускает Sweeper по cron-расписанию.
// Пока предыдущий запуск не закончился, следующий пропускается.
type SweepJob struct {
	schedule string
	sweeper  Sweeper
	cron     *cron.Cron
	logger   *log.Entry

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSweepJob создаёт задачу; schedule в формате "sec min hour dom month dow".
func NewSweepJob(schedule string, sweeper Sweeper, logger *log.Entry) *SweepJob {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	entry := logger.WithFields(log.Fields{"component": "sweep_job", "store": sweeper.Name()})

	return &SweepJob{
		schedule: schedule,
		sweeper:  sweeper,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger: entry,
	}
}

// ValidateSchedule проверяет выражение без запуска задачи.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// Start регистрирует задачу и запускает планировщик.
func (j *SweepJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancel != nil {
		return fmt.Errorf("sweep job %s already started", j.sweeper.Name())
	}
	j.ctx, j.cancel = context.WithCancel(ctx)

	if _, err := j.cron.AddFunc(j.schedule, j.run); err != nil {
		j.cancel()
		j.cancel = nil
		return fmt.Errorf("schedule sweep job: %w", err)
	}

	j.cron.Start()
	j.logger.WithField("schedule", j.schedule).Info("sweep job started")
	return nil
}

// Stop останавливает планировщик и ждёт текущий запуск.
func (j *SweepJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel == nil {
		return
	}

	<-j.cron.Stop().Done()
	cancel()
	j.logger.Info("sweep job stopped")
}

func (j *SweepJob) run() {
	j.mu.Lock()
	ctx := j.ctx
	j.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}
	j.sweeper.SweepOnce(ctx)
}

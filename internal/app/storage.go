package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
	"github.com/vladislavdragonenkov/lahmacun/internal/health"
	"github.com/vladislavdragonenkov/lahmacun/internal/storage/memory"
	"github.com/vladislavdragonenkov/lahmacun/internal/storage/postgres"
)

// runtimeDependencies: хранилища выбранного драйвера.
type runtimeDependencies struct {
	orders      domain.OrderRepository
	numbers     domain.NumberAllocator
	timeline    domain.TimelineRepository
	outbox      domain.OutboxRepository
	idempotency domain.PlacementClaimRepository
	sessions    domain.SessionRepository

	storageCheck health.CheckFunc
	closeFn      func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		logger.Info("using in-memory storage, data is lost on restart")
		return runtimeDependencies{
			orders:       memory.NewOrderRepository(),
			numbers:      memory.NewNumberAllocator(0),
			timeline:     memory.NewTimelineRepository(),
			outbox:       memory.NewOutboxRepository(),
			idempotency:  memory.NewPlacementClaimRepository(),
			sessions:     memory.NewSessionRepository(),
			storageCheck: func(context.Context) error { return nil },
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return runtimeDependencies{}, fmt.Errorf("postgres storage requires %s", EnvPostgresDSN)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns))
		if err != nil {
			return runtimeDependencies{}, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres schema is up to date")
		}
		return runtimeDependencies{
			orders:       postgres.NewOrderRepository(store),
			numbers:      postgres.NewNumberAllocator(store),
			timeline:     postgres.NewTimelineRepository(store),
			outbox:       postgres.NewOutboxRepository(store),
			idempotency:  postgres.NewPlacementClaimRepository(store),
			sessions:     postgres.NewSessionRepository(store),
			storageCheck: store.Ping,
			closeFn:      store.Close,
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func (d runtimeDependencies) close(logger *log.Entry) {
	if d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

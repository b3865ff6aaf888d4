package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lahmacun/internal/domain"
	"github.com/vladislavdragonenkov/lahmacun/internal/health"
	"github.com/vladislavdragonenkov/lahmacun/internal/jobs"
	natsbridge "github.com/vladislavdragonenkov/lahmacun/internal/messaging/nats"
	"github.com/vladislavdragonenkov/lahmacun/internal/metrics"
	"github.com/vladislavdragonenkov/lahmacun/internal/realtime"
	"github.com/vladislavdragonenkov/lahmacun/internal/service/auth"
	"github.com/vladislavdragonenkov/lahmacun/internal/service/httpapi"
	"github.com/vladislavdragonenkov/lahmacun/internal/service/orders"
	"github.com/vladislavdragonenkov/lahmacun/internal/service/outbox"
	"github.com/vladislavdragonenkov/lahmacun/internal/service/retention"
	"github.com/vladislavdragonenkov/lahmacun/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает HTTP API, сервер метрик и фоновые воркеры и ждёт отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := log.WithField("component", "app")
	logger.WithField("build", version.Current().String()).Info("starting lahmacun order service")
	loc := LoadLocation(cfg.TimeZone, logger)

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	healthHandler := health.NewHandler()
	healthHandler.Register("storage", true, deps.storageCheck)

	hub := realtime.NewHub(log.WithField("component", "realtime-hub"))
	changes, closeBridge := initChangeFeed(ctx, cfg, hub, healthHandler, logger)
	defer closeBridge()

	delivery, err := initOutboxDelivery(cfg, loc, logger)
	if err != nil {
		return err
	}
	defer delivery.close(logger)

	workersCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		stopWorkers()
		workers.Wait()
	}()
	goWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workersCtx)
		}()
	}

	worker := outbox.NewWorker(deps.outbox, delivery.publisher,
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(delivery.dlq),
		outbox.WithOnDead(delivery.onDead),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	goWorker(worker.Run)

	idempotencySweeper := retention.NewSweeper("placement_claims", deps.idempotency,
		retention.WithInterval(cfg.IdempotencyCleanupInterval),
		retention.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	goWorker(idempotencySweeper.Run)

	sessionJob := jobs.NewSweepJob(cfg.SessionPurgeSchedule,
		retention.NewSweeper("admin_sessions", deps.sessions), logger)
	if err := sessionJob.Start(workersCtx); err != nil {
		return err
	}
	defer sessionJob.Stop()

	orderSvc, err := orders.NewService(orders.Dependencies{
		Orders:         deps.orders,
		Numbers:        deps.numbers,
		Timeline:       deps.timeline,
		Outbox:         deps.outbox,
		Idempotency:    deps.idempotency,
		Changes:        changes,
		Subscriber:     hub,
		Metrics:        metrics.NewOrderMetrics(),
		Logger:         log.WithField("component", "order-service"),
		IdempotencyTTL: cfg.IdempotencyTTL,
		Location:       loc,
	})
	if err != nil {
		return err
	}

	authSvc, err := auth.NewService(deps.sessions, auth.Config{
		Password:     cfg.AdminPassword,
		PasswordHash: cfg.AdminPasswordHash,
		SessionTTL:   cfg.SessionTTL,
	}, auth.WithLogger(log.WithField("component", "admin-auth")))
	if err != nil {
		return err
	}

	streamsDone := make(chan struct{})
	apiSrv := &http.Server{
		Handler: httpapi.NewRouter(httpapi.Deps{
			Orders:       orderSvc,
			Auth:         authSvc,
			Metrics:      metrics.NewHTTPMetrics(),
			Logger:       log.WithField("component", "http-api"),
			SecureCookie: cfg.SessionCookieSecure,
			StreamsDone:  streamsDone,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	apiSrv.RegisterOnShutdown(func() { close(streamsDone) })

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return err
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", lis.Addr())
		errCh <- apiSrv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// initChangeFeed подключает NATS, если он настроен. Без NATS изменения
// расходятся только по локальному хабу.
func initChangeFeed(ctx context.Context, cfg Config, hub *realtime.Hub, healthHandler *health.Handler, logger *log.Entry) (domain.ChangePublisher, func()) {
	if cfg.NATSURL == "" {
		return hub, func() {}
	}

	conn, err := natsbridge.Dial(cfg.NATSURL, "lahmacun-order-service")
	if err != nil {
		logger.WithError(err).Warn("nats is unavailable, change feed stays local")
		return hub, func() {}
	}
	bridge := natsbridge.NewBridge(conn, hub, log.WithField("component", "nats-bridge"))
	if err := bridge.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start nats bridge, change feed stays local")
		bridge.Close()
		return hub, func() {}
	}

	healthHandler.Register("nats", false, func(context.Context) error {
		if !bridge.Healthy() {
			return errors.New("nats connection is down")
		}
		return nil
	})
	return bridge, bridge.Close
}

// startMetricsServer запускает /metrics и health-пробы на отдельном адресе.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.Liveness)
	mux.HandleFunc("/livez", health.Liveness)
	mux.HandleFunc("/readyz", healthHandler.Readiness)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP останавливает сервер, дожидаясь активных запросов не дольше shutdownTimeout.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
		_ = srv.Close()
	}
}

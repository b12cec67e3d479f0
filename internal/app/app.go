package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
	healthcheck "github.com/PawanKumar-Dev/dd-sub002/internal/health"
	"github.com/PawanKumar-Dev/dd-sub002/internal/messaging/kafka"
	"github.com/PawanKumar-Dev/dd-sub002/internal/notify"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/httpapi"
	idemsvc "github.com/PawanKumar-Dev/dd-sub002/internal/service/idempotency"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/intake"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/manual"
	outboxsvc "github.com/PawanKumar-Dev/dd-sub002/internal/service/outbox"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/reconcile"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/verify"
	"github.com/PawanKumar-Dev/dd-sub002/internal/version"
)

// Run собирает сервис и работает до отмены ctx: HTTP API, метрики и health,
// outbox-воркер, cleanup-воркер, планировщик верификации и callback-consumer.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	kafkaProducer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Warn("kafka is unavailable, events will stay in outbox")
	}

	// Уведомления идут в Kafka; без брокера exactly-once флаг всё равно
	// взводится, а запрос уведомления остаётся в outbox.
	var notifier *notify.KafkaNotifier
	if kafkaProducer != nil {
		notifier = notify.NewKafkaNotifier(kafkaProducer)
	}

	syncSvc := reconcile.NewSync(deps.Pending, deps.Orders, deps.Outbox, deps.Timeline, notifierOrNil(notifier), logger.WithField("component", "reconcile-sync"))
	intakeSvc := intake.NewService(deps.Pending, deps.Timeline, deps.Outbox, syncSvc, logger.WithField("component", "intake"))
	verifier := verify.NewVerifier(deps.Pending, deps.Registrar, syncSvc, deps.Timeline, cfg.VerifyMaxAttempts, logger.WithField("component", "verifier"))
	scheduler := verify.NewScheduler(verifier, deps.Pending,
		verify.WithLogger(logger.WithField("component", "verify-scheduler")),
		verify.WithBatchSize(cfg.VerifyBatchSize),
		verify.WithWorkers(cfg.VerifyWorkers),
		verify.WithRatePerSecond(cfg.VerifyRatePerSecond),
		verify.WithInterval(cfg.VerifyInterval),
	)
	retrySvc := manual.NewRetryService(deps.Pending, deps.Registrar, syncSvc, deps.Timeline, logger.WithField("component", "manual-retry"))

	go scheduler.Run(ctx)

	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicReconciliationEvents)
		notifyPublisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicNotificationRequests)
		dlqPublisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)
		worker := outboxsvc.NewWorker(
			deps.Outbox,
			publisher,
			outboxsvc.WithLogger(logger.WithField("component", "outbox-worker")),
			outboxsvc.WithRoute(string(kafka.EventTypeNotificationRequested), notifyPublisher),
			outboxsvc.WithDLQPublisher(dlqPublisher),
			outboxsvc.WithPollInterval(cfg.OutboxPollInterval),
			outboxsvc.WithBatchSize(cfg.OutboxBatchSize),
			outboxsvc.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outboxsvc.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		go worker.Run(ctx)
	} else {
		logger.Warn("kafka brokers are not configured, outbox worker is not started")
	}

	cleanup := idemsvc.NewCleanupWorker(
		deps.Idempotency,
		idemsvc.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idemsvc.WithInterval(cfg.IdempotencyCleanupInterval),
		idemsvc.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	go cleanup.Run(ctx)

	callbackConsumer, err := startCallbackConsumer(ctx, cfg.KafkaBrokers, syncSvc, kafkaProducer, logger)
	if err != nil {
		logger.WithError(err).Warn("registrar callbacks will not be consumed")
	}

	healthHandler := healthcheck.NewHandler(version.String())
	if deps.Store != nil {
		healthHandler.RegisterChecker("database", healthcheck.NewDatabaseChecker(deps.Store.DB()))
	}
	healthHandler.RegisterChecker("registrar", healthcheck.NewRegistrarChecker(deps.Registrar))
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(deps.Outbox, 5*time.Minute, 1000))

	apiHandler := httpapi.NewHandler(
		intakeSvc,
		retrySvc,
		scheduler,
		syncSvc,
		deps.Pending,
		deps.Orders,
		deps.Timeline,
		deps.Idempotency,
		logger.WithField("component", "httpapi"),
	)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: apiHandler.Router()}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	shutdown := func() {
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		if callbackConsumer != nil {
			if err := callbackConsumer.Stop(); err != nil {
				logger.WithError(err).Warn("failed to stop callback consumer")
			}
		}
		closeKafka(kafkaProducer, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		shutdown()
		return ctx.Err()
	case err := <-errCh:
		shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// notifierOrNil прячет типизированный nil за интерфейсом.
func notifierOrNil(n *notify.KafkaNotifier) domain.Notifier {
	if n == nil {
		return nil
	}
	return n
}

// startMetricsServer запускает HTTP-обработчик /metrics и health-эндпоинты.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
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

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

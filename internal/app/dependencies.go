package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
	"github.com/PawanKumar-Dev/dd-sub002/internal/registrar"
	"github.com/PawanKumar-Dev/dd-sub002/internal/storage/memory"
	"github.com/PawanKumar-Dev/dd-sub002/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Pending     domain.PendingDomainRepository
	Orders      domain.OrderRepository
	Outbox      domain.OutboxRepository
	Timeline    domain.TimelineRepository
	Idempotency domain.IdempotencyRepository

	Registrar domain.RegistrarClient

	// Store не nil только для postgres-хранилища.
	Store  *postgres.Store
	Logger *log.Entry
}

// NewDependencies создаёт и инициализирует зависимости по конфигурации.
// NOTE: без DREG_REGISTRAR_BASE_URL используется mock-регистратор —
// режим для разработки и демо.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("init postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.Store = store
		deps.Pending = postgres.NewPendingRepository(store)
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		deps.Idempotency = postgres.NewIdempotencyRepository(store)
		logger.Info("postgres storage initialized")

	case StorageDriverMemory, "":
		deps.Pending = memory.NewPendingRepository()
		deps.Orders = memory.NewOrderRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Timeline = memory.NewTimelineRepository()
		deps.Idempotency = memory.NewIdempotencyRepository()
		logger.Info("in-memory storage initialized")

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	if cfg.RegistrarBaseURL != "" {
		breaker := registrar.NewCircuitBreaker(5, 30*time.Second, logger.WithField("component", "registrar-circuit-breaker"))
		opts := []registrar.Option{
			registrar.WithLogger(logger.WithField("component", "registrar-client")),
			registrar.WithCircuitBreaker(breaker),
		}
		if cfg.RegistrarAPIKey != "" {
			opts = append(opts, registrar.WithAuth(cfg.RegistrarUserID, cfg.RegistrarAPIKey))
		}
		deps.Registrar = registrar.NewClient(cfg.RegistrarBaseURL, opts...)
		logger.WithField("base_url", cfg.RegistrarBaseURL).Info("registrar client initialized")
	} else {
		deps.Registrar = registrar.NewMockClient()
		logger.Warn("registrar base url is not set, using mock registrar client")
	}

	return deps, nil
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}

package app

import (
	"os"
	"strconv"
	"time"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	// StorageDriverMemory — in-memory хранилище для разработки и тестов.
	StorageDriverMemory StorageDriver = "memory"
	// StorageDriverPostgres — PostgreSQL.
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска reconciliation-сервиса.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers string

	RegistrarBaseURL string
	RegistrarUserID  string
	RegistrarAPIKey  string

	VerifyMaxAttempts   int
	VerifyWorkers       int
	VerifyRatePerSecond int
	VerifyBatchSize     int
	VerifyInterval      time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает базовую конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		VerifyMaxAttempts:   5,
		VerifyWorkers:       4,
		VerifyRatePerSecond: 5,
		VerifyBatchSize:     50,
		VerifyInterval:      time.Minute,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,

		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// ConfigFromEnv читает конфигурацию из DREG_* переменных окружения поверх
// значений по умолчанию.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("DREG_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("DREG_METRICS_ADDR", cfg.MetricsAddr)

	cfg.StorageDriver = StorageDriver(envString("DREG_STORAGE_DRIVER", string(cfg.StorageDriver)))
	cfg.PostgresDSN = envString("DREG_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresAutoMigrate = envBool("DREG_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)
	if cfg.PostgresDSN != "" && os.Getenv("DREG_STORAGE_DRIVER") == "" {
		cfg.StorageDriver = StorageDriverPostgres
	}

	cfg.KafkaBrokers = envString("DREG_KAFKA_BROKERS", cfg.KafkaBrokers)

	cfg.RegistrarBaseURL = envString("DREG_REGISTRAR_BASE_URL", cfg.RegistrarBaseURL)
	cfg.RegistrarUserID = envString("DREG_REGISTRAR_USER_ID", cfg.RegistrarUserID)
	cfg.RegistrarAPIKey = envString("DREG_REGISTRAR_API_KEY", cfg.RegistrarAPIKey)

	cfg.VerifyMaxAttempts = envInt("DREG_VERIFY_MAX_ATTEMPTS", cfg.VerifyMaxAttempts)
	cfg.VerifyWorkers = envInt("DREG_VERIFY_WORKERS", cfg.VerifyWorkers)
	cfg.VerifyRatePerSecond = envInt("DREG_VERIFY_RATE_PER_SECOND", cfg.VerifyRatePerSecond)
	cfg.VerifyBatchSize = envInt("DREG_VERIFY_BATCH_SIZE", cfg.VerifyBatchSize)
	cfg.VerifyInterval = envDuration("DREG_VERIFY_INTERVAL", cfg.VerifyInterval)

	cfg.OutboxPollInterval = envDuration("DREG_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("DREG_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = envInt("DREG_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.OutboxRetryDelay = envDuration("DREG_OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay)

	cfg.IdempotencyCleanupInterval = envDuration("DREG_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval)
	cfg.IdempotencyCleanupBatchSize = envInt("DREG_IDEMPOTENCY_CLEANUP_BATCH_SIZE", cfg.IdempotencyCleanupBatchSize)

	return cfg
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(name string, fallback bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

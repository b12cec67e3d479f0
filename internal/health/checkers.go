package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

const checkTimeout = 2 * time.Second

// NewDatabaseChecker проверяет доступность PostgreSQL через ping.
func NewDatabaseChecker(db *sql.DB) *SimpleChecker {
	return NewSimpleChecker("database", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		return db.PingContext(ctx)
	})
}

// NewRegistrarChecker проверяет достижимость регистратора дешёвым запросом
// занятости заведомо существующего домена.
func NewRegistrarChecker(client domain.RegistrarClient) *SimpleChecker {
	return NewSimpleChecker("registrar", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		_, err := client.CheckAvailability(ctx, "example", "com")
		return err
	})
}

// OutboxChecker следит за backlog transactional outbox: старое неопубликованное
// событие — признак деградации publish-воркера, но не повод снимать трафик.
type OutboxChecker struct {
	repo     domain.OutboxRepository
	maxAge   time.Duration
	maxCount int
}

// NewOutboxChecker создаёт проверку backlog outbox.
func NewOutboxChecker(repo domain.OutboxRepository, maxAge time.Duration, maxCount int) *OutboxChecker {
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	if maxCount <= 0 {
		maxCount = 1000
	}
	return &OutboxChecker{repo: repo, maxAge: maxAge, maxCount: maxCount}
}

// Check возвращает degraded при разросшемся или застоявшемся backlog.
func (c *OutboxChecker) Check() Check {
	start := time.Now()
	stats, err := c.repo.Stats()
	duration := time.Since(start)

	if err != nil {
		return Check{
			Name:       "outbox",
			Status:     StatusUnhealthy,
			Message:    err.Error(),
			DurationMs: duration.Milliseconds(),
		}
	}

	if stats.PendingCount > c.maxCount {
		return Check{
			Name:       "outbox",
			Status:     StatusDegraded,
			Message:    fmt.Sprintf("outbox backlog is %d messages", stats.PendingCount),
			DurationMs: duration.Milliseconds(),
		}
	}
	if stats.PendingCount > 0 && time.Since(stats.OldestPendingAt) > c.maxAge {
		return Check{
			Name:       "outbox",
			Status:     StatusDegraded,
			Message:    fmt.Sprintf("oldest pending message is %s old", time.Since(stats.OldestPendingAt).Truncate(time.Second)),
			DurationMs: duration.Milliseconds(),
		}
	}

	return Check{
		Name:       "outbox",
		Status:     StatusHealthy,
		DurationMs: duration.Milliseconds(),
	}
}

var _ Checker = (*OutboxChecker)(nil)

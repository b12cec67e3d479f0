package domain

import (
	"context"
	"time"
)

// RegistrarResponse — сырой ответ регистратора на запрос регистрации.
// Тело сохраняется как есть: классификатор обязан разбирать его даже при 2xx,
// потому что регистратор умеет возвращать успешный HTTP-код с ошибкой внутри.
type RegistrarResponse struct {
	StatusCode int
	Body       string
}

// RegistrationRequest — параметры одного запроса регистрации домена.
type RegistrationRequest struct {
	DomainName        string
	RegistrationYears int32
	CustomerID        string
	ContactID         string
	AdminContactID    string
	TechContactID     string
	BillingContactID  string
	NameServers       []string
}

// AvailabilityState — трёхзначный результат независимой проверки занятости домена.
type AvailabilityState string

const (
	// AvailabilityTaken — домен занят, то есть регистрация состоялась.
	AvailabilityTaken AvailabilityState = "taken"
	// AvailabilityAvailable — домен свободен, то есть регистрация не состоялась.
	AvailabilityAvailable AvailabilityState = "available"
	// AvailabilityUnknown — частичное совпадение или ошибка самой проверки;
	// запись не разрешается, попытка засчитывается.
	AvailabilityUnknown AvailabilityState = "unknown"
)

// AvailabilityResult — результат проверки доступности для точной пары (sld, tld).
type AvailabilityResult struct {
	State AvailabilityState
	// Detail — сырой фрагмент ответа для аудита и reason-полей.
	Detail string
}

// RegistrarClient описывает взаимодействие с внешним регистратором.
// Реализация обязана ограничивать время вызова и повторять только
// транспортные сбои; бизнес-неоднозначность возвращается как данные, не ошибка.
type RegistrarClient interface {
	// Register выполняет запрос регистрации и возвращает сырой ответ.
	// Ошибка возвращается только при транспортном сбое после всех retry.
	Register(ctx context.Context, req RegistrationRequest) (RegistrarResponse, error)
	// CheckAvailability запрашивает занятость точной пары (sld, tld).
	CheckAvailability(ctx context.Context, sld, tld string) (AvailabilityResult, error)
}

// Notifier отправляет клиентское уведомление о полностью разрешённом заказе.
// Вызывается ровно один раз на заказ — под защитой durable-флага Order.Notified.
type Notifier interface {
	NotifyOrderResolved(ctx context.Context, order Order) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит аудит-события жизненного цикла pending-записи.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(pendingID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

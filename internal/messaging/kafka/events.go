package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// EventType определяет тип события
type EventType string

const (
	// Pending события
	EventTypePendingRecorded    EventType = "pending.recorded"
	EventTypePendingResolved    EventType = "pending.resolved"
	EventTypePendingNeedsReview EventType = "pending.needs_review"

	// Order события
	EventTypeOrderResolved EventType = "order.resolved"

	// Notification события
	EventTypeNotificationRequested EventType = "notification.requested"
)

// Topics для Kafka
const (
	TopicReconciliationEvents = "dreg.reconciliation.events"
	TopicNotificationRequests = "dreg.notification.requests"
	TopicRegistrarCallbacks   = "dreg.registrar.callbacks"
	TopicDeadLetterQueue      = "dreg.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// PendingEvent представляет событие жизненного цикла pending-записи
type PendingEvent struct {
	EventType  EventType              `json:"event_type"`
	PendingID  string                 `json:"pending_id"`
	OrderID    string                 `json:"order_id"`
	DomainName string                 `json:"domain_name"`
	Status     string                 `json:"status"`
	Reason     string                 `json:"reason,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NotificationEvent представляет запрос клиентского уведомления о заказе
type NotificationEvent struct {
	EventType         EventType `json:"event_type"`
	OrderID           string    `json:"order_id"`
	CustomerID        string    `json:"customer_id"`
	SuccessfulDomains []string  `json:"successful_domains"`
	Timestamp         time.Time `json:"timestamp"`
}

// RegistrarCallbackEvent представляет отложенный callback регистратора
// о фактическом исходе регистрации
type RegistrarCallbackEvent struct {
	RegistrarOrderID string    `json:"registrar_order_id"`
	OrderID          string    `json:"order_id,omitempty"`
	DomainName       string    `json:"domain_name,omitempty"`
	Status           string    `json:"status"`
	Description      string    `json:"description,omitempty"`
	ExpiresAt        string    `json:"expires_at,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewPendingEvent создает новое событие pending-записи
func NewPendingEvent(eventType EventType, pendingID, orderID, domainName, status, reason string) *PendingEvent {
	return &PendingEvent{
		EventType:  eventType,
		PendingID:  pendingID,
		OrderID:    orderID,
		DomainName: domainName,
		Status:     status,
		Reason:     reason,
		Timestamp:  time.Now(),
	}
}

// NewNotificationEvent создает запрос клиентского уведомления
func NewNotificationEvent(orderID, customerID string, successfulDomains []string) *NotificationEvent {
	return &NotificationEvent{
		EventType:         EventTypeNotificationRequested,
		OrderID:           orderID,
		CustomerID:        customerID,
		SuccessfulDomains: successfulDomains,
		Timestamp:         time.Now(),
	}
}

// ParsePendingEvent парсит PendingEvent из сообщения
func ParsePendingEvent(message *sarama.ConsumerMessage) (*PendingEvent, error) {
	var event PendingEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending event: %w", err)
	}
	return &event, nil
}

// ParseRegistrarCallbackEvent парсит callback регистратора из сообщения
func ParseRegistrarCallbackEvent(message *sarama.ConsumerMessage) (*RegistrarCallbackEvent, error) {
	var event RegistrarCallbackEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registrar callback event: %w", err)
	}
	return &event, nil
}

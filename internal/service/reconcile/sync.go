package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
	"github.com/PawanKumar-Dev/dd-sub002/internal/messaging/kafka"
	"github.com/PawanKumar-Dev/dd-sub002/internal/metrics"
)

// Sync — единственный писатель доменных статусов заказа после появления
// pending-записи для пары (order, domain). Переносит разрешённый исход в заказ
// и взводит клиентское уведомление ровно один раз на заказ.
type Sync struct {
	pending  domain.PendingDomainRepository
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	notifier domain.Notifier
	logger   *log.Entry
	metrics  *metrics.ReconMetrics
}

// NewSync создаёт рабочий экземпляр reconciliation sync.
func NewSync(
	pending domain.PendingDomainRepository,
	orders domain.OrderRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	notifier domain.Notifier,
	logger *log.Entry,
) *Sync {
	if logger == nil {
		logger = log.New().WithField("component", "reconcile-sync")
	}
	return &Sync{
		pending:  pending,
		orders:   orders,
		outbox:   outbox,
		timeline: timeline,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics.NewReconMetrics(),
	}
}

// NewSyncWithoutMetrics создаёт sync без метрик (для тестов).
func NewSyncWithoutMetrics(
	pending domain.PendingDomainRepository,
	orders domain.OrderRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	notifier domain.Notifier,
	logger *log.Entry,
) *Sync {
	s := NewSync(pending, orders, outbox, timeline, notifier, logger)
	s.metrics = nil
	return s
}

// ApplyResolved переносит терминальный исход pending-записи в позицию заказа.
// Отсутствие заказа или позиции — soft-инцидент: логируется и не считается
// ошибкой reconciliation на стороне pending-записи.
func (s *Sync) ApplyResolved(ctx context.Context, p domain.PendingDomain) error {
	if !p.Status.Terminal() {
		return domain.ErrPendingInvalidTransition
	}

	status := domain.DomainStatusRegistered
	errText := ""
	var expiresAt *time.Time
	if p.Status == domain.PendingStatusFailed {
		status = domain.DomainStatusFailed
		errText = p.Reason
	} else {
		expiresAt = p.ExpiresAt
	}

	if err := s.orders.SetDomainStatus(p.OrderID, p.DomainName, status, errText, expiresAt); err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrOrderDomainNotFound) {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id":    p.OrderID,
				"domain_name": p.DomainName,
			}).Warn("order entry missing during sync, dropping update")
			return nil
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordPendingResolved(string(p.Status))
	}
	s.emitEvent(p.ID, kafka.EventTypePendingResolved, map[string]interface{}{
		"order_id":    p.OrderID,
		"domain_name": p.DomainName,
		"status":      string(p.Status),
		"reason":      p.Reason,
	})

	return s.RefreshNotification(ctx, p.OrderID)
}

// SetImmediateOutcome записывает немедленно классифицированный исход попытки
// в заказ — путь для Success/HardFailure, когда pending-запись не создавалась.
func (s *Sync) SetImmediateOutcome(ctx context.Context, orderID, domainName string, status domain.DomainStatus, errText string) error {
	if err := s.orders.SetDomainStatus(orderID, domainName, status, errText, nil); err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrOrderDomainNotFound) {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id":    orderID,
				"domain_name": domainName,
			}).Warn("order entry missing for immediate outcome, dropping update")
			return nil
		}
		return err
	}
	return s.RefreshNotification(ctx, orderID)
}

// RefreshNotification пересчитывает условие уведомления заказа и отправляет
// его ровно один раз: флаг Order.Notified взводится условным обновлением,
// уведомление шлёт только тот вызов, который реально переключил флаг.
func (s *Sync) RefreshNotification(ctx context.Context, orderID string) error {
	order, err := s.orders.Get(orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.WithField("order_id", orderID).Warn("order missing during notification refresh")
			return nil
		}
		return err
	}

	if !order.NotificationDue() {
		return nil
	}

	flipped, err := s.orders.MarkNotified(orderID)
	if err != nil {
		return err
	}
	if !flipped {
		s.logger.WithField("order_id", orderID).Debug("notification already sent by another caller")
		return nil
	}
	order.Notified = true

	if s.notifier != nil {
		if err := s.notifier.NotifyOrderResolved(ctx, order); err != nil {
			// Флаг уже взведён: уведомление не будет продублировано, но и не
			// потеряно насовсем — запрос дополнительно уходит через outbox ниже.
			s.logger.WithError(err).WithField("order_id", orderID).Error("notify order resolved failed")
		}
	}
	if s.metrics != nil {
		s.metrics.RecordNotificationSent()
	}

	s.emitOrderEvent(orderID, kafka.EventTypeOrderResolved, map[string]interface{}{
		"customer_id":        order.CustomerID,
		"successful_domains": order.SuccessfulDomains(),
	})
	// Дублирующий durable-запрос к нотификатору: даже если прямой вызов выше
	// упал, запрос доедет через outbox в выделенный топик уведомлений.
	s.emitOrderEvent(orderID, kafka.EventTypeNotificationRequested, map[string]interface{}{
		"customer_id":        order.CustomerID,
		"successful_domains": order.SuccessfulDomains(),
	})

	s.logger.WithFields(log.Fields{
		"order_id":           orderID,
		"successful_domains": len(order.SuccessfulDomains()),
	}).Info("order fully resolved, notification fired")
	return nil
}

// ResolveFromCallback разрешает pending-запись по отложенному callback
// регистратора. Callback с неоднозначным статусом игнорируется — запись
// останется в очереди верификации.
func (s *Sync) ResolveFromCallback(ctx context.Context, cb kafka.RegistrarCallbackEvent) error {
	p, err := s.lookupCallbackTarget(cb)
	if err != nil {
		if errors.Is(err, domain.ErrPendingNotFound) {
			s.logger.WithFields(log.Fields{
				"registrar_order_id": cb.RegistrarOrderID,
				"order_id":           cb.OrderID,
				"domain_name":        cb.DomainName,
			}).Warn("callback does not match any non-terminal pending domain")
			return nil
		}
		return err
	}

	target, reason := callbackOutcome(cb)
	if target == "" {
		s.logger.WithFields(log.Fields{
			"pending_id": p.ID,
			"status":     cb.Status,
		}).Debug("callback status is not definitive, ignoring")
		return nil
	}

	if err := s.pending.Claim(p.ID); err != nil {
		if domain.IsNotClaimable(err) {
			// Запись либо уже разрешена, либо захвачена идущей верификацией.
			// В первом случае callback — дубликат и подтверждать нечего; во
			// втором терять определённый исход нельзя: возвращаем ошибку,
			// чтобы consumer повторил доставку после завершения верификации.
			current, getErr := s.pending.Get(p.ID)
			if getErr == nil && current.Status.Terminal() {
				s.logger.WithField("pending_id", p.ID).Debug("pending domain already resolved, callback is a duplicate")
				return nil
			}
			s.logger.WithField("pending_id", p.ID).Info("pending domain busy, deferring callback to redelivery")
			return fmt.Errorf("pending domain %s is busy, callback deferred: %w", p.ID, err)
		}
		return err
	}

	in := domain.TransitionInput{Status: target, Reason: reason, RegistrarOrderID: cb.RegistrarOrderID}
	if target == domain.PendingStatusCompleted {
		now := time.Now().UTC()
		in.RegisteredAt = &now
		if expires, parseErr := time.Parse(time.RFC3339, cb.ExpiresAt); parseErr == nil {
			in.ExpiresAt = &expires
		}
	}

	resolved, changed, err := s.pending.Transition(p.ID, in)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	s.appendTimeline(p.ID, domain.TimelineEventResolved, reason)
	return s.ApplyResolved(ctx, resolved)
}

func (s *Sync) lookupCallbackTarget(cb kafka.RegistrarCallbackEvent) (domain.PendingDomain, error) {
	if cb.RegistrarOrderID != "" {
		if p, err := s.pending.GetByRegistrarOrderID(cb.RegistrarOrderID); err == nil {
			return p, nil
		} else if !errors.Is(err, domain.ErrPendingNotFound) {
			return domain.PendingDomain{}, err
		}
	}
	if cb.OrderID != "" && cb.DomainName != "" {
		return s.pending.GetByOrderDomain(cb.OrderID, cb.DomainName)
	}
	return domain.PendingDomain{}, domain.ErrPendingNotFound
}

// callbackOutcome отображает статус callback в терминальный статус записи.
func callbackOutcome(cb kafka.RegistrarCallbackEvent) (domain.PendingStatus, string) {
	reason := cb.Description
	switch cb.Status {
	case "Success", "success", "registered":
		if reason == "" {
			reason = "confirmed by registrar callback"
		}
		return domain.PendingStatusCompleted, reason
	case "Failed", "failed", "error":
		if reason == "" {
			reason = "rejected by registrar callback"
		}
		return domain.PendingStatusFailed, reason
	default:
		return "", ""
	}
}

func (s *Sync) appendTimeline(pendingID, eventType, reason string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		PendingID: pendingID,
		Type:      eventType,
		Reason:    reason,
		Occurred:  time.Now().UTC(),
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"pending_id": pendingID,
			"event":      eventType,
		}).Warn("append timeline event failed")
	} else if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

func (s *Sync) emitEvent(pendingID string, eventType kafka.EventType, payload map[string]interface{}) {
	s.enqueueOutbox("pending_domain", pendingID, eventType, payload)
}

func (s *Sync) emitOrderEvent(orderID string, eventType kafka.EventType, payload map[string]interface{}) {
	s.enqueueOutbox("order", orderID, eventType, payload)
}

func (s *Sync) enqueueOutbox(aggregateType, aggregateID string, eventType kafka.EventType, payload map[string]interface{}) {
	if s.outbox == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": aggregateID,
			"event":        eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": aggregateID,
			"event":        eventType,
		}).Error("enqueue event failed")
	} else if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

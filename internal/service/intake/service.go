package intake

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
	"github.com/PawanKumar-Dev/dd-sub002/internal/messaging/kafka"
	"github.com/PawanKumar-Dev/dd-sub002/internal/metrics"
	"github.com/PawanKumar-Dev/dd-sub002/internal/registrar"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/reconcile"
)

// Attempt — данные одной попытки регистрации, переданные order-processing флоу
// сразу после вызова регистратора.
type Attempt struct {
	OrderID    string
	DomainName string

	PriceMinor        int64
	Currency          string
	RegistrationYears int32

	UserID           string
	CustomerID       string
	ContactID        string
	AdminContactID   string
	TechContactID    string
	BillingContactID string
	NameServers      []string
	RegistrarOrderID string

	Response domain.RegistrarResponse
}

// Result — итог приёма попытки: вердикт классификатора и, для ambiguous,
// идентификатор созданной либо обновлённой pending-записи.
type Result struct {
	Classification domain.Classification
	PendingID      string
}

// Service принимает сырые ответы регистратора от order-processing флоу.
// Success и HardFailure записываются в заказ сразу; AmbiguousPending уходит
// в pending-хранилище и разрешается верификацией позже.
type Service struct {
	pending  domain.PendingDomainRepository
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	sync     *reconcile.Sync
	logger   *log.Entry
	metrics  *metrics.ReconMetrics
}

// NewService создаёт intake-сервис.
func NewService(
	pending domain.PendingDomainRepository,
	timeline domain.TimelineRepository,
	outbox domain.OutboxRepository,
	sync *reconcile.Sync,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "intake")
	}
	return &Service{
		pending:  pending,
		timeline: timeline,
		outbox:   outbox,
		sync:     sync,
		logger:   logger,
		metrics:  metrics.NewReconMetrics(),
	}
}

// NewServiceWithoutMetrics создаёт intake-сервис без метрик (для тестов).
func NewServiceWithoutMetrics(
	pending domain.PendingDomainRepository,
	timeline domain.TimelineRepository,
	outbox domain.OutboxRepository,
	sync *reconcile.Sync,
	logger *log.Entry,
) *Service {
	s := NewService(pending, timeline, outbox, sync, logger)
	s.metrics = nil
	return s
}

// RecordRegistrationAttempt классифицирует сырой ответ и применяет вердикт.
func (s *Service) RecordRegistrationAttempt(ctx context.Context, attempt Attempt) (Result, error) {
	if attempt.OrderID == "" {
		return Result{}, domain.ErrOrderIDRequired
	}
	if attempt.DomainName == "" {
		return Result{}, domain.ErrDomainNameRequired
	}

	classification := registrar.Classify(attempt.Response)
	if s.metrics != nil {
		s.metrics.RecordClassification(string(classification.Outcome))
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id":    attempt.OrderID,
		"domain_name": attempt.DomainName,
		"outcome":     classification.Outcome,
	})

	switch classification.Outcome {
	case domain.OutcomeSuccess:
		if err := s.sync.SetImmediateOutcome(ctx, attempt.OrderID, attempt.DomainName, domain.DomainStatusRegistered, ""); err != nil {
			return Result{}, err
		}
		logger.Info("registration attempt resolved immediately")
		return Result{Classification: classification}, nil

	case domain.OutcomeHardFailure:
		if err := s.sync.SetImmediateOutcome(ctx, attempt.OrderID, attempt.DomainName, domain.DomainStatusFailed, classification.Reason); err != nil {
			return Result{}, err
		}
		logger.Info("registration attempt rejected by registrar")
		return Result{Classification: classification}, nil

	default:
		p, err := s.recordAmbiguous(attempt, classification)
		if err != nil {
			return Result{}, err
		}
		logger.WithField("pending_id", p.ID).Info("ambiguous registration attempt recorded")
		return Result{Classification: classification, PendingID: p.ID}, nil
	}
}

func (s *Service) recordAmbiguous(attempt Attempt, classification domain.Classification) (domain.PendingDomain, error) {
	p := domain.PendingDomain{
		OrderID:           attempt.OrderID,
		DomainName:        attempt.DomainName,
		PriceMinor:        attempt.PriceMinor,
		Currency:          attempt.Currency,
		RegistrationYears: attempt.RegistrationYears,
		UserID:            attempt.UserID,
		CustomerID:        attempt.CustomerID,
		ContactID:         attempt.ContactID,
		AdminContactID:    attempt.AdminContactID,
		TechContactID:     attempt.TechContactID,
		BillingContactID:  attempt.BillingContactID,
		NameServers:       attempt.NameServers,
		RegistrarOrderID:  attempt.RegistrarOrderID,
		Status:            domain.PendingStatusPending,
		Reason:            classification.Reason,
	}
	if p.RegistrationYears <= 0 {
		p.RegistrationYears = 1
	}

	created, err := s.pending.Upsert(p)
	if err != nil {
		return domain.PendingDomain{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordPendingRecorded()
	}

	s.appendTimeline(created.ID, domain.TimelineEventClassified, classification.Reason)
	s.emitRecorded(created)
	return created, nil
}

func (s *Service) appendTimeline(pendingID, eventType, reason string) {
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
		s.logger.WithError(err).WithField("pending_id", pendingID).Warn("append timeline event failed")
	} else if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

func (s *Service) emitRecorded(p domain.PendingDomain) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":    p.OrderID,
		"domain_name": p.DomainName,
		"status":      string(p.Status),
		"reason":      p.Reason,
		"ts":          time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.WithError(err).WithField("pending_id", p.ID).Error("marshal pending event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "pending_domain",
		AggregateID:   p.ID,
		EventType:     string(kafka.EventTypePendingRecorded),
		Payload:       payload,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithField("pending_id", p.ID).Error("enqueue pending event failed")
	} else if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}


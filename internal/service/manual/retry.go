package manual

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
	"github.com/PawanKumar-Dev/dd-sub002/internal/metrics"
	"github.com/PawanKumar-Dev/dd-sub002/internal/registrar"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/reconcile"
)

// RetryService выполняет принудительную повторную регистрацию pending-домена
// по запросу оператора. Повтор идемпотентен относительно прошлых попыток и
// отдельно аудируется в admin_notes: счётчик автоматических проверок не трогается.
type RetryService struct {
	pending   domain.PendingDomainRepository
	registrar domain.RegistrarClient
	sync      *reconcile.Sync
	timeline  domain.TimelineRepository
	logger    *log.Entry
	metrics   *metrics.ReconMetrics
}

// NewRetryService создаёт сервис ручного повтора регистрации.
func NewRetryService(
	pending domain.PendingDomainRepository,
	registrarClient domain.RegistrarClient,
	sync *reconcile.Sync,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *RetryService {
	if logger == nil {
		logger = log.New().WithField("component", "manual-retry")
	}
	return &RetryService{
		pending:   pending,
		registrar: registrarClient,
		sync:      sync,
		timeline:  timeline,
		logger:    logger,
		metrics:   metrics.NewReconMetrics(),
	}
}

// NewRetryServiceWithoutMetrics создаёт сервис без метрик (для тестов).
func NewRetryServiceWithoutMetrics(
	pending domain.PendingDomainRepository,
	registrarClient domain.RegistrarClient,
	sync *reconcile.Sync,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *RetryService {
	r := NewRetryService(pending, registrarClient, sync, timeline, logger)
	r.metrics = nil
	return r
}

// Result — итог ручного повтора.
type Result struct {
	Classification domain.Classification
	Pending        domain.PendingDomain
}

// Retry выполняет свежий регистрационный вызов для записи.
// Precondition: запись не completed. failed-запись переоткрывается отдельной
// логируемой override-операцией перед захватом. Гонка с планировщиком решается
// тем же условным переходом pending → processing: проигравший не делает вызов.
func (r *RetryService) Retry(ctx context.Context, id, operator string) (Result, error) {
	p, err := r.pending.Get(id)
	if err != nil {
		return Result{}, err
	}

	logger := r.logger.WithFields(log.Fields{
		"pending_id":  p.ID,
		"order_id":    p.OrderID,
		"domain_name": p.DomainName,
		"operator":    operator,
	})

	switch p.Status {
	case domain.PendingStatusCompleted:
		return Result{}, domain.ErrPendingAlreadyCompleted
	case domain.PendingStatusFailed:
		// Переоткрытие терминальной записи — это не переход state machine,
		// а отдельная override-операция с собственным аудит-событием.
		reopened, overrideErr := r.pending.Override(id, domain.PendingStatusPending, "reopened for manual retry")
		if overrideErr != nil {
			return Result{}, overrideErr
		}
		r.appendTimeline(id, domain.TimelineEventManualOverride, "reopened for manual retry by "+operator)
		p = reopened
	}

	if err := r.pending.Claim(id); err != nil {
		return Result{}, err
	}

	if r.metrics != nil {
		r.metrics.RecordManualRetry()
	}

	resp, err := r.registrar.Register(ctx, domain.RegistrationRequest{
		DomainName:        p.DomainName,
		RegistrationYears: p.RegistrationYears,
		CustomerID:        p.CustomerID,
		ContactID:         p.ContactID,
		AdminContactID:    p.AdminContactID,
		TechContactID:     p.TechContactID,
		BillingContactID:  p.BillingContactID,
		NameServers:       p.NameServers,
	})
	if err != nil {
		logger.WithError(err).Warn("manual registration call failed at transport level")
		r.release(p, logger)
		r.noteRetry(id, operator, "transport failure: "+err.Error())
		return Result{}, err
	}

	classification := registrar.Classify(resp)
	if r.metrics != nil {
		r.metrics.RecordClassification(string(classification.Outcome))
	}
	logger = logger.WithField("outcome", classification.Outcome)

	r.noteRetry(id, operator, string(classification.Outcome)+": "+classification.Reason)
	r.appendTimeline(id, domain.TimelineEventManualRetry, "by "+operator+": "+string(classification.Outcome))

	switch classification.Outcome {
	case domain.OutcomeSuccess:
		now := time.Now().UTC()
		resolved, changed, err := r.pending.Transition(id, domain.TransitionInput{
			Status:       domain.PendingStatusCompleted,
			Reason:       classification.Reason,
			RegisteredAt: &now,
		})
		if err != nil {
			return Result{}, err
		}
		if changed {
			if err := r.sync.ApplyResolved(ctx, resolved); err != nil {
				return Result{Classification: classification, Pending: resolved}, err
			}
		}
		logger.Info("manual retry registered the domain")
		return Result{Classification: classification, Pending: resolved}, nil

	case domain.OutcomeHardFailure:
		resolved, changed, err := r.pending.Transition(id, domain.TransitionInput{
			Status: domain.PendingStatusFailed,
			Reason: classification.Reason,
		})
		if err != nil {
			return Result{}, err
		}
		if changed {
			if err := r.sync.ApplyResolved(ctx, resolved); err != nil {
				return Result{Classification: classification, Pending: resolved}, err
			}
		}
		logger.Info("manual retry rejected by registrar")
		return Result{Classification: classification, Pending: resolved}, nil

	default:
		// Неоднозначный ответ: запись возвращается в pending, счётчик
		// автоматических проверок не меняется.
		updated, _, err := r.pending.Transition(id, domain.TransitionInput{
			Status: domain.PendingStatusPending,
			Reason: classification.Reason,
		})
		if err != nil {
			return Result{}, err
		}
		logger.Info("manual retry remained ambiguous")
		return Result{Classification: classification, Pending: updated}, nil
	}
}

func (r *RetryService) release(p domain.PendingDomain, logger *log.Entry) {
	if _, _, err := r.pending.Transition(p.ID, domain.TransitionInput{
		Status: domain.PendingStatusPending,
		Reason: p.Reason,
	}); err != nil {
		logger.WithError(err).Error("failed to release pending domain after manual retry failure")
	}
}

func (r *RetryService) noteRetry(id, operator, outcome string) {
	note := fmt.Sprintf("%s manual retry by %s: %s", time.Now().UTC().Format(time.RFC3339), operator, outcome)
	if err := r.pending.AppendAdminNote(id, note); err != nil {
		r.logger.WithError(err).WithField("pending_id", id).Warn("append admin note failed")
	}
}

func (r *RetryService) appendTimeline(pendingID, eventType, reason string) {
	if r.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		PendingID: pendingID,
		Type:      eventType,
		Reason:    reason,
		Occurred:  time.Now().UTC(),
	}
	if err := r.timeline.Append(event); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"pending_id": pendingID,
			"event":      eventType,
		}).Warn("append timeline event failed")
	} else if r.metrics != nil {
		r.metrics.RecordTimelineEvent()
	}
}

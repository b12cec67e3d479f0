package verify

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
	"github.com/PawanKumar-Dev/dd-sub002/internal/metrics"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/reconcile"
)

const defaultMaxAttempts = 5

// Verifier разрешает pending-запись независимым сигналом занятости домена.
// Захват записи (pending → processing) — единственный механизм взаимного
// исключения с другими планировщиками и ручным retry.
type Verifier struct {
	pending     domain.PendingDomainRepository
	registrar   domain.RegistrarClient
	sync        *reconcile.Sync
	timeline    domain.TimelineRepository
	logger      *log.Entry
	metrics     *metrics.ReconMetrics
	maxAttempts int
}

// NewVerifier создаёт verification-сервис.
func NewVerifier(
	pending domain.PendingDomainRepository,
	registrarClient domain.RegistrarClient,
	sync *reconcile.Sync,
	timeline domain.TimelineRepository,
	maxAttempts int,
	logger *log.Entry,
) *Verifier {
	if logger == nil {
		logger = log.New().WithField("component", "verifier")
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Verifier{
		pending:     pending,
		registrar:   registrarClient,
		sync:        sync,
		timeline:    timeline,
		logger:      logger,
		metrics:     metrics.NewReconMetrics(),
		maxAttempts: maxAttempts,
	}
}

// NewVerifierWithoutMetrics создаёт verifier без метрик (для тестов).
func NewVerifierWithoutMetrics(
	pending domain.PendingDomainRepository,
	registrarClient domain.RegistrarClient,
	sync *reconcile.Sync,
	timeline domain.TimelineRepository,
	maxAttempts int,
	logger *log.Entry,
) *Verifier {
	v := NewVerifier(pending, registrarClient, sync, timeline, maxAttempts, logger)
	v.metrics = nil
	return v
}

// MaxAttempts возвращает действующий потолок автоматических проверок.
func (v *Verifier) MaxAttempts() int {
	return v.maxAttempts
}

// VerifyOne захватывает запись и выполняет одну проверку доступности.
// Проигранная гонка за запись — не ошибка: возвращается ErrPendingNotClaimable,
// и вызывающая сторона пропускает запись в этом цикле.
func (v *Verifier) VerifyOne(ctx context.Context, id string) (domain.PendingDomain, error) {
	start := time.Now()
	if v.metrics != nil {
		v.metrics.RecordVerificationStarted()
	}
	defer func() {
		if v.metrics != nil {
			v.metrics.RecordVerificationFinished()
			v.metrics.RecordVerificationDuration(time.Since(start))
		}
	}()

	if err := v.pending.Claim(id); err != nil {
		return domain.PendingDomain{}, err
	}
	v.appendTimeline(id, domain.TimelineEventClaimed, "")

	p, err := v.pending.Get(id)
	if err != nil {
		return domain.PendingDomain{}, err
	}

	logger := v.logger.WithFields(log.Fields{
		"pending_id":  p.ID,
		"order_id":    p.OrderID,
		"domain_name": p.DomainName,
	})

	sld, tld, ok := domain.SplitDomain(p.DomainName)
	if !ok {
		// Нечего спрашивать у регистратора: имя не разбирается на пару (sld, tld).
		logger.Warn("domain name is not splittable, counting as inconclusive attempt")
		return v.finishInconclusive(ctx, p, "domain name is not splittable")
	}

	result, err := v.registrar.CheckAvailability(ctx, sld, tld)
	if err != nil {
		// Транспортный сбой не считается попыткой: запись возвращается
		// в pending без инкремента счётчика.
		logger.WithError(err).Warn("availability check transport failure")
		if _, _, backErr := v.pending.Transition(p.ID, domain.TransitionInput{
			Status: domain.PendingStatusPending,
			Reason: p.Reason,
		}); backErr != nil {
			logger.WithError(backErr).Error("failed to release pending domain after transport failure")
		}
		return domain.PendingDomain{}, fmt.Errorf("availability check for %s: %w", p.DomainName, err)
	}

	v.appendTimeline(p.ID, domain.TimelineEventVerified, string(result.State))

	switch result.State {
	case domain.AvailabilityTaken:
		return v.resolve(ctx, p, domain.PendingStatusCompleted, "verified registered", result.Detail)
	case domain.AvailabilityAvailable:
		return v.resolve(ctx, p, domain.PendingStatusFailed, "verified not registered", result.Detail)
	default:
		reason := "availability check inconclusive"
		if result.Detail != "" {
			reason = reason + ": " + result.Detail
		}
		return v.finishInconclusive(ctx, p, reason)
	}
}

// resolve применяет терминальный переход и передаёт исход reconciliation sync.
// Повторное разрешение уже терминальной записи — no-op без побочных эффектов.
func (v *Verifier) resolve(ctx context.Context, p domain.PendingDomain, status domain.PendingStatus, reason, detail string) (domain.PendingDomain, error) {
	in := domain.TransitionInput{Status: status, Reason: reason}
	if status == domain.PendingStatusCompleted {
		now := time.Now().UTC()
		in.RegisteredAt = &now
	}

	resolved, changed, err := v.pending.Transition(p.ID, in)
	if err != nil {
		return domain.PendingDomain{}, err
	}
	if !changed {
		return resolved, nil
	}

	v.appendTimeline(p.ID, domain.TimelineEventResolved, reason)
	v.logger.WithFields(log.Fields{
		"pending_id":  p.ID,
		"domain_name": p.DomainName,
		"status":      status,
		"detail":      detail,
	}).Info("pending domain resolved by verification")

	if err := v.sync.ApplyResolved(ctx, resolved); err != nil {
		return resolved, err
	}
	return resolved, nil
}

// finishInconclusive засчитывает попытку и возвращает запись в pending.
// Исчерпание потолка никогда не переводит запись в failed — она помечается
// для ручной верификации и выпадает из выборки планировщика.
func (v *Verifier) finishInconclusive(ctx context.Context, p domain.PendingDomain, reason string) (domain.PendingDomain, error) {
	attempts, err := v.pending.RecordAttempt(p.ID)
	if err != nil {
		return domain.PendingDomain{}, err
	}

	if _, _, err := v.pending.Transition(p.ID, domain.TransitionInput{
		Status: domain.PendingStatusPending,
		Reason: reason,
	}); err != nil {
		return domain.PendingDomain{}, err
	}

	if attempts >= v.maxAttempts {
		reviewReason := fmt.Sprintf("needs manual verification: %d attempts exhausted", attempts)
		if err := v.pending.SetNeedsReview(p.ID, reviewReason); err != nil {
			return domain.PendingDomain{}, err
		}
		v.appendTimeline(p.ID, domain.TimelineEventNeedsReview, reviewReason)
		if v.metrics != nil {
			v.metrics.RecordNeedsReview()
		}
		v.logger.WithFields(log.Fields{
			"pending_id": p.ID,
			"attempts":   attempts,
		}).Warn("verification attempts exhausted, flagged for manual review")
	}

	updated, err := v.pending.Get(p.ID)
	if err != nil {
		return domain.PendingDomain{}, err
	}
	return updated, domain.ErrVerificationInconclusive
}

func (v *Verifier) appendTimeline(pendingID, eventType, reason string) {
	if v.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		PendingID: pendingID,
		Type:      eventType,
		Reason:    reason,
		Occurred:  time.Now().UTC(),
	}
	if err := v.timeline.Append(event); err != nil {
		v.logger.WithError(err).WithFields(log.Fields{
			"pending_id": pendingID,
			"event":      eventType,
		}).Warn("append timeline event failed")
	} else if v.metrics != nil {
		v.metrics.RecordTimelineEvent()
	}
}

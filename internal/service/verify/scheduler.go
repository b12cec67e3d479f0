package verify

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

const (
	defaultBatchSize       = 50
	defaultWorkers         = 4
	defaultRatePerSecond   = 5
	defaultInterval        = time.Minute
	defaultStaleClaimAfter = 10 * time.Minute
)

// SchedulerOptions задаёт параметры batch-планировщика верификации.
type SchedulerOptions struct {
	Logger          *log.Entry
	BatchSize       int
	Workers         int
	RatePerSecond   int
	Interval        time.Duration
	StaleClaimAfter time.Duration
}

// SchedulerOption настраивает Scheduler.
type SchedulerOption func(*SchedulerOptions)

// WithLogger задаёт logger планировщика.
func WithLogger(logger *log.Entry) SchedulerOption {
	return func(opts *SchedulerOptions) {
		opts.Logger = logger
	}
}

// WithBatchSize задаёт максимальный размер выборки одного прогона.
func WithBatchSize(batchSize int) SchedulerOption {
	return func(opts *SchedulerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithWorkers задаёт размер пула воркеров.
func WithWorkers(workers int) SchedulerOption {
	return func(opts *SchedulerOptions) {
		opts.Workers = workers
	}
}

// WithRatePerSecond задаёт суммарный бюджет вызовов регистратора в секунду.
func WithRatePerSecond(rate int) SchedulerOption {
	return func(opts *SchedulerOptions) {
		opts.RatePerSecond = rate
	}
}

// WithInterval задаёт период между автоматическими прогонами.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(opts *SchedulerOptions) {
		opts.Interval = interval
	}
}

// WithStaleClaimAfter задаёт возраст processing-записи, после которого захват
// считается брошенным (обрыв процесса между claim и завершением проверки).
func WithStaleClaimAfter(age time.Duration) SchedulerOption {
	return func(opts *SchedulerOptions) {
		opts.StaleClaimAfter = age
	}
}

// BatchResult — сводка одного прогона планировщика.
type BatchResult struct {
	Selected     int
	Resolved     int
	Inconclusive int
	Skipped      int
	Errors       int
}

// Scheduler гонит verification-сервис по backlog нетерминальных записей:
// ограниченный пул воркеров, общий pacer под rate limit регистратора,
// захват каждой записи условным переходом pending → processing.
type Scheduler struct {
	verifier *Verifier
	pending  domain.PendingDomainRepository
	logger   *log.Entry

	batchSize     int
	workers       int
	ratePerSecond int
	interval      time.Duration
	staleAfter    time.Duration
}

// NewScheduler создаёт планировщик верификации.
func NewScheduler(verifier *Verifier, pending domain.PendingDomainRepository, options ...SchedulerOption) *Scheduler {
	opts := SchedulerOptions{
		BatchSize:     defaultBatchSize,
		Workers:       defaultWorkers,
		RatePerSecond: defaultRatePerSecond,
		Interval:      defaultInterval,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "verify-scheduler")
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = defaultRatePerSecond
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.StaleClaimAfter <= 0 {
		opts.StaleClaimAfter = defaultStaleClaimAfter
	}

	return &Scheduler{
		verifier:      verifier,
		pending:       pending,
		logger:        logger,
		batchSize:     opts.BatchSize,
		workers:       opts.Workers,
		ratePerSecond: opts.RatePerSecond,
		interval:      opts.Interval,
		staleAfter:    opts.StaleClaimAfter,
	}
}

// Run запускает периодические прогоны до отмены ctx. Перед каждым прогоном
// освобождаются брошенные захваты, поэтому жёсткая остановка процесса
// посреди batch-а не оставляет записей, требующих ручного вмешательства.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.releaseStaleClaims()
	s.RunBatch(ctx, nil)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.releaseStaleClaims()
			s.RunBatch(ctx, nil)
		}
	}
}

// releaseStaleClaims возвращает в pending записи, зависшие в processing дольше
// staleAfter: захват без завершения означает оборванный процесс, а не живую
// проверку. Возвращает число освобождённых записей.
func (s *Scheduler) releaseStaleClaims() int {
	stuck, err := s.pending.List(domain.PendingFilter{Status: domain.PendingStatusProcessing})
	if err != nil {
		s.logger.WithError(err).Warn("failed to list processing records for stale claim release")
		return 0
	}

	cutoff := time.Now().UTC().Add(-s.staleAfter)
	released := 0
	for _, p := range stuck {
		if p.UpdatedAt.After(cutoff) {
			continue
		}
		if _, _, err := s.pending.Transition(p.ID, domain.TransitionInput{
			Status: domain.PendingStatusPending,
			Reason: p.Reason,
		}); err != nil {
			s.logger.WithError(err).WithField("pending_id", p.ID).Warn("failed to release stale claim")
			continue
		}
		released++
	}

	if released > 0 {
		s.logger.WithField("released", released).Warn("released stale processing claims")
	}
	return released
}

// RunBatch выполняет один прогон. Пустой ids — автоматический режим: выборка
// eligible-записей (pending, без needs_review, счётчик ниже потолка). Явный
// список ids — админ-запуск, фильтр eligibility сознательно обходится: оператор
// вправе прогнать проверку и для записи за потолком или с needs_review.
func (s *Scheduler) RunBatch(ctx context.Context, ids []string) BatchResult {
	var result BatchResult

	if len(ids) == 0 {
		eligible, err := s.pending.ListEligible(s.verifier.MaxAttempts(), s.batchSize)
		if err != nil {
			s.logger.WithError(err).Warn("failed to list eligible pending domains")
			result.Errors++
			return result
		}
		for _, p := range eligible {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) > s.batchSize {
		ids = ids[:s.batchSize]
	}
	result.Selected = len(ids)
	if len(ids) == 0 {
		return result
	}

	s.logger.WithFields(log.Fields{
		"batch_size": len(ids),
		"workers":    s.workers,
	}).Info("verification batch started")

	// Общий pacer: воркеры разбирают тики, суммарная частота вызовов
	// регистратора не превышает бюджет независимо от размера пула.
	pace := time.NewTicker(time.Second / time.Duration(s.ratePerSecond))
	defer pace.Stop()

	limit := s.workers
	if limit > len(ids) {
		limit = len(ids)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, limit)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
		case <-pace.C:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		semaphore <- struct{}{}
		go func(pendingID string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			outcome := s.verifyOne(ctx, pendingID)
			mu.Lock()
			switch outcome {
			case batchResolved:
				result.Resolved++
			case batchInconclusive:
				result.Inconclusive++
			case batchSkipped:
				result.Skipped++
			default:
				result.Errors++
			}
			mu.Unlock()
		}(id)
	}

	wg.Wait()

	s.logger.WithFields(log.Fields{
		"selected":     result.Selected,
		"resolved":     result.Resolved,
		"inconclusive": result.Inconclusive,
		"skipped":      result.Skipped,
		"errors":       result.Errors,
	}).Info("verification batch finished")
	return result
}

type batchOutcome int

const (
	batchResolved batchOutcome = iota
	batchInconclusive
	batchSkipped
	batchError
)

// verifyOne обрабатывает одну запись; индивидуальные сбои не прерывают прогон.
func (s *Scheduler) verifyOne(ctx context.Context, id string) batchOutcome {
	p, err := s.verifier.VerifyOne(ctx, id)
	switch {
	case err == nil:
		if p.Status.Terminal() {
			return batchResolved
		}
		return batchInconclusive
	case errors.Is(err, domain.ErrVerificationInconclusive):
		return batchInconclusive
	case domain.IsNotClaimable(err), errors.Is(err, domain.ErrPendingNotFound):
		s.logger.WithField("pending_id", id).Debug("pending domain skipped this cycle")
		return batchSkipped
	default:
		s.logger.WithError(err).WithField("pending_id", id).Warn("verification failed")
		return batchError
	}
}

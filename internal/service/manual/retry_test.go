package manual

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
	"github.com/PawanKumar-Dev/dd-sub002/internal/notify"
	"github.com/PawanKumar-Dev/dd-sub002/internal/registrar"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/reconcile"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/verify"
	"github.com/PawanKumar-Dev/dd-sub002/internal/storage/memory"
)

type retryEnv struct {
	retry    *RetryService
	verifier *verify.Verifier
	client   *registrar.MockClient
	pending  domain.PendingDomainRepository
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	notifier *notify.MockNotifier
}

func newRetryEnv(t *testing.T) *retryEnv {
	t.Helper()

	pending := memory.NewPendingRepository()
	orders := memory.NewOrderRepository()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	notifier := notify.NewMockNotifier()
	client := registrar.NewMockClient()

	syncSvc := reconcile.NewSyncWithoutMetrics(pending, orders, outbox, timeline, notifier, nil)
	retry := NewRetryServiceWithoutMetrics(pending, client, syncSvc, timeline, nil)
	verifier := verify.NewVerifierWithoutMetrics(pending, client, syncSvc, timeline, 5, nil)

	if err := orders.Create(domain.Order{
		ID:         "order-1",
		CustomerID: "cust-1",
		Domains: []domain.OrderDomain{
			{DomainName: "b.io", PriceMinor: 3500, Currency: "USD", RegistrationYears: 1, Status: domain.DomainStatusProcessing},
		},
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	return &retryEnv{retry: retry, verifier: verifier, client: client, pending: pending, orders: orders, timeline: timeline, notifier: notifier}
}

func (e *retryEnv) seedPending(t *testing.T, status domain.PendingStatus) domain.PendingDomain {
	t.Helper()

	p, err := e.pending.Upsert(domain.PendingDomain{
		OrderID:           "order-1",
		DomainName:        "b.io",
		PriceMinor:        3500,
		Currency:          "USD",
		RegistrationYears: 1,
		CustomerID:        "cust-1",
		ContactID:         "contact-1",
		Status:            domain.PendingStatusPending,
		Reason:            "order locked for processing",
	})
	if err != nil {
		t.Fatalf("seed pending: %v", err)
	}
	if status == domain.PendingStatusPending {
		return p
	}

	if err := e.pending.Claim(p.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if status == domain.PendingStatusProcessing {
		got, _ := e.pending.Get(p.ID)
		return got
	}
	got, _, err := e.pending.Transition(p.ID, domain.TransitionInput{Status: status, Reason: "seeded"})
	if err != nil {
		t.Fatalf("transition to %s: %v", status, err)
	}
	return got
}

func TestRetrySuccessResolvesCompleted(t *testing.T) {
	env := newRetryEnv(t)
	p := env.seedPending(t, domain.PendingStatusPending)

	result, err := env.retry.Retry(context.Background(), p.ID, "ops@example.com")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.Classification.Outcome != domain.OutcomeSuccess {
		t.Fatalf("unexpected outcome: %s", result.Classification.Outcome)
	}
	if result.Pending.Status != domain.PendingStatusCompleted {
		t.Fatalf("unexpected status: %s", result.Pending.Status)
	}
	if env.client.RegisterCalls != 1 {
		t.Fatalf("expected one register call, got %d", env.client.RegisterCalls)
	}

	order, _ := env.orders.Get("order-1")
	entry, _ := order.FindDomain("b.io")
	if entry.Status != domain.DomainStatusRegistered {
		t.Fatalf("order not synced: %s", entry.Status)
	}
	if env.notifier.Calls != 1 {
		t.Fatalf("expected one notification, got %d", env.notifier.Calls)
	}

	got, _ := env.pending.Get(p.ID)
	if !strings.Contains(got.AdminNotes, "manual retry by ops@example.com") {
		t.Fatalf("audit note missing: %q", got.AdminNotes)
	}
}

func TestRetryCompletedIsRejected(t *testing.T) {
	env := newRetryEnv(t)
	p := env.seedPending(t, domain.PendingStatusCompleted)

	_, err := env.retry.Retry(context.Background(), p.ID, "ops@example.com")
	if !errors.Is(err, domain.ErrPendingAlreadyCompleted) {
		t.Fatalf("expected ErrPendingAlreadyCompleted, got %v", err)
	}
	if env.client.RegisterCalls != 0 {
		t.Fatal("no register call expected for completed record")
	}
}

func TestRetryFailedReopensViaOverride(t *testing.T) {
	env := newRetryEnv(t)
	env.client.RegisterResp = domain.RegistrarResponse{
		StatusCode: 200,
		Body:       `{"status":"error","message":"Order locked for processing"}`,
	}
	p := env.seedPending(t, domain.PendingStatusFailed)

	result, err := env.retry.Retry(context.Background(), p.ID, "ops@example.com")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.Classification.Outcome != domain.OutcomeAmbiguousPending {
		t.Fatalf("unexpected outcome: %s", result.Classification.Outcome)
	}
	if result.Pending.Status != domain.PendingStatusPending {
		t.Fatalf("record must return to pending, got %s", result.Pending.Status)
	}

	events, err := env.timeline.List(p.ID)
	if err != nil {
		t.Fatalf("list timeline: %v", err)
	}
	var sawOverride bool
	for _, event := range events {
		if event.Type == domain.TimelineEventManualOverride {
			sawOverride = true
		}
	}
	if !sawOverride {
		t.Fatal("manual override event must be logged")
	}
}

func TestRetryAmbiguousKeepsAttemptsUntouched(t *testing.T) {
	env := newRetryEnv(t)
	env.client.RegisterResp = domain.RegistrarResponse{
		StatusCode: 200,
		Body:       `{"status":"error","message":"Order locked for processing"}`,
	}
	p := env.seedPending(t, domain.PendingStatusPending)
	if _, err := env.pending.RecordAttempt(p.ID); err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	result, err := env.retry.Retry(context.Background(), p.ID, "ops@example.com")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.Pending.VerificationAttempts != 1 {
		t.Fatalf("manual retry must not touch attempts, got %d", result.Pending.VerificationAttempts)
	}
	if !strings.Contains(result.Pending.AdminNotes, string(domain.OutcomeAmbiguousPending)) {
		t.Fatalf("audit note must carry the outcome: %q", result.Pending.AdminNotes)
	}
}

func TestRetryTransportFailureReleasesRecord(t *testing.T) {
	env := newRetryEnv(t)
	env.client.RegisterErr = domain.ErrRegistrarUnavailable
	p := env.seedPending(t, domain.PendingStatusPending)

	_, err := env.retry.Retry(context.Background(), p.ID, "ops@example.com")
	if !errors.Is(err, domain.ErrRegistrarUnavailable) {
		t.Fatalf("expected transport error, got %v", err)
	}

	got, _ := env.pending.Get(p.ID)
	if got.Status != domain.PendingStatusPending {
		t.Fatalf("record must be released, got %s", got.Status)
	}
	if !strings.Contains(got.AdminNotes, "transport failure") {
		t.Fatalf("audit note missing: %q", got.AdminNotes)
	}
}

func TestRetryHardFailureResolvesFailed(t *testing.T) {
	env := newRetryEnv(t)
	env.client.RegisterResp = domain.RegistrarResponse{
		StatusCode: 400,
		Body:       `{"status":"error","message":"Invalid domain name"}`,
	}
	p := env.seedPending(t, domain.PendingStatusPending)

	result, err := env.retry.Retry(context.Background(), p.ID, "ops@example.com")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.Pending.Status != domain.PendingStatusFailed {
		t.Fatalf("unexpected status: %s", result.Pending.Status)
	}

	order, _ := env.orders.Get("order-1")
	entry, _ := order.FindDomain("b.io")
	if entry.Status != domain.DomainStatusFailed {
		t.Fatalf("order not synced: %s", entry.Status)
	}
}

func TestRetryLosesClaimRaceToScheduler(t *testing.T) {
	env := newRetryEnv(t)
	p := env.seedPending(t, domain.PendingStatusPending)

	// Ручной retry и верификация конкурируют за одну запись: захват выигрывает
	// ровно один участник, второй уходит с ErrPendingNotClaimable.
	var wg sync.WaitGroup
	var retryErr, verifyErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, retryErr = env.retry.Retry(context.Background(), p.ID, "ops@example.com")
	}()
	go func() {
		defer wg.Done()
		_, verifyErr = env.verifier.VerifyOne(context.Background(), p.ID)
	}()
	wg.Wait()

	losses := 0
	if domain.IsNotClaimable(retryErr) || errors.Is(retryErr, domain.ErrPendingAlreadyCompleted) {
		losses++
	}
	if domain.IsNotClaimable(verifyErr) {
		losses++
	}
	if losses != 1 {
		t.Fatalf("exactly one participant must lose the claim: retry=%v verify=%v", retryErr, verifyErr)
	}
	if env.client.RegisterCalls+env.client.AvailabilityCalls != 1 {
		t.Fatalf("exactly one registrar call expected, got register=%d availability=%d",
			env.client.RegisterCalls, env.client.AvailabilityCalls)
	}
}

package intake

import (
	"context"
	"testing"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
	"github.com/PawanKumar-Dev/dd-sub002/internal/notify"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/reconcile"
	"github.com/PawanKumar-Dev/dd-sub002/internal/storage/memory"
)

type testEnv struct {
	service  *Service
	pending  domain.PendingDomainRepository
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	notifier *notify.MockNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	pending := memory.NewPendingRepository()
	orders := memory.NewOrderRepository()
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	notifier := notify.NewMockNotifier()

	sync := reconcile.NewSyncWithoutMetrics(pending, orders, outbox, timeline, notifier, nil)
	service := NewServiceWithoutMetrics(pending, timeline, outbox, sync, nil)

	if err := orders.Create(domain.Order{
		ID:         "order-1",
		CustomerID: "cust-1",
		Domains: []domain.OrderDomain{
			{DomainName: "a.com", PriceMinor: 1200, Currency: "USD", RegistrationYears: 1, Status: domain.DomainStatusProcessing},
			{DomainName: "b.io", PriceMinor: 3500, Currency: "USD", RegistrationYears: 1, Status: domain.DomainStatusProcessing},
		},
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	return &testEnv{service: service, pending: pending, orders: orders, timeline: timeline, notifier: notifier}
}

func attempt(domainName string, resp domain.RegistrarResponse) Attempt {
	return Attempt{
		OrderID:           "order-1",
		DomainName:        domainName,
		PriceMinor:        1200,
		Currency:          "USD",
		RegistrationYears: 1,
		CustomerID:        "rc-cust-1",
		ContactID:         "rc-contact-1",
		Response:          resp,
	}
}

func TestRecordAttemptSuccessWritesOrderDirectly(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.service.RecordRegistrationAttempt(context.Background(), attempt("a.com", domain.RegistrarResponse{
		StatusCode: 200,
		Body:       `{"status":"Success","entityid":"reg-1"}`,
	}))
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if result.Classification.Outcome != domain.OutcomeSuccess {
		t.Fatalf("unexpected outcome: %s", result.Classification.Outcome)
	}
	if result.PendingID != "" {
		t.Fatal("success must not create a pending record")
	}

	order, _ := env.orders.Get("order-1")
	entry, _ := order.FindDomain("a.com")
	if entry.Status != domain.DomainStatusRegistered {
		t.Fatalf("unexpected status: %s", entry.Status)
	}
	// b.io ещё processing — уведомление не должно уйти.
	if env.notifier.Calls != 0 {
		t.Fatalf("premature notification: %d", env.notifier.Calls)
	}
}

func TestRecordAttemptHardFailureWritesError(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.service.RecordRegistrationAttempt(context.Background(), attempt("a.com", domain.RegistrarResponse{
		StatusCode: 400,
		Body:       `{"status":"error","message":"Invalid domain name"}`,
	}))
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if result.Classification.Outcome != domain.OutcomeHardFailure {
		t.Fatalf("unexpected outcome: %s", result.Classification.Outcome)
	}

	order, _ := env.orders.Get("order-1")
	entry, _ := order.FindDomain("a.com")
	if entry.Status != domain.DomainStatusFailed {
		t.Fatalf("unexpected status: %s", entry.Status)
	}
	if entry.Error == "" {
		t.Fatal("error text must be recorded")
	}
}

func TestRecordAttemptAmbiguousCreatesPending(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.service.RecordRegistrationAttempt(context.Background(), attempt("b.io", domain.RegistrarResponse{
		StatusCode: 200,
		Body:       `{"status":"error","message":"Order locked for processing"}`,
	}))
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if result.Classification.Outcome != domain.OutcomeAmbiguousPending {
		t.Fatalf("unexpected outcome: %s", result.Classification.Outcome)
	}
	if result.PendingID == "" {
		t.Fatal("ambiguous outcome must produce a pending record")
	}

	p, err := env.pending.Get(result.PendingID)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if p.Status != domain.PendingStatusPending {
		t.Fatalf("unexpected pending status: %s", p.Status)
	}
	if p.Reason == "" {
		t.Fatal("classifier reason must be kept as provisional text")
	}

	// Позиция заказа остаётся promising — статус пишет только sync при разрешении.
	order, _ := env.orders.Get("order-1")
	entry, _ := order.FindDomain("b.io")
	if entry.Status != domain.DomainStatusProcessing {
		t.Fatalf("order status must stay processing, got %s", entry.Status)
	}

	events, err := env.timeline.List(result.PendingID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(events) != 1 || events[0].Type != domain.TimelineEventClassified {
		t.Fatalf("expected one classified event, got %+v", events)
	}
}

func TestRecordAttemptAmbiguousTwiceUpdatesInPlace(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.service.RecordRegistrationAttempt(context.Background(), attempt("b.io", domain.RegistrarResponse{
		StatusCode: 200,
		Body:       `{"status":"error","message":"Order locked for processing"}`,
	}))
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}

	second, err := env.service.RecordRegistrationAttempt(context.Background(), attempt("b.io", domain.RegistrarResponse{
		StatusCode: 200,
		Body:       `{"status":"error","message":"Domain already exists in database"}`,
	}))
	if err != nil {
		t.Fatalf("second attempt: %v", err)
	}

	if first.PendingID != second.PendingID {
		t.Fatalf("pair must converge to one record: %s vs %s", first.PendingID, second.PendingID)
	}

	list, err := env.pending.List(domain.PendingFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected single pending record, got %d", len(list))
	}
}

func TestRecordAttemptValidatesInput(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.service.RecordRegistrationAttempt(context.Background(), Attempt{DomainName: "a.com"}); err != domain.ErrOrderIDRequired {
		t.Fatalf("expected order id error, got %v", err)
	}
	if _, err := env.service.RecordRegistrationAttempt(context.Background(), Attempt{OrderID: "order-1"}); err != domain.ErrDomainNameRequired {
		t.Fatalf("expected domain name error, got %v", err)
	}
}

func TestRecordAttemptSuccessForMissingOrderIsSoft(t *testing.T) {
	env := newTestEnv(t)

	a := attempt("a.com", domain.RegistrarResponse{StatusCode: 200, Body: `{"status":"Success"}`})
	a.OrderID = "order-404"
	if _, err := env.service.RecordRegistrationAttempt(context.Background(), a); err != nil {
		t.Fatalf("missing order must be a soft drop: %v", err)
	}
}

package memory_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
	"github.com/PawanKumar-Dev/dd-sub002/internal/storage/memory"
)

func newPending() domain.PendingDomain {
	return domain.PendingDomain{
		OrderID:           "order-1",
		DomainName:        "example.com",
		PriceMinor:        99900,
		Currency:          "INR",
		RegistrationYears: 1,
		CustomerID:        "customer-1",
		Status:            domain.PendingStatusPending,
		Reason:            "order locked for processing",
	}
}

func TestPendingRepository_UpsertCreatesAndGets(t *testing.T) {
	repo := memory.NewPendingRepository()

	created, err := repo.Upsert(newPending())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}

	stored, err := repo.Get(created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.DomainName != "example.com" {
		t.Fatalf("expected example.com, got %s", stored.DomainName)
	}
}

func TestPendingRepository_UpsertUpdatesNonTerminalInPlace(t *testing.T) {
	repo := memory.NewPendingRepository()

	first, err := repo.Upsert(newPending())
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	again := newPending()
	again.Reason = "already exists in database"
	second, err := repo.Upsert(again)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("expected update in place, got new record %s", second.ID)
	}
	if second.Reason != "already exists in database" {
		t.Fatalf("expected updated reason, got %q", second.Reason)
	}

	list, err := repo.List(domain.PendingFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(list))
	}
}

func TestPendingRepository_ConcurrentUpsertKeepsSingleRecord(t *testing.T) {
	repo := memory.NewPendingRepository()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Upsert(newPending()); err != nil {
				t.Errorf("upsert failed: %v", err)
			}
		}()
	}
	wg.Wait()

	list, err := repo.List(domain.PendingFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly one non-terminal record for the pair, got %d", len(list))
	}
}

func TestPendingRepository_UpsertAfterTerminalCreatesFresh(t *testing.T) {
	repo := memory.NewPendingRepository()

	first, err := repo.Upsert(newPending())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := repo.Claim(first.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, _, err := repo.Transition(first.ID, domain.TransitionInput{Status: domain.PendingStatusCompleted}); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	// Терминальная запись не блокирует новую нетерминальную для той же пары.
	second, err := repo.Upsert(newPending())
	if err != nil {
		t.Fatalf("upsert after terminal failed: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a fresh record after terminal resolution")
	}
}

func TestPendingRepository_ClaimMutualExclusion(t *testing.T) {
	repo := memory.NewPendingRepository()

	p, err := repo.Upsert(newPending())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	var wg sync.WaitGroup
	wins := make(chan struct{}, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Claim(p.ID); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", count)
	}
}

func TestPendingRepository_TransitionValidation(t *testing.T) {
	repo := memory.NewPendingRepository()

	p, err := repo.Upsert(newPending())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// pending → completed запрещён: без processing-захвата.
	if _, _, err := repo.Transition(p.ID, domain.TransitionInput{Status: domain.PendingStatusCompleted}); !errors.Is(err, domain.ErrPendingInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	if err := repo.Claim(p.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	// processing → pending разрешён (неубедительная проверка).
	if _, changed, err := repo.Transition(p.ID, domain.TransitionInput{Status: domain.PendingStatusPending}); err != nil || !changed {
		t.Fatalf("expected processing->pending, changed=%v err=%v", changed, err)
	}
}

func TestPendingRepository_TerminalTransitionIsIdempotent(t *testing.T) {
	repo := memory.NewPendingRepository()

	p, err := repo.Upsert(newPending())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := repo.Claim(p.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if _, changed, err := repo.Transition(p.ID, domain.TransitionInput{Status: domain.PendingStatusFailed, Reason: "verified available"}); err != nil || !changed {
		t.Fatalf("first terminal transition: changed=%v err=%v", changed, err)
	}

	// Повтор того же терминального перехода — no-op без ошибки.
	_, changed, err := repo.Transition(p.ID, domain.TransitionInput{Status: domain.PendingStatusFailed})
	if err != nil {
		t.Fatalf("repeat transition errored: %v", err)
	}
	if changed {
		t.Fatal("expected repeated terminal transition to be a no-op")
	}

	// Переход из терминального статуса в другой — ошибка.
	if _, _, err := repo.Transition(p.ID, domain.TransitionInput{Status: domain.PendingStatusCompleted}); !errors.Is(err, domain.ErrPendingInvalidTransition) {
		t.Fatalf("expected invalid transition out of terminal, got %v", err)
	}
}

func TestPendingRepository_RecordAttemptAndEligibility(t *testing.T) {
	repo := memory.NewPendingRepository()

	p, err := repo.Upsert(newPending())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		n, err := repo.RecordAttempt(p.ID)
		if err != nil {
			t.Fatalf("record attempt failed: %v", err)
		}
		if n != i {
			t.Fatalf("expected attempts %d, got %d", i, n)
		}
	}

	eligible, err := repo.ListEligible(5, 10)
	if err != nil {
		t.Fatalf("list eligible failed: %v", err)
	}
	if len(eligible) != 1 {
		t.Fatalf("expected record below ceiling to be eligible, got %d", len(eligible))
	}

	eligible, err = repo.ListEligible(3, 10)
	if err != nil {
		t.Fatalf("list eligible failed: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("expected record at ceiling to be excluded, got %d", len(eligible))
	}
}

func TestPendingRepository_NeedsReviewExcludedFromEligible(t *testing.T) {
	repo := memory.NewPendingRepository()

	p, err := repo.Upsert(newPending())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := repo.SetNeedsReview(p.ID, "verification attempts exhausted"); err != nil {
		t.Fatalf("set needs review failed: %v", err)
	}

	eligible, err := repo.ListEligible(5, 10)
	if err != nil {
		t.Fatalf("list eligible failed: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("expected flagged record to be excluded, got %d", len(eligible))
	}

	// Запись осталась нетерминальной: исчерпание лимита не делает её failed.
	stored, err := repo.Get(p.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status.Terminal() {
		t.Fatalf("expected non-terminal status, got %s", stored.Status)
	}
	if !stored.NeedsReview {
		t.Fatal("expected needs_review flag")
	}
}

func TestPendingRepository_ListFilters(t *testing.T) {
	repo := memory.NewPendingRepository()

	a := newPending()
	if _, err := repo.Upsert(a); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	b := newPending()
	b.OrderID = "order-2"
	b.DomainName = "shop.io"
	if _, err := repo.Upsert(b); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	byStatus, err := repo.List(domain.PendingFilter{Status: domain.PendingStatusPending})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(byStatus) != 2 {
		t.Fatalf("expected 2 pending records, got %d", len(byStatus))
	}

	bySearch, err := repo.List(domain.PendingFilter{Search: "shop"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(bySearch) != 1 || bySearch[0].DomainName != "shop.io" {
		t.Fatalf("search mismatch: %+v", bySearch)
	}
}

func TestPendingRepository_AppendAdminNote(t *testing.T) {
	repo := memory.NewPendingRepository()

	p, err := repo.Upsert(newPending())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := repo.AppendAdminNote(p.ID, "manual retry by ops@"); err != nil {
		t.Fatalf("append note failed: %v", err)
	}
	if err := repo.AppendAdminNote(p.ID, "second note"); err != nil {
		t.Fatalf("append note failed: %v", err)
	}

	stored, err := repo.Get(p.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.AdminNotes != "manual retry by ops@\nsecond note" {
		t.Fatalf("unexpected notes: %q", stored.AdminNotes)
	}
}

func TestPendingRepository_DeleteIsExplicit(t *testing.T) {
	repo := memory.NewPendingRepository()

	p, err := repo.Upsert(newPending())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := repo.Delete(p.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.Get(p.ID); !errors.Is(err, domain.ErrPendingNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

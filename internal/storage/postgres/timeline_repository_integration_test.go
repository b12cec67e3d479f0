package postgres

import (
	"testing"
	"time"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	pendingRepo := NewPendingRepository(store)
	timelineRepo := NewTimelineRepository(store)

	p, err := pendingRepo.Upsert(samplePending("timeline-order", "timeline.dev"))
	if err != nil {
		t.Fatalf("upsert pending for timeline: %v", err)
	}

	// Zero occurred should be auto-filled.
	if err := timelineRepo.Append(domain.TimelineEvent{
		PendingID: p.ID,
		Type:      domain.TimelineEventClassified,
		Reason:    "order locked for processing",
	}); err != nil {
		t.Fatalf("append timeline event with zero occurred: %v", err)
	}

	explicitOccurred := time.Now().UTC().Add(10 * time.Second).Round(time.Microsecond)
	if err := timelineRepo.Append(domain.TimelineEvent{
		PendingID: p.ID,
		Type:      domain.TimelineEventResolved,
		Reason:    "verified taken",
		Occurred:  explicitOccurred,
	}); err != nil {
		t.Fatalf("append timeline event with explicit occurred: %v", err)
	}

	events, err := timelineRepo.List(p.ID)
	if err != nil {
		t.Fatalf("list timeline events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 timeline events, got %d", len(events))
	}
	if events[0].Occurred.After(events[1].Occurred) {
		t.Fatalf("events should be sorted by occurred asc: %+v", events)
	}
	types := []string{events[0].Type, events[1].Type}
	if !(contains(types, domain.TimelineEventClassified) && contains(types, domain.TimelineEventResolved)) {
		t.Fatalf("unexpected event types: %+v", types)
	}
}

func TestTimelineRepository_PostgresUnknownPending(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	timelineRepo := NewTimelineRepository(store)

	events, err := timelineRepo.List("missing-pending")
	if err != nil {
		t.Fatalf("list for missing pending should not fail: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for missing pending, got %d", len(events))
	}
}

func contains(values []string, needle string) bool {
	for _, value := range values {
		if value == needle {
			return true
		}
	}
	return false
}

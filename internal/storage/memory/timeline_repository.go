package memory

import (
	"sort"
	"sync"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

// timelineRepositoryInMemory хранит аудит-события pending-записей в памяти.
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{events: make(map[string][]domain.TimelineEvent)}
}

// Append добавляет событие в хранилище.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[event.PendingID] = append(r.events[event.PendingID], event)

	sort.Slice(r.events[event.PendingID], func(i, j int) bool {
		return r.events[event.PendingID][i].Occurred.Before(r.events[event.PendingID][j].Occurred)
	})

	return nil
}

// List возвращает события pending-записи в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(pendingID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[pendingID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)

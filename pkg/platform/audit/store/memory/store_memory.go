package memory

import (
	"context"
	"slices"
	"sync"

	id "collecta/pkg/domain"
	audit "collecta/pkg/platform/audit"
)

// InMemoryStore keeps audit events in insertion order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByGroup returns a group's events, newest first.
func (s *InMemoryStore) ListByGroup(_ context.Context, unit id.UnitID, category id.CategoryID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.UnitID == unit && e.CategoryID == category {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// ListRecent returns at most limit events, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	out := append([]audit.Event(nil), s.events...)
	s.mu.RUnlock()
	sortNewestFirst(out)
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(events []audit.Event) {
	slices.SortStableFunc(events, func(a, b audit.Event) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}

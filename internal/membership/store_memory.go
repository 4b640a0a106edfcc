package membership

import (
	"context"
	"slices"
	"strings"
	"sync"

	id "collecta/pkg/domain"
)

type membershipKey struct {
	actor id.ActorID
	unit  id.UnitID
	role  Role
}

// InMemoryStore keeps memberships in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[membershipKey]Membership
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[membershipKey]Membership)}
}

func (s *InMemoryStore) Add(_ context.Context, m Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[membershipKey{m.ActorID, m.UnitID, m.Role}] = m
	return nil
}

func (s *InMemoryStore) HasRole(_ context.Context, actor id.ActorID, unit id.UnitID, roles ...Role) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range roles {
		if _, ok := s.entries[membershipKey{actor, unit, r}]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) ListByUnit(_ context.Context, unit id.UnitID, role Role) ([]Membership, error) {
	return s.filter(func(m Membership) bool { return m.UnitID == unit && m.Role == role }), nil
}

func (s *InMemoryStore) ListByRole(_ context.Context, role Role) ([]Membership, error) {
	return s.filter(func(m Membership) bool { return m.Role == role }), nil
}

func (s *InMemoryStore) filter(keep func(Membership) bool) []Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Membership
	for _, m := range s.entries {
		if keep(m) {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b Membership) int {
		if c := strings.Compare(a.ActorID.String(), b.ActorID.String()); c != 0 {
			return c
		}
		return strings.Compare(a.UnitID.String(), b.UnitID.String())
	})
	return out
}

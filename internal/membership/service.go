// Package membership answers the two authority questions the workflow asks
// (may this actor edit, may this actor approve) and resolves notification
// recipients by role.
package membership

import (
	"context"
	"fmt"
	"sort"

	id "collecta/pkg/domain"
)

// Store is the persistence port for memberships.
type Store interface {
	Add(ctx context.Context, m Membership) error
	HasRole(ctx context.Context, actor id.ActorID, unit id.UnitID, roles ...Role) (bool, error)
	ListByUnit(ctx context.Context, unit id.UnitID, role Role) ([]Membership, error)
	ListByRole(ctx context.Context, role Role) ([]Membership, error)
}

// Service implements the authority and directory collaborators.
type Service struct {
	store Store
}

func New(store Store) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("membership store is required")
	}
	return &Service{store: store}, nil
}

// CanEdit reports whether actor owns unit. The system actor never edits.
func (s *Service) CanEdit(ctx context.Context, actor id.ActorID, unit id.UnitID) (bool, error) {
	if actor.IsSystem() {
		return false, nil
	}
	return s.store.HasRole(ctx, actor, unit, RoleOwner)
}

// CanApprove reports whether actor reviews unit, directly or as a sector admin.
func (s *Service) CanApprove(ctx context.Context, actor id.ActorID, unit id.UnitID) (bool, error) {
	if actor.IsSystem() {
		return false, nil
	}
	return s.store.HasRole(ctx, actor, unit, RoleReviewer, RoleSectorAdmin)
}

// UnitOwners returns the owners of unit.
func (s *Service) UnitOwners(ctx context.Context, unit id.UnitID) ([]Recipient, error) {
	ms, err := s.store.ListByUnit(ctx, unit, RoleOwner)
	if err != nil {
		return nil, err
	}
	return recipients(ms), nil
}

// UnitAdmins returns every unit admin, one entry per actor.
func (s *Service) UnitAdmins(ctx context.Context) ([]Recipient, error) {
	ms, err := s.store.ListByRole(ctx, RoleUnitAdmin)
	if err != nil {
		return nil, err
	}
	return recipients(ms), nil
}

// SectorAdmins returns every sector admin, one entry per actor.
func (s *Service) SectorAdmins(ctx context.Context) ([]Recipient, error) {
	ms, err := s.store.ListByRole(ctx, RoleSectorAdmin)
	if err != nil {
		return nil, err
	}
	return recipients(ms), nil
}

func recipients(ms []Membership) []Recipient {
	seen := make(map[id.ActorID]struct{}, len(ms))
	out := make([]Recipient, 0, len(ms))
	for _, m := range ms {
		if _, dup := seen[m.ActorID]; dup {
			continue
		}
		seen[m.ActorID] = struct{}{}
		out = append(out, Recipient{ActorID: m.ActorID, Contact: m.Contact})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID.String() < out[j].ActorID.String() })
	return out
}

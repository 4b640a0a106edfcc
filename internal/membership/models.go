package membership

import (
	"fmt"

	id "collecta/pkg/domain"
)

// Role is what an actor may do for a unit.
type Role string

const (
	RoleOwner       Role = "owner"
	RoleReviewer    Role = "reviewer"
	RoleUnitAdmin   Role = "unit_admin"
	RoleSectorAdmin Role = "sector_admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleReviewer, RoleUnitAdmin, RoleSectorAdmin:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Membership grants Role on UnitID to ActorID. Contact is the address
// notifications are delivered to.
type Membership struct {
	ActorID id.ActorID
	UnitID  id.UnitID
	Role    Role
	Contact string
}

// Recipient is a notification target.
type Recipient struct {
	ActorID id.ActorID `json:"actor_id"`
	Contact string     `json:"contact,omitempty"`
}

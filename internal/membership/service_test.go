package membership

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "collecta/pkg/domain"
)

type ServiceSuite struct {
	suite.Suite
	store    *InMemoryStore
	service  *Service
	unit     id.UnitID
	owner    id.ActorID
	reviewer id.ActorID
	sector   id.ActorID
	admin    id.ActorID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	ctx := context.Background()
	s.store = NewInMemoryStore()
	var err error
	s.service, err = New(s.store)
	s.Require().NoError(err)

	s.unit = id.UnitID(uuid.New())
	s.owner = id.ActorID(uuid.New())
	s.reviewer = id.ActorID(uuid.New())
	s.sector = id.ActorID(uuid.New())
	s.admin = id.ActorID(uuid.New())
	other := id.UnitID(uuid.New())

	for _, m := range []Membership{
		{ActorID: s.owner, UnitID: s.unit, Role: RoleOwner, Contact: "owner@school.test"},
		{ActorID: s.reviewer, UnitID: s.unit, Role: RoleReviewer},
		{ActorID: s.sector, UnitID: s.unit, Role: RoleSectorAdmin, Contact: "sector@region.test"},
		{ActorID: s.sector, UnitID: other, Role: RoleSectorAdmin, Contact: "sector@region.test"},
		{ActorID: s.admin, UnitID: other, Role: RoleUnitAdmin, Contact: "admin@school.test"},
	} {
		s.Require().NoError(s.store.Add(ctx, m))
	}
}

func (s *ServiceSuite) TestNew() {
	_, err := New(nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "membership store is required")
}

func (s *ServiceSuite) TestAuthority() {
	ctx := context.Background()
	check := func(fn func(context.Context, id.ActorID, id.UnitID) (bool, error), actor id.ActorID) bool {
		ok, err := fn(ctx, actor, s.unit)
		s.Require().NoError(err)
		return ok
	}

	s.Run("only owners edit", func() {
		s.True(check(s.service.CanEdit, s.owner))
		s.False(check(s.service.CanEdit, s.reviewer))
		s.False(check(s.service.CanEdit, id.SystemActor))
	})

	s.Run("reviewers and sector admins approve", func() {
		s.True(check(s.service.CanApprove, s.reviewer))
		s.True(check(s.service.CanApprove, s.sector))
		s.False(check(s.service.CanApprove, s.owner))
		s.False(check(s.service.CanApprove, s.admin))
		s.False(check(s.service.CanApprove, id.SystemActor))
	})
}

func (s *ServiceSuite) TestDirectory() {
	ctx := context.Background()

	owners, err := s.service.UnitOwners(ctx, s.unit)
	s.Require().NoError(err)
	s.Equal([]Recipient{{ActorID: s.owner, Contact: "owner@school.test"}}, owners)

	sectors, err := s.service.SectorAdmins(ctx)
	s.Require().NoError(err)
	s.Len(sectors, 1, "one entry per actor across units")

	admins, err := s.service.UnitAdmins(ctx)
	s.Require().NoError(err)
	s.Equal([]Recipient{{ActorID: s.admin, Contact: "admin@school.test"}}, admins)
}

func (s *ServiceSuite) TestParseSeed() {
	actor, unit := uuid.New(), uuid.New()
	doc := "memberships:\n" +
		"  - actor: " + actor.String() + "\n" +
		"    unit: " + unit.String() + "\n" +
		"    role: reviewer\n" +
		"    contact: r@x.test\n"

	ms, err := ParseSeed([]byte(doc))
	s.Require().NoError(err)
	s.Equal([]Membership{{ActorID: id.ActorID(actor), UnitID: id.UnitID(unit), Role: RoleReviewer, Contact: "r@x.test"}}, ms)

	_, err = ParseSeed([]byte("memberships:\n  - actor: " + actor.String() + "\n    unit: " + unit.String() + "\n    role: janitor\n"))
	s.Require().Error(err)
	s.Contains(err.Error(), `unknown role "janitor"`)
}

package sweeper

//go:generate mockgen -source=sweeper.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"collecta/internal/catalog"
	"collecta/internal/entry/models"
	"collecta/internal/entry/store"
	"collecta/internal/membership"
	"collecta/internal/notify"
	"collecta/internal/platform/config"
	"collecta/internal/sweeper/mocks"
	"collecta/internal/workflow"
	id "collecta/pkg/domain"
	"collecta/pkg/platform/audit"
	"collecta/pkg/requestcontext"
)

type SweeperSuite struct {
	suite.Suite
	now      time.Time
	clock    *clockwork.FakeClock
	entries  *store.InMemoryStore
	members  *membership.InMemoryStore
	notifier *notify.Recorder
	metrics  *Metrics
	cfg      config.SweeperConfig

	owner       id.ActorID
	unitAdmin   id.ActorID
	sectorAdmin id.ActorID
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	ctx := context.Background()
	s.now = time.Date(2026, 10, 20, 9, 30, 0, 0, time.UTC)
	s.clock = clockwork.NewFakeClockAt(s.now)
	s.entries = store.NewInMemoryStore()
	s.members = membership.NewInMemoryStore()
	s.notifier = notify.NewRecorder()
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.cfg = config.SweeperConfig{
		Interval:    time.Hour,
		WarningDays: []int{3, 1},
		GracePeriod: 15 * time.Minute,
		Concurrency: 2,
		LedgerTTL:   48 * time.Hour,
		Location:    time.UTC,
	}

	s.owner = id.ActorID(uuid.New())
	s.unitAdmin = id.ActorID(uuid.New())
	s.sectorAdmin = id.ActorID(uuid.New())
	s.Require().NoError(s.members.Add(ctx, membership.Membership{
		ActorID: s.unitAdmin, UnitID: id.UnitID(uuid.New()), Role: membership.RoleUnitAdmin, Contact: "units@collecta.test",
	}))
	s.Require().NoError(s.members.Add(ctx, membership.Membership{
		ActorID: s.sectorAdmin, UnitID: id.UnitID(uuid.New()), Role: membership.RoleSectorAdmin, Contact: "sectors@collecta.test",
	}))
}

func category(categoryID id.CategoryID, deadline time.Time, scope catalog.AssignmentScope) catalog.Category {
	return catalog.Category{
		ID:       categoryID,
		Name:     "Category " + string(categoryID),
		Scope:    scope,
		Deadline: &deadline,
		Active:   true,
		Fields: []catalog.Field{
			{ID: "students", Kind: catalog.NumberKind{}, Required: true},
		},
	}
}

// build wires a real workflow over the in-memory stores.
func (s *SweeperSuite) build(categories ...catalog.Category) (*Sweeper, *workflow.Service) {
	cat, err := catalog.New(categories...)
	s.Require().NoError(err)
	authority, err := membership.New(s.members)
	s.Require().NoError(err)
	wf, err := workflow.New(s.entries, cat, authority)
	s.Require().NoError(err)
	sw, err := New(cat, wf, authority, s.notifier, NewMemoryLedger(s.clock), s.cfg,
		WithClock(s.clock),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	return sw, wf
}

// group creates a draft for a fresh unit, submitting it when submit is set.
func (s *SweeperSuite) group(wf *workflow.Service, categoryID id.CategoryID, submit bool) models.GroupKey {
	key := models.GroupKey{UnitID: id.UnitID(uuid.New()), CategoryID: categoryID}
	s.Require().NoError(s.members.Add(context.Background(), membership.Membership{
		ActorID: s.owner, UnitID: key.UnitID, Role: membership.RoleOwner,
	}))
	ctx := requestcontext.WithTime(requestcontext.WithActor(context.Background(), s.owner), s.now.Add(-72*time.Hour))
	_, err := wf.SaveDraft(ctx, key, map[id.FieldID]string{"students": "120"})
	s.Require().NoError(err)
	if submit {
		_, _, err = wf.Submit(ctx, key)
		s.Require().NoError(err)
	}
	return key
}

func (s *SweeperSuite) status(key models.GroupKey) *models.Group {
	group, err := s.entries.FetchGroup(context.Background(), key)
	s.Require().NoError(err)
	return group
}

// =============================================================================
// Expiration
// =============================================================================

func (s *SweeperSuite) TestExpiredDeadlineForceApprovesPendingGroups() {
	sw, wf := s.build(category("census", s.now.Add(-24*time.Hour), catalog.ScopeAll))
	pending := s.group(wf, "census", true)
	draft := s.group(wf, "census", false)

	report, err := sw.Run(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.ForceApproved)
	s.Equal(1, report.Expirations)

	group := s.status(pending)
	s.Equal(models.StatusApproved, group.Status)
	for _, rec := range group.Records {
		s.Nil(rec.ApprovedBy)
		s.Require().NotNil(rec.ApprovedAt)
		s.True(rec.ApprovedAt.Equal(s.now))
	}
	s.Equal(models.StatusDraft, s.status(draft).Status)

	sent := s.notifier.OfKind(notify.KindDeadlineExpired)
	s.Require().Len(sent, 1)
	s.Equal(s.unitAdmin, sent[0].Recipients[0].ActorID)
	s.Equal("census", sent[0].Data["category_id"])
	s.Equal("1", sent[0].Data["force_approved"])
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ForceApprovals.WithLabelValues("census")))
}

func (s *SweeperSuite) TestSecondPassSameDayIsNoOp() {
	sw, wf := s.build(category("census", s.now.Add(-time.Hour), catalog.ScopeAll))
	key := s.group(wf, "census", true)

	_, err := sw.Run(context.Background())
	s.Require().NoError(err)
	s.clock.Advance(time.Hour)
	report, err := sw.Run(context.Background())
	s.Require().NoError(err)

	s.Equal(0, report.ForceApproved)
	s.Equal(0, report.Expirations)
	s.Equal(1, report.Deduplicated)
	s.Len(s.notifier.OfKind(notify.KindDeadlineExpired), 1)
	s.Equal(models.StatusApproved, s.status(key).Status)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Notifications.WithLabelValues(string(notify.KindDeadlineExpired), "deduplicated")))
}

func (s *SweeperSuite) TestLaterDaysStayQuietWithoutPendingGroups() {
	sw, wf := s.build(category("census", s.now.Add(-24*time.Hour), catalog.ScopeAll))
	s.group(wf, "census", true)

	_, err := sw.Run(context.Background())
	s.Require().NoError(err)
	s.clock.Advance(24 * time.Hour)
	report, err := sw.Run(context.Background())
	s.Require().NoError(err)

	s.Zero(report.Expirations)
	s.Zero(report.Deduplicated)
	s.Len(s.notifier.OfKind(notify.KindDeadlineExpired), 1)
}

func (s *SweeperSuite) TestGracePeriodDefersForceApproval() {
	sw, wf := s.build(category("census", s.now.Add(-5*time.Minute), catalog.ScopeAll))
	key := s.group(wf, "census", true)

	report, err := sw.Run(context.Background())
	s.Require().NoError(err)
	s.Zero(report.ForceApproved)
	s.Equal(models.StatusPending, s.status(key).Status)
	s.Empty(s.notifier.Sent())

	s.clock.Advance(10 * time.Minute)
	report, err = sw.Run(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.ForceApproved)
	s.Equal(models.StatusApproved, s.status(key).Status)
	s.Len(s.notifier.OfKind(notify.KindDeadlineExpired), 1)
}

func (s *SweeperSuite) TestDeadlineDayNotifiesEvenWithNothingPending() {
	sw, _ := s.build(category("census", s.now.Add(-time.Hour), catalog.ScopeAll))

	report, err := sw.Run(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.Expirations)
	sent := s.notifier.OfKind(notify.KindDeadlineExpired)
	s.Require().Len(sent, 1)
	s.Equal("0", sent[0].Data["force_approved"])
}

// =============================================================================
// Warnings
// =============================================================================

func (s *SweeperSuite) TestWarningsAtThreeAndOneDays() {
	sw, _ := s.build(category("census", s.now.Add(3*24*time.Hour-time.Hour), catalog.ScopeAll))

	s.Run("three days out warns once per day", func() {
		report, err := sw.Run(context.Background())
		s.Require().NoError(err)
		s.Equal(1, report.Warnings)

		s.clock.Advance(2 * time.Hour)
		report, err = sw.Run(context.Background())
		s.Require().NoError(err)
		s.Zero(report.Warnings)
		s.Equal(1, report.Deduplicated)

		sent := s.notifier.OfKind(notify.KindDeadlineWarning)
		s.Require().Len(sent, 1)
		s.Equal("3", sent[0].Data["days_remaining"])
	})

	s.Run("two days out is silent", func() {
		s.clock.Advance(22 * time.Hour)
		report, err := sw.Run(context.Background())
		s.Require().NoError(err)
		s.Zero(report.Warnings)
		s.Len(s.notifier.OfKind(notify.KindDeadlineWarning), 1)
	})

	s.Run("one day out warns again", func() {
		s.clock.Advance(24 * time.Hour)
		report, err := sw.Run(context.Background())
		s.Require().NoError(err)
		s.Equal(1, report.Warnings)
		sent := s.notifier.OfKind(notify.KindDeadlineWarning)
		s.Require().Len(sent, 2)
		s.Equal("1", sent[1].Data["days_remaining"])
	})
}

func (s *SweeperSuite) TestSectorScopeWarnsSectorAdmins() {
	sw, _ := s.build(category("budget", s.now.Add(12*time.Hour), catalog.ScopeSectorsOnly))

	_, err := sw.Run(context.Background())
	s.Require().NoError(err)
	sent := s.notifier.OfKind(notify.KindDeadlineWarning)
	s.Require().Len(sent, 1)
	s.Require().Len(sent[0].Recipients, 1)
	s.Equal(s.sectorAdmin, sent[0].Recipients[0].ActorID)
	s.Equal("sectors@collecta.test", sent[0].Recipients[0].Contact)
}

func (s *SweeperSuite) TestFailedNotificationIsRetriedNextPass() {
	sw, _ := s.build(category("census", s.now.Add(12*time.Hour), catalog.ScopeAll))
	s.notifier.FailWith(notify.KindDeadlineWarning, errors.New("broker down"))

	report, err := sw.Run(context.Background())
	s.Require().Error(err)
	s.Equal(1, report.Failed)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Notifications.WithLabelValues(string(notify.KindDeadlineWarning), "failed")))

	s.notifier.FailWith(notify.KindDeadlineWarning, nil)
	report, err = sw.Run(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.Warnings)
	s.Len(s.notifier.OfKind(notify.KindDeadlineWarning), 1)
}

func (s *SweeperSuite) TestFailedExpirationNoticeIsRetriedAfterDeadlineDay() {
	sw, wf := s.build(category("census", s.now.Add(-24*time.Hour), catalog.ScopeAll))
	key := s.group(wf, "census", true)
	s.notifier.FailWith(notify.KindDeadlineExpired, errors.New("broker down"))

	report, err := sw.Run(context.Background())
	s.Require().Error(err)
	s.Equal(1, report.ForceApproved)
	s.Zero(report.Expirations)
	s.Equal(models.StatusApproved, s.status(key).Status)

	s.notifier.FailWith(notify.KindDeadlineExpired, nil)
	s.clock.Advance(time.Hour)
	report, err = sw.Run(context.Background())
	s.Require().NoError(err)
	s.Zero(report.ForceApproved)
	s.Equal(1, report.Expirations)
	s.Len(s.notifier.OfKind(notify.KindDeadlineExpired), 1)

	s.Run("notice is not repeated once delivered", func() {
		s.clock.Advance(24 * time.Hour)
		report, err := sw.Run(context.Background())
		s.Require().NoError(err)
		s.Zero(report.Expirations)
		s.Len(s.notifier.OfKind(notify.KindDeadlineExpired), 1)
	})
}

func (s *SweeperSuite) TestLateApprovalsOnDeadlineDayAreNotifiedNextDay() {
	sw, wf := s.build(category("census", s.now.Add(-time.Hour), catalog.ScopeAll))

	report, err := sw.Run(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.Expirations)

	// A group still pending from a lost race is closed by a later pass the
	// same day, after that day's notice already went out.
	s.group(wf, "census", true)
	s.clock.Advance(time.Hour)
	report, err = sw.Run(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.ForceApproved)
	s.Equal(1, report.Deduplicated)

	s.clock.Advance(24 * time.Hour)
	report, err = sw.Run(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.Expirations)
	s.Len(s.notifier.OfKind(notify.KindDeadlineExpired), 2)
}

// =============================================================================
// Failure isolation (mocked collaborators)
// =============================================================================

func (s *SweeperSuite) TestCategoryFailureDoesNotAbortPass() {
	ctrl := gomock.NewController(s.T())
	cats := mocks.NewMockCatalog(ctrl)
	wf := mocks.NewMockWorkflow(ctrl)
	dir := mocks.NewMockDirectory(ctrl)

	broken := category("broken", s.now.Add(-48*time.Hour), catalog.ScopeAll)
	healthy := category("healthy", s.now.Add(-48*time.Hour), catalog.ScopeAll)
	key := models.GroupKey{UnitID: id.UnitID(uuid.New()), CategoryID: "healthy"}

	cats.EXPECT().ActiveWithDeadline().Return([]*catalog.Category{&broken, &healthy})
	wf.EXPECT().ListPending(gomock.Any(), id.CategoryID("broken")).Return(nil, errors.New("connection reset"))
	wf.EXPECT().ListPending(gomock.Any(), id.CategoryID("healthy")).Return([]models.GroupKey{key}, nil)
	wf.EXPECT().ForceApprove(gomock.Any(), key).Return(true, nil)
	dir.EXPECT().UnitAdmins(gomock.Any()).Return([]membership.Recipient{{ActorID: s.unitAdmin}}, nil)

	sw, err := New(cats, wf, dir, s.notifier, NewMemoryLedger(s.clock), s.cfg, WithClock(s.clock), WithMetrics(s.metrics))
	s.Require().NoError(err)

	report, err := sw.Run(context.Background())
	s.Require().Error(err)
	var catErr *CategoryError
	s.Require().ErrorAs(err, &catErr)
	s.Equal(id.CategoryID("broken"), catErr.CategoryID)
	s.Contains(err.Error(), "connection reset")

	s.Equal(2, report.Categories)
	s.Equal(1, report.Failed)
	s.Equal(1, report.ForceApproved)
	sent := s.notifier.OfKind(notify.KindDeadlineExpired)
	s.Require().Len(sent, 1)
	s.Equal("healthy", sent[0].Data["category_id"])
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CategoryErrors.WithLabelValues("broken")))
}

func (s *SweeperSuite) TestGroupFailureKeepsApprovingOthers() {
	ctrl := gomock.NewController(s.T())
	cats := mocks.NewMockCatalog(ctrl)
	wf := mocks.NewMockWorkflow(ctrl)
	dir := mocks.NewMockDirectory(ctrl)

	census := category("census", s.now.Add(-48*time.Hour), catalog.ScopeAll)
	first := models.GroupKey{UnitID: id.UnitID(uuid.New()), CategoryID: "census"}
	second := models.GroupKey{UnitID: id.UnitID(uuid.New()), CategoryID: "census"}

	cats.EXPECT().ActiveWithDeadline().Return([]*catalog.Category{&census})
	wf.EXPECT().ListPending(gomock.Any(), id.CategoryID("census")).Return([]models.GroupKey{first, second}, nil)
	wf.EXPECT().ForceApprove(gomock.Any(), first).Return(false, &models.PersistenceError{Op: "transition group", Err: errors.New("timeout")})
	wf.EXPECT().ForceApprove(gomock.Any(), second).Return(true, nil)

	dir.EXPECT().UnitAdmins(gomock.Any()).Return([]membership.Recipient{{ActorID: s.unitAdmin}}, nil)

	sw, err := New(cats, wf, dir, s.notifier, NewMemoryLedger(s.clock), s.cfg, WithClock(s.clock))
	s.Require().NoError(err)

	report, err := sw.Run(context.Background())
	s.Require().Error(err)
	var persist *models.PersistenceError
	s.ErrorAs(err, &persist)
	s.Equal(1, report.ForceApproved)
	s.Equal(1, report.Expirations)
	sent := s.notifier.OfKind(notify.KindDeadlineExpired)
	s.Require().Len(sent, 1)
	s.Equal("1", sent[0].Data["force_approved"])
}

func (s *SweeperSuite) TestExpirationIsAudited() {
	ctrl := gomock.NewController(s.T())
	auditor := mocks.NewMockAuditPublisher(ctrl)
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(audit.EventDeadlineExpired, e.Action)
		s.Equal(id.CategoryID("census"), e.CategoryID)
		s.True(e.ActorID.IsSystem())
		s.True(e.Timestamp.Equal(s.now))
		return nil
	})

	cat, err := catalog.New(category("census", s.now.Add(-time.Hour), catalog.ScopeAll))
	s.Require().NoError(err)
	authority, err := membership.New(s.members)
	s.Require().NoError(err)
	wf, err := workflow.New(s.entries, cat, authority)
	s.Require().NoError(err)
	sw, err := New(cat, wf, authority, s.notifier, NewMemoryLedger(s.clock), s.cfg,
		WithClock(s.clock),
		WithAuditPublisher(auditor),
	)
	s.Require().NoError(err)

	_, err = sw.Run(context.Background())
	s.Require().NoError(err)
}

// =============================================================================
// Construction and day math
// =============================================================================

func TestNewRequiresCollaborators(t *testing.T) {
	cat, err := catalog.New()
	if err != nil {
		t.Fatal(err)
	}
	ledger := NewMemoryLedger(nil)
	notifier := notify.NewRecorder()
	authority, _ := membership.New(membership.NewInMemoryStore())

	_, err = New(nil, nil, authority, notifier, ledger, config.SweeperConfig{})
	assert.EqualError(t, err, "catalog is required")
	_, err = New(cat, nil, authority, notifier, ledger, config.SweeperConfig{})
	assert.EqualError(t, err, "workflow is required")
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		deadline time.Time
		want     int
	}{
		{"exactly three days", now.Add(72 * time.Hour), 3},
		{"just under three days", now.Add(71 * time.Hour), 3},
		{"just over two days", now.Add(49 * time.Hour), 3},
		{"exactly two days", now.Add(48 * time.Hour), 2},
		{"one hour", now.Add(time.Hour), 1},
		{"now", now, 0},
		{"one hour ago", now.Add(-time.Hour), 0},
		{"one day ago", now.Add(-24 * time.Hour), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysRemaining(tt.deadline, now))
		})
	}
}

func TestLedgerKeyUsesLocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	at := time.Date(2026, 10, 21, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "deadline_warning:census:2026-10-20", ledgerKey(notify.KindDeadlineWarning, "census", at.In(loc)))
}

package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "collecta/pkg/domain"
)

const interval = 2 * time.Second

type fakeRepo struct {
	mu        sync.Mutex
	calls     []map[id.FieldID]string
	err       error
	gate      chan struct{}
	entered   chan struct{}
	active    int
	maxActive int
}

func (r *fakeRepo) flush(ctx context.Context, values map[id.FieldID]string) error {
	r.mu.Lock()
	r.active++
	r.maxActive = max(r.maxActive, r.active)
	r.calls = append(r.calls, values)
	gate, entered, err := r.gate, r.entered, r.err
	r.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	return err
}

func (r *fakeRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type harness struct {
	clock    *clockwork.FakeClock
	repo     *fakeRepo
	coord    *Coordinator
	outcomes chan Outcome
	metrics  *Metrics
}

func newHarness(t *testing.T, repo *fakeRepo, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:    clockwork.NewFakeClockAt(t0),
		repo:     repo,
		outcomes: make(chan Outcome, 16),
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	opts = append([]Option{
		WithClock(h.clock),
		WithMetrics(h.metrics),
		WithOnFlush(func(o Outcome, _ error) { h.outcomes <- o }),
	}, opts...)
	coord, err := NewCoordinator(context.Background(), repo.flush, interval, 2, opts...)
	require.NoError(t, err)
	h.coord = coord
	t.Cleanup(coord.Close)
	return h
}

func (h *harness) waitOutcome(t *testing.T) Outcome {
	t.Helper()
	select {
	case o := <-h.outcomes:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
		return ""
	}
}

func (h *harness) assertNoFlush(t *testing.T) {
	t.Helper()
	select {
	case o := <-h.outcomes:
		t.Fatalf("unexpected flush: %s", o)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoordinatorDebouncesEdits(t *testing.T) {
	h := newHarness(t, &fakeRepo{})

	require.NoError(t, h.coord.Edit("students", "1"))
	h.clock.Advance(time.Second)
	require.NoError(t, h.coord.Edit("students", "12"))
	require.NoError(t, h.coord.Edit("has_lab", "no"))
	h.clock.Advance(time.Second)
	h.assertNoFlush(t)

	h.clock.Advance(time.Second)
	assert.Equal(t, OutcomePersisted, h.waitOutcome(t))
	require.Equal(t, 1, h.repo.callCount())
	assert.Equal(t, map[id.FieldID]string{"students": "12", "has_lab": "no"}, h.repo.calls[0])
	assert.False(t, h.coord.State().PendingChanges)
	assert.Equal(t, t0.Add(3*time.Second), h.coord.State().LastSaveTime)
}

func TestCoordinatorSkipsUnchangedSnapshot(t *testing.T) {
	h := newHarness(t, &fakeRepo{})

	require.NoError(t, h.coord.Edit("students", "12"))
	h.clock.Advance(interval)
	assert.Equal(t, OutcomePersisted, h.waitOutcome(t))

	require.NoError(t, h.coord.Edit("students", "12"))
	h.clock.Advance(interval)
	assert.Equal(t, OutcomeSkipped, h.waitOutcome(t))
	assert.Equal(t, 1, h.repo.callCount(), "second flush makes no repository call")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Flushes.WithLabelValues("skipped")))
}

func TestCoordinatorInitialValuesAreTreatedAsPersisted(t *testing.T) {
	h := newHarness(t, &fakeRepo{}, WithInitialValues(map[id.FieldID]string{"students": "12"}))

	require.NoError(t, h.coord.Save(context.Background()))
	assert.Equal(t, OutcomeSkipped, h.waitOutcome(t))
	assert.Zero(t, h.repo.callCount())
}

func TestCoordinatorFlushesOnlyEditedFields(t *testing.T) {
	h := newHarness(t, &fakeRepo{}, WithInitialValues(map[id.FieldID]string{"students": "20", "has_lab": "no"}))

	require.NoError(t, h.coord.Edit("principal_email", "head@school.test"))
	require.NoError(t, h.coord.Save(context.Background()))
	assert.Equal(t, OutcomePersisted, h.waitOutcome(t))

	require.NoError(t, h.coord.Edit("has_lab", "yes"))
	require.NoError(t, h.coord.Save(context.Background()))
	assert.Equal(t, OutcomePersisted, h.waitOutcome(t))

	require.Equal(t, 2, h.repo.callCount())
	assert.Equal(t, map[id.FieldID]string{"principal_email": "head@school.test"}, h.repo.calls[0])
	assert.Equal(t, map[id.FieldID]string{"has_lab": "yes"}, h.repo.calls[1])
	assert.Equal(t, "20", h.coord.Values()["students"])
}

func TestCoordinatorKeepsDirtyFieldsAfterFailure(t *testing.T) {
	repo := &fakeRepo{err: errors.New("connection refused")}
	h := newHarness(t, repo)

	require.NoError(t, h.coord.Edit("students", "12"))
	assert.Error(t, h.coord.Save(context.Background()))
	assert.Equal(t, OutcomeFailed, h.waitOutcome(t))

	repo.mu.Lock()
	repo.err = nil
	repo.mu.Unlock()
	require.NoError(t, h.coord.Edit("has_lab", "no"))
	require.NoError(t, h.coord.Save(context.Background()))
	assert.Equal(t, OutcomePersisted, h.waitOutcome(t))

	require.Equal(t, 2, repo.callCount())
	assert.Equal(t, map[id.FieldID]string{"students": "12", "has_lab": "no"}, repo.calls[1])
}

func TestCoordinatorRetriesFailedFlushOnNextTick(t *testing.T) {
	repo := &fakeRepo{err: errors.New("connection refused")}
	h := newHarness(t, repo)

	require.NoError(t, h.coord.Edit("students", "12"))
	h.clock.Advance(interval)
	assert.Equal(t, OutcomeFailed, h.waitOutcome(t))
	st := h.coord.State()
	assert.Equal(t, 1, st.AttemptCount)
	assert.True(t, st.PendingChanges)
	assert.False(t, st.ManualSaveSuggested)
	assert.Equal(t, "12", h.coord.Values()["students"], "local edits are kept")

	h.clock.Advance(interval)
	assert.Equal(t, OutcomeFailed, h.waitOutcome(t))
	assert.True(t, h.coord.State().ManualSaveSuggested)

	repo.mu.Lock()
	repo.err = nil
	repo.mu.Unlock()
	h.clock.Advance(interval)
	assert.Equal(t, OutcomePersisted, h.waitOutcome(t))
	assert.Equal(t, 3, repo.callCount())
	assert.Zero(t, h.coord.State().AttemptCount)
}

func TestCoordinatorNeverRunsConcurrentFlushes(t *testing.T) {
	repo := &fakeRepo{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	h := newHarness(t, repo)

	require.NoError(t, h.coord.Edit("students", "12"))
	h.clock.Advance(interval)
	<-repo.entered

	require.NoError(t, h.coord.Edit("students", "13"))
	h.clock.Advance(interval)
	assert.Equal(t, 1, repo.callCount())
	assert.True(t, h.coord.State().InFlight)

	repo.gate <- struct{}{}
	assert.Equal(t, OutcomePersisted, h.waitOutcome(t))
	assert.True(t, h.coord.State().PendingChanges)

	h.clock.Advance(interval)
	<-repo.entered
	repo.gate <- struct{}{}
	assert.Equal(t, OutcomePersisted, h.waitOutcome(t))

	assert.Equal(t, 2, repo.callCount())
	assert.Equal(t, 1, repo.maxActive)
	assert.Equal(t, "13", repo.calls[1]["students"])
}

func TestCoordinatorSaveBypassesDebounce(t *testing.T) {
	h := newHarness(t, &fakeRepo{})

	require.NoError(t, h.coord.Edit("students", "12"))
	require.NoError(t, h.coord.Save(context.Background()))
	assert.Equal(t, OutcomePersisted, h.waitOutcome(t))
	assert.Equal(t, 1, h.repo.callCount())

	h.clock.Advance(interval)
	h.assertNoFlush(t)
}

func TestCoordinatorSaveReturnsFlushError(t *testing.T) {
	boom := errors.New("store down")
	h := newHarness(t, &fakeRepo{err: boom})

	require.NoError(t, h.coord.Edit("students", "12"))
	err := h.coord.Save(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, OutcomeFailed, h.waitOutcome(t))
}

func TestCoordinatorCloseCancelsArmedTimer(t *testing.T) {
	h := newHarness(t, &fakeRepo{})

	require.NoError(t, h.coord.Edit("students", "12"))
	h.coord.Close()
	h.clock.Advance(interval)
	h.assertNoFlush(t)
	assert.Zero(t, h.repo.callCount())

	assert.ErrorIs(t, h.coord.Edit("students", "13"), ErrClosed)
	assert.ErrorIs(t, h.coord.Save(context.Background()), ErrClosed)
}

func TestCoordinatorCloseLetsInFlightFlushFinish(t *testing.T) {
	repo := &fakeRepo{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	h := newHarness(t, repo)

	require.NoError(t, h.coord.Edit("students", "12"))
	h.clock.Advance(interval)
	<-repo.entered

	closed := make(chan struct{})
	go func() {
		h.coord.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("close returned before the in-flight flush resolved")
	case <-time.After(50 * time.Millisecond):
	}
	repo.gate <- struct{}{}
	<-closed
	assert.Equal(t, OutcomePersisted, h.waitOutcome(t))
}

func TestNewCoordinatorValidatesArguments(t *testing.T) {
	_, err := NewCoordinator(context.Background(), nil, interval, 2)
	assert.Error(t, err)
	_, err = NewCoordinator(context.Background(), (&fakeRepo{}).flush, 0, 2)
	assert.Error(t, err)
}

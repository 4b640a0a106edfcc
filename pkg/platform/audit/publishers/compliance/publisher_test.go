package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "collecta/pkg/domain"
	audit "collecta/pkg/platform/audit"
	"collecta/pkg/platform/audit/store/memory"
)

type failingStore struct {
	audit.Store
	err error
}

func (f failingStore) Append(context.Context, audit.Event) error { return f.err }

func TestEmitFillsDerivedFields(t *testing.T) {
	store := memory.NewInMemoryStore()
	metrics := NewMetrics(prometheus.NewRegistry())
	pub := New(store, WithMetrics(metrics))

	unit := id.UnitID(uuid.New())
	err := pub.Emit(context.Background(), audit.Event{
		Action:     audit.EventEntryApproved,
		UnitID:     unit,
		CategoryID: "census",
		FromStatus: "pending",
		ToStatus:   "approved",
	})
	require.NoError(t, err)

	events, err := store.ListByGroup(context.Background(), unit, "census")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsEmitted.WithLabelValues("compliance")))
}

func TestEmitRejectsIncompleteEvents(t *testing.T) {
	pub := New(memory.NewInMemoryStore())
	assert.Error(t, pub.Emit(context.Background(), audit.Event{CategoryID: "census"}))
	assert.Error(t, pub.Emit(context.Background(), audit.Event{Action: audit.EventEntrySubmitted}))
}

func TestEmitFailsClosed(t *testing.T) {
	boom := errors.New("disk full")
	metrics := NewMetrics(prometheus.NewRegistry())
	pub := New(failingStore{err: boom}, WithMetrics(metrics))

	err := pub.Emit(context.Background(), audit.Event{Action: audit.EventEntryRejected, CategoryID: "census"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PersistFailures))
}

func TestListRecentOrdersNewestFirst(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(store)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i, action := range []audit.AuditEvent{audit.EventEntrySubmitted, audit.EventEntryRejected, audit.EventEntryReopened} {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{
			Action:     action,
			CategoryID: "census",
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	recent, err := store.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, audit.EventEntryReopened, recent[0].Action)
	assert.Equal(t, audit.EventEntryRejected, recent[1].Action)
	assert.Equal(t, audit.CategoryOperations, recent[0].Category)
}

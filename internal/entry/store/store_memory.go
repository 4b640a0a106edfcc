package store

import (
	"context"
	"sort"
	"sync"

	"collecta/internal/entry/models"
	id "collecta/pkg/domain"
)

// InMemoryStore keeps entry records in process memory. Each call is atomic
// with respect to the others, which matches the Postgres store's per-group
// serialization.
type InMemoryStore struct {
	mu     sync.RWMutex
	groups map[models.GroupKey]map[id.FieldID]*models.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{groups: make(map[models.GroupKey]map[id.FieldID]*models.Record)}
}

// Upsert writes draft values. Unchanged values are left untouched so a
// replayed call has no observable effect.
func (s *InMemoryStore) Upsert(_ context.Context, in models.UpsertInput) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.groups[in.Key]
	if err := checkWritable(in.Key, statusOf(recs)); err != nil {
		return nil, err
	}
	if len(in.Values) == 0 {
		return snapshot(in.Key, recs), nil
	}
	if recs == nil {
		recs = make(map[id.FieldID]*models.Record, len(in.Values))
		s.groups[in.Key] = recs
	}
	for fieldID, value := range in.Values {
		if rec, ok := recs[fieldID]; ok {
			if rec.Value == value {
				continue
			}
			rec.Value = value
			rec.UpdatedAt = in.Now
			rec.UpdatedBy = in.Actor
			continue
		}
		recs[fieldID] = &models.Record{
			UnitID:     in.Key.UnitID,
			CategoryID: in.Key.CategoryID,
			FieldID:    fieldID,
			Value:      value,
			Status:     models.StatusDraft,
			CreatedAt:  in.Now,
			UpdatedAt:  in.Now,
			CreatedBy:  in.Actor,
			UpdatedBy:  in.Actor,
		}
	}
	return snapshot(in.Key, recs), nil
}

func (s *InMemoryStore) FetchGroup(_ context.Context, key models.GroupKey) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(key, s.groups[key]), nil
}

func (s *InMemoryStore) ListPendingByCategory(_ context.Context, categoryID id.CategoryID) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Record
	for key, recs := range s.groups {
		if key.CategoryID != categoryID {
			continue
		}
		for _, rec := range recs {
			if rec.Status == models.StatusPending {
				out = append(out, *rec)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitID != out[j].UnitID {
			return out[i].UnitID.String() < out[j].UnitID.String()
		}
		return out[i].FieldID < out[j].FieldID
	})
	return out, nil
}

// TransitionGroup moves every record still in t.From to t.To and reports how
// many changed.
func (s *InMemoryStore) TransitionGroup(_ context.Context, key models.GroupKey, t models.Transition) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.groups[key] {
		if rec.Status != t.From {
			continue
		}
		applyTransition(rec, t)
		n++
	}
	return n, nil
}

func applyTransition(rec *models.Record, t models.Transition) {
	at := t.At
	rec.Status = t.To
	rec.UpdatedAt = at
	switch t.To {
	case models.StatusPending:
		rec.SubmittedAt = &at
	case models.StatusApproved:
		rec.ApprovedAt = &at
		rec.ApprovedBy = copyActor(t.Actor)
	case models.StatusRejected:
		rec.RejectedAt = &at
		rec.RejectedBy = copyActor(t.Actor)
		rec.RejectionReason = t.Reason
	}
}

func copyActor(a *id.ActorID) *id.ActorID {
	if a == nil {
		return nil
	}
	v := *a
	return &v
}

func statusOf(recs map[id.FieldID]*models.Record) models.Status {
	for _, rec := range recs {
		return rec.Status
	}
	return models.StatusDraft
}

func snapshot(key models.GroupKey, recs map[id.FieldID]*models.Record) *models.Group {
	out := make([]models.Record, 0, len(recs))
	for _, rec := range recs {
		cp := *rec
		cp.ApprovedBy = copyActor(rec.ApprovedBy)
		cp.RejectedBy = copyActor(rec.RejectedBy)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldID < out[j].FieldID })
	return models.NewGroup(key, out)
}

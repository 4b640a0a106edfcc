package workflow

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"collecta/internal/catalog"
	"collecta/internal/entry/models"
	"collecta/internal/notify"
	"collecta/internal/validation"
	id "collecta/pkg/domain"
	dErrors "collecta/pkg/domain-errors"
	"collecta/pkg/platform/audit"
	"collecta/pkg/requestcontext"
)

const (
	actionEdit    = "edit"
	actionApprove = "approve"
)

// Group returns the stored group for key. An untouched group reads as an
// empty draft.
func (s *Service) Group(ctx context.Context, key models.GroupKey) (*models.Group, error) {
	if _, err := s.catalog.Category(key.CategoryID); err != nil {
		return nil, err
	}
	group, err := s.store.FetchGroup(ctx, key)
	if err != nil {
		return nil, persistenceErr("fetch group", err)
	}
	return group, nil
}

// Validate runs the validation engine over values without persisting them.
func (s *Service) Validate(_ context.Context, categoryID id.CategoryID, values map[id.FieldID]string) (validation.Result, error) {
	cat, err := s.catalog.Category(categoryID)
	if err != nil {
		return validation.Result{}, err
	}
	if err := checkKnownFields(cat, values); err != nil {
		return validation.Result{}, err
	}
	return validation.Validate(cat, values), nil
}

// SaveDraft writes values into an editable group. A rejected group is
// reopened to draft first; its rejection reason stays on the records.
func (s *Service) SaveDraft(ctx context.Context, key models.GroupKey, values map[id.FieldID]string) (*models.Group, error) {
	cat, err := s.catalog.Category(key.CategoryID)
	if err != nil {
		return nil, err
	}
	if err := checkKnownFields(cat, values); err != nil {
		return nil, err
	}
	actor := requestcontext.Actor(ctx)
	if err := s.require(ctx, actionEdit, actor, key.UnitID); err != nil {
		return nil, err
	}

	group, err := s.store.FetchGroup(ctx, key)
	if err != nil {
		return nil, persistenceErr("fetch group", err)
	}
	now := requestcontext.Now(ctx)
	switch group.Status {
	case models.StatusApproved:
		return nil, &models.ImmutableRecordError{Key: key}
	case models.StatusPending:
		return nil, &models.IllegalTransitionError{
			Key: key, From: models.StatusPending, To: models.StatusDraft,
			Reason: "group is awaiting review",
		}
	case models.StatusRejected:
		if len(values) == 0 {
			return group, nil
		}
		// A concurrent editor may have reopened already; Upsert below
		// re-checks the status either way.
		if _, err := s.transition(ctx, key, models.Transition{
			From: models.StatusRejected, To: models.StatusDraft, At: now, Actor: &actor,
		}, audit.EventEntryReopened); err != nil {
			return nil, err
		}
	}

	saved, err := s.store.Upsert(ctx, models.UpsertInput{Key: key, Values: values, Actor: actor, Now: now})
	if err != nil {
		return nil, persistenceErr("save draft", err)
	}
	return saved, nil
}

// Submit moves a draft group to pending once validation reports no errors.
// The returned result carries warnings on success and the blocking errors
// otherwise.
func (s *Service) Submit(ctx context.Context, key models.GroupKey) (*models.Group, validation.Result, error) {
	cat, err := s.catalog.Category(key.CategoryID)
	if err != nil {
		return nil, validation.Result{}, err
	}
	actor := requestcontext.Actor(ctx)
	if err := s.require(ctx, actionEdit, actor, key.UnitID); err != nil {
		return nil, validation.Result{}, err
	}

	group, err := s.store.FetchGroup(ctx, key)
	if err != nil {
		return nil, validation.Result{}, persistenceErr("fetch group", err)
	}
	switch group.Status {
	case models.StatusApproved:
		return nil, validation.Result{}, &models.ImmutableRecordError{Key: key}
	case models.StatusPending:
		return nil, validation.Result{}, &models.IllegalTransitionError{
			Key: key, From: models.StatusPending, To: models.StatusPending, Reason: "group is already submitted",
		}
	case models.StatusRejected:
		return nil, validation.Result{}, &models.IllegalTransitionError{
			Key: key, From: models.StatusRejected, To: models.StatusPending,
			Reason: "edit the group to reopen it before submitting",
		}
	}

	result := validation.Validate(cat, group.Values())
	if !result.Valid() {
		s.metrics.IncrementValidationBlocked(string(key.CategoryID))
		return group, result, result.Err()
	}
	if group.IsEmpty() {
		return nil, result, &models.IllegalTransitionError{
			Key: key, From: models.StatusDraft, To: models.StatusPending, Reason: "group has no values",
		}
	}

	changed, err := s.transition(ctx, key, models.Transition{
		From: models.StatusDraft, To: models.StatusPending, At: requestcontext.Now(ctx), Actor: &actor,
	}, audit.EventEntrySubmitted)
	if err != nil {
		return nil, result, err
	}
	if !changed {
		return nil, result, s.lostRace(ctx, key, models.StatusPending)
	}
	group, err = s.store.FetchGroup(ctx, key)
	if err != nil {
		return nil, result, persistenceErr("fetch group", err)
	}
	return group, result, nil
}

// Approve accepts a pending group on behalf of a reviewer.
func (s *Service) Approve(ctx context.Context, key models.GroupKey) (*models.Group, error) {
	return s.decide(ctx, key, models.StatusApproved, "")
}

// Reject returns a pending group to its owners. The reason is mandatory.
func (s *Service) Reject(ctx context.Context, key models.GroupKey, reason string) (*models.Group, error) {
	return s.decide(ctx, key, models.StatusRejected, strings.TrimSpace(reason))
}

func (s *Service) decide(ctx context.Context, key models.GroupKey, to models.Status, reason string) (*models.Group, error) {
	if _, err := s.catalog.Category(key.CategoryID); err != nil {
		return nil, err
	}
	actor := requestcontext.Actor(ctx)
	if err := s.require(ctx, actionApprove, actor, key.UnitID); err != nil {
		return nil, err
	}

	group, err := s.store.FetchGroup(ctx, key)
	if err != nil {
		return nil, persistenceErr("fetch group", err)
	}
	if group.Status == models.StatusApproved {
		return nil, &models.ImmutableRecordError{Key: key}
	}
	if group.Status != models.StatusPending || group.IsEmpty() {
		return nil, &models.IllegalTransitionError{
			Key: key, From: group.Status, To: to, Reason: "only submitted groups can be reviewed",
		}
	}
	if to == models.StatusRejected && reason == "" {
		return nil, &models.IllegalTransitionError{
			Key: key, From: group.Status, To: to, Reason: "a rejection reason is required",
		}
	}

	event, kind := audit.EventEntryApproved, notify.KindEntryApproved
	if to == models.StatusRejected {
		event, kind = audit.EventEntryRejected, notify.KindEntryRejected
	}
	changed, err := s.transition(ctx, key, models.Transition{
		From: models.StatusPending, To: to, At: requestcontext.Now(ctx), Actor: &actor, Reason: reason,
	}, event)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, s.lostRace(ctx, key, to)
	}

	s.notifyOwners(ctx, key, kind, reason)
	group, err = s.store.FetchGroup(ctx, key)
	if err != nil {
		return nil, persistenceErr("fetch group", err)
	}
	return group, nil
}

// ForceApprove approves a pending group as the system actor. It reports
// false when the group was no longer pending, which makes repeated sweeps
// harmless.
func (s *Service) ForceApprove(ctx context.Context, key models.GroupKey) (bool, error) {
	return s.transition(ctx, key, models.Transition{
		From: models.StatusPending, To: models.StatusApproved, At: requestcontext.Now(ctx),
	}, audit.EventEntryForceApproved)
}

// ListPending returns the keys of every pending group in a category.
func (s *Service) ListPending(ctx context.Context, categoryID id.CategoryID) ([]models.GroupKey, error) {
	records, err := s.store.ListPendingByCategory(ctx, categoryID)
	if err != nil {
		return nil, persistenceErr("list pending", err)
	}
	var keys []models.GroupKey
	seen := make(map[models.GroupKey]bool)
	for _, rec := range records {
		key := rec.Key()
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// transition applies t and records its audit event in one transaction.
// It reports whether any record changed.
func (s *Service) transition(ctx context.Context, key models.GroupKey, t models.Transition, event audit.AuditEvent) (bool, error) {
	ctx, span := tracer.Start(ctx, "workflow.transition", trace.WithAttributes(
		attribute.String("unit_id", key.UnitID.String()),
		attribute.String("category_id", string(key.CategoryID)),
		attribute.String("from", string(t.From)),
		attribute.String("to", string(t.To)),
	))
	defer span.End()
	start := time.Now()

	var changed int64
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := s.store.TransitionGroup(ctx, key, t)
		if err != nil {
			return persistenceErr("transition group", err)
		}
		changed = n
		if n == 0 || s.auditPublisher == nil {
			return nil
		}
		actor := id.SystemActor
		if t.Actor != nil {
			actor = *t.Actor
		}
		if err := s.auditPublisher.Emit(ctx, audit.Event{
			Action:     event,
			Timestamp:  t.At,
			UnitID:     key.UnitID,
			CategoryID: key.CategoryID,
			FromStatus: string(t.From),
			ToStatus:   string(t.To),
			ActorID:    actor,
			Reason:     t.Reason,
			RequestID:  requestcontext.RequestID(ctx),
		}); err != nil {
			return &models.PersistenceError{Op: "record audit event", Err: err}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveTransition(string(t.To), "failed", start)
		return false, err
	}
	if changed == 0 {
		span.SetAttributes(attribute.Bool("applied", false))
		s.metrics.ObserveTransition(string(t.To), "lost", start)
		return false, nil
	}
	s.metrics.ObserveTransition(string(t.To), "applied", start)
	attrs := []any{
		"unit_id", key.UnitID.String(),
		"category_id", string(key.CategoryID),
		"from", string(t.From),
		"to", string(t.To),
		"records", changed,
	}
	if t.Actor != nil {
		attrs = append(attrs, "actor_id", t.Actor.String())
	}
	s.logAudit(ctx, string(event), attrs...)
	return true, nil
}

// lostRace explains a compare-and-set that matched no records.
func (s *Service) lostRace(ctx context.Context, key models.GroupKey, to models.Status) error {
	group, err := s.store.FetchGroup(ctx, key)
	if err != nil {
		return persistenceErr("fetch group", err)
	}
	if group.Status == models.StatusApproved {
		return &models.ImmutableRecordError{Key: key}
	}
	return &models.IllegalTransitionError{
		Key: key, From: group.Status, To: to, Reason: "group changed concurrently",
	}
}

func (s *Service) require(ctx context.Context, action string, actor id.ActorID, unit id.UnitID) error {
	if actor.IsSystem() {
		return &models.AuthorityError{Actor: actor, UnitID: unit, Action: action}
	}
	check := s.authority.CanEdit
	if action == actionApprove {
		check = s.authority.CanApprove
	}
	ok, err := check(ctx, actor, unit)
	if err != nil {
		return persistenceErr("check authority", err)
	}
	if !ok {
		return &models.AuthorityError{Actor: actor, UnitID: unit, Action: action}
	}
	return nil
}

// notifyOwners is best effort: the transition has already committed.
func (s *Service) notifyOwners(ctx context.Context, key models.GroupKey, kind notify.Kind, reason string) {
	if s.notifier == nil || s.directory == nil {
		return
	}
	owners, err := s.directory.UnitOwners(ctx, key.UnitID)
	if err == nil {
		data := map[string]string{
			"unit_id":     key.UnitID.String(),
			"category_id": string(key.CategoryID),
		}
		if reason != "" {
			data["reason"] = reason
		}
		err = s.notifier.Notify(ctx, owners, kind, data)
	}
	if err != nil {
		s.metrics.IncrementNotificationFailure(string(kind))
		if s.logger != nil {
			s.logger.WarnContext(ctx, "owner notification failed",
				"kind", kind,
				"unit_id", key.UnitID.String(),
				"category_id", string(key.CategoryID),
				"error", err,
			)
		}
	}
}

func checkKnownFields(cat *catalog.Category, values map[id.FieldID]string) error {
	for fieldID := range values {
		if _, ok := cat.Field(fieldID); !ok {
			return dErrors.New(dErrors.CodeBadRequest, "unknown field "+string(fieldID)+" in category "+string(cat.ID))
		}
	}
	return nil
}

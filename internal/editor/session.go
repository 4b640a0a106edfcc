// Package editor binds an autosave Coordinator to the workflow for one
// (unit, category) group being edited by one actor.
package editor

import (
	"context"
	"fmt"

	"collecta/internal/autosave"
	"collecta/internal/catalog"
	"collecta/internal/entry/models"
	"collecta/internal/platform/config"
	"collecta/internal/validation"
	id "collecta/pkg/domain"
	dErrors "collecta/pkg/domain-errors"
	"collecta/pkg/requestcontext"
)

// Workflow is the subset of the workflow service a session needs.
type Workflow interface {
	Group(ctx context.Context, key models.GroupKey) (*models.Group, error)
	SaveDraft(ctx context.Context, key models.GroupKey, values map[id.FieldID]string) (*models.Group, error)
	Submit(ctx context.Context, key models.GroupKey) (*models.Group, validation.Result, error)
}

type Catalog interface {
	Category(categoryID id.CategoryID) (*catalog.Category, error)
}

// Session is an open editing surface. The context given to Open must carry
// the acting actor; timer-driven flushes run under it, and Save and Submit
// fall back to it when their context carries no actor.
type Session struct {
	key      models.GroupKey
	actor    id.ActorID
	category *catalog.Category
	workflow Workflow
	coord    *autosave.Coordinator
}

// Open loads the group and starts autosave. Only draft and rejected groups
// can be opened; the first saved edit reopens a rejected group.
func Open(ctx context.Context, wf Workflow, cat Catalog, key models.GroupKey, cfg config.AutosaveConfig, opts ...autosave.Option) (*Session, error) {
	category, err := cat.Category(key.CategoryID)
	if err != nil {
		return nil, err
	}
	group, err := wf.Group(ctx, key)
	if err != nil {
		return nil, err
	}
	switch group.Status {
	case models.StatusApproved:
		return nil, &models.ImmutableRecordError{Key: key}
	case models.StatusPending:
		return nil, &models.IllegalTransitionError{
			Key: key, From: models.StatusPending, To: models.StatusDraft, Reason: "group is awaiting review",
		}
	}

	s := &Session{key: key, actor: requestcontext.Actor(ctx), category: category, workflow: wf}
	flush := func(ctx context.Context, values map[id.FieldID]string) error {
		_, err := wf.SaveDraft(ctx, key, values)
		return err
	}
	opts = append([]autosave.Option{
		autosave.WithInitialValues(group.Values()),
		autosave.WithFlushTimeout(cfg.FlushTimeout),
	}, opts...)
	s.coord, err = autosave.NewCoordinator(ctx, flush, cfg.DebounceInterval, cfg.ManualSaveThreshold, opts...)
	if err != nil {
		return nil, fmt.Errorf("start autosave: %w", err)
	}
	return s, nil
}

func (s *Session) Key() models.GroupKey { return s.key }

// Edit changes one field locally. It never blocks on I/O.
func (s *Session) Edit(field id.FieldID, value string) error {
	if _, ok := s.category.Field(field); !ok {
		return dErrors.New(dErrors.CodeBadRequest, "unknown field "+string(field)+" in category "+string(s.key.CategoryID))
	}
	return s.coord.Edit(field, value)
}

func (s *Session) Values() map[id.FieldID]string { return s.coord.Values() }

func (s *Session) State() autosave.State { return s.coord.State() }

// Validate checks the local values without touching the repository.
func (s *Session) Validate() validation.Result {
	return validation.Validate(s.category, s.coord.Values())
}

// Save flushes immediately, bypassing the debounce window.
func (s *Session) Save(ctx context.Context) error {
	return s.coord.Save(s.actorContext(ctx))
}

// Submit flushes pending edits, then submits the group. On success the
// session closes since the group is no longer editable.
func (s *Session) Submit(ctx context.Context) (*models.Group, validation.Result, error) {
	ctx = s.actorContext(ctx)
	if err := s.coord.Save(ctx); err != nil {
		return nil, validation.Result{}, err
	}
	group, result, err := s.workflow.Submit(ctx, s.key)
	if err != nil {
		return group, result, err
	}
	s.coord.Close()
	return group, result, nil
}

func (s *Session) actorContext(ctx context.Context) context.Context {
	if requestcontext.Actor(ctx).IsSystem() {
		return requestcontext.WithActor(ctx, s.actor)
	}
	return ctx
}

// Close cancels any armed autosave and waits for an in-flight flush.
func (s *Session) Close() {
	s.coord.Close()
}

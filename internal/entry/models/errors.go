package models

import (
	"fmt"

	id "collecta/pkg/domain"
	"collecta/pkg/platform/sentinel"
)

// IllegalTransitionError reports a transition the lifecycle or its
// preconditions do not allow. Callers must re-read the group before retrying.
type IllegalTransitionError struct {
	Key    GroupKey
	From   Status
	To     Status
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	msg := fmt.Sprintf("illegal transition %s -> %s for group %s", e.From, e.To, e.Key)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *IllegalTransitionError) Unwrap() error { return sentinel.ErrInvalidState }

// ImmutableRecordError reports a write against an approved group.
type ImmutableRecordError struct {
	Key     GroupKey
	FieldID id.FieldID
}

func (e *ImmutableRecordError) Error() string {
	if e.FieldID != "" {
		return fmt.Sprintf("group %s is approved: field %s cannot change", e.Key, e.FieldID)
	}
	return fmt.Sprintf("group %s is approved and cannot change", e.Key)
}

func (e *ImmutableRecordError) Unwrap() error { return sentinel.ErrImmutable }

// PersistenceError wraps a repository failure. Writes are idempotent so the
// operation may be retried as-is.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the unavailable sentinel and the cause.
func (e *PersistenceError) Unwrap() []error { return []error{sentinel.ErrUnavailable, e.Err} }

// AuthorityError reports an actor lacking the right for a gated operation.
type AuthorityError struct {
	Actor  id.ActorID
	UnitID id.UnitID
	Action string
}

func (e *AuthorityError) Error() string {
	return fmt.Sprintf("actor %s may not %s for unit %s", e.Actor, e.Action, e.UnitID)
}

func (e *AuthorityError) Unwrap() error { return sentinel.ErrForbidden }

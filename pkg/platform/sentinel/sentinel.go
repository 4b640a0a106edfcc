package sentinel

import "errors"

// Sentinel errors for infrastructure and workflow facts. Stores return these
// (optionally wrapped) and the typed workflow errors unwrap to them, so callers
// can branch with errors.Is without knowing the concrete type:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: write lost against a concurrent writer
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrImmutable: entity reached an absorbing state and cannot change
// - ErrForbidden: actor lacks the authority for the operation
// - ErrValidation: submitted values fail field validation
// - ErrUnavailable: storage or collaborator temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrImmutable    = errors.New("immutable")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation failed")
	ErrUnavailable  = errors.New("unavailable")
)

package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "collecta/pkg/domain-errors"
)

// UnitID identifies a submission unit (e.g. a school).
type UnitID uuid.UUID

// ActorID identifies a person acting on entries. The nil ActorID is the system
// actor used by scheduled processes.
type ActorID uuid.UUID

// SystemActor is the actor recorded for transitions performed by the sweeper.
var SystemActor = ActorID(uuid.Nil)

// CategoryID is the catalog slug of a category.
type CategoryID string

// FieldID is the catalog slug of a field within a category.
type FieldID string

const maxSlugLength = 64

func (id UnitID) String() string  { return uuid.UUID(id).String() }
func (id UnitID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) String() string { return uuid.UUID(id).String() }
func (id ActorID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsSystem() bool { return id.IsNil() }

// Text encoding keeps UUID ids readable in JSON payloads.
func (id UnitID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id ActorID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UnitID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = UnitID(u)
	return nil
}

func (id *ActorID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = ActorID(u)
	return nil
}

func (id CategoryID) String() string { return string(id) }
func (id FieldID) String() string    { return string(id) }

// ParseUnitID parses a non-nil UUID unit identifier.
func ParseUnitID(s string) (UnitID, error) {
	u, err := parseUUID(s, "unit_id")
	return UnitID(u), err
}

// ParseActorID parses a non-nil UUID actor identifier. The system actor can
// never be parsed from external input.
func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s, "actor_id")
	return ActorID(u), err
}

// ParseCategoryID validates a category slug.
func ParseCategoryID(s string) (CategoryID, error) {
	slug, err := parseSlug(s, "category_id")
	return CategoryID(slug), err
}

// ParseFieldID validates a field slug.
func ParseFieldID(s string) (FieldID, error) {
	slug, err := parseSlug(s, "field_id")
	return FieldID(slug), err
}

func parseUUID(s, name string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, name+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, name+" is not a valid uuid")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, name+" cannot be nil")
	}
	return u, nil
}

// Slugs are lowercase ascii letters, digits, '_' and '-', starting with a letter.
func parseSlug(s, name string) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, name+" cannot be empty")
	}
	if len(s) > maxSlugLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, name+" is too long")
	}
	if s[0] < 'a' || s[0] > 'z' {
		return "", dErrors.New(dErrors.CodeInvalidInput, name+" must start with a lowercase letter")
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-')
	}) >= 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, name+" contains invalid characters")
	}
	return s, nil
}

package catalog

import (
	"regexp"
	"time"

	id "collecta/pkg/domain"
)

// FieldType names a field variant in catalog files and API payloads.
type FieldType string

const (
	FieldTypeText   FieldType = "text"
	FieldTypeNumber FieldType = "number"
	FieldTypeDate   FieldType = "date"
	FieldTypeSelect FieldType = "select"
	FieldTypeEmail  FieldType = "email"
	FieldTypePhone  FieldType = "phone"
)

// Kind is the closed set of field variants. Each variant carries only the rules
// that apply to it; consumers switch over the concrete types exhaustively.
type Kind interface {
	Type() FieldType
	sealed()
}

// TextKind is free text bounded by length and an optional pattern.
type TextKind struct {
	MinLength *int
	MaxLength *int
	Pattern   *regexp.Regexp
}

// NumberKind is a decimal (or integer) value with hard bounds and an optional
// warning band. Values inside the band are accepted but flagged as unusual.
type NumberKind struct {
	Min     *float64
	Max     *float64
	Integer bool
	Warning *WarningBand
}

// DateKind is a calendar date (YYYY-MM-DD) with optional inclusive bounds.
type DateKind struct {
	MinDate *time.Time
	MaxDate *time.Time
}

// SelectKind restricts the value to one of Options.
type SelectKind struct {
	Options []string
}

// EmailKind is an email address.
type EmailKind struct{}

// PhoneKind is a phone number.
type PhoneKind struct{}

func (TextKind) Type() FieldType   { return FieldTypeText }
func (NumberKind) Type() FieldType { return FieldTypeNumber }
func (DateKind) Type() FieldType   { return FieldTypeDate }
func (SelectKind) Type() FieldType { return FieldTypeSelect }
func (EmailKind) Type() FieldType  { return FieldTypeEmail }
func (PhoneKind) Type() FieldType  { return FieldTypePhone }

func (TextKind) sealed()   {}
func (NumberKind) sealed() {}
func (DateKind) sealed()   {}
func (SelectKind) sealed() {}
func (EmailKind) sealed()  {}
func (PhoneKind) sealed()  {}

// WarningBand is an inclusive numeric range considered unusual. A nil bound is open.
type WarningBand struct {
	Min     *float64
	Max     *float64
	Message string
}

// Contains reports whether v falls inside the band.
func (b WarningBand) Contains(v float64) bool {
	if b.Min == nil && b.Max == nil {
		return false
	}
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v > *b.Max {
		return false
	}
	return true
}

// ConditionType is the comparison applied to a parent field's raw value.
type ConditionType string

const (
	ConditionEquals      ConditionType = "equals"
	ConditionNotEquals   ConditionType = "notEquals"
	ConditionGreaterThan ConditionType = "greaterThan"
	ConditionLessThan    ConditionType = "lessThan"
)

func (c ConditionType) IsValid() bool {
	switch c {
	case ConditionEquals, ConditionNotEquals, ConditionGreaterThan, ConditionLessThan:
		return true
	}
	return false
}

// Dependency ties a field to a parent field's value. While the condition
// holds and Required is set, the field is mandatory. The field's own
// Required flag and rules apply regardless.
type Dependency struct {
	FieldID   id.FieldID
	Condition ConditionType
	Value     string
	Required  bool
}

// Field is one typed data point in a category.
type Field struct {
	ID         id.FieldID
	CategoryID id.CategoryID
	Label      string
	Kind       Kind
	Required   bool
	DependsOn  *Dependency
	Order      int
}

// AssignmentScope decides which units a category is assigned to and who is
// warned about its deadline.
type AssignmentScope string

const (
	ScopeAll         AssignmentScope = "all"
	ScopeSectorsOnly AssignmentScope = "sectors_only"
)

func (s AssignmentScope) IsValid() bool {
	return s == ScopeAll || s == ScopeSectorsOnly
}

// Category is a deadline-bearing set of fields.
//
// Invariants:
//   - Fields are sorted by Order, then ID
//   - every Dependency points at another field of the same category
//   - the dependency graph is acyclic; evalOrder is a topological order of Fields
type Category struct {
	ID       id.CategoryID
	Name     string
	Scope    AssignmentScope
	Deadline *time.Time
	Active   bool
	Fields   []Field

	evalOrder []int
}

// HasDeadline reports whether the sweeper tracks this category.
func (c *Category) HasDeadline() bool {
	return c.Active && c.Deadline != nil
}

// Field returns the definition of fieldID.
func (c *Category) Field(fieldID id.FieldID) (Field, bool) {
	for _, f := range c.Fields {
		if f.ID == fieldID {
			return f, true
		}
	}
	return Field{}, false
}

// EvaluationOrder returns Fields with every parent before its dependents.
func (c *Category) EvaluationOrder() []Field {
	if len(c.evalOrder) != len(c.Fields) {
		return c.Fields
	}
	out := make([]Field, len(c.evalOrder))
	for i, idx := range c.evalOrder {
		out[i] = c.Fields[idx]
	}
	return out
}

package validation

import (
	"fmt"
	"strings"

	"collecta/internal/catalog"
	id "collecta/pkg/domain"
	"collecta/pkg/platform/sentinel"
)

// Severity separates blocking errors from informational warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding for one field. Issues are recomputed on every pass and
// never persisted.
type Issue struct {
	FieldID    id.FieldID    `json:"field_id"`
	CategoryID id.CategoryID `json:"category_id"`
	Message    string        `json:"message"`
	Severity   Severity      `json:"severity"`
}

// Result holds disjoint error and warning lists in field display order.
type Result struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Valid reports whether nothing blocks submission.
func (r Result) Valid() bool { return len(r.Errors) == 0 }

// Err returns a *Error when the result has blocking errors.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &Error{Issues: r.Errors}
}

// Error is returned by operations that refuse to proceed on invalid values.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = fmt.Sprintf("%s %s", is.FieldID, is.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *Error) Unwrap() error { return sentinel.ErrValidation }

func newIssue(f catalog.Field, sev Severity, msg string) Issue {
	return Issue{FieldID: f.ID, CategoryID: f.CategoryID, Message: msg, Severity: sev}
}

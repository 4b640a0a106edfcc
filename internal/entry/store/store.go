// Package store implements the entry repository: field-level records keyed by
// (unit, category, field) with group-level status transitions.
package store

import (
	"collecta/internal/entry/models"
)

// checkWritable enforces that values change only while the group is draft.
// Approved is absorbing; pending and rejected need a transition first.
func checkWritable(key models.GroupKey, status models.Status) error {
	switch status {
	case models.StatusDraft:
		return nil
	case models.StatusApproved:
		return &models.ImmutableRecordError{Key: key}
	default:
		return &models.IllegalTransitionError{
			Key:    key,
			From:   status,
			To:     models.StatusDraft,
			Reason: "values can only change while the group is draft",
		}
	}
}

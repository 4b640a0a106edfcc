package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "collecta/pkg/domain"
)

// EventCategory classifies audit events by retention needs.
type EventCategory string

const (
	// CategoryCompliance covers decisions on submitted data: approvals,
	// rejections and forced approvals. Kept for the life of the census.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine lifecycle steps that can be pruned.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventEntrySubmitted     AuditEvent = "entry_submitted"
	EventEntryApproved      AuditEvent = "entry_approved"
	EventEntryRejected      AuditEvent = "entry_rejected"
	EventEntryReopened      AuditEvent = "entry_reopened"
	EventEntryForceApproved AuditEvent = "entry_force_approved"
	EventDeadlineExpired    AuditEvent = "deadline_expired"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventEntryApproved:      CategoryCompliance,
	EventEntryRejected:      CategoryCompliance,
	EventEntryForceApproved: CategoryCompliance,
	EventDeadlineExpired:    CategoryCompliance,
	EventEntrySubmitted:     CategoryOperations,
	EventEntryReopened:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event records one status change of an entry group, or a category-wide
// occurrence when UnitID is nil. A nil ActorID marks the system actor.
type Event struct {
	ID         uuid.UUID
	Category   EventCategory
	Action     AuditEvent
	Timestamp  time.Time
	UnitID     id.UnitID
	CategoryID id.CategoryID
	FromStatus string
	ToStatus   string
	ActorID    id.ActorID
	Reason     string
	RequestID  string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByGroup(ctx context.Context, unit id.UnitID, category id.CategoryID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

package models

import (
	"maps"
	"time"

	id "collecta/pkg/domain"
)

// Status is the lifecycle state shared by every record of a group.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether s is absorbing.
func (s Status) IsTerminal() bool {
	return s == StatusApproved
}

// IsEditable reports whether values may be saved in s. A rejected group is
// editable because the next edit reopens it to draft.
func (s Status) IsEditable() bool {
	return s == StatusDraft || s == StatusRejected
}

// CanTransitionTo reports whether the lifecycle allows s -> to:
//
//	draft -> pending -> approved
//	            \-> rejected -> draft
func (s Status) CanTransitionTo(to Status) bool {
	switch s {
	case StatusDraft:
		return to == StatusPending
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	case StatusRejected:
		return to == StatusDraft
	}
	return false
}

// GroupKey identifies all records a unit holds for one category.
type GroupKey struct {
	UnitID     id.UnitID
	CategoryID id.CategoryID
}

func (k GroupKey) String() string {
	return k.UnitID.String() + "/" + string(k.CategoryID)
}

// Record is the persisted value of one field for one unit.
//
// Invariants:
//   - (UnitID, CategoryID, FieldID) is unique
//   - records sharing a GroupKey agree on Status whenever observed
//   - once Status is approved neither Value nor Status changes
//   - RejectionReason is non-empty whenever Status is rejected
type Record struct {
	UnitID          id.UnitID
	CategoryID      id.CategoryID
	FieldID         id.FieldID
	Value           string
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SubmittedAt     *time.Time
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	CreatedBy       id.ActorID
	UpdatedBy       id.ActorID
	ApprovedBy      *id.ActorID
	RejectedBy      *id.ActorID
	RejectionReason string
}

func (r Record) Key() GroupKey {
	return GroupKey{UnitID: r.UnitID, CategoryID: r.CategoryID}
}

// Group is the snapshot of a unit's records for one category. A group with no
// records is implicitly draft.
type Group struct {
	Key     GroupKey
	Status  Status
	Records []Record
}

// NewGroup derives the group status from its records.
func NewGroup(key GroupKey, records []Record) *Group {
	g := &Group{Key: key, Status: StatusDraft, Records: records}
	if len(records) > 0 {
		g.Status = records[0].Status
	}
	return g
}

// Values returns the field values keyed by field.
func (g *Group) Values() map[id.FieldID]string {
	out := make(map[id.FieldID]string, len(g.Records))
	for _, r := range g.Records {
		out[r.FieldID] = r.Value
	}
	return out
}

// IsEmpty reports whether nothing has been saved yet.
func (g *Group) IsEmpty() bool { return len(g.Records) == 0 }

// RejectionReason returns the most recent reason recorded on the group.
func (g *Group) RejectionReason() string {
	var reason string
	var at time.Time
	for _, r := range g.Records {
		if r.RejectedAt != nil && r.RejectedAt.After(at) {
			at, reason = *r.RejectedAt, r.RejectionReason
		}
	}
	return reason
}

// Timestamp returns the latest value of pick across records.
func (g *Group) Timestamp(pick func(Record) *time.Time) *time.Time {
	var latest *time.Time
	for _, r := range g.Records {
		if t := pick(r); t != nil && (latest == nil || t.After(*latest)) {
			latest = t
		}
	}
	return latest
}

// UpsertInput writes a set of field values for one group as draft.
type UpsertInput struct {
	Key    GroupKey
	Values map[id.FieldID]string
	Actor  id.ActorID
	Now    time.Time
}

// Clone returns an input with its own copy of Values.
func (in UpsertInput) Clone() UpsertInput {
	in.Values = maps.Clone(in.Values)
	return in
}

// Transition is a group-level compare-and-set: it applies only to records
// whose status is still From.
type Transition struct {
	From   Status
	To     Status
	At     time.Time
	Actor  *id.ActorID // nil for the system actor
	Reason string
}

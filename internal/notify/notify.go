// Package notify delivers notification events. Message rendering happens
// downstream; this package only records that a notification of some kind is
// due for a set of recipients.
package notify

import (
	"time"

	"github.com/google/uuid"

	"collecta/internal/membership"
)

// Kind names the template a downstream renderer should use.
type Kind string

const (
	KindDeadlineWarning Kind = "deadline_warning"
	KindDeadlineExpired Kind = "deadline_expired"
	KindEntryApproved   Kind = "entry_approved"
	KindEntryRejected   Kind = "entry_rejected"
)

// Notification is the wire payload published for each Notify call.
type Notification struct {
	ID         uuid.UUID              `json:"id"`
	Kind       Kind                   `json:"kind"`
	Recipients []membership.Recipient `json:"recipients"`
	Data       map[string]string      `json:"data,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

func newNotification(recipients []membership.Recipient, kind Kind, data map[string]string, now time.Time) Notification {
	return Notification{
		ID:         uuid.New(),
		Kind:       kind,
		Recipients: recipients,
		Data:       data,
		CreatedAt:  now.UTC(),
	}
}

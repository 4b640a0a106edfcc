package notify

import (
	"context"
	"sync"

	"collecta/internal/membership"
	"collecta/pkg/requestcontext"
)

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
	fail map[Kind]error
}

func NewRecorder() *Recorder {
	return &Recorder{fail: make(map[Kind]error)}
}

// FailWith makes every Notify of kind return err until cleared with nil.
func (r *Recorder) FailWith(kind Kind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, kind)
		return
	}
	r.fail[kind] = err
}

func (r *Recorder) Notify(ctx context.Context, recipients []membership.Recipient, kind Kind, data map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[kind]; err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}
	r.sent = append(r.sent, newNotification(recipients, kind, data, requestcontext.Now(ctx)))
	return nil
}

// Sent returns a copy of everything recorded so far.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

// OfKind returns recorded notifications of kind.
func (r *Recorder) OfKind(kind Kind) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

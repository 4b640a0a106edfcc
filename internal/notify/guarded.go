package notify

import (
	"context"
	"fmt"
	"log/slog"

	"collecta/internal/membership"
	"collecta/pkg/platform/circuit"
	"collecta/pkg/platform/sentinel"
	"collecta/pkg/requestcontext"
)

// Sender is anything that delivers notifications.
type Sender interface {
	Notify(ctx context.Context, recipients []membership.Recipient, kind Kind, data map[string]string) error
}

// GuardedNotifier fails fast while the breaker is open so a broker outage
// does not stall every transition and sweep on produce timeouts. Refused
// calls return an error wrapping sentinel.ErrUnavailable; the sweeper then
// retries on its next pass.
type GuardedNotifier struct {
	next    Sender
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuardedNotifier(next Sender, breaker *circuit.Breaker, logger *slog.Logger) *GuardedNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardedNotifier{next: next, breaker: breaker, logger: logger}
}

func (g *GuardedNotifier) Notify(ctx context.Context, recipients []membership.Recipient, kind Kind, data map[string]string) error {
	if !g.breaker.Allow() {
		return fmt.Errorf("notify %s: circuit %s open: %w", kind, g.breaker.Name(), sentinel.ErrUnavailable)
	}
	if err := g.next.Notify(ctx, recipients, kind, data); err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.ErrorContext(ctx, "notification circuit opened",
				"circuit", g.breaker.Name(),
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "notification circuit closed",
			"circuit", g.breaker.Name(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return nil
}

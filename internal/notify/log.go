package notify

import (
	"context"
	"log/slog"

	"collecta/internal/membership"
	"collecta/pkg/requestcontext"
)

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, recipients []membership.Recipient, kind Kind, data map[string]string) error {
	if len(recipients) == 0 {
		return nil
	}
	msg := newNotification(recipients, kind, data, requestcontext.Now(ctx))
	n.logger.InfoContext(ctx, "notification",
		"notification_id", msg.ID,
		"kind", kind,
		"recipients", len(recipients),
		"data", data,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

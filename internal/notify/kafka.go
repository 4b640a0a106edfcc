package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"collecta/internal/membership"
	"collecta/pkg/requestcontext"
)

// Producer is the subset of *kgo.Client the notifier uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaNotifier publishes one JSON record per notification. Delivery is
// synchronous so callers can release dedup claims on failure.
type KafkaNotifier struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

// KafkaOption configures a KafkaNotifier.
type KafkaOption func(*KafkaNotifier)

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(n *KafkaNotifier) {
		n.logger = logger
	}
}

func NewKafkaNotifier(producer Producer, topic string, opts ...KafkaOption) (*KafkaNotifier, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}
	n := &KafkaNotifier{producer: producer, topic: topic}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

func (n *KafkaNotifier) Notify(ctx context.Context, recipients []membership.Recipient, kind Kind, data map[string]string) error {
	if len(recipients) == 0 {
		return nil
	}
	msg := newNotification(recipients, kind, data, requestcontext.Now(ctx))
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	record := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(kind),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(kind)},
			{Key: "request_id", Value: []byte(requestcontext.RequestID(ctx))},
		},
	}
	if err := n.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		if n.logger != nil {
			n.logger.ErrorContext(ctx, "notification publish failed",
				"kind", kind,
				"notification_id", msg.ID,
				"error", err,
			)
		}
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

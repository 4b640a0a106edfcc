package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collecta/internal/membership"
	"collecta/internal/platform/logger"
	"collecta/pkg/platform/circuit"
	"collecta/pkg/platform/sentinel"
)

func TestGuardedNotifierFailsFastWhileOpen(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	rec := NewRecorder()
	breaker := circuit.New("kafka", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Minute), circuit.WithClock(clock))
	g := NewGuardedNotifier(rec, breaker, logger.Discard())
	to := []membership.Recipient{{Contact: "admin@school.test"}}

	broker := errors.New("broker down")
	rec.FailWith(KindDeadlineWarning, broker)
	require.ErrorIs(t, g.Notify(ctx, to, KindDeadlineWarning, nil), broker)
	require.ErrorIs(t, g.Notify(ctx, to, KindDeadlineWarning, nil), broker)
	assert.True(t, breaker.IsOpen())

	rec.FailWith(KindDeadlineWarning, nil)
	err := g.Notify(ctx, to, KindDeadlineWarning, nil)
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Empty(t, rec.Sent(), "refused calls never reach the sender")

	clock.Advance(time.Minute)
	require.NoError(t, g.Notify(ctx, to, KindDeadlineWarning, nil))
	assert.False(t, breaker.IsOpen())
	assert.Len(t, rec.Sent(), 1)
}

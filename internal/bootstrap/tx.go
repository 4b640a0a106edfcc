package bootstrap

import (
	"context"
	"time"

	"collecta/internal/workflow"
	dErrors "collecta/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

// timeoutTx bounds transactions started without a caller deadline so a stuck
// lock cannot hold a pool connection forever.
type timeoutTx struct {
	next    workflow.TxRunner
	timeout time.Duration
}

func newTimeoutTx(next workflow.TxRunner) *timeoutTx {
	return &timeoutTx{next: next}
}

func (t *timeoutTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return t.next.RunInTx(ctx, fn)
}

package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	id "collecta/pkg/domain"
)

// ErrClosed is returned by calls on a closed Coordinator.
var ErrClosed = errors.New("autosave: coordinator closed")

// FlushFunc persists the fields changed since the last successful flush.
type FlushFunc func(ctx context.Context, values map[id.FieldID]string) error

// Outcome classifies one resolved flush.
type Outcome string

const (
	OutcomePersisted Outcome = "persisted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Coordinator owns the local values of one group and flushes its dirty
// fields through a FlushFunc. Fields this coordinator never edited are not
// written back. At most one flush runs at a time.
type Coordinator struct {
	flush        FlushFunc
	clock        clockwork.Clock
	flushTimeout time.Duration
	logger       *slog.Logger
	metrics      *Metrics
	onFlush      func(Outcome, error)

	mu        sync.Mutex
	machine   *Machine
	values    map[id.FieldID]string
	persisted map[id.FieldID]string
	dirty     map[id.FieldID]struct{}
	timer     clockwork.Timer
	done      chan struct{}
	closed    bool
	baseCtx   context.Context
	cancel    context.CancelFunc
}

type Option func(*Coordinator)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithFlushTimeout bounds each flush call.
func WithFlushTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.flushTimeout = d
	}
}

// WithOnFlush registers a callback run after every resolved flush.
func WithOnFlush(fn func(Outcome, error)) Option {
	return func(c *Coordinator) {
		c.onFlush = fn
	}
}

// WithInitialValues seeds the coordinator with the stored group so an
// edit back to a stored value is not written again.
func WithInitialValues(values map[id.FieldID]string) Option {
	return func(c *Coordinator) {
		c.values = maps.Clone(values)
		if c.values == nil {
			c.values = make(map[id.FieldID]string)
		}
		c.persisted = maps.Clone(c.values)
	}
}

// NewCoordinator builds a Coordinator. Timer-driven flushes run with a
// context derived from ctx; cancelling ctx stops them.
func NewCoordinator(ctx context.Context, flush FlushFunc, interval time.Duration, threshold int, opts ...Option) (*Coordinator, error) {
	if flush == nil {
		return nil, fmt.Errorf("flush function is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("debounce interval must be positive")
	}
	c := &Coordinator{
		flush:   flush,
		clock:   clockwork.NewRealClock(),
		machine:   NewMachine(interval, threshold),
		values:    make(map[id.FieldID]string),
		persisted: make(map[id.FieldID]string),
		dirty:     make(map[id.FieldID]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseCtx, c.cancel = context.WithCancel(ctx)
	return c, nil
}

// Edit applies a local change and (re)arms the debounce timer.
func (c *Coordinator) Edit(field id.FieldID, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.values[field] = value
	c.dirty[field] = struct{}{}
	c.apply(c.machine.Step(Edit{At: c.clock.Now()}))
	return nil
}

// Values returns a copy of the local values.
func (c *Coordinator) Values() map[id.FieldID]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.values)
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// Save cancels any armed timer and flushes now, waiting first for an
// in-flight flush to resolve. It returns the flush error.
func (c *Coordinator) Save(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		if !c.machine.InFlight() {
			break
		}
		done := c.done
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	out := c.machine.Step(TimerFired{At: c.clock.Now(), Force: true})
	c.apply(Output{FlushAt: out.FlushAt})
	changes := c.begin()
	c.mu.Unlock()
	return c.run(ctx, changes)
}

// Close disarms the timer and waits for an in-flight flush to finish.
// Unflushed edits are dropped; call Save first to keep them.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimer()
	done := c.done
	inFlight := c.machine.InFlight()
	c.mu.Unlock()
	if inFlight {
		<-done
	}
	c.cancel()
}

func (c *Coordinator) onTimer() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	out := c.machine.Step(TimerFired{At: c.clock.Now()})
	if !out.Flush {
		c.apply(out)
		c.mu.Unlock()
		return
	}
	changes := c.begin()
	c.mu.Unlock()
	_ = c.run(c.baseCtx, changes)
}

// begin captures the dirty fields for a flush the machine just started.
// Fields edited back to their stored value drop out of the dirty set.
// Caller holds mu.
func (c *Coordinator) begin() map[id.FieldID]string {
	c.done = make(chan struct{})
	changes := make(map[id.FieldID]string, len(c.dirty))
	for field := range c.dirty {
		value := c.values[field]
		if stored, ok := c.persisted[field]; ok && stored == value {
			delete(c.dirty, field)
			continue
		}
		changes[field] = value
	}
	return changes
}

// run performs one flush and feeds the result back to the machine. On
// success the flushed fields leave the dirty set unless they were edited
// again meanwhile; on failure they stay dirty for the retry.
func (c *Coordinator) run(ctx context.Context, changes map[id.FieldID]string) error {
	start := c.clock.Now()
	var err error
	outcome := OutcomeSkipped
	if len(changes) > 0 {
		outcome = OutcomeFailed
		if err = c.call(ctx, changes); err == nil {
			outcome = OutcomePersisted
		}
	}

	c.mu.Lock()
	if err == nil {
		for field, value := range changes {
			c.persisted[field] = value
			if c.values[field] == value {
				delete(c.dirty, field)
			}
		}
	}
	out := c.machine.Step(FlushResolved{At: c.clock.Now(), Err: err})
	if !c.closed {
		c.apply(out)
	}
	attempts := c.machine.State().AttemptCount
	close(c.done)
	c.mu.Unlock()

	c.metrics.ObserveFlush(outcome, c.clock.Since(start))
	if err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "autosave flush failed",
			"attempt", attempts,
			"error", err,
		)
	}
	if c.onFlush != nil {
		c.onFlush(outcome, err)
	}
	return err
}

func (c *Coordinator) call(ctx context.Context, changes map[id.FieldID]string) error {
	if c.flushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.flushTimeout)
		defer cancel()
	}
	return c.flush(ctx, changes)
}

// apply arms or disarms the timer to match out. Caller holds mu.
func (c *Coordinator) apply(out Output) {
	c.stopTimer()
	if out.FlushAt.IsZero() {
		return
	}
	c.timer = c.clock.AfterFunc(out.FlushAt.Sub(c.clock.Now()), c.onTimer)
}

func (c *Coordinator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"collecta/pkg/requestcontext"
)

// Runner is one sweep pass.
type Runner interface {
	Run(ctx context.Context) (Report, error)
}

// Scheduler repeats passes on a fixed interval until its context ends.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

type SchedulerOption func(*Scheduler)

func WithSchedulerClock(clock clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func NewScheduler(runner Runner, interval time.Duration, opts ...SchedulerOption) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	s := &Scheduler{
		runner:   runner,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run performs a pass immediately and then once per interval. It returns nil
// when ctx is cancelled; pass failures are logged, not returned.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweep scheduler stopped")
			return nil
		case <-ticker.Chan():
			s.pass(ctx)
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	ctx = requestcontext.WithRequestID(ctx, "sweep-"+uuid.NewString())
	report, err := s.runner.Run(ctx)
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"categories", report.Categories,
		"warnings", report.Warnings,
		"expirations", report.Expirations,
		"force_approved", report.ForceApproved,
		"deduplicated", report.Deduplicated,
		"failed", report.Failed,
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep pass finished with errors", append(attrs, "error", err)...)
		return
	}
	s.logger.InfoContext(ctx, "sweep pass finished", attrs...)
}

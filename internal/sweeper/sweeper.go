// Package sweeper runs the deadline pass: warnings ahead of a category
// deadline and force-approval of groups still pending once it has passed.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"collecta/internal/catalog"
	"collecta/internal/entry/models"
	"collecta/internal/membership"
	"collecta/internal/notify"
	"collecta/internal/platform/config"
	id "collecta/pkg/domain"
	"collecta/pkg/platform/audit"
	"collecta/pkg/requestcontext"
)

var tracer = otel.Tracer("collecta/internal/sweeper")

const (
	day = 24 * time.Hour

	// owedNoticeTTL bounds how long an unsent expiration notice is retried.
	owedNoticeTTL = 30 * day
)

type Catalog interface {
	ActiveWithDeadline() []*catalog.Category
}

type Workflow interface {
	ListPending(ctx context.Context, categoryID id.CategoryID) ([]models.GroupKey, error)
	ForceApprove(ctx context.Context, key models.GroupKey) (bool, error)
}

type Directory interface {
	UnitAdmins(ctx context.Context) ([]membership.Recipient, error)
	SectorAdmins(ctx context.Context) ([]membership.Recipient, error)
}

type Notifier interface {
	Notify(ctx context.Context, recipients []membership.Recipient, kind notify.Kind, data map[string]string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Sweeper evaluates every active category with a deadline. A pass is safe to
// repeat: notifications are claimed in the ledger once per category and day,
// and force-approval only moves groups that are still pending.
type Sweeper struct {
	catalog   Catalog
	workflow  Workflow
	directory Directory
	notifier  Notifier
	ledger    Ledger
	cfg       config.SweeperConfig

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *Metrics
	auditor AuditPublisher
}

type Option func(*Sweeper)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Sweeper) {
		s.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Sweeper) {
		s.auditor = publisher
	}
}

func New(cat Catalog, wf Workflow, dir Directory, notifier Notifier, ledger Ledger, cfg config.SweeperConfig, opts ...Option) (*Sweeper, error) {
	if cat == nil {
		return nil, errors.New("catalog is required")
	}
	if wf == nil {
		return nil, errors.New("workflow is required")
	}
	if dir == nil {
		return nil, errors.New("directory is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.LedgerTTL < day {
		cfg.LedgerTTL = 2 * day
	}

	s := &Sweeper{
		catalog:   cat,
		workflow:  wf,
		directory: dir,
		notifier:  notifier,
		ledger:    ledger,
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Report summarises one pass.
type Report struct {
	StartedAt     time.Time
	Categories    int
	Warnings      int
	Expirations   int
	ForceApproved int
	Deduplicated  int
	Failed        int
}

// CategoryError carries the failure of one category in a pass.
type CategoryError struct {
	CategoryID id.CategoryID
	Err        error
}

func (e *CategoryError) Error() string {
	return fmt.Sprintf("category %s: %v", e.CategoryID, e.Err)
}

func (e *CategoryError) Unwrap() error { return e.Err }

// Run executes one pass. Categories are processed concurrently up to the
// configured limit; a failing category never stops the others and every
// failure comes back joined in the returned error.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	now := s.clock.Now()
	report := Report{StartedAt: now}
	defer func() { s.metrics.ObservePass(now, s.clock.Now()) }()

	if s.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PassTimeout)
		defer cancel()
	}
	ctx = requestcontext.WithTime(ctx, now)
	ctx, span := tracer.Start(ctx, "sweeper.run")
	defer span.End()

	categories := s.catalog.ActiveWithDeadline()
	report.Categories = len(categories)

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, cat := range categories {
		g.Go(func() error {
			res, err := s.sweepCategory(gctx, cat, now)
			mu.Lock()
			defer mu.Unlock()
			report.Warnings += res.warnings
			report.Expirations += res.expirations
			report.ForceApproved += res.approved
			report.Deduplicated += res.deduplicated
			if err != nil {
				report.Failed++
				errs = append(errs, &CategoryError{CategoryID: cat.ID, Err: err})
				s.metrics.IncCategoryError(string(cat.ID))
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Int("categories", report.Categories),
		attribute.Int("force_approved", report.ForceApproved),
		attribute.Int("failed", report.Failed),
	)
	return report, err
}

type categoryResult struct {
	warnings     int
	expirations  int
	approved     int
	deduplicated int
}

// DaysRemaining is ceil((deadline - now) / 24h).
func DaysRemaining(deadline, now time.Time) int {
	return int(math.Ceil(float64(deadline.Sub(now)) / float64(day)))
}

func (s *Sweeper) sweepCategory(ctx context.Context, cat *catalog.Category, now time.Time) (categoryResult, error) {
	var res categoryResult
	deadline := *cat.Deadline
	days := DaysRemaining(deadline, now)

	ctx, span := tracer.Start(ctx, "sweeper.category", trace.WithAttributes(
		attribute.String("category_id", string(cat.ID)),
		attribute.Int("days_remaining", days),
	))
	defer span.End()

	if slices.Contains(s.cfg.WarningDays, days) {
		sent, err := s.notifyOnce(ctx, cat, notify.KindDeadlineWarning, now, map[string]string{
			"days_remaining": strconv.Itoa(days),
		})
		if err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("deadline warning: %w", err)
		}
		if sent {
			res.warnings++
		} else {
			res.deduplicated++
		}
		return res, nil
	}

	if days > 0 {
		return res, nil
	}
	if now.Before(deadline.Add(s.cfg.GracePeriod)) {
		return res, nil
	}

	approved, approveErr := s.forceApprove(ctx, cat.ID)
	res.approved = approved
	s.metrics.AddForceApprovals(string(cat.ID), approved)
	if approveErr != nil {
		span.RecordError(approveErr)
		span.SetStatus(codes.Error, approveErr.Error())
	}

	owedKey := owedNoticeKey(cat.ID)
	if approved > 0 {
		if err := s.ledger.Mark(ctx, owedKey, owedNoticeTTL); err != nil {
			s.logWarn(ctx, "failed to record owed expiration notice", "category_id", cat.ID, "error", err)
		}
	}
	owed, err := s.ledger.Marked(ctx, owedKey)
	if err != nil {
		s.logWarn(ctx, "failed to read owed expiration notice", "category_id", cat.ID, "error", err)
		owed = approved > 0
	}

	// Later days only notify for groups closed since the last notice.
	if days < 0 && !owed {
		return res, approveErr
	}
	if approveErr != nil && approved == 0 && !owed {
		return res, approveErr
	}
	sent, err := s.notifyOnce(ctx, cat, notify.KindDeadlineExpired, now, map[string]string{
		"force_approved": strconv.Itoa(approved),
	})
	if err != nil {
		span.RecordError(err)
		return res, errors.Join(approveErr, fmt.Errorf("deadline expiration notice: %w", err))
	}
	if sent {
		res.expirations++
		s.emitExpired(ctx, cat.ID, approved)
		if err := s.ledger.Release(ctx, owedKey); err != nil {
			s.logWarn(ctx, "failed to clear owed expiration notice", "category_id", cat.ID, "error", err)
		}
	} else {
		res.deduplicated++
	}
	return res, approveErr
}

// forceApprove closes every pending group of the category. Groups are
// independent, so one failure does not stop the rest.
func (s *Sweeper) forceApprove(ctx context.Context, categoryID id.CategoryID) (int, error) {
	keys, err := s.workflow.ListPending(ctx, categoryID)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	var (
		approved int
		errs     []error
	)
	for _, key := range keys {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ok, err := s.workflow.ForceApprove(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("force-approve %s: %w", key, err))
			continue
		}
		if ok {
			approved++
		}
	}
	return approved, errors.Join(errs...)
}

// notifyOnce sends kind for the category at most once per calendar day in the
// configured timezone. A failed send releases the claim so the next pass
// retries it.
func (s *Sweeper) notifyOnce(ctx context.Context, cat *catalog.Category, kind notify.Kind, now time.Time, data map[string]string) (bool, error) {
	key := ledgerKey(kind, cat.ID, now.In(s.cfg.Location))
	claimed, err := s.ledger.Claim(ctx, key, s.cfg.LedgerTTL)
	if err != nil {
		s.metrics.IncNotification(string(kind), "failed")
		return false, err
	}
	if !claimed {
		s.metrics.IncNotification(string(kind), "deduplicated")
		return false, nil
	}

	recipients, err := s.recipients(ctx, cat.Scope)
	if err == nil {
		payload := map[string]string{
			"category_id":   string(cat.ID),
			"category_name": cat.Name,
			"deadline":      cat.Deadline.UTC().Format(time.RFC3339),
		}
		for k, v := range data {
			payload[k] = v
		}
		err = s.notifier.Notify(ctx, recipients, kind, payload)
	}
	if err != nil {
		s.metrics.IncNotification(string(kind), "failed")
		if relErr := s.ledger.Release(ctx, key); relErr != nil {
			s.logWarn(ctx, "failed to release sweep ledger claim", "key", key, "error", relErr)
		}
		return false, err
	}

	s.metrics.IncNotification(string(kind), "sent")
	if s.logger != nil {
		s.logger.InfoContext(ctx, "deadline notification sent",
			"category_id", cat.ID,
			"kind", kind,
			"recipients", len(recipients),
		)
	}
	return true, nil
}

func (s *Sweeper) recipients(ctx context.Context, scope catalog.AssignmentScope) ([]membership.Recipient, error) {
	if scope == catalog.ScopeSectorsOnly {
		return s.directory.SectorAdmins(ctx)
	}
	return s.directory.UnitAdmins(ctx)
}

func (s *Sweeper) emitExpired(ctx context.Context, categoryID id.CategoryID, approved int) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:     audit.EventDeadlineExpired,
		Timestamp:  requestcontext.Now(ctx),
		CategoryID: categoryID,
		ActorID:    id.SystemActor,
		Reason:     strconv.Itoa(approved) + " pending groups force-approved",
		RequestID:  requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logWarn(ctx, "failed to record deadline audit event", "category_id", categoryID, "error", err)
	}
}

func (s *Sweeper) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, args...)
	}
}

// owedNoticeKey marks force-approvals not yet covered by a sent expiration
// notice. It is per category so it survives the day boundary.
func owedNoticeKey(categoryID id.CategoryID) string {
	return "owed:" + string(notify.KindDeadlineExpired) + ":" + string(categoryID)
}

func ledgerKey(kind notify.Kind, categoryID id.CategoryID, local time.Time) string {
	return string(kind) + ":" + string(categoryID) + ":" + local.Format(time.DateOnly)
}

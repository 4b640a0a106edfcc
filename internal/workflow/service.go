// Package workflow owns the status lifecycle of entry groups: draft edits,
// submission behind validation, reviewer decisions, and the system
// force-approval used by the deadline sweeper.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"collecta/internal/catalog"
	"collecta/internal/entry/models"
	"collecta/internal/membership"
	"collecta/internal/notify"
	"collecta/internal/workflow/metrics"
	id "collecta/pkg/domain"
	"collecta/pkg/platform/audit"
	"collecta/pkg/requestcontext"
)

type Store interface {
	Upsert(ctx context.Context, in models.UpsertInput) (*models.Group, error)
	FetchGroup(ctx context.Context, key models.GroupKey) (*models.Group, error)
	ListPendingByCategory(ctx context.Context, categoryID id.CategoryID) ([]models.Record, error)
	TransitionGroup(ctx context.Context, key models.GroupKey, t models.Transition) (int64, error)
}

type Catalog interface {
	Category(categoryID id.CategoryID) (*catalog.Category, error)
}

// Authority answers permission questions. It is consulted on every gated
// call; answers are never cached.
type Authority interface {
	CanEdit(ctx context.Context, actor id.ActorID, unit id.UnitID) (bool, error)
	CanApprove(ctx context.Context, actor id.ActorID, unit id.UnitID) (bool, error)
}

type Directory interface {
	UnitOwners(ctx context.Context, unit id.UnitID) ([]membership.Recipient, error)
}

type Notifier interface {
	Notify(ctx context.Context, recipients []membership.Recipient, kind notify.Kind, data map[string]string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// TxRunner scopes a transition and its audit event to one transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var tracer = otel.Tracer("collecta/internal/workflow")

// Service applies group transitions.
type Service struct {
	store          Store
	catalog        Catalog
	authority      Authority
	directory      Directory
	notifier       Notifier
	auditPublisher AuditPublisher
	tx             TxRunner
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithNotifier enables approval and rejection notices to unit owners.
func WithNotifier(notifier Notifier, directory Directory) Option {
	return func(s *Service) {
		s.notifier = notifier
		s.directory = directory
	}
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// New constructs a Service.
func New(store Store, cat Catalog, authority Authority, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("entry store is required")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if authority == nil {
		return nil, fmt.Errorf("authority is required")
	}
	s := &Service{store: store, catalog: cat, authority: authority, tx: passthroughTx{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// persistenceErr leaves typed workflow errors alone and wraps everything else.
func persistenceErr(op string, err error) error {
	var (
		illegal   *models.IllegalTransitionError
		immutable *models.ImmutableRecordError
		persist   *models.PersistenceError
	)
	if errors.As(err, &illegal) || errors.As(err, &immutable) || errors.As(err, &persist) {
		return err
	}
	return &models.PersistenceError{Op: op, Err: err}
}

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

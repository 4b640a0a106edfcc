// Package httptransport is the REST binding of the entry workflow. Handlers
// decode, delegate to the workflow service and translate errors; no business
// rule lives here.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"collecta/internal/catalog"
	"collecta/internal/entry/models"
	"collecta/internal/platform/metrics"
	"collecta/internal/platform/middleware"
	"collecta/internal/platform/ratelimit"
	"collecta/internal/sweeper"
	"collecta/internal/validation"
	id "collecta/pkg/domain"
)

// Workflow is the subset of the workflow service exposed over HTTP.
type Workflow interface {
	Group(ctx context.Context, key models.GroupKey) (*models.Group, error)
	Validate(ctx context.Context, categoryID id.CategoryID, values map[id.FieldID]string) (validation.Result, error)
	SaveDraft(ctx context.Context, key models.GroupKey, values map[id.FieldID]string) (*models.Group, error)
	Submit(ctx context.Context, key models.GroupKey) (*models.Group, validation.Result, error)
	Approve(ctx context.Context, key models.GroupKey) (*models.Group, error)
	Reject(ctx context.Context, key models.GroupKey, reason string) (*models.Group, error)
}

type Catalog interface {
	Categories() []*catalog.Category
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler serves the public API.
type Handler struct {
	workflow     Workflow
	catalog      Catalog
	jwtValidator middleware.JWTValidator
	logger       *slog.Logger

	metrics        *metrics.Metrics
	gatherer       prometheus.Gatherer
	sweeper        sweeper.Runner
	adminToken     string
	checks         map[string]HealthCheck
	requestTimeout time.Duration
	rateLimit      func(http.Handler) http.Handler
}

type Option func(*Handler)

func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.metrics = m
		h.gatherer = gatherer
	}
}

// WithSweeper exposes POST /admin/sweeps guarded by adminToken.
func WithSweeper(runner sweeper.Runner, adminToken string) Option {
	return func(h *Handler) {
		h.sweeper = runner
		h.adminToken = adminToken
	}
}

func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		h.checks[name] = check
	}
}

// WithRateLimit caps authenticated requests per actor.
func WithRateLimit(limiter *ratelimit.Middleware) Option {
	return func(h *Handler) {
		h.rateLimit = limiter.PerActor
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.requestTimeout = d
	}
}

func New(wf Workflow, cat Catalog, jwtValidator middleware.JWTValidator, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		workflow:       wf,
		catalog:        cat,
		jwtValidator:   jwtValidator,
		logger:         logger,
		checks:         make(map[string]HealthCheck),
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router wires every endpoint.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.LatencyMiddleware(h.metrics))

	r.Get("/healthz", h.handleHealth)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(h.requestTimeout))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		if h.rateLimit != nil {
			r.Use(h.rateLimit)
		}

		r.Get("/categories", h.handleListCategories)
		r.Get("/units/{unit}/categories/{category}", h.handleGetGroup)
		r.Put("/units/{unit}/categories/{category}", h.handleSaveDraft)
		r.Post("/units/{unit}/categories/{category}/validate", h.handleValidate)
		r.Post("/units/{unit}/categories/{category}/submit", h.handleSubmit)
		r.Post("/units/{unit}/categories/{category}/approve", h.handleApprove)
		r.Post("/units/{unit}/categories/{category}/reject", h.handleReject)
	})

	if h.sweeper != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Use(middleware.RequireAdminToken(h.adminToken, h.logger))
			r.Post("/admin/sweeps", h.handleRunSweep)
		})
	}
	return r
}

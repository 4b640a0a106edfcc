package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"collecta/pkg/requestcontext"
)

// Middleware limits authenticated requests per actor. It must run after the
// auth middleware has put the actor on the context. Store failures let the
// request through.
type Middleware struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger
	clock  clockwork.Clock
}

type Option func(*Middleware)

func WithClock(clock clockwork.Clock) Option {
	return func(m *Middleware) {
		m.clock = clock
	}
}

func New(store Store, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Middleware{store: store, limit: limit, window: window, logger: logger, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Middleware) PerActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor := requestcontext.Actor(ctx)
		if actor.IsSystem() {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.store.Allow(ctx, "actor:"+actor.String(), m.limit, m.window)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to check rate limit",
				"error", err,
				"actor_id", actor,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		addHeaders(w, result)
		if !result.Allowed {
			m.logger.InfoContext(ctx, "rate limit exceeded",
				"actor_id", actor,
				"request_id", requestcontext.RequestID(ctx),
			)
			retryAfter := result.RetryAfter(m.clock.Now())
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":             "rate_limit_exceeded",
				"error_description": "too many requests, slow down",
				"retry_after":       retryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func addHeaders(w http.ResponseWriter, result Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

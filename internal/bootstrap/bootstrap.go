// Package bootstrap assembles the services shared by the server and the
// operator CLI from a loaded Config.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"collecta/internal/autosave"
	"collecta/internal/catalog"
	entrystore "collecta/internal/entry/store"
	"collecta/internal/membership"
	"collecta/internal/notify"
	"collecta/internal/platform/config"
	"collecta/internal/platform/kafka"
	"collecta/internal/platform/postgres"
	"collecta/internal/platform/ratelimit"
	"collecta/internal/platform/redis"
	"collecta/internal/sweeper"
	"collecta/internal/workflow"
	workflowmetrics "collecta/internal/workflow/metrics"
	"collecta/pkg/platform/audit"
	"collecta/pkg/platform/audit/publishers/compliance"
	auditmemory "collecta/pkg/platform/audit/store/memory"
	auditpostgres "collecta/pkg/platform/audit/store/postgres"
	"collecta/pkg/platform/circuit"
)

const (
	ledgerPrefix    = "collecta:sweep:"
	rateLimitPrefix = "collecta:rl:"
)

// App holds the wired services and the infrastructure handles they own.
type App struct {
	Config          *config.Config
	Catalog         *catalog.Catalog
	Membership      *membership.Service
	Workflow        *workflow.Service
	Sweeper         *sweeper.Sweeper
	AutosaveMetrics *autosave.Metrics
	RateLimiter     *ratelimit.Middleware

	pool   *pgxpool.Pool
	redis  *redis.Client
	kafka  *kgo.Client
	logger *slog.Logger
}

// Build connects to the configured backends and wires every service.
// Absent DSN, Redis URL or Kafka brokers select the in-process fallbacks.
// On error every connection opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (_ *App, err error) {
	app := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.Catalog, err = catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "catalog loaded",
		"path", cfg.Catalog.Path,
		"categories", len(app.Catalog.Categories()),
	)

	var (
		entries    workflow.Store
		members    membership.Store
		auditStore audit.Store
		txRunner   workflow.TxRunner
	)
	if cfg.Database.DSN != "" {
		if app.pool, err = postgres.NewPool(ctx, cfg.Database); err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err = migrate(ctx, cfg.Database.DSN, logger); err != nil {
				return nil, err
			}
		}
		entries = entrystore.NewPostgres(app.pool)
		members = membership.NewPostgres(app.pool)
		auditStore = auditpostgres.New(app.pool)
		txRunner = newTimeoutTx(postgres.NewTxManager(app.pool))
	} else {
		logger.WarnContext(ctx, "database.dsn not set; using in-memory stores")
		entries = entrystore.NewInMemoryStore()
		members = membership.NewInMemoryStore()
		auditStore = auditmemory.NewInMemoryStore()
	}

	if cfg.Membership.SeedPath != "" {
		n, seedErr := membership.SeedFile(ctx, members, cfg.Membership.SeedPath)
		if seedErr != nil {
			return nil, seedErr
		}
		logger.InfoContext(ctx, "memberships seeded", "path", cfg.Membership.SeedPath, "count", n)
	}
	if app.Membership, err = membership.New(members); err != nil {
		return nil, err
	}

	notifier, err := app.buildNotifier(ctx)
	if err != nil {
		return nil, err
	}

	publisher := compliance.New(auditStore,
		compliance.WithLogger(logger),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)

	wfOpts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithMetrics(workflowmetrics.New(reg)),
		workflow.WithAuditPublisher(publisher),
		workflow.WithNotifier(notifier, app.Membership),
	}
	if txRunner != nil {
		wfOpts = append(wfOpts, workflow.WithTxRunner(txRunner))
	}
	if app.Workflow, err = workflow.New(entries, app.Catalog, app.Membership, wfOpts...); err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}

	ledger, err := app.buildLedger(ctx)
	if err != nil {
		return nil, err
	}
	app.Sweeper, err = sweeper.New(app.Catalog, app.Workflow, app.Membership, notifier, ledger, cfg.Sweeper,
		sweeper.WithLogger(logger),
		sweeper.WithMetrics(sweeper.NewMetrics(reg)),
		sweeper.WithAuditPublisher(publisher),
	)
	if err != nil {
		return nil, fmt.Errorf("sweeper: %w", err)
	}

	app.AutosaveMetrics = autosave.NewMetrics(reg)
	if rl := cfg.RateLimit; rl.Enabled {
		var store ratelimit.Store = ratelimit.NewMemoryStore(nil)
		if app.redis != nil {
			store = ratelimit.NewRedisStore(app.redis, rateLimitPrefix, nil)
		}
		app.RateLimiter = ratelimit.New(store, rl.Requests, rl.Window, logger)
	}
	return app, nil
}

func (a *App) buildNotifier(ctx context.Context) (workflow.Notifier, error) {
	client, err := kafka.New(ctx, a.Config.Kafka)
	if err != nil {
		return nil, err
	}
	if client == nil {
		a.logger.WarnContext(ctx, "kafka.brokers not set; notifications are logged only")
		return notify.NewLogNotifier(a.logger), nil
	}
	a.kafka = client
	k := a.Config.Kafka
	if err := kafka.EnsureTopic(ctx, client, k.NotificationTopic, k.Partitions, k.ReplicationFactor); err != nil {
		return nil, err
	}
	kn, err := notify.NewKafkaNotifier(client, k.NotificationTopic, notify.WithKafkaLogger(a.logger))
	if err != nil {
		return nil, err
	}
	breaker := circuit.New("kafka-notifications",
		circuit.WithFailureThreshold(k.BreakerThreshold),
		circuit.WithCooldown(k.BreakerCooldown),
	)
	return notify.NewGuardedNotifier(kn, breaker, a.logger), nil
}

func (a *App) buildLedger(ctx context.Context) (sweeper.Ledger, error) {
	client, err := redis.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		a.logger.WarnContext(ctx, "redis.url not set; sweep notifications deduplicate per process only")
		return sweeper.NewMemoryLedger(nil), nil
	}
	a.redis = client
	return sweeper.NewRedisLedger(client, ledgerPrefix), nil
}

func migrate(ctx context.Context, dsn string, logger *slog.Logger) error {
	db, err := postgres.OpenDB(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return postgres.Migrate(ctx, db, logger)
}

// HealthChecks returns a probe per connected backend.
func (a *App) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if a.pool != nil {
		checks["database"] = a.pool.Ping
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Health
	}
	if a.kafka != nil {
		checks["kafka"] = a.kafka.Ping
	}
	return checks
}

// Close releases every backend connection. It is safe on a partially built App.
func (a *App) Close() {
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"collecta/internal/bootstrap"
	jwttoken "collecta/internal/jwt_token"
	"collecta/internal/platform/config"
	"collecta/internal/platform/httpserver"
	"collecta/internal/platform/logger"
	"collecta/internal/platform/metrics"
	"collecta/internal/sweeper"
	httptransport "collecta/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := bootstrap.Build(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer app.Close()

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	opts := []httptransport.Option{
		httptransport.WithMetrics(metrics.New(reg), reg),
		httptransport.WithSweeper(app.Sweeper, cfg.Auth.AdminToken),
	}
	if app.RateLimiter != nil {
		opts = append(opts, httptransport.WithRateLimit(app.RateLimiter))
	}
	for name, check := range app.HealthChecks() {
		opts = append(opts, httptransport.WithHealthCheck(name, check))
	}
	handler := httptransport.New(app.Workflow, app.Catalog, jwttoken.NewJWTServiceAdapter(tokens), log, opts...)
	srv := httpserver.New(cfg.Server, handler.Router())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(ctx, "starting collecta", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if cfg.Server.RunSweeper {
		scheduler, err := sweeper.NewScheduler(app.Sweeper, cfg.Sweeper.Interval, sweeper.WithSchedulerLogger(log))
		if err != nil {
			return err
		}
		g.Go(func() error { return scheduler.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Command collectactl runs operator tasks against a collecta deployment:
// deadline sweeps, bulk imports and development tokens.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"collecta/internal/bootstrap"
	"collecta/internal/platform/config"
	"collecta/internal/platform/logger"
)

var (
	configPath string

	cfg *config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "collectactl",
	Short:         "Operator tooling for collecta",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFrom(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}
		log = logger.New(cfg.Log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default $CONFIG_PATH or ./config.yaml)")
	rootCmd.AddCommand(sweepCmd, scheduleCmd, importCmd, tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "collectactl:", err)
		os.Exit(1)
	}
}

// buildApp wires the services against the configured backends. Metrics are
// registered on a private registry; the CLI does not expose them.
func buildApp(ctx context.Context) (*bootstrap.App, error) {
	return bootstrap.Build(ctx, cfg, log, prometheus.NewRegistry())
}

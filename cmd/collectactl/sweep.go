package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"collecta/internal/sweeper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one deadline sweep pass and print its report",
	Long: `Run one deadline sweep pass: send due deadline warnings, force-approve
pending groups of expired categories and notify administrators.

Notifications already sent today are not repeated, so running the command
twice is harmless. The exit code is non-zero when any category failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		report, runErr := app.Sweeper.Run(ctx)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		return runErr
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run deadline sweeps on the configured interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		scheduler, err := sweeper.NewScheduler(app.Sweeper, cfg.Sweeper.Interval, sweeper.WithSchedulerLogger(log))
		if err != nil {
			return err
		}
		log.InfoContext(ctx, "sweep scheduler started", "interval", cfg.Sweeper.Interval)
		return scheduler.Run(ctx)
	},
}

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/itsneelabh/gomind-learning/engine"
	"github.com/itsneelabh/gomind-learning/telemetry"
	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var maintenance time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task workers until interrupted",
		Long: `serve starts the background task processor. Conversation analysis is
queued by the embedding application; with --maintenance set, memory
cleanup and relevance decay are scheduled on that interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := root.config(cmd)
			if err != nil {
				return err
			}
			provider, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Name)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = provider.Shutdown(shutdownCtx)
			}()

			e, logger, cleanup, err := root.open(cmd, engine.WithMaintenanceInterval(maintenance))
			if err != nil {
				return err
			}
			defer cleanup()

			if err := e.Start(ctx); err != nil {
				return err
			}
			logger.Info("learnerd started", map[string]interface{}{
				"version":     version,
				"workers":     cfg.Tasks.MaxWorkers,
				"maintenance": maintenance.String(),
			})

			<-ctx.Done()
			logger.Info("Shutting down", nil)
			return e.Stop()
		},
	}

	cmd.Flags().DurationVar(&maintenance, "maintenance", time.Hour, "interval between cleanup and decay runs (0 disables)")
	return cmd
}

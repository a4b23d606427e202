package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/inboxsheet/internal/httpapi"
	"github.com/amishk599/inboxsheet/internal/scheduler"
)

var serveSchedule bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook that triggers a run",
	Long: "Listens on server.addr. POST /webhook runs the pipeline once and returns the run summary.\n" +
		"With --schedule the polling daemon runs alongside the listener.",
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", false, "also run every polling_interval")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)
	logConfig(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, pipelineOptions{}, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer p.close()

	handler := httpapi.NewHttpHandler(p.runner, cfg.Server.WebhookToken, logger)
	server := httpapi.NewServer(cfg.Server.Addr, handler, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// An in-flight run may take up to run_timeout; give it that long.
		return server.Run(ctx, cfg.RunTimeout+5*time.Second)
	})
	if serveSchedule {
		sched := scheduler.NewScheduler(p.runner, cfg.PollingInterval, logger)
		g.Go(func() error {
			return sched.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		return exitCode(1)
	}

	logger.Info("goodbye")
	return nil
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry run: extract and log records, write nothing",
	Long:  "Processes unread candidate emails and logs the extracted records. Nothing is written to the sheet and no email is marked read.",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	logger.Info("check mode: no rows will be written and no emails marked read")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, pipelineOptions{dryRun: true}, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer p.close()

	summary, err := p.runner.Trigger(ctx)
	if err != nil {
		logger.Error("check could not start", "error", err)
		return exitCode(1)
	}

	logger.Info("check complete",
		"found", summary.Found,
		"processed", summary.Processed,
		"empty", summary.Empty,
		"failed", summary.Failed,
		"records", summary.RecordsAppended,
	)
	if !summary.Success {
		return exitCode(1)
	}
	return nil
}

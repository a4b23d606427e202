package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/inboxsheet/internal/model"
	"github.com/amishk599/inboxsheet/internal/runlock"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and print the summary",
	Long: "Processes every unread candidate email once and prints the run summary as JSON on stdout.\n" +
		"Logs go to stderr. Exits 1 if the run failed and 2 if another run holds the lock.",
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	// stdout carries only the summary.
	logger := newLogger(os.Stderr, debug)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return exitCode(1)
	}
	logConfig(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, pipelineOptions{}, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		return exitCode(1)
	}
	defer p.close()

	summary, err := p.runner.Trigger(ctx)
	return reportRun(cmd.OutOrStdout(), summary, err, logger)
}

// reportRun prints the summary and maps the outcome to the exit status.
func reportRun(w io.Writer, summary model.RunSummary, err error, logger *slog.Logger) error {
	if errors.Is(err, runlock.ErrBusy) {
		logger.Error("another run is in progress")
		return exitCode(2)
	}
	if err != nil {
		logger.Error("run could not start", "error", err)
		return exitCode(1)
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))

	if !summary.Success {
		return exitCode(1)
	}
	return nil
}

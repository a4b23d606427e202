package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/inboxsheet/internal/browse"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse sheet rows interactively (TUI)",
	Long:  "Reads every row of the configured sheet and shows them newest first. Read-only.",
	RunE:  runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	sh, closeSheet, err := buildSheet(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to open sheet", "error", err)
		os.Exit(1)
	}
	defer closeSheet()

	// Nothing may log once the TUI owns the terminal.
	rows, err := browse.RunLoader(cfg.SheetKey(), cfg.Sheet.Timeout, sh.Rows)
	if err != nil {
		fmt.Printf("Error reading sheet: %v\n", err)
		return nil
	}

	if err := browse.Run(cfg.SheetKey(), browse.EntriesFromRows(rows)); err != nil {
		fmt.Printf("TUI error: %v\n", err)
	}
	return nil
}

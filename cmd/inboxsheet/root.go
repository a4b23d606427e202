package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/inboxsheet/internal/ai"
	"github.com/amishk599/inboxsheet/internal/config"
	"github.com/amishk599/inboxsheet/internal/filter"
	"github.com/amishk599/inboxsheet/internal/mailtext"
	"github.com/amishk599/inboxsheet/internal/model"
	"github.com/amishk599/inboxsheet/internal/notifier"
	"github.com/amishk599/inboxsheet/internal/poller"
	"github.com/amishk599/inboxsheet/internal/ratelimit"
	"github.com/amishk599/inboxsheet/internal/retry"
	"github.com/amishk599/inboxsheet/internal/runlock"
	"github.com/amishk599/inboxsheet/internal/secrets"
	"github.com/amishk599/inboxsheet/internal/sheet"
	"github.com/amishk599/inboxsheet/internal/source"
	"github.com/amishk599/inboxsheet/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "inboxsheet",
	Short: "Turn job-listing emails into spreadsheet rows",
	Long: "InboxSheet reads unread job-listing emails, extracts one row per posting with an LLM,\n" +
		"appends the rows to a sheet and marks the emails read.",
	// No subcommand serves the webhook, matching how the service is deployed.
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: INBOXSHEET_CONFIG env var or ./config.yaml, else environment only)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config source and parses it.
// Priority: explicit path arg > INBOXSHEET_CONFIG env var > "./config.yaml" > environment variables.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("INBOXSHEET_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		} else if errors.Is(err, fs.ErrNotExist) {
			return config.LoadEnv()
		}
	}
	if path == "" {
		path = "config.yaml"
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	return newLogger(os.Stdout, dbg)
}

func newLogger(w io.Writer, dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// mustLoad loads the config or exits, logging why.
func mustLoad(logger *slog.Logger) *config.Config {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, time.Second, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// imapPassword returns the configured password, or the one stored in the OS
// keyring when use_keyring is set and no password is configured.
func imapPassword(c config.IMAPConfig) (string, error) {
	if c.Password != "" || !c.UseKeyring {
		return c.Password, nil
	}
	pw, err := secrets.GetIMAPPassword(secrets.IMAPAccount(c.Username, c.Host))
	if err != nil {
		return "", fmt.Errorf("imap password from keyring: %w", err)
	}
	return pw, nil
}

func buildSource(cfg *config.Config, retrier *retry.Retrier, logger *slog.Logger) (model.Source, error) {
	switch cfg.Source.Type {
	case "maildir":
		return source.NewMaildir(cfg.Source.Maildir.Path, cfg.Source.MaxMessages, logger), nil
	default:
		pw, err := imapPassword(cfg.Source.IMAP)
		if err != nil {
			return nil, err
		}
		return source.NewIMAP(source.IMAPOptions{
			Addr:        cfg.Source.IMAP.Addr(),
			Username:    cfg.Source.IMAP.Username,
			Password:    pw,
			Mailbox:     cfg.Source.IMAP.Mailbox,
			Timeout:     cfg.Source.IMAP.Timeout,
			MaxMessages: cfg.Source.MaxMessages,
		}, retrier, logger), nil
	}
}

// buildSheet opens the configured sheet backend. The returned close func is
// never nil.
func buildSheet(ctx context.Context, cfg *config.Config) (model.Sheet, func() error, error) {
	noClose := func() error { return nil }
	switch cfg.Sheet.Type {
	case "xlsx":
		return store.NewXLSXSheet(cfg.Sheet.XLSX.Path, cfg.Sheet.XLSX.Tab), noClose, nil
	case "sqlite":
		s, err := store.NewSQLiteSheet(cfg.Sheet.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite sheet: %w", err)
		}
		return s, s.Close, nil
	default:
		creds, err := cfg.Sheet.GSheets.Credentials()
		if err != nil {
			return nil, nil, err
		}
		s, err := store.NewGoogleSheet(ctx, creds, cfg.Sheet.GSheets.SpreadsheetID, cfg.Sheet.GSheets.Tab)
		if err != nil {
			return nil, nil, err
		}
		return s, noClose, nil
	}
}

func buildProvider(cfg *config.Config) ai.LLMProvider {
	httpClient := &http.Client{Timeout: cfg.AI.Timeout}
	p := ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.JSONMode, httpClient)
	return ratelimit.Wrap(p, cfg.AI.RequestsPerMinute)
}

// pipeline is a fully wired, lock-guarded run plus what it holds open.
type pipeline struct {
	runner *poller.GuardedRunner
	close  func() error
}

type pipelineOptions struct {
	dryRun bool
}

func buildPipeline(ctx context.Context, cfg *config.Config, opts pipelineOptions, logger *slog.Logger) (*pipeline, error) {
	retrier := retry.New(2, 2*time.Second, logger)

	src, err := buildSource(cfg, retrier, logger)
	if err != nil {
		return nil, err
	}

	var sh model.Sheet
	closeSheet := func() error { return nil }
	var n model.Notifier
	if opts.dryRun {
		src = source.ReadOnly(src, logger)
		sh = store.NewNopSheet()
		n = notifier.NewLogNotifier(logger)
	} else {
		sh, closeSheet, err = buildSheet(ctx, cfg)
		if err != nil {
			return nil, err
		}
		n = setupNotifier(cfg, &http.Client{Timeout: 30 * time.Second}, logger)
	}

	msgFilter := filter.NewHeaderFilter(cfg.Source.Filter.Subject, cfg.Source.Filter.From, cfg.Source.Filter.MaxAge)
	text := mailtext.NewExtractor(cfg.Source.FallbackCharset, cfg.Source.HTMLFallback, logger)
	records := ai.NewRecordExtractor(buildProvider(cfg), ai.JobExtractionTemplate, cfg.AI.MaxInputChars, logger)
	writer := sheet.NewWriter(sh, retrier, cfg.Sheet.Timeout, logger)

	p := poller.New(src, msgFilter, text, records, writer, n, poller.Options{ExtractTimeout: cfg.AI.Timeout}, logger)
	lock := runlock.New(cfg.LockPath())
	logger.Debug("run lock", "path", lock.Path())

	return &pipeline{
		runner: poller.NewGuardedRunner(p, lock, cfg.RunTimeout),
		close:  closeSheet,
	}, nil
}

func logConfig(cfg *config.Config, logger *slog.Logger) {
	logger.Info("config loaded",
		"source", cfg.Source.Type,
		"sheet", cfg.Sheet.Type,
		"subject", cfg.Source.Filter.Subject,
		"model", cfg.AI.Model,
		"run_timeout", cfg.RunTimeout.String(),
	)
}

package config

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for inboxsheet.
type Config struct {
	PollingInterval time.Duration
	RunTimeout      time.Duration
	LockFile        string
	Source          SourceConfig
	AI              AIConfig
	Sheet           SheetConfig
	Notification    NotificationConfig
	Server          ServerConfig
}

// SourceConfig selects and configures the message store.
type SourceConfig struct {
	Type            string // "imap" or "maildir"
	IMAP            IMAPConfig
	Maildir         MaildirConfig
	Filter          FilterConfig
	MaxMessages     int    // 0 means no cap
	FallbackCharset string // used when the declared charset fails to decode
	HTMLFallback    bool   // use text/html parts when no text/plain part exists
}

// IMAPConfig holds the mailbox connection settings.
type IMAPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string // expanded from env var by Load
	UseKeyring bool   // read the password from the OS keyring when Password is empty
	Mailbox    string
	Timeout    time.Duration // per-operation timeout
}

// Addr returns host:port.
func (c IMAPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaildirConfig points at a local Maildir (new/, cur/, tmp/).
type MaildirConfig struct {
	Path string `yaml:"path"`
}

// FilterConfig selects which unconsumed messages are candidates.
type FilterConfig struct {
	Subject string
	From    string
	MaxAge  time.Duration // zero means no age limit
}

// AIConfig controls the extraction oracle.
type AIConfig struct {
	BaseURL           string // any OpenAI-compatible endpoint
	Model             string
	APIKey            string // expanded from env var by Load
	Timeout           time.Duration
	MaxInputChars     int
	JSONMode          bool // request response_format json_object
	RequestsPerMinute int  // 0 disables pacing
}

// SheetConfig selects and configures the tabular sink.
type SheetConfig struct {
	Type    string // "gsheets", "xlsx" or "sqlite"
	Timeout time.Duration
	GSheets GSheetsConfig
	XLSX    XLSXConfig
	SQLite  SQLiteConfig
}

// GSheetsConfig targets one tab of a Google spreadsheet.
type GSheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	Tab             string `yaml:"tab"`
	CredentialsJSON string `yaml:"credentials_json"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Credentials returns the service-account JSON, reading CredentialsFile when
// no inline JSON is configured.
func (c GSheetsConfig) Credentials() ([]byte, error) {
	if strings.TrimSpace(c.CredentialsJSON) != "" {
		return []byte(c.CredentialsJSON), nil
	}
	b, err := os.ReadFile(c.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheet.gsheets.credentials_file: %w", err)
	}
	return b, nil
}

// XLSXConfig targets one worksheet of a local workbook.
type XLSXConfig struct {
	Path string `yaml:"path"`
	Tab  string `yaml:"tab"`
}

// SQLiteConfig targets a local SQLite database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// ServerConfig configures the webhook listener.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	WebhookToken string `yaml:"webhook_token"` // optional shared secret for POST /webhook
}

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	defaultModel         = "gemini-1.5-flash"
	defaultSubject       = "God bless you"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	PollingInterval string             `yaml:"polling_interval"`
	RunTimeout      string             `yaml:"run_timeout"`
	LockFile        string             `yaml:"lock_file"`
	Source          rawSourceConfig    `yaml:"source"`
	AI              rawAIConfig        `yaml:"ai"`
	Sheet           rawSheetConfig     `yaml:"sheet"`
	Notification    NotificationConfig `yaml:"notification"`
	Server          ServerConfig       `yaml:"server"`
}

type rawSourceConfig struct {
	Type            string          `yaml:"type"`
	IMAP            rawIMAPConfig   `yaml:"imap"`
	Maildir         MaildirConfig   `yaml:"maildir"`
	Filter          rawFilterConfig `yaml:"filter"`
	MaxMessages     int             `yaml:"max_messages"`
	FallbackCharset *string         `yaml:"fallback_charset"`
	HTMLFallback    bool            `yaml:"html_fallback"`
}

type rawIMAPConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	UseKeyring bool   `yaml:"use_keyring"`
	Mailbox    string `yaml:"mailbox"`
	Timeout    string `yaml:"timeout"`
}

type rawFilterConfig struct {
	Subject *string `yaml:"subject"`
	From    string  `yaml:"from"`
	MaxAge  string  `yaml:"max_age"`
}

type rawAIConfig struct {
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"api_key"`
	Timeout           string `yaml:"timeout"`
	MaxInputChars     int    `yaml:"max_input_chars"`
	JSONMode          bool   `yaml:"json_mode"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type rawSheetConfig struct {
	Type    string        `yaml:"type"`
	Timeout string        `yaml:"timeout"`
	GSheets GSheetsConfig `yaml:"gsheets"`
	XLSX    XLSXConfig    `yaml:"xlsx"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
}

//go:embed default.yaml
var defaultYAML string

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// LoadEnv builds a Config purely from environment variables, for deployments
// that ship no config file (GMAIL_ADDRESS, GMAIL_APP_PASSWORD, GEMINI_API_KEY,
// GCP_SA_CREDS_JSON, GOOGLE_SHEET_ID).
func LoadEnv() (*Config, error) {
	return parse([]byte(defaultYAML), func(cfg *Config) {
		// Service-account JSON is multi-line and quoted, so it cannot go
		// through ExpandEnv into YAML.
		cfg.Sheet.GSheets.CredentialsJSON = os.Getenv("GCP_SA_CREDS_JSON")
		if port := os.Getenv("PORT"); port != "" {
			cfg.Server.Addr = ":" + port
		}
	})
}

// Parse expands environment variables in data and decodes it.
func Parse(data []byte) (*Config, error) {
	return parse(data, nil)
}

func parse(data []byte, patch func(*Config)) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	interval, err := parseDuration("polling_interval", raw.PollingInterval, 15*time.Minute)
	if err != nil {
		return nil, err
	}
	runTimeout, err := parseDuration("run_timeout", raw.RunTimeout, 10*time.Minute)
	if err != nil {
		return nil, err
	}
	imapTimeout, err := parseDuration("source.imap.timeout", raw.Source.IMAP.Timeout, 60*time.Second)
	if err != nil {
		return nil, err
	}
	maxAge, err := parseDuration("source.filter.max_age", raw.Source.Filter.MaxAge, 0)
	if err != nil {
		return nil, err
	}
	aiTimeout, err := parseDuration("ai.timeout", raw.AI.Timeout, 60*time.Second)
	if err != nil {
		return nil, err
	}
	sheetTimeout, err := parseDuration("sheet.timeout", raw.Sheet.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}

	subject := defaultSubject
	if raw.Source.Filter.Subject != nil {
		subject = *raw.Source.Filter.Subject
	}
	fallbackCharset := "iso-8859-1"
	if raw.Source.FallbackCharset != nil {
		fallbackCharset = *raw.Source.FallbackCharset
	}

	cfg := &Config{
		PollingInterval: interval,
		RunTimeout:      runTimeout,
		LockFile:        raw.LockFile,
		Source: SourceConfig{
			Type: orDefault(raw.Source.Type, "imap"),
			IMAP: IMAPConfig{
				Host:       orDefault(raw.Source.IMAP.Host, "imap.gmail.com"),
				Port:       raw.Source.IMAP.Port,
				Username:   raw.Source.IMAP.Username,
				Password:   raw.Source.IMAP.Password,
				UseKeyring: raw.Source.IMAP.UseKeyring,
				Mailbox:    orDefault(raw.Source.IMAP.Mailbox, "INBOX"),
				Timeout:    imapTimeout,
			},
			Maildir: raw.Source.Maildir,
			Filter: FilterConfig{
				Subject: subject,
				From:    raw.Source.Filter.From,
				MaxAge:  maxAge,
			},
			MaxMessages:     raw.Source.MaxMessages,
			FallbackCharset: fallbackCharset,
			HTMLFallback:    raw.Source.HTMLFallback,
		},
		AI: AIConfig{
			BaseURL:           strings.TrimRight(orDefault(raw.AI.BaseURL, defaultGeminiBaseURL), "/"),
			Model:             orDefault(raw.AI.Model, defaultModel),
			APIKey:            raw.AI.APIKey,
			Timeout:           aiTimeout,
			MaxInputChars:     raw.AI.MaxInputChars,
			JSONMode:          raw.AI.JSONMode,
			RequestsPerMinute: raw.AI.RequestsPerMinute,
		},
		Sheet: SheetConfig{
			Type:    orDefault(raw.Sheet.Type, "gsheets"),
			Timeout: sheetTimeout,
			GSheets: raw.Sheet.GSheets,
			XLSX:    raw.Sheet.XLSX,
			SQLite:  raw.Sheet.SQLite,
		},
		Notification: raw.Notification,
		Server:       raw.Server,
	}
	if cfg.Source.IMAP.Port == 0 {
		cfg.Source.IMAP.Port = 993
	}
	if cfg.AI.MaxInputChars == 0 {
		cfg.AI.MaxInputChars = 8000
	}
	if cfg.Sheet.GSheets.Tab == "" {
		cfg.Sheet.GSheets.Tab = "Sheet1"
	}
	if cfg.Sheet.XLSX.Tab == "" {
		cfg.Sheet.XLSX.Tab = "Jobs"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}

	if patch != nil {
		patch(cfg)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseDuration parses value, returning def when it is empty.
func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, value, err)
	}
	return d, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// SheetKey identifies the sink so that runs against the same sink share a lock.
func (c *Config) SheetKey() string {
	switch c.Sheet.Type {
	case "gsheets":
		return "gsheets:" + c.Sheet.GSheets.SpreadsheetID + "/" + c.Sheet.GSheets.Tab
	case "xlsx":
		abs, err := filepath.Abs(c.Sheet.XLSX.Path)
		if err != nil {
			abs = c.Sheet.XLSX.Path
		}
		return "xlsx:" + abs + "/" + c.Sheet.XLSX.Tab
	default:
		abs, err := filepath.Abs(c.Sheet.SQLite.Path)
		if err != nil {
			abs = c.Sheet.SQLite.Path
		}
		return "sqlite:" + abs
	}
}

// LockPath returns the lock file guarding the configured sink.
func (c *Config) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	sum := sha256.Sum256([]byte(c.SheetKey()))
	return filepath.Join(os.TempDir(), "inboxsheet-"+hex.EncodeToString(sum[:6])+".lock")
}

func validate(cfg *Config) error {
	if cfg.PollingInterval <= 0 {
		return fmt.Errorf("polling_interval must be positive, got %v", cfg.PollingInterval)
	}
	if cfg.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be positive, got %v", cfg.RunTimeout)
	}
	if cfg.Source.Filter.MaxAge < 0 {
		return fmt.Errorf("source.filter.max_age must not be negative, got %v", cfg.Source.Filter.MaxAge)
	}
	if cfg.Source.MaxMessages < 0 {
		return fmt.Errorf("source.max_messages must not be negative, got %d", cfg.Source.MaxMessages)
	}

	switch cfg.Source.Type {
	case "imap":
		if cfg.Source.IMAP.Username == "" {
			return fmt.Errorf("source.imap.username is required")
		}
		if cfg.Source.IMAP.Password == "" && !cfg.Source.IMAP.UseKeyring {
			return fmt.Errorf("source.imap.password is required unless source.imap.use_keyring is true")
		}
	case "maildir":
		if cfg.Source.Maildir.Path == "" {
			return fmt.Errorf("source.maildir.path is required when source.type is \"maildir\"")
		}
	default:
		return fmt.Errorf("source.type must be \"imap\" or \"maildir\", got %q", cfg.Source.Type)
	}

	if cfg.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required")
	}
	if cfg.AI.MaxInputChars < 0 {
		return fmt.Errorf("ai.max_input_chars must be positive, got %d", cfg.AI.MaxInputChars)
	}
	if cfg.AI.RequestsPerMinute < 0 {
		return fmt.Errorf("ai.requests_per_minute must not be negative, got %d", cfg.AI.RequestsPerMinute)
	}

	switch cfg.Sheet.Type {
	case "gsheets":
		if cfg.Sheet.GSheets.SpreadsheetID == "" {
			return fmt.Errorf("sheet.gsheets.spreadsheet_id is required")
		}
		if cfg.Sheet.GSheets.CredentialsJSON == "" && cfg.Sheet.GSheets.CredentialsFile == "" {
			return fmt.Errorf("sheet.gsheets.credentials_json or sheet.gsheets.credentials_file is required")
		}
		if cfg.Sheet.GSheets.CredentialsJSON != "" {
			if err := checkServiceAccount([]byte(cfg.Sheet.GSheets.CredentialsJSON)); err != nil {
				return fmt.Errorf("sheet.gsheets.credentials_json: %w", err)
			}
		}
	case "xlsx":
		if cfg.Sheet.XLSX.Path == "" {
			return fmt.Errorf("sheet.xlsx.path is required when sheet.type is \"xlsx\"")
		}
	case "sqlite":
		if cfg.Sheet.SQLite.Path == "" {
			return fmt.Errorf("sheet.sqlite.path is required when sheet.type is \"sqlite\"")
		}
	default:
		return fmt.Errorf("sheet.type must be one of gsheets, xlsx, sqlite; got %q", cfg.Sheet.Type)
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	default:
		return fmt.Errorf("notification.type must be \"log\" or \"slack\", got %q", cfg.Notification.Type)
	}

	return nil
}

// checkServiceAccount rejects payloads that are not a service-account key.
func checkServiceAccount(b []byte) error {
	var sa struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(b, &sa); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if sa.ClientEmail == "" {
		return fmt.Errorf("missing client_email")
	}
	return nil
}

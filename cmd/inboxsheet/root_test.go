package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amishk599/inboxsheet/internal/config"
)

const maildirConfig = `
source: {type: maildir, maildir: {path: ./mail}}
ai: {api_key: k}
sheet: {type: sqlite, sqlite: {path: jobs.db}}
`

const xlsxConfig = `
source: {type: maildir, maildir: {path: ./mail}}
ai: {api_key: k}
sheet: {type: xlsx, xlsx: {path: jobs.xlsx}}
`

func TestLoadConfig_Resolution(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("INBOXSHEET_CONFIG", "")
	t.Setenv("GMAIL_ADDRESS", "jobs@example.com")
	t.Setenv("GMAIL_APP_PASSWORD", "app-password")
	t.Setenv("GEMINI_API_KEY", "gm-key")
	t.Setenv("GOOGLE_SHEET_ID", "sheet-123")
	t.Setenv("GCP_SA_CREDS_JSON", `{"type":"service_account","client_email":"bot@proj.iam.gserviceaccount.com"}`)

	// No file anywhere: environment only.
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("env-only loadConfig: %v", err)
	}
	if cfg.Sheet.Type != "gsheets" || cfg.Source.Type != "imap" {
		t.Errorf("env-only config = %s/%s, want imap/gsheets", cfg.Source.Type, cfg.Sheet.Type)
	}

	// ./config.yaml beats the environment.
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(maildirConfig), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig with ./config.yaml: %v", err)
	}
	if cfg.Source.Type != "maildir" {
		t.Errorf("Source.Type = %q, want maildir from ./config.yaml", cfg.Source.Type)
	}

	// INBOXSHEET_CONFIG beats ./config.yaml.
	other := filepath.Join(dir, "other.yaml")
	if err := os.WriteFile(other, []byte(xlsxConfig), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INBOXSHEET_CONFIG", other)
	cfg, err = loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig with INBOXSHEET_CONFIG: %v", err)
	}
	if cfg.Sheet.Type != "xlsx" {
		t.Errorf("Sheet.Type = %q, want xlsx from INBOXSHEET_CONFIG", cfg.Sheet.Type)
	}

	// An explicit path beats everything.
	if _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("explicit missing path should fail, not fall back")
	}
}

func TestImapPassword(t *testing.T) {
	cfg, err := loadConfigFromString(t, maildirConfig)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Source.IMAP.Password = "configured"
	cfg.Source.IMAP.UseKeyring = true
	pw, err := imapPassword(cfg.Source.IMAP)
	if err != nil || pw != "configured" {
		t.Errorf("imapPassword = %q, %v; want configured password without keyring lookup", pw, err)
	}
}

func loadConfigFromString(t *testing.T, content string) (*config.Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return loadConfig(path)
}

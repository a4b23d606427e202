package secrets

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestIMAPPasswordRoundTrip(t *testing.T) {
	keyring.MockInit()
	account := IMAPAccount("jobs@example.com", "imap.gmail.com")

	if _, err := GetIMAPPassword(account); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetIMAPPassword before Set: err = %v, want ErrNotFound", err)
	}
	if err := SetIMAPPassword(account, "app-password"); err != nil {
		t.Fatalf("SetIMAPPassword: %v", err)
	}
	pw, err := GetIMAPPassword(account)
	if err != nil {
		t.Fatalf("GetIMAPPassword: %v", err)
	}
	if pw != "app-password" {
		t.Errorf("password = %q, want app-password", pw)
	}
	if err := DeleteIMAPPassword(account); err != nil {
		t.Fatalf("DeleteIMAPPassword: %v", err)
	}
	if _, err := GetIMAPPassword(account); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetIMAPPassword after Delete: err = %v, want ErrNotFound", err)
	}
}

func TestSetIMAPPassword_RejectsEmpty(t *testing.T) {
	keyring.MockInit()
	if err := SetIMAPPassword("", "pw"); err == nil {
		t.Error("expected error for empty account")
	}
	if err := SetIMAPPassword("acct", "  "); err == nil {
		t.Error("expected error for blank password")
	}
}

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/inboxsheet/internal/secrets"
)

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Manage the IMAP password stored in the OS keyring",
	Long:  "The stored password is used when source.imap.use_keyring is true and no password is configured.",
}

var keyringSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the IMAP password (read from stdin)",
	RunE:  runKeyringSet,
}

var keyringDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored IMAP password",
	RunE:  runKeyringDelete,
}

func init() {
	rootCmd.AddCommand(keyringCmd)
	keyringCmd.AddCommand(keyringSetCmd, keyringDeleteCmd)
}

// keyringAccount names the entry for the configured mailbox login.
func keyringAccount() (string, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.Source.Type != "imap" {
		return "", errors.New("source.type is not imap; nothing to store")
	}
	return secrets.IMAPAccount(cfg.Source.IMAP.Username, cfg.Source.IMAP.Host), nil
}

func runKeyringSet(cmd *cobra.Command, args []string) error {
	account, err := keyringAccount()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "IMAP password for %s: ", account)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	if err := secrets.SetIMAPPassword(account, strings.TrimRight(line, "\r\n")); err != nil {
		return err
	}
	fmt.Printf("stored password for %s\n", account)
	return nil
}

func runKeyringDelete(cmd *cobra.Command, args []string) error {
	account, err := keyringAccount()
	if err != nil {
		return err
	}
	if err := secrets.DeleteIMAPPassword(account); err != nil {
		return err
	}
	fmt.Printf("deleted password for %s\n", account)
	return nil
}

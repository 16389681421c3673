package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/jobmail-export/config"
	"github.com/dhcgn/jobmail-export/credential"
)

var (
	loginHost    string
	loginUser    string
	loginEnvFile string
	loginDelete  bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the IMAP password in the OS keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.LoadEnv(loginEnvFile)
		if err != nil {
			return err
		}
		host := firstNonEmpty(loginHost, env.IMAPHost)
		user := firstNonEmpty(loginUser, env.IMAPUser)
		if host == "" || user == "" {
			return errors.New("--imap-host and --imap-user are required")
		}
		key := credential.IMAPKey(user, host)

		if loginDelete {
			if err := credential.Delete(key); err != nil {
				return fmt.Errorf("delete credential: %w", err)
			}
			pterm.Success.Printf("Removed stored password for %s@%s\n", user, host)
			return nil
		}

		password, err := pterm.DefaultInteractiveTextInput.
			WithMask("*").
			Show(fmt.Sprintf("IMAP password for %s@%s", user, host))
		if err != nil {
			return err
		}
		if strings.TrimSpace(password) == "" {
			return errors.New("empty password")
		}

		if err := credential.Set(key, password); err != nil {
			return fmt.Errorf("store credential: %w", err)
		}
		pterm.Success.Printf("Stored password for %s@%s\n", user, host)
		return nil
	},
}

func init() {
	flags := loginCmd.Flags()
	flags.StringVar(&loginHost, "imap-host", "", "IMAP server hostname (falls back to IMAP_HOST env var)")
	flags.StringVar(&loginUser, "imap-user", "", "IMAP username (falls back to IMAP_USER env var)")
	flags.StringVar(&loginEnvFile, "env-file", ".env", "Optional dotenv file with IMAP_HOST and IMAP_USER")
	flags.BoolVar(&loginDelete, "delete", false, "Remove the stored password instead of setting it")
	rootCmd.AddCommand(loginCmd)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

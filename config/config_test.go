package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/jobmail-export/charset"
	"github.com/dhcgn/jobmail-export/export"
	"github.com/dhcgn/jobmail-export/source"
)

func parse(t *testing.T, args ...string) (Config, error) {
	t.Helper()

	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, RegisterFlags(cmd))
	args = append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...)
	require.NoError(t, cmd.ParseFlags(args))
	return LoadConfig(cmd)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"IMAP_HOST", "IMAP_USER", "IMAP_PASS"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func stubKeyring(t *testing.T, fn func(user, host string) (string, error)) {
	t.Helper()
	orig := passwordLookup
	passwordLookup = fn
	t.Cleanup(func() { passwordLookup = orig })
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	stubKeyring(t, func(string, string) (string, error) { return "", errors.New("no keyring") })

	cfg, err := parse(t, "--imap-host", "imap.example.com", "--imap-user", "me", "--imap-pass", "pw")
	require.NoError(t, err)

	assert.Equal(t, source.TypeIMAP, cfg.Source)
	assert.Equal(t, 993, cfg.IMAPPort)
	assert.True(t, cfg.UseTLS)
	assert.Equal(t, "INBOX", cfg.Mailbox)
	assert.Equal(t, source.DefaultQuery, cfg.Query)
	assert.Equal(t, export.FormatExcel, cfg.Format)
	assert.Equal(t, "outputs", cfg.OutputDir)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, charset.ModeIgnore, cfg.DecodeMode)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_PasswordResolution(t *testing.T) {
	t.Run("env var", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("IMAP_PASS", "from-env")
		stubKeyring(t, func(string, string) (string, error) { return "from-keyring", nil })

		cfg, err := parse(t, "--imap-host", "h", "--imap-user", "u")
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.IMAPPass)
	})

	t.Run("flag wins", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("IMAP_PASS", "from-env")

		cfg, err := parse(t, "--imap-host", "h", "--imap-user", "u", "--imap-pass", "from-flag")
		require.NoError(t, err)
		assert.Equal(t, "from-flag", cfg.IMAPPass)
	})

	t.Run("keyring", func(t *testing.T) {
		clearEnv(t)
		var gotUser, gotHost string
		stubKeyring(t, func(user, host string) (string, error) {
			gotUser, gotHost = user, host
			return "from-keyring", nil
		})

		cfg, err := parse(t, "--imap-host", "h", "--imap-user", "u")
		require.NoError(t, err)
		assert.Equal(t, "from-keyring", cfg.IMAPPass)
		assert.Equal(t, "u", gotUser)
		assert.Equal(t, "h", gotHost)
	})

	t.Run("missing", func(t *testing.T) {
		clearEnv(t)
		stubKeyring(t, func(string, string) (string, error) { return "", errors.New("not found") })

		_, err := parse(t, "--imap-host", "h", "--imap-user", "u")
		assert.Error(t, err)
	})
}

func TestLoadConfig_EnvFile(t *testing.T) {
	clearEnv(t)
	stubKeyring(t, func(string, string) (string, error) { return "", errors.New("unused") })

	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("IMAP_HOST=imap.dotenv.test\nIMAP_USER=dot\nIMAP_PASS=dotpass\n"), 0o600))
	t.Cleanup(func() {
		for _, k := range []string{"IMAP_HOST", "IMAP_USER", "IMAP_PASS"} {
			_ = os.Unsetenv(k)
		}
	})

	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, RegisterFlags(cmd))
	require.NoError(t, cmd.ParseFlags([]string{"--env-file", envFile}))

	cfg, err := LoadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "imap.dotenv.test", cfg.IMAPHost)
	assert.Equal(t, "dot", cfg.IMAPUser)
	assert.Equal(t, "dotpass", cfg.IMAPPass)
}

func TestLoadConfig_Mbox(t *testing.T) {
	clearEnv(t)

	cfg, err := parse(t, "--source", "MBOX", "--mbox", "archive.mbox", "--format", "csv", "--decode-mode", "replace", "--workers", "4", "--log-level", "WARNING")
	require.NoError(t, err)
	assert.Equal(t, source.TypeMbox, cfg.Source)
	assert.Equal(t, "archive.mbox", cfg.MboxPath)
	assert.Equal(t, export.FormatCSV, cfg.Format)
	assert.Equal(t, charset.ModeReplace, cfg.DecodeMode)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown source", args: []string{"--source", "pop3"}},
		{name: "mbox without path", args: []string{"--source", "mbox"}},
		{name: "imap without host", args: []string{"--imap-user", "u", "--imap-pass", "p"}},
		{name: "imap without user", args: []string{"--imap-host", "h", "--imap-pass", "p"}},
		{name: "bad port", args: []string{"--imap-host", "h", "--imap-user", "u", "--imap-pass", "p", "--imap-port", "70000"}},
		{name: "bad format", args: []string{"--source", "mbox", "--mbox", "a", "--format", "pdf"}},
		{name: "bad decode mode", args: []string{"--source", "mbox", "--mbox", "a", "--decode-mode", "strict"}},
		{name: "bad workers", args: []string{"--source", "mbox", "--mbox", "a", "--workers", "0"}},
		{name: "bad log level", args: []string{"--source", "mbox", "--mbox", "a", "--log-level", "trace"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			stubKeyring(t, func(string, string) (string, error) { return "", errors.New("none") })

			_, err := parse(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

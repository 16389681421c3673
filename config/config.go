package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/jobmail-export/charset"
	"github.com/dhcgn/jobmail-export/credential"
	"github.com/dhcgn/jobmail-export/export"
	"github.com/dhcgn/jobmail-export/source"
)

// Config captures all command-line options required for an export run.
type Config struct {
	Source             source.Type
	MboxPath           string
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	Mailbox            string
	Query              string
	RulesPath          string
	Format             export.Format
	OutputDir          string
	Workers            int
	DecodeMode         charset.Mode
	LogLevel           string
	LogDir             string
	IncludeHeader      []string
	IncludeBody        []string
	ExcludeHeader      []string
	ExcludeBody        []string
}

// passwordLookup reads a stored IMAP password; replaced in tests.
var passwordLookup = func(user, host string) (string, error) {
	return credential.Get(credential.IMAPKey(user, host))
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("source", string(source.TypeIMAP), "Mail source: imap or mbox")
	flags.String("mbox", "", "Path to the .mbox file to scan (with --source mbox)")
	flags.String("imap-host", "", "IMAP server hostname (falls back to IMAP_HOST env var)")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username (falls back to IMAP_USER env var)")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var, then the OS keyring)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("mailbox", "INBOX", "IMAP mailbox to search")
	flags.String("query", source.DefaultQuery, "Whitespace-separated subject terms, any of which selects a message")
	flags.String("rules", "", "YAML file with status rules and company pattern (built-in rules when empty)")
	flags.String("format", string(export.FormatExcel), "Export format: excel or csv")
	flags.String("output-dir", "outputs", "Directory for export files")
	flags.Int("workers", 1, "Messages fetched and classified concurrently")
	flags.String("decode-mode", charset.ModeIgnore.String(), "Undecodable text handling: ignore or replace")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (stdout only when empty)")
	flags.String("env-file", ".env", "Optional dotenv file with IMAP_HOST, IMAP_USER and IMAP_PASS")
	flags.StringArray("include-header", nil, "Regex allow-list applied to mbox message headers")
	flags.StringArray("include-body", nil, "Regex allow-list applied to mbox message bodies")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to mbox message headers")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to mbox message bodies")

	if err := cmd.MarkFlagFilename("mbox", "mbox"); err != nil {
		return err
	}
	if err := cmd.MarkFlagFilename("rules", "yaml", "yml"); err != nil {
		return err
	}

	return nil
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	sourceName, err := flags.GetString("source")
	if err != nil {
		return Config{}, err
	}
	mboxPath, err := flags.GetString("mbox")
	if err != nil {
		return Config{}, err
	}
	imapHost, err := flags.GetString("imap-host")
	if err != nil {
		return Config{}, err
	}
	imapPort, err := flags.GetInt("imap-port")
	if err != nil {
		return Config{}, err
	}
	imapUser, err := flags.GetString("imap-user")
	if err != nil {
		return Config{}, err
	}
	imapPass, err := flags.GetString("imap-pass")
	if err != nil {
		return Config{}, err
	}
	useTLS, err := flags.GetBool("use-tls")
	if err != nil {
		return Config{}, err
	}
	insecureSkipVerify, err := flags.GetBool("insecure-skip-verify")
	if err != nil {
		return Config{}, err
	}
	mailbox, err := flags.GetString("mailbox")
	if err != nil {
		return Config{}, err
	}
	query, err := flags.GetString("query")
	if err != nil {
		return Config{}, err
	}
	rulesPath, err := flags.GetString("rules")
	if err != nil {
		return Config{}, err
	}
	formatName, err := flags.GetString("format")
	if err != nil {
		return Config{}, err
	}
	outputDir, err := flags.GetString("output-dir")
	if err != nil {
		return Config{}, err
	}
	workers, err := flags.GetInt("workers")
	if err != nil {
		return Config{}, err
	}
	decodeModeName, err := flags.GetString("decode-mode")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}
	envFile, err := flags.GetString("env-file")
	if err != nil {
		return Config{}, err
	}
	includeHeader, err := flags.GetStringArray("include-header")
	if err != nil {
		return Config{}, err
	}
	includeBody, err := flags.GetStringArray("include-body")
	if err != nil {
		return Config{}, err
	}
	excludeHeader, err := flags.GetStringArray("exclude-header")
	if err != nil {
		return Config{}, err
	}
	excludeBody, err := flags.GetStringArray("exclude-body")
	if err != nil {
		return Config{}, err
	}

	env, err := LoadEnv(envFile)
	if err != nil {
		return Config{}, err
	}
	if imapHost == "" {
		imapHost = env.IMAPHost
	}
	if imapUser == "" {
		imapUser = env.IMAPUser
	}
	if imapPass == "" {
		imapPass = env.IMAPPass
	}

	src := source.Type(strings.ToLower(strings.TrimSpace(sourceName)))
	if src == source.TypeIMAP && imapPass == "" && imapUser != "" && imapHost != "" {
		if stored, err := passwordLookup(imapUser, imapHost); err == nil {
			imapPass = stored
		}
	}

	format, err := export.ParseFormat(formatName)
	if err != nil {
		return Config{}, fmt.Errorf("--format: %w", err)
	}
	decodeMode, err := charset.ParseMode(decodeModeName)
	if err != nil {
		return Config{}, fmt.Errorf("--decode-mode: %w", err)
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	if outputDir == "" {
		outputDir = "outputs"
	}

	cfg := Config{
		Source:             src,
		MboxPath:           mboxPath,
		IMAPHost:           imapHost,
		IMAPPort:           imapPort,
		IMAPUser:           imapUser,
		IMAPPass:           imapPass,
		UseTLS:             useTLS,
		InsecureSkipVerify: insecureSkipVerify,
		Mailbox:            mailbox,
		Query:              query,
		RulesPath:          rulesPath,
		Format:             format,
		OutputDir:          filepath.Clean(outputDir),
		Workers:            workers,
		DecodeMode:         decodeMode,
		LogLevel:           logLevel,
		LogDir:             logDir,
		IncludeHeader:      includeHeader,
		IncludeBody:        includeBody,
		ExcludeHeader:      excludeHeader,
		ExcludeBody:        excludeBody,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	switch cfg.Source {
	case source.TypeIMAP:
		if cfg.IMAPHost == "" {
			return fmt.Errorf("--imap-host is required")
		}
		if cfg.IMAPUser == "" {
			return fmt.Errorf("--imap-user is required")
		}
		if cfg.IMAPPass == "" {
			return fmt.Errorf("IMAP password must be provided via --imap-pass, IMAP_PASS env var or the login command")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	case source.TypeMbox:
		if cfg.MboxPath == "" {
			return fmt.Errorf("--mbox is required with --source mbox")
		}
	default:
		return fmt.Errorf("invalid --source: %s", cfg.Source)
	}

	if cfg.Workers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/jobmail-export/config"
	"github.com/dhcgn/jobmail-export/decoder"
	"github.com/dhcgn/jobmail-export/export"
	"github.com/dhcgn/jobmail-export/imap"
	"github.com/dhcgn/jobmail-export/mbox"
	"github.com/dhcgn/jobmail-export/progress"
	"github.com/dhcgn/jobmail-export/runner"
	"github.com/dhcgn/jobmail-export/source"
	"github.com/dhcgn/jobmail-export/stats"
)

var rootCmd = &cobra.Command{
	Use:   "jobmail-export",
	Short: "Export job application emails to a spreadsheet",
	Long: "Scans a mailbox for job application emails, classifies each one by status " +
		"and company, and writes the results to an Excel or CSV file.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cmd)
		if err != nil {
			return err
		}

		logger, cleanup, err := setupLogger(cfg.LogLevel, cfg.LogDir)
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()

		slog.SetDefault(logger)
		logger.Info("starting jobmail-export", "source", cfg.Source, "query", cfg.Query, "format", cfg.Format)

		_, err = runExport(cmd.Context(), cfg, logger)
		return err
	},
}

func init() {
	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// runExport runs the pipeline and writes the export file, returning its path.
// Nothing is written when the pipeline fails.
func runExport(ctx context.Context, cfg config.Config, logger *slog.Logger) (string, error) {
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		return "", err
	}
	cls, err := rules.Classifier()
	if err != nil {
		return "", err
	}

	sink, err := export.New(cfg.Format)
	if err != nil {
		return "", err
	}

	ret, closeRetriever, err := newRetriever(cfg, logger)
	if err != nil {
		return "", err
	}
	defer closeRetriever()

	r, err := runner.New(ctx, runner.Options{Query: cfg.Query, Workers: cfg.Workers}, ret, decoder.New(cfg.DecodeMode), cls, logger)
	if err != nil {
		return "", fmt.Errorf("runner.New: %w", err)
	}
	stats.NewReporter(r, logger)
	progress.NewReporter(r, progress.New(cfg.LogLevel), logger)

	records, err := r.Run()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := export.OutputPath(cfg.OutputDir, cfg.Format, time.Now())
	if err := sink.Export(records, path); err != nil {
		return "", fmt.Errorf("export %s: %w", path, err)
	}

	logger.Info("export completed", "path", path, "records", len(records))
	if cfg.LogLevel == "info" {
		pterm.Success.Printf("Export completed: %s\n", filepath.Base(path))
	}
	return path, nil
}

func newRetriever(cfg config.Config, logger *slog.Logger) (source.Retriever, func(), error) {
	switch cfg.Source {
	case source.TypeIMAP:
		r, err := imap.NewRetriever(imap.Options{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Mailbox:            cfg.Mailbox,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("imap.NewRetriever: %w", err)
		}
		return r, func() { _ = r.Close() }, nil
	case source.TypeMbox:
		r, err := mbox.NewRetriever(mbox.Options{
			Path:          cfg.MboxPath,
			IncludeHeader: cfg.IncludeHeader,
			IncludeBody:   cfg.IncludeBody,
			ExcludeHeader: cfg.ExcludeHeader,
			ExcludeBody:   cfg.ExcludeBody,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("mbox.NewRetriever: %w", err)
		}
		return r, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

func setupLogger(logLevel, logDir string) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch logLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }
	runID := uuid.NewString()

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(logDir, fmt.Sprintf("jobmail-export-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler).With("run", runID), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler).With("run", runID), cleanup, nil
}

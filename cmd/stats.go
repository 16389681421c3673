package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/jobmail-export/charset"
	"github.com/dhcgn/jobmail-export/config"
	"github.com/dhcgn/jobmail-export/decoder"
	"github.com/dhcgn/jobmail-export/mbox"
	"github.com/dhcgn/jobmail-export/model"
	"github.com/dhcgn/jobmail-export/runner"
	"github.com/dhcgn/jobmail-export/source"
	"github.com/dhcgn/jobmail-export/stats"
)

var (
	reportDir     string
	topN          int
	statsRules    string
	statsQuery    string
	statsDecode   string
	statsWorkers  int
	statsLogLevel string
	includeHeader []string
	includeBody   []string
	excludeHeader []string
	excludeBody   []string
)

// Report categories, in print order.
var reportFields = []string{"Status", "Company"}

var statsCmd = &cobra.Command{
	Use:   "stats [mbox file]",
	Short: "Classify an mbox file and show status and company statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mboxPath := args[0]

		mode, err := charset.ParseMode(statsDecode)
		if err != nil {
			return fmt.Errorf("--decode-mode: %w", err)
		}
		rules, err := config.LoadRules(statsRules)
		if err != nil {
			return err
		}
		cls, err := rules.Classifier()
		if err != nil {
			return err
		}

		logger, cleanup, err := setupLogger(statsLogLevel, "")
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()

		ret, err := mbox.NewRetriever(mbox.Options{
			Path:          mboxPath,
			IncludeHeader: includeHeader,
			IncludeBody:   includeBody,
			ExcludeHeader: excludeHeader,
			ExcludeBody:   excludeBody,
		}, logger)
		if err != nil {
			return fmt.Errorf("mbox.NewRetriever: %w", err)
		}

		r, err := runner.New(cmd.Context(), runner.Options{Query: statsQuery, Workers: statsWorkers}, ret, decoder.New(mode), cls, logger)
		if err != nil {
			return fmt.Errorf("runner.New: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Analyzing mbox file:", mboxPath)

		records, err := r.Run()
		if err != nil {
			return fmt.Errorf("error reading mbox file: %w", err)
		}

		counter := tally(records)
		fmt.Fprintf(out, "Classified %d messages\n\n", len(records))
		printStats(out, counter, topN)

		if err := saveCSVReports(counter, reportDir, 1000); err != nil {
			return fmt.Errorf("error saving CSV reports: %w", err)
		}
		fmt.Fprintf(out, "Reports saved to directory: %s\n", reportDir)

		return nil
	},
}

func init() {
	flags := statsCmd.Flags()
	flags.StringVarP(&reportDir, "output", "o", ".", "Output directory for CSV reports")
	flags.IntVarP(&topN, "top", "t", 10, "Number of top items to display in statistics")
	flags.StringVar(&statsRules, "rules", "", "YAML file with status rules (built-in rules when empty)")
	flags.StringVar(&statsQuery, "query", source.DefaultQuery, "Whitespace-separated subject terms; empty matches every message")
	flags.StringVar(&statsDecode, "decode-mode", charset.ModeIgnore.String(), "Undecodable text handling: ignore or replace")
	flags.IntVar(&statsWorkers, "workers", 1, "Messages classified concurrently")
	flags.StringVar(&statsLogLevel, "log-level", "warn", "Logging level: debug, info, warn, error")
	flags.StringArrayVar(&includeHeader, "include-header", nil, "Regex allow-list applied to message headers")
	flags.StringArrayVar(&includeBody, "include-body", nil, "Regex allow-list applied to message bodies")
	flags.StringArrayVar(&excludeHeader, "exclude-header", nil, "Regex block-list applied to message headers")
	flags.StringArrayVar(&excludeBody, "exclude-body", nil, "Regex block-list applied to message bodies")
	rootCmd.AddCommand(statsCmd)
}

func tally(records []model.ClassifiedRecord) map[string]map[string]int {
	counter := make(map[string]map[string]int, len(reportFields))
	for _, f := range reportFields {
		counter[f] = make(map[string]int)
	}
	for _, rec := range records {
		counter["Status"][rec.Status]++
		if rec.Company != "" {
			counter["Company"][rec.Company]++
		}
	}
	return counter
}

func printStats(w io.Writer, counter map[string]map[string]int, limit int) {
	for _, field := range reportFields {
		fmt.Fprintf(w, "Top %d %s:\n", limit, field)
		stats.PrettyPrintTop(w, counter[field], limit)
		fmt.Fprintln(w)
	}
}

func saveCSVReports(counter map[string]map[string]int, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, field := range reportFields {
		filePath := filepath.Join(dir, fmt.Sprintf("report_%s.csv", strings.ToLower(field)))

		file, err := os.Create(filePath)
		if err != nil {
			return err
		}

		writer := csv.NewWriter(file)
		if err := writer.Write([]string{"Value", "Count"}); err != nil {
			file.Close()
			return err
		}

		for _, c := range stats.Top(counter[field], limit) {
			if err := writer.Write([]string{c.Key, strconv.Itoa(c.Value)}); err != nil {
				file.Close()
				return err
			}
		}

		writer.Flush()
		if err := writer.Error(); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
	}

	return nil
}

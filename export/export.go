// Package export writes classified records to spreadsheet files.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhcgn/jobmail-export/model"
)

// Header is the first row of every export.
var Header = []string{"Company", "Date", "Status", "Subject"}

// Sink writes the complete record list to path.
type Sink interface {
	Export(records []model.ClassifiedRecord, path string) error
}

type Format string

const (
	FormatExcel Format = "excel"
	FormatCSV   Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatExcel, "xlsx":
		return FormatExcel, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want excel or csv)", s)
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	if f == FormatCSV {
		return "csv"
	}
	return "xlsx"
}

// New returns the sink for format.
func New(format Format) (Sink, error) {
	switch format {
	case FormatExcel:
		return Excel{}, nil
	case FormatCSV:
		return CSV{}, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// OutputPath names an export file job_applications_YYYYMMDD_HHMMSS.<ext> in dir.
func OutputPath(dir string, format Format, now time.Time) string {
	name := fmt.Sprintf("job_applications_%s.%s", now.Format("20060102_150405"), format.Extension())
	return filepath.Join(dir, name)
}

func row(rec model.ClassifiedRecord) []string {
	return []string{rec.Company, rec.Date, rec.Status, rec.Subject}
}

// writeAtomic streams into a temp file next to path and renames it into
// place once write succeeds.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename export: %w", err)
	}
	return nil
}

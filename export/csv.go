package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dhcgn/jobmail-export/model"
)

// CSV writes RFC 4180 comma-separated output.
type CSV struct{}

func (CSV) Export(records []model.ClassifiedRecord, path string) error {
	return writeAtomic(path, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write(Header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		for i, rec := range records {
			if err := writer.Write(row(rec)); err != nil {
				return fmt.Errorf("write csv row %d: %w", i+1, err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("flush csv: %w", err)
		}
		return nil
	})
}

package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/dhcgn/jobmail-export/model"
)

const DefaultSheet = "Sheet1"

// Excel writes a single-sheet .xlsx workbook.
type Excel struct {
	// Sheet defaults to DefaultSheet.
	Sheet string
}

func (e Excel) Export(records []model.ClassifiedRecord, path string) error {
	sheet := e.Sheet
	if sheet == "" {
		sheet = DefaultSheet
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if sheet != DefaultSheet {
		if err := f.SetSheetName(DefaultSheet, sheet); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	}

	header := Header
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write excel header: %w", err)
	}
	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row(rec)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write excel row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "D", 32); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	return writeAtomic(path, func(w io.Writer) error {
		if err := f.Write(w); err != nil {
			return fmt.Errorf("write workbook: %w", err)
		}
		return nil
	})
}

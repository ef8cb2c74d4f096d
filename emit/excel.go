package emit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/tripcast-org/tripcast/engine"
)

// Workbook accumulates summary tables as sheets of one Excel file.
type Workbook struct {
	file *excelize.File
}

// NewWorkbook creates an empty workbook.
func NewWorkbook() *Workbook {
	return &Workbook{file: excelize.NewFile()}
}

// AddSheet writes a table onto a new sheet named after the summary. Sheet
// names are truncated to Excel's 31-character limit, counted in runes so a
// multi-byte name is never cut mid-character.
func (w *Workbook) AddSheet(name string, t *engine.Table) error {
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("emit: sheet %q: %w", name, err)
	}

	names := t.ColumnNames()
	for j, col := range names {
		cell, err := excelize.CoordinatesToCellName(j+1, 1)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(name, cell, col); err != nil {
			return err
		}
	}

	for i := 0; i < t.NumRows(); i++ {
		for j, colName := range names {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			col := t.Column(colName)
			if !col.IsValid(i) {
				continue
			}
			var value any
			if col.Kind == engine.KindNumeric {
				value = col.Num[i]
			} else {
				value = col.Text[i]
			}
			if err := w.file.SetCellValue(name, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// Save writes the workbook to dir/<name>.xlsx, dropping the default empty
// sheet excelize creates.
func (w *Workbook) Save(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if idx, err := w.file.GetSheetIndex("Sheet1"); err == nil && idx >= 0 && len(w.file.GetSheetList()) > 1 {
		_ = w.file.DeleteSheet("Sheet1")
	}
	path := filepath.Join(dir, name+".xlsx")
	if err := w.file.SaveAs(path); err != nil {
		return "", fmt.Errorf("emit: save %s: %w", path, err)
	}
	return path, nil
}

// Close releases the underlying file resources.
func (w *Workbook) Close() error { return w.file.Close() }

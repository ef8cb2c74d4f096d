// Package emit writes finished summary tables. CSV is the contract format
// consumed by dashboards and BI tools; the Excel workbook bundles every
// summary of a run for hand inspection.
package emit

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tripcast-org/tripcast/engine"
)

// WriteCSV writes a table as delimited text: header row, then one row per
// group. Missing cells render empty.
func WriteCSV(w io.Writer, t *engine.Table) error {
	cw := csv.NewWriter(w)
	names := t.ColumnNames()
	if err := cw.Write(names); err != nil {
		return err
	}

	row := make([]string, len(names))
	for i := 0; i < t.NumRows(); i++ {
		for j, name := range names {
			cell, ok := t.Column(name).Cell(i)
			if !ok {
				cell = ""
			}
			row[j] = cell
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes a table to dir/<name>.csv, creating dir as needed.
func WriteCSVFile(dir, name string, t *engine.Table) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteCSV(f, t); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("emit: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// Package helpers is the thin shell between files on disk and the engine's
// in-memory tables. The engine itself never opens a file.
package helpers

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tripcast-org/tripcast/config"
	"github.com/tripcast-org/tripcast/engine"
)

// ============================================================================
// CSV HELPER — raw CSV bytes → engine.Table
// ============================================================================
// Raw tables are read as all-text columns; the loader's Normalize step does
// renaming, the schema-capability check, and numeric coercion. Empty cells
// are missing from the start so coercion never invents zeros.
// ============================================================================

// ParseCSV reads one raw record table. Header names are normalized to
// snake_case so "Sample Rate" and "sample_rate" address the same column.
func ParseCSV(r io.Reader, entity string) (*engine.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("helpers: read %s header: %w", entity, err)
	}
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = toSnakeCase(strings.TrimSpace(h))
	}

	cells := make([][]string, len(names))
	valid := make([][]bool, len(names))
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("helpers: read %s row: %w", entity, err)
		}
		for i := range names {
			var v string
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			cells[i] = append(cells[i], v)
			valid[i] = append(valid[i], v != "")
		}
	}

	t := engine.NewTable(entity)
	for i, name := range names {
		col := &engine.Column{Kind: engine.KindText, Text: cells[i], Valid: valid[i]}
		if err := t.AddColumn(name, col); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ReadTableFile parses <location>/<entity>.csv into a raw table.
func ReadTableFile(location, entity string) (*engine.Table, error) {
	path := filepath.Join(location, entity+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseCSV(f, entity)
}

// LoadContext reads and normalizes every (dataset, entity) table the
// configured summaries need.
func LoadContext(cfg *config.Config) (engine.TableContext, error) {
	ctx := make(engine.TableContext)
	for _, entity := range cfg.EntitiesUsed() {
		schema := cfg.Schemas[entity]
		required := cfg.RequiredColumnsFor(entity)
		numeric := cfg.NumericColumnsFor(entity)
		for _, ds := range cfg.Datasets {
			raw, err := ReadTableFile(ds.Location, entity)
			if err != nil {
				return nil, fmt.Errorf("helpers: dataset %q: %w", ds.Name, err)
			}
			tbl, err := engine.Normalize(raw, schema, ds, required, numeric)
			if err != nil {
				return nil, err
			}
			ctx[engine.TableKey{Dataset: ds.Name, Entity: entity}] = tbl
		}
	}
	return ctx, nil
}

// ReadExternal parses a pre-aggregated benchmark table. Columns that exist
// as numeric columns in the target contract are coerced here so the merge
// compares like with like.
func ReadExternal(path string, def config.Summary) (*engine.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	raw, err := ParseCSV(f, def.DataSource)
	if err != nil {
		return nil, err
	}

	numeric := map[string]bool{engine.ShareColumn: true}
	for _, m := range def.Metrics {
		numeric[m.Name] = true
	}

	out := engine.NewTable(def.DataSource)
	for _, name := range raw.ColumnNames() {
		col := raw.Column(name)
		if numeric[name] {
			col = engine.CoerceNumeric(col)
		}
		if err := out.AddColumn(name, col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// toSnakeCase converts "Column Name" → "column_name".
func toSnakeCase(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/tripcast-org/tripcast/config"
)

// ============================================================================
// TABLE — In-memory columnar record table with missing-value masks
// ============================================================================
// A Table belongs to exactly one dataset and one entity. Columns are text or
// numeric; every cell can independently be missing. Tables are read-only
// once constructed — the transformer derives new tables, never mutates.
// ============================================================================

// DatasetColumn is the reserved column tagging each row's originating
// dataset. The loader adds it; the combiner sets it to the display label.
const DatasetColumn = "dataset"

// ColumnKind discriminates the two cell representations.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindNumeric
)

// Column is one table column. Text or Num is populated per Kind; a nil
// Valid mask means every cell is present.
type Column struct {
	Kind  ColumnKind
	Text  []string
	Num   []float64
	Valid []bool
}

// TextColumn builds a fully-valid text column.
func TextColumn(values []string) *Column {
	return &Column{Kind: KindText, Text: values}
}

// NumericColumn builds a numeric column; valid may be nil.
func NumericColumn(values []float64, valid []bool) *Column {
	return &Column{Kind: KindNumeric, Num: values, Valid: valid}
}

// Len returns the number of cells.
func (c *Column) Len() int {
	if c.Kind == KindText {
		return len(c.Text)
	}
	return len(c.Num)
}

// IsValid reports whether the cell at i is present.
func (c *Column) IsValid(i int) bool {
	return c.Valid == nil || c.Valid[i]
}

// Cell renders the cell at i as a display string. ok is false when missing.
// Numeric cells use the shortest exact representation, so integer-valued
// floats group as "0", "1", "2".
func (c *Column) Cell(i int) (string, bool) {
	if !c.IsValid(i) {
		return "", false
	}
	if c.Kind == KindText {
		return c.Text[i], true
	}
	return strconv.FormatFloat(c.Num[i], 'g', -1, 64), true
}

// gather returns a new column holding the cells at the given row indices.
func (c *Column) gather(rows []int) *Column {
	out := &Column{Kind: c.Kind}
	if c.Valid != nil {
		out.Valid = make([]bool, len(rows))
		for j, i := range rows {
			out.Valid[j] = c.Valid[i]
		}
	}
	switch c.Kind {
	case KindText:
		out.Text = make([]string, len(rows))
		for j, i := range rows {
			out.Text[j] = c.Text[i]
		}
	case KindNumeric:
		out.Num = make([]float64, len(rows))
		for j, i := range rows {
			out.Num[j] = c.Num[i]
		}
	}
	return out
}

// Table is a rectangular record table for one (dataset, entity) pair.
type Table struct {
	Dataset string // dataset descriptor name ("" before loading)
	Entity  string

	nrows int
	names []string
	cols  map[string]*Column
}

// NewTable creates an empty table for an entity.
func NewTable(entity string) *Table {
	return &Table{Entity: entity, cols: make(map[string]*Column)}
}

// AddColumn appends a column. All columns must agree on length.
func (t *Table) AddColumn(name string, col *Column) error {
	if _, exists := t.cols[name]; exists {
		return fmt.Errorf("table %s: duplicate column %q", t.Entity, name)
	}
	if len(t.names) == 0 {
		t.nrows = col.Len()
	} else if col.Len() != t.nrows {
		return fmt.Errorf("table %s: column %q has %d rows, want %d",
			t.Entity, name, col.Len(), t.nrows)
	}
	t.names = append(t.names, name)
	t.cols[name] = col
	return nil
}

// MustAddColumn panics on the errors AddColumn reports. For construction
// sites where lengths are correct by construction (tests, derived tables).
func (t *Table) MustAddColumn(name string, col *Column) {
	if err := t.AddColumn(name, col); err != nil {
		panic(err)
	}
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return t.nrows }

// ColumnNames returns column names in declaration order.
func (t *Table) ColumnNames() []string { return t.names }

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column { return t.cols[name] }

// HasColumn reports whether the table declares the column. This is the
// schema-capability check: callers ask up front instead of failing on access
// deep inside aggregation.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// Select returns a new table holding only the given rows, in order. The
// receiver is untouched.
func (t *Table) Select(rows []int) *Table {
	out := &Table{Dataset: t.Dataset, Entity: t.Entity, nrows: len(rows), cols: make(map[string]*Column, len(t.cols))}
	out.names = append([]string(nil), t.names...)
	for _, name := range t.names {
		out.cols[name] = t.cols[name].gather(rows)
	}
	return out
}

// shallowCopy returns a table sharing the receiver's column data. Derived
// columns added to the copy never touch the original.
func (t *Table) shallowCopy() *Table {
	out := &Table{Dataset: t.Dataset, Entity: t.Entity, nrows: t.nrows, cols: make(map[string]*Column, len(t.cols))}
	out.names = append([]string(nil), t.names...)
	for name, col := range t.cols {
		out.cols[name] = col
	}
	return out
}

// sortRows reorders the table's rows lexicographically by the given columns.
// Missing cells sort before present ones. Used only on tables the engine
// itself constructed.
func (t *Table) sortRows(by []string) {
	idx := make([]int, t.nrows)
	for i := range idx {
		idx[i] = i
	}
	cols := make([]*Column, 0, len(by))
	for _, name := range by {
		if c := t.cols[name]; c != nil {
			cols = append(cols, c)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		for _, c := range cols {
			av, aok := c.Cell(idx[a])
			bv, bok := c.Cell(idx[b])
			if aok != bok {
				return !aok
			}
			if av != bv {
				return av < bv
			}
		}
		return false
	})
	for name, c := range t.cols {
		t.cols[name] = c.gather(idx)
	}
}

// ============================================================================
// LOADER — Normalize a raw table against its entity schema
// ============================================================================

// Normalize turns an already-materialized raw table into a canonical record
// table for a dataset: renames columns per the schema, verifies every column
// any summary needs is present, coerces numeric columns, and tags rows with
// the dataset name. Pure over its inputs; the raw table is not modified.
func Normalize(raw *Table, schema config.EntitySchema, ds config.Dataset, required, numeric []string) (*Table, error) {
	out := NewTable(raw.Entity)
	out.Dataset = ds.Name

	numericSet := make(map[string]bool, len(numeric))
	for _, n := range numeric {
		numericSet[n] = true
	}

	var conflicts []string
	for _, rawName := range raw.ColumnNames() {
		name := rawName
		if canonical, ok := schema.Rename[rawName]; ok {
			name = canonical
		}
		if out.HasColumn(name) {
			conflicts = append(conflicts, name)
			continue
		}
		col := raw.Column(rawName)
		if numericSet[name] && col.Kind == KindText {
			col = CoerceNumeric(col)
		}
		if err := out.AddColumn(name, col); err != nil {
			return nil, err
		}
	}
	if len(conflicts) > 0 {
		return nil, &SchemaError{
			Source:   SourceLoader,
			Dataset:  ds.Name,
			Entity:   raw.Entity,
			Conflict: conflicts,
		}
	}

	var missing []string
	for _, name := range required {
		if !out.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{
			Source:  SourceLoader,
			Dataset: ds.Name,
			Entity:  raw.Entity,
			Missing: missing,
		}
	}

	tag := make([]string, out.NumRows())
	for i := range tag {
		tag[i] = ds.Name
	}
	if err := out.AddColumn(DatasetColumn, TextColumn(tag)); err != nil {
		return nil, err
	}
	return out, nil
}

// CoerceNumeric converts a text column to float64. Cells that do not parse
// become missing rather than erroring, so later filtering and binning can
// exclude them explicitly. ParseFloat accepts "NaN" and "Inf"; those are
// masked too, since no bin, weight, or metric can place them.
func CoerceNumeric(c *Column) *Column {
	n := len(c.Text)
	num := make([]float64, n)
	valid := make([]bool, n)
	for i, s := range c.Text {
		if !c.IsValid(i) {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		num[i] = v
		valid[i] = true
	}
	return NumericColumn(num, valid)
}

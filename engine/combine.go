package engine

import (
	"github.com/tripcast-org/tripcast/config"
)

// ============================================================================
// COMBINER — union per-dataset summary results into one comparable table
// ============================================================================
// Pure concatenation with a dataset label column. Column contracts must
// match exactly: a dataset that never saw a category contributes zero rows
// for it, never a missing column, so any mismatch signals a structural bug
// upstream. Combination is order-independent up to row order; the final sort
// restores determinism.
// ============================================================================

// DatasetResult pairs one dataset's aggregated table with its display label.
type DatasetResult struct {
	Label string
	Table *Table
}

// Combine unions per-dataset aggregation results for one summary.
func Combine(def config.Summary, results []DatasetResult) (*Table, error) {
	if len(results) == 0 {
		return nil, &SchemaError{Source: SourceCombiner, Summary: def.Name, Missing: []string{"(no dataset results)"}}
	}

	contract := results[0].Table.ColumnNames()
	for _, r := range results[1:] {
		if missing, extra := diffColumns(contract, r.Table.ColumnNames()); len(missing) > 0 || len(extra) > 0 {
			return nil, &SchemaError{
				Source:  SourceCombiner,
				Summary: def.Name,
				Dataset: r.Table.Dataset,
				Missing: missing,
				Extra:   extra,
			}
		}
	}

	total := 0
	for _, r := range results {
		total += r.Table.NumRows()
	}

	out := NewTable(results[0].Table.Entity)
	for _, name := range contract {
		cols := make([]*Column, len(results))
		for i, r := range results {
			cols[i] = r.Table.Column(name)
		}
		if err := out.AddColumn(name, appendColumns(cols...)); err != nil {
			return nil, err
		}
	}

	labels := make([]string, 0, total)
	for _, r := range results {
		for i := 0; i < r.Table.NumRows(); i++ {
			labels = append(labels, r.Label)
		}
	}
	if err := out.AddColumn(DatasetColumn, TextColumn(labels)); err != nil {
		return nil, err
	}

	out.sortRows(append(append([]string(nil), def.GroupBy...), DatasetColumn))
	return out, nil
}

// MergeExternal appends an already-aggregated benchmark table onto a
// combined result. The external table must carry exactly the combined
// table's columns, including its own dataset labels and share values; shares
// are trusted, never recomputed. A mismatch is attributed to the external
// file so operators know which side is wrong.
func MergeExternal(def config.Summary, combined *Table, external *Table, location string) (*Table, error) {
	if missing, extra := diffColumns(combined.ColumnNames(), external.ColumnNames()); len(missing) > 0 || len(extra) > 0 {
		return nil, &SchemaError{
			Source:   SourceExternal,
			Summary:  def.Name,
			Location: location,
			Missing:  missing,
			Extra:    extra,
		}
	}

	out := NewTable(combined.Entity)
	for _, name := range combined.ColumnNames() {
		col := appendColumns(combined.Column(name), external.Column(name))
		if err := out.AddColumn(name, col); err != nil {
			return nil, err
		}
	}
	out.sortRows(append(append([]string(nil), def.GroupBy...), DatasetColumn))
	return out, nil
}

// diffColumns compares column sets by name, ignoring order.
func diffColumns(want, got []string) (missing, extra []string) {
	wantSet := make(map[string]bool, len(want))
	for _, c := range want {
		wantSet[c] = true
	}
	gotSet := make(map[string]bool, len(got))
	for _, c := range got {
		gotSet[c] = true
	}
	for _, c := range want {
		if !gotSet[c] {
			missing = append(missing, c)
		}
	}
	for _, c := range got {
		if !wantSet[c] {
			extra = append(extra, c)
		}
	}
	return missing, extra
}

// appendColumns concatenates columns of the same name across tables. Numeric
// wins only if every input is numeric; otherwise everything renders as text
// (an all-empty numeric column from a zero-row dataset stays compatible).
func appendColumns(cols ...*Column) *Column {
	kind := cols[0].Kind
	for _, c := range cols[1:] {
		if c.Len() > 0 && c.Kind != kind {
			if cols[0].Len() == 0 {
				kind = c.Kind
				continue
			}
			kind = KindText
		}
	}

	total := 0
	anyMask := false
	for _, c := range cols {
		total += c.Len()
		if c.Valid != nil {
			anyMask = true
		}
	}

	out := &Column{Kind: kind}
	if anyMask {
		out.Valid = make([]bool, 0, total)
	}
	for _, c := range cols {
		for i := 0; i < c.Len(); i++ {
			if out.Valid != nil {
				out.Valid = append(out.Valid, c.IsValid(i))
			}
			switch kind {
			case KindNumeric:
				out.Num = append(out.Num, c.Num[i])
			case KindText:
				cell, _ := c.Cell(i)
				out.Text = append(out.Text, cell)
			}
		}
	}
	return out
}

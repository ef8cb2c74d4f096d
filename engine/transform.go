package engine

import (
	"math"
	"sort"

	"github.com/tripcast-org/tripcast/config"
)

// ============================================================================
// TRANSFORMER — filter, bin, and remap a record table for one summary
// ============================================================================
// Fixed order: filter → bins → aggregation maps. Later group-by steps may
// reference bin/remap outputs, never the reverse. The input table is never
// mutated; the result is a summary-scoped derived table so the same raw
// table serves any number of summaries without interference.
// ============================================================================

// Transform applies a summary's filter, bin specs, and aggregation maps to a
// normalized record table.
func Transform(t *Table, def config.Summary) (*Table, error) {
	out, err := applyFilter(t, def)
	if err != nil {
		return nil, err
	}

	for name, bin := range def.Bins {
		col, err := applyBin(out, name, bin, def)
		if err != nil {
			return nil, err
		}
		if err := out.AddColumn(name, col); err != nil {
			return nil, err
		}
	}

	for name, agg := range def.Aggregations {
		col, err := applyRemap(out, name, agg, def)
		if err != nil {
			return nil, err
		}
		if err := out.AddColumn(name, col); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// applyFilter narrows rows per the summary's predicate. With no filter the
// result shares the input's column data (columns are read-only).
func applyFilter(t *Table, def config.Summary) (*Table, error) {
	if def.Filter == "" {
		return t.shallowCopy(), nil
	}
	pred, err := CompilePredicate(def.Filter)
	if err != nil {
		return nil, &FilterError{Summary: def.Name, Expr: def.Filter, Msg: err.Error()}
	}
	for _, col := range pred.Columns() {
		if !t.HasColumn(col) {
			return nil, &FilterError{Summary: def.Name, Expr: def.Filter, Column: col}
		}
	}
	keep := make([]int, 0, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		if pred.Eval(t, i) {
			keep = append(keep, i)
		}
	}
	return t.Select(keep), nil
}

// applyBin derives a labeled-range column from a continuous source column.
// A value strictly below the first break or strictly above the last yields
// the missing category; the row stays in the table and only drops out of
// summaries that group on this bin column.
func applyBin(t *Table, name string, bin config.Bin, def config.Summary) (*Column, error) {
	src := t.Column(bin.Column)
	if src == nil {
		return nil, &SchemaError{
			Source:  SourceLoader,
			Summary: def.Name,
			Dataset: t.Dataset,
			Entity:  t.Entity,
			Missing: []string{bin.Column},
		}
	}

	n := t.NumRows()
	labels := make([]string, n)
	valid := make([]bool, n)
	for i := 0; i < n; i++ {
		if !src.IsValid(i) || src.Kind != KindNumeric {
			continue
		}
		if label, ok := locateBin(src.Num[i], bin.Breaks, bin.Labels); ok {
			labels[i] = label
			valid[i] = true
		}
	}
	return &Column{Kind: KindText, Text: labels, Valid: valid}, nil
}

// locateBin places v in ordered breaks. Intervals are [lo, hi) except the
// final interval, which is [lo, hi]. NaN compares false against every break,
// so it must be caught explicitly or it walks past the last interval.
func locateBin(v float64, breaks []float64, labels []string) (string, bool) {
	last := len(breaks) - 1
	if math.IsNaN(v) || v < breaks[0] || v > breaks[last] {
		return "", false
	}
	if v == breaks[last] {
		return labels[len(labels)-1], true
	}
	// First index with breaks[i] > v; v belongs to the interval before it.
	i := sort.SearchFloat64s(breaks, v)
	if i < len(breaks) && breaks[i] == v {
		return labels[i], true
	}
	return labels[i-1], true
}

// applyRemap derives a coarse-category column via dictionary lookup.
// Unmapped values pass through unchanged — aggregation maps are deliberately
// partial, collapsing only the codes they name.
func applyRemap(t *Table, name string, agg config.Aggregation, def config.Summary) (*Column, error) {
	src := t.Column(agg.Column)
	if src == nil {
		return nil, &SchemaError{
			Source:  SourceLoader,
			Summary: def.Name,
			Dataset: t.Dataset,
			Entity:  t.Entity,
			Missing: []string{agg.Column},
		}
	}

	n := t.NumRows()
	out := make([]string, n)
	valid := make([]bool, n)
	for i := 0; i < n; i++ {
		cell, ok := src.Cell(i)
		if !ok {
			continue
		}
		valid[i] = true
		if mapped, hit := agg.Map[cell]; hit {
			out[i] = mapped
		} else {
			out[i] = cell
		}
	}
	return &Column{Kind: KindText, Text: out, Valid: valid}, nil
}

package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/tripcast-org/tripcast/config"
)

// ============================================================================
// AGGREGATOR — weighted group-by metrics and within-group shares
// ============================================================================
// Pipeline: resolve weights → group rows → compute metrics → compute shares
// → sort. Output row order depends only on group keys, never on input order.
// ============================================================================

// ShareColumn is the within-group share column added to every summary.
const ShareColumn = "share"

// keySep joins group-by cell values into a map key. Unit separator; does
// not occur in real category labels.
const keySep = "\x1f"

// AggregateResult is one dataset's grouped summary plus its row-quality
// accounting.
type AggregateResult struct {
	Table *Table
	// ExcludedWeight counts rows dropped for a zero or missing sample rate.
	// Surfaced in the run report, never silently absorbed as weight 1.
	ExcludedWeight int
	// ExcludedGroup counts rows dropped for a missing group-by cell
	// (out-of-range bin values and coercion failures end up here).
	ExcludedGroup int
}

// Aggregate groups a transformed table by the summary's group_by columns and
// computes its metrics and shares.
func Aggregate(t *Table, def config.Summary) (*AggregateResult, error) {
	for _, g := range def.GroupBy {
		if !t.HasColumn(g) {
			return nil, &SchemaError{
				Source:  SourceLoader,
				Summary: def.Name,
				Dataset: t.Dataset,
				Entity:  t.Entity,
				Missing: []string{g},
			}
		}
	}

	weights, excludedWeight, err := resolveWeights(t, def)
	if err != nil {
		return nil, err
	}

	groups, excludedGroup := groupRows(t, def.GroupBy, weights)

	out, err := buildGroupTable(t, def, groups, weights)
	if err != nil {
		return nil, err
	}
	return &AggregateResult{
		Table:          out,
		ExcludedWeight: excludedWeight,
		ExcludedGroup:  excludedGroup,
	}, nil
}

// ── Weights ─────────────────────────────────────────────────────────────────

// resolveWeights computes per-row expansion factors. weight = 1/sample_rate
// with sample_rate expected in (0, 1]. A zero, negative, or missing rate
// excludes the row (weight 0) and is counted. Without a weight field every
// row weighs 1.
func resolveWeights(t *Table, def config.Summary) ([]float64, int, error) {
	n := t.NumRows()
	weights := make([]float64, n)
	if def.WeightField == "" {
		for i := range weights {
			weights[i] = 1
		}
		return weights, 0, nil
	}

	col := t.Column(def.WeightField)
	if col == nil {
		return nil, 0, &SchemaError{
			Source:  SourceLoader,
			Summary: def.Name,
			Dataset: t.Dataset,
			Entity:  t.Entity,
			Missing: []string{def.WeightField},
		}
	}
	if col.Kind != KindNumeric {
		return nil, 0, fmt.Errorf("aggregate: summary %q: weight field %q is not numeric", def.Name, def.WeightField)
	}

	excluded := 0
	for i := 0; i < n; i++ {
		// NaN fails both range checks and would yield a NaN weight.
		if !col.IsValid(i) || math.IsNaN(col.Num[i]) || col.Num[i] <= 0 || col.Num[i] > 1 {
			excluded++
			continue
		}
		weights[i] = 1 / col.Num[i]
	}
	return weights, excluded, nil
}

// ── Grouping ────────────────────────────────────────────────────────────────

type group struct {
	key   string
	cells []string
	rows  []int
}

// groupRows partitions row indices by the group-by tuple. Rows with a
// missing cell in any group column, or an excluded weight, drop out of this
// summary only; the table itself is untouched.
func groupRows(t *Table, groupBy []string, weights []float64) ([]*group, int) {
	cols := make([]*Column, len(groupBy))
	for i, name := range groupBy {
		cols[i] = t.Column(name)
	}

	byKey := make(map[string]*group)
	var order []*group
	excluded := 0

	cells := make([]string, len(cols))
rows:
	for i := 0; i < t.NumRows(); i++ {
		if weights[i] == 0 {
			continue
		}
		for j, c := range cols {
			cell, ok := c.Cell(i)
			if !ok {
				excluded++
				continue rows
			}
			cells[j] = cell
		}
		key := strings.Join(cells, keySep)
		g, seen := byKey[key]
		if !seen {
			g = &group{key: key, cells: append([]string(nil), cells...)}
			byKey[key] = g
			order = append(order, g)
		}
		g.rows = append(g.rows, i)
	}

	// Deterministic group order regardless of input row order.
	sort.Slice(order, func(a, b int) bool { return order[a].key < order[b].key })
	return order, excluded
}

// ── Metrics ─────────────────────────────────────────────────────────────────

// computeMetric evaluates one metric over a group's member rows. count, sum,
// and mean are sample-weighted; min, max, median, and std use raw values
// only — a documented simplification, not a weighted variant.
func computeMetric(t *Table, m config.Metric, rows []int, weights []float64) (float64, error) {
	if m.Op == config.OpCount {
		var total float64
		for _, i := range rows {
			total += weights[i]
		}
		return total, nil
	}

	col := t.Column(m.Column)
	if col == nil || col.Kind != KindNumeric {
		return 0, fmt.Errorf("metric %q: column %q is missing or not numeric", m.Name, m.Column)
	}

	var xs, ws []float64
	for _, i := range rows {
		if !col.IsValid(i) {
			continue
		}
		xs = append(xs, col.Num[i])
		ws = append(ws, weights[i])
	}
	if len(xs) == 0 {
		return 0, nil
	}

	switch m.Op {
	case config.OpSum:
		var total float64
		for i, x := range xs {
			total += x * ws[i]
		}
		return total, nil
	case config.OpMean:
		return stat.Mean(xs, ws), nil
	case config.OpMin:
		v := xs[0]
		for _, x := range xs[1:] {
			if x < v {
				v = x
			}
		}
		return v, nil
	case config.OpMax:
		v := xs[0]
		for _, x := range xs[1:] {
			if x > v {
				v = x
			}
		}
		return v, nil
	case config.OpMedian:
		sorted := append([]float64(nil), xs...)
		sort.Float64s(sorted)
		return stat.Quantile(0.5, stat.Empirical, sorted, nil), nil
	case config.OpStd:
		return stat.StdDev(xs, nil), nil
	default:
		return 0, fmt.Errorf("metric %q: unsupported op %q", m.Name, m.Op)
	}
}

// ── Result assembly ─────────────────────────────────────────────────────────

// buildGroupTable materializes the per-group metric rows, adds the share
// column, and sorts lexicographically by the group-by columns.
func buildGroupTable(t *Table, def config.Summary, groups []*group, weights []float64) (*Table, error) {
	n := len(groups)
	out := NewTable(t.Entity)
	out.Dataset = t.Dataset

	for j, name := range def.GroupBy {
		cells := make([]string, n)
		for i, g := range groups {
			cells[i] = g.cells[j]
		}
		if err := out.AddColumn(name, TextColumn(cells)); err != nil {
			return nil, err
		}
	}

	for _, m := range def.Metrics {
		vals := make([]float64, n)
		for i, g := range groups {
			v, err := computeMetric(t, m, g.rows, weights)
			if err != nil {
				return nil, fmt.Errorf("summary %q: %w", def.Name, err)
			}
			vals[i] = v
		}
		if err := out.AddColumn(m.Name, NumericColumn(vals, nil)); err != nil {
			return nil, err
		}
	}

	share, err := computeShares(def, groups, weights)
	if err != nil {
		return nil, err
	}
	if err := out.AddColumn(ShareColumn, NumericColumn(share, nil)); err != nil {
		return nil, err
	}

	out.sortRows(def.GroupBy)
	return out, nil
}

// computeShares divides each group's weighted count by the weighted count
// total of its share_within partition — the grand total when share_within is
// unset. Shares inside any partition sum to 1 within floating tolerance.
func computeShares(def config.Summary, groups []*group, weights []float64) ([]float64, error) {
	counts := make([]float64, len(groups))
	for i, g := range groups {
		for _, r := range g.rows {
			counts[i] += weights[r]
		}
	}

	partIdx := make([]int, 0, len(def.ShareWithin))
	for _, sw := range def.ShareWithin {
		found := -1
		for j, g := range def.GroupBy {
			if g == sw {
				found = j
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("summary %q: share_within column %q not in group_by", def.Name, sw)
		}
		partIdx = append(partIdx, found)
	}

	totals := make(map[string]float64)
	keys := make([]string, len(groups))
	for i, g := range groups {
		parts := make([]string, len(partIdx))
		for j, idx := range partIdx {
			parts[j] = g.cells[idx]
		}
		keys[i] = strings.Join(parts, keySep)
		totals[keys[i]] += counts[i]
	}

	share := make([]float64, len(groups))
	for i := range groups {
		if d := totals[keys[i]]; d > 0 {
			share[i] = counts[i] / d
		}
	}
	return share, nil
}

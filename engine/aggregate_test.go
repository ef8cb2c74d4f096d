package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripcast-org/tripcast/config"
)

// hhTable builds a small household table: county, vehicles, sample_rate.
func hhTable(county []string, vehicles, rate []float64, rateValid []bool) *Table {
	t := NewTable("households")
	t.Dataset = "survey_a"
	t.MustAddColumn("county", TextColumn(county))
	t.MustAddColumn("vehicles", NumericColumn(vehicles, nil))
	t.MustAddColumn("sample_rate", NumericColumn(rate, rateValid))
	return t
}

func numCells(t *testing.T, tbl *Table, name string) []float64 {
	t.Helper()
	col := tbl.Column(name)
	require.NotNil(t, col, "column %q", name)
	require.Equal(t, KindNumeric, col.Kind, "column %q", name)
	return col.Num
}

func textCells(t *testing.T, tbl *Table, name string) []string {
	t.Helper()
	col := tbl.Column(name)
	require.NotNil(t, col, "column %q", name)
	out := make([]string, tbl.NumRows())
	for i := range out {
		out[i], _ = col.Cell(i)
	}
	return out
}

func TestWeightInvertsSampleRate(t *testing.T) {
	// One row sampled at 5% expands to 20 households.
	tbl := hhTable([]string{"X"}, []float64{1}, []float64{0.05}, nil)

	def := config.Summary{
		Name:        "hh",
		DataSource:  "households",
		GroupBy:     []string{"county"},
		WeightField: "sample_rate",
		Metrics:     []config.Metric{{Name: "count", Op: config.OpCount}},
	}
	res, err := Aggregate(tbl, def)
	require.NoError(t, err)

	assert.InDelta(t, 20.0, numCells(t, res.Table, "count")[0], 1e-9)
	assert.Zero(t, res.ExcludedWeight)
}

func TestInvalidSampleRateExcludesRow(t *testing.T) {
	// Rows with a zero, negative, out-of-range, NaN, or missing rate are
	// dropped and counted; they never default to weight 1, and a NaN rate
	// never becomes a NaN weight poisoning the group count.
	tbl := hhTable(
		[]string{"X", "X", "X", "X", "X", "X"},
		[]float64{1, 1, 1, 1, 1, 1},
		[]float64{0.5, 0, -0.1, 2, math.NaN(), 0},
		[]bool{true, true, true, true, true, false},
	)

	def := config.Summary{
		Name:        "hh",
		DataSource:  "households",
		GroupBy:     []string{"county"},
		WeightField: "sample_rate",
		Metrics:     []config.Metric{{Name: "count", Op: config.OpCount}},
	}
	res, err := Aggregate(tbl, def)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, numCells(t, res.Table, "count")[0], 1e-9)
	assert.Equal(t, 5, res.ExcludedWeight)
}

func TestSharesSumToOnePerPartition(t *testing.T) {
	tbl := hhTable(
		[]string{"X", "X", "X", "Y", "Y"},
		[]float64{0, 0, 1, 0, 1},
		[]float64{0.5, 0.25, 0.5, 0.5, 0.2},
		nil,
	)

	def := config.Summary{
		Name:        "hh",
		DataSource:  "households",
		GroupBy:     []string{"county", "vehicles"},
		WeightField: "sample_rate",
		ShareWithin: []string{"county"},
		Metrics:     []config.Metric{{Name: "count", Op: config.OpCount}},
	}
	res, err := Aggregate(tbl, def)
	require.NoError(t, err)

	counties := textCells(t, res.Table, "county")
	shares := numCells(t, res.Table, ShareColumn)

	sums := make(map[string]float64)
	for i, c := range counties {
		sums[c] += shares[i]
	}
	for c, sum := range sums {
		assert.InDelta(t, 1.0, sum, 1e-6, "county %s", c)
	}

	// County X: vehicles=0 weighs 2+4=6, vehicles=1 weighs 2.
	assert.Equal(t, []string{"X", "X", "Y", "Y"}, counties)
	assert.InDelta(t, 6.0/8.0, shares[0], 1e-9)
	assert.InDelta(t, 2.0/8.0, shares[1], 1e-9)
}

func TestShareDefaultsToGrandTotal(t *testing.T) {
	tbl := hhTable(
		[]string{"X", "Y", "Y"},
		[]float64{0, 0, 1},
		[]float64{0.5, 0.5, 0.5},
		nil,
	)

	def := config.Summary{
		Name:        "hh",
		DataSource:  "households",
		GroupBy:     []string{"county"},
		WeightField: "sample_rate",
		Metrics:     []config.Metric{{Name: "count", Op: config.OpCount}},
	}
	res, err := Aggregate(tbl, def)
	require.NoError(t, err)

	assert.Equal(t, []string{"X", "Y"}, textCells(t, res.Table, "county"))
	shares := numCells(t, res.Table, ShareColumn)
	assert.InDelta(t, 1.0/3.0, shares[0], 1e-9)
	assert.InDelta(t, 2.0/3.0, shares[1], 1e-9)
}

func TestWeightedAndUnweightedMetrics(t *testing.T) {
	// Two rows, weights 2 and 4. sum and mean are weighted; min, max,
	// median, and std ignore weights.
	tbl := hhTable(
		[]string{"X", "X"},
		[]float64{1, 3},
		[]float64{0.5, 0.25},
		nil,
	)

	def := config.Summary{
		Name:        "hh",
		DataSource:  "households",
		GroupBy:     []string{"county"},
		WeightField: "sample_rate",
		Metrics: []config.Metric{
			{Name: "total", Op: config.OpSum, Column: "vehicles"},
			{Name: "avg", Op: config.OpMean, Column: "vehicles"},
			{Name: "lo", Op: config.OpMin, Column: "vehicles"},
			{Name: "hi", Op: config.OpMax, Column: "vehicles"},
			{Name: "mid", Op: config.OpMedian, Column: "vehicles"},
		},
	}
	res, err := Aggregate(tbl, def)
	require.NoError(t, err)

	assert.InDelta(t, 1*2+3*4.0, numCells(t, res.Table, "total")[0], 1e-9)
	assert.InDelta(t, (1*2+3*4.0)/6.0, numCells(t, res.Table, "avg")[0], 1e-9)
	assert.InDelta(t, 1.0, numCells(t, res.Table, "lo")[0], 1e-9)
	assert.InDelta(t, 3.0, numCells(t, res.Table, "hi")[0], 1e-9)
}

func TestGroupOrderIndependentOfInputOrder(t *testing.T) {
	def := config.Summary{
		Name:       "hh",
		DataSource: "households",
		GroupBy:    []string{"county"},
		Metrics:    []config.Metric{{Name: "count", Op: config.OpCount}},
	}

	forward := hhTable([]string{"A", "B", "C"}, []float64{0, 0, 0}, []float64{1, 1, 1}, nil)
	reversed := hhTable([]string{"C", "B", "A"}, []float64{0, 0, 0}, []float64{1, 1, 1}, nil)

	r1, err := Aggregate(forward, def)
	require.NoError(t, err)
	r2, err := Aggregate(reversed, def)
	require.NoError(t, err)

	assert.Equal(t, textCells(t, r1.Table, "county"), textCells(t, r2.Table, "county"))
	assert.Equal(t, []string{"A", "B", "C"}, textCells(t, r1.Table, "county"))
}

func TestMissingGroupCellExcludesRow(t *testing.T) {
	tbl := NewTable("trips")
	tbl.Dataset = "survey_a"
	tbl.MustAddColumn("dist_bin", &Column{
		Kind:  KindText,
		Text:  []string{"short", "", "long"},
		Valid: []bool{true, false, true},
	})

	def := config.Summary{
		Name:       "trips",
		DataSource: "trips",
		GroupBy:    []string{"dist_bin"},
		Metrics:    []config.Metric{{Name: "count", Op: config.OpCount}},
	}
	res, err := Aggregate(tbl, def)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Table.NumRows())
	assert.Equal(t, 1, res.ExcludedGroup)
	// Shares use the included rows only.
	shares := numCells(t, res.Table, ShareColumn)
	assert.InDelta(t, 0.5, shares[0], 1e-9)
	assert.InDelta(t, 0.5, shares[1], 1e-9)
}

func TestMissingGroupColumnIsSchemaError(t *testing.T) {
	tbl := hhTable([]string{"X"}, []float64{0}, []float64{1}, nil)

	def := config.Summary{
		Name:       "hh",
		DataSource: "households",
		GroupBy:    []string{"region"},
		Metrics:    []config.Metric{{Name: "count", Op: config.OpCount}},
	}
	_, err := Aggregate(tbl, def)
	require.Error(t, err)

	serr, ok := err.(*SchemaError)
	require.True(t, ok)
	assert.Equal(t, SourceLoader, serr.Source)
	assert.Equal(t, []string{"region"}, serr.Missing)
}

func TestMetricSkipsMissingCells(t *testing.T) {
	tbl := NewTable("trips")
	tbl.Dataset = "survey_a"
	tbl.MustAddColumn("mode", TextColumn([]string{"walk", "walk", "walk"}))
	tbl.MustAddColumn("distance", NumericColumn([]float64{2, 0, 4}, []bool{true, false, true}))

	def := config.Summary{
		Name:       "trips",
		DataSource: "trips",
		GroupBy:    []string{"mode"},
		Metrics: []config.Metric{
			{Name: "count", Op: config.OpCount},
			{Name: "avg_dist", Op: config.OpMean, Column: "distance"},
		},
	}
	res, err := Aggregate(tbl, def)
	require.NoError(t, err)

	// The row with a missing distance still counts but contributes nothing
	// to the mean.
	assert.InDelta(t, 3.0, numCells(t, res.Table, "count")[0], 1e-9)
	assert.InDelta(t, 3.0, numCells(t, res.Table, "avg_dist")[0], 1e-9)
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripcast-org/tripcast/config"
)

// textTable builds an all-text table from column name → cells, as the CSV
// shell would produce it. Empty cells are missing.
func textTable(t *testing.T, entity string, names []string, cols map[string][]string) *Table {
	t.Helper()
	tbl := NewTable(entity)
	for _, name := range names {
		cells := cols[name]
		valid := make([]bool, len(cells))
		for i, c := range cells {
			valid[i] = c != ""
		}
		require.NoError(t, tbl.AddColumn(name, &Column{Kind: KindText, Text: cells, Valid: valid}))
	}
	return tbl
}

func TestNormalizeRenamesAndTags(t *testing.T) {
	raw := textTable(t, "households", []string{"hhid", "county", "vehicles"}, map[string][]string{
		"hhid":     {"1", "2"},
		"county":   {"X", "Y"},
		"vehicles": {"0", "2"},
	})
	schema := config.EntitySchema{
		Fields: []string{"hh_id", "county", "vehicles"},
		Rename: map[string]string{"hhid": "hh_id"},
	}
	ds := config.Dataset{Name: "base", Location: "d"}

	got, err := Normalize(raw, schema, ds, []string{"county", "vehicles"}, []string{"vehicles"})
	require.NoError(t, err)

	assert.True(t, got.HasColumn("hh_id"))
	assert.False(t, got.HasColumn("hhid"))
	assert.Equal(t, "base", got.Dataset)

	tag := got.Column(DatasetColumn)
	require.NotNil(t, tag)
	cell, ok := tag.Cell(1)
	require.True(t, ok)
	assert.Equal(t, "base", cell)

	// vehicles was coerced to numeric.
	veh := got.Column("vehicles")
	assert.Equal(t, KindNumeric, veh.Kind)
	assert.Equal(t, 2.0, veh.Num[1])

	// The raw table is untouched.
	assert.Equal(t, KindText, raw.Column("vehicles").Kind)
	assert.True(t, raw.HasColumn("hhid"))
}

func TestNormalizeMissingRequiredColumn(t *testing.T) {
	raw := textTable(t, "households", []string{"hh_id"}, map[string][]string{
		"hh_id": {"1"},
	})
	ds := config.Dataset{Name: "base", Location: "d"}

	_, err := Normalize(raw, config.EntitySchema{Fields: []string{"hh_id", "income"}}, ds,
		[]string{"income", "county"}, nil)
	require.Error(t, err)

	serr, ok := err.(*SchemaError)
	require.True(t, ok)
	assert.Equal(t, SourceLoader, serr.Source)
	assert.Equal(t, "base", serr.Dataset)
	assert.ElementsMatch(t, []string{"income", "county"}, serr.Missing)
}

func TestCoercionMasksBadCells(t *testing.T) {
	raw := textTable(t, "trips", []string{"distance"}, map[string][]string{
		"distance": {"1.5", "n/a", "", "22", "NaN", "+Inf", "-Inf"},
	})
	ds := config.Dataset{Name: "base"}

	got, err := Normalize(raw, config.EntitySchema{Fields: []string{"distance"}}, ds,
		[]string{"distance"}, []string{"distance"})
	require.NoError(t, err)

	col := got.Column("distance")
	require.Equal(t, KindNumeric, col.Kind)
	assert.True(t, col.IsValid(0))
	assert.False(t, col.IsValid(1), "non-coercible value becomes missing, not an error")
	assert.False(t, col.IsValid(2))
	assert.True(t, col.IsValid(3))
	assert.Equal(t, 22.0, col.Num[3])
	// ParseFloat accepts these spellings, but no bin, weight, or metric can
	// place a non-finite value; they are masked like any other bad cell.
	assert.False(t, col.IsValid(4))
	assert.False(t, col.IsValid(5))
	assert.False(t, col.IsValid(6))
}

func TestNormalizeRenameCollision(t *testing.T) {
	raw := textTable(t, "households", []string{"hhid", "hh_id"}, map[string][]string{
		"hhid":  {"1"},
		"hh_id": {"2"},
	})
	schema := config.EntitySchema{
		Fields: []string{"hh_id"},
		Rename: map[string]string{"hhid": "hh_id"},
	}
	ds := config.Dataset{Name: "base"}

	_, err := Normalize(raw, schema, ds, []string{"hh_id"}, nil)
	require.Error(t, err)

	serr, ok := err.(*SchemaError)
	require.True(t, ok, "a rename collision is a schema problem, not a generic error")
	assert.Equal(t, SourceLoader, serr.Source)
	assert.Equal(t, "base", serr.Dataset)
	assert.Equal(t, []string{"hh_id"}, serr.Conflict)
	assert.Contains(t, serr.Error(), "hh_id")
}

func TestSelectDoesNotTouchReceiver(t *testing.T) {
	tbl := textTable(t, "trips", []string{"mode"}, map[string][]string{
		"mode": {"WALK", "BIKE", "DRIVE"},
	})
	sub := tbl.Select([]int{2, 0})

	assert.Equal(t, 2, sub.NumRows())
	cell, _ := sub.Column("mode").Cell(0)
	assert.Equal(t, "DRIVE", cell)
	assert.Equal(t, 3, tbl.NumRows())
}

func TestCellFormatsIntegerValuedFloats(t *testing.T) {
	col := NumericColumn([]float64{0, 1, 2.5}, nil)
	for i, want := range []string{"0", "1", "2.5"} {
		got, ok := col.Cell(i)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

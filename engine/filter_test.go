package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filterTestTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable("households")
	tbl.MustAddColumn("county", TextColumn([]string{"X", "X", "Y", "Z"}))
	tbl.MustAddColumn("vehicles", NumericColumn([]float64{0, 2, 1, 3}, nil))
	tbl.MustAddColumn("income", NumericColumn([]float64{10, 0, 55, 80}, []bool{true, false, true, true}))
	return tbl
}

func evalAll(t *testing.T, tbl *Table, expr string) []bool {
	t.Helper()
	pred, err := CompilePredicate(expr)
	require.NoError(t, err, "expression %q", expr)
	out := make([]bool, tbl.NumRows())
	for i := range out {
		out[i] = pred.Eval(tbl, i)
	}
	return out
}

func TestPredicateComparisons(t *testing.T) {
	tbl := filterTestTable(t)

	cases := []struct {
		expr string
		want []bool
	}{
		{`county == "X"`, []bool{true, true, false, false}},
		{`county != "X"`, []bool{false, false, true, true}},
		{`vehicles >= 2`, []bool{false, true, false, true}},
		{`vehicles < 1`, []bool{true, false, false, false}},
		{`county == "X" and vehicles >= 2`, []bool{false, true, false, false}},
		{`county == "Y" or county == "Z"`, []bool{false, false, true, true}},
		{`(county == "X" or county == "Y") and vehicles <= 1`, []bool{true, false, true, false}},
		{`not county == "X"`, []bool{false, false, true, true}},
		{`county == 'X' && vehicles == 0`, []bool{true, false, false, false}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, evalAll(t, tbl, tc.expr), "expression %q", tc.expr)
	}
}

func TestPredicateMissingCellFailsComparison(t *testing.T) {
	tbl := filterTestTable(t)

	// Row 1 has a missing income; it fails both the comparison and its
	// negated form built from the complementary operator.
	assert.Equal(t, []bool{false, false, true, true}, evalAll(t, tbl, `income >= 40`))
	assert.Equal(t, []bool{true, false, false, false}, evalAll(t, tbl, `income < 40`))
}

func TestPredicateColumns(t *testing.T) {
	pred, err := CompilePredicate(`county == "X" and (vehicles > 0 or income < 10)`)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"county", "vehicles", "income"}, pred.Columns())
}

func TestPredicateSyntaxErrors(t *testing.T) {
	for _, expr := range []string{
		`county = "X"`,
		`county ==`,
		`== "X"`,
		`county == "X`,
		`(county == "X"`,
		`county == "X" whatever`,
	} {
		_, err := CompilePredicate(expr)
		assert.Error(t, err, "expression %q", expr)
	}
}

func TestPredicateBareWordLiteral(t *testing.T) {
	tbl := filterTestTable(t)
	assert.Equal(t, []bool{true, true, false, false}, evalAll(t, tbl, `county == X`))
}

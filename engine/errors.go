package engine

import (
	"fmt"
	"strings"
)

// SchemaSource distinguishes who produced a column mismatch, so operators
// can tell an internal combiner problem from a bad external benchmark file.
type SchemaSource int

const (
	SourceLoader SchemaSource = iota
	SourceCombiner
	SourceExternal
)

func (s SchemaSource) String() string {
	switch s {
	case SourceLoader:
		return "loader"
	case SourceCombiner:
		return "combiner"
	case SourceExternal:
		return "external benchmark"
	}
	return "unknown"
}

// SchemaError reports a missing or mismatched column set. Fatal for the
// summary it occurs in; never surfaced as a downstream index or type error.
type SchemaError struct {
	Source   SchemaSource
	Summary  string
	Dataset  string
	Entity   string
	Location string // external file, for SourceExternal
	Missing  []string
	Extra    []string
	Conflict []string // canonical names claimed by more than one raw column
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:", e.Source)
	if e.Summary != "" {
		fmt.Fprintf(&b, " summary %q:", e.Summary)
	}
	if e.Dataset != "" {
		fmt.Fprintf(&b, " dataset %q:", e.Dataset)
	}
	if e.Entity != "" {
		fmt.Fprintf(&b, " table %q:", e.Entity)
	}
	if e.Location != "" {
		fmt.Fprintf(&b, " file %q:", e.Location)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " missing columns [%s]", strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, " unexpected columns [%s]", strings.Join(e.Extra, ", "))
	}
	if len(e.Conflict) > 0 {
		fmt.Fprintf(&b, " columns renamed onto the same name [%s]", strings.Join(e.Conflict, ", "))
	}
	return b.String()
}

// FilterError reports a predicate that cannot be evaluated against a table,
// most often a reference to an unknown column. A bad reference is an error,
// never silently false.
type FilterError struct {
	Summary string
	Expr    string
	Column  string
	Msg     string
}

func (e *FilterError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("filter: summary %q: expression %q references unknown column %q",
			e.Summary, e.Expr, e.Column)
	}
	return fmt.Sprintf("filter: summary %q: expression %q: %s", e.Summary, e.Expr, e.Msg)
}

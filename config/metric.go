package config

import "fmt"

// MetricOp is the closed set of aggregation operations. The engine
// dispatches on it with an exhaustive switch, so an unsupported op is a
// validation error here rather than a silent no-op downstream.
type MetricOp string

const (
	OpCount  MetricOp = "count"
	OpSum    MetricOp = "sum"
	OpMean   MetricOp = "mean"
	OpMin    MetricOp = "min"
	OpMax    MetricOp = "max"
	OpMedian MetricOp = "median"
	OpStd    MetricOp = "std"
)

// metricOps is the authoritative membership set.
var metricOps = map[MetricOp]bool{
	OpCount:  true,
	OpSum:    true,
	OpMean:   true,
	OpMin:    true,
	OpMax:    true,
	OpMedian: true,
	OpStd:    true,
}

// Valid reports whether the op is a member of the closed set.
func (op MetricOp) Valid() bool { return metricOps[op] }

// NeedsColumn reports whether the op aggregates a named source column.
// count is the only op computed from weights alone.
func (op MetricOp) NeedsColumn() bool { return op != OpCount }

// Weighted reports whether sample weights enter the computation. min, max,
// median, and std deliberately use raw values only.
func (op MetricOp) Weighted() bool {
	return op == OpCount || op == OpSum || op == OpMean
}

func (op MetricOp) String() string { return string(op) }

// ParseMetricOp converts a config string into a MetricOp.
func ParseMetricOp(s string) (MetricOp, error) {
	op := MetricOp(s)
	if !op.Valid() {
		return "", fmt.Errorf("unknown metric op %q", s)
	}
	return op, nil
}

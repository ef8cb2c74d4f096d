package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tripcast-org/tripcast/config"
)

// ============================================================================
// RUNNER — one pipeline run over all summaries and datasets
// ============================================================================
// Each summary is a pure function of the table context: transform and
// aggregate every dataset independently, join at the combiner, append any
// external benchmarks. Summaries fan out concurrently; so do datasets within
// a summary. A failing summary is recorded and never aborts the others.
// ============================================================================

// TableKey addresses one record table in the context.
type TableKey struct {
	Dataset string
	Entity  string
}

// TableContext maps (dataset, entity) to its normalized record table. Built
// once by the shell and passed explicitly into every summary run — there is
// no ambient table cache, so concurrent runs share nothing mutable.
type TableContext map[TableKey]*Table

// ExternalTable is a pre-aggregated benchmark table targeted at one summary.
type ExternalTable struct {
	Location string
	Table    *Table
}

// SummaryStatus classifies one summary's outcome.
type SummaryStatus string

const (
	StatusOK     SummaryStatus = "ok"
	StatusEmpty  SummaryStatus = "empty"
	StatusFailed SummaryStatus = "failed"
)

// SummaryResult is one summary's finished table plus its accounting.
type SummaryResult struct {
	Name           string
	Status         SummaryStatus
	Table          *Table // nil when Status is failed
	Rows           int
	ExcludedWeight int
	ExcludedGroup  int
	Err            error
}

// RunReport is the structured record of a whole run: per-summary status and
// row-exclusion counts, keyed by summary name.
type RunReport struct {
	RunID     string
	Summaries []SummaryResult
}

// Failed returns the names of summaries that did not produce a table.
func (r *RunReport) Failed() []string {
	var out []string
	for _, s := range r.Summaries {
		if s.Status == StatusFailed {
			out = append(out, s.Name)
		}
	}
	return out
}

// Runner executes every summary in a config against a table context.
type Runner struct {
	cfg       *config.Config
	tables    TableContext
	externals map[string][]ExternalTable
	log       *slog.Logger
	parallel  int
}

// NewRunner builds a runner. Options configure logging, parallelism, and
// external benchmark tables.
func NewRunner(cfg *config.Config, tables TableContext, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		tables:    tables,
		externals: make(map[string][]ExternalTable),
		log:       slog.Default(),
		parallel:  4,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes every summary. The returned error covers only context
// cancellation; individual summary failures live in the report, since each
// summary writes an independent artifact and must not invalidate the others.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Summaries: make([]SummaryResult, len(r.cfg.Summaries)),
	}
	r.log.Info("run starting", "run_id", report.RunID,
		"summaries", len(r.cfg.Summaries), "datasets", len(r.cfg.Datasets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i, def := range r.cfg.Summaries {
		i, def := i, def
		g.Go(func() error {
			report.Summaries[i] = r.runSummary(ctx, def)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	for _, s := range report.Summaries {
		switch s.Status {
		case StatusFailed:
			r.log.Error("summary failed", "run_id", report.RunID, "summary", s.Name, "error", s.Err)
		case StatusEmpty:
			r.log.Warn("summary produced zero rows", "run_id", report.RunID, "summary", s.Name)
		default:
			r.log.Info("summary finished", "run_id", report.RunID, "summary", s.Name,
				"rows", s.Rows, "excluded_weight", s.ExcludedWeight, "excluded_group", s.ExcludedGroup)
		}
	}
	return report, nil
}

// runSummary runs the transform → aggregate pipeline for one summary on each
// dataset concurrently, then combines and merges externals.
func (r *Runner) runSummary(ctx context.Context, def config.Summary) SummaryResult {
	res := SummaryResult{Name: def.Name}

	results := make([]DatasetResult, len(r.cfg.Datasets))
	aggs := make([]*AggregateResult, len(r.cfg.Datasets))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i, ds := range r.cfg.Datasets {
		i, ds := i, ds
		g.Go(func() error {
			tbl, ok := r.tables[TableKey{Dataset: ds.Name, Entity: def.DataSource}]
			if !ok {
				return &SchemaError{
					Source:  SourceLoader,
					Summary: def.Name,
					Dataset: ds.Name,
					Entity:  def.DataSource,
					Missing: []string{"(table not loaded)"},
				}
			}
			transformed, err := Transform(tbl, def)
			if err != nil {
				return err
			}
			agg, err := Aggregate(transformed, def)
			if err != nil {
				return err
			}
			aggs[i] = agg
			results[i] = DatasetResult{Label: ds.DisplayLabel(), Table: agg.Table}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	for _, a := range aggs {
		res.ExcludedWeight += a.ExcludedWeight
		res.ExcludedGroup += a.ExcludedGroup
	}

	combined, err := Combine(def, results)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	for _, ext := range r.externals[def.Name] {
		combined, err = MergeExternal(def, combined, ext.Table, ext.Location)
		if err != nil {
			res.Status = StatusFailed
			res.Err = err
			return res
		}
	}

	res.Table = combined
	res.Rows = combined.NumRows()
	if res.Rows == 0 {
		res.Status = StatusEmpty
	} else {
		res.Status = StatusOK
	}
	return res
}

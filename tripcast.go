// Package tripcast turns hierarchical travel-behavior record tables
// (households, persons, tours, trips) into weighted, categorical summary
// tables for validation and cross-run comparison.
//
// Analysts declare summaries entirely in YAML — which table to read, how to
// group it, how to bin continuous fields, how to collapse detailed codes,
// how to weight records, and how to compute within-group shares — without
// touching code:
//
//	cfg, err := config.Load("tripcast.yaml")
//	tables, err := helpers.LoadContext(cfg)
//	report, err := engine.NewRunner(cfg, tables).Run(ctx)
//
// The engine package is the core: transformer (filter, bin, remap),
// aggregator (weights, metrics, shares), combiner (multi-dataset union), and
// external benchmark merger. File formats, charts, and dashboards are
// collaborators outside this module; the contract is plain delimited text.
package tripcast

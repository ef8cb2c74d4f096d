package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/tripcast-org/tripcast/config"
	"github.com/tripcast-org/tripcast/emit"
	"github.com/tripcast-org/tripcast/engine"
	"github.com/tripcast-org/tripcast/helpers"
)

// ============================================================================
// TRIPCAST CLI — weighted travel summaries from declarative config
// ============================================================================

const version = "0.3.0"

func main() {
	configPath := pflag.StringP("config", "c", "tripcast.yaml", "Path to configuration file")
	outDir := pflag.StringP("out", "o", "", "Output directory (overrides config)")
	format := pflag.String("format", "", "Output format: csv, excel, both (overrides config)")
	parallel := pflag.Int("parallel", 4, "Maximum concurrent summaries")
	showVersion := pflag.Bool("version", false, "Print version and exit")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, `tripcast — weighted summaries of travel model and survey tables

Usage:
  tripcast --config tripcast.yaml
  tripcast --config tripcast.yaml --out summaries --format both

Every dataset location must contain one CSV per entity a summary reads
(households.csv, persons.csv, tours.csv, trips.csv).

Flags:
`)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *showVersion {
		fmt.Printf("tripcast %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tripcast: %v\n", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *format != "" {
		cfg.Output.Format = *format
	}

	log := newLogger(cfg.Logging)
	slog.SetDefault(log)

	if err := run(cfg, log, *parallel); err != nil {
		log.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger, parallel int) error {
	tables, err := helpers.LoadContext(cfg)
	if err != nil {
		return err
	}

	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithParallelism(parallel),
	}
	for _, ext := range cfg.External {
		def, _ := cfg.SummaryByName(ext.Summary)
		tbl, err := helpers.ReadExternal(ext.Location, def)
		if err != nil {
			return fmt.Errorf("external benchmark %q: %w", ext.Location, err)
		}
		opts = append(opts, engine.WithExternal(ext.Summary, engine.ExternalTable{
			Location: ext.Location,
			Table:    tbl,
		}))
	}

	runner := engine.NewRunner(cfg, tables, opts...)
	report, err := runner.Run(context.Background())
	if err != nil {
		return err
	}

	if err := writeOutputs(cfg, log, report); err != nil {
		return err
	}

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d summaries failed: %v", len(failed), len(report.Summaries), failed)
	}
	return nil
}

func writeOutputs(cfg *config.Config, log *slog.Logger, report *engine.RunReport) error {
	wantCSV := cfg.Output.Format == "csv" || cfg.Output.Format == "both"
	wantExcel := cfg.Output.Format == "excel" || cfg.Output.Format == "both"

	var wb *emit.Workbook
	if wantExcel {
		wb = emit.NewWorkbook()
		defer func() { _ = wb.Close() }()
	}

	wrote := 0
	for _, s := range report.Summaries {
		if s.Table == nil {
			continue
		}
		if wantCSV {
			path, err := emit.WriteCSVFile(cfg.Output.Dir, s.Name, s.Table)
			if err != nil {
				return err
			}
			log.Info("wrote summary", "summary", s.Name, "path", path, "rows", s.Rows)
		}
		if wantExcel {
			if err := wb.AddSheet(s.Name, s.Table); err != nil {
				return err
			}
		}
		wrote++
	}

	if wantExcel && wrote > 0 {
		path, err := wb.Save(cfg.Output.Dir, "summaries")
		if err != nil {
			return err
		}
		log.Info("wrote workbook", "path", path, "sheets", wrote)
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// ============================================================================
// REGISTRY — Load and exhaustively validate the declarative document
// ============================================================================
// Validation collects every problem across every entry before returning, so
// an analyst sees the full list in one pass instead of fixing errors
// one-at-a-time. Nothing here touches record data.
// ============================================================================

// envPrefix scopes environment variable overrides (TRIPCAST_OUTPUT_DIR etc).
const envPrefix = "TRIPCAST"

// ConfigError describes one invalid declarative entry.
type ConfigError struct {
	Summary string // offending summary name, empty for document-level problems
	Field   string
	Msg     string
}

func (e *ConfigError) Error() string {
	if e.Summary == "" {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("config: summary %q: %s: %s", e.Summary, e.Field, e.Msg)
}

// Load reads, parses, and validates a YAML configuration file. Environment
// variables prefixed TRIPCAST_ override output and logging settings. The
// returned error, if any, joins every ConfigError found.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse validates an already-read YAML document.
func Parse(raw []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	applyDefaults(cfg)
	if err := envconfig.Process(envPrefix, &cfg.Output); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := envconfig.Process(envPrefix+"_LOG", &cfg.Logging); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "summaries"
	}
	if cfg.Output.Format == "" {
		cfg.Output.Format = "csv"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate runs structural (tag-based) and semantic validation over the
// whole document and returns every error found, joined.
func (c *Config) Validate() error {
	var errs []error

	v := validator.New()
	if err := v.Struct(c); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return err
		}
		for _, fe := range err.(validator.ValidationErrors) {
			errs = append(errs, &ConfigError{
				Field: fe.Namespace(),
				Msg:   fmt.Sprintf("failed %q validation", fe.Tag()),
			})
		}
	}

	errs = append(errs, c.validateDatasets()...)
	errs = append(errs, c.validateSummaries()...)
	errs = append(errs, c.validateExternal()...)

	return errors.Join(errs...)
}

func (c *Config) validateDatasets() []error {
	var errs []error
	seen := make(map[string]bool)
	for _, d := range c.Datasets {
		if seen[d.Name] {
			errs = append(errs, &ConfigError{
				Field: "datasets",
				Msg:   fmt.Sprintf("duplicate dataset name %q", d.Name),
			})
		}
		seen[d.Name] = true
	}
	return errs
}

func (c *Config) validateSummaries() []error {
	var errs []error
	entityKnown := make(map[string]bool, len(Entities))
	for _, e := range Entities {
		entityKnown[e] = true
	}

	names := make(map[string]bool)
	for _, s := range c.Summaries {
		bad := func(field, format string, args ...any) {
			errs = append(errs, &ConfigError{
				Summary: s.Name,
				Field:   field,
				Msg:     fmt.Sprintf(format, args...),
			})
		}

		if names[s.Name] {
			bad("name", "duplicate summary name")
		}
		names[s.Name] = true

		// data_source must be a canonical entity with a declared schema.
		schema, hasSchema := c.Schemas[s.DataSource]
		if !entityKnown[s.DataSource] {
			bad("data_source", "unknown data source %q (want one of %s)",
				s.DataSource, strings.Join(Entities, ", "))
		} else if !hasSchema {
			bad("data_source", "no schema declared for entity %q", s.DataSource)
		}

		// Bin shape.
		for name, b := range s.Bins {
			if len(b.Labels) != len(b.Breaks)-1 {
				bad("bins."+name, "need len(labels) == len(breaks)-1, got %d labels for %d breaks",
					len(b.Labels), len(b.Breaks))
			}
			if !sort.Float64sAreSorted(b.Breaks) {
				bad("bins."+name, "breaks must be ascending")
			}
			if hasSchema && !schema.HasField(b.Column) {
				bad("bins."+name, "source column %q not in %s schema", b.Column, s.DataSource)
			}
		}

		// Aggregation-mapping sources.
		for name, a := range s.Aggregations {
			if hasSchema && !schema.HasField(a.Column) {
				bad("aggregation_specs."+name, "source column %q not in %s schema", a.Column, s.DataSource)
			}
		}

		// group_by must resolve after transformation.
		derived := s.derivedColumns()
		groupSet := make(map[string]bool, len(s.GroupBy))
		for _, g := range s.GroupBy {
			groupSet[g] = true
			if derived[g] {
				continue
			}
			if hasSchema && !schema.HasField(g) {
				bad("group_by", "column %q is neither a schema column of %s nor a declared bin/aggregation output",
					g, s.DataSource)
			}
		}

		// share_within ⊆ group_by.
		for _, sw := range s.ShareWithin {
			if !groupSet[sw] {
				bad("share_within", "column %q is not in group_by", sw)
			}
		}

		// Metrics.
		metricNames := make(map[string]bool)
		for _, m := range s.Metrics {
			if metricNames[m.Name] {
				bad("metrics", "duplicate metric name %q", m.Name)
			}
			metricNames[m.Name] = true
			if !m.Op.Valid() {
				bad("metrics."+m.Name, "unknown op %q", m.Op)
				continue
			}
			if m.Op.NeedsColumn() {
				if m.Column == "" {
					bad("metrics."+m.Name, "op %q requires a source column", m.Op)
				} else if hasSchema && !schema.HasField(m.Column) {
					bad("metrics."+m.Name, "source column %q not in %s schema", m.Column, s.DataSource)
				}
			}
		}

		// Weight field.
		if s.WeightField != "" && hasSchema && !schema.HasField(s.WeightField) {
			bad("weight_field", "column %q not in %s schema", s.WeightField, s.DataSource)
		}
	}
	return errs
}

func (c *Config) validateExternal() []error {
	var errs []error
	for _, ext := range c.External {
		if _, ok := c.SummaryByName(ext.Summary); !ok {
			errs = append(errs, &ConfigError{
				Field: "external",
				Msg:   fmt.Sprintf("benchmark %q references unknown summary %q", ext.Location, ext.Summary),
			})
		}
	}
	return errs
}

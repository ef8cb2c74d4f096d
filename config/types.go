package config

// ============================================================================
// CONFIG TYPES — Declarative description of datasets, schemas, and summaries
// ============================================================================
// Everything the engine does is declared here. Analysts add new summaries by
// editing YAML, never code. The registry (registry.go) validates the whole
// document exhaustively before any data is touched.
// ============================================================================

// Entities are the canonical record tables of a travel model or household
// survey, linked household → person → tour → trip.
var Entities = []string{"households", "persons", "tours", "trips"}

// Config is the root of the declarative document.
type Config struct {
	Datasets  []Dataset               `yaml:"datasets" validate:"required,min=1,dive"`
	Schemas   map[string]EntitySchema `yaml:"schemas" validate:"required"`
	Summaries []Summary               `yaml:"summaries" validate:"required,min=1,dive"`
	External  []ExternalSource        `yaml:"external" validate:"dive"`
	Output    OutputConfig            `yaml:"output" envconfig:"OUTPUT"`
	Logging   LoggingConfig           `yaml:"logging" envconfig:"LOGGING"`
}

// Dataset identifies one source of raw records: a model run or a survey.
// Immutable after load; record tables reference it by Name.
type Dataset struct {
	Name     string `yaml:"name" validate:"required"`
	Label    string `yaml:"label"`
	Location string `yaml:"location" validate:"required"`
}

// DisplayLabel is what appears in the output `dataset` column.
func (d Dataset) DisplayLabel() string {
	if d.Label != "" {
		return d.Label
	}
	return d.Name
}

// EntitySchema declares the canonical columns of one entity table and how
// raw column names map onto them.
type EntitySchema struct {
	// Fields is the canonical column set the table declares after renaming.
	Fields []string `yaml:"fields" validate:"required,min=1"`
	// Rename maps raw column name → canonical column name. Columns not
	// listed keep their raw name.
	Rename map[string]string `yaml:"rename"`
}

// HasField reports whether a canonical column is part of the schema.
func (s EntitySchema) HasField(name string) bool {
	for _, f := range s.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Summary is the declarative unit of work: one summary table produced from
// one entity across all datasets.
type Summary struct {
	Name         string                 `yaml:"name" validate:"required"`
	DataSource   string                 `yaml:"data_source" validate:"required"`
	GroupBy      []string               `yaml:"group_by" validate:"required,min=1"`
	Filter       string                 `yaml:"filter"`
	Bins         map[string]Bin         `yaml:"bins"`
	Aggregations map[string]Aggregation `yaml:"aggregation_specs"`
	WeightField  string                 `yaml:"weight_field"`
	Metrics      []Metric               `yaml:"metrics" validate:"required,min=1,dive"`
	ShareWithin  []string               `yaml:"share_within"`
}

// Bin converts a continuous numeric column into labeled ranges. Intervals
// are left-closed/right-open, except the final interval which is closed on
// both ends. Values outside [breaks[0], breaks[n-1]] get the missing
// category.
type Bin struct {
	Column string    `yaml:"column" validate:"required"`
	Breaks []float64 `yaml:"breaks" validate:"required,min=2"`
	Labels []string  `yaml:"labels" validate:"required,min=1"`
}

// Aggregation collapses a categorical column's detailed codes into coarser
// labels. Deliberately partial: unmapped values pass through unchanged.
type Aggregation struct {
	Column string            `yaml:"column" validate:"required"`
	Map    map[string]string `yaml:"map"`
}

// Metric is one named aggregation operation over the summary's groups.
type Metric struct {
	Name   string   `yaml:"name" validate:"required"`
	Op     MetricOp `yaml:"op" validate:"required"`
	Column string   `yaml:"column"`
}

// ExternalSource points at a pre-aggregated benchmark table (survey, census
// extract) already shaped to a summary's column contract.
type ExternalSource struct {
	Summary  string `yaml:"summary" validate:"required"`
	Location string `yaml:"location" validate:"required"`
}

// OutputConfig controls where and how finished tables are written.
type OutputConfig struct {
	Dir    string `yaml:"dir" envconfig:"DIR"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"omitempty,oneof=csv excel both"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"omitempty,oneof=text json"`
}

// ============================================================================
// DERIVED COLUMN REQUIREMENTS
// ============================================================================

// derivedColumns returns the set of column names a summary produces beyond
// the raw schema (bin and aggregation outputs).
func (s Summary) derivedColumns() map[string]bool {
	out := make(map[string]bool, len(s.Bins)+len(s.Aggregations))
	for name := range s.Bins {
		out[name] = true
	}
	for name := range s.Aggregations {
		out[name] = true
	}
	return out
}

// RequiredColumns returns the raw canonical columns a summary needs from its
// entity table: bin and remap sources, metric columns, the weight field, and
// any group_by column that is not itself derived.
func (s Summary) RequiredColumns() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	derived := s.derivedColumns()
	for _, g := range s.GroupBy {
		if !derived[g] {
			add(g)
		}
	}
	for _, b := range s.Bins {
		add(b.Column)
	}
	for _, a := range s.Aggregations {
		add(a.Column)
	}
	for _, m := range s.Metrics {
		add(m.Column)
	}
	add(s.WeightField)
	return out
}

// NumericColumns returns the raw columns that must coerce to float64: bin
// sources, weight field, and metric source columns.
func (s Summary) NumericColumns() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, b := range s.Bins {
		add(b.Column)
	}
	for _, m := range s.Metrics {
		add(m.Column)
	}
	add(s.WeightField)
	return out
}

// RequiredColumnsFor unions RequiredColumns over every summary that targets
// the given entity. The loader uses this as the schema-capability check.
func (c *Config) RequiredColumnsFor(entity string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range c.Summaries {
		if s.DataSource != entity {
			continue
		}
		for _, col := range s.RequiredColumns() {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
	}
	return out
}

// NumericColumnsFor unions NumericColumns over every summary targeting the
// entity.
func (c *Config) NumericColumnsFor(entity string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range c.Summaries {
		if s.DataSource != entity {
			continue
		}
		for _, col := range s.NumericColumns() {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
	}
	return out
}

// EntitiesUsed returns the entities referenced by at least one summary.
func (c *Config) EntitiesUsed() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range c.Summaries {
		if !seen[s.DataSource] {
			seen[s.DataSource] = true
			out = append(out, s.DataSource)
		}
	}
	return out
}

// SummaryByName returns the summary with the given name, if declared.
func (c *Config) SummaryByName(name string) (Summary, bool) {
	for _, s := range c.Summaries {
		if s.Name == name {
			return s, true
		}
	}
	return Summary{}, false
}

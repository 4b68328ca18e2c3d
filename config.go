package mongoferry

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the full TOML-driven migration configuration supplied by
// the operator. It stands in for the interactive form layer of a UI: every
// per-column widget becomes one entry under [columns], collected once and
// handed to ResolveMapping.
type Config struct {
	Source    SourceConfig    `toml:"source"`
	Target    TargetConfig    `toml:"target"`
	Migration MigrationConfig `toml:"migration"`

	// Columns carries per-column rename and target-type overrides keyed by
	// source column name.
	Columns map[string]ColumnConfig `toml:"columns"`

	// Relationships assigns a strategy to discovered foreign keys, keyed
	// by "child_table.child_column". Advisory only.
	Relationships map[string]string `toml:"relationships"`
}

// SourceConfig identifies the source engine and connection string.
type SourceConfig struct {
	Type string `toml:"type"` // mysql, sqlserver, postgres, sqlite
	DSN  string `toml:"dsn"`
}

// TargetConfig identifies the MongoDB deployment and database to write to.
type TargetConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

// MigrationConfig carries the run parameters for a single-table migration.
type MigrationConfig struct {
	Table      string `toml:"table"`
	Collection string `toml:"collection"` // default: table with '.' → '_'
	BatchSize  int    `toml:"batch_size"`
	IDField    string `toml:"id_field"` // empty: target store assigns _id
	Upsert     bool   `toml:"upsert"`
	Strict     bool   `toml:"strict"`
}

// ColumnConfig is the operator's override for one source column.
type ColumnConfig struct {
	Rename string `toml:"rename"`
	Type   string `toml:"type"`
}

// LoadConfig reads a TOML config file and returns a Config with defaults
// applied. Unknown keys are rejected so typos fail loudly instead of
// silently migrating with defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{
		Migration: MigrationConfig{
			BatchSize: 500,
			Upsert:    true,
		},
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	if cfg.Source.Type == "" {
		return nil, &ConfigurationError{Reason: "source.type is required (mysql, sqlserver, postgres or sqlite)"}
	}
	if _, err := NewSourceDB(cfg.Source.Type); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	if cfg.Source.DSN == "" {
		return nil, &ConfigurationError{Reason: "source.dsn is required"}
	}
	if cfg.Target.URI == "" {
		return nil, &ConfigurationError{Reason: "target.uri is required"}
	}
	if cfg.Target.Database == "" {
		return nil, &ConfigurationError{Reason: "target.database is required"}
	}
	if strings.TrimSpace(cfg.Migration.Table) == "" {
		return nil, &ConfigurationError{Reason: "migration.table is required"}
	}
	if cfg.Migration.BatchSize <= 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("migration.batch_size must be positive, got %d", cfg.Migration.BatchSize)}
	}

	for col, cc := range cfg.Columns {
		if cc.Type != "" && !TargetType(cc.Type).Valid() {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("columns.%s: unknown target type %q", col, cc.Type)}
		}
	}
	for edge, strategy := range cfg.Relationships {
		if !Strategy(strategy).Valid() {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("relationships.%q: unknown strategy %q (embed, reference or ignore)", edge, strategy)}
		}
	}

	return &cfg, nil
}

// FieldOverrides converts the [columns] section into the override map
// ResolveMapping consumes.
func (c *Config) FieldOverrides() map[string]FieldOverride {
	if len(c.Columns) == 0 {
		return nil
	}
	overrides := make(map[string]FieldOverride, len(c.Columns))
	for col, cc := range c.Columns {
		overrides[col] = FieldOverride{Rename: cc.Rename, Type: TargetType(cc.Type)}
	}
	return overrides
}

// StrategyChooser builds a chooser from the [relationships] section.
// Edges without an entry default to embed.
func (c *Config) StrategyChooser() StrategyChooser {
	if len(c.Relationships) == 0 {
		return nil
	}
	return func(fk ForeignKey) Strategy {
		if s, ok := c.Relationships[fk.ChildTable+"."+fk.ChildColumn]; ok {
			return Strategy(s)
		}
		return StrategyEmbed
	}
}

// MigrationSpec assembles the executor spec from the config plus a
// resolved mapping and the introspected table's paging order.
func (c *Config) MigrationSpec(mapping []FieldMapping, orderBy []string) MigrationSpec {
	return MigrationSpec{
		Table:      c.Migration.Table,
		Collection: c.Migration.Collection,
		Mapping:    mapping,
		BatchSize:  c.Migration.BatchSize,
		IDField:    c.Migration.IDField,
		Upsert:     c.Migration.Upsert,
		Strict:     c.Migration.Strict,
		OrderBy:    orderBy,
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Limetric/mongoferry"
)

var (
	configPath string
	previewN   int
)

var rootCmd = &cobra.Command{
	Use:   "mongoferry [config.toml]",
	Short: "SQL to MongoDB migration tool",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMigration,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to migration TOML config file")
	rootCmd.Flags().IntVar(&previewN, "preview", 0, "convert N sample rows, print them, and exit without writing")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMigration(cmd *cobra.Command, args []string) error {
	// Resolve config path: positional arg takes precedence over --config flag
	cfgPath := configPath
	if len(args) > 0 {
		cfgPath = args[0]
	}
	if cfgPath == "" {
		return fmt.Errorf("config file required: mongoferry <config.toml> or mongoferry --config <config.toml>")
	}

	cfg, err := mongoferry.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	start := time.Now()

	src, err := mongoferry.NewSourceDB(cfg.Source.Type)
	if err != nil {
		return err
	}

	log.Printf("mongoferry — %s → MongoDB migration", src.Name())
	log.Printf("config: table=%s batch_size=%d upsert=%t strict=%t id_field=%q",
		cfg.Migration.Table, cfg.Migration.BatchSize, cfg.Migration.Upsert,
		cfg.Migration.Strict, cfg.Migration.IDField)

	// 1. Connect to the source
	log.Printf("connecting to %s...", src.Name())
	db, err := src.OpenDB(cfg.Source.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", src.Name(), err)
	}
	dbName, err := src.ExtractDBName(cfg.Source.DSN)
	if err != nil {
		return err
	}

	// 2. Introspect the selected table
	log.Printf("introspecting %s.%s...", dbName, cfg.Migration.Table)
	table, err := mongoferry.IntrospectTable(ctx, src, db, dbName, cfg.Migration.Table)
	if err != nil {
		return err
	}
	log.Printf("found %d columns, %d foreign keys, pk=%v",
		len(table.Columns), len(table.ForeignKeys), table.PrimaryKey)

	// 3. Classify relationships (advisory only — nothing is embedded or
	// dereferenced during the data copy)
	if assignments := mongoferry.ClassifyRelationships(table.ForeignKeys, cfg.StrategyChooser()); len(assignments) > 0 {
		log.Printf("relationships (advisory, not executed):")
		for _, a := range assignments {
			log.Printf("  %s.%s → %s.%s: %s",
				a.Edge.ChildTable, a.Edge.ChildColumn,
				a.Edge.ParentTable, a.Edge.ParentColumn, a.Strategy)
		}
	}

	// 4. Resolve the field mapping
	mapping, err := mongoferry.ResolveMapping(table.Columns, cfg.FieldOverrides())
	if err != nil {
		return err
	}
	for _, fm := range mapping {
		if fm.TargetType == mongoferry.TypeObjectID {
			log.Printf("  WARN: %s → %s as objectid: values that are not valid 24-char hex ids get a freshly generated id (identity is fabricated, not preserved)",
				fm.SourceColumn, fm.TargetName)
		}
	}

	// 5. Connect to MongoDB
	log.Printf("connecting to MongoDB...")
	target, disconnect, err := mongoferry.ConnectMongoTarget(ctx, cfg.Target.URI, cfg.Target.Database)
	if err != nil {
		return err
	}
	defer disconnect(ctx)

	m := &mongoferry.Migrator{
		Source: mongoferry.NewReader(src, db),
		Target: target,
		Progress: func(p mongoferry.Progress) {
			log.Printf("  processed %d/%d rows (%.0f%%)", p.Processed, p.Total, p.Fraction()*100)
		},
	}
	spec := cfg.MigrationSpec(mapping, mongoferry.DefaultOrderBy(table))

	// 6. Preview mode: convert a sample and stop
	if previewN > 0 {
		docs, err := m.Preview(ctx, spec, previewN)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return fmt.Errorf("render preview: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	// 7. Run the migration
	log.Printf("migrating %s → %s.%s...", spec.Table, cfg.Target.Database, collectionName(spec))
	res, err := m.Run(ctx, spec)
	if res != nil {
		for _, f := range res.Failures {
			log.Printf("  FAILED row %d: %s", f.RowIndex, f.Reason)
		}
	}
	if err != nil {
		return err
	}

	log.Printf("migration completed in %s: %d/%d rows in %d batches, %d failures",
		time.Since(start).Round(time.Millisecond),
		res.Processed, res.TotalRows, res.Batches, len(res.Failures))
	return nil
}

func collectionName(spec mongoferry.MigrationSpec) string {
	if spec.Collection != "" {
		return spec.Collection
	}
	return strings.ReplaceAll(spec.Table, ".", "_")
}

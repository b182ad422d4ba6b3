package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smorty/internal/ir"
	"smorty/internal/schema"
)

// newGenMigrationCmd builds gen-migration: diff the union of every stored
// event IR's table schema against the persisted schema state and print the
// resulting plan, without touching the database (spec.md §6: C3,C7).
func newGenMigrationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-migration",
		Short: "Compute and print the pending schema migration plan",
		RunE:  runGenMigration,
	}
}

func runGenMigration(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store := ir.NewStore(cfg.BasePath)
	refs, err := store.ListEventIRs()
	if err != nil {
		return err
	}

	previous, err := schema.Load(cfg.BasePath)
	if err != nil {
		return err
	}
	target := buildTargetState(refs)

	diff := schema.Compute(previous, target)
	if !diff.HasChanges() {
		logger.Info("no pending schema changes")
		return nil
	}

	plan, warnings, err := schema.Plan(diff)
	if err != nil {
		return err
	}

	for _, w := range warnings {
		logger.Warn(w)
	}
	for _, stmt := range plan {
		fmt.Println(stmt.SQL)
	}

	logger.Info("migration plan computed", zap.Int("statements", len(plan)), zap.Int("warnings", len(warnings)))
	return nil
}

// buildTargetState assembles the target schema state from every stored
// event IR's table schema — the union migrate compares against the
// persisted baseline (spec.md §3 "schema state = union of event IR table
// schemas").
func buildTargetState(refs []ir.EventIRRef) *schema.State {
	state := schema.New(time.Now().UTC().Format(time.RFC3339))

	for _, ref := range refs {
		t := ref.IR.TableSchema

		columns := make([]schema.ColumnState, 0, len(t.Columns))
		for _, c := range t.Columns {
			columns = append(columns, schema.ColumnState{Name: c.Name, ColumnType: c.SQLType})
		}

		indexes := make([]schema.IndexState, 0, len(t.Indexes))
		for _, idx := range t.Indexes {
			indexes = append(indexes, schema.IndexState{Name: idx.Name, Definition: indexDefinitionSQL(t.TableName, idx)})
		}

		state.AddTable(schema.TableState{
			Name:    t.TableName,
			Source:  schema.TableSource{ContractName: ref.ContractID, SpecName: ref.EventName},
			Columns: columns,
			Indexes: indexes,
		})
	}

	return state
}

func indexDefinitionSQL(table string, idx ir.IndexDef) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, idx.Name, table, strings.Join(idx.Columns, ", "))
}

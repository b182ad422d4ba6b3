package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smorty/internal/ir"
	"smorty/internal/schema"
)

// newMigrateCmd builds migrate: apply the pending schema diff against
// Postgres in one transaction, then rewrite the persisted schema state
// (spec.md §6: C7 + DB). A failed migration leaves schema state untouched.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the pending schema migration against the database",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URI)
	if err != nil {
		return schemaDBError("connect database", err)
	}
	defer pool.Close()

	if err := schema.EnsureCheckpointTable(ctx, pool); err != nil {
		return err
	}

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

	if err := schema.Apply(ctx, pool, cfg.BasePath, plan, target); err != nil {
		return err
	}

	if err := schema.ArchiveSQL(cfg.BasePath, migrationDesc(diff), plan); err != nil {
		logger.Warn("migration applied but SQL archive could not be written", zap.Error(err))
	}

	logger.Info("migration applied", zap.Int("statements", len(plan)))
	return nil
}

// migrationDesc names the archived migrations/NNNN_*.sql file after the
// tables it touches, so the filename is informative without depending on a
// wall-clock timestamp.
func migrationDesc(diff schema.Diff) string {
	var names []string
	for _, t := range diff.TablesAdded {
		names = append(names, t.Name)
	}
	for _, t := range diff.TablesModified {
		names = append(names, t.TableName)
	}
	if len(names) == 0 {
		return "migration"
	}
	desc := names[0]
	for _, n := range names[1:] {
		desc += "_" + n
	}
	return desc
}

func schemaDBError(op string, err error) error {
	return &schema.Error{Msg: op + ": " + err.Error()}
}

package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"smorty/internal/typemap"
)

// UnsafeError reports a column type change that is not a known-safe
// widening (spec.md §4.4 UnsafeMigrationError): the migration aborts rather
// than risk silent data loss.
type UnsafeError struct {
	TableName  string
	ColumnName string
	OldType    string
	NewType    string
}

func (e *UnsafeError) Error() string {
	return fmt.Sprintf("unsafe migration: %s.%s type change %s -> %s is not a known-safe widening",
		e.TableName, e.ColumnName, e.OldType, e.NewType)
}

// Statement is one planned DDL statement, tagged by the table it targets so
// the plan stays traceable back to a diff entry.
type Statement struct {
	TableName string
	SQL       string
}

// Plan turns a diff into an ordered, deterministic sequence of forward SQL
// statements: creates before alters before index changes, each bucket
// sorted by table name then column name (spec.md §4.4). Table and column
// drops never produce SQL — they are reported separately as warnings.
func Plan(diff Diff) ([]Statement, []string, error) {
	var creates, alters, indexChanges []Statement
	var warnings []string

	for _, t := range diff.TablesAdded {
		creates = append(creates, Statement{TableName: t.Name, SQL: createTableSQL(t)})
	}

	for _, name := range diff.TablesDropped {
		warnings = append(warnings, fmt.Sprintf("table %q was removed from the declared schema but was not dropped; drop it manually if intended", name))
	}

	for _, td := range diff.TablesModified {
		cols := append([]ColumnState{}, td.ColumnsAdded...)
		sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
		for _, c := range cols {
			alters = append(alters, Statement{
				TableName: td.TableName,
				SQL:       fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", td.TableName, c.Name, c.ColumnType),
			})
		}

		for _, name := range td.ColumnsDropped {
			warnings = append(warnings, fmt.Sprintf("column %q on table %q was removed from the declared schema but was not dropped; drop it manually if intended", name, td.TableName))
		}

		mods := append([]ColumnModification{}, td.ColumnsModified...)
		sort.Slice(mods, func(i, j int) bool { return mods[i].ColumnName < mods[j].ColumnName })
		for _, m := range mods {
			if !typemap.IsSafeWidening(m.OldType, m.NewType) {
				return nil, nil, &UnsafeError{TableName: td.TableName, ColumnName: m.ColumnName, OldType: m.OldType, NewType: m.NewType}
			}
			alters = append(alters, Statement{
				TableName: td.TableName,
				SQL:       fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s;", td.TableName, m.ColumnName, m.NewType),
			})
		}

		idxAdded := append([]IndexState{}, td.IndexesAdded...)
		sort.Slice(idxAdded, func(i, j int) bool { return idxAdded[i].Name < idxAdded[j].Name })
		for _, idx := range idxAdded {
			indexChanges = append(indexChanges, Statement{TableName: td.TableName, SQL: idx.Definition + ";"})
		}

		for _, name := range td.IndexesDropped {
			warnings = append(warnings, fmt.Sprintf("index %q on table %q was removed from the declared schema but was not dropped; drop it manually if intended", name, td.TableName))
		}
	}

	sort.Slice(creates, func(i, j int) bool { return creates[i].TableName < creates[j].TableName })

	plan := make([]Statement, 0, len(creates)+len(alters)+len(indexChanges))
	plan = append(plan, creates...)
	plan = append(plan, alters...)
	plan = append(plan, indexChanges...)
	return plan, warnings, nil
}

func createTableSQL(t TableState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", t.Name)
	for i, c := range t.Columns {
		fmt.Fprintf(&b, "  %s %s", c.Name, c.ColumnType)
		if i < len(t.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")
	for _, idx := range t.Indexes {
		b.WriteString("\n")
		b.WriteString(idx.Definition)
		b.WriteString(";")
	}
	return b.String()
}

// Apply runs the plan in a single transaction and then persists newState, so
// the schema-state document is only rewritten once every statement in the
// plan has committed (spec.md §4.4 idempotence/atomicity). Archiving the
// executed SQL to a numbered migrations/NNNN_*.sql file (spec.md §6) is the
// caller's responsibility — see ArchiveSQL — since Apply itself only needs
// to know whether the transaction committed.
func Apply(ctx context.Context, pool *pgxpool.Pool, basePath string, plan []Statement, newState *State) error {
	if len(plan) == 0 {
		return Save(basePath, newState)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return errf("begin migration transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range plan {
		if _, err := tx.Exec(ctx, stmt.SQL); err != nil {
			return errf("execute %q: %v", stmt.SQL, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errf("commit migration transaction: %v", err)
	}

	return Save(basePath, newState)
}

// ArchiveSQL writes the plan's statements to a numbered
// migrations/NNNN_<desc>.sql file (spec.md §6 filesystem layout), the
// optional archive spec.md §4.4 mentions alongside the mandatory
// schema.json rewrite. NNNN is one greater than the highest existing
// archive number in basePath/migrations, so archives accumulate in commit
// order without colliding; desc is slugified the same way event/endpoint
// table and file names are.
func ArchiveSQL(basePath, desc string, plan []Statement) error {
	if len(plan) == 0 {
		return nil
	}

	dir := filepath.Join(basePath, "migrations")
	if err := ensureDir(dir); err != nil {
		return errf("create migrations dir: %v", err)
	}

	next, err := nextArchiveNumber(dir)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%04d_%s.sql", next, slugify(desc))
	path := filepath.Join(dir, name)

	var b strings.Builder
	for _, stmt := range plan {
		b.WriteString(stmt.SQL)
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errf("write migration archive %s: %v", path, err)
	}
	return nil
}

func nextArchiveNumber(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, errf("list migrations dir %s: %v", dir, err)
	}

	highest := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := archiveNumberRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

var archiveNumberRe = regexp.MustCompile(`^(\d{4})_.*\.sql$`)

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func slugify(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.TrimSuffix(b.String(), "_")
	if out == "" {
		out = "migration"
	}
	return out
}

// EnsureCheckpointTable creates the indexer_checkpoints table used by the
// indexer to persist progress in the same transaction as row writes
// (spec.md §3 data model; a deliberate deviation from the teacher's flat
// checkpoint file, documented in DESIGN.md).
func EnsureCheckpointTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS indexer_checkpoints (
			chain           TEXT NOT NULL,
			contract_address TEXT NOT NULL,
			event_name      TEXT NOT NULL,
			last_block      BIGINT NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (chain, contract_address, event_name)
		);
	`)
	if err != nil {
		return errf("create indexer_checkpoints table: %v", err)
	}
	return nil
}

// LoadCheckpoint reads the last processed block for one (chain, address,
// event) pair, or 0 if none exists yet.
func LoadCheckpoint(ctx context.Context, q pgxQuerier, chain, address, eventName string) (uint64, error) {
	var lastBlock uint64
	err := q.QueryRow(ctx, `
		SELECT last_block FROM indexer_checkpoints
		WHERE chain = $1 AND contract_address = $2 AND event_name = $3
	`, chain, address, eventName).Scan(&lastBlock)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errf("load checkpoint %s/%s/%s: %v", chain, address, eventName, err)
	}
	return lastBlock, nil
}

// SaveCheckpoint upserts the last processed block for a pair. Callers pass a
// pgx.Tx so the checkpoint commits atomically with the rows it accounts for.
func SaveCheckpoint(ctx context.Context, q pgxQuerier, chain, address, eventName string, lastBlock uint64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO indexer_checkpoints (chain, contract_address, event_name, last_block, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (chain, contract_address, event_name)
		DO UPDATE SET last_block = EXCLUDED.last_block, updated_at = now()
	`, chain, address, eventName, lastBlock)
	if err != nil {
		return errf("save checkpoint %s/%s/%s: %v", chain, address, eventName, err)
	}
	return nil
}

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, so
// Load/SaveCheckpoint work both standalone and inside the indexer's
// per-chunk transaction.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

package indexer

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"smorty/internal/decode"
	"smorty/internal/ir"
	"smorty/internal/schema"
)

// commitRange writes a chunk's decoded rows and advances the pair's
// checkpoint to lastBlock in a single transaction (spec.md §3, §4.5):
// either every row and the checkpoint commit together, or none of them do.
func (idx *Indexer) commitRange(ctx context.Context, eventIR *ir.EventIR, rows []decode.Row, lastBlock uint64) error {
	columns := insertColumns(eventIR)
	insertSQL := insertStatement(eventIR.TableSchema.TableName, columns)

	tx, err := idx.pool.Begin(ctx)
	if err != nil {
		return errf("begin chunk transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	if len(rows) > 0 {
		batch := &pgx.Batch{}
		for _, row := range rows {
			args := make([]any, len(columns))
			for i, col := range columns {
				args[i] = row[col]
			}
			batch.Queue(insertSQL, args...)
		}

		br := tx.SendBatch(ctx, batch)
		for range rows {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return errf("insert row into %s: %v", eventIR.TableSchema.TableName, err)
			}
		}
		if err := br.Close(); err != nil {
			return errf("close batch for %s: %v", eventIR.TableSchema.TableName, err)
		}
	}

	if err := schema.SaveCheckpoint(ctx, tx, eventIR.Chain, eventIR.ContractAddress, eventIR.EventName, lastBlock); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errf("commit chunk transaction: %v", err)
	}

	return nil
}

// insertColumns lists every column an event IR's table carries except the
// serial primary key, in the table schema's declared order, matching the
// keys decode.Decode populates in a Row.
func insertColumns(eventIR *ir.EventIR) []string {
	cols := make([]string, 0, len(eventIR.TableSchema.Columns))
	for _, c := range eventIR.TableSchema.Columns {
		if c.Name == "id" {
			continue
		}
		cols = append(cols, c.Name)
	}
	return cols
}

func insertStatement(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (transaction_hash, log_index) DO NOTHING",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	)
}

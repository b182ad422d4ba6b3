package indexer

import (
	"testing"

	"smorty/internal/ir"
)

func sampleEventIR() *ir.EventIR {
	return &ir.EventIR{
		TableSchema: ir.TableSchema{
			TableName: "weth_transfers",
			Columns: []ir.ColumnDef{
				{Name: "id"},
				{Name: "block_number"},
				{Name: "block_timestamp"},
				{Name: "transaction_hash"},
				{Name: "log_index"},
				{Name: "src"},
				{Name: "dst"},
				{Name: "wad"},
			},
		},
	}
}

func TestInsertColumnsSkipsPrimaryKey(t *testing.T) {
	cols := insertColumns(sampleEventIR())
	if len(cols) != 7 {
		t.Fatalf("expected 7 columns (id excluded), got %d: %v", len(cols), cols)
	}
	if cols[0] != "block_number" {
		t.Fatalf("expected first column block_number, got %q", cols[0])
	}
	for _, c := range cols {
		if c == "id" {
			t.Fatalf("id column must be excluded, got %v", cols)
		}
	}
}

func TestInsertStatementPlaceholders(t *testing.T) {
	sql := insertStatement("weth_transfers", []string{"block_number", "src", "dst"})
	want := "INSERT INTO weth_transfers (block_number, src, dst) VALUES ($1, $2, $3) ON CONFLICT (transaction_hash, log_index) DO NOTHING"
	if sql != want {
		t.Fatalf("got %q, want %q", sql, want)
	}
}

package main

import (
	"testing"

	"smorty/internal/ir"
)

func TestBuildTargetStateCarriesTableShape(t *testing.T) {
	refs := []ir.EventIRRef{
		{
			ContractID: "weth",
			EventName:  "Transfer",
			IR: &ir.EventIR{
				EventName: "Transfer",
				TableSchema: ir.TableSchema{
					TableName: "weth_transfers",
					Columns: []ir.ColumnDef{
						{Name: "id", SQLType: "BIGSERIAL PRIMARY KEY"},
						{Name: "src", SQLType: "VARCHAR(42)"},
					},
					Indexes: []ir.IndexDef{
						{Name: "idx_weth_transfers_tx_log", Columns: []string{"transaction_hash", "log_index"}, Unique: true},
					},
				},
			},
		},
	}

	state := buildTargetState(refs)

	table, ok := state.GetTable("weth_transfers")
	if !ok {
		t.Fatalf("expected table weth_transfers in target state")
	}
	if len(table.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(table.Columns))
	}
	if table.Source.ContractName != "weth" || table.Source.SpecName != "Transfer" {
		t.Fatalf("unexpected source: %+v", table.Source)
	}
	if len(table.Indexes) != 1 {
		t.Fatalf("expected 1 index, got %d", len(table.Indexes))
	}
}

func TestIndexDefinitionSQLMarksUnique(t *testing.T) {
	sql := indexDefinitionSQL("weth_transfers", ir.IndexDef{
		Name: "idx_weth_transfers_tx_log", Columns: []string{"transaction_hash", "log_index"}, Unique: true,
	})
	if sql != "CREATE UNIQUE INDEX idx_weth_transfers_tx_log ON weth_transfers (transaction_hash, log_index)" {
		t.Fatalf("unexpected SQL: %s", sql)
	}
}

func TestIndexDefinitionSQLNonUnique(t *testing.T) {
	sql := indexDefinitionSQL("weth_transfers", ir.IndexDef{
		Name: "idx_weth_transfers_block_number", Columns: []string{"block_number"},
	})
	if sql != "CREATE INDEX idx_weth_transfers_block_number ON weth_transfers (block_number)" {
		t.Fatalf("unexpected SQL: %s", sql)
	}
}

package main

import (
	"testing"

	"smorty/internal/schema"
)

func TestMigrationDescNamesAffectedTables(t *testing.T) {
	diff := schema.Diff{
		TablesAdded:    []schema.TableState{{Name: "weth_transfers"}},
		TablesModified: []schema.TableDiff{{TableName: "usdc_transfers"}},
	}
	if got := migrationDesc(diff); got != "weth_transfers_usdc_transfers" {
		t.Fatalf("migrationDesc = %q", got)
	}
}

func TestMigrationDescFallsBackWhenNoTablesNamed(t *testing.T) {
	if got := migrationDesc(schema.Diff{}); got != "migration" {
		t.Fatalf("migrationDesc = %q, want %q", got, "migration")
	}
}

package schema

import "testing"

func tableWith(name string, cols []ColumnState, idxs []IndexState) TableState {
	return TableState{Name: name, Columns: cols, Indexes: idxs}
}

func TestComputeNoChanges(t *testing.T) {
	old := New("")
	table := tableWith("users", []ColumnState{{Name: "id", ColumnType: "BIGSERIAL PRIMARY KEY"}}, nil)
	old.AddTable(table)

	new := New("")
	new.AddTable(table)

	diff := Compute(old, new)
	if diff.HasChanges() {
		t.Fatalf("expected no changes, got %+v", diff)
	}
}

func TestComputeTableAdded(t *testing.T) {
	old := New("")
	new := New("")
	new.AddTable(tableWith("users", []ColumnState{{Name: "id", ColumnType: "BIGSERIAL PRIMARY KEY"}}, nil))

	diff := Compute(old, new)
	if len(diff.TablesAdded) != 1 || diff.TablesAdded[0].Name != "users" {
		t.Fatalf("tables added = %+v", diff.TablesAdded)
	}
	if !diff.IsInitial() {
		t.Fatalf("expected initial migration")
	}
}

func TestComputeTableDropped(t *testing.T) {
	old := New("")
	old.AddTable(tableWith("users", nil, nil))
	new := New("")

	diff := Compute(old, new)
	if len(diff.TablesDropped) != 1 || diff.TablesDropped[0] != "users" {
		t.Fatalf("tables dropped = %+v", diff.TablesDropped)
	}
}

func TestComputeColumnAddedAndModified(t *testing.T) {
	old := New("")
	old.AddTable(tableWith("events", []ColumnState{
		{Name: "id", ColumnType: "BIGSERIAL PRIMARY KEY"},
		{Name: "amount", ColumnType: "INTEGER"},
	}, nil))

	new := New("")
	new.AddTable(tableWith("events", []ColumnState{
		{Name: "id", ColumnType: "BIGSERIAL PRIMARY KEY"},
		{Name: "amount", ColumnType: "BIGINT"},
		{Name: "sender", ColumnType: "VARCHAR(42)"},
	}, nil))

	diff := Compute(old, new)
	if len(diff.TablesModified) != 1 {
		t.Fatalf("expected one modified table, got %d", len(diff.TablesModified))
	}
	td := diff.TablesModified[0]
	if len(td.ColumnsAdded) != 1 || td.ColumnsAdded[0].Name != "sender" {
		t.Fatalf("columns added = %+v", td.ColumnsAdded)
	}
	if len(td.ColumnsModified) != 1 || td.ColumnsModified[0].ColumnName != "amount" {
		t.Fatalf("columns modified = %+v", td.ColumnsModified)
	}
}

func TestPlanRejectsUnsafeNarrowing(t *testing.T) {
	diff := Diff{
		TablesModified: []TableDiff{{
			TableName: "events",
			ColumnsModified: []ColumnModification{
				{ColumnName: "amount", OldType: "BIGINT", NewType: "INTEGER"},
			},
		}},
	}

	if _, _, err := Plan(diff); err == nil {
		t.Fatalf("expected unsafe migration error for BIGINT -> INTEGER")
	}
}

func TestPlanOrdersCreatesBeforeAltersBeforeIndexes(t *testing.T) {
	diff := Diff{
		TablesAdded: []TableState{
			tableWith("weth_transfers", []ColumnState{{Name: "id", ColumnType: "BIGSERIAL PRIMARY KEY"}}, nil),
		},
		TablesModified: []TableDiff{{
			TableName:    "usdc_transfers",
			ColumnsAdded: []ColumnState{{Name: "memo", ColumnType: "TEXT"}},
			IndexesAdded: []IndexState{{Name: "idx_memo", Definition: "CREATE INDEX idx_memo ON usdc_transfers(memo)"}},
		}},
	}

	plan, _, err := Plan(diff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan) != 3 {
		t.Fatalf("expected 3 statements, got %d: %+v", len(plan), plan)
	}
	if plan[0].TableName != "weth_transfers" {
		t.Fatalf("expected CREATE first, got %+v", plan[0])
	}
	if plan[1].TableName != "usdc_transfers" || plan[1].SQL[:11] != "ALTER TABLE" {
		t.Fatalf("expected ALTER second, got %+v", plan[1])
	}
	if plan[2].SQL[:12] != "CREATE INDEX" {
		t.Fatalf("expected index statement last, got %+v", plan[2])
	}
}

func TestPlanEmptyDiffProducesNoSQL(t *testing.T) {
	plan, warnings, err := Plan(Diff{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan) != 0 || len(warnings) != 0 {
		t.Fatalf("expected empty plan, got plan=%+v warnings=%v", plan, warnings)
	}
}

func TestPlanWarnsOnDropsWithoutEmittingSQL(t *testing.T) {
	diff := Diff{TablesDropped: []string{"old_table"}}
	plan, warnings, err := Plan(diff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan) != 0 {
		t.Fatalf("expected no SQL for a dropped table, got %+v", plan)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", warnings)
	}
}

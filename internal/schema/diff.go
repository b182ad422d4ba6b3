package schema

import "sort"

// ColumnModification records a column whose type changed between states.
type ColumnModification struct {
	ColumnName string
	OldType    string
	NewType    string
}

// TableDiff records the changes to one table that exists in both states.
type TableDiff struct {
	TableName       string
	ColumnsAdded    []ColumnState
	ColumnsDropped  []string
	ColumnsModified []ColumnModification
	IndexesAdded    []IndexState
	IndexesDropped  []string
}

// HasChanges reports whether this table has any pending change.
func (d TableDiff) HasChanges() bool {
	return len(d.ColumnsAdded) > 0 || len(d.ColumnsDropped) > 0 ||
		len(d.ColumnsModified) > 0 || len(d.IndexesAdded) > 0 || len(d.IndexesDropped) > 0
}

// Diff is the full set of changes between an old and a new schema state.
type Diff struct {
	TablesAdded    []TableState
	TablesDropped  []string
	TablesModified []TableDiff
}

// HasChanges reports whether the diff is non-empty.
func (d Diff) HasChanges() bool {
	return len(d.TablesAdded) > 0 || len(d.TablesDropped) > 0 || len(d.TablesModified) > 0
}

// IsInitial reports whether this diff only adds tables — the first
// migration run against an empty schema state.
func (d Diff) IsInitial() bool {
	return len(d.TablesAdded) > 0 && len(d.TablesDropped) == 0 && len(d.TablesModified) == 0
}

// Compute diffs old against new. Table and column drops are reported but
// never acted on automatically (spec.md §4.4): callers surface
// TablesDropped/ColumnsDropped as warnings, not DROP statements.
func Compute(old, new *State) Diff {
	oldNames := tableNameSet(old)
	newNames := tableNameSet(new)

	var tablesAdded []TableState
	for name := range newNames {
		if _, inOld := oldNames[name]; !inOld {
			if t, ok := new.GetTable(name); ok {
				tablesAdded = append(tablesAdded, t)
			}
		}
	}
	sort.Slice(tablesAdded, func(i, j int) bool { return tablesAdded[i].Name < tablesAdded[j].Name })

	var tablesDropped []string
	for name := range oldNames {
		if _, inNew := newNames[name]; !inNew {
			tablesDropped = append(tablesDropped, name)
		}
	}
	sort.Strings(tablesDropped)

	var tablesModified []TableDiff
	for name := range oldNames {
		if _, inNew := newNames[name]; !inNew {
			continue
		}
		oldTable, _ := old.GetTable(name)
		newTable, _ := new.GetTable(name)
		td := computeTableDiff(oldTable, newTable)
		if td.HasChanges() {
			tablesModified = append(tablesModified, td)
		}
	}
	sort.Slice(tablesModified, func(i, j int) bool { return tablesModified[i].TableName < tablesModified[j].TableName })

	return Diff{TablesAdded: tablesAdded, TablesDropped: tablesDropped, TablesModified: tablesModified}
}

func computeTableDiff(old, new TableState) TableDiff {
	oldCols := make(map[string]ColumnState, len(old.Columns))
	for _, c := range old.Columns {
		oldCols[c.Name] = c
	}
	newCols := make(map[string]ColumnState, len(new.Columns))
	for _, c := range new.Columns {
		newCols[c.Name] = c
	}

	var columnsAdded []ColumnState
	for name, c := range newCols {
		if _, ok := oldCols[name]; !ok {
			columnsAdded = append(columnsAdded, c)
		}
	}
	sort.Slice(columnsAdded, func(i, j int) bool { return columnsAdded[i].Name < columnsAdded[j].Name })

	var columnsDropped []string
	for name := range oldCols {
		if _, ok := newCols[name]; !ok {
			columnsDropped = append(columnsDropped, name)
		}
	}
	sort.Strings(columnsDropped)

	var columnsModified []ColumnModification
	for name, oldCol := range oldCols {
		newCol, ok := newCols[name]
		if !ok {
			continue
		}
		if oldCol.ColumnType != newCol.ColumnType {
			columnsModified = append(columnsModified, ColumnModification{
				ColumnName: name,
				OldType:    oldCol.ColumnType,
				NewType:    newCol.ColumnType,
			})
		}
	}
	sort.Slice(columnsModified, func(i, j int) bool { return columnsModified[i].ColumnName < columnsModified[j].ColumnName })

	oldIdx := make(map[string]IndexState, len(old.Indexes))
	for _, idx := range old.Indexes {
		oldIdx[idx.Name] = idx
	}
	newIdx := make(map[string]IndexState, len(new.Indexes))
	for _, idx := range new.Indexes {
		newIdx[idx.Name] = idx
	}

	var indexesAdded []IndexState
	for name, idx := range newIdx {
		if _, ok := oldIdx[name]; !ok {
			indexesAdded = append(indexesAdded, idx)
		}
	}
	sort.Slice(indexesAdded, func(i, j int) bool { return indexesAdded[i].Name < indexesAdded[j].Name })

	var indexesDropped []string
	for name := range oldIdx {
		if _, ok := newIdx[name]; !ok {
			indexesDropped = append(indexesDropped, name)
		}
	}
	sort.Strings(indexesDropped)

	return TableDiff{
		TableName:       new.Name,
		ColumnsAdded:    columnsAdded,
		ColumnsDropped:  columnsDropped,
		ColumnsModified: columnsModified,
		IndexesAdded:    indexesAdded,
		IndexesDropped:  indexesDropped,
	}
}

func tableNameSet(s *State) map[string]struct{} {
	out := make(map[string]struct{}, len(s.Tables))
	for name := range s.Tables {
		out[name] = struct{}{}
	}
	return out
}

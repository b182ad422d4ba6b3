// Package schema implements schema-state persistence, diffing, and
// migration planning/application (spec.md §4.4). The target schema is the
// union of every event IR's table schema; the diff baseline is the
// persisted schema-state document, never the live database.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Error reports a schema package failure (spec.md §7 MigrationError /
// UnsafeMigrationError, see UnsafeError in migrate.go for the latter).
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func errf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// ColumnState is the persisted shape of one column.
type ColumnState struct {
	Name       string `json:"name"`
	ColumnType string `json:"column_type"`
}

// IndexState is the persisted shape of one index.
type IndexState struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// TableSource records which contract/spec generated a table, so a schema.json
// read months later still explains where a table came from.
type TableSource struct {
	ContractName string `json:"contract_name"`
	SpecName     string `json:"spec_name"`
}

// TableState is the persisted shape of one table.
type TableState struct {
	Name    string        `json:"name"`
	Source  TableSource   `json:"source"`
	Columns []ColumnState `json:"columns"`
	Indexes []IndexState  `json:"indexes"`
}

// GetColumn finds a column by name.
func (t *TableState) GetColumn(name string) (ColumnState, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnState{}, false
}

// State is the full persisted schema-state document (migrations/schema.json),
// the diff baseline used instead of ever introspecting the live database.
type State struct {
	Tables    map[string]TableState `json:"tables"`
	Timestamp string                `json:"timestamp"`
}

// New returns an empty schema state. timestamp must be supplied by the
// caller (an RFC3339 string) since this package never calls time.Now
// directly, keeping state construction deterministic and testable.
func New(timestamp string) *State {
	return &State{Tables: make(map[string]TableState), Timestamp: timestamp}
}

// Load reads schema.json from basePath/migrations/schema.json. A missing
// file is not an error: it means no migration has ever run, and Compute
// against an empty State produces the initial "create everything" plan.
func Load(basePath string) (*State, error) {
	path := statePath(basePath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Tables: make(map[string]TableState)}, nil
		}
		return nil, errf("read schema state %s: %v", path, err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errf("parse schema state %s: %v", path, err)
	}
	if s.Tables == nil {
		s.Tables = make(map[string]TableState)
	}
	return &s, nil
}

// Save atomically writes the schema state to basePath/migrations/schema.json.
func Save(basePath string, s *State) error {
	path := statePath(basePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errf("create migrations dir: %v", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errf("marshal schema state: %v", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errf("write %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errf("rename %s -> %s: %v", tmp, path, err)
	}
	return nil
}

func statePath(basePath string) string {
	return filepath.Join(basePath, "migrations", "schema.json")
}

// GetTable finds a table by name.
func (s *State) GetTable(name string) (TableState, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// AddTable inserts or replaces a table in the state.
func (s *State) AddTable(t TableState) {
	if s.Tables == nil {
		s.Tables = make(map[string]TableState)
	}
	s.Tables[t.Name] = t
}

// sortedTableNames returns the state's table names in sorted order.
func (s *State) sortedTableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

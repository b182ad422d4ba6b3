// Package typemap implements the authoritative Solidity -> SQL column type
// mapping from spec.md §4.2. The AI's suggested column_type is always
// corrected against this table before an event IR is persisted.
package typemap

import (
	"regexp"
	"strconv"
)

var intWidth = regexp.MustCompile(`^(u?int)(\d+)$`)

// SQLType returns the authoritative SQL column type for a Solidity type.
func SQLType(solidityType string) string {
	switch solidityType {
	case "address":
		return "VARCHAR(42)"
	case "bool":
		return "BOOLEAN"
	case "string":
		return "TEXT"
	}

	if solidityType == "bytes" {
		return "TEXT"
	}
	if len(solidityType) > 5 && solidityType[:5] == "bytes" {
		return "TEXT"
	}

	if m := intWidth.FindStringSubmatch(solidityType); m != nil {
		signed := m[1] == "int"
		width, err := strconv.Atoi(m[2])
		if err == nil {
			return sqlTypeForIntWidth(signed, width)
		}
	}

	// Unknown/unsupported Solidity type: fall back to TEXT rather than
	// guessing a numeric width that could silently truncate.
	return "TEXT"
}

func sqlTypeForIntWidth(signed bool, width int) string {
	switch {
	case width <= 64 && signed:
		return "BIGINT"
	case width <= 64 && !signed:
		// uint64 can exceed int64's range (up to 2^64-1), so even
		// unsigned 64-bit values get the exact NUMERIC form rather than
		// risking overflow in a signed BIGINT column.
		if width == 64 {
			return "NUMERIC(20,0)"
		}
		return "BIGINT"
	default:
		return "NUMERIC(78,0)"
	}
}

// StandardColumns returns the five columns every event table must carry
// (spec.md §3).
func StandardColumns() []ColumnSpec {
	return []ColumnSpec{
		{Name: "id", SQLType: "BIGSERIAL PRIMARY KEY", Nullable: false},
		{Name: "block_number", SQLType: "BIGINT", Nullable: false},
		{Name: "block_timestamp", SQLType: "BIGINT", Nullable: false},
		{Name: "transaction_hash", SQLType: "VARCHAR(66)", Nullable: false},
		{Name: "log_index", SQLType: "INTEGER", Nullable: false},
	}
}

// ColumnSpec is the minimal shape typemap needs to describe a column; the
// ir package's ColumnDef embeds the same fields plus a default.
type ColumnSpec struct {
	Name     string
	SQLType  string
	Nullable bool
}

// IsSafeWidening reports whether changing a column from oldType to newType
// is a known-safe widening per spec.md §4.4 (schema diff planner).
func IsSafeWidening(oldType, newType string) bool {
	safe := map[string][]string{
		"BIGINT":      {"NUMERIC(78,0)", "NUMERIC(20,0)"},
		"VARCHAR(42)": {"TEXT"},
		"VARCHAR(66)": {"TEXT"},
		"NUMERIC(20,0)": {"NUMERIC(78,0)"},
		"INTEGER":     {"BIGINT", "NUMERIC(78,0)"},
	}
	for _, candidate := range safe[oldType] {
		if candidate == newType {
			return true
		}
	}
	return false
}

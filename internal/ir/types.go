// Package ir defines the Event IR and Endpoint IR artifact types (spec.md
// §3) and a content-addressed on-disk store for them (spec.md §4, C3).
package ir

// EventField describes one indexed or non-indexed event parameter and how
// it is decoded into a table column.
type EventField struct {
	Name         string `json:"name"`
	SolidityType string `json:"solidity_type"`
	ColumnName   string `json:"column_name"`
	ColumnType   string `json:"column_type"`
}

// ColumnDef describes one table column.
type ColumnDef struct {
	Name     string `json:"name"`
	SQLType  string `json:"sql_type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
}

// IndexDef describes one table index.
type IndexDef struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// TableSchema is the portion of an event IR that drives schema migration.
type TableSchema struct {
	TableName string      `json:"table_name"`
	Columns   []ColumnDef `json:"columns"`
	Indexes   []IndexDef  `json:"indexes"`
}

// Provenance records what produced an IR artifact, so regenerating from
// different inputs is detectable (spec.md §9 "IR provenance").
type Provenance struct {
	Model      string `json:"model"`
	PromptHash string `json:"prompt_hash"`
}

// EventIR is the immutable artifact identified by (contract_id, event_name).
type EventIR struct {
	EventName       string       `json:"event_name"`
	EventSignature  string       `json:"event_signature"`
	Topic0          string       `json:"topic0"`
	Chain           string       `json:"chain"`
	ContractAddress string       `json:"contract_address"`
	StartBlock      uint64       `json:"start_block"`
	IndexedFields   []EventField `json:"indexed_fields"`
	DataFields      []EventField `json:"data_fields"`
	TableSchema     TableSchema  `json:"table_schema"`
	EndpointHint    string       `json:"endpoint_hint"`
	Description     string       `json:"description"`
	Provenance      Provenance   `json:"provenance"`
}

// PathParam describes one path parameter of an endpoint.
type PathParam struct {
	Name         string `json:"name"`
	SemanticType string `json:"semantic_type"`
}

// QueryParam describes one query parameter of an endpoint.
type QueryParam struct {
	Name         string `json:"name"`
	SemanticType string `json:"semantic_type"`
	Default      *string `json:"default,omitempty"`
	HasDefault   bool    `json:"has_default"`
}

// ResponseField describes one column of the endpoint's response shape.
type ResponseField struct {
	Column   string `json:"column"`
	JSONKey  string `json:"json_key"`
	JSONType string `json:"json_type"`
}

// EndpointIR is the immutable artifact identified by endpoint_path.
type EndpointIR struct {
	EndpointPath      string          `json:"endpoint_path"`
	Method            string          `json:"method"`
	Description       string          `json:"description"`
	TablesReferenced  []string        `json:"tables_referenced"`
	PathParams        []PathParam     `json:"path_params"`
	QueryParams       []QueryParam    `json:"query_params"`
	SQLQuery          string          `json:"sql_query"`
	ResponseShape     []ResponseField `json:"response_shape"`
	Provenance        Provenance      `json:"provenance"`
}

// SemanticType enumerates the types a path/query parameter may declare.
const (
	TypeString  = "string"
	TypeInt64   = "int64"
	TypeUint64  = "uint64"
	TypeBool    = "bool"
	TypeDecimal = "decimal"
)

// IsOption reports whether a semantic type is option<T>, and returns the
// inner type T.
func IsOption(semanticType string) (inner string, ok bool) {
	const prefix = "option<"
	if len(semanticType) > len(prefix)+1 && semanticType[:len(prefix)] == prefix && semanticType[len(semanticType)-1] == '>' {
		return semanticType[len(prefix) : len(semanticType)-1], true
	}
	return "", false
}

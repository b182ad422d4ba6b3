// Package specgen generates event IRs (spec.md §4.1-4.2, C5): given a
// resolved ABI event and a natural-language task, it asks the AI client for
// a field/table-schema proposal, then corrects and completes that proposal
// deterministically before persisting it.
package specgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"go.uber.org/zap"

	"smorty/internal/abiload"
	"smorty/internal/aiclient"
	"smorty/internal/ir"
	"smorty/internal/typemap"
)

// Error reports a spec-generation failure (spec.md §7 IrValidationError).
// Cause, when set, lets errors.As walk through to an underlying typed error
// (e.g. *aiclient.Error) so callers like cmd/smorty's exit-code classifier
// can distinguish an AI failure from a validation failure (SPEC_FULL.md's
// "%w wrapping" rule).
type Error struct {
	Msg   string
	Cause error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Cause }

func errf(format string, args ...any) error {
	e := &Error{Msg: fmt.Sprintf(format, args...)}
	if n := len(args); n > 0 {
		if cause, ok := args[n-1].(error); ok {
			e.Cause = cause
		}
	}
	return e
}

// Request bundles the inputs the generator needs for one event spec.
type Request struct {
	ContractName string
	ContractID   string
	SpecName     string
	Chain        string
	Address      string
	StartBlock   uint64
	Task         string
	Event        *abiload.ResolvedEvent
}

// aiResponse is the shape the AI client's tool call is constrained to; it
// mirrors the AI-authored portion of ir.EventIR, omitting everything this
// package computes itself (topic0, chain, address, start block).
type aiResponse struct {
	Description   string         `json:"description"`
	IndexedFields []ir.EventField `json:"indexed_fields"`
	DataFields    []ir.EventField `json:"data_fields"`
}

var responseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"description": map[string]any{"type": "string"},
		"indexed_fields": map[string]any{
			"type":  "array",
			"items": fieldSchema,
		},
		"data_fields": map[string]any{
			"type":  "array",
			"items": fieldSchema,
		},
	},
	"required": []any{"description", "indexed_fields", "data_fields"},
}

var fieldSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name":          map[string]any{"type": "string"},
		"solidity_type": map[string]any{"type": "string"},
		"column_name":   map[string]any{"type": "string"},
		"column_type":   map[string]any{"type": "string"},
	},
	"required": []any{"name", "solidity_type", "column_name"},
}

const systemPrompt = `You are an expert Ethereum indexer code generator.

Given a contract event's ABI fragment and a natural-language task
description, identify which of the event's parameters should be exposed as
table columns, choose snake_case column names, and write a short
description of what the event represents. Every indexed ABI parameter must
appear in indexed_fields and every non-indexed one in data_fields, using
the parameter's own name as "name". Do not invent parameters that are not
in the ABI fragment, and do not omit any. The column_type you suggest will
be checked and corrected against an authoritative Solidity-to-SQL mapping,
so prefer your best guess over leaving it blank.`

// Generate calls the AI client, corrects its proposal against the
// authoritative type map and the resolved ABI, and returns a complete
// EventIR ready to persist. It does not persist the result itself — callers
// decide the contract id / store.
func Generate(ctx context.Context, client *aiclient.Client, model string, req Request, logger *zap.Logger) (*ir.EventIR, error) {
	userPrompt := buildUserPrompt(req)

	raw, err := client.Complete(ctx, systemPrompt, userPrompt, responseSchema)
	if err != nil {
		return nil, errf("ai completion for %s/%s: %v", req.ContractName, req.SpecName, err)
	}

	var resp aiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errf("parse ai response for %s/%s: %v", req.ContractName, req.SpecName, err)
	}

	indexed, err := reconcileFields(resp.IndexedFields, req.Event.Indexed, true)
	if err != nil {
		return nil, errf("%s/%s: %v", req.ContractName, req.SpecName, err)
	}
	data, err := reconcileFields(resp.DataFields, req.Event.NonIndexed, false)
	if err != nil {
		return nil, errf("%s/%s: %v", req.ContractName, req.SpecName, err)
	}

	tableName := tableName(req.ContractName, req.SpecName)
	columns := typemap.StandardColumns()
	tableCols := make([]ir.ColumnDef, 0, len(columns)+len(indexed)+len(data))
	for _, c := range columns {
		tableCols = append(tableCols, ir.ColumnDef{Name: c.Name, SQLType: c.SQLType, Nullable: c.Nullable})
	}
	for _, f := range append(append([]ir.EventField{}, indexed...), data...) {
		tableCols = append(tableCols, ir.ColumnDef{Name: f.ColumnName, SQLType: f.ColumnType, Nullable: false})
	}

	artifact := &ir.EventIR{
		EventName:       req.Event.Event.Name,
		EventSignature:  req.Event.Signature,
		Topic0:          req.Event.Topic0,
		Chain:           req.Chain,
		ContractAddress: req.Address,
		StartBlock:      req.StartBlock,
		IndexedFields:   indexed,
		DataFields:      data,
		TableSchema: ir.TableSchema{
			TableName: tableName,
			Columns:   tableCols,
			Indexes: []ir.IndexDef{
				{Name: "idx_" + tableName + "_block_number", Columns: []string{"block_number"}},
				{Name: "idx_" + tableName + "_tx_log", Columns: []string{"transaction_hash", "log_index"}, Unique: true},
			},
		},
		EndpointHint: req.Task,
		Description:  resp.Description,
		Provenance: ir.Provenance{
			Model:      model,
			PromptHash: ir.HashInputs(req.Address, req.Event.Event.Name, req.Task, model),
		},
	}

	logger.Info("generated event ir",
		zap.String("contract", req.ContractName), zap.String("spec", req.SpecName),
		zap.String("table", tableName), zap.String("topic0", req.Event.Topic0))

	return artifact, nil
}

// reconcileFields merges the AI's field proposal against the event's actual
// ABI arguments: every ABI argument must be covered exactly once, column
// names default to the argument name when the AI didn't supply one, and
// column_type is always recomputed from the authoritative type map rather
// than trusted verbatim (spec.md §4.2).
func reconcileFields(proposed []ir.EventField, abiArgs abi.Arguments, indexed bool) ([]ir.EventField, error) {
	byName := make(map[string]ir.EventField, len(proposed))
	for _, f := range proposed {
		byName[f.Name] = f
	}

	out := make([]ir.EventField, 0, len(abiArgs))
	for _, arg := range abiArgs {
		f, ok := byName[arg.Name]
		if !ok {
			f = ir.EventField{Name: arg.Name}
		}
		if f.ColumnName == "" {
			f.ColumnName = strings.ToLower(arg.Name)
		}
		f.SolidityType = arg.Type.String()
		f.ColumnType = typemap.SQLType(arg.Type.String())
		out = append(out, f)
	}

	kind := "data"
	if indexed {
		kind = "indexed"
	}
	if len(out) != len(abiArgs) {
		return nil, errf("expected %d %s fields, reconciled %d", len(abiArgs), kind, len(out))
	}
	return out, nil
}

func buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Contract: %s\nSpec name: %s\nChain: %s\nContract address: %s\nStart block: %d\n\n", req.ContractName, req.SpecName, req.Chain, req.Address, req.StartBlock)
	fmt.Fprintf(&b, "Event ABI fragment:\n%s\n\n", string(req.Event.Fragment))
	fmt.Fprintf(&b, "Task description:\n%s\n", req.Task)
	return b.String()
}

func tableName(contractName, specName string) string {
	return slugify(contractName) + "_" + slugify(specName)
}

var separatorReplacer = strings.NewReplacer(
	"-", "_",
	" ", "_",
)

// slugify normalizes a contract or spec name into the lowercase, underscore
// form used in table names ({contract_name}_{spec_name}). It only lowercases
// and normalizes existing separators — it never inserts new underscores at
// capital-letter boundaries, since acronym-heavy contract names like "WETH"
// must come out as "weth", not "w_e_t_h".
func slugify(s string) string {
	out := strings.ToLower(separatorReplacer.Replace(s))
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.Trim(out, "_")
}

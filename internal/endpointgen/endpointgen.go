// Package endpointgen generates endpoint IRs (spec.md §4.1/§4.3, C6): given
// an endpoint path, a natural-language task, and a catalog of event IR
// tables, it asks the AI client for a SQL query and parameter binding plan,
// then validates that plan deterministically (tables against the migrated
// schema state) before persisting it.
package endpointgen

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"smorty/internal/aiclient"
	"smorty/internal/ir"
	"smorty/internal/schema"
)

// Error reports an endpoint-generation failure (spec.md §7 IrValidationError).
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

const systemPrompt = `You are an expert API endpoint generator for an Ethereum indexer, with deep
knowledge of PostgreSQL.

Given an endpoint path, a description, a task, and the catalog of available
tables, you will:

1. Extract path parameters from the endpoint path (e.g. {pool} in /api/pool/{pool}).
2. Determine the query parameters needed (filtering, pagination, time ranges).
3. Write a single SELECT statement using numbered PostgreSQL placeholders
   ($1, $2, ...) bound in the order path parameters appear, followed by
   query parameters in declared order.
4. Design a response shape whose fields match the query's output columns
   exactly, in the same order.
5. List every table the query references.

Rules:
- Always include a "limit" query parameter with a sensible default, capped
  at 200.
- Use option<T> for any query parameter that may be entirely absent from
  the request; give it a JSON null default.
- Any comparison against an option<T> query parameter in the WHERE clause
  must cast the placeholder explicitly (e.g. $2::BIGINT), since an untyped
  NULL placeholder cannot be inferred by PostgreSQL.
- The query must start with SELECT or WITH, reference only tables from the
  catalog, and use single-quoted string literals, never backslash-escaped
  quotes.
- Never use SELECT *; name every output column explicitly.`

type pathParamProposal struct {
	Name         string `json:"name"`
	SemanticType string `json:"semantic_type"`
}

type queryParamProposal struct {
	Name         string  `json:"name"`
	SemanticType string  `json:"semantic_type"`
	Default      *string `json:"default"`
}

type responseFieldProposal struct {
	Column   string `json:"column"`
	JSONKey  string `json:"json_key"`
	JSONType string `json:"json_type"`
}

type aiResponse struct {
	Description      string                  `json:"description"`
	PathParams        []pathParamProposal     `json:"path_params"`
	QueryParams       []queryParamProposal    `json:"query_params"`
	SQLQuery          string                  `json:"sql_query"`
	ResponseShape     []responseFieldProposal `json:"response_shape"`
	TablesReferenced  []string                `json:"tables_referenced"`
}

var responseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"description": map[string]any{"type": "string"},
		"path_params": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":          map[string]any{"type": "string"},
					"semantic_type": map[string]any{"type": "string"},
				},
				"required": []any{"name", "semantic_type"},
			},
		},
		"query_params": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":          map[string]any{"type": "string"},
					"semantic_type": map[string]any{"type": "string"},
					"default":       map[string]any{"type": []any{"string", "null"}},
				},
				"required": []any{"name", "semantic_type"},
			},
		},
		"sql_query": map[string]any{"type": "string"},
		"response_shape": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"column":    map[string]any{"type": "string"},
					"json_key":  map[string]any{"type": "string"},
					"json_type": map[string]any{"type": "string"},
				},
				"required": []any{"column", "json_key", "json_type"},
			},
		},
		"tables_referenced": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []any{"description", "path_params", "query_params", "sql_query", "response_shape", "tables_referenced"},
}

// Request bundles the inputs needed to generate one endpoint IR.
type Request struct {
	EndpointPath string
	Description  string
	Task         string
	Catalog      []*ir.EventIR // event IRs offered to the AI as table context; references are checked against the persisted schema
}

// Generate calls the AI client and validates its proposal against
// persisted (the migrated schema.State, not the in-flight event IR set — spec.md
// §9 open question (b)): every referenced table must already be migrated,
// every placeholder must be covered by exactly one declared parameter in
// order, and nullable parameters used in comparisons must carry an explicit
// cast.
func Generate(ctx context.Context, client *aiclient.Client, model string, req Request, persisted *schema.State, logger *zap.Logger) (*ir.EndpointIR, error) {
	userPrompt := buildUserPrompt(req)

	raw, err := client.Complete(ctx, systemPrompt, userPrompt, responseSchema)
	if err != nil {
		return nil, errf("ai completion for endpoint %s: %v", req.EndpointPath, err)
	}

	var resp aiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errf("parse ai response for endpoint %s: %v", req.EndpointPath, err)
	}

	if err := validateTables(resp.TablesReferenced, persisted); err != nil {
		return nil, err
	}
	if err := validateSQL(resp.SQLQuery); err != nil {
		return nil, err
	}

	pathParams, queryParams, err := reconcileParams(resp.PathParams, resp.QueryParams, resp.SQLQuery)
	if err != nil {
		return nil, err
	}

	if err := validateNullableCasts(pathParams, queryParams, resp.SQLQuery); err != nil {
		return nil, err
	}

	responseShape := make([]ir.ResponseField, 0, len(resp.ResponseShape))
	for _, f := range resp.ResponseShape {
		responseShape = append(responseShape, ir.ResponseField{Column: f.Column, JSONKey: f.JSONKey, JSONType: f.JSONType})
	}

	artifact := &ir.EndpointIR{
		EndpointPath:     req.EndpointPath,
		Method:           "GET",
		Description:      resp.Description,
		TablesReferenced: resp.TablesReferenced,
		PathParams:       pathParams,
		QueryParams:      queryParams,
		SQLQuery:         resp.SQLQuery,
		ResponseShape:    responseShape,
		Provenance: ir.Provenance{
			Model:      model,
			PromptHash: ir.HashInputs(req.EndpointPath, req.Task, model),
		},
	}

	logger.Info("generated endpoint ir", zap.String("endpoint", req.EndpointPath), zap.Strings("tables", resp.TablesReferenced))

	return artifact, nil
}

func buildUserPrompt(req Request) string {
	var tables strings.Builder
	for _, t := range req.Catalog {
		cols := make([]string, 0, len(t.TableSchema.Columns))
		for _, c := range t.TableSchema.Columns {
			cols = append(cols, fmt.Sprintf("%s (%s)", c.Name, c.SQLType))
		}
		fmt.Fprintf(&tables, "Table: %s\nChain: %s\nContract: %s\nEvent: %s\nColumns: %s\nDescription: %s\n\n",
			t.TableSchema.TableName, t.Chain, t.ContractAddress, t.EventName, strings.Join(cols, ", "), t.Description)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Endpoint path:\n%s\n\nEndpoint description:\n%s\n\nTask description:\n%s\n\nAvailable tables:\n%s\n",
		req.EndpointPath, req.Description, req.Task, tables.String())
	return b.String()
}

var pathParamRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)
var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// validateTables checks every referenced table exists in the persisted
// schema state — an endpoint may only reference tables from a migrate pass
// that has already run, never the in-flight event IR set (spec.md §9 open
// question (b)).
func validateTables(referenced []string, persisted *schema.State) error {
	if len(referenced) == 0 {
		return errf("endpoint references no tables")
	}
	for _, name := range referenced {
		if _, ok := persisted.GetTable(name); !ok {
			return errf("endpoint references table %q which is not in the migrated schema", name)
		}
	}
	return nil
}

func validateSQL(sqlQuery string) error {
	trimmed := strings.TrimSpace(sqlQuery)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return errf("sql_query must start with SELECT or WITH, got %q", firstWords(trimmed, 3))
	}
	if strings.Count(trimmed, "(") != strings.Count(trimmed, ")") {
		return errf("sql_query has unbalanced parentheses")
	}
	if strings.Contains(trimmed, `\"`) || strings.Contains(trimmed, `\'`) {
		return errf("sql_query uses backslash-escaped quotes, which PostgreSQL does not accept")
	}
	return nil
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// reconcileParams converts the proposed parameters to IR form and checks
// that SQL placeholders ($1, $2, ...) are covered by exactly
// (len(pathParams) + len(queryParams)) parameters bound in declared order:
// path params first, then query params (spec.md §4.3/§9). Matching {name}
// placeholders in the endpoint path is ValidatePathParams' job.
func reconcileParams(pathProposals []pathParamProposal, queryProposals []queryParamProposal, sqlQuery string) ([]ir.PathParam, []ir.QueryParam, error) {
	pathParams := make([]ir.PathParam, 0, len(pathProposals))
	declaredPath := make(map[string]bool, len(pathProposals))
	for _, p := range pathProposals {
		pathParams = append(pathParams, ir.PathParam{Name: p.Name, SemanticType: p.SemanticType})
		declaredPath[p.Name] = true
	}

	queryParams := make([]ir.QueryParam, 0, len(queryProposals))
	for _, q := range queryProposals {
		qp := ir.QueryParam{Name: q.Name, SemanticType: q.SemanticType}
		if q.Default != nil {
			qp.Default = q.Default
			qp.HasDefault = true
		}
		queryParams = append(queryParams, qp)
	}

	maxPlaceholder := 0
	for _, m := range placeholderRe.FindAllStringSubmatch(sqlQuery, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > maxPlaceholder {
			maxPlaceholder = n
		}
	}

	declaredCount := len(pathParams) + len(queryParams)
	if maxPlaceholder != declaredCount {
		return nil, nil, errf("sql_query uses $1..$%d but %d path/query parameters are declared", maxPlaceholder, declaredCount)
	}

	return pathParams, queryParams, nil
}

// validateNullableCasts enforces spec.md §9's null-parameter-typing rule:
// every option<T> query parameter's placeholder must carry an explicit
// PostgreSQL type cast ($n::TYPE) in sql_query, since an untyped NULL bind
// is inferred as BIGINT by the driver and fails comparison against
// non-bigint columns (the WETH-style "address IS NULL OR address = $1"
// pitfall spec.md §8 scenario 5 guards against).
func validateNullableCasts(pathParams []ir.PathParam, queryParams []ir.QueryParam, sqlQuery string) error {
	offset := len(pathParams)
	for i, q := range queryParams {
		if _, isOption := ir.IsOption(q.SemanticType); !isOption {
			continue
		}
		n := offset + i + 1
		castRe := regexp.MustCompile(`\$` + strconv.Itoa(n) + `\b\s*::`)
		if !castRe.MatchString(sqlQuery) {
			return errf("query parameter %q is nullable (%s) but its placeholder $%d is never cast with :: in sql_query", q.Name, q.SemanticType, n)
		}
	}
	return nil
}

// ValidatePathParams checks that every {name} placeholder in endpointPath
// has a matching declared path parameter.
func ValidatePathParams(endpointPath string, pathParams []ir.PathParam) error {
	declared := make(map[string]bool, len(pathParams))
	for _, p := range pathParams {
		declared[p.Name] = true
	}
	for _, m := range pathParamRe.FindAllStringSubmatch(endpointPath, -1) {
		if !declared[m[1]] {
			return errf("path placeholder {%s} in %q has no declared path parameter", m[1], endpointPath)
		}
	}
	return nil
}

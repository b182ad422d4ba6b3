package server

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"smorty/internal/ir"
)

// runQuery executes an endpoint IR's stored SQL query and maps each result
// row's columns onto the endpoint's declared response_shape JSON keys
// (spec.md §4.3: response fields must match the query's output columns).
// Columns whose response_shape marks them json_type "string" are forced to
// a string representation regardless of the driver's native Go type — this
// is how wide integers (NUMERIC(78,0) wad/amount columns) cross the 64-bit
// JSON-number boundary safely (spec.md §4.6 point 4).
func runQuery(ctx context.Context, pool *pgxpool.Pool, ep *ir.EndpointIR, args []any) ([]map[string]any, error) {
	rows, err := pool.Query(ctx, ep.SQLQuery, args...)
	if err != nil {
		return nil, errf(http.StatusInternalServerError, "query failed: %v", err)
	}
	defer rows.Close()

	out := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errf(http.StatusInternalServerError, "read row: %v", err)
		}
		fields := rows.FieldDescriptions()

		row := make(map[string]any, len(values))
		for i, fd := range fields {
			key := fd.Name
			jsonType := ""
			if shapeField, ok := responseFieldFor(ep, key); ok {
				key = shapeField.JSONKey
				jsonType = shapeField.JSONType
			}
			v := values[i]
			if jsonType == "string" {
				v = stringifyPGValue(v)
			}
			row[key] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errf(http.StatusInternalServerError, "iterate rows: %v", err)
	}

	return out, nil
}

func responseFieldFor(ep *ir.EndpointIR, column string) (ir.ResponseField, bool) {
	for _, f := range ep.ResponseShape {
		if f.Column == column {
			return f, true
		}
	}
	return ir.ResponseField{}, false
}

// stringifyPGValue renders a pgx-decoded value (e.g. pgtype.Numeric for a
// NUMERIC(78,0) column, int64, []byte) as a plain string suitable for a
// JSON string field, preferring the driver.Valuer path pgx's numeric/
// decimal types implement over a generic fmt fallback.
func stringifyPGValue(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		return s
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	if valuer, ok := v.(driver.Valuer); ok {
		if dv, err := valuer.Value(); err == nil {
			if s, ok := dv.(string); ok {
				return s
			}
			if dv != nil {
				return fmt.Sprintf("%v", dv)
			}
		}
	}
	return fmt.Sprintf("%v", v)
}

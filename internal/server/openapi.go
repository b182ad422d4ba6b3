package server

import "smorty/internal/ir"

// buildOpenAPI assembles a minimal OpenAPI 3.0 document describing every
// registered endpoint IR, enough for the swagger-ui page to render a
// usable try-it-out console (spec.md §4.6).
func buildOpenAPI(endpoints []*ir.EndpointIR) map[string]any {
	paths := make(map[string]any, len(endpoints))

	for _, ep := range endpoints {
		params := make([]map[string]any, 0, len(ep.PathParams)+len(ep.QueryParams))
		for _, p := range ep.PathParams {
			params = append(params, map[string]any{
				"name":     p.Name,
				"in":       "path",
				"required": true,
				"schema":   map[string]any{"type": openAPIType(p.SemanticType)},
			})
		}
		for _, q := range ep.QueryParams {
			inner, isOption := ir.IsOption(q.SemanticType)
			required := !isOption && !q.HasDefault
			schemaType := q.SemanticType
			if isOption {
				schemaType = inner
			}
			params = append(params, map[string]any{
				"name":     q.Name,
				"in":       "query",
				"required": required,
				"schema":   map[string]any{"type": openAPIType(schemaType)},
			})
		}

		properties := make(map[string]any, len(ep.ResponseShape))
		for _, f := range ep.ResponseShape {
			properties[f.JSONKey] = map[string]any{"type": f.JSONType}
		}

		paths[ep.EndpointPath] = map[string]any{
			"get": map[string]any{
				"summary":     ep.Description,
				"parameters":  params,
				"responses": map[string]any{
					"200": map[string]any{
						"description": "OK",
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{
									"type": "object",
									"properties": map[string]any{
										"data":  map[string]any{"type": "array", "items": map[string]any{"type": "object", "properties": properties}},
										"count": map[string]any{"type": "integer"},
									},
								},
							},
						},
					},
				},
			},
		}
	}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "Smorty Query API",
			"version": "1.0.0",
		},
		"paths": paths,
	}
}

func openAPIType(semanticType string) string {
	switch semanticType {
	case ir.TypeInt64, ir.TypeUint64:
		return "integer"
	case ir.TypeBool:
		return "boolean"
	default:
		return "string"
	}
}

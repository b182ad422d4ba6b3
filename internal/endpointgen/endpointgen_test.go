package endpointgen

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"smorty/internal/aiclient"
	"smorty/internal/ir"
	"smorty/internal/schema"
	"smorty/internal/server"
)

// TestErrfUnwrapsToUnderlyingCause exercises errf the way Generate actually
// calls it (trailing error argument from client.Complete), so errors.As can
// still reach the wrapped *aiclient.Error after it's folded into an
// *endpointgen.Error (cmd/smorty's exitCode depends on this chain).
func TestErrfUnwrapsToUnderlyingCause(t *testing.T) {
	aiErr := &aiclient.Error{Kind: aiclient.KindRateLimit, Msg: "rate limited"}
	err := errf("ai completion for endpoint %s: %v", "/api/weth/transfers", aiErr)

	var got *aiclient.Error
	if !errors.As(err, &got) {
		t.Fatalf("expected errors.As to unwrap to the underlying aiclient.Error")
	}
	if got.Kind != aiclient.KindRateLimit {
		t.Fatalf("unwrapped Kind = %v, want KindRateLimit", got.Kind)
	}
}

func TestValidateTablesRejectsUnmigrated(t *testing.T) {
	st := schema.New("")
	if err := validateTables([]string{"weth_transfers"}, st); err == nil {
		t.Fatalf("expected error for unmigrated table")
	}
}

func TestValidateTablesAcceptsMigrated(t *testing.T) {
	st := schema.New("")
	st.AddTable(schema.TableState{Name: "weth_transfers"})
	if err := validateTables([]string{"weth_transfers"}, st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateTablesRejectsEmpty(t *testing.T) {
	st := schema.New("")
	if err := validateTables(nil, st); err == nil {
		t.Fatalf("expected error for empty tables_referenced")
	}
}

func TestValidateSQLRejectsNonSelect(t *testing.T) {
	if err := validateSQL("DELETE FROM weth_transfers"); err == nil {
		t.Fatalf("expected error for non-SELECT query")
	}
}

func TestValidateSQLRejectsUnbalancedParens(t *testing.T) {
	if err := validateSQL("SELECT * FROM (SELECT 1"); err == nil {
		t.Fatalf("expected error for unbalanced parens")
	}
}

func TestValidateSQLAcceptsWith(t *testing.T) {
	if err := validateSQL("WITH recent AS (SELECT 1) SELECT * FROM recent"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReconcileParamsMatchesPlaceholderCount(t *testing.T) {
	pathParams := []pathParamProposal{{Name: "pool", SemanticType: ir.TypeString}}
	queryParams := []queryParamProposal{{Name: "limit", SemanticType: ir.TypeInt64}}

	_, _, err := reconcileParams(pathParams, queryParams, "SELECT * FROM t WHERE pool = $1 LIMIT $2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReconcileParamsRejectsMismatch(t *testing.T) {
	pathParams := []pathParamProposal{{Name: "pool", SemanticType: ir.TypeString}}

	_, _, err := reconcileParams(pathParams, nil, "SELECT * FROM t WHERE pool = $1 LIMIT $2")
	if err == nil {
		t.Fatalf("expected error for placeholder/param count mismatch")
	}
}

func TestValidatePathParamsRejectsUndeclared(t *testing.T) {
	err := ValidatePathParams("/api/pool/{pool}", nil)
	if err == nil {
		t.Fatalf("expected error for undeclared path param")
	}
}

func TestValidatePathParamsAcceptsDeclared(t *testing.T) {
	err := ValidatePathParams("/api/pool/{pool}", []ir.PathParam{{Name: "pool"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateNullableCastsRejectsUncastPlaceholder(t *testing.T) {
	queryParams := []ir.QueryParam{{Name: "address", SemanticType: "option<string>"}}
	err := validateNullableCasts(nil, queryParams, "SELECT * FROM t WHERE ($1 IS NULL OR src = $1)")
	if err == nil {
		t.Fatalf("expected error for uncast nullable placeholder")
	}
}

func TestValidateNullableCastsAcceptsCastPlaceholder(t *testing.T) {
	queryParams := []ir.QueryParam{{Name: "address", SemanticType: "option<string>"}}
	err := validateNullableCasts(nil, queryParams, "SELECT * FROM t WHERE ($1::TEXT IS NULL OR src = $1::TEXT)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateNullableCastsIgnoresRequiredParams(t *testing.T) {
	queryParams := []ir.QueryParam{{Name: "limit", SemanticType: ir.TypeInt64}}
	err := validateNullableCasts(nil, queryParams, "SELECT * FROM t LIMIT $1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestOptionDefaultNullRoundTripsToUnsetBind reproduces the AI's literal JSON
// "default": null for an option<T> query parameter (the shape the system
// prompt instructs it to emit) through reconcileParams and into
// server.BindParams, to catch regressions where an absent optional query
// parameter is rejected as "missing" instead of binding NULL.
func TestOptionDefaultNullRoundTripsToUnsetBind(t *testing.T) {
	var proposal queryParamProposal
	if err := json.Unmarshal([]byte(`{"name":"address","semantic_type":"option<string>","default":null}`), &proposal); err != nil {
		t.Fatalf("unmarshal proposal: %v", err)
	}
	if proposal.Default != nil {
		t.Fatalf("expected Default to decode to nil, got %v", *proposal.Default)
	}

	_, queryParams, err := reconcileParams(nil, []queryParamProposal{proposal}, "SELECT * FROM t WHERE ($1::TEXT IS NULL OR src = $1::TEXT)")
	if err != nil {
		t.Fatalf("reconcileParams: %v", err)
	}
	if queryParams[0].HasDefault {
		t.Fatalf("expected HasDefault to stay false for a JSON null default, got true")
	}

	gin.SetMode(gin.TestMode)
	ep := &ir.EndpointIR{QueryParams: queryParams}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/test", nil)

	args, err := server.BindParams(c, ep)
	if err != nil {
		t.Fatalf("expected an absent option<T> query parameter to bind NULL, got error: %v", err)
	}
	if len(args) != 1 || args[0] != nil {
		t.Fatalf("expected [nil], got %v", args)
	}
}

package main

import (
	"errors"
	"fmt"
	"testing"

	"smorty/internal/abiload"
	"smorty/internal/aiclient"
	"smorty/internal/config"
	"smorty/internal/endpointgen"
	"smorty/internal/indexer"
	"smorty/internal/ir"
	"smorty/internal/schema"
	"smorty/internal/server"
	"smorty/internal/specgen"
)

func TestExitCodeNilIsSuccess(t *testing.T) {
	if got := exitCode(nil); got != 0 {
		t.Fatalf("exitCode(nil) = %d, want 0", got)
	}
}

func TestExitCodeClassifiesValidationErrors(t *testing.T) {
	cases := []error{
		&config.Error{Msg: "bad config"},
		&abiload.Error{Msg: "bad abi"},
		&ir.Error{Msg: "bad ir"},
		&specgen.Error{Msg: "bad spec"},
		&endpointgen.Error{Msg: "bad endpoint"},
		&schema.UnsafeError{TableName: "t", ColumnName: "c", OldType: "BIGINT", NewType: "BOOLEAN"},
		&server.Error{Msg: "bad endpoint ir", Status: 500},
	}
	for _, err := range cases {
		if got := exitCode(err); got != 1 {
			t.Errorf("exitCode(%T) = %d, want 1", err, got)
		}
	}
}

func TestExitCodeClassifiesAIError(t *testing.T) {
	err := &aiclient.Error{Kind: aiclient.KindAuth, Msg: "unauthorized"}
	if got := exitCode(err); got != 2 {
		t.Fatalf("exitCode(aiclient.Error) = %d, want 2", got)
	}
}

func TestExitCodeClassifiesDBError(t *testing.T) {
	err := &schema.Error{Msg: "connect database: refused"}
	if got := exitCode(err); got != 3 {
		t.Fatalf("exitCode(schema.Error) = %d, want 3", got)
	}
}

func TestExitCodeClassifiesIndexerError(t *testing.T) {
	err := &indexer.Error{Msg: "rpc dial failed"}
	if got := exitCode(err); got != 4 {
		t.Fatalf("exitCode(indexer.Error) = %d, want 4", got)
	}
}

func TestExitCodeUnknownErrorDefaultsToFive(t *testing.T) {
	if got := exitCode(errors.New("something unclassified")); got != 5 {
		t.Fatalf("exitCode(plain error) = %d, want 5", got)
	}
}

func TestExitCodeClassifiesWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("contract %q: %w", "acme", &specgen.Error{Msg: "reconcile failed"})
	if got := exitCode(wrapped); got != 1 {
		t.Fatalf("exitCode(wrapped specgen.Error) = %d, want 1", got)
	}
}

// TestExitCodeClassifiesAIErrorWrappedBySpecgen reproduces the real
// gen-spec failure shape: client.Complete returns a *aiclient.Error, which
// specgen.Generate folds into a *specgen.Error via errf. Despite the result
// being a *specgen.Error at the top of the chain, exitCode must still
// classify it as an AI error (2), not a generic validation error (1).
func TestExitCodeClassifiesAIErrorWrappedBySpecgen(t *testing.T) {
	aiErr := &aiclient.Error{Kind: aiclient.KindAuth, Msg: "unauthorized"}
	wrapped := &specgen.Error{Msg: "ai completion for weth/Transfer: " + aiErr.Error(), Cause: aiErr}
	if got := exitCode(wrapped); got != 2 {
		t.Fatalf("exitCode(ai error wrapped by specgen.Error) = %d, want 2", got)
	}
}

// TestExitCodeClassifiesAIErrorWrappedByEndpointgen mirrors the above for
// gen-endpoint's failure shape.
func TestExitCodeClassifiesAIErrorWrappedByEndpointgen(t *testing.T) {
	aiErr := &aiclient.Error{Kind: aiclient.KindRateLimit, Msg: "rate limited"}
	wrapped := &endpointgen.Error{Msg: "ai completion for endpoint /api/weth/transfers: " + aiErr.Error(), Cause: aiErr}
	if got := exitCode(wrapped); got != 2 {
		t.Fatalf("exitCode(ai error wrapped by endpointgen.Error) = %d, want 2", got)
	}
}

package specgen

import (
	"errors"
	"testing"

	"smorty/internal/aiclient"
)

// TestErrfUnwrapsToUnderlyingCause exercises errf the way Generate actually
// calls it (trailing error argument from client.Complete), so errors.As can
// still reach the wrapped *aiclient.Error after it's folded into a
// *specgen.Error (cmd/smorty's exitCode depends on this chain).
func TestErrfUnwrapsToUnderlyingCause(t *testing.T) {
	aiErr := &aiclient.Error{Kind: aiclient.KindAuth, Msg: "unauthorized"}
	err := errf("ai completion for %s/%s: %v", "weth", "Transfer", aiErr)

	var got *aiclient.Error
	if !errors.As(err, &got) {
		t.Fatalf("expected errors.As to unwrap to the underlying aiclient.Error")
	}
	if got.Kind != aiclient.KindAuth {
		t.Fatalf("unwrapped Kind = %v, want KindAuth", got.Kind)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"WETH":                 "weth",
		"FeeManagerV3":         "feemanagerv3",
		"Beets-Sonic_ETHUSD6h": "beets_sonic_ethusd6h",
		"PoolUpdated":          "poolupdated",
		"already_snake":        "already_snake",
	}
	for in, want := range cases {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTableName(t *testing.T) {
	got := tableName("WETH", "Transfer")
	if got != "weth_transfer" {
		t.Fatalf("tableName = %q, want weth_transfer", got)
	}
}

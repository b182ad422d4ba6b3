package abiload

import (
	"os"
	"path/filepath"
	"testing"
)

const erc20ABI = `[
  {"type":"event","name":"Transfer","anonymous":false,"inputs":[
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"value","type":"uint256","indexed":false}
  ]},
  {"type":"function","name":"balanceOf","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

func writeABI(t *testing.T, dir, name, contents string) string {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write abi fixture: %v", err)
	}
	return name
}

func TestLoadResolvesRelativeToBasePath(t *testing.T) {
	dir := t.TempDir()
	rel := writeABI(t, dir, "erc20.json", erc20ABI)

	parsed, raw, err := Load(dir, rel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := parsed.Events["Transfer"]; !ok {
		t.Fatalf("expected Transfer event in parsed abi")
	}
	if len(raw) == 0 {
		t.Fatalf("expected non-empty raw abi")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, _, err := Load(t.TempDir(), "does-not-exist.json"); err == nil {
		t.Fatalf("expected error for missing abi file")
	}
}

func TestResolveEventSplitsIndexedArgs(t *testing.T) {
	dir := t.TempDir()
	rel := writeABI(t, dir, "erc20.json", erc20ABI)
	parsed, raw, err := Load(dir, rel)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	resolved, err := ResolveEvent(parsed, raw, "Transfer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Signature != "Transfer(address,address,uint256)" {
		t.Fatalf("signature = %q", resolved.Signature)
	}
	if len(resolved.Indexed) != 2 {
		t.Fatalf("expected 2 indexed args, got %d", len(resolved.Indexed))
	}
	if len(resolved.NonIndexed) != 1 {
		t.Fatalf("expected 1 non-indexed arg, got %d", len(resolved.NonIndexed))
	}
	if resolved.Topic0 == "" {
		t.Fatalf("expected a non-empty topic0")
	}
}

func TestResolveEventUnknownName(t *testing.T) {
	dir := t.TempDir()
	rel := writeABI(t, dir, "erc20.json", erc20ABI)
	parsed, raw, err := Load(dir, rel)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, err := ResolveEvent(parsed, raw, "Approval"); err == nil {
		t.Fatalf("expected error for event not present in abi")
	}
}

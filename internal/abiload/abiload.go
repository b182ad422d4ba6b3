// Package abiload loads contract ABIs from disk and resolves the canonical
// signature and topic0 of a named event (spec.md §4 "ABI loader").
package abiload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Error reports an ABI load or resolution failure (spec.md §7 AbiError).
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func errf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Load parses a contract ABI JSON file. path is resolved relative to
// basePath so callers never depend on process cwd.
func Load(basePath, path string) (abi.ABI, json.RawMessage, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(basePath, path)
	}

	raw, err := os.ReadFile(full)
	if err != nil {
		return abi.ABI{}, nil, errf("read abi %s: %v", full, err)
	}

	parsed, err := abi.JSON(strings.NewReader(string(raw)))
	if err != nil {
		return abi.ABI{}, nil, errf("parse abi %s: %v", full, err)
	}

	return parsed, json.RawMessage(raw), nil
}

// ResolvedEvent carries everything downstream IR generation needs about one
// named event: the canonical signature, its topic0, and the raw ABI
// fragment to hand to the AI client.
type ResolvedEvent struct {
	Event      abi.Event
	Signature  string
	Topic0     string
	Fragment   json.RawMessage
	Indexed    []abi.Argument
	NonIndexed []abi.Argument
}

// ResolveEvent finds the named event in the ABI and computes its canonical
// signature and topic0 (keccak256 of the signature), and extracts the raw
// ABI fragment describing it for use as AI prompt context.
func ResolveEvent(parsed abi.ABI, rawABI json.RawMessage, eventName string) (*ResolvedEvent, error) {
	event, ok := parsed.Events[eventName]
	if !ok {
		return nil, errf("event %q not found in abi", eventName)
	}

	signature := canonicalSignature(event)
	topic0 := crypto.Keccak256Hash([]byte(signature)).Hex()

	var indexed, nonIndexed []abi.Argument
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		} else {
			nonIndexed = append(nonIndexed, arg)
		}
	}

	fragment, err := extractFragment(rawABI, eventName)
	if err != nil {
		return nil, err
	}

	return &ResolvedEvent{
		Event:      event,
		Signature:  signature,
		Topic0:     topic0,
		Fragment:   fragment,
		Indexed:    indexed,
		NonIndexed: nonIndexed,
	}, nil
}

// canonicalSignature renders "EventName(type1,type2,...)" the way Solidity
// computes log topics, independent of whatever internalType/indexed
// metadata the source ABI JSON carries.
func canonicalSignature(event abi.Event) string {
	types := make([]string, len(event.Inputs))
	for i, arg := range event.Inputs {
		types[i] = arg.Type.String()
	}
	return fmt.Sprintf("%s(%s)", event.Name, strings.Join(types, ","))
}

// extractFragment pulls the raw JSON object(s) for a named event out of the
// full ABI document, so only the relevant slice is sent to the AI client.
func extractFragment(rawABI json.RawMessage, eventName string) (json.RawMessage, error) {
	var entries []map[string]any
	if err := json.Unmarshal(rawABI, &entries); err != nil {
		return nil, errf("re-parse abi for fragment extraction: %v", err)
	}

	var matches []map[string]any
	for _, entry := range entries {
		if entry["type"] == "event" && entry["name"] == eventName {
			matches = append(matches, entry)
		}
	}
	if len(matches) == 0 {
		return nil, errf("event %q not found while extracting abi fragment", eventName)
	}

	out, err := json.Marshal(matches)
	if err != nil {
		return nil, errf("marshal abi fragment: %v", err)
	}
	return out, nil
}

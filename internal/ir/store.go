package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Error reports an IR store failure (spec.md §7 IrValidationError).
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func errf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// HashInputs computes the content hash used for IR provenance: regenerating
// an artifact from the same inputs must reproduce the same hash, and a
// different hash at an existing path is refused rather than silently
// overwritten (spec.md §9).
func HashInputs(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Store is a content-addressed on-disk store for event and endpoint IRs,
// rooted at basePath (spec.md §6 filesystem layout).
type Store struct {
	basePath string
}

// NewStore builds a Store rooted at basePath.
func NewStore(basePath string) *Store {
	return &Store{basePath: basePath}
}

func (s *Store) specsDir() string     { return filepath.Join(s.basePath, "ir", "specs") }
func (s *Store) endpointsDir() string { return filepath.Join(s.basePath, "ir", "endpoints") }

func specFileName(contractID, eventName string) string {
	return fmt.Sprintf("%s__%s.json", contractID, eventName)
}

var slugRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// EndpointSlug turns an endpoint path into a filesystem-safe slug, e.g.
// "/api/v3/swaps/{pool}" -> "api_v3_swaps_pool".
func EndpointSlug(endpointPath string) string {
	slug := slugRe.ReplaceAllString(endpointPath, "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "root"
	}
	return strings.ToLower(slug)
}

// PutEventIR writes an event IR, refusing to overwrite an existing artifact
// whose provenance hash differs (a different hash means different inputs,
// and the store never silently clobbers a prior generation).
func (s *Store) PutEventIR(contractID, eventName string, artifact *EventIR) error {
	path := filepath.Join(s.specsDir(), specFileName(contractID, eventName))

	if existing, err := s.readJSON(path); err == nil {
		var prior EventIR
		if jsonErr := json.Unmarshal(existing, &prior); jsonErr == nil {
			if prior.Provenance.PromptHash != "" && prior.Provenance.PromptHash != artifact.Provenance.PromptHash {
				return errf("event IR %s/%s already exists with a different prompt hash (%s != %s); refusing to overwrite", contractID, eventName, prior.Provenance.PromptHash, artifact.Provenance.PromptHash)
			}
		}
	}

	return writeStableJSON(path, artifact)
}

// GetEventIR reads a previously persisted event IR.
func (s *Store) GetEventIR(contractID, eventName string) (*EventIR, error) {
	path := filepath.Join(s.specsDir(), specFileName(contractID, eventName))
	data, err := s.readJSON(path)
	if err != nil {
		return nil, errf("read event IR %s/%s: %v", contractID, eventName, err)
	}
	var artifact EventIR
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, errf("parse event IR %s/%s: %v", contractID, eventName, err)
	}
	return &artifact, nil
}

// EventIRRef pairs a stored event IR with the contract id it belongs to.
type EventIRRef struct {
	ContractID string
	EventName  string
	IR         *EventIR
}

// ListEventIRs loads every event IR in the store, sorted by filename for
// deterministic iteration order.
func (s *Store) ListEventIRs() ([]EventIRRef, error) {
	entries, err := os.ReadDir(s.specsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errf("list event IRs: %v", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	refs := make([]EventIRRef, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.specsDir(), name))
		if err != nil {
			return nil, errf("read %s: %v", name, err)
		}
		var artifact EventIR
		if err := json.Unmarshal(data, &artifact); err != nil {
			return nil, errf("parse %s: %v", name, err)
		}
		base := strings.TrimSuffix(name, ".json")
		parts := strings.SplitN(base, "__", 2)
		contractID := base
		eventName := artifact.EventName
		if len(parts) == 2 {
			contractID = parts[0]
			eventName = parts[1]
		}
		refs = append(refs, EventIRRef{ContractID: contractID, EventName: eventName, IR: &artifact})
	}
	return refs, nil
}

// PutEndpointIR writes an endpoint IR, with the same provenance-refusal
// policy as PutEventIR.
func (s *Store) PutEndpointIR(artifact *EndpointIR) error {
	path := filepath.Join(s.endpointsDir(), EndpointSlug(artifact.EndpointPath)+".json")

	if existing, err := s.readJSON(path); err == nil {
		var prior EndpointIR
		if jsonErr := json.Unmarshal(existing, &prior); jsonErr == nil {
			if prior.Provenance.PromptHash != "" && prior.Provenance.PromptHash != artifact.Provenance.PromptHash {
				return errf("endpoint IR %s already exists with a different prompt hash; refusing to overwrite", artifact.EndpointPath)
			}
		}
	}

	return writeStableJSON(path, artifact)
}

// ListEndpointIRs loads every endpoint IR in the store, sorted by filename.
func (s *Store) ListEndpointIRs() ([]*EndpointIR, error) {
	entries, err := os.ReadDir(s.endpointsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errf("list endpoint IRs: %v", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]*EndpointIR, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.endpointsDir(), name))
		if err != nil {
			return nil, errf("read %s: %v", name, err)
		}
		var artifact EndpointIR
		if err := json.Unmarshal(data, &artifact); err != nil {
			return nil, errf("parse %s: %v", name, err)
		}
		out = append(out, &artifact)
	}
	return out, nil
}

func (s *Store) readJSON(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// writeStableJSON pretty-prints v and writes it atomically (tmp file +
// rename), the same pattern the teacher uses for checkpoint persistence, so
// concurrent readers never observe a partially written artifact.
func writeStableJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errf("create dir %s: %v", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errf("marshal %s: %v", path, err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errf("write %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errf("rename %s -> %s: %v", tmp, path, err)
	}
	return nil
}

package aiclient

import "fmt"

// Kind enumerates the AI client failure kinds from spec.md §4.1/§7.
type Kind int

const (
	// KindTransport covers 5xx responses and network failures.
	KindTransport Kind = iota
	// KindAuth covers 401/403 — never retried.
	KindAuth
	// KindSchema covers responses that fail JSON-schema validation even
	// after retries.
	KindSchema
	// KindRateLimit covers 429 responses.
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "AiTransportError"
	case KindAuth:
		return "AiAuthError"
	case KindSchema:
		return "AiSchemaError"
	case KindRateLimit:
		return "AiRateLimitError"
	default:
		return "AiError"
	}
}

// Error wraps an AI client failure with its kind so callers can classify
// retry behavior with errors.As.
type Error struct {
	Kind       Kind
	Msg        string
	RetryAfter float64 // seconds, populated for KindRateLimit when provided
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

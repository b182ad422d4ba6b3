// Package aiclient wraps the Anthropic API as Smorty's sole AI provider
// (spec.md §4.1). The provider contract is "send a system/user prompt and a
// JSON schema, get back a value that validates against that schema" — this
// package realizes that contract on top of the Anthropic SDK's tool-use
// mechanism, since the API has no native strict-JSON-schema response mode.
package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"
)

// MaxSchemaRetries is the number of additional attempts made after a
// response fails schema validation, each one appending the validator's error
// to the prompt (spec.md §4.1).
const MaxSchemaRetries = 2

// Client generates structured completions against a single forced tool call
// whose input_schema is the caller-supplied JSON schema.
type Client struct {
	sdk         anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature float64
	logger      *zap.Logger
}

// New builds a Client. apiKey, model and temperature come from the
// resolved config.AIConfig; maxTokens has no config.md equivalent and is
// fixed at a generous default since IR artifacts are small JSON documents.
func New(apiKey, model string, temperature float32, logger *zap.Logger) *Client {
	return &Client{
		sdk:         anthropic.NewClient(apiOption(apiKey)),
		model:       anthropic.Model(model),
		maxTokens:   4096,
		temperature: float64(temperature),
		logger:      logger,
	}
}

// Complete sends systemPrompt/userPrompt, forces the model to call a single
// "emit_result" tool whose input_schema is schema, validates the tool call's
// input against schema locally, and retries up to MaxSchemaRetries times on
// validation failure, feeding the validator's error back into the prompt.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any) (json.RawMessage, error) {
	compiled, err := resolveSchema(schema)
	if err != nil {
		return nil, newError(KindSchema, "caller-supplied schema does not compile", err)
	}

	prompt := userPrompt
	var lastErr error

	for attempt := 0; attempt <= MaxSchemaRetries; attempt++ {
		raw, err := c.complete(ctx, systemPrompt, prompt, schema)
		if err != nil {
			// Transport/auth/rate-limit failures are not schema retries:
			// they are retried (or not) entirely within c.complete via
			// backoff, so a returned error here is terminal.
			return nil, err
		}

		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			lastErr = fmt.Errorf("tool call input is not valid JSON: %w", err)
		} else if err := compiled.Validate(decoded); err != nil {
			lastErr = err
		} else {
			return raw, nil
		}

		c.logger.Warn("ai response failed schema validation, retrying",
			zap.Int("attempt", attempt), zap.Error(lastErr))
		prompt = fmt.Sprintf("%s\n\nYour previous response failed validation with this error:\n%s\n\nReturn a corrected result.", userPrompt, lastErr)
	}

	return nil, newError(KindSchema, "response did not validate against the target schema after retries", lastErr)
}

// complete issues one Messages.New call forcing the emit_result tool and
// returns the tool call's raw JSON input, classifying and retrying
// transport/rate-limit failures via backoff.
func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any) (json.RawMessage, error) {
	props, _ := schema["properties"].(map[string]any)
	required, _ := toStringSlice(schema["required"])

	tool := anthropic.ToolParam{
		Name:        "emit_result",
		Description: anthropic.Opt("Emit the structured result. Always call this tool exactly once with the final answer."),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		Tools: []anthropic.ToolUnionParam{
			{OfTool: &tool},
		},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: "emit_result"},
		},
	}

	var result *anthropic.Message
	var lastErr error
	transportFailures := 0
	op := func() error {
		msg, err := c.sdk.Messages.New(ctx, params)
		if err != nil {
			lastErr = classify(err)
			// Transport failures get a single retry; rate limits keep
			// retrying up to the backoff cap.
			var aiErr *Error
			if errors.As(lastErr, &aiErr) && aiErr.Kind == KindTransport {
				transportFailures++
				if transportFailures > 1 {
					return backoff.Permanent(lastErr)
				}
			}
			return lastErr
		}
		result = msg
		return nil
	}

	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(time.Second),
		backoff.WithMaxInterval(60*time.Second),
		backoff.WithMultiplier(2),
	)
	b := backoff.WithMaxRetries(&retryAfterBackOff{exp: exp, lastErr: &lastErr}, 5)
	b = backoff.WithContext(b, ctx)

	notify := func(err error, d time.Duration) {
		c.logger.Warn("ai request failed, retrying", zap.Error(err), zap.Duration("backoff", d))
	}

	if err := backoff.RetryNotify(withRetryGuard(op), b, notify); err != nil {
		return nil, err
	}

	for _, block := range result.Content {
		tu := block.AsToolUse()
		if tu.ID != "" && tu.Name == "emit_result" {
			return json.RawMessage(tu.Input), nil
		}
	}
	return nil, newError(KindSchema, "model did not return a tool_use block despite a forced tool choice", nil)
}

// retryAfterBackOff defers to exp for its schedule, except after a
// KindRateLimit error that carried a Retry-After value, where it waits that
// long instead (spec.md §4.1: "AiRateLimitError ... retried with
// Retry-After"). lastErr is shared with the operation closure since
// backoff.BackOff has no way to receive the error that triggered a retry.
type retryAfterBackOff struct {
	exp     backoff.BackOff
	lastErr *error
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	var aiErr *Error
	if errors.As(*b.lastErr, &aiErr) && aiErr.Kind == KindRateLimit && aiErr.RetryAfter > 0 {
		return time.Duration(aiErr.RetryAfter * float64(time.Second))
	}
	return b.exp.NextBackOff()
}

func (b *retryAfterBackOff) Reset() { b.exp.Reset() }

// withRetryGuard stops backoff from retrying errors that are fatal by kind
// (auth, schema) by wrapping them as backoff.Permanent.
func withRetryGuard(op func() error) func() error {
	return func() error {
		err := op()
		if err == nil {
			return nil
		}
		var aiErr *Error
		if errors.As(err, &aiErr) && (aiErr.Kind == KindAuth || aiErr.Kind == KindSchema) {
			return backoff.Permanent(err)
		}
		return err
	}
}

// classify maps an Anthropic SDK error into a typed *Error so callers (and
// withRetryGuard) can branch on failure kind (spec.md §7).
func classify(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return newError(KindTransport, "request failed", err)
	}

	switch {
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return newError(KindAuth, "authentication failed", err)
	case apiErr.StatusCode == http.StatusTooManyRequests:
		e := newError(KindRateLimit, "rate limited", err)
		if retryAfter := apiErr.Response.Header.Get("Retry-After"); retryAfter != "" {
			if secs, parseErr := time.ParseDuration(retryAfter + "s"); parseErr == nil {
				e.RetryAfter = secs.Seconds()
			}
		}
		return e
	case apiErr.StatusCode >= 500:
		return newError(KindTransport, "provider error", err)
	default:
		return newError(KindTransport, "request failed", err)
	}
}

func apiOption(apiKey string) option.RequestOption {
	return option.WithAPIKey(apiKey)
}

// toStringSlice converts a decoded JSON array ([]any of strings, as produced
// by unmarshaling into map[string]any) into a []string.
func toStringSlice(v any) ([]string, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// resolveSchema turns a caller-supplied JSON schema (as a generic map, since
// Smorty's schemas are assembled dynamically from event/endpoint IR field
// lists rather than known at compile time) into a jsonschema.Resolved ready
// for Validate.
func resolveSchema(schema map[string]any) (*jsonschema.Resolved, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
}

package indexer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// withRetry retries fn with capped exponential backoff, matching the
// provider-failure handling the AI client uses (spec.md §4.5: transient RPC
// failures are retried, not fatal).
func withRetry(ctx context.Context, maxRetries int, logger *zap.Logger, label string, fn func() error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(time.Second),
		backoff.WithMaxInterval(60*time.Second),
		backoff.WithMultiplier(2),
	), uint64(maxRetries))
	b = backoff.WithContext(b, ctx)

	notify := func(err error, d time.Duration) {
		logger.Warn("retrying after failure", zap.String("op", label), zap.Error(err), zap.Duration("backoff", d))
	}

	return backoff.RetryNotify(fn, b, notify)
}

package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewIndexerFillsDefaults(t *testing.T) {
	idx := NewIndexer(Config{}, nil, nil, nil)
	if idx.cfg.ChunkSize == 0 || idx.cfg.Parallelism == 0 || idx.cfg.MaxRetries == 0 || idx.cfg.PollInterval == 0 {
		t.Fatalf("expected NewIndexer to fill zero-valued config fields, got %+v", idx.cfg)
	}
	if idx.cfg.PollInterval != 12*time.Second {
		t.Fatalf("PollInterval default = %v, want 12s", idx.cfg.PollInterval)
	}
}

func TestSleepPollReturnsNilAfterInterval(t *testing.T) {
	idx := NewIndexer(Config{PollInterval: time.Millisecond}, nil, nil, zap.NewNop())
	if err := idx.sleepPoll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSleepPollReturnsCtxErrOnCancellation(t *testing.T) {
	idx := NewIndexer(Config{PollInterval: time.Hour}, nil, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := idx.sleepPoll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

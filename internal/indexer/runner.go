// Package indexer drives chunked eth_getLogs ingestion for every event IR
// in the store (spec.md §4.5, C8): one pair of (chain, contract address,
// event) per event IR, each advancing its own checkpoint independently,
// running with bounded cross-pair concurrency.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"smorty/internal/chain"
	"smorty/internal/decode"
	"smorty/internal/ir"
	"smorty/internal/schema"
)

// Error reports an indexing failure (spec.md §7 IndexError).
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func errf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Config tunes the ingestion loop (spec.md §4.5).
type Config struct {
	ChunkSize     uint64
	Confirmations uint64
	Parallelism   int
	MaxRetries    int
	PollInterval  time.Duration
}

// Indexer runs continuous ingestion across every pair it's given.
type Indexer struct {
	cfg     Config
	clients map[string]*chain.Client
	pool    *pgxpool.Pool
	logger  *zap.Logger
}

// NewIndexer builds an Indexer. clients maps chain name (as declared in
// config.Chains) to a dialed chain client.
func NewIndexer(cfg Config, clients map[string]*chain.Client, pool *pgxpool.Pool, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 2000
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 4
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 12 * time.Second
	}
	return &Indexer{cfg: cfg, clients: clients, pool: pool, logger: logger}
}

// Run ingests every pair's pending range and then keeps polling for new
// blocks, one goroutine per pair, up to cfg.Parallelism; within one pair,
// chunks run sequentially so a pair's checkpoint always advances in block
// order (spec.md §4.5 step 2). It only returns once ctx is canceled or a
// pair hits an unrecoverable error.
func (idx *Indexer) Run(ctx context.Context, refs []ir.EventIRRef) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.cfg.Parallelism)

	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			return idx.runPair(gctx, ref)
		})
	}

	return g.Wait()
}

func (idx *Indexer) runPair(ctx context.Context, ref ir.EventIRRef) error {
	eventIR := ref.IR
	client, ok := idx.clients[eventIR.Chain]
	if !ok {
		return errf("no chain client configured for %q (event %s)", eventIR.Chain, eventIR.EventName)
	}

	event, err := decode.RebuildEvent(eventIR)
	if err != nil {
		return errf("rebuild event %s/%s: %v", eventIR.Chain, eventIR.EventName, err)
	}

	checkpoint, err := schema.LoadCheckpoint(ctx, idx.pool, eventIR.Chain, eventIR.ContractAddress, eventIR.EventName)
	if err != nil {
		return errf("load checkpoint %s/%s/%s: %v", eventIR.Chain, eventIR.ContractAddress, eventIR.EventName, err)
	}

	start := eventIR.StartBlock
	if checkpoint > 0 && checkpoint+1 > start {
		start = checkpoint + 1
	}

	addresses := []common.Address{common.HexToAddress(eventIR.ContractAddress)}
	topic0 := []common.Hash{common.HexToHash(eventIR.Topic0)}

	for {
		var latest uint64
		if err := withRetry(ctx, idx.cfg.MaxRetries, idx.logger, "latest block number", func() error {
			var err error
			latest, err = client.LatestBlockNumber(ctx)
			return err
		}); err != nil {
			return errf("get latest block for %s: %v", eventIR.Chain, err)
		}

		if latest < idx.cfg.Confirmations {
			idx.logger.Info("chain has fewer blocks than the confirmation depth, nothing to index yet",
				zap.String("chain", eventIR.Chain), zap.Uint64("latest", latest), zap.Uint64("confirmations", idx.cfg.Confirmations))
			if err := idx.sleepPoll(ctx); err != nil {
				return err
			}
			continue
		}
		head := latest - idx.cfg.Confirmations

		if start > head {
			idx.logger.Debug("caught up to head, waiting for new blocks",
				zap.String("event", eventIR.EventName), zap.Uint64("start", start), zap.Uint64("head", head))
			if err := idx.sleepPoll(ctx); err != nil {
				return err
			}
			continue
		}

		ranges, err := SplitRange(start, head, idx.cfg.ChunkSize)
		if err != nil {
			return errf("split range %d-%d: %v", start, head, err)
		}

		pending := ranges
		for len(pending) > 0 {
			r := pending[0]
			pending = pending[1:]

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err := idx.processRange(ctx, eventIR, client, event, addresses, topic0, r); err != nil {
				if chain.IsRangeTooLarge(err) && r.From < r.To {
					first := r.Halve()
					second := BlockRange{From: first.To + 1, To: r.To}
					idx.logger.Info("block range rejected as too large, halving",
						zap.String("event", eventIR.EventName), zap.Uint64("from", r.From), zap.Uint64("to", r.To))
					pending = append([]BlockRange{first, second}, pending...)
					continue
				}
				return errf("process range %d-%d for %s/%s: %v", r.From, r.To, eventIR.Chain, eventIR.EventName, err)
			}

			idx.logger.Info("chunk complete",
				zap.String("event", eventIR.EventName), zap.Uint64("from", r.From), zap.Uint64("to", r.To))
		}

		start = head + 1
	}
}

// sleepPoll waits cfg.PollInterval, or returns ctx.Err() if ctx is canceled
// first (spec.md §4.5 step 2, §5 "sleep between polls").
func (idx *Indexer) sleepPoll(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(idx.cfg.PollInterval):
		return nil
	}
}

// processRange fetches, decodes, and commits one chunk's logs, advancing
// the pair's checkpoint to r.To in the same transaction as the row writes
// so a crash mid-chunk never leaves the checkpoint ahead of the data
// (spec.md §3 data model).
func (idx *Indexer) processRange(ctx context.Context, eventIR *ir.EventIR, client *chain.Client, event abi.Event, addresses []common.Address, topic0 []common.Hash, r BlockRange) error {
	var logs []types.Log
	if err := withRetry(ctx, idx.cfg.MaxRetries, idx.logger, "filter logs", func() error {
		fetched, err := client.FilterLogs(ctx, r.From, r.To, addresses, topic0)
		if err != nil {
			if chain.IsRangeTooLarge(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		logs = fetched
		return nil
	}); err != nil {
		return err
	}

	rows := make([]decode.Row, 0, len(logs))
	for _, log := range logs {
		ts, err := client.BlockTimestamp(ctx, log.BlockNumber)
		if err != nil {
			return errf("block timestamp %d: %v", log.BlockNumber, err)
		}
		row, err := decode.Decode(log, event, eventIR, ts)
		if err != nil {
			return errf("decode log %s#%d: %v", log.TxHash.Hex(), log.Index, err)
		}
		rows = append(rows, row)
	}

	return idx.commitRange(ctx, eventIR, rows, r.To)
}

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"smorty/internal/chain"
	"smorty/internal/indexer"
	"smorty/internal/ir"
	"smorty/internal/schema"
)

// newIndexCmd builds index: catch up every stored event IR from its
// checkpoint to head, then keep polling for new blocks until interrupted,
// fetching logs from each IR's chain and writing decoded rows + checkpoints
// to Postgres (spec.md §6: C3,C1 + RPC + DB, C8).
func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Continuously sync every stored event IR from its checkpoint",
		RunE:  runIndex,
	}
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URI)
	if err != nil {
		return &schema.Error{Msg: "connect database: " + err.Error()}
	}
	defer pool.Close()

	store := ir.NewStore(cfg.BasePath)
	refs, err := store.ListEventIRs()
	if err != nil {
		return err
	}

	clients := make(map[string]*chain.Client)
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	for chainName, rpcURL := range cfg.Chains {
		c, err := chain.NewClient(ctx, rpcURL)
		if err != nil {
			return &indexer.Error{Msg: "dial chain " + chainName + ": " + err.Error()}
		}
		clients[chainName] = c
	}

	idx := indexer.NewIndexer(indexer.Config{
		ChunkSize:     cfg.Indexer.ChunkSize,
		Confirmations: cfg.Indexer.Confirmations,
		Parallelism:   cfg.Indexer.Parallelism,
		MaxRetries:    cfg.Indexer.MaxRetries,
		PollInterval:  cfg.Indexer.PollInterval,
	}, clients, pool, logger)

	// Run blocks until ctx is canceled (SIGINT/SIGTERM) or a pair hits an
	// unrecoverable error; cancellation itself is a clean shutdown, not a
	// failure (mirrors server.Run's treatment of ctx.Done()).
	if err := idx.Run(ctx, refs); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

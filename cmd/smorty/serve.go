package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smorty/internal/ir"
	"smorty/internal/schema"
	"smorty/internal/server"
)

// newServeCmd builds serve: load every persisted endpoint IR, build one
// route per IR, and run the HTTP server until the process is signaled
// (spec.md §6: C3 + DB, C9).
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dynamic HTTP query server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
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
	endpoints, err := store.ListEndpointIRs()
	if err != nil {
		return err
	}

	srv := server.New(pool, logger)
	if err := srv.RegisterEndpoints(endpoints); err != nil {
		return err
	}

	logger.Info("serving", zap.String("addr", cfg.Server.Addr), zap.Int("endpoints", len(endpoints)))
	return srv.Run(ctx, cfg.Server.Addr)
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smorty/internal/aiclient"
	"smorty/internal/endpointgen"
	"smorty/internal/ir"
	"smorty/internal/schema"
)

// newGenEndpointCmd builds gen-endpoint: for every declared spec's
// endpoint, ask the AI client for a SQL query and parameter plan against
// the catalog of stored event IR tables, validate it (referenced tables
// must already be in the migrated schema state), and persist the resulting
// endpoint IR (spec.md §6: C3,C4,C6).
func newGenEndpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-endpoint",
		Short: "Generate endpoint IRs for every declared endpoint",
		RunE:  runGenEndpoint,
	}
}

func runGenEndpoint(cmd *cobra.Command, _ []string) error {
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

	client := aiclient.New(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Temperature, logger)
	store := ir.NewStore(cfg.BasePath)

	refs, err := store.ListEventIRs()
	if err != nil {
		return err
	}
	catalog := make([]*ir.EventIR, 0, len(refs))
	for _, ref := range refs {
		catalog = append(catalog, ref.IR)
	}

	persisted, err := schema.Load(cfg.BasePath)
	if err != nil {
		return err
	}

	for contractID, contract := range cfg.Contracts {
		for _, spec := range contract.Specs {
			artifact, err := endpointgen.Generate(ctx, client, cfg.AI.Model, endpointgen.Request{
				EndpointPath: spec.Endpoint,
				Description:  spec.Task,
				Task:         spec.Task,
				Catalog:      catalog,
			}, persisted, logger)
			if err != nil {
				return fmt.Errorf("contract %q spec %q endpoint %q: %w", contractID, spec.Name, spec.Endpoint, err)
			}

			if err := endpointgen.ValidatePathParams(artifact.EndpointPath, artifact.PathParams); err != nil {
				return err
			}

			if err := store.PutEndpointIR(artifact); err != nil {
				return err
			}

			logger.Info("endpoint ir written", zap.String("endpoint", artifact.EndpointPath))
		}
	}

	return nil
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smorty/internal/abiload"
	"smorty/internal/aiclient"
	"smorty/internal/ir"
	"smorty/internal/specgen"
)

// newGenSpecCmd builds gen-spec: for every contract/spec pair declared in
// config, resolve the named event from its ABI and ask the AI client to
// propose an event IR, then persist it (spec.md §6 control flow: C1,C2,C4,
// C5,C3).
func newGenSpecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-spec",
		Short: "Generate event IRs for every declared contract/spec pair",
		RunE:  runGenSpec,
	}
}

func runGenSpec(cmd *cobra.Command, _ []string) error {
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

	for contractID, contract := range cfg.Contracts {
		parsed, rawABI, err := abiload.Load(cfg.BasePath, contract.ABIPath)
		if err != nil {
			return err
		}

		for _, spec := range contract.Specs {
			resolved, err := abiload.ResolveEvent(parsed, rawABI, spec.Name)
			if err != nil {
				return fmt.Errorf("contract %q spec %q: %w", contractID, spec.Name, err)
			}

			artifact, err := specgen.Generate(ctx, client, cfg.AI.Model, specgen.Request{
				ContractName: contractID,
				ContractID:   contractID,
				SpecName:     spec.Name,
				Chain:        contract.Chain,
				Address:      contract.Address,
				StartBlock:   spec.StartBlock,
				Task:         spec.Task,
				Event:        resolved,
			}, logger)
			if err != nil {
				return fmt.Errorf("contract %q spec %q: %w", contractID, spec.Name, err)
			}

			if err := store.PutEventIR(contractID, spec.Name, artifact); err != nil {
				return err
			}

			logger.Info("event ir written",
				zap.String("contract", contractID), zap.String("spec", spec.Name),
				zap.String("table", artifact.TableSchema.TableName))
		}
	}

	return nil
}

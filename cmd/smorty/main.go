// Command smorty drives the six config-driven verbs that turn a contract +
// task declaration into a running indexed-query service (spec.md §6):
// gen-spec, gen-migration, migrate, index, gen-endpoint, serve.
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"smorty/internal/abiload"
	"smorty/internal/aiclient"
	"smorty/internal/config"
	"smorty/internal/endpointgen"
	"smorty/internal/indexer"
	"smorty/internal/ir"
	"smorty/internal/schema"
	"smorty/internal/server"
	"smorty/internal/specgen"
)

func main() {
	root := &cobra.Command{
		Use:          "smorty",
		Short:        "AI-generated IR pipeline and runtime for indexing EVM contract events",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path (default config.toml/config.yaml)")
	root.PersistentFlags().String("base-path", ".", "base directory ABI paths, IR store, and migrations are resolved against")

	root.AddCommand(
		newGenSpecCmd(),
		newGenMigrationCmd(),
		newMigrateCmd(),
		newIndexCmd(),
		newGenEndpointCmd(),
		newServeCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if level == "" {
		level = "info"
	}
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	basePath, _ := cmd.Flags().GetString("base-path")
	return config.Load(cfgFile, basePath, cmd.Flags())
}

// exitCode classifies a command failure per spec.md §6: 1 validation/config,
// 2 AI, 3 DB, 4 RPC/indexer, 5 unknown. errors.As walks wrapped errors, so a
// failure surfaced through fmt.Errorf("%w", ...) still classifies correctly.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var configErr *config.Error
	var abiErr *abiload.Error
	var irErr *ir.Error
	var specgenErr *specgen.Error
	var endpointgenErr *endpointgen.Error
	var unsafeErr *schema.UnsafeError
	var schemaErr *schema.Error
	var aiErr *aiclient.Error
	var indexerErr *indexer.Error
	var serverErr *server.Error

	switch {
	// aiErr is checked first: specgen/endpointgen wrap a *aiclient.Error as
	// their Cause via %w, so an AI failure surfaced through gen-spec or
	// gen-endpoint is still a *specgen.Error/*endpointgen.Error at the top
	// of the chain — errors.As against those generic cases would match
	// before errors.As ever reaches the wrapped aiErr beneath them.
	case errors.As(err, &aiErr):
		return 2
	case errors.As(err, &configErr),
		errors.As(err, &abiErr),
		errors.As(err, &irErr),
		errors.As(err, &specgenErr),
		errors.As(err, &endpointgenErr),
		errors.As(err, &unsafeErr),
		errors.As(err, &serverErr):
		// server.Error only ever reaches the CLI from RegisterEndpoints at
		// serve startup (a malformed endpoint IR), which is a validation
		// failure; request-time server.Errors never leave the HTTP layer.
		return 1
	case errors.As(err, &schemaErr):
		return 3
	case errors.As(err, &indexerErr):
		return 4
	default:
		return 5
	}
}

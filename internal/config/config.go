// Package config loads and validates Smorty's declarative configuration:
// chain RPC endpoints, AI provider settings, and the contract/spec
// declarations that drive IR generation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AIConfig holds LLM provider settings.
type AIConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float32 `mapstructure:"temperature"`
}

// SpecConfig declares one event to index and the endpoint it feeds.
type SpecConfig struct {
	Name       string `mapstructure:"name"`
	StartBlock uint64 `mapstructure:"start_block"`
	Endpoint   string `mapstructure:"endpoint"`
	Task       string `mapstructure:"task"`
}

// ContractConfig declares one contract and the specs derived from it.
type ContractConfig struct {
	Chain   string       `mapstructure:"chain"`
	Address string       `mapstructure:"address"`
	ABIPath string       `mapstructure:"abi_path"`
	Specs   []SpecConfig `mapstructure:"specs"`
}

// Config is the fully parsed, validated declarative input to every verb.
type Config struct {
	Chains    map[string]string         `mapstructure:"chains"`
	AI        AIConfig                  `mapstructure:"ai"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Indexer   IndexerConfig             `mapstructure:"indexer"`
	Server    ServerConfig              `mapstructure:"server"`
	Contracts map[string]ContractConfig `mapstructure:"contracts"`
	LogLevel  string                    `mapstructure:"log_level"`
	BasePath  string                    `mapstructure:"-"`
}

// DatabaseConfig holds the Postgres connection string.
type DatabaseConfig struct {
	URI string `mapstructure:"uri"`
}

// IndexerConfig tunes the chain-log ingestion loop (spec.md §4.5).
type IndexerConfig struct {
	ChunkSize     uint64        `mapstructure:"chunk_size"`
	Confirmations uint64        `mapstructure:"confirmations"`
	Parallelism   int           `mapstructure:"parallelism"`
	MaxRetries    int           `mapstructure:"max_retries"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

// ServerConfig tunes the HTTP query server (spec.md §4.6).
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads config.toml/config.yaml (or cfgFile if set), applies
// environment overrides, and validates the result. basePath anchors all
// relative file operations (ABI paths, IR store, migrations dir) so runs are
// parallel-safe regardless of process working directory (see spec.md §9).
func Load(cfgFile string, basePath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SMORTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("ai.temperature", float32(0))
	v.SetDefault("indexer.chunk_size", uint64(2000))
	v.SetDefault("indexer.confirmations", uint64(12))
	v.SetDefault("indexer.parallelism", 4)
	v.SetDefault("indexer.max_retries", 5)
	// 12s: roughly one Ethereum block, the same cadence the daemon mode of
	// the original implementation polled at.
	v.SetDefault("indexer.poll_interval", 12*time.Second)
	v.SetDefault("server.addr", ":8080")

	if flags != nil {
		_ = v.BindPFlags(flags)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(basePath)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errf("read config: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errf("parse config: %v", err)
	}
	cfg.BasePath = basePath

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("DATABASE_URI"); dsn != "" {
		cfg.Database.URI = dsn
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.AI.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.AI.APIKey = key
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	for name := range cfg.Chains {
		envKey := "ETH_RPC_URL_" + strings.ToUpper(name)
		if url := os.Getenv(envKey); url != "" {
			cfg.Chains[name] = url
		}
	}

	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Indexer.ChunkSize = n
		}
	}
	if v := os.Getenv("CONFIRMATIONS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Indexer.Confirmations = n
		}
	}
	if v := os.Getenv("INDEXER_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Parallelism = n
		}
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Indexer.PollInterval = d
		}
	}
}

// Validate checks every invariant from spec.md §3 that is local to the
// config document itself (ABI-dependent invariants — event name existing in
// the referenced ABI — are checked by the spec generator once the ABI is
// loaded).
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return errf("config: at least one chain is required")
	}
	if c.Indexer.ChunkSize == 0 {
		return errf("config: indexer.chunk_size must be greater than zero")
	}
	if c.Indexer.Parallelism <= 0 {
		return errf("config: indexer.parallelism must be greater than zero")
	}
	if c.Indexer.PollInterval <= 0 {
		return errf("config: indexer.poll_interval must be greater than zero")
	}

	seenEndpoints := make(map[string]string)

	for contractID, contract := range c.Contracts {
		if _, ok := c.Chains[contract.Chain]; !ok {
			return errf("contract %q: chain %q is not declared in chains", contractID, contract.Chain)
		}
		if !common.IsHexAddress(contract.Address) {
			return errf("contract %q: address %q is not a valid 20-byte hex address", contractID, contract.Address)
		}
		if contract.ABIPath == "" {
			return errf("contract %q: abi_path is required", contractID)
		}
		if len(contract.Specs) == 0 {
			return errf("contract %q: at least one spec is required", contractID)
		}

		for _, spec := range contract.Specs {
			if spec.Name == "" {
				return errf("contract %q: spec name is required", contractID)
			}
			if spec.Endpoint == "" || !strings.HasPrefix(spec.Endpoint, "/") {
				return errf("contract %q spec %q: endpoint must be a non-empty path beginning with '/'", contractID, spec.Name)
			}
			if owner, dup := seenEndpoints[spec.Endpoint]; dup {
				return errf("endpoint %q declared by both %q and %q: endpoints must be unique", spec.Endpoint, owner, contractID)
			}
			seenEndpoints[spec.Endpoint] = contractID
		}
	}

	return nil
}

// RPCURL resolves the RPC URL for a chain name.
func (c *Config) RPCURL(chain string) (string, error) {
	url, ok := c.Chains[chain]
	if !ok || url == "" {
		return "", fmt.Errorf("no rpc url configured for chain %q", chain)
	}
	return url, nil
}

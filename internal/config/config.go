// Package config is the refiner's ambient configuration layer: a TOML
// file plus CLI flag overrides, following go-ethereum's own cmd/geth
// config.go convention (naoina/toml for the file, urfave/cli/v2 for
// flags and flag-to-struct overrides) that the teacher's fork inherits
// upstream, since the pack's trimmed copy of the teacher doesn't carry
// cmd/geth itself.
package config

import (
	"fmt"
	"os"

	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"

	"github.com/aurora-is-near/go-refiner/internal/source"
)

// Config is the refiner's full runtime configuration.
type Config struct {
	ChainID uint64
	Account string

	Network          string // "mainnet" or "testnet", selects source.Network for DataLake
	StartBlockHeight uint64
	LocalNodeDir     string // if set, use source.LocalNode instead of DataLake

	StorageDir  string
	ContractDir string
	SinkDir     string

	RPCSocketAddr string // empty disables rpcsocket
}

// Default mirrors the values the refiner ships with absent an explicit
// config file or flags.
func Default() Config {
	return Config{
		ChainID:       1313161554,
		Account:       "aurora",
		Network:       "mainnet",
		StorageDir:    "./data/storage",
		ContractDir:   "./data/contracts",
		SinkDir:       "./data/blocks",
		RPCSocketAddr: "",
	}
}

// SourceNetwork maps the configured network name to source.Network,
// defaulting to mainnet on anything unrecognized.
func (c Config) SourceNetwork() source.Network {
	if c.Network == "testnet" {
		return source.NetworkTestnet
	}
	return source.NetworkMainnet
}

// Load reads a TOML config file, if path is non-empty, applying it over
// Default(); an empty path returns Default() unmodified.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Flags are the CLI flags cmd/refiner registers; ApplyFlags overlays any
// flag explicitly set by the user onto a Config already loaded from file,
// matching go-ethereum's "file provides defaults, flags override" layering.
var Flags = []cli.Flag{
	&cli.StringFlag{Name: "config", Usage: "path to a TOML config file"},
	&cli.Uint64Flag{Name: "chain-id", Usage: "inner-chain id"},
	&cli.StringFlag{Name: "account", Usage: "engine account id on the outer chain"},
	&cli.StringFlag{Name: "network", Usage: "outer-chain network: mainnet or testnet"},
	&cli.Uint64Flag{Name: "start-height", Usage: "outer-chain height to start ingesting from"},
	&cli.StringFlag{Name: "local-node-dir", Usage: "use the local-node source for this directory instead of the data lake (that source does not read blocks; every fetch returns an error)"},
	&cli.StringFlag{Name: "storage-dir", Usage: "engine-state storage directory"},
	&cli.StringFlag{Name: "contract-dir", Usage: "contract-bytecode cache directory"},
	&cli.StringFlag{Name: "sink-dir", Usage: "inner-block output directory"},
	&cli.StringFlag{Name: "rpc-socket-addr", Usage: "local JSON-RPC socket listen address; empty disables it"},
}

// ApplyFlags overlays cliCtx's explicitly-set flags onto cfg.
func ApplyFlags(cfg Config, cliCtx *cli.Context) Config {
	if cliCtx.IsSet("chain-id") {
		cfg.ChainID = cliCtx.Uint64("chain-id")
	}
	if cliCtx.IsSet("account") {
		cfg.Account = cliCtx.String("account")
	}
	if cliCtx.IsSet("network") {
		cfg.Network = cliCtx.String("network")
	}
	if cliCtx.IsSet("start-height") {
		cfg.StartBlockHeight = cliCtx.Uint64("start-height")
	}
	if cliCtx.IsSet("local-node-dir") {
		cfg.LocalNodeDir = cliCtx.String("local-node-dir")
	}
	if cliCtx.IsSet("storage-dir") {
		cfg.StorageDir = cliCtx.String("storage-dir")
	}
	if cliCtx.IsSet("contract-dir") {
		cfg.ContractDir = cliCtx.String("contract-dir")
	}
	if cliCtx.IsSet("sink-dir") {
		cfg.SinkDir = cliCtx.String("sink-dir")
	}
	if cliCtx.IsSet("rpc-socket-addr") {
		cfg.RPCSocketAddr = cliCtx.String("rpc-socket-addr")
	}
	return cfg
}

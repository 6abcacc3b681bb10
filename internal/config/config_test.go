package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aurora-is-near/go-refiner/internal/source"
)

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverlaysTomlFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refiner.toml")
	require.NoError(t, os.WriteFile(path, []byte("ChainID = 1234\nNetwork = \"testnet\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1234), cfg.ChainID)
	require.Equal(t, "testnet", cfg.Network)
	require.Equal(t, source.NetworkTestnet, cfg.SourceNetwork())
}

func TestSourceNetworkDefaultsToMainnet(t *testing.T) {
	cfg := Default()
	require.Equal(t, source.NetworkMainnet, cfg.SourceNetwork())
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrazakos/revwatch/internal/config"
)

func TestLoadDefaultsWithPreset(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "sepolia", cfg.Network)
	assert.NotEmpty(t, cfg.RPCURL)
	assert.NotEmpty(t, cfg.ContractAddress)
	assert.NotZero(t, cfg.StartBlock)
	assert.Equal(t, 15, cfg.ScanIntervalMinutes)
	assert.Equal(t, 15*time.Minute, cfg.ScanInterval())
	assert.True(t, cfg.IsWebsocketRPC())
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
network: dev
lock_id: 42
scan_interval_minutes: 5
batch_size: 500
max_range: 10
`), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Network)
	assert.Equal(t, uint64(42), cfg.LockID)
	assert.Equal(t, 5, cfg.ScanIntervalMinutes)
	assert.Equal(t, uint64(500), cfg.BatchSize)
	assert.Equal(t, uint64(10), cfg.MaxRange)
	assert.Equal(t, "ws://127.0.0.1:8545", cfg.RPCURL, "preset fills what the file left out")
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: dev\nlock_id: 1\n"), 0644))

	t.Setenv("REVWATCH_LOCK_ID", "99")
	t.Setenv("REVWATCH_RPC_URL", "https://rpc.example.org")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(99), cfg.LockID)
	assert.Equal(t, "https://rpc.example.org", cfg.RPCURL)
	assert.False(t, cfg.IsWebsocketRPC())
}

func TestEnvParseFailure(t *testing.T) {
	t.Setenv("REVWATCH_START_BLOCK", "not-a-number")

	_, err := config.Load("")
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	base := func() *config.Config {
		cfg := config.Default()
		cfg.Network = "dev"
		cfg.RPCURL = "ws://127.0.0.1:8545"
		cfg.ContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
		cfg.StartBlock = 1
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing rpc url", func(c *config.Config) { c.RPCURL = "" }},
		{"bad rpc scheme", func(c *config.Config) { c.RPCURL = "ftp://example.org" }},
		{"missing contract", func(c *config.Config) { c.ContractAddress = "" }},
		{"malformed contract", func(c *config.Config) { c.ContractAddress = "0xnothex" }},
		{"zero scan interval", func(c *config.Config) { c.ScanIntervalMinutes = 0 }},
		{"zero batch size", func(c *config.Config) { c.BatchSize = 0 }},
		{"oversized batch", func(c *config.Config) { c.BatchSize = 10001 }},
		{"zero start block", func(c *config.Config) { c.StartBlock = 0 }},
		{"missing db path", func(c *config.Config) { c.DBPath = "" }},
	}

	require.NoError(t, base().Validate(), "baseline must be valid")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrazakos/revwatch/internal/types"
)

// Config holds all runtime configuration for revwatch.
// Values are resolved in order: defaults, network preset, YAML file,
// REVWATCH_* environment overrides.
type Config struct {
	Network         string `yaml:"network"`
	RPCURL          string `yaml:"rpc_url"`
	ContractAddress string `yaml:"contract_address"`
	LockID          uint64 `yaml:"lock_id"`
	StartBlock      uint64 `yaml:"start_block"`

	ScanIntervalMinutes int    `yaml:"scan_interval_minutes"`
	BatchSize           uint64 `yaml:"batch_size"`
	MaxRange            uint64 `yaml:"max_range"` // provider hard cap, 0 = unknown

	DBPath     string `yaml:"db_path"`
	ListenAddr string `yaml:"listen_addr"`

	ArchiveDir       string `yaml:"archive_dir"`
	ArchiveAfterDays int    `yaml:"archive_after_days"` // 0 disables archival
}

// NetworkPreset is the (rpc, contract, start block) triple selected by the
// network name. Explicit config values always win over the preset.
type NetworkPreset struct {
	RPCURL          string
	ContractAddress string
	StartBlock      uint64
}

var networkPresets = map[string]NetworkPreset{
	"mainnet": {
		RPCURL:          "wss://ethereum-rpc.publicnode.com",
		ContractAddress: "0x6f35C294E8F1a2a1A417C0c6a1bDF2D9E7302e7C",
		StartBlock:      19000000,
	},
	"sepolia": {
		RPCURL:          "wss://ethereum-sepolia-rpc.publicnode.com",
		ContractAddress: "0x2f0Bdd9e1C8e1b1A1c1d8a58e0A4B6c9D3E5F7a1",
		StartBlock:      5000000,
	},
	"dev": {
		RPCURL:          "ws://127.0.0.1:8545",
		ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		StartBlock:      1,
	},
}

// Default returns a config with defaults applied (no network resolved)
func Default() *Config {
	return &Config{
		Network:             "sepolia",
		ScanIntervalMinutes: types.DEFAULT_SCAN_INTERVAL_MIN,
		BatchSize:           types.DEFAULT_BATCH_SIZE,
		DBPath:              "revwatch.db",
		ListenAddr:          ":8080",
		ArchiveDir:          "audit_archive",
		ArchiveAfterDays:    0,
	}
}

// Load builds the effective configuration. path may be empty (no file).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyPreset()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyPreset fills rpc/contract/start-block from the network preset when
// they were not set explicitly
func (c *Config) applyPreset() {
	preset, ok := networkPresets[strings.ToLower(c.Network)]
	if !ok {
		return
	}
	if c.RPCURL == "" {
		c.RPCURL = preset.RPCURL
	}
	if c.ContractAddress == "" {
		c.ContractAddress = preset.ContractAddress
	}
	if c.StartBlock == 0 {
		c.StartBlock = preset.StartBlock
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("REVWATCH_NETWORK"); v != "" {
		c.Network = v
	}
	if v := os.Getenv("REVWATCH_RPC_URL"); v != "" {
		c.RPCURL = v
	}
	if v := os.Getenv("REVWATCH_CONTRACT_ADDRESS"); v != "" {
		c.ContractAddress = v
	}
	if v := os.Getenv("REVWATCH_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("REVWATCH_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("REVWATCH_ARCHIVE_DIR"); v != "" {
		c.ArchiveDir = v
	}

	uintVars := []struct {
		name string
		dst  *uint64
	}{
		{"REVWATCH_LOCK_ID", &c.LockID},
		{"REVWATCH_START_BLOCK", &c.StartBlock},
		{"REVWATCH_BATCH_SIZE", &c.BatchSize},
		{"REVWATCH_MAX_RANGE", &c.MaxRange},
	}
	for _, uv := range uintVars {
		v := os.Getenv(uv.name)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", uv.name, v)
		}
		*uv.dst = parsed
	}

	intVars := []struct {
		name string
		dst  *int
	}{
		{"REVWATCH_SCAN_INTERVAL_MINUTES", &c.ScanIntervalMinutes},
		{"REVWATCH_ARCHIVE_AFTER_DAYS", &c.ArchiveAfterDays},
	}
	for _, iv := range intVars {
		v := os.Getenv(iv.name)
		if v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", iv.name, v)
		}
		*iv.dst = parsed
	}

	return nil
}

// Validate checks the fatal-at-startup constraints
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc_url is required (unknown network %q and no explicit URL)", c.Network)
	}
	if !c.IsWebsocketRPC() && !strings.HasPrefix(c.RPCURL, "http://") && !strings.HasPrefix(c.RPCURL, "https://") {
		return fmt.Errorf("rpc_url must be ws(s):// or http(s)://, got %q", c.RPCURL)
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("contract_address is required")
	}
	if !isHexAddress(c.ContractAddress) {
		return fmt.Errorf("contract_address %q is not a valid 0x address", c.ContractAddress)
	}
	if c.ScanIntervalMinutes < 1 {
		return fmt.Errorf("scan_interval_minutes must be >= 1, got %d", c.ScanIntervalMinutes)
	}
	if c.BatchSize < 1 || c.BatchSize > types.MAX_BATCH_SIZE {
		return fmt.Errorf("batch_size must be in [1, %d], got %d", types.MAX_BATCH_SIZE, c.BatchSize)
	}
	if c.StartBlock == 0 {
		return fmt.Errorf("start_block is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	return nil
}

// IsWebsocketRPC reports whether the endpoint supports push subscriptions
func (c *Config) IsWebsocketRPC() bool {
	return strings.HasPrefix(c.RPCURL, "ws://") || strings.HasPrefix(c.RPCURL, "wss://")
}

// ScanInterval returns the periodic scan interval as a duration
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalMinutes) * time.Minute
}

// ArchiveAfter returns the audit retention period, 0 when archival is off
func (c *Config) ArchiveAfter() time.Duration {
	return time.Duration(c.ArchiveAfterDays) * 24 * time.Hour
}

func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

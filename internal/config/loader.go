package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// LoadFile reads and parses a TOML config file, applies environment
// variable overrides, and validates the result.
// Config precedence: Environment variables → File → Defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse TOML: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load returns the defaults with environment overrides applied, for runs
// without a config file.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies POLKADOT_* environment variable overrides.
// Env var format: POLKADOT_<SECTION>_<FIELD> (e.g. POLKADOT_STORAGE_DB_PATH).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POLKADOT_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ChainID = n
		}
	}

	// Execution.
	if v := os.Getenv("POLKADOT_EXECUTION_WASM_PATH"); v != "" {
		cfg.Execution.WASMPath = v
	}
	if v := os.Getenv("POLKADOT_EXECUTION_MAX_HEAP_PAGES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Execution.MaxHeapPages = uint32(n)
		}
	}

	// Storage.
	if v := os.Getenv("POLKADOT_STORAGE_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}

	// Telemetry.
	if v := os.Getenv("POLKADOT_TELEMETRY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.Enabled = b
		}
	}
	if v := os.Getenv("POLKADOT_TELEMETRY_ADDR"); v != "" {
		cfg.Telemetry.Addr = v
	}
	if v := os.Getenv("POLKADOT_TELEMETRY_LOG_MODE"); v != "" {
		cfg.Telemetry.LogMode = v
	}
}

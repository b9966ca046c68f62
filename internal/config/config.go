package config

import (
	"errors"
	"fmt"
)

// Config is the full node configuration.
type Config struct {
	ChainID uint64 `toml:"chain_id"`

	Execution ExecutionConfig `toml:"execution"`
	Storage   StorageConfig   `toml:"storage"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ExecutionConfig holds execution host parameters.
type ExecutionConfig struct {
	WASMPath     string `toml:"wasm_path"`
	MaxHeapPages uint32 `toml:"max_heap_pages"`
}

// StorageConfig holds state storage parameters.
type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

// TelemetryConfig holds observability parameters.
type TelemetryConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	LogMode string `toml:"log_mode"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ChainID: 42,
		Execution: ExecutionConfig{
			MaxHeapPages: 8,
		},
		Storage: StorageConfig{
			DBPath: "data/state",
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			Addr:    "localhost:9615",
			LogMode: "production",
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Execution.MaxHeapPages == 0 {
		return errors.New("config: execution.max_heap_pages must be positive")
	}
	if c.Storage.DBPath == "" {
		return errors.New("config: storage.db_path must be set")
	}
	switch c.Telemetry.LogMode {
	case "development", "dev", "production", "prod":
	default:
		return fmt.Errorf("config: unknown telemetry.log_mode %q", c.Telemetry.LogMode)
	}
	return nil
}

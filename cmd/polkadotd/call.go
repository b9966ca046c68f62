package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Pierozi/polkadot/internal/config"
	"github.com/Pierozi/polkadot/internal/executor"
	"github.com/Pierozi/polkadot/internal/state"
	"github.com/Pierozi/polkadot/internal/telemetry"
)

func newCallCmd() *cobra.Command {
	var (
		cfgPath  string
		wasmPath string
		method   string
		dataArg  string
		dev      bool
	)

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Invoke a runtime export with a payload",
		Long: "Load a runtime Wasm module, open the state store, invoke the " +
			"named export with the given payload, and print the hex result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if wasmPath == "" {
				wasmPath = cfg.Execution.WASMPath
			}
			if wasmPath == "" {
				return fmt.Errorf("no runtime module: pass --wasm or set execution.wasm_path")
			}

			logger, err := telemetry.NewLogger(cfg.Telemetry.LogMode)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			code, err := os.ReadFile(wasmPath)
			if err != nil {
				return fmt.Errorf("read runtime module: %w", err)
			}

			payload, err := decodeData(dataArg)
			if err != nil {
				return err
			}

			ext, cleanup, err := openState(cfg, dev)
			if err != nil {
				return err
			}
			defer cleanup()

			exec := executor.New(cfg.Execution.MaxHeapPages, logger)
			if cfg.Telemetry.Enabled {
				metrics := telemetry.NewMetrics("polkadot")
				exec.SetMetrics(metrics)
				go serveMetrics(cfg.Telemetry.Addr, metrics, logger)
			}

			out, err := exec.Call(ext, code, method, payload)
			if err != nil {
				return fmt.Errorf("call %s: %w", method, err)
			}

			fmt.Printf("0x%s\n", hex.EncodeToString(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "path to TOML config file")
	cmd.Flags().StringVar(&wasmPath, "wasm", "", "path to the runtime Wasm module")
	cmd.Flags().StringVar(&method, "method", "", "export to invoke")
	cmd.Flags().StringVar(&dataArg, "data", "", "payload, hex (0x-prefixed) or @file")
	cmd.Flags().BoolVar(&dev, "dev", false, "use an in-memory state store")
	_ = cmd.MarkFlagRequired("method")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func decodeData(arg string) ([]byte, error) {
	switch {
	case arg == "":
		return nil, nil
	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		return data, nil
	case strings.HasPrefix(arg, "0x"):
		data, err := hex.DecodeString(arg[2:])
		if err != nil {
			return nil, fmt.Errorf("decode payload hex: %w", err)
		}
		return data, nil
	default:
		return []byte(arg), nil
	}
}

func openState(cfg *config.Config, dev bool) (state.Externalities, func(), error) {
	if dev {
		return state.NewMemory(cfg.ChainID), func() {}, nil
	}
	store, err := state.OpenPebble(cfg.Storage.DBPath, cfg.ChainID)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func serveMetrics(addr string, metrics *telemetry.Metrics, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}

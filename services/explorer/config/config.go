// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads explorer configuration from YAML with
// environment overrides.
//
// Resolution order: explicit path, ./explorer.yaml, then
// ~/.opensvm/explorer.yaml (created with defaults on first run).
// Values are layered defaults -> file -> environment, then validated.
// Load returns an instance; nothing in this package is a mutable
// global, so tests and the reload watcher can hold independent
// configurations.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openSVM/opensvm-sub007/services/explorer/focus"
	"github.com/openSVM/opensvm-sub007/services/explorer/graph"
	"github.com/openSVM/opensvm-sub007/services/explorer/source"
	"github.com/openSVM/opensvm-sub007/services/explorer/state"
)

// FileName is the config file looked up in the working directory and
// under the home config dir.
const FileName = "explorer.yaml"

// homeDirName is the per-user config directory under $HOME.
const homeDirName = ".opensvm"

// validate is the shared validator instance for config structs.
var validate = validator.New()

// Duration wraps time.Duration so YAML accepts the human form ("30s",
// "7d" is not valid Go syntax - use "168h") as well as integer
// nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var nanos int64
	if err := value.Decode(&nanos); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	*d = Duration(nanos)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full explorer configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RPC       RPCConfig       `yaml:"rpc"`
	Graph     GraphConfig     `yaml:"graph"`
	State     StateConfig     `yaml:"state"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host          string   `yaml:"host"`
	Port          int      `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout   Duration `yaml:"read_timeout"`
	WriteTimeout  Duration `yaml:"write_timeout"`
	ShutdownGrace Duration `yaml:"shutdown_grace"`
}

// RPCConfig configures the chain data source.
type RPCConfig struct {
	Endpoint          string   `yaml:"endpoint" validate:"required,url"`
	RequestsPerSecond float64  `yaml:"requests_per_second" validate:"gt=0"`
	Burst             int      `yaml:"burst" validate:"min=1"`
	CacheCapacity     int      `yaml:"cache_capacity" validate:"min=0"`
	CacheTTL          Duration `yaml:"cache_ttl"`
}

// GraphConfig configures expansion bounds.
type GraphConfig struct {
	MaxDepth      int      `yaml:"max_depth" validate:"min=1,max=32"`
	FetchLimit    int      `yaml:"fetch_limit" validate:"min=1,max=1000"`
	EagerDepth    int      `yaml:"eager_depth" validate:"min=0"`
	WorkerCount   int      `yaml:"worker_count" validate:"min=1,max=64"`
	MaxNodes      int      `yaml:"max_nodes" validate:"min=1"`
	MaxEdges      int      `yaml:"max_edges" validate:"min=1"`
	FocusDebounce Duration `yaml:"focus_debounce"`
}

// StateConfig configures the exploration-state store.
type StateConfig struct {
	Storage           string   `yaml:"storage" validate:"oneof=badger memory"`
	DataDir           string   `yaml:"data_dir"`
	MaxEntries        int      `yaml:"max_entries" validate:"min=1"`
	MemoryBudgetBytes int64    `yaml:"memory_budget_bytes" validate:"min=1"`
	MaxValueBytes     int64    `yaml:"max_value_bytes" validate:"min=1"`
	DurableQuotaBytes int64    `yaml:"durable_quota_bytes" validate:"min=0"`
	Retention         Duration `yaml:"retention" validate:"min=0"`
	AutoSaveInterval  Duration `yaml:"autosave_interval"`
	AutoSaveNodeDelta int      `yaml:"autosave_node_delta" validate:"min=0"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig configures tracing and metrics export.
type TelemetryConfig struct {
	Exporter    string  `yaml:"exporter" validate:"omitempty,oneof=prometheus stdout otlp none"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio" validate:"min=0,max=1"`
}

// DefaultConfig returns the configuration used when no file or
// override supplies a value. Limits mirror the package defaults they
// configure.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			ReadTimeout:   Duration(15 * time.Second),
			WriteTimeout:  Duration(30 * time.Second),
			ShutdownGrace: Duration(10 * time.Second),
		},
		RPC: RPCConfig{
			Endpoint:          "https://api.mainnet-beta.solana.com",
			RequestsPerSecond: source.DefaultRequestsPerSecond,
			Burst:             source.DefaultBurst,
			CacheCapacity:     source.DefaultCacheCapacity,
			CacheTTL:          Duration(source.DefaultCacheTTL),
		},
		Graph: GraphConfig{
			MaxDepth:      graph.DefaultMaxDepth,
			FetchLimit:    graph.DefaultFetchLimit,
			EagerDepth:    graph.DefaultEagerDepth,
			WorkerCount:   graph.DefaultWorkerCount,
			MaxNodes:      graph.DefaultMaxNodes,
			MaxEdges:      graph.DefaultMaxEdges,
			FocusDebounce: Duration(focus.DefaultDebounce),
		},
		State: StateConfig{
			Storage:           "badger",
			DataDir:           defaultDataDir(),
			MaxEntries:        state.DefaultMaxMemoryEntries,
			MemoryBudgetBytes: state.DefaultMemoryBudgetBytes,
			MaxValueBytes:     state.DefaultMaxValueBytes,
			DurableQuotaBytes: 0,
			Retention:         Duration(state.DefaultRetention),
			AutoSaveInterval:  Duration(state.DefaultAutoSaveInterval),
			AutoSaveNodeDelta: state.DefaultAutoSaveNodeDelta,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Exporter:    "prometheus",
			SampleRatio: 1,
		},
	}
}

// defaultDataDir returns the durable-tier location under the user's
// home, falling back to a relative directory when home is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "explorer-data"
	}
	return filepath.Join(home, homeDirName, "explorer")
}

// Load reads, overlays, and validates the configuration.
//
// Description:
//
//	An explicit path must exist. An empty path falls back to
//	./explorer.yaml, then ~/.opensvm/explorer.yaml - written with
//	defaults on first run. File values overlay DefaultConfig;
//	EXPLORER_* environment variables overlay the file.
//
// Inputs:
//
//	path - Config file path, or empty for the default lookup.
//
// Outputs:
//
//	*Config - Validated configuration.
//	error - Non-nil on unreadable file, malformed YAML, or validation
//	failure.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", resolved, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", resolved, err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePath picks the config file to read, creating the home-dir
// default on first run when no file exists anywhere.
func resolvePath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file %s: %w", path, err)
		}
		return path, nil
	}

	if _, err := os.Stat(FileName); err == nil {
		return FileName, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	homePath := filepath.Join(home, homeDirName, FileName)
	if _, err := os.Stat(homePath); os.IsNotExist(err) {
		slog.Info("first run, writing default config", "path", homePath)
		if err := writeDefault(homePath); err != nil {
			return "", err
		}
	}
	return homePath, nil
}

// writeDefault writes DefaultConfig to path, creating parent
// directories.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if c.Graph.EagerDepth > c.Graph.MaxDepth {
		return fmt.Errorf("config validation: graph.eager_depth %d exceeds graph.max_depth %d",
			c.Graph.EagerDepth, c.Graph.MaxDepth)
	}
	if c.Telemetry.Exporter == "otlp" && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("config validation: telemetry.endpoint required for the otlp exporter")
	}
	return nil
}

// applyEnv overlays EXPLORER_* environment variables. Malformed values
// log a warning and keep the prior value.
func applyEnv(cfg *Config) {
	envString("EXPLORER_SERVER_HOST", &cfg.Server.Host)
	envInt("EXPLORER_SERVER_PORT", &cfg.Server.Port)
	envString("EXPLORER_RPC_ENDPOINT", &cfg.RPC.Endpoint)
	envFloat("EXPLORER_RPC_RATE_LIMIT", &cfg.RPC.RequestsPerSecond)
	envInt("EXPLORER_GRAPH_MAX_DEPTH", &cfg.Graph.MaxDepth)
	envInt("EXPLORER_GRAPH_FETCH_LIMIT", &cfg.Graph.FetchLimit)
	envString("EXPLORER_STATE_STORAGE", &cfg.State.Storage)
	envString("EXPLORER_STATE_DATA_DIR", &cfg.State.DataDir)
	envString("EXPLORER_LOG_LEVEL", &cfg.Logging.Level)
	envBool("EXPLORER_LOG_JSON", &cfg.Logging.JSON)
	envString("EXPLORER_TELEMETRY_EXPORTER", &cfg.Telemetry.Exporter)
	envString("EXPLORER_TELEMETRY_ENDPOINT", &cfg.Telemetry.Endpoint)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring malformed environment override", "key", key, "value", v, "error", err)
		return
	}
	*dst = n
}

func envFloat(key string, dst *float64) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring malformed environment override", "key", key, "value", v, "error", err)
		return
	}
	*dst = f
}

func envBool(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring malformed environment override", "key", key, "value", v, "error", err)
		return
	}
	*dst = b
}

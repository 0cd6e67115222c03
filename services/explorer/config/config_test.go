// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// writeConfig writes content to a config file under dir and returns
// the path.
func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestDefaultConfigValid verifies the shipped defaults pass their own
// validation.
func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 7, cfg.Graph.MaxDepth)
	assert.Equal(t, 10, cfg.Graph.FetchLimit)
	assert.Equal(t, 2, cfg.Graph.EagerDepth)
	assert.Equal(t, 300*time.Millisecond, cfg.Graph.FocusDebounce.Std())
	assert.Equal(t, 7*24*time.Hour, cfg.State.Retention.Std())
	assert.Equal(t, "badger", cfg.State.Storage)
	assert.Equal(t, "prometheus", cfg.Telemetry.Exporter)
}

// TestLoadOverlaysFile verifies file values override defaults while
// unmentioned fields keep theirs.
func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  port: 9090
graph:
  max_depth: 5
state:
  retention: 72h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset field keeps default")
	assert.Equal(t, 5, cfg.Graph.MaxDepth)
	assert.Equal(t, 10, cfg.Graph.FetchLimit, "unset field keeps default")
	assert.Equal(t, 72*time.Hour, cfg.State.Retention.Std())
	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.RPC.Endpoint)
}

// TestLoadMissingExplicitPath verifies a named config file that does
// not exist is an error, not a silent fallback.
func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// TestLoadRejectsMalformedYAML verifies parse failures surface.
func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "server: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

// TestEnvOverrides verifies EXPLORER_* variables overlay file values
// and malformed ones are ignored with the prior value kept.
func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "server:\n  port: 9090\n")

	t.Setenv("EXPLORER_SERVER_PORT", "7777")
	t.Setenv("EXPLORER_RPC_ENDPOINT", "https://rpc.example.com")
	t.Setenv("EXPLORER_LOG_JSON", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port, "environment beats file")
	assert.Equal(t, "https://rpc.example.com", cfg.RPC.Endpoint)
	assert.True(t, cfg.Logging.JSON)

	t.Run("MalformedIgnored", func(t *testing.T) {
		t.Setenv("EXPLORER_SERVER_PORT", "not-a-number")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port, "file value survives a bad override")
	})
}

// TestValidateRejects verifies field and cross-field constraint
// violations fail validation.
func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"PortZero", func(c *Config) { c.Server.Port = 0 }},
		{"EagerExceedsMax", func(c *Config) { c.Graph.EagerDepth = 8; c.Graph.MaxDepth = 7 }},
		{"OTLPWithoutEndpoint", func(c *Config) { c.Telemetry.Exporter = "otlp"; c.Telemetry.Endpoint = "" }},
		{"UnknownExporter", func(c *Config) { c.Telemetry.Exporter = "statsd" }},
		{"UnknownLogLevel", func(c *Config) { c.Logging.Level = "trace" }},
		{"EndpointNotURL", func(c *Config) { c.RPC.Endpoint = "mainnet.solana" }},
		{"ZeroRateLimit", func(c *Config) { c.RPC.RequestsPerSecond = 0 }},
		{"UnknownStorage", func(c *Config) { c.State.Storage = "redis" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// TestDurationYAML verifies the Duration wrapper accepts the human
// string form and integer nanoseconds, and round-trips through
// marshaling.
func TestDurationYAML(t *testing.T) {
	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte("30s"), &d))
	assert.Equal(t, 30*time.Second, d.Std())

	t.Run("IntegerNanos", func(t *testing.T) {
		var d Duration
		require.NoError(t, yaml.Unmarshal([]byte("1500000000"), &d))
		assert.Equal(t, 1500*time.Millisecond, d.Std())
	})

	t.Run("Invalid", func(t *testing.T) {
		var d Duration
		assert.Error(t, yaml.Unmarshal([]byte("banana"), &d))
	})

	t.Run("Marshal", func(t *testing.T) {
		out, err := yaml.Marshal(Duration(90 * time.Second))
		require.NoError(t, err)
		assert.Equal(t, "1m30s\n", string(out))
	})
}

// TestWatcherReload verifies file changes deliver a reloaded config and
// invalid intermediate contents keep the previous one.
func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "server:\n  port: 8081\n")

	got := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { got <- c }, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	time.Sleep(100 * time.Millisecond) // let the watch register

	writeConfig(t, dir, "server:\n  port: 9191\n")

	select {
	case cfg := <-got:
		assert.Equal(t, 9191, cfg.Server.Port)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}

	t.Run("InvalidKeepsPrevious", func(t *testing.T) {
		writeConfig(t, dir, "server: [broken")

		select {
		case cfg := <-got:
			t.Fatalf("unexpected reload with port %d", cfg.Server.Port)
		case <-time.After(600 * time.Millisecond):
		}

		writeConfig(t, dir, "server:\n  port: 9292\n")
		select {
		case cfg := <-got:
			assert.Equal(t, 9292, cfg.Server.Port, "watcher must survive a bad intermediate file")
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for recovery reload")
		}
	})
}

// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openSVM/opensvm-sub007/services/explorer/storage"
)

// TestOpenInMemory verifies in-memory store creation and round-trip.
func TestOpenInMemory(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key", []byte("value")))

	value, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)
}

// TestOpenWithPath verifies data and footprint survive a close/reopen cycle.
func TestOpenWithPath(t *testing.T) {
	dir, err := TempDir("explorer-badger-test-")
	require.NoError(t, err)
	defer CleanupDir(dir)
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.SyncWrites = false
	cfg.GCInterval = 0

	store, err := Open(cfg)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "persistent-key", []byte("persistent-value")))
	usedBefore := store.UsedBytes()
	require.NoError(t, store.Close())

	store2, err := Open(cfg)
	require.NoError(t, err)
	defer store2.Close()

	value, err := store2.Get(ctx, "persistent-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("persistent-value"), value)

	// Footprint recomputed from the reopened database matches.
	assert.Equal(t, usedBefore, store2.UsedBytes())
}

// TestOpenRequiresPath verifies that persistent mode requires a path.
func TestOpenRequiresPath(t *testing.T) {
	cfg := Config{
		InMemory: false,
		Path:     "", // Missing path
	}
	_, err := Open(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

// TestConfigFunctions verifies default configurations.
func TestConfigFunctions(t *testing.T) {
	t.Run("DefaultConfig has SyncWrites", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.True(t, cfg.SyncWrites)
		assert.False(t, cfg.InMemory)
		assert.Equal(t, 1, cfg.NumVersionsToKeep)
		assert.Equal(t, 5*time.Minute, cfg.GCInterval)
		assert.Equal(t, int64(0), cfg.QuotaBytes)
	})

	t.Run("InMemoryConfig has InMemory", func(t *testing.T) {
		cfg := InMemoryConfig()
		assert.True(t, cfg.InMemory)
		assert.False(t, cfg.SyncWrites)
		assert.Equal(t, time.Duration(0), cfg.GCInterval) // GC disabled
	})
}

// TestStore_GetMissing verifies absent keys map to storage.ErrKeyNotFound.
func TestStore_GetMissing(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(context.Background(), "absent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrKeyNotFound))
}

// TestStore_QuotaExceeded verifies over-quota writes are rejected before
// touching the database.
func TestStore_QuotaExceeded(t *testing.T) {
	cfg := InMemoryConfig()
	cfg.QuotaBytes = 20
	store, err := Open(cfg)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("0123456789"))) // 11 bytes

	err = store.Set(ctx, "b", []byte("0123456789")) // would be 22
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrQuotaExceeded))

	// Rejected write left nothing behind.
	_, err = store.Get(ctx, "b")
	assert.True(t, errors.Is(err, storage.ErrKeyNotFound))
	assert.Equal(t, int64(11), store.UsedBytes())
}

// TestStore_QuotaAllowsShrinkingOverwrite verifies replacing a value with a
// smaller one succeeds at the quota boundary.
func TestStore_QuotaAllowsShrinkingOverwrite(t *testing.T) {
	cfg := InMemoryConfig()
	cfg.QuotaBytes = 11
	store, err := Open(cfg)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("0123456789"))) // exactly 11
	require.NoError(t, store.Set(ctx, "a", []byte("01")))
	assert.Equal(t, int64(3), store.UsedBytes())
}

// TestStore_DeleteReclaimsQuota verifies deletes free tracked bytes.
func TestStore_DeleteReclaimsQuota(t *testing.T) {
	cfg := InMemoryConfig()
	cfg.QuotaBytes = 20
	store, err := Open(cfg)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("0123456789")))
	require.NoError(t, store.Delete(ctx, "a"))
	assert.Equal(t, int64(0), store.UsedBytes())

	// Freed quota is usable again.
	require.NoError(t, store.Set(ctx, "b", []byte("0123456789")))

	// Deleting an absent key is a no-op.
	assert.NoError(t, store.Delete(ctx, "never-existed"))
}

// TestStore_KeysPrefix verifies prefix enumeration and Len.
func TestStore_KeysPrefix(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "graphState-sig1", []byte("a")))
	require.NoError(t, store.Set(ctx, "graphState-sig2", []byte("b")))
	require.NoError(t, store.Set(ctx, "session-x", []byte("c")))

	keys, err := store.Keys(ctx, "graphState-")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"graphState-sig1", "graphState-sig2"}, keys)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

// TestStore_ContextCancelled verifies cancelled contexts short-circuit.
func TestStore_ContextCancelled(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, store.Set(ctx, "k", []byte("v")))
}

// TestGCRunner_Validation verifies constructor input checks.
func TestGCRunner_Validation(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	_, err = NewGCRunner(nil, time.Minute, 0.5, nil)
	assert.Error(t, err)

	_, err = NewGCRunner(store.db, 0, 0.5, nil)
	assert.Error(t, err)

	_, err = NewGCRunner(store.db, time.Minute, 1.5, nil)
	assert.Error(t, err)
}

// TestGCRunner_StartStop verifies the runner can be started and stopped.
func TestGCRunner_StartStop(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	runner, err := NewGCRunner(store.db, 10*time.Millisecond, 0.5, nil)
	require.NoError(t, err)

	runner.Start()
	time.Sleep(30 * time.Millisecond)
	runner.Stop() // must not hang
}

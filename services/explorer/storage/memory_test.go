// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryKV_SetGet verifies basic round-trip behavior.
func TestMemoryKV_SetGet(t *testing.T) {
	kv := NewMemoryKV(0)
	defer kv.Close()
	ctx := context.Background()

	err := kv.Set(ctx, "graphState-sig1", []byte(`{"focused":"sig1"}`))
	require.NoError(t, err)

	value, err := kv.Get(ctx, "graphState-sig1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"focused":"sig1"}`), value)
}

// TestMemoryKV_GetMissing verifies absent keys return ErrKeyNotFound.
func TestMemoryKV_GetMissing(t *testing.T) {
	kv := NewMemoryKV(0)
	defer kv.Close()

	_, err := kv.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyNotFound))
}

// TestMemoryKV_GetReturnsCopy verifies callers can't mutate stored bytes.
func TestMemoryKV_GetReturnsCopy(t *testing.T) {
	kv := NewMemoryKV(0)
	defer kv.Close()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", []byte("original")))

	v1, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	v1[0] = 'X'

	v2, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), v2)
}

// TestMemoryKV_Overwrite verifies Set replaces prior values and adjusts usage.
func TestMemoryKV_Overwrite(t *testing.T) {
	kv := NewMemoryKV(0)
	defer kv.Close()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", []byte("aaaaaaaaaa"))) // 1 + 10
	assert.Equal(t, int64(11), kv.UsedBytes())

	require.NoError(t, kv.Set(ctx, "k", []byte("bb"))) // 1 + 2
	assert.Equal(t, int64(3), kv.UsedBytes())

	value, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("bb"), value)
}

// TestMemoryKV_QuotaExceeded verifies writes past the quota are rejected
// with the sentinel and leave prior values intact.
func TestMemoryKV_QuotaExceeded(t *testing.T) {
	kv := NewMemoryKV(20)
	defer kv.Close()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "a", []byte("0123456789"))) // 11 bytes

	err := kv.Set(ctx, "b", []byte("0123456789")) // would be 22 total
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	// Prior entry untouched, rejected entry absent.
	_, err = kv.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = kv.Get(ctx, "b")
	assert.True(t, errors.Is(err, ErrKeyNotFound))
	assert.Equal(t, int64(11), kv.UsedBytes())
}

// TestMemoryKV_QuotaAllowsShrinkingOverwrite verifies replacing a value
// with a smaller one succeeds even at the quota boundary.
func TestMemoryKV_QuotaAllowsShrinkingOverwrite(t *testing.T) {
	kv := NewMemoryKV(11)
	defer kv.Close()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "a", []byte("0123456789"))) // exactly 11

	// Same key, smaller value: must succeed despite being "at quota".
	require.NoError(t, kv.Set(ctx, "a", []byte("01")))
	assert.Equal(t, int64(3), kv.UsedBytes())
}

// TestMemoryKV_Delete verifies deletion reclaims quota and absent keys no-op.
func TestMemoryKV_Delete(t *testing.T) {
	kv := NewMemoryKV(0)
	defer kv.Close()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", []byte("value")))
	require.NoError(t, kv.Delete(ctx, "k"))
	assert.Equal(t, int64(0), kv.UsedBytes())

	_, err := kv.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrKeyNotFound))

	// Deleting again is a no-op.
	assert.NoError(t, kv.Delete(ctx, "k"))
}

// TestMemoryKV_KeysPrefix verifies prefix enumeration.
func TestMemoryKV_KeysPrefix(t *testing.T) {
	kv := NewMemoryKV(0)
	defer kv.Close()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "graphState-sig1", []byte("a")))
	require.NoError(t, kv.Set(ctx, "graphState-sig2", []byte("b")))
	require.NoError(t, kv.Set(ctx, "other", []byte("c")))

	keys, err := kv.Keys(ctx, "graphState-")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"graphState-sig1", "graphState-sig2"}, keys)

	all, err := kv.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// TestMemoryKV_Len verifies the entry count.
func TestMemoryKV_Len(t *testing.T) {
	kv := NewMemoryKV(0)
	defer kv.Close()
	ctx := context.Background()

	n, err := kv.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, kv.Set(ctx, "a", []byte("1")))
	require.NoError(t, kv.Set(ctx, "b", []byte("2")))

	n, err = kv.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// TestMemoryKV_Closed verifies operations after Close return ErrClosed.
func TestMemoryKV_Closed(t *testing.T) {
	kv := NewMemoryKV(0)
	require.NoError(t, kv.Close())
	ctx := context.Background()

	_, err := kv.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(kv.Set(ctx, "k", nil), ErrClosed))
	assert.True(t, errors.Is(kv.Delete(ctx, "k"), ErrClosed))
	_, err = kv.Keys(ctx, "")
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = kv.Len(ctx)
	assert.True(t, errors.Is(err, ErrClosed))
}

// TestMemoryKV_FailWrites verifies the write-failure injection hook.
func TestMemoryKV_FailWrites(t *testing.T) {
	kv := NewMemoryKV(0)
	defer kv.Close()
	ctx := context.Background()

	injected := errors.New("disk on fire")
	kv.FailWrites(injected)

	err := kv.Set(ctx, "k", []byte("v"))
	assert.True(t, errors.Is(err, injected))
	// Injected failures are not quota failures.
	assert.False(t, errors.Is(err, ErrQuotaExceeded))

	kv.FailWrites(nil)
	assert.NoError(t, kv.Set(ctx, "k", []byte("v")))
}

// TestMemoryKV_Concurrent verifies the store under concurrent mixed load.
func TestMemoryKV_Concurrent(t *testing.T) {
	kv := NewMemoryKV(0)
	defer kv.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", n%10)
			_ = kv.Set(ctx, key, []byte("value"))
			_, _ = kv.Get(ctx, key)
			_, _ = kv.Keys(ctx, "key-")
			if n%5 == 0 {
				_ = kv.Delete(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	// Usage accounting must stay consistent with the surviving entries.
	keys, err := kv.Keys(ctx, "")
	require.NoError(t, err)
	var expected int64
	for _, k := range keys {
		v, err := kv.Get(ctx, k)
		require.NoError(t, err)
		expected += int64(len(k) + len(v))
	}
	assert.Equal(t, expected, kv.UsedBytes())
}

// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryKV is an in-process KV implementation with a byte quota.
//
// It backs the ephemeral --storage=memory serving mode and the storage
// tests. Beyond the KV contract it supports injecting write failures so
// tests can exercise the degradation paths of the state store without a
// real broken disk.
//
// # Thread Safety
//
// All methods are safe for concurrent use. A single mutex guards the
// map and the usage counter; operations are short enough that finer
// locking isn't worth the complexity.
type MemoryKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	used   int64
	quota  int64
	closed bool

	// failSet, when non-nil, is returned by every subsequent Set.
	// Test hook for simulating infrastructure write failures.
	failSet error
}

// NewMemoryKV creates an in-memory store with the given byte quota.
//
// Description:
//
//	The quota covers keys and values (len(key) + len(value) per entry).
//	A quota of 0 disables the limit.
//
// Inputs:
//
//	quotaBytes - Maximum total bytes, or 0 for unlimited.
//
// Outputs:
//
//	*MemoryKV - Ready-to-use store.
func NewMemoryKV(quotaBytes int64) *MemoryKV {
	return &MemoryKV{
		data:  make(map[string][]byte),
		quota: quotaBytes,
	}
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	value, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", key, ErrKeyNotFound)
	}
	// Copy so callers can't mutate stored bytes.
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores value under key after checking the byte quota.
//
// Description:
//
//	The quota check accounts for the entry being replaced: overwriting
//	a large value with a smaller one always succeeds. A rejected write
//	leaves the prior value intact.
//
// Outputs:
//
//	error - ErrQuotaExceeded (wrapped) when the write would exceed the
//	quota; any injected failure; nil on success.
func (m *MemoryKV) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.failSet != nil {
		return m.failSet
	}

	var oldSize int64
	if old, ok := m.data[key]; ok {
		oldSize = int64(len(key) + len(old))
	}
	newSize := int64(len(key) + len(value))

	if m.quota > 0 && m.used-oldSize+newSize > m.quota {
		return fmt.Errorf("set %q (%d bytes, %d used, %d quota): %w",
			key, newSize, m.used, m.quota, ErrQuotaExceeded)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	m.used = m.used - oldSize + newSize
	return nil
}

// Delete removes the value stored under key. Absent keys are a no-op.
func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if old, ok := m.data[key]; ok {
		m.used -= int64(len(key) + len(old))
		delete(m.data, key)
	}
	return nil
}

// Keys returns all keys beginning with prefix, in unspecified order.
func (m *MemoryKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Len returns the number of stored keys.
func (m *MemoryKV) Len(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.data), nil
}

// Close marks the store closed. Subsequent operations return ErrClosed.
func (m *MemoryKV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	m.used = 0
	return nil
}

// UsedBytes returns the current storage footprint (keys + values).
func (m *MemoryKV) UsedBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// QuotaBytes returns the configured byte quota, or 0 when unlimited.
func (m *MemoryKV) QuotaBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quota
}

// FailWrites makes every subsequent Set return err. Passing nil
// restores normal behavior. Test hook only.
func (m *MemoryKV) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSet = err
}

// Ensure MemoryKV satisfies the contracts.
var (
	_ KV    = (*MemoryKV)(nil)
	_ Sizer = (*MemoryKV)(nil)
)

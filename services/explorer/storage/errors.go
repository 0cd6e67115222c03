// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage defines the durable key-value contract used by the
// exploration-state cache.
//
// The state store treats durable storage as a constrained, failable
// resource: every write passes an explicit size check, quota exhaustion
// is a distinct condition from other write failures, and callers are
// expected to degrade (skip, fall back to a minimal record, evict old
// entries) rather than propagate storage errors upward.
//
// # Implementations
//
//   - MemoryKV (this package): in-process map with a byte quota and
//     write-failure injection. Used by tests and by the ephemeral
//     --storage=memory serving mode.
//   - badger.Store (storage/badger): BadgerDB-backed persistent store
//     tracking used bytes against a configurable quota.
//
// # Error Contract
//
// Get returns ErrKeyNotFound for absent keys. Set returns
// ErrQuotaExceeded when the write would push the store past its byte
// quota; any other non-nil error is an infrastructure failure. Callers
// branch on errors.Is(err, ErrQuotaExceeded) to trigger eviction and
// fallback behavior, so implementations must wrap rather than replace
// the sentinel.
package storage

import "errors"

// Sentinel errors for durable storage operations.
var (
	// ErrKeyNotFound is returned by Get when the key has no value.
	// Absence is an expected condition, not a failure.
	ErrKeyNotFound = errors.New("key not found")

	// ErrQuotaExceeded is returned by Set when the write would exceed
	// the store's byte quota. Callers use this to distinguish "storage
	// full" from infrastructure failures and react by evicting old
	// entries or writing a smaller record.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrClosed is returned by any operation on a closed store.
	ErrClosed = errors.New("storage is closed")
)

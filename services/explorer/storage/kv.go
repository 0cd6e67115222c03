// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import "context"

// KV is the durable key-value contract the state store persists through.
//
// Keys are opaque strings, values are opaque byte slices. Implementations
// must be safe for concurrent use and must honor the error contract
// documented on the package: ErrKeyNotFound for absent keys,
// ErrQuotaExceeded (wrapped, never replaced) for writes rejected by the
// byte quota.
//
// The interval between Set and a later Get is the only consistency
// window callers rely on: a successful Set must be visible to all
// subsequent Gets until deleted or evicted by the implementation's own
// retention policy.
type KV interface {
	// Get returns the value stored under key.
	//
	// Returns ErrKeyNotFound (possibly wrapped) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any existing value.
	//
	// Implementations check the post-write quota before committing and
	// return ErrQuotaExceeded (possibly wrapped) when the write would
	// exceed it. A rejected write leaves the prior value intact.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the value stored under key.
	//
	// Deleting an absent key is a no-op, not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys beginning with prefix, in unspecified order.
	// An empty prefix enumerates every key.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Len returns the number of stored keys.
	Len(ctx context.Context) (int, error)

	// Close releases resources. Operations after Close return ErrClosed.
	Close() error
}

// Sizer is implemented by stores that track their byte usage.
//
// The state store uses it for pre-write size decisions and for
// telemetry; implementations that cannot track usage simply don't
// implement it.
type Sizer interface {
	// UsedBytes returns the current estimated storage footprint.
	UsedBytes() int64

	// QuotaBytes returns the configured byte quota, or 0 when unlimited.
	QuotaBytes() int64
}

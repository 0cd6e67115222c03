// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package source

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// Default caching decorator configuration values.
const (
	// DefaultCacheCapacity is the default number of cached windows.
	DefaultCacheCapacity = 256

	// DefaultCacheTTL is how long a cached window stays valid. Short by
	// design: account histories grow as new blocks land.
	DefaultCacheTTL = 30 * time.Second
)

// cacheOptions configures CachedSource behavior.
type cacheOptions struct {
	capacity int
	ttl      time.Duration
}

// CacheOption is a functional option for configuring CachedSource.
type CacheOption func(*cacheOptions)

// WithCacheCapacity sets the maximum number of cached windows.
func WithCacheCapacity(n int) CacheOption {
	return func(o *cacheOptions) {
		o.capacity = n
	}
}

// WithCacheTTL sets how long a cached window stays valid.
func WithCacheTTL(d time.Duration) CacheOption {
	return func(o *cacheOptions) {
		o.ttl = d
	}
}

// CachedSource wraps a TransactionSource with an LRU+TTL cache and
// request coalescing.
//
// Description:
//
//	Recursive graph expansion frequently asks for the same account from
//	several goroutines at once (an account touched by many transactions
//	in one batch). CachedSource collapses those into a single upstream
//	call via singleflight and serves repeats from an LRU cache until the
//	TTL lapses. Errors are never cached; a failed branch can be retried
//	immediately.
//
// Thread Safety: safe for concurrent use.
type CachedSource struct {
	upstream TransactionSource
	cache    *lruCache[string, []TransactionInfo]
	flight   singleflight.Group
}

// NewCachedSource wraps upstream with caching and request coalescing.
//
// Example:
//
//	src := NewCachedSource(rpcClient,
//	    WithCacheCapacity(512),
//	    WithCacheTTL(time.Minute),
//	)
func NewCachedSource(upstream TransactionSource, opts ...CacheOption) *CachedSource {
	options := cacheOptions{
		capacity: DefaultCacheCapacity,
		ttl:      DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &CachedSource{
		upstream: upstream,
		cache:    newLRUCache[string, []TransactionInfo](options.capacity, options.ttl),
	}
}

// AccountTransactions returns the account's window, serving repeats from
// cache and coalescing concurrent misses into one upstream call.
//
// Outputs:
//
//	[]TransactionInfo - A defensive copy; callers may mutate freely.
//	error - Upstream error, passed through uncached.
func (s *CachedSource) AccountTransactions(ctx context.Context, address string, limit int) ([]TransactionInfo, error) {
	key := fmt.Sprintf("%s:%d", address, limit)

	if cached, ok := s.cache.Get(key); ok {
		return copyTransactions(cached), nil
	}

	resultI, err, _ := s.flight.Do(key, func() (any, error) {
		// Double-check cache inside singleflight
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}

		txs, err := s.upstream.AccountTransactions(ctx, address, limit)
		if err != nil {
			return nil, err
		}

		s.cache.Set(key, copyTransactions(txs))
		return txs, nil
	})
	if err != nil {
		return nil, err
	}

	txs, ok := resultI.([]TransactionInfo)
	if !ok {
		return nil, fmt.Errorf("unexpected type from singleflight group: got %T", resultI)
	}
	return copyTransactions(txs), nil
}

// Stats returns cache hit/miss counts since creation.
func (s *CachedSource) Stats() (hits, misses int64) {
	return s.cache.Stats()
}

// Interface conformance check.
var _ TransactionSource = (*CachedSource)(nil)

// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package state persists exploration snapshots in a two-tier cache:
// a bounded in-memory tier for fast restore and a durable key-value
// tier that survives restarts.
//
// Per-key lifecycle:
//
//	absent -> in-memory (fresh) -> in-memory (LRU candidate)
//	       -> durable-only -> absent (TTL expiry or deletion)
//
// # Failure Model
//
// No operation on the store returns an error to its caller. Storage
// failures degrade: saves are skipped or downgraded to a minimal
// record, loads report absent, corrupt durable entries are deleted on
// sight. Exploration keeps working with the durable tier offline.
//
// # Thread Safety
//
// The store is safe for concurrent use. The in-memory tier is
// process-wide and shared across exploration sessions, keyed by
// focused-transaction signature.
package state

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openSVM/opensvm-sub007/services/explorer/storage"
)

// Default store configuration values.
const (
	// DefaultMaxMemoryEntries bounds the in-memory tier. Interactive
	// sessions touch a handful of graphs; a small explicit bound beats
	// an effectively unbounded one.
	DefaultMaxMemoryEntries = 100

	// DefaultMemoryBudgetBytes is the nominal memory-tier budget. A
	// single entry may use at most 1% of it, so one oversized snapshot
	// cannot crowd out the rest.
	DefaultMemoryBudgetBytes = 50 << 20

	// DefaultMaxValueBytes is the largest payload written to the
	// durable tier in full; larger snapshots fall back to a minimal
	// record.
	DefaultMaxValueBytes = 5 << 20

	// DefaultRetention is how long durable entries live without being
	// refreshed.
	DefaultRetention = 7 * 24 * time.Hour

	// DefaultAutoSaveInterval is the elapsed time after which AutoSave
	// persists regardless of other heuristics.
	DefaultAutoSaveInterval = 2 * time.Second

	// DefaultAutoSaveNodeDelta is the node-count change that makes
	// AutoSave persist immediately.
	DefaultAutoSaveNodeDelta = 3
)

// memoryEntryGuardDivisor derives the per-entry memory guard from the
// budget: entries over budget/divisor skip the memory tier.
const memoryEntryGuardDivisor = 100

// Durable key layout: the latest-state pointer lives under the bare
// prefix, per-signature records under "{prefix}-{signature}".
const (
	keyPrefix    = "graphState"
	keySeparator = "-"
)

// stateKey returns the durable key for a signature.
func stateKey(signature string) string {
	if signature == "" {
		return keyPrefix
	}
	return keyPrefix + keySeparator + signature
}

// StoreOptions configures Store behavior.
type StoreOptions struct {
	// MaxMemoryEntries bounds the in-memory tier.
	// Default: 100
	MaxMemoryEntries int

	// MemoryBudgetBytes is the nominal memory-tier budget; the
	// per-entry guard is 1% of it.
	MemoryBudgetBytes int64

	// MaxValueBytes is the full-record durable write ceiling.
	// Default: 5MB
	MaxValueBytes int64

	// Retention is the durable-tier TTL.
	// Default: 7 days
	Retention time.Duration

	// AutoSaveInterval is the AutoSave elapsed-time trigger.
	// Default: 2s
	AutoSaveInterval time.Duration

	// AutoSaveNodeDelta is the AutoSave node-count trigger.
	// Default: 3
	AutoSaveNodeDelta int

	// Logger receives degradation diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// DefaultStoreOptions returns sensible defaults.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		MaxMemoryEntries:  DefaultMaxMemoryEntries,
		MemoryBudgetBytes: DefaultMemoryBudgetBytes,
		MaxValueBytes:     DefaultMaxValueBytes,
		Retention:         DefaultRetention,
		AutoSaveInterval:  DefaultAutoSaveInterval,
		AutoSaveNodeDelta: DefaultAutoSaveNodeDelta,
	}
}

// StoreOption is a functional option for configuring Store.
type StoreOption func(*StoreOptions)

// WithMaxMemoryEntries sets the in-memory entry bound.
func WithMaxMemoryEntries(n int) StoreOption {
	return func(o *StoreOptions) {
		o.MaxMemoryEntries = n
	}
}

// WithMemoryBudget sets the nominal memory budget in bytes.
func WithMemoryBudget(bytes int64) StoreOption {
	return func(o *StoreOptions) {
		o.MemoryBudgetBytes = bytes
	}
}

// WithMaxValueBytes sets the full-record durable write ceiling.
func WithMaxValueBytes(bytes int64) StoreOption {
	return func(o *StoreOptions) {
		o.MaxValueBytes = bytes
	}
}

// WithRetention sets the durable-tier TTL.
func WithRetention(d time.Duration) StoreOption {
	return func(o *StoreOptions) {
		o.Retention = d
	}
}

// WithAutoSaveInterval sets the AutoSave elapsed-time trigger.
func WithAutoSaveInterval(d time.Duration) StoreOption {
	return func(o *StoreOptions) {
		o.AutoSaveInterval = d
	}
}

// WithAutoSaveNodeDelta sets the AutoSave node-count trigger.
func WithAutoSaveNodeDelta(n int) StoreOption {
	return func(o *StoreOptions) {
		o.AutoSaveNodeDelta = n
	}
}

// WithStoreLogger sets the logger for degradation diagnostics.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(o *StoreOptions) {
		o.Logger = logger
	}
}

// WithClock overrides the store's clock, for tests.
func WithClock(clock func() time.Time) StoreOption {
	return func(o *StoreOptions) {
		o.Clock = clock
	}
}

// saveMark is AutoSave's per-signature bookkeeping.
type saveMark struct {
	at        time.Time
	nodeCount int
}

// Store is the two-tier exploration-state cache.
//
// Construct instances through New so tests can inject fresh stores; a
// process-wide instance is owned by the server, never by package-level
// mutation.
type Store struct {
	options StoreOptions
	kv      storage.KV
	logger  *slog.Logger
	now     func() time.Time

	// flight deduplicates concurrent durable reads per signature.
	flight singleflight.Group

	mu          sync.Mutex
	memory      map[string]*EnhancedGraphState
	lastSave    map[string]saveMark
	lastFocused string
}

// New creates a Store over the given durable tier.
//
// Inputs:
//
//	kv - Durable tier. May be nil for memory-only operation; every
//	durable interaction then degrades silently.
//	opts - Optional configuration.
func New(kv storage.KV, opts ...StoreOption) *Store {
	options := DefaultStoreOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.MaxMemoryEntries <= 0 {
		options.MaxMemoryEntries = DefaultMaxMemoryEntries
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Clock == nil {
		options.Clock = time.Now
	}

	return &Store{
		options:  options,
		kv:       kv,
		logger:   options.Logger,
		now:      options.Clock,
		memory:   make(map[string]*EnhancedGraphState),
		lastSave: make(map[string]saveMark),
	}
}

// SaveState persists a snapshot under the signature key.
//
// Description:
//
//	Invalid snapshots (empty focus, nil nodes or edges) are rejected
//	with a warning and no effect. Otherwise the snapshot is merged over
//	any prior state for the key - exploration bookkeeping is unioned,
//	never discarded - and written to both tiers. The memory tier is
//	skipped for entries over 1% of the memory budget. The durable tier
//	receives the full record when it fits, or a minimal fallback record
//	(focus, viewport, timestamp) when the payload is oversized; on a
//	quota-exceeded write the store first evicts durable entries past
//	retention and then retries with the minimal record once.
//
// Inputs:
//
//	ctx - Context for durable-tier calls.
//	snapshot - The state to persist.
//	signature - Key override. Empty uses snapshot.FocusedTransaction.
//
// Thread Safety: safe for concurrent use; concurrent saves for one key
// apply last-writer-wins over independently merged snapshots.
func (s *Store) SaveState(ctx context.Context, snapshot *EnhancedGraphState, signature string) {
	ctx, span := startSaveSpan(ctx, signature)
	defer span.End()
	start := time.Now()

	if err := validForSave(snapshot); err != nil {
		s.logger.Warn("rejecting invalid graph state", "signature", signature, "reason", err)
		recordSaveMetrics(ctx, time.Since(start), saveOutcomeRejected)
		return
	}
	sig := signature
	if sig == "" {
		sig = snapshot.FocusedTransaction
	}

	prior := s.LoadState(ctx, sig)
	merged := mergeStates(prior, snapshot)

	now := s.now()
	if merged.Timestamp.IsZero() {
		merged.Timestamp = now
	}
	merged.LastTouched = now

	payload, err := encodeState(merged)
	if err != nil {
		s.logger.Warn("graph state encode failed", "signature", sig, "error", err)
		recordSaveMetrics(ctx, time.Since(start), saveOutcomeFailed)
		return
	}

	// Memory tier, guarded so one snapshot cannot crowd out the rest.
	if int64(len(payload)) < s.options.MemoryBudgetBytes/memoryEntryGuardDivisor {
		s.mu.Lock()
		s.memory[sig] = merged.Clone()
		s.trimLocked(ctx)
		s.mu.Unlock()
	} else {
		s.logger.Debug("graph state too large for memory tier",
			"signature", sig,
			"bytes", len(payload),
		)
	}

	s.mu.Lock()
	s.lastSave[sig] = saveMark{at: now, nodeCount: len(merged.Nodes)}
	s.lastFocused = merged.FocusedTransaction
	s.mu.Unlock()

	outcome := s.writeDurable(ctx, stateKey(sig), payload, merged)

	// Latest-state pointer for session restore without a signature.
	if latest, err := encodeLatest(&merged.GraphState); err == nil {
		s.writeDurable(ctx, stateKey(""), latest, merged)
	}

	recordSaveMetrics(ctx, time.Since(start), outcome)
}

// writeDurable writes one record to the durable tier, downgrading to
// the minimal fallback on size or quota pressure. Returns the save
// outcome for metrics.
func (s *Store) writeDurable(ctx context.Context, key string, payload []byte, st *EnhancedGraphState) string {
	if s.kv == nil {
		return saveOutcomeSkipped
	}

	if int64(len(payload)) > s.options.MaxValueBytes {
		s.logger.Warn("graph state exceeds durable size guard, writing minimal record",
			"key", key,
			"bytes", len(payload),
			"limit", s.options.MaxValueBytes,
		)
		return s.writeMinimal(ctx, key, st)
	}

	err := s.kv.Set(ctx, key, payload)
	switch {
	case err == nil:
		return saveOutcomeStored
	case errors.Is(err, storage.ErrQuotaExceeded):
		expired, corrupt := s.sweepDurable(ctx)
		recordEvictions(ctx, expired, "retention")
		recordEvictions(ctx, corrupt, "corrupt")
		s.logger.Warn("storage quota exceeded, evicted stale states",
			"key", key,
			"evicted", expired+corrupt,
		)
		return s.writeMinimal(ctx, key, st)
	default:
		s.logger.Warn("durable state write failed", "key", key, "error", err)
		return saveOutcomeFailed
	}
}

// writeMinimal writes the quota-pressure fallback record. One attempt,
// no further downgrade.
func (s *Store) writeMinimal(ctx context.Context, key string, st *EnhancedGraphState) string {
	payload, err := encodeMinimal(st, s.now())
	if err != nil {
		s.logger.Warn("minimal state encode failed", "key", key, "error", err)
		return saveOutcomeFailed
	}
	if err := s.kv.Set(ctx, key, payload); err != nil {
		s.logger.Warn("minimal state write failed", "key", key, "error", err)
		return saveOutcomeFailed
	}
	return saveOutcomeMinimal
}

// LoadState restores the snapshot for a signature, or nil when absent.
//
// Description:
//
//	The memory tier answers first and refreshes recency. On a miss the
//	durable tier is read (concurrent reads for one signature collapse
//	to a single fetch), validated, repaired (legacy expandedNodes
//	shapes become sets), and repopulated into memory. Corrupt durable
//	entries are deleted and reported absent. An empty signature loads
//	the latest-state pointer record.
//
// Outputs:
//
//	*EnhancedGraphState - A private copy, or nil when absent. Never an
//	error: storage failures degrade to absent.
func (s *Store) LoadState(ctx context.Context, signature string) *EnhancedGraphState {
	ctx, span := startLoadSpan(ctx, signature)
	defer span.End()

	if signature == "" {
		return s.loadLatest(ctx)
	}

	s.mu.Lock()
	if st, ok := s.memory[signature]; ok {
		st.LastTouched = s.now()
		clone := st.Clone()
		s.mu.Unlock()
		recordLoadMetrics(ctx, "memory")
		return clone
	}
	s.mu.Unlock()

	if s.kv == nil {
		recordLoadMetrics(ctx, "absent")
		return nil
	}

	v, _, _ := s.flight.Do(signature, func() (any, error) {
		// A concurrent load may have repopulated memory while this
		// call waited on the flight group.
		s.mu.Lock()
		if st, ok := s.memory[signature]; ok {
			st.LastTouched = s.now()
			clone := st.Clone()
			s.mu.Unlock()
			return clone, nil
		}
		s.mu.Unlock()

		st := s.readDurable(ctx, signature)
		if st == nil {
			return (*EnhancedGraphState)(nil), nil
		}

		st.LastTouched = s.now()
		s.mu.Lock()
		s.memory[signature] = st.Clone()
		s.trimLocked(ctx)
		s.mu.Unlock()
		return st, nil
	})

	st, ok := v.(*EnhancedGraphState)
	if !ok || st == nil {
		recordLoadMetrics(ctx, "absent")
		return nil
	}
	recordLoadMetrics(ctx, "durable")
	return st.Clone()
}

// readDurable fetches and validates one durable record, deleting it
// when corrupt. Returns nil when absent or unusable.
func (s *Store) readDurable(ctx context.Context, signature string) *EnhancedGraphState {
	key := stateKey(signature)
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			s.logger.Warn("durable state read failed", "key", key, "error", err)
		}
		return nil
	}

	st, err := decodeState(raw)
	if err != nil || !validLoaded(st) {
		s.logger.Warn("deleting corrupt graph state", "key", key, "error", err)
		if delErr := s.kv.Delete(ctx, key); delErr != nil {
			s.logger.Warn("corrupt state delete failed", "key", key, "error", delErr)
		}
		recordEvictions(ctx, 1, "corrupt")
		return nil
	}
	return st
}

// loadLatest reads the latest-state pointer record.
func (s *Store) loadLatest(ctx context.Context) *EnhancedGraphState {
	if s.kv == nil {
		recordLoadMetrics(ctx, "absent")
		return nil
	}
	st := s.readDurable(ctx, "")
	if st == nil {
		recordLoadMetrics(ctx, "absent")
		return nil
	}
	recordLoadMetrics(ctx, "durable")
	return st
}

// AutoSave persists through SaveState only when a meaningful-change
// heuristic fires: no prior save for the signature, the save interval
// elapsed, the node count moved past the delta, or focus changed.
// Returns whether a save was performed.
func (s *Store) AutoSave(ctx context.Context, snapshot *EnhancedGraphState) bool {
	if err := validForSave(snapshot); err != nil {
		s.logger.Warn("rejecting invalid autosave state", "reason", err)
		return false
	}
	sig := snapshot.FocusedTransaction

	s.mu.Lock()
	mark, seen := s.lastSave[sig]
	focusChanged := s.lastFocused != "" && s.lastFocused != sig
	s.mu.Unlock()

	now := s.now()
	delta := len(snapshot.Nodes) - mark.nodeCount
	if delta < 0 {
		delta = -delta
	}

	fire := !seen ||
		now.Sub(mark.at) > s.options.AutoSaveInterval ||
		delta > s.options.AutoSaveNodeDelta ||
		focusChanged
	if !fire {
		return false
	}

	s.SaveState(ctx, snapshot, sig)
	return true
}

// HasState reports whether any state exists for the signature in either
// tier.
func (s *Store) HasState(ctx context.Context, signature string) bool {
	if signature != "" {
		s.mu.Lock()
		_, ok := s.memory[signature]
		s.mu.Unlock()
		if ok {
			return true
		}
	}
	if s.kv == nil {
		return false
	}
	_, err := s.kv.Get(ctx, stateKey(signature))
	return err == nil
}

// DeleteGraph removes the state for a signature from both tiers.
func (s *Store) DeleteGraph(ctx context.Context, signature string) {
	if signature == "" {
		return
	}

	s.mu.Lock()
	delete(s.memory, signature)
	delete(s.lastSave, signature)
	s.mu.Unlock()

	if s.kv == nil {
		return
	}
	if err := s.kv.Delete(ctx, stateKey(signature)); err != nil {
		s.logger.Warn("durable state delete failed", "signature", signature, "error", err)
	}
}

// SavedGraphs enumerates persisted states sorted by recency, newest
// first. Durable records are overlaid with any fresher in-memory
// entries; unreadable records are skipped.
func (s *Store) SavedGraphs(ctx context.Context) []SavedGraph {
	found := make(map[string]SavedGraph)

	if s.kv != nil {
		keys, err := s.kv.Keys(ctx, keyPrefix+keySeparator)
		if err != nil {
			s.logger.Warn("state enumeration failed", "error", err)
		}
		for _, key := range keys {
			raw, err := s.kv.Get(ctx, key)
			if err != nil {
				continue
			}
			st, err := decodeState(raw)
			if err != nil || !validLoaded(st) {
				continue
			}
			found[st.FocusedTransaction] = summarize(st)
		}
	}

	s.mu.Lock()
	for sig, st := range s.memory {
		found[sig] = summarize(st)
	}
	s.mu.Unlock()

	graphs := make([]SavedGraph, 0, len(found))
	for _, g := range found {
		graphs = append(graphs, g)
	}
	sort.Slice(graphs, func(i, j int) bool {
		if !graphs[i].Timestamp.Equal(graphs[j].Timestamp) {
			return graphs[i].Timestamp.After(graphs[j].Timestamp)
		}
		return graphs[i].Signature < graphs[j].Signature
	})
	return graphs
}

// summarize builds the listing entry for one state.
func summarize(st *EnhancedGraphState) SavedGraph {
	when := st.Timestamp
	if st.LastTouched.After(when) {
		when = st.LastTouched
	}
	return SavedGraph{
		Signature: st.FocusedTransaction,
		Title:     st.Title,
		Timestamp: when,
		NodeCount: len(st.Nodes),
	}
}

// ClearAllStates drops every entry from both tiers. Returns the number
// of durable entries removed.
func (s *Store) ClearAllStates(ctx context.Context) int {
	s.mu.Lock()
	s.memory = make(map[string]*EnhancedGraphState)
	s.lastSave = make(map[string]saveMark)
	s.lastFocused = ""
	s.mu.Unlock()

	if s.kv == nil {
		return 0
	}

	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		s.logger.Warn("state enumeration failed", "error", err)
		return 0
	}
	removed := 0
	for _, key := range keys {
		if err := s.kv.Delete(ctx, key); err != nil {
			s.logger.Warn("state delete failed", "key", key, "error", err)
			continue
		}
		removed++
	}
	return removed
}

// CleanupOldStates sweeps the durable tier, deleting entries past the
// retention window and entries that no longer parse. Returns the number
// removed.
func (s *Store) CleanupOldStates(ctx context.Context) int {
	expired, corrupt := s.sweepDurable(ctx)
	recordEvictions(ctx, expired, "retention")
	recordEvictions(ctx, corrupt, "corrupt")
	if expired+corrupt > 0 {
		s.logger.Info("cleaned up old graph states",
			"expired", expired,
			"corrupt", corrupt,
		)
	}
	return expired + corrupt
}

// sweepDurable walks per-signature durable records and deletes expired
// or unreadable ones. The latest-state pointer is left alone.
func (s *Store) sweepDurable(ctx context.Context) (expired, corrupt int) {
	if s.kv == nil {
		return 0, 0
	}

	keys, err := s.kv.Keys(ctx, keyPrefix+keySeparator)
	if err != nil {
		s.logger.Warn("state sweep enumeration failed", "error", err)
		return 0, 0
	}

	cutoff := s.now().Add(-s.options.Retention)
	for _, key := range keys {
		raw, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}

		st, err := decodeState(raw)
		if err != nil || !validLoaded(st) {
			if delErr := s.kv.Delete(ctx, key); delErr == nil {
				corrupt++
			}
			continue
		}

		when := st.Timestamp
		if st.LastTouched.After(when) {
			when = st.LastTouched
		}
		if when.IsZero() || when.Before(cutoff) {
			if delErr := s.kv.Delete(ctx, key); delErr == nil {
				expired++
			}
		}
	}
	return expired, corrupt
}

// TrimMemoryCache evicts least-recently-touched entries until the
// memory tier is under its entry bound. Returns the number evicted.
func (s *Store) TrimMemoryCache() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trimLocked(context.Background())
}

// trimLocked is the eviction core. Caller must hold s.mu.
func (s *Store) trimLocked(ctx context.Context) int {
	evicted := 0
	for len(s.memory) > s.options.MaxMemoryEntries {
		oldestSig := ""
		var oldest time.Time
		for sig, st := range s.memory {
			if oldestSig == "" || st.LastTouched.Before(oldest) {
				oldestSig = sig
				oldest = st.LastTouched
			}
		}
		delete(s.memory, oldestSig)
		evicted++
	}
	recordEvictions(ctx, evicted, "lru")
	return evicted
}

// MemoryLen returns the number of entries in the memory tier.
func (s *Store) MemoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.memory)
}

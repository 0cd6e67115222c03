// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badger provides a BadgerDB-backed implementation of the
// durable storage contract.
//
// BadgerDB is used for local embedded storage with low-latency access
// (~100µs). Exploration state survives process restarts through this
// tier; the in-memory tier above it is rebuilt on demand.
//
// The store tracks its byte footprint (keys + values) against a
// configurable quota: the footprint is recomputed by scanning the
// database once at open, then maintained incrementally on every write
// and delete. Writes that would push the footprint past the quota are
// rejected with storage.ErrQuotaExceeded before touching the database,
// which is what lets the state store fall back to minimal records
// instead of failing the exploration session.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/openSVM/opensvm-sub007/services/explorer/storage"
)

// Config holds configuration for a BadgerDB-backed store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required for persistent databases.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// Logger is the logger for BadgerDB operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// NumVersionsToKeep is the number of versions to keep per key.
	// Default: 1 (we don't use multi-version concurrency control).
	NumVersionsToKeep int

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5 (GC when 50% of value log is garbage).
	GCDiscardRatio float64

	// QuotaBytes caps the tracked footprint (keys + values).
	// Writes past the quota return storage.ErrQuotaExceeded.
	// Default: 0 (unlimited).
	QuotaBytes int64
}

// DefaultConfig returns sensible defaults for production use.
//
// Description:
//
//	Returns a Config with:
//	- SyncWrites enabled for durability
//	- Single version retention
//	- 5-minute GC interval
//	- 50% discard ratio threshold
//	- No byte quota (callers set one from their config)
//
// Outputs:
//
//	Config - Ready-to-use production configuration
func DefaultConfig() Config {
	return Config{
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
		GCDiscardRatio:    0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing.
//
// Description:
//
//	Returns a Config with:
//	- InMemory mode enabled (no disk I/O)
//	- SyncWrites disabled (faster tests)
//	- GC disabled
//
// Outputs:
//
//	Config - Ready-to-use test configuration
func InMemoryConfig() Config {
	return Config{
		InMemory:          true,
		SyncWrites:        false,
		NumVersionsToKeep: 1,
		GCInterval:        0, // disabled
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// GCRunner runs periodic garbage collection on a BadgerDB instance.
type GCRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

// NewGCRunner creates a garbage collection runner.
//
// Description:
//
//	Creates a runner that periodically triggers BadgerDB value log GC.
//	Call Start() to begin GC and Stop() to halt it.
//
// Inputs:
//
//	db - The BadgerDB instance. Must not be nil.
//	interval - How often to run GC. Must be positive.
//	ratio - Minimum garbage ratio to trigger GC (0.0-1.0).
//	logger - Optional logger for GC events.
//
// Outputs:
//
//	*GCRunner - The runner. Not started until Start() is called.
//	error - Non-nil if inputs are invalid.
//
// Thread Safety: Safe for concurrent use after creation.
func NewGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) (*GCRunner, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if ratio < 0 || ratio > 1 {
		return nil, errors.New("ratio must be between 0 and 1")
	}

	return &GCRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}, nil
}

// Start begins periodic garbage collection.
func (r *GCRunner) Start() {
	go r.run()
}

// Stop halts garbage collection and waits for the goroutine to finish.
func (r *GCRunner) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *GCRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *GCRunner) runGC() {
	// RunValueLogGC returns nil if GC was triggered, error if not needed
	err := r.db.RunValueLogGC(r.ratio)
	if err == nil {
		if r.logger != nil {
			r.logger.Debug("badger value log GC completed")
		}
	} else if !errors.Is(err, badger.ErrNoRewrite) {
		// ErrNoRewrite means no GC was needed, not an error
		if r.logger != nil {
			r.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
		}
	}
}

// Store is a BadgerDB-backed storage.KV with byte-quota enforcement.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB handles transactional isolation;
// writes are additionally serialized through a mutex so the footprint
// counter and the quota decision stay atomic with respect to each other.
type Store struct {
	db       *badger.DB
	gcRunner *GCRunner
	path     string
	inMemory bool
	quota    int64

	// writeMu serializes Set/Delete so the usage delta computed from
	// the pre-write read can't race another writer's commit.
	writeMu sync.Mutex
	used    int64
}

// Open creates and opens a BadgerDB-backed store.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory if
//	InMemory is true. Creates the directory if it doesn't exist, scans
//	the database once to establish the byte footprint, and starts the
//	GC runner when configured.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if path is invalid or database cannot be opened.
//
// Thread Safety: The returned *Store is safe for concurrent use.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Ensure directory exists
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	// Apply configuration
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(cfg.NumVersionsToKeep)

	// Configure logging
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil) // Disable BadgerDB's internal logging
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	store := &Store{
		db:       db,
		path:     cfg.Path,
		inMemory: cfg.InMemory,
		quota:    cfg.QuotaBytes,
	}

	// Establish the footprint from existing data.
	used, err := store.scanUsedBytes()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("scan existing footprint: %w", err)
	}
	store.used = used

	// Start GC runner if configured
	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := NewGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		store.gcRunner = runner
		runner.Start()
	}

	return store, nil
}

// OpenInMemory is a convenience function for opening an in-memory store.
//
// Description:
//
//	Opens an in-memory store for testing. Data is lost when closed.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if the database cannot be opened (unlikely for in-memory).
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// scanUsedBytes walks every key once and sums key + value sizes.
func (s *Store) scanUsedBytes() (int64, error) {
	var total int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			total += int64(len(item.Key())) + item.ValueSize()
		}
		return nil
	})
	return total, err
}

// Get returns the value stored under key.
//
// Outputs:
//
//	[]byte - A copy of the stored value.
//	error - storage.ErrKeyNotFound (wrapped) when absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("get %q: %w", key, storage.ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key after checking the byte quota.
//
// Description:
//
//	The quota check runs before the badger transaction commits and
//	accounts for the entry being replaced, so overwriting a large value
//	with a smaller one always succeeds. A rejected write leaves the
//	prior value intact.
//
// Outputs:
//
//	error - storage.ErrQuotaExceeded (wrapped) when the write would
//	exceed the quota; the underlying badger error otherwise.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	oldSize, err := s.entrySize(key)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	newSize := int64(len(key) + len(value))

	if s.quota > 0 && s.used-oldSize+newSize > s.quota {
		return fmt.Errorf("set %q (%d bytes, %d used, %d quota): %w",
			key, newSize, s.used, s.quota, storage.ErrQuotaExceeded)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	s.used = s.used - oldSize + newSize
	return nil
}

// Delete removes the value stored under key. Absent keys are a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	oldSize, err := s.entrySize(key)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	if oldSize == 0 {
		return nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}

	s.used -= oldSize
	return nil
}

// entrySize returns len(key)+len(value) for an existing key, 0 when absent.
func (s *Store) entrySize(key string) (int64, error) {
	var size int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		size = int64(len(item.Key())) + item.ValueSize()
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	return size, err
}

// Keys returns all keys beginning with prefix, in badger iteration order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("keys %q: %w", prefix, err)
	}
	return keys, nil
}

// Len returns the number of stored keys.
func (s *Store) Len(ctx context.Context) (int, error) {
	keys, err := s.Keys(ctx, "")
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Close stops the GC runner and closes the database.
//
// Safe to call once; operations after Close return badger's own
// closed-database error.
func (s *Store) Close() error {
	if s.gcRunner != nil {
		s.gcRunner.Stop()
	}
	return s.db.Close()
}

// UsedBytes returns the tracked storage footprint (keys + values).
func (s *Store) UsedBytes() int64 {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.used
}

// QuotaBytes returns the configured byte quota, or 0 when unlimited.
func (s *Store) QuotaBytes() int64 {
	return s.quota
}

// Path returns the database path, or empty string for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// InMemory returns true if this is an in-memory store.
func (s *Store) InMemory() bool {
	return s.inMemory
}

// Sync flushes pending writes to disk.
//
// For in-memory stores this is a no-op.
func (s *Store) Sync() error {
	if s.inMemory {
		return nil
	}
	return s.db.Sync()
}

// Ensure Store satisfies the contracts.
var (
	_ storage.KV    = (*Store)(nil)
	_ storage.Sizer = (*Store)(nil)
)

// TempDir creates a temporary directory for testing databases.
//
// Description:
//
//	Creates a temporary directory that the caller removes with
//	CleanupDir when done. Useful for testing persistent configurations.
//
// Inputs:
//
//	prefix - Prefix for the directory name.
//
// Outputs:
//
//	string - Path to the temporary directory.
//	error - Non-nil if directory cannot be created.
func TempDir(prefix string) (string, error) {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	return dir, nil
}

// CleanupDir removes a database directory and all its contents.
//
// Description:
//
//	Removes the directory and all files within it.
//	Safe to call with empty string (no-op).
//
// Inputs:
//
//	path - Directory to remove. Empty string is a no-op.
//
// Outputs:
//
//	error - Non-nil if removal fails.
func CleanupDir(path string) error {
	if path == "" {
		return nil
	}
	// Resolve to absolute path to avoid accidental removal of important dirs
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	return os.RemoveAll(absPath)
}

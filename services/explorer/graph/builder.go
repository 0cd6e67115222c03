// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openSVM/opensvm-sub007/services/explorer/source"
)

// Default builder configuration values.
const (
	// DefaultMaxDepth is the depth at which expansion stops outright.
	DefaultMaxDepth = 7

	// DefaultFetchLimit is the transaction window fetched per account.
	DefaultFetchLimit = 10

	// DefaultEagerDepth bounds automatic recursion: accounts discovered
	// at this depth or deeper are registered in the arena but not
	// auto-expanded.
	DefaultEagerDepth = 2

	// DefaultWorkerCount is the number of concurrent account fetches.
	// Expansion is network-bound; a small fixed pool avoids hammering
	// the RPC endpoint.
	DefaultWorkerCount = 4
)

// LayoutEngine computes node positions for an arena.
//
// Apply is a full idempotent recompute: the builder may invoke it
// repeatedly as racing expansions complete, and implementations must not
// call back into the builder (Apply runs under the builder lock).
type LayoutEngine interface {
	Apply(*Arena)
}

// FetchFailure records one skipped expansion branch.
type FetchFailure struct {
	// Address is the account whose fetch failed. Empty when the failure
	// belongs to a signature seed.
	Address string

	// Signature is the parent or seed signature that led to the fetch.
	// Empty for root expansions.
	Signature string

	// Depth is the expansion depth at which the failure occurred.
	Depth int

	// Err is the underlying error.
	Err error
}

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// MaxDepth stops expansion outright at this depth.
	// Default: 7
	MaxDepth int

	// FetchLimit is the transaction window size per account.
	// Default: 10
	FetchLimit int

	// EagerDepth bounds automatic recursion into discovered accounts.
	// Default: 2
	EagerDepth int

	// WorkerCount is the number of concurrent account fetches.
	// Default: 4
	WorkerCount int

	// MaxNodes is the arena node capacity.
	MaxNodes int

	// MaxEdges is the arena edge capacity.
	MaxEdges int

	// Layout is invoked after each completed expansion. May be nil.
	Layout LayoutEngine

	// Logger receives expansion diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultBuilderOptions returns sensible defaults.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		MaxDepth:    DefaultMaxDepth,
		FetchLimit:  DefaultFetchLimit,
		EagerDepth:  DefaultEagerDepth,
		WorkerCount: DefaultWorkerCount,
		MaxNodes:    DefaultMaxNodes,
		MaxEdges:    DefaultMaxEdges,
	}
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithMaxDepth sets the depth at which expansion stops.
func WithMaxDepth(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxDepth = n
	}
}

// WithFetchLimit sets the transaction window size per account.
func WithFetchLimit(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.FetchLimit = n
	}
}

// WithEagerDepth sets the automatic recursion bound.
func WithEagerDepth(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.EagerDepth = n
	}
}

// WithWorkerCount sets the number of concurrent account fetches.
func WithWorkerCount(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.WorkerCount = n
	}
}

// WithBuilderMaxNodes sets the arena node capacity.
func WithBuilderMaxNodes(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxNodes = n
	}
}

// WithBuilderMaxEdges sets the arena edge capacity.
func WithBuilderMaxEdges(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxEdges = n
	}
}

// WithLayout sets the layout engine invoked after expansions.
func WithLayout(engine LayoutEngine) BuilderOption {
	return func(o *BuilderOptions) {
		o.Layout = engine
	}
}

// WithLogger sets the logger for expansion diagnostics.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(o *BuilderOptions) {
		o.Logger = logger
	}
}

// discovery is an account revealed by a transaction during expansion.
type discovery struct {
	address   string
	signature string
}

// Builder grows one exploration session's arena without ever creating
// duplicates, tolerating partial fetch failures.
//
// Description:
//
//	AddAccount fetches a bounded window of an account's transactions,
//	folds them into the arena (transaction nodes, account edges,
//	transfer edges), and recurses eagerly into newly discovered accounts
//	while the depth stays under EagerDepth. Fetches for independent
//	accounts run concurrently; each account's mutation step is applied
//	atomically under the builder lock, so the final deduplicated arena
//	is independent of arrival order.
//
// Thread Safety:
//
//	Safe for concurrent use. All arena and tracking-set access happens
//	under the builder mutex.
//
// Lifecycle:
//
//  1. Create with NewBuilder(source, details)
//  2. Expand with AddAccount / AddTransaction calls
//  3. Invalidate() to discard in-flight expansions (e.g. focus change)
//  4. Close() on session teardown
type Builder struct {
	options BuilderOptions
	source  source.TransactionSource
	details source.DetailSource

	// generation is bumped by Invalidate; in-flight expansions captured
	// an older value and discard their results.
	generation atomic.Int64

	mu                 sync.Mutex
	arena              *Arena
	loadedAccounts     map[string]struct{}
	loadedTransactions map[string]struct{}
	expansionDepth     map[string]int
	failures           []FetchFailure
	closed             bool
}

// NewBuilder creates a Builder over the given data sources.
//
// Inputs:
//
//	txSource - Account transaction windows. Must not be nil.
//	details - Transaction detail lookups for signature seeding. May be
//	nil when AddTransaction is not used.
//	opts - Optional configuration.
//
// Example:
//
//	b := NewBuilder(src, src,
//	    WithMaxDepth(5),
//	    WithLayout(layoutEngine),
//	)
func NewBuilder(txSource source.TransactionSource, details source.DetailSource, opts ...BuilderOption) *Builder {
	options := DefaultBuilderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.WorkerCount <= 0 {
		options.WorkerCount = DefaultWorkerCount
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	return &Builder{
		options: options,
		source:  txSource,
		details: details,
		arena: NewArena(
			WithMaxNodes(options.MaxNodes),
			WithMaxEdges(options.MaxEdges),
		),
		loadedAccounts:     make(map[string]struct{}),
		loadedTransactions: make(map[string]struct{}),
		expansionDepth:     make(map[string]int),
	}
}

// AddAccount expands the graph from an account address.
//
// Description:
//
//	No-op when depth has reached MaxDepth or the address has already
//	been expanded. Otherwise fetches the account's transaction window
//	and folds every not-yet-loaded transaction into the arena: a
//	transaction node, an account-to-tx edge from the origin, a
//	tx-to-account edge per other touched account, and a transfer edge
//	per non-zero balance delta on non-origin accounts, labeled with the
//	signed SOL amount. Accounts discovered while depth < EagerDepth are
//	expanded recursively on concurrent workers; deeper discoveries are
//	registered but left unexpanded.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	address - Base58 account address. Must be non-empty.
//	depth - Current expansion depth; callers start at 0.
//	parentSignature - The transaction that led here. Empty for roots.
//
// Outputs:
//
//	error - Non-nil for invalid input, a closed builder, or context
//	cancellation. Fetch failures are recorded via Failures() and return
//	nil: the branch is skipped, siblings are unaffected.
func (b *Builder) AddAccount(ctx context.Context, address string, depth int, parentSignature string) error {
	ctx, span := startExpandSpan(ctx, address, depth)
	defer span.End()
	start := time.Now()

	nodesBefore, edgesBefore, _ := b.counts()
	gen := b.generation.Load()

	err := b.addAccount(ctx, gen, address, depth, parentSignature)

	nodesAfter, edgesAfter, failureCount := b.counts()
	setExpandSpanResult(span, nodesAfter, edgesAfter, failureCount)
	recordExpandMetrics(ctx, time.Since(start), nodesAfter-nodesBefore, edgesAfter-edgesBefore, err == nil)

	if err == nil {
		b.RunLayout()
	}
	return err
}

// addAccount is the recursive expansion core. The generation token is
// captured once by the initiating call and carried through recursion so
// a whole pass is invalidated together.
func (b *Builder) addAccount(ctx context.Context, gen int64, address string, depth int, parentSignature string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if address == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	if b.source == nil {
		return ErrNoSource
	}

	// Claim the address before fetching so concurrent expansions of the
	// same account collapse to one fetch.
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBuilderClosed
	}
	if gen != b.generation.Load() {
		b.mu.Unlock()
		return nil
	}
	if depth >= b.options.MaxDepth {
		b.mu.Unlock()
		return nil
	}
	if _, done := b.loadedAccounts[address]; done {
		b.mu.Unlock()
		return nil
	}
	if _, err := b.arena.AddNode(NodeKindAccount, address, ShortLabel(address)); err != nil {
		b.failures = append(b.failures, FetchFailure{Address: address, Signature: parentSignature, Depth: depth, Err: err})
		b.mu.Unlock()
		return nil
	}
	b.loadedAccounts[address] = struct{}{}
	b.expansionDepth[address] = depth
	b.mu.Unlock()

	txs, err := b.source.AccountTransactions(ctx, address, b.options.FetchLimit)
	if err != nil {
		b.mu.Lock()
		delete(b.loadedAccounts, address)
		delete(b.expansionDepth, address)
		if ctx.Err() == nil {
			b.failures = append(b.failures, FetchFailure{
				Address:   address,
				Signature: parentSignature,
				Depth:     depth,
				Err:       fmt.Errorf("fetching transactions: %w", err),
			})
		}
		b.mu.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.options.Logger.Warn("account expansion failed",
			"address", address,
			"depth", depth,
			"error", err,
		)
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBuilderClosed
	}
	if gen != b.generation.Load() {
		// Superseded while fetching: release the claim so the next pass
		// can expand this account, and discard the results.
		delete(b.loadedAccounts, address)
		delete(b.expansionDepth, address)
		b.mu.Unlock()
		return nil
	}
	discovered := b.applyTransactions(address, depth, txs)
	b.mu.Unlock()

	if depth >= b.options.EagerDepth || len(discovered) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.options.WorkerCount)
	for _, d := range discovered {
		g.Go(func() error {
			return b.addAccount(gctx, gen, d.address, depth+1, d.signature)
		})
	}
	return g.Wait()
}

// applyTransactions folds a fetched window into the arena. Caller must
// hold b.mu. Returns the accounts discovered for eager recursion.
func (b *Builder) applyTransactions(origin string, depth int, txs []source.TransactionInfo) []discovery {
	var discovered []discovery
	seen := make(map[string]struct{})

	discover := func(address, signature string) {
		if _, expanded := b.loadedAccounts[address]; expanded {
			return
		}
		if _, dup := seen[address]; dup {
			return
		}
		seen[address] = struct{}{}
		discovered = append(discovered, discovery{address: address, signature: signature})
	}

	for _, tx := range txs {
		if tx.Signature == "" {
			continue
		}
		if _, done := b.loadedTransactions[tx.Signature]; done {
			continue
		}

		txNode, err := b.arena.AddNode(NodeKindTransaction, tx.Signature, ShortLabel(tx.Signature))
		if err != nil {
			b.failures = append(b.failures, FetchFailure{Address: origin, Signature: tx.Signature, Depth: depth, Err: err})
			continue
		}
		if tx.Success {
			txNode.Status = TxStatusSuccess
		} else {
			txNode.Status = TxStatusFailure
		}
		b.loadedTransactions[tx.Signature] = struct{}{}

		if _, err := b.arena.AddEdge(EdgeTypeAccountToTx, origin, tx.Signature, ""); err != nil {
			b.failures = append(b.failures, FetchFailure{Address: origin, Signature: tx.Signature, Depth: depth, Err: err})
		}

		for _, ref := range tx.Accounts {
			if ref.Pubkey == "" || ref.Pubkey == origin {
				continue
			}
			if _, err := b.arena.AddNode(NodeKindAccount, ref.Pubkey, ShortLabel(ref.Pubkey)); err != nil {
				b.failures = append(b.failures, FetchFailure{Address: ref.Pubkey, Signature: tx.Signature, Depth: depth, Err: err})
				continue
			}
			if _, err := b.arena.AddEdge(EdgeTypeTxToAccount, tx.Signature, ref.Pubkey, ""); err != nil {
				b.failures = append(b.failures, FetchFailure{Address: ref.Pubkey, Signature: tx.Signature, Depth: depth, Err: err})
			}
			discover(ref.Pubkey, tx.Signature)
		}

		for _, transfer := range tx.Transfers {
			if transfer.Account == "" || transfer.Account == origin || transfer.ChangeLamports == 0 {
				continue
			}
			if _, err := b.arena.AddNode(NodeKindAccount, transfer.Account, ShortLabel(transfer.Account)); err != nil {
				b.failures = append(b.failures, FetchFailure{Address: transfer.Account, Signature: tx.Signature, Depth: depth, Err: err})
				continue
			}

			// Direction follows the money: credits flow from the
			// transaction to the account, debits the other way.
			amount := FormatLamports(transfer.ChangeLamports)
			var addErr error
			if transfer.ChangeLamports > 0 {
				_, addErr = b.arena.AddEdge(EdgeTypeTransfer, tx.Signature, transfer.Account, amount)
			} else {
				_, addErr = b.arena.AddEdge(EdgeTypeTransfer, transfer.Account, tx.Signature, amount)
			}
			if addErr != nil {
				b.failures = append(b.failures, FetchFailure{Address: transfer.Account, Signature: tx.Signature, Depth: depth, Err: addErr})
			}
			discover(transfer.Account, tx.Signature)
		}
	}

	return discovered
}

// AddTransaction seeds exploration from a bare signature.
//
// Description:
//
//	Adds the transaction node, resolves its involved accounts through
//	the detail source, connects them with tx-to-account edges, and then
//	expands each at depth 0. Transfer data arrives later when an
//	account window re-processes the transaction; the seed itself only
//	anchors the structure.
//
// Outputs:
//
//	error - Non-nil for invalid input, a closed builder, a missing
//	detail source, or context cancellation. A detail-fetch failure is
//	recorded via Failures() and returns nil.
func (b *Builder) AddTransaction(ctx context.Context, signature string) error {
	if signature == "" {
		return fmt.Errorf("%w: empty signature", ErrInvalidSignature)
	}
	if b.details == nil {
		return ErrNoDetailSource
	}

	ctx, span := startSeedSpan(ctx, signature)
	defer span.End()
	start := time.Now()

	nodesBefore, edgesBefore, _ := b.counts()
	gen := b.generation.Load()

	err := b.addTransaction(ctx, gen, signature)

	nodesAfter, edgesAfter, failureCount := b.counts()
	setExpandSpanResult(span, nodesAfter, edgesAfter, failureCount)
	recordExpandMetrics(ctx, time.Since(start), nodesAfter-nodesBefore, edgesAfter-edgesBefore, err == nil)

	if err == nil {
		b.RunLayout()
	}
	return err
}

// addTransaction is the signature-seeding core.
func (b *Builder) addTransaction(ctx context.Context, gen int64, signature string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBuilderClosed
	}
	if gen != b.generation.Load() {
		b.mu.Unlock()
		return nil
	}
	if _, err := b.arena.AddNode(NodeKindTransaction, signature, ShortLabel(signature)); err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	accounts, err := b.details.TransactionAccounts(ctx, signature)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.mu.Lock()
		b.failures = append(b.failures, FetchFailure{
			Signature: signature,
			Err:       fmt.Errorf("fetching transaction accounts: %w", err),
		})
		b.mu.Unlock()
		b.options.Logger.Warn("transaction seed failed",
			"signature", signature,
			"error", err,
		)
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBuilderClosed
	}
	if gen != b.generation.Load() {
		b.mu.Unlock()
		return nil
	}
	for _, account := range accounts {
		if account == "" || account == signature {
			continue
		}
		if _, err := b.arena.AddNode(NodeKindAccount, account, ShortLabel(account)); err != nil {
			b.failures = append(b.failures, FetchFailure{Address: account, Signature: signature, Err: err})
			continue
		}
		if _, err := b.arena.AddEdge(EdgeTypeTxToAccount, signature, account, ""); err != nil {
			b.failures = append(b.failures, FetchFailure{Address: account, Signature: signature, Err: err})
		}
	}
	b.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.options.WorkerCount)
	for _, account := range accounts {
		if account == "" || account == signature {
			continue
		}
		g.Go(func() error {
			return b.addAccount(gctx, gen, account, 0, signature)
		})
	}
	return g.Wait()
}

// RunLayout recomputes node positions through the layout engine.
//
// Safe to call repeatedly from racing async completions: the engine
// contract is a full idempotent recompute, and the arena is locked for
// the duration.
func (b *Builder) RunLayout() {
	if b.options.Layout == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.options.Layout.Apply(b.arena)
}

// Invalidate bumps the builder generation, discarding every in-flight
// expansion's eventual results. Loaded data stays intact.
func (b *Builder) Invalidate() {
	b.generation.Add(1)
}

// Generation returns the current generation token.
func (b *Builder) Generation() int64 {
	return b.generation.Load()
}

// Close marks the builder closed and invalidates in-flight expansions.
// Subsequent expansion calls return ErrBuilderClosed.
func (b *Builder) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.generation.Add(1)
}

// Failures returns a copy of the recorded expansion failures.
func (b *Builder) Failures() []FetchFailure {
	b.mu.Lock()
	defer b.mu.Unlock()
	failures := make([]FetchFailure, len(b.failures))
	copy(failures, b.failures)
	return failures
}

// Snapshot is a point-in-time copy of the arena contents.
type Snapshot struct {
	// Nodes are value copies in insertion order.
	Nodes []Node

	// Edges are value copies in insertion order.
	Edges []Edge

	// Generation is the builder generation at snapshot time.
	Generation int64
}

// NodeIDs returns the snapshot's node IDs in order.
func (s Snapshot) NodeIDs() []string {
	ids := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// EdgeIDs returns the snapshot's edge IDs in order.
func (s Snapshot) EdgeIDs() []string {
	ids := make([]string, 0, len(s.Edges))
	for _, e := range s.Edges {
		ids = append(ids, e.ID)
	}
	return ids
}

// Snapshot returns a point-in-time copy of the arena.
//
// Thread Safety: safe for concurrent use; the copy is taken under the
// builder lock and shares no memory with the arena.
func (b *Builder) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	nodes := make([]Node, 0, len(b.arena.nodeOrder))
	for _, id := range b.arena.nodeOrder {
		nodes = append(nodes, *b.arena.nodes[id])
	}
	edges := make([]Edge, 0, len(b.arena.edges))
	for _, e := range b.arena.edges {
		edges = append(edges, *e)
	}

	return Snapshot{
		Nodes:      nodes,
		Edges:      edges,
		Generation: b.generation.Load(),
	}
}

// ConnectedAccounts returns the account nodes adjacent to a transaction,
// in edge insertion order. Feeds focus highlighting.
func (b *Builder) ConnectedAccounts(signature string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]struct{})
	accounts := make([]string, 0)
	for _, e := range b.arena.edges {
		var candidate string
		switch {
		case e.Source == signature:
			candidate = e.Target
		case e.Target == signature:
			candidate = e.Source
		default:
			continue
		}
		node, ok := b.arena.nodes[candidate]
		if !ok || node.Kind != NodeKindAccount {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		accounts = append(accounts, candidate)
	}
	return accounts
}

// IsExpanded reports whether the address has been fully expanded.
func (b *Builder) IsExpanded(address string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.loadedAccounts[address]
	return ok
}

// HasNode reports whether the arena contains a node with the given ID.
func (b *Builder) HasNode(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arena.HasNode(id)
}

// ExpandedNodes returns the expanded account set, sorted for stable
// output.
func (b *Builder) ExpandedNodes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	nodes := make([]string, 0, len(b.loadedAccounts))
	for address := range b.loadedAccounts {
		nodes = append(nodes, address)
	}
	sort.Strings(nodes)
	return nodes
}

// ExpansionDepths returns a copy of the per-account expansion depths.
func (b *Builder) ExpansionDepths() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()

	depths := make(map[string]int, len(b.expansionDepth))
	for address, depth := range b.expansionDepth {
		depths[address] = depth
	}
	return depths
}

// NodeCount returns the number of nodes in the arena.
func (b *Builder) NodeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arena.NodeCount()
}

// EdgeCount returns the number of edges in the arena.
func (b *Builder) EdgeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arena.EdgeCount()
}

// counts returns node, edge, and failure counts in one lock hold.
func (b *Builder) counts() (nodes, edges, failures int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arena.NodeCount(), b.arena.EdgeCount(), len(b.failures)
}

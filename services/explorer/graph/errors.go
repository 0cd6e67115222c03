// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph builds the account/transaction exploration graph
// incrementally from a blockchain data source.
//
// Nodes are accounts (keyed by address) and transactions (keyed by
// signature); edges connect an initiating account to its transaction,
// a transaction to every other account it touched, and carry value
// transfers labeled with the signed SOL amount. Everything lives in an
// Arena addressed by string IDs, never by object references, so the
// structure serializes trivially and cycles cannot recurse.
//
// # Dedup Contract
//
// Every ID is a pure function of its inputs: an account node's ID is its
// address, a transaction node's ID is its signature, and an edge ID is
// the (type, source, target) composite. An ID already present in its
// tracking set is never re-added, which makes expansion idempotent:
// identical inputs and identical fetch results yield the same final
// node/edge set regardless of call count or arrival order.
//
// # Failure Model
//
// A fetch failure on one account skips that branch and records it
// (inspectable via Builder.Failures); sibling branches and loaded data
// are unaffected. There is no aggregate abort.
//
// # Thread Safety
//
// The Arena is NOT safe for concurrent use on its own. A Builder owns
// its arena and tracking sets behind a mutex: fetches for independent
// accounts run concurrently, and each account's mutation step is applied
// atomically under the lock once its data resolves. In-flight expansions
// carry a generation token; Invalidate bumps the generation so stale
// completions are discarded instead of applied.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrInvalidAddress is returned when an account address is empty.
	ErrInvalidAddress = errors.New("invalid account address")

	// ErrInvalidSignature is returned when a transaction signature is
	// empty.
	ErrInvalidSignature = errors.New("invalid transaction signature")

	// ErrInvalidNode is returned when adding a node with an empty ID.
	ErrInvalidNode = errors.New("invalid node")

	// ErrNodeNotFound is returned when an edge references a node that
	// does not exist in the arena.
	ErrNodeNotFound = errors.New("node not found")

	// ErrMaxNodesExceeded is returned when the arena has reached its
	// configured maximum node capacity.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrMaxEdgesExceeded is returned when the arena has reached its
	// configured maximum edge capacity.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")

	// ErrBuilderClosed is returned when expanding through a closed
	// builder.
	ErrBuilderClosed = errors.New("builder is closed")

	// ErrNoSource is returned when the builder was constructed without
	// a transaction source.
	ErrNoSource = errors.New("no transaction source configured")

	// ErrNoDetailSource is returned by AddTransaction when the builder
	// was constructed without a transaction-detail source.
	ErrNoDetailSource = errors.New("no transaction detail source configured")
)

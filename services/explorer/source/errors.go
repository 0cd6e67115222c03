// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package source provides the blockchain data-source contracts the graph
// builder consumes, plus the production Solana RPC implementation and a
// caching decorator.
//
// The builder never talks to an RPC node directly. It sees two narrow
// interfaces: TransactionSource (an account's recent transaction window)
// and DetailSource (the accounts involved in a single transaction). Both
// return plain Go types so the graph layer carries no dependency on any
// particular chain SDK.
//
// # Failure Model
//
// A source error means "no data for this request", never "abort the
// exploration". Callers record the failure against the branch that
// triggered it and keep going; transactions that fail on-chain are still
// returned (with Success=false) because a failed transaction is still a
// node worth exploring.
//
// # Implementations
//
//   - RPCClient: production implementation over the Solana JSON-RPC API,
//     rate-limited client-side.
//   - CachedSource: wraps any TransactionSource with an LRU+TTL cache and
//     request coalescing so concurrent expansions of one account hit the
//     upstream once.
package source

import "errors"

// Sentinel errors for data-source operations.
var (
	// ErrInvalidAddress is returned when an account address does not
	// parse as a base58 public key.
	ErrInvalidAddress = errors.New("invalid account address")

	// ErrInvalidSignature is returned when a transaction signature does
	// not parse as a base58 signature.
	ErrInvalidSignature = errors.New("invalid transaction signature")

	// ErrNotFound is returned when the node has no record of the
	// requested transaction.
	ErrNotFound = errors.New("transaction not found")
)

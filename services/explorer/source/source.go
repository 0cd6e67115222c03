// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package source

import (
	"context"
	"time"
)

// AccountRef identifies an account touched by a transaction.
type AccountRef struct {
	// Pubkey is the base58 account address.
	Pubkey string

	// Signer reports whether the account signed the transaction.
	Signer bool

	// Writable reports whether the transaction could modify the account.
	Writable bool
}

// BalanceChange is the lamport delta a transaction applied to one account.
//
// Positive means the account was credited, negative debited. Zero-delta
// accounts are omitted by well-behaved sources but callers must tolerate
// them.
type BalanceChange struct {
	// Account is the base58 address whose balance changed.
	Account string

	// ChangeLamports is post-balance minus pre-balance.
	ChangeLamports int64
}

// TransactionInfo is one transaction in an account's history window.
//
// Ownership: values are fully owned by the caller once returned. Sources
// must not retain or mutate returned slices; caching implementations
// return defensive copies.
type TransactionInfo struct {
	// Signature is the base58 transaction signature.
	Signature string

	// BlockTime is when the transaction was confirmed. Zero when the
	// node did not report a block time.
	BlockTime time.Time

	// Success is false when the transaction failed on-chain.
	Success bool

	// Accounts lists every account the transaction touched, in message
	// order.
	Accounts []AccountRef

	// Transfers lists the non-zero balance deltas the transaction
	// applied, one entry per affected account.
	Transfers []BalanceChange
}

// TransactionSource returns an account's recent transaction window.
//
// Thread Safety: implementations must be safe for concurrent use; the
// graph builder fans out over independent accounts.
type TransactionSource interface {
	// AccountTransactions returns up to limit of the account's most
	// recent transactions, newest first. An empty slice means the
	// account has no history; an error means the window could not be
	// fetched and the caller should skip that branch.
	AccountTransactions(ctx context.Context, address string, limit int) ([]TransactionInfo, error)
}

// DetailSource resolves the accounts involved in a single transaction.
// Used to seed exploration when only a signature is known.
type DetailSource interface {
	// TransactionAccounts returns the base58 addresses the transaction
	// touched, in message order.
	TransactionAccounts(ctx context.Context, signature string) ([]string, error)
}

// copyTransactions deep-copies a transaction window so cached values
// never alias caller-visible slices.
func copyTransactions(txs []TransactionInfo) []TransactionInfo {
	if txs == nil {
		return nil
	}
	out := make([]TransactionInfo, len(txs))
	for i, tx := range txs {
		out[i] = tx
		if tx.Accounts != nil {
			out[i].Accounts = make([]AccountRef, len(tx.Accounts))
			copy(out[i].Accounts, tx.Accounts)
		}
		if tx.Transfers != nil {
			out[i].Transfers = make([]BalanceChange, len(tx.Transfers))
			copy(out[i].Transfers, tx.Transfers)
		}
	}
	return out
}

// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// Default RPC client configuration values.
const (
	// DefaultRequestsPerSecond is the default client-side rate limit.
	// Public Solana RPC endpoints throttle around 10 req/s per IP.
	DefaultRequestsPerSecond = 8

	// DefaultBurst is the default rate-limiter burst size.
	DefaultBurst = 8

	// maxSignatureWindow is the largest window the signatures RPC accepts.
	maxSignatureWindow = 1000
)

// maxSupportedTransactionVersion opts in to versioned (v0) transactions.
var maxSupportedTransactionVersion = uint64(0)

// rpcOptions configures RPCClient behavior.
type rpcOptions struct {
	commitment rpc.CommitmentType
	rps        float64
	burst      int
	logger     *slog.Logger
}

// RPCOption is a functional option for configuring RPCClient.
type RPCOption func(*rpcOptions)

// WithCommitment sets the commitment level for RPC reads.
// Default: confirmed.
func WithCommitment(c rpc.CommitmentType) RPCOption {
	return func(o *rpcOptions) {
		o.commitment = c
	}
}

// WithRateLimit sets the client-side request rate limit and burst.
func WithRateLimit(rps float64, burst int) RPCOption {
	return func(o *rpcOptions) {
		o.rps = rps
		o.burst = burst
	}
}

// WithRPCLogger sets the logger for fetch diagnostics.
func WithRPCLogger(logger *slog.Logger) RPCOption {
	return func(o *rpcOptions) {
		o.logger = logger
	}
}

// RPCClient is the production data source over the Solana JSON-RPC API.
//
// Description:
//
//	Implements TransactionSource via getSignaturesForAddress followed by
//	per-signature getTransaction calls, and DetailSource via a single
//	getTransaction. All requests pass through a client-side rate limiter
//	so recursive graph expansion cannot hammer the endpoint.
//
// Thread Safety:
//
//	Safe for concurrent use. The underlying RPC client and the rate
//	limiter are both concurrency-safe.
type RPCClient struct {
	client     *rpc.Client
	limiter    *rate.Limiter
	commitment rpc.CommitmentType
	logger     *slog.Logger
}

// NewRPCClient creates an RPC-backed data source for the given endpoint.
//
// Example:
//
//	src := NewRPCClient(rpc.MainNetBeta_RPC,
//	    WithCommitment(rpc.CommitmentFinalized),
//	    WithRateLimit(4, 4),
//	)
func NewRPCClient(endpoint string, opts ...RPCOption) *RPCClient {
	options := rpcOptions{
		commitment: rpc.CommitmentConfirmed,
		rps:        DefaultRequestsPerSecond,
		burst:      DefaultBurst,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.rps <= 0 {
		options.rps = DefaultRequestsPerSecond
	}
	if options.burst <= 0 {
		options.burst = DefaultBurst
	}

	return &RPCClient{
		client:     rpc.New(endpoint),
		limiter:    rate.NewLimiter(rate.Limit(options.rps), options.burst),
		commitment: options.commitment,
		logger:     options.logger,
	}
}

// AccountTransactions returns up to limit recent transactions for the
// account, newest first.
//
// Description:
//
//	Fetches the account's signature window, then resolves each signature
//	to its full transaction to recover touched accounts and balance
//	deltas. Signatures whose detail fetch fails are skipped with a debug
//	log; a degraded window is better than no window.
//
// Inputs:
//
//	ctx - Context for cancellation and rate-limiter waits.
//	address - Base58 account address.
//	limit - Maximum window size; clamped to [1, 1000].
//
// Outputs:
//
//	[]TransactionInfo - The resolved window. Empty when the account has
//	no history.
//	error - Non-nil when the address is invalid or the window itself
//	could not be fetched.
func (c *RPCClient) AccountTransactions(ctx context.Context, address string, limit int) ([]TransactionInfo, error) {
	ctx, span := startFetchSpan(ctx, "AccountTransactions", address)
	defer span.End()
	start := time.Now()

	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		recordFetchMetrics(ctx, "account_transactions", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	if limit <= 0 {
		limit = 1
	}
	if limit > maxSignatureWindow {
		limit = maxSignatureWindow
	}

	if err := c.limiter.Wait(ctx); err != nil {
		recordFetchMetrics(ctx, "account_transactions", time.Since(start), 0, false)
		return nil, err
	}

	sigs, err := c.client.GetSignaturesForAddressWithOpts(ctx, pk, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: c.commitment,
	})
	if err != nil {
		recordFetchMetrics(ctx, "account_transactions", time.Since(start), 0, false)
		return nil, fmt.Errorf("fetching signatures for %s: %w", address, err)
	}

	infos := make([]TransactionInfo, 0, len(sigs))
	for _, sig := range sigs {
		if sig == nil {
			continue
		}

		info, err := c.transaction(ctx, sig.Signature)
		if err != nil {
			if ctx.Err() != nil {
				recordFetchMetrics(ctx, "account_transactions", time.Since(start), len(infos), false)
				return infos, ctx.Err()
			}
			c.logger.Debug("skipping transaction detail",
				"signature", sig.Signature.String(),
				"error", err,
			)
			continue
		}

		if info.BlockTime.IsZero() && sig.BlockTime != nil {
			info.BlockTime = sig.BlockTime.Time()
		}
		infos = append(infos, info)
	}

	recordFetchMetrics(ctx, "account_transactions", time.Since(start), len(infos), true)
	return infos, nil
}

// TransactionAccounts returns the accounts a transaction touched, in
// message order.
//
// Inputs:
//
//	ctx - Context for cancellation and rate-limiter waits.
//	signature - Base58 transaction signature.
//
// Outputs:
//
//	[]string - Base58 addresses of every account in the message.
//	error - ErrInvalidSignature for malformed input, ErrNotFound when
//	the node has no record of the transaction.
func (c *RPCClient) TransactionAccounts(ctx context.Context, signature string) ([]string, error) {
	ctx, span := startFetchSpan(ctx, "TransactionAccounts", signature)
	defer span.End()
	start := time.Now()

	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		recordFetchMetrics(ctx, "transaction_accounts", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: %q", ErrInvalidSignature, signature)
	}

	info, err := c.transaction(ctx, sig)
	if err != nil {
		recordFetchMetrics(ctx, "transaction_accounts", time.Since(start), 0, false)
		return nil, err
	}

	accounts := make([]string, 0, len(info.Accounts))
	for _, ref := range info.Accounts {
		accounts = append(accounts, ref.Pubkey)
	}

	recordFetchMetrics(ctx, "transaction_accounts", time.Since(start), len(accounts), true)
	return accounts, nil
}

// Close releases the underlying RPC connection.
func (c *RPCClient) Close() error {
	return c.client.Close()
}

// transaction resolves one signature to a TransactionInfo.
func (c *RPCClient) transaction(ctx context.Context, sig solana.Signature) (TransactionInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return TransactionInfo{}, err
	}

	result, err := c.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxSupportedTransactionVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return TransactionInfo{}, fmt.Errorf("%w: %s", ErrNotFound, sig)
		}
		return TransactionInfo{}, fmt.Errorf("fetching transaction %s: %w", sig, err)
	}
	if result == nil || result.Transaction == nil {
		return TransactionInfo{}, fmt.Errorf("%w: %s", ErrNotFound, sig)
	}

	decoded, err := result.Transaction.GetTransaction()
	if err != nil {
		return TransactionInfo{}, fmt.Errorf("decoding transaction %s: %w", sig, err)
	}
	if decoded == nil {
		return TransactionInfo{}, fmt.Errorf("%w: %s", ErrNotFound, sig)
	}

	info := TransactionInfo{
		Signature: sig.String(),
		Success:   true,
		Accounts:  accountRefs(&decoded.Message),
	}
	if result.BlockTime != nil {
		info.BlockTime = result.BlockTime.Time()
	}
	if result.Meta != nil {
		info.Success = result.Meta.Err == nil
		info.Transfers = balanceChanges(decoded.Message.AccountKeys, result.Meta.PreBalances, result.Meta.PostBalances)
	}
	return info, nil
}

// accountRefs derives signer/writable flags for each static account key
// from the message header layout: signed writable, signed read-only,
// unsigned writable, unsigned read-only.
func accountRefs(msg *solana.Message) []AccountRef {
	keys := msg.AccountKeys
	header := msg.Header
	numSigned := int(header.NumRequiredSignatures)

	refs := make([]AccountRef, 0, len(keys))
	for i, key := range keys {
		writable := (i < numSigned-int(header.NumReadonlySignedAccounts)) ||
			(i >= numSigned && i < len(keys)-int(header.NumReadonlyUnsignedAccounts))
		refs = append(refs, AccountRef{
			Pubkey:   key.String(),
			Signer:   i < numSigned,
			Writable: writable,
		})
	}
	return refs
}

// balanceChanges pairs pre/post balances by account index and keeps the
// non-zero deltas. Slices may disagree in length on malformed responses;
// only the common prefix is considered.
func balanceChanges(keys []solana.PublicKey, pre, post []uint64) []BalanceChange {
	n := len(keys)
	if len(pre) < n {
		n = len(pre)
	}
	if len(post) < n {
		n = len(post)
	}

	changes := make([]BalanceChange, 0, n)
	for i := 0; i < n; i++ {
		delta := int64(post[i]) - int64(pre[i])
		if delta == 0 {
			continue
		}
		changes = append(changes, BalanceChange{
			Account:        keys[i].String(),
			ChangeLamports: delta,
		})
	}
	return changes
}

// Interface conformance checks.
var (
	_ TransactionSource = (*RPCClient)(nil)
	_ DetailSource      = (*RPCClient)(nil)
)

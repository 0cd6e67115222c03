// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package focus manages which transaction an exploration session is
// centered on.
//
// Focus requests are debounced so rapid navigation collapses to the
// last target, and every expansion pass carries a generation token so
// a superseded pass discards its results instead of applying them to a
// graph the user has already moved past. The highlight set is published
// atomically on pass completion; no partial transition is observable.
package focus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultDebounce is the window within which repeated focus requests
// collapse to the last one.
const DefaultDebounce = 300 * time.Millisecond

// Expander is the slice of the graph builder the controller drives.
type Expander interface {
	// ConnectedAccounts returns the account nodes adjacent to a
	// transaction node.
	ConnectedAccounts(signature string) []string

	// IsExpanded reports whether an account has already been expanded.
	IsExpanded(address string) bool

	// AddAccount expands one account into the graph.
	AddAccount(ctx context.Context, address string, depth int, parentSignature string) error

	// Invalidate discards any in-flight expansion passes.
	Invalidate()
}

// Options configures a Controller.
type Options struct {
	// Debounce is the collapse window for rapid focus requests.
	// Default: 300ms
	Debounce time.Duration

	// Callback is invoked with the newly focused signature after a
	// pass completes. It runs outside the controller lock, so it may
	// call back into the controller. May be nil.
	Callback func(signature string)

	// Logger receives expansion diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Debounce: DefaultDebounce,
	}
}

// Option is a functional option for configuring the Controller.
type Option func(*Options)

// WithDebounce sets the focus-request collapse window.
func WithDebounce(d time.Duration) Option {
	return func(o *Options) {
		o.Debounce = d
	}
}

// WithCallback sets the focus-changed callback.
func WithCallback(fn func(signature string)) Option {
	return func(o *Options) {
		o.Callback = fn
	}
}

// WithLogger sets the logger for expansion diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Controller debounces focus requests and drives the neighborhood
// expansion for the focused transaction.
//
// # Thread Safety
//
// All methods are safe for concurrent use. One controller belongs to
// one exploration session, paired with that session's builder.
type Controller struct {
	options Options
	graph   Expander
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	timer       *time.Timer
	pending     string
	gen         int64
	lastFired   int64
	focused     string
	highlighted []string
	closed      bool
}

// NewController creates a Controller over the given expander.
//
// Inputs:
//
//	graph - The builder slice to expand through. Must be non-nil for
//	focus requests to take effect.
//	opts - Optional configuration.
func NewController(graph Expander, opts ...Option) *Controller {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Debounce <= 0 {
		options.Debounce = DefaultDebounce
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		options: options,
		graph:   graph,
		logger:  options.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// FocusOnTransaction requests a focus transition to the given
// signature.
//
// Description:
//
//	The request arms (or re-arms) the debounce timer; requests landing
//	within the window collapse to the last signature. Each request
//	invalidates any in-flight expansion so late fetch results are
//	discarded. When the timer fires, the pass expands every connected
//	account not yet expanded, then atomically publishes the focus and
//	highlight set and fires the focus-changed callback - unless a newer
//	request superseded it, in which case nothing is published.
//
// Inputs:
//
//	signature - The transaction to focus. Empty is ignored.
func (c *Controller) FocusOnTransaction(signature string) {
	if signature == "" {
		c.logger.Warn("ignoring focus request with empty signature")
		return
	}
	if c.graph == nil {
		c.logger.Warn("ignoring focus request with no graph configured", "signature", signature)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.pending = signature
	c.gen++
	c.graph.Invalidate()

	if c.timer != nil {
		c.timer.Stop()
		recordCollapsed(c.ctx)
	}
	c.timer = time.AfterFunc(c.options.Debounce, c.firePending)
}

// firePending runs on the debounce timer goroutine. A stopped timer
// can still fire once; the lastFired check keeps one request window
// from producing two passes.
func (c *Controller) firePending() {
	c.mu.Lock()
	if c.closed || c.gen == c.lastFired {
		c.mu.Unlock()
		return
	}
	signature := c.pending
	gen := c.gen
	c.lastFired = gen
	c.timer = nil
	c.mu.Unlock()

	c.runPass(signature, gen)
}

// runPass performs one focus transition: expand unexpanded connected
// accounts, then publish focus, highlight, and callback if the pass is
// still current.
func (c *Controller) runPass(signature string, gen int64) {
	ctx, span := startPassSpan(c.ctx, signature)
	defer span.End()
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for _, account := range c.graph.ConnectedAccounts(signature) {
		if c.graph.IsExpanded(account) {
			continue
		}
		g.Go(func() error {
			return c.graph.AddAccount(gctx, account, 0, signature)
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			recordPassMetrics(ctx, time.Since(start), passSuperseded)
			return
		}
		c.logger.Warn("focus expansion failed", "signature", signature, "error", err)
		recordPassMetrics(ctx, time.Since(start), passFailed)
		return
	}

	// Recompute after expansion: resolving the transaction's window may
	// have attached more accounts to it.
	highlight := append([]string{signature}, c.graph.ConnectedAccounts(signature)...)

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		recordPassMetrics(ctx, time.Since(start), passSuperseded)
		return
	}
	c.focused = signature
	c.highlighted = highlight
	callback := c.options.Callback
	c.mu.Unlock()

	recordPassMetrics(ctx, time.Since(start), passApplied)
	if callback != nil {
		callback(signature)
	}
}

// FocusedTransaction returns the signature of the last completed focus
// transition, or empty before any.
func (c *Controller) FocusedTransaction() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused
}

// Highlighted returns the current highlight set: the focused
// transaction followed by its connected accounts.
func (c *Controller) Highlighted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.highlighted))
	copy(out, c.highlighted)
	return out
}

// IsHighlighted reports whether a node is part of the current
// highlight set.
func (c *Controller) IsHighlighted(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.highlighted {
		if h == id {
			return true
		}
	}
	return false
}

// Close cancels any pending debounce timer and in-flight pass. The
// controller accepts no further focus requests. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	if c.graph != nil {
		c.graph.Invalidate()
	}
	c.cancel()
}

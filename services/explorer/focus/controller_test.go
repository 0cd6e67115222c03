// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package focus

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openSVM/opensvm-sub007/services/explorer/graph"
)

// The production builder must satisfy the controller's contract.
var _ Expander = (*graph.Builder)(nil)

// expandCall records one AddAccount invocation.
type expandCall struct {
	address string
	depth   int
	parent  string
}

// fakeExpander is a controllable Expander double. Setting block gates
// AddAccount until the channel closes; started signals each entry.
type fakeExpander struct {
	mu          sync.Mutex
	connections map[string][]string
	expanded    map[string]bool
	grow        map[string][]string
	calls       []expandCall
	invalidates int

	block   chan struct{}
	started chan string
}

func newFakeExpander(connections map[string][]string) *fakeExpander {
	return &fakeExpander{
		connections: connections,
		expanded:    make(map[string]bool),
	}
}

func (f *fakeExpander) ConnectedAccounts(signature string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.connections[signature]))
	copy(out, f.connections[signature])
	return out
}

func (f *fakeExpander) IsExpanded(address string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expanded[address]
}

func (f *fakeExpander) AddAccount(ctx context.Context, address string, depth int, parentSignature string) error {
	if f.started != nil {
		f.started <- address
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, expandCall{address: address, depth: depth, parent: parentSignature})
	f.expanded[address] = true
	if extra, ok := f.grow[parentSignature]; ok {
		f.connections[parentSignature] = append(f.connections[parentSignature], extra...)
		delete(f.grow, parentSignature)
	}
	return nil
}

func (f *fakeExpander) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidates++
}

func (f *fakeExpander) expandedAddresses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, call := range f.calls {
		out = append(out, call.address)
	}
	return out
}

func (f *fakeExpander) invalidateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidates
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// awaitCallback waits for one focus-changed callback or fails the test.
func awaitCallback(t *testing.T, done <-chan string) string {
	t.Helper()
	select {
	case sig := <-done:
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for focus-changed callback")
		return ""
	}
}

// assertNoCallback fails if a callback arrives within the window.
func assertNoCallback(t *testing.T, done <-chan string, window time.Duration) {
	t.Helper()
	select {
	case sig := <-done:
		t.Fatalf("unexpected focus-changed callback for %q", sig)
	case <-time.After(window):
	}
}

// TestController_DebounceCollapses verifies rapid repeated focus
// requests trigger exactly one expansion pass and one callback.
func TestController_DebounceCollapses(t *testing.T) {
	fake := newFakeExpander(map[string][]string{"TxA": {"Acc1", "Acc2"}})
	done := make(chan string, 4)
	ctrl := NewController(fake,
		WithDebounce(40*time.Millisecond),
		WithCallback(func(sig string) { done <- sig }),
		WithLogger(quietLogger()),
	)
	defer ctrl.Close()

	ctrl.FocusOnTransaction("TxA")
	ctrl.FocusOnTransaction("TxA")
	ctrl.FocusOnTransaction("TxA")

	assert.Equal(t, "TxA", awaitCallback(t, done))
	assertNoCallback(t, done, 150*time.Millisecond)

	assert.ElementsMatch(t, []string{"Acc1", "Acc2"}, fake.expandedAddresses(),
		"each connected account expands exactly once")
	assert.Equal(t, "TxA", ctrl.FocusedTransaction())
	assert.Equal(t, []string{"TxA", "Acc1", "Acc2"}, ctrl.Highlighted())
	assert.True(t, ctrl.IsHighlighted("Acc1"))
	assert.False(t, ctrl.IsHighlighted("TxB"))
	assert.Equal(t, 3, fake.invalidateCount(), "every request invalidates in-flight work")

	t.Run("ExpansionInputs", func(t *testing.T) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		for _, call := range fake.calls {
			assert.Zero(t, call.depth, "focus expansion restarts the depth budget")
			assert.Equal(t, "TxA", call.parent)
		}
	})
}

// TestController_LastRequestWins verifies two different targets inside
// the debounce window resolve to the later one only.
func TestController_LastRequestWins(t *testing.T) {
	fake := newFakeExpander(map[string][]string{
		"TxA": {"Acc1"},
		"TxB": {"Acc2"},
	})
	done := make(chan string, 4)
	ctrl := NewController(fake,
		WithDebounce(40*time.Millisecond),
		WithCallback(func(sig string) { done <- sig }),
		WithLogger(quietLogger()),
	)
	defer ctrl.Close()

	ctrl.FocusOnTransaction("TxA")
	ctrl.FocusOnTransaction("TxB")

	assert.Equal(t, "TxB", awaitCallback(t, done))
	assertNoCallback(t, done, 150*time.Millisecond)

	assert.Equal(t, []string{"Acc2"}, fake.expandedAddresses(), "the superseded target must not expand")
	assert.Equal(t, "TxB", ctrl.FocusedTransaction())
}

// TestController_SkipsExpandedAccounts verifies already-expanded
// connected accounts are not re-expanded but stay highlighted.
func TestController_SkipsExpandedAccounts(t *testing.T) {
	fake := newFakeExpander(map[string][]string{"TxA": {"Acc1", "Acc2"}})
	fake.expanded["Acc1"] = true
	done := make(chan string, 1)
	ctrl := NewController(fake,
		WithDebounce(10*time.Millisecond),
		WithCallback(func(sig string) { done <- sig }),
		WithLogger(quietLogger()),
	)
	defer ctrl.Close()

	ctrl.FocusOnTransaction("TxA")
	awaitCallback(t, done)

	assert.Equal(t, []string{"Acc2"}, fake.expandedAddresses())
	assert.Equal(t, []string{"TxA", "Acc1", "Acc2"}, ctrl.Highlighted())
}

// TestController_SupersededPassDiscarded verifies a pass overtaken
// mid-flight publishes nothing: no focus, no highlight, no callback.
func TestController_SupersededPassDiscarded(t *testing.T) {
	fake := newFakeExpander(map[string][]string{
		"TxA": {"Acc1"},
		"TxB": {"Acc2"},
	})
	fake.block = make(chan struct{})
	fake.started = make(chan string, 8)
	done := make(chan string, 4)
	ctrl := NewController(fake,
		WithDebounce(time.Millisecond),
		WithCallback(func(sig string) { done <- sig }),
		WithLogger(quietLogger()),
	)
	defer ctrl.Close()

	ctrl.FocusOnTransaction("TxA")
	<-fake.started // TxA's pass is in flight

	ctrl.FocusOnTransaction("TxB")
	close(fake.block)

	assert.Equal(t, "TxB", awaitCallback(t, done))
	assertNoCallback(t, done, 150*time.Millisecond)

	assert.Equal(t, "TxB", ctrl.FocusedTransaction())
	assert.Equal(t, []string{"TxB", "Acc2"}, ctrl.Highlighted())
	assert.Contains(t, fake.expandedAddresses(), "Acc1",
		"the first pass ran; only its publication was discarded")
}

// TestController_HighlightReflectsExpansion verifies the highlight set
// is recomputed after expansion so newly attached accounts appear.
func TestController_HighlightReflectsExpansion(t *testing.T) {
	fake := newFakeExpander(map[string][]string{"TxA": {"Acc1"}})
	fake.grow = map[string][]string{"TxA": {"Acc3"}}
	done := make(chan string, 1)
	ctrl := NewController(fake,
		WithDebounce(10*time.Millisecond),
		WithCallback(func(sig string) { done <- sig }),
		WithLogger(quietLogger()),
	)
	defer ctrl.Close()

	ctrl.FocusOnTransaction("TxA")
	awaitCallback(t, done)

	assert.Equal(t, []string{"Acc1"}, fake.expandedAddresses(),
		"accounts attached mid-pass are not expanded this pass")
	assert.Equal(t, []string{"TxA", "Acc1", "Acc3"}, ctrl.Highlighted())
}

// TestController_Close verifies closing cancels pending timers, rejects
// later requests, and is idempotent.
func TestController_Close(t *testing.T) {
	fake := newFakeExpander(map[string][]string{"TxA": {"Acc1"}})
	done := make(chan string, 1)
	ctrl := NewController(fake,
		WithDebounce(50*time.Millisecond),
		WithCallback(func(sig string) { done <- sig }),
		WithLogger(quietLogger()),
	)

	ctrl.FocusOnTransaction("TxA")
	ctrl.Close()

	assertNoCallback(t, done, 120*time.Millisecond)
	assert.Empty(t, fake.expandedAddresses())
	assert.Empty(t, ctrl.FocusedTransaction())

	t.Run("FocusAfterCloseIgnored", func(t *testing.T) {
		ctrl.FocusOnTransaction("TxA")
		assertNoCallback(t, done, 120*time.Millisecond)
		assert.Empty(t, fake.expandedAddresses())
	})

	t.Run("Idempotent", func(t *testing.T) {
		require.NotPanics(t, func() { ctrl.Close() })
	})
}

// TestController_CloseInterruptsInFlight verifies closing mid-pass
// cancels the expansion and publishes nothing.
func TestController_CloseInterruptsInFlight(t *testing.T) {
	fake := newFakeExpander(map[string][]string{"TxA": {"Acc1"}})
	fake.block = make(chan struct{}) // never closed; only cancellation releases
	fake.started = make(chan string, 2)
	done := make(chan string, 1)
	ctrl := NewController(fake,
		WithDebounce(time.Millisecond),
		WithCallback(func(sig string) { done <- sig }),
		WithLogger(quietLogger()),
	)

	ctrl.FocusOnTransaction("TxA")
	<-fake.started
	ctrl.Close()

	assertNoCallback(t, done, 150*time.Millisecond)
	assert.Empty(t, ctrl.FocusedTransaction())
	assert.Empty(t, ctrl.Highlighted())
}

// TestController_EmptySignatureIgnored verifies an empty focus request
// arms nothing.
func TestController_EmptySignatureIgnored(t *testing.T) {
	fake := newFakeExpander(map[string][]string{})
	done := make(chan string, 1)
	ctrl := NewController(fake,
		WithDebounce(10*time.Millisecond),
		WithCallback(func(sig string) { done <- sig }),
		WithLogger(quietLogger()),
	)
	defer ctrl.Close()

	ctrl.FocusOnTransaction("")

	assertNoCallback(t, done, 60*time.Millisecond)
	assert.Zero(t, fake.invalidateCount())
}

// TestController_CallbackReentrancy verifies the callback may call back
// into the controller without deadlocking.
func TestController_CallbackReentrancy(t *testing.T) {
	fake := newFakeExpander(map[string][]string{"TxA": {"Acc1"}})
	done := make(chan string, 1)
	var ctrl *Controller
	ctrl = NewController(fake,
		WithDebounce(10*time.Millisecond),
		WithCallback(func(sig string) {
			done <- ctrl.FocusedTransaction()
		}),
		WithLogger(quietLogger()),
	)
	defer ctrl.Close()

	ctrl.FocusOnTransaction("TxA")

	assert.Equal(t, "TxA", awaitCallback(t, done),
		"focus must already be published when the callback fires")
}

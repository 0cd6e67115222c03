// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Integration test for exploration-state durability. Drives the full
// stack in-process: HTTP API over a real BadgerDB durable tier, then a
// simulated restart that must restore the saved exploration.

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openSVM/opensvm-sub007/services/explorer/config"
	"github.com/openSVM/opensvm-sub007/services/explorer/server"
	"github.com/openSVM/opensvm-sub007/services/explorer/source"
	"github.com/openSVM/opensvm-sub007/services/explorer/state"
	"github.com/openSVM/opensvm-sub007/services/explorer/storage/badger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeChain serves canned transaction windows and detail lookups.
// Accounts without a seeded window return empty histories, matching a
// quiet chain rather than an error.
type fakeChain struct {
	mu      sync.Mutex
	windows map[string][]source.TransactionInfo
	details map[string][]string
}

func (f *fakeChain) AccountTransactions(_ context.Context, address string, _ int) ([]source.TransactionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.windows[address], nil
}

func (f *fakeChain) TransactionAccounts(_ context.Context, signature string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.details[signature], nil
}

// openBadgerStore opens a state store over a BadgerDB at dir.
func openBadgerStore(t *testing.T, dir string) (*state.Store, func()) {
	t.Helper()

	bcfg := badger.DefaultConfig()
	bcfg.Path = dir
	bcfg.SyncWrites = false
	bcfg.GCInterval = 0
	kv, err := badger.Open(bcfg)
	require.NoError(t, err)

	quiet := slog.New(slog.DiscardHandler)
	store := state.New(kv, state.WithStoreLogger(quiet))
	return store, func() {
		require.NoError(t, kv.Close())
	}
}

// newExplorer builds a server over the fake chain and the given store.
func newExplorer(t *testing.T, store *state.Store, chain *fakeChain) *server.Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Graph.EagerDepth = 0
	cfg.Graph.FocusDebounce = config.Duration(10 * time.Millisecond)

	srv, err := server.New(&cfg, store, chain, chain, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return srv
}

// doJSON performs one JSON request against the server's router.
func doJSON(t *testing.T, srv *server.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

// TestExplorationSurvivesRestart walks the full exploration lifecycle:
// seed a session from a signature, focus it, save the exploration
// state, tear the stack down, and verify a fresh stack over the same
// data directory restores the state both directly and over HTTP.
func TestExplorationSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	chain := &fakeChain{
		windows: map[string][]source.TransactionInfo{},
		details: map[string][]string{
			"Tx9": {"Acc8", "Acc9"},
		},
	}

	// --- First run: explore and save ---
	t.Log("Starting first explorer instance...")
	store, closeStore := openBadgerStore(t, dir)
	srv := newExplorer(t, store, chain)

	w := doJSON(t, srv, "POST", "/v1/graph/sessions", `{"signature": "Tx9"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var sess server.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	nodeIDs := make([]string, 0, len(sess.Graph.Nodes))
	for _, n := range sess.Graph.Nodes {
		nodeIDs = append(nodeIDs, n.ID)
	}
	edgeIDs := make([]string, 0, len(sess.Graph.Edges))
	for _, e := range sess.Graph.Edges {
		edgeIDs = append(edgeIDs, e.ID)
	}
	require.ElementsMatch(t, []string{"Tx9", "Acc8", "Acc9"}, nodeIDs)
	require.Len(t, edgeIDs, 2)

	t.Log("Focusing the seeded transaction...")
	w = doJSON(t, srv, "POST", "/v1/graph/sessions/"+sess.SessionID+"/focus", `{"signature": "Tx9"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		w := doJSON(t, srv, "GET", "/v1/graph/sessions/"+sess.SessionID, "")
		if w.Code != http.StatusOK {
			return false
		}
		var got server.SessionResponse
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			return false
		}
		return got.Focused == "Tx9"
	}, 2*time.Second, 10*time.Millisecond, "focus pass should land after the debounce")

	t.Log("Saving the exploration state...")
	saved := state.EnhancedGraphState{
		GraphState: state.GraphState{
			FocusedTransaction: "Tx9",
			Nodes:              nodeIDs,
			Edges:              edgeIDs,
			Viewport:           state.Viewport{Zoom: 1.25, PanX: 40, PanY: -10},
			Title:              "seed exploration",
			Timestamp:          time.Now(),
		},
		ExpandedNodes:  state.NewStringSet("Acc8", "Acc9"),
		ExpansionDepth: map[string]int{"Acc8": 0, "Acc9": 0},
	}
	body, err := json.Marshal(saved)
	require.NoError(t, err)
	w = doJSON(t, srv, "PUT", "/v1/graph/state/Tx9", string(body))
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = doJSON(t, srv, "DELETE", "/v1/graph/sessions/"+sess.SessionID, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	t.Log("Stopping first instance...")
	closeStore()

	// --- Second run: restore ---
	t.Log("Starting second explorer instance over the same data directory...")
	store2, closeStore2 := openBadgerStore(t, dir)
	defer closeStore2()

	ctx := context.Background()
	restored := store2.LoadState(ctx, "Tx9")
	require.NotNil(t, restored, "saved state should survive the restart")
	assert.Equal(t, "Tx9", restored.FocusedTransaction)
	assert.ElementsMatch(t, nodeIDs, restored.Nodes)
	assert.ElementsMatch(t, edgeIDs, restored.Edges)
	assert.Equal(t, "seed exploration", restored.Title)
	assert.InDelta(t, 1.25, restored.Viewport.Zoom, 0.001)
	assert.True(t, restored.ExpandedNodes.Has("Acc8"))
	assert.True(t, restored.ExpandedNodes.Has("Acc9"))
	assert.Equal(t, 0, restored.ExpansionDepth["Acc9"])

	latest := store2.LoadState(ctx, "")
	require.NotNil(t, latest, "latest pointer should survive the restart")
	assert.Equal(t, "Tx9", latest.FocusedTransaction)

	graphs := store2.SavedGraphs(ctx)
	require.Len(t, graphs, 1)
	assert.Equal(t, "Tx9", graphs[0].Signature)
	assert.Equal(t, len(nodeIDs), graphs[0].NodeCount)

	t.Log("Restoring over HTTP...")
	srv2 := newExplorer(t, store2, chain)
	w = doJSON(t, srv2, "GET", "/v1/graph/state", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var viaHTTP state.EnhancedGraphState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &viaHTTP))
	assert.Equal(t, "Tx9", viaHTTP.FocusedTransaction)
	assert.ElementsMatch(t, nodeIDs, viaHTTP.Nodes)
}

// TestSaveMergesAcrossRestart verifies that a second save over the same
// signature merges with the persisted record instead of replacing it.
func TestSaveMergesAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	chain := &fakeChain{windows: map[string][]source.TransactionInfo{}, details: map[string][]string{}}

	store, closeStore := openBadgerStore(t, dir)
	srv := newExplorer(t, store, chain)

	first := state.EnhancedGraphState{
		GraphState: state.GraphState{
			FocusedTransaction: "TxM",
			Nodes:              []string{"TxM", "AccA"},
			Edges:              []string{"TxM->AccA"},
			Title:              "first pass",
			Timestamp:          time.Now(),
		},
		ExpandedNodes:  state.NewStringSet("AccA"),
		ExpansionDepth: map[string]int{"AccA": 1},
	}
	body, err := json.Marshal(first)
	require.NoError(t, err)
	w := doJSON(t, srv, "PUT", "/v1/graph/state/TxM", string(body))
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	closeStore()

	// Restart, then save a snapshot that explored a different branch.
	store2, closeStore2 := openBadgerStore(t, dir)
	defer closeStore2()
	srv2 := newExplorer(t, store2, chain)

	second := state.EnhancedGraphState{
		GraphState: state.GraphState{
			FocusedTransaction: "TxM",
			Nodes:              []string{"TxM", "AccB"},
			Edges:              []string{"TxM->AccB"},
			Timestamp:          time.Now(),
		},
		ExpandedNodes:  state.NewStringSet("AccB"),
		ExpansionDepth: map[string]int{"AccA": 3, "AccB": 0},
	}
	body, err = json.Marshal(second)
	require.NoError(t, err)
	w = doJSON(t, srv2, "PUT", "/v1/graph/state/TxM", string(body))
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	merged := store2.LoadState(context.Background(), "TxM")
	require.NotNil(t, merged)
	assert.True(t, merged.ExpandedNodes.Has("AccA"), "earlier expansion should survive the merge")
	assert.True(t, merged.ExpandedNodes.Has("AccB"))
	assert.Equal(t, 3, merged.ExpansionDepth["AccA"], "deeper excursion wins the depth merge")
	assert.Equal(t, "first pass", merged.Title, "title should persist when the update omits one")
	assert.Equal(t, []string{"TxM", "AccB"}, merged.Nodes, "node list follows the newest snapshot")
}

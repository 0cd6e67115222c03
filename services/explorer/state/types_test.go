// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStringSet_MarshalSorted verifies sets serialize as sorted JSON
// arrays regardless of insertion order.
func TestStringSet_MarshalSorted(t *testing.T) {
	set := NewStringSet("charlie", "alpha", "bravo")

	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `["alpha","bravo","charlie"]`, string(data))

	t.Run("Empty", func(t *testing.T) {
		data, err := json.Marshal(NewStringSet())
		require.NoError(t, err)
		assert.Equal(t, "[]", string(data))
	})
}

// TestStringSet_UnmarshalArray verifies the canonical array form
// decodes into set membership.
func TestStringSet_UnmarshalArray(t *testing.T) {
	var set StringSet
	require.NoError(t, json.Unmarshal([]byte(`["x","y","x"]`), &set))

	assert.Len(t, set, 2)
	assert.True(t, set.Has("x"))
	assert.True(t, set.Has("y"))
	assert.False(t, set.Has("z"))
}

// TestStringSet_UnmarshalLegacyObject verifies object-shaped payloads,
// as older clients serialized expansion sets, decode by key.
func TestStringSet_UnmarshalLegacyObject(t *testing.T) {
	var set StringSet
	require.NoError(t, json.Unmarshal([]byte(`{"Acc1":true,"Acc2":1}`), &set))

	assert.Len(t, set, 2)
	assert.True(t, set.Has("Acc1"))
	assert.True(t, set.Has("Acc2"))
}

// TestStringSet_UnmarshalInvalid verifies scalar payloads are rejected
// rather than silently producing an empty set.
func TestStringSet_UnmarshalInvalid(t *testing.T) {
	var set StringSet
	assert.Error(t, json.Unmarshal([]byte(`42`), &set))
}

// TestEnhancedGraphState_Clone verifies clones share no mutable state
// with the original.
func TestEnhancedGraphState_Clone(t *testing.T) {
	original := &EnhancedGraphState{
		GraphState: GraphState{
			FocusedTransaction: "Tx1",
			Nodes:              []string{"Tx1", "Acc1"},
			Edges:              []string{"Acc1:Tx1:account_to_tx"},
			Viewport:           Viewport{Zoom: 1.5, PanX: 10, PanY: -4},
			Title:              "morning session",
			Timestamp:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		ExpandedNodes:  NewStringSet("Acc1"),
		ExpansionDepth: map[string]int{"Acc1": 0},
		LastTouched:    time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
	}

	clone := original.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, original, clone)

	clone.Nodes = append(clone.Nodes, "Acc2")
	clone.Edges[0] = "mutated"
	clone.ExpandedNodes.Add("Acc2")
	clone.ExpansionDepth["Acc2"] = 1
	clone.Viewport.Zoom = 9

	assert.Len(t, original.Nodes, 2)
	assert.Equal(t, "Acc1:Tx1:account_to_tx", original.Edges[0])
	assert.False(t, original.ExpandedNodes.Has("Acc2"))
	assert.NotContains(t, original.ExpansionDepth, "Acc2")
	assert.Equal(t, 1.5, original.Viewport.Zoom)

	t.Run("Nil", func(t *testing.T) {
		var st *EnhancedGraphState
		assert.Nil(t, st.Clone())
	})
}

// TestMergeStates verifies merging preserves accumulated exploration
// bookkeeping: expansion sets union, per-node depths keep their
// maximum, and an existing title survives a snapshot without one.
func TestMergeStates(t *testing.T) {
	prior := &EnhancedGraphState{
		GraphState: GraphState{
			FocusedTransaction: "Tx1",
			Nodes:              []string{"Tx1", "Acc1", "Acc2"},
			Edges:              []string{"e1", "e2"},
			Title:              "deep dive",
		},
		ExpandedNodes:  NewStringSet("Acc1", "Acc2"),
		ExpansionDepth: map[string]int{"Acc1": 0, "Acc2": 2},
	}
	next := &EnhancedGraphState{
		GraphState: GraphState{
			FocusedTransaction: "Tx1",
			Nodes:              []string{"Tx1", "Acc1"},
			Edges:              []string{"e1"},
			Viewport:           Viewport{Zoom: 2},
		},
		ExpandedNodes:  NewStringSet("Acc1", "Acc3"),
		ExpansionDepth: map[string]int{"Acc2": 1, "Acc3": 3},
	}

	merged := mergeStates(prior, next)
	require.NotNil(t, merged)

	// Graph content tracks the newer snapshot.
	assert.Equal(t, []string{"Tx1", "Acc1"}, merged.Nodes)
	assert.Equal(t, []string{"e1"}, merged.Edges)
	assert.Equal(t, 2.0, merged.Viewport.Zoom)

	// Bookkeeping accumulates.
	assert.ElementsMatch(t, []string{"Acc1", "Acc2", "Acc3"}, merged.ExpandedNodes.Sorted())
	assert.Equal(t, 0, merged.ExpansionDepth["Acc1"])
	assert.Equal(t, 2, merged.ExpansionDepth["Acc2"], "prior deeper expansion must win")
	assert.Equal(t, 3, merged.ExpansionDepth["Acc3"])
	assert.Equal(t, "deep dive", merged.Title)

	t.Run("NilPrior", func(t *testing.T) {
		merged := mergeStates(nil, next)
		require.NotNil(t, merged)
		assert.ElementsMatch(t, []string{"Acc1", "Acc3"}, merged.ExpandedNodes.Sorted())
	})

	t.Run("NewerTitleWins", func(t *testing.T) {
		titled := next.Clone()
		titled.Title = "renamed"
		assert.Equal(t, "renamed", mergeStates(prior, titled).Title)
	})

	t.Run("InputsUntouched", func(t *testing.T) {
		merged := mergeStates(prior, next)
		merged.ExpandedNodes.Add("Acc9")
		merged.ExpansionDepth["Acc9"] = 9
		assert.False(t, prior.ExpandedNodes.Has("Acc9"))
		assert.False(t, next.ExpandedNodes.Has("Acc9"))
		assert.NotContains(t, next.ExpansionDepth, "Acc9")
	})
}

// TestDecodeStateRepairs verifies decoding normalizes payloads with
// missing collections so callers never see nil maps or slices.
func TestDecodeStateRepairs(t *testing.T) {
	st, err := decodeState([]byte(`{"focusedTransaction":"Tx1"}`))
	require.NoError(t, err)
	require.NotNil(t, st)

	assert.NotNil(t, st.Nodes)
	assert.NotNil(t, st.Edges)
	assert.NotNil(t, st.ExpandedNodes)
	assert.NotNil(t, st.ExpansionDepth)
	assert.Empty(t, st.Nodes)
}

// TestValidForSave verifies the save-time validation gate.
func TestValidForSave(t *testing.T) {
	valid := &EnhancedGraphState{
		GraphState: GraphState{
			FocusedTransaction: "Tx1",
			Nodes:              []string{},
			Edges:              []string{},
		},
	}
	assert.NoError(t, validForSave(valid))

	t.Run("NilState", func(t *testing.T) {
		assert.Error(t, validForSave(nil))
	})
	t.Run("EmptyFocus", func(t *testing.T) {
		st := valid.Clone()
		st.FocusedTransaction = ""
		assert.Error(t, validForSave(st))
	})
	t.Run("NilNodes", func(t *testing.T) {
		st := valid.Clone()
		st.Nodes = nil
		assert.Error(t, validForSave(st))
	})
	t.Run("NilEdges", func(t *testing.T) {
		st := valid.Clone()
		st.Edges = nil
		assert.Error(t, validForSave(st))
	})
}

// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openSVM/opensvm-sub007/services/explorer/graph"
)

// testArena builds a small account/transaction arena.
func testArena(t *testing.T) *graph.Arena {
	t.Helper()
	a := graph.NewArena()
	for _, id := range []string{"Acc1", "Acc2", "Acc3"} {
		_, err := a.AddNode(graph.NodeKindAccount, id, id)
		require.NoError(t, err)
	}
	_, err := a.AddNode(graph.NodeKindTransaction, "Tx1", "Tx1")
	require.NoError(t, err)

	_, err = a.AddEdge(graph.EdgeTypeAccountToTx, "Acc1", "Tx1", "")
	require.NoError(t, err)
	_, err = a.AddEdge(graph.EdgeTypeTxToAccount, "Tx1", "Acc2", "")
	require.NoError(t, err)
	_, err = a.AddEdge(graph.EdgeTypeTransfer, "Tx1", "Acc2", "+1 SOL")
	require.NoError(t, err)
	_, err = a.AddEdge(graph.EdgeTypeTxToAccount, "Tx1", "Acc3", "")
	require.NoError(t, err)
	return a
}

// positions collects node positions keyed by ID.
func positions(a *graph.Arena) map[string]graph.Position {
	out := make(map[string]graph.Position)
	for id, node := range a.Nodes() {
		out[id] = node.Position
	}
	return out
}

// TestForceDirected_AssignsPositions verifies Apply spreads nodes out
// rather than leaving them stacked at the origin.
func TestForceDirected_AssignsPositions(t *testing.T) {
	a := testArena(t)
	NewForceDirected().Apply(a)

	got := positions(a)
	require.Len(t, got, 4)

	distinct := make(map[graph.Position]struct{})
	for _, p := range got {
		distinct[p] = struct{}{}
	}
	assert.Len(t, distinct, 4, "expected distinct positions, got %v", got)
}

// TestForceDirected_Deterministic verifies identical arena contents and
// seed produce identical layouts, including across repeated Apply calls.
func TestForceDirected_Deterministic(t *testing.T) {
	first := testArena(t)
	second := testArena(t)

	engine := NewForceDirected(WithSeed(7))
	engine.Apply(first)
	engine.Apply(second)
	assert.Equal(t, positions(first), positions(second))

	t.Run("Recompute", func(t *testing.T) {
		engine.Apply(first)
		assert.Equal(t, positions(first), positions(second))
	})
}

// TestForceDirected_SeedChangesLayout verifies the seed actually feeds
// position initialization.
func TestForceDirected_SeedChangesLayout(t *testing.T) {
	first := testArena(t)
	second := testArena(t)

	NewForceDirected(WithSeed(1)).Apply(first)
	NewForceDirected(WithSeed(2)).Apply(second)

	assert.NotEqual(t, positions(first), positions(second))
}

// TestForceDirected_Scale verifies the scale factor multiplies the unit
// coordinates.
func TestForceDirected_Scale(t *testing.T) {
	unit := testArena(t)
	scaled := testArena(t)

	NewForceDirected(WithSeed(3), WithScale(1)).Apply(unit)
	NewForceDirected(WithSeed(3), WithScale(10)).Apply(scaled)

	unitPos := positions(unit)
	for id, p := range positions(scaled) {
		assert.InDelta(t, unitPos[id].X*10, p.X, 1e-9)
		assert.InDelta(t, unitPos[id].Y*10, p.Y, 1e-9)
	}
}

// TestForceDirected_DegenerateArenas verifies empty and single-node
// arenas are handled without panics.
func TestForceDirected_DegenerateArenas(t *testing.T) {
	engine := NewForceDirected()

	t.Run("Empty", func(t *testing.T) {
		assert.NotPanics(t, func() {
			engine.Apply(graph.NewArena())
		})
	})

	t.Run("SingleNode", func(t *testing.T) {
		a := graph.NewArena()
		_, err := a.AddNode(graph.NodeKindAccount, "Acc1", "Acc1")
		require.NoError(t, err)
		assert.NotPanics(t, func() {
			engine.Apply(a)
		})
	})
}

// TestNull_LeavesPositions verifies the no-op engine preserves whatever
// positions are already set.
func TestNull_LeavesPositions(t *testing.T) {
	a := testArena(t)
	node, ok := a.GetNode("Acc1")
	require.True(t, ok)
	node.Position = graph.Position{X: 42, Y: -7}

	Null{}.Apply(a)

	assert.Equal(t, graph.Position{X: 42, Y: -7}, node.Position)
}

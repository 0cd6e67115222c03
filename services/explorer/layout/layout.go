// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package layout computes node positions for exploration arenas.
//
// Engines implement a full idempotent recompute: Apply may run after
// every expansion and must produce the same positions for the same
// arena contents. Engines run under the arena owner's lock and must not
// retain the arena between calls.
package layout

import (
	"math/rand/v2"

	gonumlayout "gonum.org/v1/gonum/graph/layout"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/openSVM/opensvm-sub007/services/explorer/graph"
)

// Engine computes positions for every node in an arena.
type Engine interface {
	Apply(*graph.Arena)
}

// Null leaves positions untouched, for headless serving where the
// client does its own layout.
type Null struct{}

// Apply implements Engine.
func (Null) Apply(*graph.Arena) {}

// Default force-directed parameters.
const (
	DefaultUpdates   = 60
	DefaultRepulsion = 1.0
	DefaultRate      = 0.05
	DefaultTheta     = 0.1
	DefaultScale     = 100.0
	DefaultSeed      = 1
)

// ForceDirectedOptions configures the force-directed engine.
type ForceDirectedOptions struct {
	// Updates is the number of descent iterations per Apply.
	Updates int

	// Repulsion is the node repulsion strength.
	Repulsion float64

	// Rate is the gradient descent rate.
	Rate float64

	// Theta is the Barnes-Hut opening angle.
	Theta float64

	// Scale multiplies unit-space coordinates into display space.
	Scale float64

	// Seed fixes position initialization so layouts reproduce.
	Seed uint64
}

// DefaultForceDirectedOptions returns sensible defaults.
func DefaultForceDirectedOptions() ForceDirectedOptions {
	return ForceDirectedOptions{
		Updates:   DefaultUpdates,
		Repulsion: DefaultRepulsion,
		Rate:      DefaultRate,
		Theta:     DefaultTheta,
		Scale:     DefaultScale,
		Seed:      DefaultSeed,
	}
}

// ForceDirectedOption is a functional option for configuring
// ForceDirected.
type ForceDirectedOption func(*ForceDirectedOptions)

// WithUpdates sets the number of descent iterations per Apply.
func WithUpdates(n int) ForceDirectedOption {
	return func(o *ForceDirectedOptions) {
		o.Updates = n
	}
}

// WithScale sets the display-space scale factor.
func WithScale(s float64) ForceDirectedOption {
	return func(o *ForceDirectedOptions) {
		o.Scale = s
	}
}

// WithSeed sets the position initialization seed.
func WithSeed(seed uint64) ForceDirectedOption {
	return func(o *ForceDirectedOptions) {
		o.Seed = seed
	}
}

// ForceDirected positions nodes with the Eades spring embedder driven
// by a Barnes-Hut force approximation.
type ForceDirected struct {
	options ForceDirectedOptions
}

// NewForceDirected creates a force-directed engine.
func NewForceDirected(opts ...ForceDirectedOption) *ForceDirected {
	options := DefaultForceDirectedOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &ForceDirected{options: options}
}

// Apply implements Engine. Positions are deterministic for a given
// arena content and seed.
func (f *ForceDirected) Apply(a *graph.Arena) {
	if a.NodeCount() == 0 {
		return
	}

	// Mirror the arena into an undirected gonum graph; insertion order
	// keeps the string/int64 mapping stable across calls.
	g := simple.NewUndirectedGraph()
	index := make(map[string]int64, a.NodeCount())
	for _, id := range a.NodeIDs() {
		n := g.NewNode()
		g.AddNode(n)
		index[id] = n.ID()
	}
	for _, e := range a.Edges() {
		from, to := index[e.Source], index[e.Target]
		if from == to {
			continue
		}
		g.SetEdge(g.NewEdge(g.Node(from), g.Node(to)))
	}

	eades := gonumlayout.EadesR2{
		Updates:   f.options.Updates,
		Repulsion: f.options.Repulsion,
		Rate:      f.options.Rate,
		Theta:     f.options.Theta,
		Src:       rand.NewPCG(f.options.Seed, f.options.Seed),
	}
	optimizer := gonumlayout.NewOptimizerR2(g, eades.Update)
	for optimizer.Update() {
	}

	for id, node := range a.Nodes() {
		coord := optimizer.Coord2(index[id])
		node.Position = graph.Position{
			X: coord.X * f.options.Scale,
			Y: coord.Y * f.options.Scale,
		}
	}
}

// Interface conformance checks.
var (
	_ Engine             = (*ForceDirected)(nil)
	_ Engine             = Null{}
	_ graph.LayoutEngine = (*ForceDirected)(nil)
	_ graph.LayoutEngine = Null{}
)

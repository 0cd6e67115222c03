// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"
	"strings"
)

// Default arena configuration values.
const (
	// DefaultMaxNodes is the default maximum number of nodes an arena
	// can hold. Exploration sessions are interactive and bounded; this
	// is a safety valve, not a working limit.
	DefaultMaxNodes = 10_000

	// DefaultMaxEdges is the default maximum number of edges an arena
	// can hold.
	DefaultMaxEdges = 50_000

	// LamportsPerSOL is the lamport denomination of one SOL.
	LamportsPerSOL = 1_000_000_000
)

// NodeKind distinguishes account nodes from transaction nodes.
type NodeKind int

const (
	// NodeKindUnknown indicates an unrecognized node kind.
	NodeKindUnknown NodeKind = iota

	// NodeKindAccount is a node keyed by an account address.
	NodeKindAccount

	// NodeKindTransaction is a node keyed by a transaction signature.
	NodeKindTransaction

	// NumNodeKinds is the total number of node kinds (for array sizing).
	NumNodeKinds
)

// nodeKindNames maps NodeKind values to their string representations.
var nodeKindNames = map[NodeKind]string{
	NodeKindUnknown:     "unknown",
	NodeKindAccount:     "account",
	NodeKindTransaction: "transaction",
}

// String returns the string representation of the NodeKind.
func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// TxStatus is the on-chain outcome of a transaction node.
type TxStatus int

const (
	// TxStatusUnknown indicates the outcome has not been resolved yet.
	TxStatusUnknown TxStatus = iota

	// TxStatusSuccess indicates the transaction succeeded on-chain.
	TxStatusSuccess

	// TxStatusFailure indicates the transaction failed on-chain.
	TxStatusFailure
)

// String returns the string representation of the TxStatus.
func (s TxStatus) String() string {
	switch s {
	case TxStatusSuccess:
		return "success"
	case TxStatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// EdgeType defines the relationship an edge expresses.
type EdgeType int

const (
	// EdgeTypeUnknown indicates an unrecognized relationship type.
	EdgeTypeUnknown EdgeType = iota

	// EdgeTypeAccountToTx connects the initiating account to a
	// transaction it appears in.
	EdgeTypeAccountToTx

	// EdgeTypeTxToAccount connects a transaction to an account it
	// touched.
	EdgeTypeTxToAccount

	// EdgeTypeTransfer carries a value transfer; its Amount holds the
	// signed SOL label. Direction follows the money: transaction to
	// account for credits, account to transaction for debits.
	EdgeTypeTransfer

	// NumEdgeTypes is the total number of edge types (for array sizing).
	NumEdgeTypes
)

// edgeTypeNames maps EdgeType values to their string representations.
var edgeTypeNames = map[EdgeType]string{
	EdgeTypeUnknown:     "unknown",
	EdgeTypeAccountToTx: "account_to_tx",
	EdgeTypeTxToAccount: "tx_to_account",
	EdgeTypeTransfer:    "transfer",
}

// String returns the string representation of the EdgeType.
func (t EdgeType) String() string {
	if name, ok := edgeTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Position is a node's layout coordinate, owned by the layout engine.
type Position struct {
	X float64
	Y float64
}

// Node is a vertex in the exploration graph.
//
// Nodes are created once and never mutated afterward except for Status
// (resolved when the full transaction is fetched) and Position (owned by
// the layout engine).
type Node struct {
	// ID is the account address or transaction signature. Unique per
	// arena.
	ID string

	// Kind distinguishes account from transaction nodes.
	Kind NodeKind

	// Label is the short display form of the ID.
	Label string

	// Status is the on-chain outcome. Meaningful for transaction nodes
	// only; account nodes stay TxStatusUnknown.
	Status TxStatus

	// Position is the layout coordinate.
	Position Position
}

// Edge is a directed relation between two nodes.
type Edge struct {
	// ID is the deterministic (type, source, target) composite.
	ID string

	// Type is the relationship the edge expresses.
	Type EdgeType

	// Source is the ID of the source node.
	Source string

	// Target is the ID of the target node.
	Target string

	// Amount is the signed human-readable SOL amount. Transfer edges
	// only; empty otherwise.
	Amount string
}

// EdgeID returns the deterministic edge ID for (type, source, target).
//
// The ID is a pure function of its inputs: identical inputs always yield
// identical IDs, which is what makes edge deduplication possible.
func EdgeID(t EdgeType, source, target string) string {
	return source + ":" + target + ":" + t.String()
}

// ShortLabel returns the truncated display form of an address or
// signature: first four and last four characters. IDs no longer than
// the truncated form are returned unchanged.
func ShortLabel(id string) string {
	if len(id) <= 11 {
		return id
	}
	return id[:4] + "..." + id[len(id)-4:]
}

// FormatLamports renders a lamport delta as an always-signed SOL amount,
// e.g. +5 lamports -> "+0.000000005 SOL", -1500000000 -> "-1.5 SOL".
func FormatLamports(delta int64) string {
	sign := "+"
	v := uint64(delta)
	if delta < 0 {
		sign = "-"
		v = uint64(-delta)
	}

	whole := v / LamportsPerSOL
	frac := v % LamportsPerSOL
	if frac == 0 {
		return fmt.Sprintf("%s%d SOL", sign, whole)
	}

	fracStr := strings.TrimRight(fmt.Sprintf("%09d", frac), "0")
	return fmt.Sprintf("%s%d.%s SOL", sign, whole, fracStr)
}

// ArenaOptions configures Arena capacity limits.
type ArenaOptions struct {
	// MaxNodes is the maximum number of nodes the arena can hold.
	// Default: 10,000
	MaxNodes int

	// MaxEdges is the maximum number of edges the arena can hold.
	// Default: 50,000
	MaxEdges int
}

// DefaultArenaOptions returns sensible defaults for arena configuration.
func DefaultArenaOptions() ArenaOptions {
	return ArenaOptions{
		MaxNodes: DefaultMaxNodes,
		MaxEdges: DefaultMaxEdges,
	}
}

// ArenaOption is a functional option for configuring Arena.
type ArenaOption func(*ArenaOptions)

// WithMaxNodes sets the maximum number of nodes the arena can hold.
func WithMaxNodes(n int) ArenaOption {
	return func(o *ArenaOptions) {
		o.MaxNodes = n
	}
}

// WithMaxEdges sets the maximum number of edges the arena can hold.
func WithMaxEdges(n int) ArenaOption {
	return func(o *ArenaOptions) {
		o.MaxEdges = n
	}
}

// Arena holds the deduplicated node/edge set of one exploration session.
//
// Nodes and edges are addressed exclusively by string ID. Insertion
// order is preserved so snapshots are stable across reads.
//
// Thread Safety:
//
//	Arena is NOT safe for concurrent use. The owning Builder serializes
//	all access behind its mutex; the layout engine is invoked under the
//	same lock.
type Arena struct {
	// nodes maps node ID to Node.
	nodes map[string]*Node

	// nodeOrder records node IDs in insertion order.
	nodeOrder []string

	// edges contains all edges in insertion order.
	edges []*Edge

	// edgeIDs is the dedup set over edge IDs.
	edgeIDs map[string]struct{}

	// nodesByKind groups nodes by kind for O(1) kind queries.
	nodesByKind map[NodeKind][]*Node

	// edgesByType groups edges by type. Array indexed by EdgeType.
	edgesByType [NumEdgeTypes][]*Edge

	// options contains capacity configuration.
	options ArenaOptions
}

// NewArena creates an empty arena.
//
// Example:
//
//	a := NewArena()
//	a := NewArena(WithMaxNodes(1_000), WithMaxEdges(5_000))
func NewArena(opts ...ArenaOption) *Arena {
	options := DefaultArenaOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Arena{
		nodes:       make(map[string]*Node),
		nodeOrder:   make([]string, 0),
		edges:       make([]*Edge, 0),
		edgeIDs:     make(map[string]struct{}),
		nodesByKind: make(map[NodeKind][]*Node),
		options:     options,
	}
}

// AddNode inserts a node if absent and returns the arena's node for the
// ID.
//
// Description:
//
//	Adding an ID that already exists is a no-op returning the existing
//	node, which is what makes repeated expansion idempotent. The
//	returned pointer stays owned by the arena; only Status and Position
//	may be mutated through it.
//
// Outputs:
//
//	*Node - The arena's node for the ID.
//	error - ErrInvalidNode for an empty ID, ErrMaxNodesExceeded at
//	capacity.
func (a *Arena) AddNode(kind NodeKind, id, label string) (*Node, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty node ID", ErrInvalidNode)
	}

	if node, ok := a.nodes[id]; ok {
		return node, nil
	}

	if len(a.nodes) >= a.options.MaxNodes {
		return nil, ErrMaxNodesExceeded
	}

	node := &Node{
		ID:    id,
		Kind:  kind,
		Label: label,
	}
	a.nodes[id] = node
	a.nodeOrder = append(a.nodeOrder, id)
	a.nodesByKind[kind] = append(a.nodesByKind[kind], node)

	return node, nil
}

// AddEdge inserts a directed edge if absent.
//
// Description:
//
//	The edge ID is computed from (edgeType, source, target); an edge
//	whose ID already exists is a no-op. Both endpoints must exist in
//	the arena.
//
// Outputs:
//
//	bool - True when a new edge was created.
//	error - ErrNodeNotFound when an endpoint is missing,
//	ErrMaxEdgesExceeded at capacity.
func (a *Arena) AddEdge(edgeType EdgeType, source, target, amount string) (bool, error) {
	id := EdgeID(edgeType, source, target)
	if _, ok := a.edgeIDs[id]; ok {
		return false, nil
	}

	if len(a.edges) >= a.options.MaxEdges {
		return false, ErrMaxEdgesExceeded
	}

	if _, ok := a.nodes[source]; !ok {
		return false, fmt.Errorf("%w: source %s", ErrNodeNotFound, source)
	}
	if _, ok := a.nodes[target]; !ok {
		return false, fmt.Errorf("%w: target %s", ErrNodeNotFound, target)
	}

	edge := &Edge{
		ID:     id,
		Type:   edgeType,
		Source: source,
		Target: target,
		Amount: amount,
	}
	a.edges = append(a.edges, edge)
	a.edgeIDs[id] = struct{}{}
	if edgeType >= 0 && edgeType < NumEdgeTypes {
		a.edgesByType[edgeType] = append(a.edgesByType[edgeType], edge)
	}

	return true, nil
}

// GetNode retrieves a node by its ID.
func (a *Arena) GetNode(id string) (*Node, bool) {
	node, ok := a.nodes[id]
	return node, ok
}

// HasNode reports whether a node with the ID exists.
func (a *Arena) HasNode(id string) bool {
	_, ok := a.nodes[id]
	return ok
}

// NodeCount returns the number of nodes in the arena.
func (a *Arena) NodeCount() int {
	return len(a.nodes)
}

// EdgeCount returns the number of edges in the arena.
func (a *Arena) EdgeCount() int {
	return len(a.edges)
}

// NodeIDs returns all node IDs in insertion order.
func (a *Arena) NodeIDs() []string {
	ids := make([]string, len(a.nodeOrder))
	copy(ids, a.nodeOrder)
	return ids
}

// EdgeIDs returns all edge IDs in insertion order.
func (a *Arena) EdgeIDs() []string {
	ids := make([]string, 0, len(a.edges))
	for _, e := range a.edges {
		ids = append(ids, e.ID)
	}
	return ids
}

// Nodes returns an iterator over all nodes in insertion order.
//
// Example:
//
//	for _, node := range a.Nodes() {
//	    node.Position = Position{X: 0, Y: 0}
//	}
func (a *Arena) Nodes() func(yield func(string, *Node) bool) {
	return func(yield func(string, *Node) bool) {
		for _, id := range a.nodeOrder {
			if !yield(id, a.nodes[id]) {
				return
			}
		}
	}
}

// Edges returns the edge slice in insertion order. Callers must NOT
// modify the returned slice.
func (a *Arena) Edges() []*Edge {
	return a.edges
}

// NodesOfKind returns all nodes of the given kind. Returns a defensive
// copy of the index slice; the nodes themselves stay arena-owned.
func (a *Arena) NodesOfKind(kind NodeKind) []*Node {
	nodes := a.nodesByKind[kind]
	if len(nodes) == 0 {
		return []*Node{}
	}
	result := make([]*Node, len(nodes))
	copy(result, nodes)
	return result
}

// EdgesOfType returns all edges of the given type. Returns a defensive
// copy of the index slice.
func (a *Arena) EdgesOfType(edgeType EdgeType) []*Edge {
	if edgeType < 0 || edgeType >= NumEdgeTypes {
		return []*Edge{}
	}
	edges := a.edgesByType[edgeType]
	if len(edges) == 0 {
		return []*Edge{}
	}
	result := make([]*Edge, len(edges))
	copy(result, edges)
	return result
}

// ArenaStats contains counts describing the arena contents.
type ArenaStats struct {
	// NodeCount is the total number of nodes.
	NodeCount int

	// EdgeCount is the total number of edges.
	EdgeCount int

	// NodesByKind maps each NodeKind to its node count.
	NodesByKind map[NodeKind]int

	// EdgesByType maps each EdgeType to its edge count.
	EdgesByType map[EdgeType]int
}

// Stats returns counts describing the arena contents.
func (a *Arena) Stats() ArenaStats {
	nodesByKind := make(map[NodeKind]int)
	for kind, nodes := range a.nodesByKind {
		if len(nodes) > 0 {
			nodesByKind[kind] = len(nodes)
		}
	}

	edgesByType := make(map[EdgeType]int)
	for i := 0; i < int(NumEdgeTypes); i++ {
		if count := len(a.edgesByType[i]); count > 0 {
			edgesByType[EdgeType(i)] = count
		}
	}

	return ArenaStats{
		NodeCount:   len(a.nodes),
		EdgeCount:   len(a.edges),
		NodesByKind: nodesByKind,
		EdgesByType: edgesByType,
	}
}

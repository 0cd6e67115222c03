// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"time"

	"github.com/openSVM/opensvm-sub007/services/explorer/graph"
)

// ServiceVersion is the explorer service version.
const ServiceVersion = "0.1.0"

// CreateSessionRequest seeds a new exploration session from an account
// address or a transaction signature. Exactly one must be set.
type CreateSessionRequest struct {
	// Account is a base58 account address to expand from.
	Account string `json:"account"`

	// Signature is a base58 transaction signature to seed from.
	Signature string `json:"signature"`
}

// ExpandRequest asks the session's builder to expand one account.
type ExpandRequest struct {
	// Address is the account to expand.
	Address string `json:"address" binding:"required"`

	// Depth is the expansion depth of the account; connected accounts
	// within the eager window are expanded one level deeper.
	Depth int `json:"depth" binding:"min=0"`
}

// FocusRequest moves the session focus to a transaction.
type FocusRequest struct {
	// Signature is the transaction to focus on.
	Signature string `json:"signature" binding:"required"`
}

// NodeView is the wire form of a graph node.
type NodeView struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"`
	Label  string  `json:"label"`
	Status string  `json:"status,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// EdgeView is the wire form of a graph edge.
type EdgeView struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Source string `json:"source"`
	Target string `json:"target"`
	Amount string `json:"amount,omitempty"`
}

// GraphView is a renderable snapshot of a session's graph.
type GraphView struct {
	Nodes    []NodeView `json:"nodes"`
	Edges    []EdgeView `json:"edges"`
	Failures int        `json:"failures"`
}

// SessionResponse describes one exploration session.
type SessionResponse struct {
	SessionID   string    `json:"sessionId"`
	Root        string    `json:"root"`
	CreatedAt   time.Time `json:"createdAt"`
	Focused     string    `json:"focused,omitempty"`
	Highlighted []string  `json:"highlighted,omitempty"`
	Graph       GraphView `json:"graph"`
}

// FocusResponse acknowledges a focus request. The pass itself runs
// after the debounce window; its result arrives on the events socket.
type FocusResponse struct {
	Status    string `json:"status"`
	Signature string `json:"signature"`
}

// StatesResponse enumerates saved exploration states.
type StatesResponse struct {
	Graphs any `json:"graphs"`
	Count  int `json:"count"`
}

// RemovedResponse reports how many records an operation deleted.
type RemovedResponse struct {
	Removed int `json:"removed"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// graphViewFromSnapshot converts a builder snapshot to its wire form.
func graphViewFromSnapshot(snap graph.Snapshot, failures int) GraphView {
	view := GraphView{
		Nodes:    make([]NodeView, 0, len(snap.Nodes)),
		Edges:    make([]EdgeView, 0, len(snap.Edges)),
		Failures: failures,
	}
	for _, n := range snap.Nodes {
		nv := NodeView{
			ID:    n.ID,
			Kind:  n.Kind.String(),
			Label: n.Label,
			X:     n.Position.X,
			Y:     n.Position.Y,
		}
		if n.Kind == graph.NodeKindTransaction {
			nv.Status = n.Status.String()
		}
		view.Nodes = append(view.Nodes, nv)
	}
	for _, e := range snap.Edges {
		view.Edges = append(view.Edges, EdgeView{
			ID:     e.ID,
			Type:   e.Type.String(),
			Source: e.Source,
			Target: e.Target,
			Amount: e.Amount,
		})
	}
	return view
}

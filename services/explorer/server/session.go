// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"time"

	"github.com/openSVM/opensvm-sub007/services/explorer/focus"
	"github.com/openSVM/opensvm-sub007/services/explorer/graph"
	"github.com/openSVM/opensvm-sub007/services/explorer/state"
)

// Session is one exploration session: a builder, its focus controller,
// and the identifiers clients address it by.
//
// Thread Safety:
//
//	The builder and controller are internally synchronized; the
//	remaining fields are written once at creation.
type Session struct {
	// ID is the server-assigned session identifier.
	ID string

	// Root is the account or signature the session was seeded from.
	Root string

	// CreatedAt records session creation time.
	CreatedAt time.Time

	builder *graph.Builder
	focus   *focus.Controller
}

// graphView returns the session's current renderable snapshot.
func (s *Session) graphView() GraphView {
	return graphViewFromSnapshot(s.builder.Snapshot(), len(s.builder.Failures()))
}

// snapshotState captures the session as a persistable exploration
// state keyed by the focused transaction.
func (s *Session) snapshotState() *state.EnhancedGraphState {
	snap := s.builder.Snapshot()
	return &state.EnhancedGraphState{
		GraphState: state.GraphState{
			FocusedTransaction: s.focus.FocusedTransaction(),
			Nodes:              snap.NodeIDs(),
			Edges:              snap.EdgeIDs(),
			Viewport:           state.Viewport{Zoom: 1},
			Timestamp:          time.Now(),
		},
		ExpandedNodes:  state.NewStringSet(s.builder.ExpandedNodes()...),
		ExpansionDepth: s.builder.ExpansionDepths(),
	}
}

// response converts the session to its wire form.
func (s *Session) response() SessionResponse {
	return SessionResponse{
		SessionID:   s.ID,
		Root:        s.Root,
		CreatedAt:   s.CreatedAt,
		Focused:     s.focus.FocusedTransaction(),
		Highlighted: s.focus.Highlighted(),
		Graph:       s.graphView(),
	}
}

// close releases the session's builder and controller.
func (s *Session) close() {
	s.focus.Close()
	s.builder.Close()
}

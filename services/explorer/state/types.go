// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"sort"
	"time"

	json "github.com/goccy/go-json"
)

// Viewport is the camera state of the exploration view.
type Viewport struct {
	Zoom float64 `json:"zoom"`
	PanX float64 `json:"panX"`
	PanY float64 `json:"panY"`
}

// GraphState is one exploration snapshot: the focused transaction plus
// the node/edge ID sequences needed to rebuild the view.
type GraphState struct {
	// FocusedTransaction is the focused signature, the natural key of
	// the snapshot.
	FocusedTransaction string `json:"focusedTransaction"`

	// Nodes holds node IDs in display order.
	Nodes []string `json:"nodes"`

	// Edges holds edge IDs in display order.
	Edges []string `json:"edges"`

	// Viewport is the camera state.
	Viewport Viewport `json:"viewport"`

	// Title is an optional user-facing name for the saved graph.
	Title string `json:"title,omitempty"`

	// Timestamp records when the snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
}

// StringSet is a set of IDs. In memory it is a set; on the wire it is a
// sorted array. The conversion happens only at store/load time, inside
// the JSON boundary.
type StringSet map[string]struct{}

// NewStringSet builds a set from its members.
func NewStringSet(members ...string) StringSet {
	s := make(StringSet, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Add inserts a member.
func (s StringSet) Add(member string) {
	s[member] = struct{}{}
}

// Has reports membership.
func (s StringSet) Has(member string) bool {
	_, ok := s[member]
	return ok
}

// Sorted returns the members in sorted order.
func (s StringSet) Sorted() []string {
	members := make([]string, 0, len(s))
	for m := range s {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// MarshalJSON writes the set as a sorted array.
func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON reads either the array form or the legacy object form.
//
// Old snapshots serialized the set through JSON.stringify, which turns
// a Set into an object; those records are repaired by taking the object
// keys as members.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var members []string
	if err := json.Unmarshal(data, &members); err == nil {
		*s = NewStringSet(members...)
		return nil
	}

	var legacy map[string]json.RawMessage
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}
	set := make(StringSet, len(legacy))
	for m := range legacy {
		set[m] = struct{}{}
	}
	*s = set
	return nil
}

// EnhancedGraphState extends GraphState with exploration bookkeeping so
// a restored session knows what has already been expanded.
type EnhancedGraphState struct {
	GraphState

	// ExpandedNodes is the set of node IDs already expanded.
	ExpandedNodes StringSet `json:"expandedNodes"`

	// ExpansionDepth maps node ID to the depth reached from it.
	ExpansionDepth map[string]int `json:"expansionDepth"`

	// LastTouched drives in-memory LRU eviction.
	LastTouched time.Time `json:"lastTouched"`
}

// Clone returns a deep copy sharing no mutable memory with the
// original.
func (st *EnhancedGraphState) Clone() *EnhancedGraphState {
	if st == nil {
		return nil
	}

	clone := &EnhancedGraphState{
		GraphState:  st.GraphState,
		LastTouched: st.LastTouched,
	}
	if st.Nodes != nil {
		clone.Nodes = make([]string, len(st.Nodes))
		copy(clone.Nodes, st.Nodes)
	}
	if st.Edges != nil {
		clone.Edges = make([]string, len(st.Edges))
		copy(clone.Edges, st.Edges)
	}
	if st.ExpandedNodes != nil {
		clone.ExpandedNodes = make(StringSet, len(st.ExpandedNodes))
		for id := range st.ExpandedNodes {
			clone.ExpandedNodes[id] = struct{}{}
		}
	}
	if st.ExpansionDepth != nil {
		clone.ExpansionDepth = make(map[string]int, len(st.ExpansionDepth))
		for id, depth := range st.ExpansionDepth {
			clone.ExpansionDepth[id] = depth
		}
	}
	return clone
}

// mergeStates applies a fresh snapshot over prior bookkeeping.
//
// Snapshot fields (focus, nodes, edges, viewport, timestamp) come from
// the new state; ExpandedNodes is the union and ExpansionDepth keeps
// the maximum per node, so a lighter snapshot never erases deeper
// exploration bookkeeping. The prior title survives when the new
// snapshot has none.
func mergeStates(prior, next *EnhancedGraphState) *EnhancedGraphState {
	merged := next.Clone()
	if prior == nil {
		return merged
	}

	if merged.ExpandedNodes == nil {
		merged.ExpandedNodes = StringSet{}
	}
	for id := range prior.ExpandedNodes {
		merged.ExpandedNodes.Add(id)
	}

	if merged.ExpansionDepth == nil {
		merged.ExpansionDepth = make(map[string]int, len(prior.ExpansionDepth))
	}
	for id, depth := range prior.ExpansionDepth {
		if current, ok := merged.ExpansionDepth[id]; !ok || depth > current {
			merged.ExpansionDepth[id] = depth
		}
	}

	if merged.Title == "" {
		merged.Title = prior.Title
	}
	return merged
}

// SavedGraph summarizes one persisted exploration state for listings.
type SavedGraph struct {
	// Signature is the focused-transaction key.
	Signature string `json:"signature"`

	// Title is the optional user-facing name.
	Title string `json:"title,omitempty"`

	// Timestamp is the snapshot recency used for sorting.
	Timestamp time.Time `json:"timestamp"`

	// NodeCount is the number of nodes in the snapshot.
	NodeCount int `json:"nodeCount"`
}

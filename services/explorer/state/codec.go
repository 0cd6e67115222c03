// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// encodeState serializes the full enhanced record.
func encodeState(st *EnhancedGraphState) ([]byte, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encoding graph state: %w", err)
	}
	return raw, nil
}

// decodeState deserializes a persisted record, repairing absent
// collections to their empty forms so callers never see nil.
//
// Both full enhanced records and minimal fallback records decode
// through here; a minimal record simply comes back with empty
// node/edge/bookkeeping collections.
func decodeState(raw []byte) (*EnhancedGraphState, error) {
	var st EnhancedGraphState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decoding graph state: %w", err)
	}

	if st.Nodes == nil {
		st.Nodes = []string{}
	}
	if st.Edges == nil {
		st.Edges = []string{}
	}
	if st.ExpandedNodes == nil {
		st.ExpandedNodes = StringSet{}
	}
	if st.ExpansionDepth == nil {
		st.ExpansionDepth = map[string]int{}
	}
	return &st, nil
}

// encodeLatest serializes the latest-state pointer record, which omits
// the exploration bookkeeping.
func encodeLatest(st *GraphState) ([]byte, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encoding latest state: %w", err)
	}
	return raw, nil
}

// minimalRecord is what survives quota pressure: enough to restore
// focus and camera, nothing else.
type minimalRecord struct {
	FocusedTransaction string    `json:"focusedTransaction"`
	Viewport           Viewport  `json:"viewport"`
	Timestamp          time.Time `json:"timestamp"`
}

// encodeMinimal serializes the minimal fallback record.
func encodeMinimal(st *EnhancedGraphState, ts time.Time) ([]byte, error) {
	if !st.Timestamp.IsZero() {
		ts = st.Timestamp
	}
	raw, err := json.Marshal(minimalRecord{
		FocusedTransaction: st.FocusedTransaction,
		Viewport:           st.Viewport,
		Timestamp:          ts,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding minimal state: %w", err)
	}
	return raw, nil
}

// validForSave reports whether a state is structurally acceptable for
// persistence: non-empty focus and materialized node/edge sequences.
func validForSave(st *EnhancedGraphState) error {
	if st == nil {
		return fmt.Errorf("nil state")
	}
	if st.FocusedTransaction == "" {
		return fmt.Errorf("empty focusedTransaction")
	}
	if st.Nodes == nil {
		return fmt.Errorf("nil nodes")
	}
	if st.Edges == nil {
		return fmt.Errorf("nil edges")
	}
	return nil
}

// validLoaded reports whether a decoded durable record is usable.
// Minimal fallback records pass; records without a focus key are
// corrupt.
func validLoaded(st *EnhancedGraphState) bool {
	return st != nil && st.FocusedTransaction != ""
}

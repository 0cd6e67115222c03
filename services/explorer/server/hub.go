// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Event types pushed over the session event socket.
const (
	// EventFocusChanged announces a completed focus pass: the focused
	// signature and the recomputed highlight set.
	EventFocusChanged = "focus-changed"

	// EventGraphUpdated announces that an expansion changed the graph.
	// Clients refetch the session to pick up the new snapshot.
	EventGraphUpdated = "graph-updated"
)

// Event is one message on the session event socket.
type Event struct {
	// Type is the event type.
	Type string `json:"type"`

	// SessionID identifies the session the event belongs to.
	SessionID string `json:"sessionId"`

	// Signature is the transaction the event concerns, when relevant.
	Signature string `json:"signature,omitempty"`

	// Highlighted is the highlight set after a focus pass.
	Highlighted []string `json:"highlighted,omitempty"`

	// Nodes is the node count after a graph update.
	Nodes int `json:"nodes,omitempty"`

	// Edges is the edge count after a graph update.
	Edges int `json:"edges,omitempty"`
}

// Write deadlines and keepalive intervals for event sockets.
const (
	// writeWait bounds a single socket write.
	writeWait = 10 * time.Second

	// pongWait is how long a client may stay silent before the socket
	// is considered dead.
	pongWait = 60 * time.Second

	// pingPeriod is the keepalive interval. Must be shorter than
	// pongWait.
	pingPeriod = (pongWait * 9) / 10

	// clientBuffer is the per-client outbound event buffer. Events are
	// dropped, not blocked on, when a client falls this far behind.
	clientBuffer = 16
)

// upgrader handles WebSocket connection upgrades.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// client is one connected event socket.
type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans session events out to connected WebSocket clients.
//
// Description:
//
//	Each session has an independent client set. Broadcast never blocks:
//	a client that cannot keep up has events dropped and the drop
//	counted. Closing a session disconnects its clients.
//
// Thread Safety:
//
//	All methods are safe for concurrent use.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*client]struct{}
	logger   *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[string]map[*client]struct{}),
		logger:   logger,
	}
}

// Serve upgrades the request to a WebSocket and streams session events
// until the client disconnects or the session closes.
//
// Description:
//
//	The write side runs in its own goroutine so broadcasts and
//	keepalive pings never contend with the read loop. The read loop
//	only services control frames; inbound data frames are discarded.
//
// Inputs:
//
//	c - Gin context carrying the HTTP request to upgrade.
//	sessionID - Session whose events the client subscribes to.
func (h *Hub) Serve(c *gin.Context, sessionID string) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed",
			"session_id", sessionID,
			"error", err)
		return
	}

	cl := &client{
		conn: ws,
		send: make(chan Event, clientBuffer),
	}
	h.register(sessionID, cl)
	h.logger.Debug("event socket connected", "session_id", sessionID)

	go h.writePump(sessionID, cl)
	h.readPump(sessionID, cl)
}

// register adds a client to a session's set.
func (h *Hub) register(sessionID string, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[sessionID]
	if !ok {
		clients = make(map[*client]struct{})
		h.sessions[sessionID] = clients
	}
	clients[cl] = struct{}{}
	recordClientDelta(1)
}

// unregister removes a client and closes its send channel exactly once.
func (h *Hub) unregister(sessionID string, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	if _, ok := clients[cl]; !ok {
		return
	}
	delete(clients, cl)
	if len(clients) == 0 {
		delete(h.sessions, sessionID)
	}
	close(cl.send)
	recordClientDelta(-1)
}

// readPump services control frames until the connection drops.
func (h *Hub) readPump(sessionID string, cl *client) {
	defer func() {
		h.unregister(sessionID, cl)
		cl.conn.Close()
	}()

	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("event socket read error",
					"session_id", sessionID,
					"error", err)
			}
			return
		}
	}
}

// writePump drains the client's send channel and emits keepalive pings.
func (h *Hub) writePump(sessionID string, cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed by unregister: say goodbye.
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteJSON(ev); err != nil {
				h.logger.Debug("event socket write error",
					"session_id", sessionID,
					"error", err)
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast delivers an event to every client of its session.
//
// Description:
//
//	Delivery is best-effort: clients whose buffers are full have the
//	event dropped so one slow consumer cannot stall the focus or
//	expansion paths.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for cl := range h.sessions[ev.SessionID] {
		select {
		case cl.send <- ev:
		default:
			recordEventDropped(ev.Type)
			h.logger.Warn("event dropped for slow client",
				"session_id", ev.SessionID,
				"type", ev.Type)
		}
	}
}

// CloseSession disconnects every client of a session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	clients := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	for cl := range clients {
		close(cl.send)
		recordClientDelta(-1)
	}
}

// ClientCount returns the number of connected clients for a session.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

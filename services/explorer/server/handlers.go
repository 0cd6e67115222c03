// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openSVM/opensvm-sub007/services/explorer/config"
	"github.com/openSVM/opensvm-sub007/services/explorer/focus"
	"github.com/openSVM/opensvm-sub007/services/explorer/graph"
	"github.com/openSVM/opensvm-sub007/services/explorer/layout"
	"github.com/openSVM/opensvm-sub007/services/explorer/source"
	"github.com/openSVM/opensvm-sub007/services/explorer/state"
)

// Handlers contains the HTTP handlers for the explorer.
type Handlers struct {
	store    *state.Store
	hub      *Hub
	txs      source.TransactionSource
	details  source.DetailSource
	graphCfg config.GraphConfig
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewHandlers creates handlers over the given store and chain sources.
func NewHandlers(store *state.Store, hub *Hub, graphCfg config.GraphConfig, txs source.TransactionSource, details source.DetailSource, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:    store,
		hub:      hub,
		txs:      txs,
		details:  details,
		graphCfg: graphCfg,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// newSession builds a session with its own builder and focus
// controller. The focus callback pushes the applied highlight set to
// the session's event socket clients.
func (h *Handlers) newSession(root string) *Session {
	sessionID := uuid.NewString()

	builder := graph.NewBuilder(h.txs, h.details,
		graph.WithMaxDepth(h.graphCfg.MaxDepth),
		graph.WithFetchLimit(h.graphCfg.FetchLimit),
		graph.WithEagerDepth(h.graphCfg.EagerDepth),
		graph.WithWorkerCount(h.graphCfg.WorkerCount),
		graph.WithBuilderMaxNodes(h.graphCfg.MaxNodes),
		graph.WithBuilderMaxEdges(h.graphCfg.MaxEdges),
		graph.WithLayout(layout.NewForceDirected()),
		graph.WithLogger(h.logger),
	)

	// The controller is declared before its callback closes over it:
	// callbacks only fire after the debounce window, well past assignment.
	var ctrl *focus.Controller
	ctrl = focus.NewController(builder,
		focus.WithDebounce(h.graphCfg.FocusDebounce.Std()),
		focus.WithLogger(h.logger),
		focus.WithCallback(func(signature string) {
			h.hub.Broadcast(Event{
				Type:        EventFocusChanged,
				SessionID:   sessionID,
				Signature:   signature,
				Highlighted: ctrl.Highlighted(),
			})
		}),
	)

	return &Session{
		ID:        sessionID,
		Root:      root,
		CreatedAt: time.Now(),
		builder:   builder,
		focus:     ctrl,
	}
}

// session looks up a live session by ID.
func (h *Handlers) session(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// SessionCount returns the number of live sessions.
func (h *Handlers) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// ForEachSession calls fn for every live session. Used by the autosave
// loop; fn must not create or delete sessions.
func (h *Handlers) ForEachSession(fn func(*Session)) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		fn(s)
	}
}

// CloseAll closes every live session. Called on shutdown.
func (h *Handlers) CloseAll() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	for id, s := range sessions {
		s.close()
		h.hub.CloseSession(id)
		recordSessionDelta(-1)
	}
}

// HandleHealth handles GET /health and GET /v1/graph/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  ServiceVersion,
		Sessions: h.SessionCount(),
	})
}

// HandleCreateSession handles POST /v1/graph/sessions.
//
// Description:
//
//	Creates an exploration session seeded from an account address or a
//	transaction signature. Fetch failures do not fail creation; they
//	surface in the graph's failure count so the client can retry the
//	branch.
//
// Request Body:
//
//	CreateSessionRequest
//
// Response:
//
//	201 Created: SessionResponse
//	400 Bad Request: Validation error
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleCreateSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleCreateSession")

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if (req.Account == "") == (req.Signature == "") {
		logger.Warn("Invalid seed", "account", req.Account, "signature", req.Signature)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Exactly one of account or signature must be set",
			Code:  "INVALID_SEED",
		})
		return
	}

	root := req.Account
	if root == "" {
		root = req.Signature
	}
	sess := h.newSession(root)

	var err error
	if req.Account != "" {
		err = sess.builder.AddAccount(c.Request.Context(), req.Account, 0, "")
	} else {
		err = sess.builder.AddTransaction(c.Request.Context(), req.Signature)
	}
	if err != nil {
		sess.close()
		status, code := expansionError(err, "SESSION_SEED_FAILED")
		logger.Error("Session seed failed", "root", root, "error", err)
		c.JSON(status, ErrorResponse{
			Error: err.Error(),
			Code:  code,
		})
		return
	}

	h.mu.Lock()
	h.sessions[sess.ID] = sess
	h.mu.Unlock()
	recordSessionDelta(1)

	logger.Info("Session created",
		"session_id", sess.ID,
		"root", root,
		"nodes", sess.builder.NodeCount(),
		"edges", sess.builder.EdgeCount())

	c.JSON(http.StatusCreated, sess.response())
}

// HandleGetSession handles GET /v1/graph/sessions/:id.
//
// Response:
//
//	200 OK: SessionResponse
//	404 Not Found: Unknown session
func (h *Handlers) HandleGetSession(c *gin.Context) {
	sess, ok := h.session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Session not found",
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, sess.response())
}

// HandleDeleteSession handles DELETE /v1/graph/sessions/:id.
//
// Description:
//
//	Closes the session's builder and focus controller and disconnects
//	its event socket clients. Deleting an unknown session is a 404.
//
// Response:
//
//	204 No Content
//	404 Not Found: Unknown session
func (h *Handlers) HandleDeleteSession(c *gin.Context) {
	id := c.Param("id")

	h.mu.Lock()
	sess, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Session not found",
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	sess.close()
	h.hub.CloseSession(id)
	recordSessionDelta(-1)
	h.logger.Info("Session deleted", "session_id", id)

	c.Status(http.StatusNoContent)
}

// HandleExpand handles POST /v1/graph/sessions/:id/expand.
//
// Description:
//
//	Expands one account into the session graph and announces the new
//	node and edge counts on the event socket. Fetch failures skip the
//	branch and surface in the failure count rather than failing the
//	request.
//
// Request Body:
//
//	ExpandRequest
//
// Response:
//
//	200 OK: GraphView
//	400 Bad Request: Validation error
//	404 Not Found: Unknown session
//	409 Conflict: Session already closed
func (h *Handlers) HandleExpand(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleExpand")

	sess, ok := h.session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Session not found",
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	var req ExpandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger.Info("Expanding account",
		"session_id", sess.ID,
		"address", req.Address,
		"depth", req.Depth)

	if err := sess.builder.AddAccount(c.Request.Context(), req.Address, req.Depth, ""); err != nil {
		status, code := expansionError(err, "EXPAND_FAILED")
		logger.Error("Expansion failed", "address", req.Address, "error", err)
		c.JSON(status, ErrorResponse{
			Error: err.Error(),
			Code:  code,
		})
		return
	}

	h.hub.Broadcast(Event{
		Type:      EventGraphUpdated,
		SessionID: sess.ID,
		Nodes:     sess.builder.NodeCount(),
		Edges:     sess.builder.EdgeCount(),
	})

	c.JSON(http.StatusOK, sess.graphView())
}

// HandleFocus handles POST /v1/graph/sessions/:id/focus.
//
// Description:
//
//	Seeds the transaction into the graph when it is not there yet, then
//	schedules a focus transition. The transition itself runs after the
//	debounce window; rapid repeats collapse to the last signature. The
//	applied highlight set arrives as a focus-changed event.
//
// Request Body:
//
//	FocusRequest
//
// Response:
//
//	202 Accepted: FocusResponse
//	400 Bad Request: Validation error
//	404 Not Found: Unknown session
//	409 Conflict: Session already closed
func (h *Handlers) HandleFocus(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleFocus")

	sess, ok := h.session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Session not found",
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	var req FocusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	// Seed unknown signatures so focusing an off-graph transaction
	// anchors it first. Known ones skip the detail fetch entirely.
	if !sess.builder.HasNode(req.Signature) {
		if err := sess.builder.AddTransaction(c.Request.Context(), req.Signature); err != nil {
			status, code := expansionError(err, "FOCUS_FAILED")
			logger.Error("Focus seed failed", "signature", req.Signature, "error", err)
			c.JSON(status, ErrorResponse{
				Error: err.Error(),
				Code:  code,
			})
			return
		}
	}

	sess.focus.FocusOnTransaction(req.Signature)
	logger.Info("Focus scheduled", "session_id", sess.ID, "signature", req.Signature)

	c.JSON(http.StatusAccepted, FocusResponse{
		Status:    "scheduled",
		Signature: req.Signature,
	})
}

// HandleEvents handles GET /v1/graph/sessions/:id/events.
//
// Description:
//
//	Upgrades to a WebSocket delivering focus-changed and graph-updated
//	events for the session until either side disconnects.
//
// Response:
//
//	101 Switching Protocols
//	404 Not Found: Unknown session
func (h *Handlers) HandleEvents(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.session(id); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Session not found",
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}
	h.hub.Serve(c, id)
}

// HandleSaveState handles PUT /v1/graph/state/:signature.
//
// Description:
//
//	Persists a client-provided exploration state under the signature.
//	The state merges over any prior save for the key; exploration
//	bookkeeping is unioned, never discarded.
//
// Request Body:
//
//	state.EnhancedGraphState
//
// Response:
//
//	204 No Content
//	400 Bad Request: Validation error
func (h *Handlers) HandleSaveState(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleSaveState")
	signature := c.Param("signature")

	var st state.EnhancedGraphState
	if err := c.ShouldBindJSON(&st); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if st.FocusedTransaction == "" {
		st.FocusedTransaction = signature
	}
	if st.Nodes == nil || st.Edges == nil {
		logger.Warn("State missing node or edge IDs", "signature", signature)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "State must carry node and edge IDs",
			Code:  "INVALID_STATE",
		})
		return
	}

	h.store.SaveState(c.Request.Context(), &st, signature)
	logger.Info("State saved", "signature", signature, "nodes", len(st.Nodes))

	c.Status(http.StatusNoContent)
}

// HandleLoadState handles GET /v1/graph/state/:signature.
//
// Response:
//
//	200 OK: state.EnhancedGraphState
//	404 Not Found: No state for the signature
func (h *Handlers) HandleLoadState(c *gin.Context) {
	signature := c.Param("signature")

	st := h.store.LoadState(c.Request.Context(), signature)
	if st == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "No saved state for signature",
			Code:  "STATE_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, st)
}

// HandleLatestState handles GET /v1/graph/state.
//
// Description:
//
//	Loads the latest-state pointer record: the most recently saved
//	exploration, used for session restore without a signature.
//
// Response:
//
//	200 OK: state.EnhancedGraphState
//	404 Not Found: Nothing saved yet
func (h *Handlers) HandleLatestState(c *gin.Context) {
	st := h.store.LoadState(c.Request.Context(), "")
	if st == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "No saved state",
			Code:  "STATE_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, st)
}

// HandleListStates handles GET /v1/graph/states.
//
// Response:
//
//	200 OK: StatesResponse
func (h *Handlers) HandleListStates(c *gin.Context) {
	graphs := h.store.SavedGraphs(c.Request.Context())
	c.JSON(http.StatusOK, StatesResponse{
		Graphs: graphs,
		Count:  len(graphs),
	})
}

// HandleDeleteState handles DELETE /v1/graph/states/:signature.
//
// Response:
//
//	204 No Content
func (h *Handlers) HandleDeleteState(c *gin.Context) {
	signature := c.Param("signature")
	h.store.DeleteGraph(c.Request.Context(), signature)
	h.logger.Info("State deleted", "signature", signature)
	c.Status(http.StatusNoContent)
}

// HandleClearStates handles DELETE /v1/graph/states.
//
// Response:
//
//	200 OK: RemovedResponse
func (h *Handlers) HandleClearStates(c *gin.Context) {
	removed := h.store.ClearAllStates(c.Request.Context())
	h.logger.Info("States cleared", "removed", removed)
	c.JSON(http.StatusOK, RemovedResponse{Removed: removed})
}

// HandleCleanup handles POST /v1/graph/states/cleanup.
//
// Description:
//
//	Sweeps the durable tier, deleting states past retention and any
//	corrupt records.
//
// Response:
//
//	200 OK: RemovedResponse
func (h *Handlers) HandleCleanup(c *gin.Context) {
	removed := h.store.CleanupOldStates(c.Request.Context())
	h.logger.Info("Cleanup swept states", "removed", removed)
	c.JSON(http.StatusOK, RemovedResponse{Removed: removed})
}

// expansionError maps a builder error to an HTTP status and error code.
func expansionError(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, graph.ErrInvalidAddress):
		return http.StatusBadRequest, "INVALID_ADDRESS"
	case errors.Is(err, graph.ErrInvalidSignature):
		return http.StatusBadRequest, "INVALID_SIGNATURE"
	case errors.Is(err, graph.ErrBuilderClosed):
		return http.StatusConflict, "SESSION_CLOSED"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "EXPAND_TIMEOUT"
	default:
		return http.StatusInternalServerError, fallback
	}
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

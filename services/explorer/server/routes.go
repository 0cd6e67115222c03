// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all explorer routes with the router.
//
// Description:
//
//	Registers all /v1/graph/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Session Endpoints:
//
//	POST /v1/graph/sessions - Create an exploration session
//	GET  /v1/graph/sessions/:id - Get a session snapshot
//	DELETE /v1/graph/sessions/:id - Close and delete a session
//	POST /v1/graph/sessions/:id/expand - Expand an account
//	POST /v1/graph/sessions/:id/focus - Focus a transaction
//	GET  /v1/graph/sessions/:id/events - Session event socket
//
// State Endpoints:
//
//	GET  /v1/graph/state - Load the latest saved state
//	GET  /v1/graph/state/:signature - Load a saved state
//	PUT  /v1/graph/state/:signature - Save an exploration state
//	GET  /v1/graph/states - List saved states
//	DELETE /v1/graph/states - Delete all saved states
//	DELETE /v1/graph/states/:signature - Delete one saved state
//	POST /v1/graph/states/cleanup - Sweep expired and corrupt states
//
// Health:
//
//	GET  /v1/graph/health - Liveness and version
//
// Example:
//
//	handlers := server.NewHandlers(store, hub, cfg.Graph, txs, details, logger)
//
//	v1 := router.Group("/v1")
//	server.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	graph := rg.Group("/graph")
	{
		// Exploration sessions
		sessions := graph.Group("/sessions")
		{
			sessions.POST("", handlers.HandleCreateSession)
			sessions.GET("/:id", handlers.HandleGetSession)
			sessions.DELETE("/:id", handlers.HandleDeleteSession)
			sessions.POST("/:id/expand", handlers.HandleExpand)
			sessions.POST("/:id/focus", handlers.HandleFocus)
			sessions.GET("/:id/events", handlers.HandleEvents)
		}

		// Saved exploration state
		graph.GET("/state", handlers.HandleLatestState)
		graph.GET("/state/:signature", handlers.HandleLoadState)
		graph.PUT("/state/:signature", handlers.HandleSaveState)
		graph.GET("/states", handlers.HandleListStates)
		graph.DELETE("/states", handlers.HandleClearStates)
		graph.DELETE("/states/:signature", handlers.HandleDeleteState)
		graph.POST("/states/cleanup", handlers.HandleCleanup)

		// Health inside the versioned group. Run also mounts it at the root.
		graph.GET("/health", handlers.HandleHealth)
	}
}

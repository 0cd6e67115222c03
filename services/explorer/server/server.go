// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server exposes transaction graph exploration over HTTP.
//
// Sessions pair a graph builder with a focus controller; clients drive
// expansion and focus through /v1/graph endpoints and receive
// focus-changed and graph-updated events over a per-session WebSocket.
// Exploration state persists through the two-tier state store, both on
// explicit saves and through a background autosave sweep.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/openSVM/opensvm-sub007/services/explorer/config"
	"github.com/openSVM/opensvm-sub007/services/explorer/source"
	"github.com/openSVM/opensvm-sub007/services/explorer/state"
	"github.com/openSVM/opensvm-sub007/services/explorer/telemetry"
)

// Server is the explorer HTTP service.
//
// Thread Safety:
//
//	Safe for concurrent use after New returns. Run may be called once.
type Server struct {
	cfg      *config.Config
	store    *state.Store
	hub      *Hub
	handlers *Handlers
	router   *gin.Engine
	logger   *slog.Logger
}

// New creates the explorer server over the given store and chain
// sources.
//
// Description:
//
//	Wires the event hub, session handlers, and router. A nil cfg uses
//	DefaultConfig. The sources may be nil in tests; expansions then
//	fail with the builder's no-source errors rather than at
//	construction.
//
// Inputs:
//
//	cfg - Explorer configuration. Nil uses defaults.
//	store - Exploration-state store. Must be non-nil.
//	txs - Account transaction window source.
//	details - Transaction detail source.
//	logger - Structured logger. Nil uses slog.Default().
//
// Outputs:
//
//	*Server - Ready-to-run server.
//	error - Non-nil when required dependencies are missing.
func New(cfg *config.Config, store *state.Store, txs source.TransactionSource, details source.DetailSource, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("state store must not be nil")
	}
	if cfg == nil {
		def := config.DefaultConfig()
		cfg = &def
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		store:  store,
		hub:    NewHub(logger),
		logger: logger,
	}
	s.handlers = NewHandlers(store, s.hub, cfg.Graph, txs, details, logger)
	s.initRouter()

	return s, nil
}

// initRouter sets up the Gin engine, middleware, and routes.
func (s *Server) initRouter() {
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware("opensvm-explorer"))

	s.router.GET("/health", s.handlers.HandleHealth)
	if mh := telemetry.MetricsHandler(); mh != nil {
		s.router.GET("/metrics", gin.WrapH(mh))
	}

	v1 := s.router.Group("/v1")
	RegisterRoutes(v1, s.handlers)
}

// Router returns the underlying Gin engine for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Handlers returns the session handlers, for tests that drive sessions
// directly.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Run starts the HTTP server and blocks until ctx is canceled or the
// listener fails.
//
// Description:
//
//	Alongside the listener, Run starts the autosave sweep that
//	periodically persists every focused session through the state
//	store's meaningful-change heuristic. On ctx cancellation the
//	listener drains within the configured shutdown grace and every
//	session is closed.
//
// Outputs:
//
//	error - Non-nil when the listener fails; nil on clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout.Std(),
		WriteTimeout: s.cfg.Server.WriteTimeout.Std(),
	}

	autosaveCtx, stopAutosave := context.WithCancel(context.Background())
	defer stopAutosave()
	go s.autosaveLoop(autosaveCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("explorer server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		s.handlers.CloseAll()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down explorer server", "grace", s.cfg.Server.ShutdownGrace.Std())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownGrace.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("server shutdown incomplete", "error", err)
	}
	stopAutosave()
	s.handlers.CloseAll()
	return nil
}

// autosaveLoop periodically snapshots focused sessions into the state
// store. Sessions without a completed focus pass are skipped; the
// store's own heuristic decides whether each snapshot is worth a write.
func (s *Server) autosaveLoop(ctx context.Context) {
	interval := s.cfg.State.AutoSaveInterval.Std()
	if interval <= 0 {
		interval = state.DefaultAutoSaveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.autosaveSweep(ctx)
		}
	}
}

// autosaveSweep runs one autosave pass over the live sessions.
func (s *Server) autosaveSweep(ctx context.Context) {
	s.handlers.ForEachSession(func(sess *Session) {
		snap := sess.snapshotState()
		if snap.FocusedTransaction == "" {
			return
		}
		if s.store.AutoSave(ctx, snap) {
			recordAutosave(ctx, "saved")
			s.logger.Debug("autosaved session",
				"session_id", sess.ID,
				"signature", snap.FocusedTransaction)
		} else {
			recordAutosave(ctx, "skipped")
		}
	})

	// The sweep doubles as memory-tier hygiene between saves.
	if evicted := s.store.TrimMemoryCache(); evicted > 0 {
		s.logger.Debug("trimmed state memory tier", "evicted", evicted)
	}
}

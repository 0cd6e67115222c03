// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for server operations.
var meter = otel.Meter("opensvm.server")

// Metrics for session lifecycle, event delivery, and autosave.
var (
	sessionsActive metric.Int64UpDownCounter
	clientsActive  metric.Int64UpDownCounter
	eventsDropped  metric.Int64Counter
	autosaveTotal  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		sessionsActive, err = meter.Int64UpDownCounter(
			"server_sessions_active",
			metric.WithDescription("Number of live exploration sessions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		clientsActive, err = meter.Int64UpDownCounter(
			"server_event_clients_active",
			metric.WithDescription("Number of connected event socket clients"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		eventsDropped, err = meter.Int64Counter(
			"server_events_dropped_total",
			metric.WithDescription("Events dropped because a client fell behind"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		autosaveTotal, err = meter.Int64Counter(
			"server_autosave_total",
			metric.WithDescription("Autosave sweep results by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordSessionDelta adjusts the live session gauge.
func recordSessionDelta(delta int64) {
	if err := initMetrics(); err != nil {
		return
	}
	sessionsActive.Add(context.Background(), delta)
}

// recordClientDelta adjusts the connected client gauge.
func recordClientDelta(delta int64) {
	if err := initMetrics(); err != nil {
		return
	}
	clientsActive.Add(context.Background(), delta)
}

// recordEventDropped counts one dropped event by type.
func recordEventDropped(eventType string) {
	if err := initMetrics(); err != nil {
		return
	}
	eventsDropped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("type", eventType)))
}

// recordAutosave counts one autosave attempt by outcome.
func recordAutosave(ctx context.Context, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	autosaveTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

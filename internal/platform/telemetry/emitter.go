// Package telemetry records operational session events.
//
// This package separates two distinct concerns:
//
// # Session Events
//
// Session events capture the lifecycle of a realtime connection: connects,
// disconnects, request round-trips, and tool executions. They are appended to
// the transcript store for later inspection.
//
// # Traces (platform/otel)
//
// Distributed traces are exported through OpenTelemetry when an endpoint is
// configured. They carry per-process spans, not per-session history.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/agentwire/internal/platform/id"
	"github.com/louisbranch/agentwire/internal/storage"
)

// Store is the narrow persistence surface the emitter needs.
type Store interface {
	AppendTelemetryEvent(ctx context.Context, event storage.TelemetryEvent) error
}

// Emitter appends session events to a store. A nil emitter or an emitter
// without a store discards events, so callers never guard emission sites.
type Emitter struct {
	store Store
	clock func() time.Time
}

// NewEmitter builds an emitter backed by store. Passing nil returns an
// emitter that discards every event.
func NewEmitter(store Store) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records one event, filling the identifier and timestamp when absent.
func (e *Emitter) Emit(ctx context.Context, event storage.TelemetryEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if event.At.IsZero() {
		clock := e.clock
		if clock == nil {
			clock = time.Now
		}
		event.At = clock()
	}
	if event.ID == "" {
		generated, err := id.NewID()
		if err != nil {
			return fmt.Errorf("generate event id: %w", err)
		}
		event.ID = generated
	}
	return e.store.AppendTelemetryEvent(ctx, event)
}

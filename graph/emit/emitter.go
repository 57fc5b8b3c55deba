// Package emit provides pluggable observability sinks for graph execution:
// structured logging, OpenTelemetry spans, in-memory history, and a no-op
// sink, all implementing the same Emitter interface.
package emit

import "context"

// Emitter receives NodeTrace-derived Events from a run. Implementations
// must be non-blocking and safe for concurrent use — they are called from
// every node goroutine in a level.
type Emitter interface {
	// Emit sends a single event. Must not panic; log and drop on failure.
	Emit(event Event)

	// EmitBatch sends multiple events in one call, preserving order —
	// useful for sinks that batch network writes.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until any buffered events have been sent, or ctx expires.
	// Called at run completion and before shutdown.
	Flush(ctx context.Context) error
}

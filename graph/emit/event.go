package emit

// Event is one observability record derived from a run or a NodeTrace:
// run-level start/complete/error, or a single node's execution outcome.
type Event struct {
	// RunID identifies the run (cfg.ThreadID) that produced this event.
	RunID string

	// Step is the 1-indexed step number, zero for run-level events.
	Step int

	// NodeID is the emitting node, empty for run-level events.
	NodeID string

	// Msg names the event kind, e.g. "node_start", "node_end", "run_error".
	Msg string

	// Meta carries event-specific fields: duration_ms, error, order_key,
	// attempt, and any sanitized input/output snapshot data.
	Meta map[string]interface{}
}

// Package store provides persistence implementations for graph execution
// state. State is always the dynamic map[string]any a graph.State
// snapshots to, so there is no compile-time state type to parameterize over.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/emit"
)

// ErrNotFound is returned when a requested run ID or checkpoint ID does not exist.
var ErrNotFound = errors.New("not found")

// Store provides persistence for workflow state and checkpoints.
//
// It enables:
// - Step-by-step state persistence during execution.
// - Latest state retrieval for resumption.
// - Named checkpoint save/load for branching workflows.
//
// Implementations can use in-memory storage (memory.go, for testing),
// relational databases (sqlite.go, mysql.go), or any other durable store.
type Store interface {
	// SaveStep persists the state after a node execution step, identified
	// by runID + step number.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state map[string]any) error

	// LoadLatest retrieves the most recent state for a given run, used to
	// resume execution from the last saved step. Returns ErrNotFound if
	// runID doesn't exist.
	LoadLatest(ctx context.Context, runID string) (state map[string]any, step int, err error)

	// SaveCheckpoint creates a named snapshot of workflow state, for
	// branching workflows and manual resumption points.
	SaveCheckpoint(ctx context.Context, cpID string, state map[string]any, step int) error

	// LoadCheckpoint retrieves a previously saved checkpoint by its
	// user-defined label. Returns ErrNotFound if cpID doesn't exist.
	LoadCheckpoint(ctx context.Context, cpID string) (state map[string]any, step int, err error)

	// SaveCheckpointV2 persists an enhanced checkpoint with full execution
	// context: frontier, RNG seed, recorded I/O, idempotency key, and the
	// compiled plan hash it was taken against.
	SaveCheckpointV2(ctx context.Context, checkpoint CheckpointV2) error

	// LoadCheckpointV2 retrieves an enhanced checkpoint by run ID and step
	// ID. Returns ErrNotFound if the checkpoint doesn't exist.
	LoadCheckpointV2(ctx context.Context, runID string, stepID int) (CheckpointV2, error)

	// CheckIdempotency verifies if an idempotency key has been used,
	// preventing duplicate step commits during retries or crash recovery.
	CheckIdempotency(ctx context.Context, key string) (bool, error)

	// PendingEvents retrieves events from the transactional outbox that
	// haven't been emitted, for the outbox delivery pattern.
	PendingEvents(ctx context.Context, limit int) ([]emit.Event, error)

	// MarkEventsEmitted marks events as successfully emitted, so
	// PendingEvents won't return them again.
	MarkEventsEmitted(ctx context.Context, eventIDs []string) error
}

// StepRecord is a single execution step in the workflow history, as
// tracked internally by Store implementations.
type StepRecord struct {
	Step   int
	NodeID string
	State  map[string]any
}

// Checkpoint is a named snapshot of workflow state.
//
// Deprecated: use CheckpointV2, kept for the original SaveCheckpoint/
// LoadCheckpoint label-addressed methods.
type Checkpoint struct {
	ID    string
	State map[string]any
	Step  int
}

// CheckpointV2 is an enhanced checkpoint with full execution context for
// deterministic replay and resumption.
type CheckpointV2 struct {
	// RunID uniquely identifies the execution this checkpoint belongs to.
	RunID string `json:"run_id"`

	// StepID is the execution step number at checkpoint time.
	StepID int `json:"step_id"`

	// State is the accumulated state after applying every delta up to StepID.
	State map[string]any `json:"state"`

	// Frontier is the set of work items ready to execute at this checkpoint.
	Frontier []graph.WorkItem `json:"frontier"`

	// RNGSeed is the seed for deterministic random values, computed from RunID.
	RNGSeed int64 `json:"rng_seed"`

	// RecordedIOs holds captured external interactions up to this checkpoint,
	// for replay.
	RecordedIOs []RecordedIO `json:"recorded_ios"`

	// IdempotencyKey prevents duplicate checkpoint commits. Format:
	// "sha256:hex_encoded_hash".
	IdempotencyKey string `json:"idempotency_key"`

	// PlanHash identifies the CompiledPlan this checkpoint was taken
	// against; a mismatch on resume is errs.ErrPlanHashMismatch.
	PlanHash string `json:"plan_hash"`

	// Timestamp records when this checkpoint was created.
	Timestamp time.Time `json:"timestamp"`

	// Label is an optional user-defined name, e.g. "before_summary".
	// Empty for automatic checkpoints.
	Label string `json:"label,omitempty"`
}

// RecordedIO is one captured external interaction (an LLM call, a tool
// call, an HTTP response), stored and loaded as part of a CheckpointV2.
// The runtime neither fills these entries nor replays them on resume;
// nodes run again against the live world.
type RecordedIO struct {
	NodeID   string         `json:"node_id"`
	Kind     string         `json:"kind"`
	Request  map[string]any `json:"request"`
	Response map[string]any `json:"response"`
}

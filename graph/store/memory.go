package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/flowforge/agentgraph/graph/emit"
)

// MemStore is an in-memory Store implementation.
//
// Designed for testing, development, and short-lived workflows where
// durability isn't required. Thread-safe; data is lost when the process
// terminates.
type MemStore struct {
	mu             sync.RWMutex
	steps          map[string][]StepRecord   // runID -> list of steps
	checkpoints    map[string]Checkpoint     // checkpointID -> checkpoint
	checkpointsV2  map[string]CheckpointV2   // "runID:stepID" -> checkpoint
	labelIndex     map[string]string         // label -> "runID:stepID"
	idempotencyMap map[string]bool           // idempotency key -> exists
	pendingEvents  []emit.Event              // pending events queue
	eventIDSet     map[string]int            // eventID -> index in pendingEvents
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		steps:          make(map[string][]StepRecord),
		checkpoints:    make(map[string]Checkpoint),
		checkpointsV2:  make(map[string]CheckpointV2),
		labelIndex:     make(map[string]string),
		idempotencyMap: make(map[string]bool),
		pendingEvents:  make([]emit.Event, 0),
		eventIDSet:     make(map[string]int),
	}
}

// SaveStep persists a workflow execution step. Steps are appended to the
// run's history in the order they are saved.
func (m *MemStore) SaveStep(_ context.Context, runID string, step int, nodeID string, state map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.steps[runID] = append(m.steps[runID], StepRecord{Step: step, NodeID: nodeID, State: state})
	return nil
}

// LoadLatest retrieves the step with the highest step number for a run,
// correctly handling out-of-order step saves.
func (m *MemStore) LoadLatest(_ context.Context, runID string) (state map[string]any, step int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, exists := m.steps[runID]
	if !exists || len(records) == 0 {
		return nil, 0, ErrNotFound
	}

	latest := records[0]
	for _, record := range records[1:] {
		if record.Step > latest.Step {
			latest = record
		}
	}
	return latest.State, latest.Step, nil
}

// SaveCheckpoint creates a named checkpoint, overwriting any existing
// checkpoint under the same ID.
func (m *MemStore) SaveCheckpoint(_ context.Context, cpID string, state map[string]any, step int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[cpID] = Checkpoint{ID: cpID, State: state, Step: step}
	return nil
}

// LoadCheckpoint retrieves a named checkpoint, or ErrNotFound.
func (m *MemStore) LoadCheckpoint(_ context.Context, cpID string) (state map[string]any, step int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, exists := m.checkpoints[cpID]
	if !exists {
		return nil, 0, ErrNotFound
	}
	return cp.State, cp.Step, nil
}

// serializableMemStore is the JSON-serializable representation of MemStore,
// for persisting its contents to disk or transmitting over the network.
type serializableMemStore struct {
	Steps          map[string][]StepRecord `json:"steps"`
	Checkpoints    map[string]Checkpoint   `json:"checkpoints"`
	CheckpointsV2  map[string]CheckpointV2 `json:"checkpoints_v2"`
	LabelIndex     map[string]string       `json:"label_index"`
	IdempotencyMap map[string]bool         `json:"idempotency_map"`
	PendingEvents  []emit.Event            `json:"pending_events"`
}

// MarshalJSON serializes the MemStore to JSON. Thread-safe: acquires a
// read lock during serialization.
func (m *MemStore) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := serializableMemStore{
		Steps:          m.steps,
		Checkpoints:    m.checkpoints,
		CheckpointsV2:  m.checkpointsV2,
		LabelIndex:     m.labelIndex,
		IdempotencyMap: m.idempotencyMap,
		PendingEvents:  m.pendingEvents,
	}
	return json.Marshal(s)
}

// UnmarshalJSON replaces the MemStore's contents with deserialized data.
// Thread-safe: acquires a write lock during deserialization.
func (m *MemStore) UnmarshalJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s serializableMemStore
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	m.steps = s.Steps
	m.checkpoints = s.Checkpoints
	m.checkpointsV2 = s.CheckpointsV2
	m.labelIndex = s.LabelIndex
	m.idempotencyMap = s.IdempotencyMap
	m.pendingEvents = s.PendingEvents

	if m.steps == nil {
		m.steps = make(map[string][]StepRecord)
	}
	if m.checkpoints == nil {
		m.checkpoints = make(map[string]Checkpoint)
	}
	if m.checkpointsV2 == nil {
		m.checkpointsV2 = make(map[string]CheckpointV2)
	}
	if m.labelIndex == nil {
		m.labelIndex = make(map[string]string)
	}
	if m.idempotencyMap == nil {
		m.idempotencyMap = make(map[string]bool)
	}
	if m.pendingEvents == nil {
		m.pendingEvents = make([]emit.Event, 0)
	}

	m.eventIDSet = make(map[string]int)
	for i, event := range m.pendingEvents {
		if event.Meta != nil {
			if id, ok := event.Meta["event_id"].(string); ok {
				m.eventIDSet[id] = i
			}
		}
	}
	return nil
}

// SaveCheckpointV2 persists an enhanced checkpoint, indexed by (runID,
// stepID) and optionally by label. Returns an error if the idempotency
// key has already been used.
func (m *MemStore) SaveCheckpointV2(_ context.Context, checkpoint CheckpointV2) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if checkpoint.IdempotencyKey != "" {
		if m.idempotencyMap[checkpoint.IdempotencyKey] {
			return fmt.Errorf("duplicate checkpoint: idempotency key %q already exists", checkpoint.IdempotencyKey)
		}
		m.idempotencyMap[checkpoint.IdempotencyKey] = true
	}

	key := fmt.Sprintf("%s:%d", checkpoint.RunID, checkpoint.StepID)
	m.checkpointsV2[key] = checkpoint

	if checkpoint.Label != "" {
		m.labelIndex[checkpoint.Label] = key
	}
	return nil
}

// LoadCheckpointV2 retrieves an enhanced checkpoint by run ID and step ID.
func (m *MemStore) LoadCheckpointV2(_ context.Context, runID string, stepID int) (CheckpointV2, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := fmt.Sprintf("%s:%d", runID, stepID)
	checkpoint, exists := m.checkpointsV2[key]
	if !exists {
		return CheckpointV2{}, ErrNotFound
	}
	return checkpoint, nil
}

// CheckIdempotency reports whether key has already been used.
func (m *MemStore) CheckIdempotency(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotencyMap[key], nil
}

// PendingEvents returns up to limit events from the transactional outbox,
// ordered by insertion order.
func (m *MemStore) PendingEvents(_ context.Context, limit int) ([]emit.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := len(m.pendingEvents)
	if limit > 0 && limit < count {
		count = limit
	}
	result := make([]emit.Event, count)
	copy(result, m.pendingEvents[:count])
	return result, nil
}

// MarkEventsEmitted removes events from the pending queue by their IDs
// (stored in each event's Meta["event_id"]). Unknown IDs are ignored.
func (m *MemStore) MarkEventsEmitted(_ context.Context, eventIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(eventIDs) == 0 {
		return nil
	}

	toRemove := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		toRemove[id] = true
	}

	filtered := make([]emit.Event, 0, len(m.pendingEvents))
	newEventIDSet := make(map[string]int)
	for _, event := range m.pendingEvents {
		eventID := ""
		if event.Meta != nil {
			if id, ok := event.Meta["event_id"].(string); ok {
				eventID = id
			}
		}
		if !toRemove[eventID] {
			newEventIDSet[eventID] = len(filtered)
			filtered = append(filtered, event)
		} else {
			delete(m.eventIDSet, eventID)
		}
	}
	m.pendingEvents = filtered
	m.eventIDSet = newEventIDSet
	return nil
}

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/flowforge/agentgraph/graph/emit"
)

// TestStore_InterfaceContract verifies Store can be implemented.
func TestStore_InterfaceContract(t *testing.T) {
	var _ Store = (*mockStore)(nil)
}

// mockStore is a minimal Store implementation for testing the interface contract.
type mockStore struct {
	steps       map[string][]StepRecord
	checkpoints map[string]Checkpoint
}

func (m *mockStore) SaveStep(ctx context.Context, runID string, step int, nodeID string, state map[string]any) error {
	if m.steps == nil {
		m.steps = make(map[string][]StepRecord)
	}
	m.steps[runID] = append(m.steps[runID], StepRecord{
		Step:   step,
		NodeID: nodeID,
		State:  state,
	})
	return nil
}

func (m *mockStore) LoadLatest(ctx context.Context, runID string) (map[string]any, int, error) {
	steps, exists := m.steps[runID]
	if !exists || len(steps) == 0 {
		return nil, 0, ErrNotFound
	}
	latest := steps[len(steps)-1]
	return latest.State, latest.Step, nil
}

func (m *mockStore) SaveCheckpoint(ctx context.Context, cpID string, state map[string]any, step int) error {
	if m.checkpoints == nil {
		m.checkpoints = make(map[string]Checkpoint)
	}
	m.checkpoints[cpID] = Checkpoint{
		ID:    cpID,
		State: state,
		Step:  step,
	}
	return nil
}

func (m *mockStore) LoadCheckpoint(ctx context.Context, cpID string) (map[string]any, int, error) {
	cp, exists := m.checkpoints[cpID]
	if !exists {
		return nil, 0, ErrNotFound
	}
	return cp.State, cp.Step, nil
}

func (m *mockStore) SaveCheckpointV2(ctx context.Context, checkpoint CheckpointV2) error {
	return nil
}

func (m *mockStore) LoadCheckpointV2(ctx context.Context, runID string, stepID int) (CheckpointV2, error) {
	return CheckpointV2{}, ErrNotFound
}

func (m *mockStore) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (m *mockStore) PendingEvents(ctx context.Context, limit int) ([]emit.Event, error) {
	return nil, nil
}

func (m *mockStore) MarkEventsEmitted(ctx context.Context, eventIDs []string) error {
	return nil
}

// TestStore_SaveStep verifies SaveStep method behavior.
func TestStore_SaveStep(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}

	err := store.SaveStep(ctx, "run-001", 1, "node1", map[string]any{"value": "step1"})
	if err != nil {
		t.Fatalf("SaveStep failed: %v", err)
	}

	steps, exists := store.steps["run-001"]
	if !exists {
		t.Fatal("expected steps to be saved for run-001")
	}
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	if steps[0].NodeID != "node1" {
		t.Errorf("expected NodeID = 'node1', got %q", steps[0].NodeID)
	}
	if steps[0].State["value"] != "step1" {
		t.Errorf("expected State[value] = 'step1', got %q", steps[0].State["value"])
	}
}

// TestStore_LoadLatest verifies LoadLatest method behavior.
func TestStore_LoadLatest(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}

	_ = store.SaveStep(ctx, "run-001", 1, "node1", map[string]any{"value": "step1"})
	_ = store.SaveStep(ctx, "run-001", 2, "node2", map[string]any{"value": "step2"})
	_ = store.SaveStep(ctx, "run-001", 3, "node3", map[string]any{"value": "step3"})

	state, step, err := store.LoadLatest(ctx, "run-001")
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}

	if step != 3 {
		t.Errorf("expected step = 3, got %d", step)
	}
	if state["value"] != "step3" {
		t.Errorf("expected State[value] = 'step3', got %q", state["value"])
	}
}

// TestStore_LoadLatest_NotFound verifies error handling for missing runID.
func TestStore_LoadLatest_NotFound(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}

	_, _, err := store.LoadLatest(ctx, "nonexistent-run")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestStore_SaveCheckpoint verifies SaveCheckpoint method behavior.
func TestStore_SaveCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}

	err := store.SaveCheckpoint(ctx, "cp-001", map[string]any{"value": "checkpoint"}, 5)
	if err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	cp, exists := store.checkpoints["cp-001"]
	if !exists {
		t.Fatal("expected checkpoint cp-001 to exist")
	}
	if cp.State["value"] != "checkpoint" {
		t.Errorf("expected State[value] = 'checkpoint', got %q", cp.State["value"])
	}
	if cp.Step != 5 {
		t.Errorf("expected Step = 5, got %d", cp.Step)
	}
}

// TestStore_LoadCheckpoint verifies LoadCheckpoint method behavior.
func TestStore_LoadCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}

	_ = store.SaveCheckpoint(ctx, "cp-001", map[string]any{"value": "restored"}, 10)

	state, step, err := store.LoadCheckpoint(ctx, "cp-001")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}

	if step != 10 {
		t.Errorf("expected step = 10, got %d", step)
	}
	if state["value"] != "restored" {
		t.Errorf("expected State[value] = 'restored', got %q", state["value"])
	}
}

// TestStore_LoadCheckpoint_NotFound verifies error handling for missing checkpoint.
func TestStore_LoadCheckpoint_NotFound(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}

	_, _, err := store.LoadCheckpoint(ctx, "nonexistent-cp")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

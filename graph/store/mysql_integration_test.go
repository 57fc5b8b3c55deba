// Package store provides persistence implementations for graph state.
package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// MySQL integration test with a real database.
//
// This test validates the MySQLStore implementation against a real MySQL database.
// It tests the complete workflow persistence and resumption scenario.
//
// Prerequisites:
// - MySQL server running (local, Docker, or cloud).
// - TEST_MYSQL_DSN environment variable set with connection string.
// - Database user has CREATE, INSERT, SELECT, UPDATE, DELETE permissions.
//
// Example DSN: "user:password@tcp(localhost:3306)/test_db?parseTime=true".
//
// To run this test:
// export TEST_MYSQL_DSN="user:password@tcp(localhost:3306)/test_db?parseTime=true".
// go test -v -run TestMySQLIntegration ./graph/store.

func TestMySQLIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL integration test: Set TEST_MYSQL_DSN environment variable to run")
	}

	t.Run("complete workflow lifecycle with checkpoints", func(t *testing.T) {
		ctx := context.Background()

		store, err := NewMySQLStore(dsn)
		if err != nil {
			t.Fatalf("Failed to create MySQLStore: %v", err)
		}
		defer func() { _ = store.Close() }()

		// Test scenario: 5-node workflow that crashes after node 3,
		// then resumes from checkpoint to complete.

		runID := fmt.Sprintf("integration-test-%d", time.Now().UnixNano())

		state1 := map[string]any{
			"workflow_id": runID,
			"steps":       1,
			"status":      "processing",
			"data":        map[string]interface{}{"node": "start"},
		}
		err = store.SaveStep(ctx, runID, 1, "node1", state1)
		if err != nil {
			t.Fatalf("Failed to save step 1: %v", err)
		}

		state2 := map[string]any{
			"workflow_id": runID,
			"steps":       2,
			"status":      "processing",
			"data":        map[string]interface{}{"node": "process", "count": 42},
		}
		err = store.SaveStep(ctx, runID, 2, "node2", state2)
		if err != nil {
			t.Fatalf("Failed to save step 2: %v", err)
		}

		state3 := map[string]any{
			"workflow_id": runID,
			"steps":       3,
			"status":      "processing",
			"data":        map[string]interface{}{"node": "transform", "count": 42, "transformed": true},
		}
		err = store.SaveStep(ctx, runID, 3, "node3", state3)
		if err != nil {
			t.Fatalf("Failed to save step 3: %v", err)
		}

		checkpointID := fmt.Sprintf("%s-before-crash", runID)
		err = store.SaveCheckpoint(ctx, checkpointID, state3, 3)
		if err != nil {
			t.Fatalf("Failed to save checkpoint: %v", err)
		}

		loadedState, loadedStep, err := store.LoadLatest(ctx, runID)
		if err != nil {
			t.Fatalf("Failed to load latest state: %v", err)
		}
		if loadedStep != 3 {
			t.Errorf("LoadLatest step = %d, want 3", loadedStep)
		}
		if fmt.Sprint(loadedState["steps"]) != "3" {
			t.Errorf("LoadLatest state[steps] = %v, want 3", loadedState["steps"])
		}

		// Simulate crash - close store.
		store.Close()

		t.Log("Simulating process restart...")

		store2, err := NewMySQLStore(dsn)
		if err != nil {
			t.Fatalf("Failed to create MySQLStore after restart: %v", err)
		}
		defer func() { _ = store2.Close() }()

		checkpointState, checkpointStep, err := store2.LoadCheckpoint(ctx, checkpointID)
		if err != nil {
			t.Fatalf("Failed to load checkpoint: %v", err)
		}

		if checkpointStep != 3 {
			t.Errorf("Checkpoint step = %d, want 3", checkpointStep)
		}
		if fmt.Sprint(checkpointState["steps"]) != "3" {
			t.Errorf("Checkpoint state[steps] = %v, want 3", checkpointState["steps"])
		}
		if checkpointState["status"] != "processing" {
			t.Errorf("Checkpoint state[status] = %q, want %q", checkpointState["status"], "processing")
		}

		data, ok := checkpointState["data"].(map[string]interface{})
		if !ok {
			t.Fatal("Checkpoint state[data] not a map")
		}
		if transformed, ok := data["transformed"].(bool); !ok || !transformed {
			t.Error("Checkpoint state data missing 'transformed' field or incorrect value")
		}
		if count, ok := data["count"].(float64); !ok || count != 42 {
			t.Errorf("Checkpoint state data['count'] = %v, want 42", data["count"])
		}

		// Resume execution: Node 4.
		state4 := map[string]any{
			"workflow_id": runID,
			"steps":       4,
			"status":      "processing",
			"data": map[string]interface{}{
				"node":        "validate",
				"count":       42,
				"transformed": true,
				"validated":   true,
			},
		}
		err = store2.SaveStep(ctx, runID, 4, "node4", state4)
		if err != nil {
			t.Fatalf("Failed to save step 4: %v", err)
		}

		state5 := map[string]any{
			"workflow_id": runID,
			"steps":       5,
			"status":      "completed",
			"data": map[string]interface{}{
				"node":        "complete",
				"count":       42,
				"transformed": true,
				"validated":   true,
				"result":      "success",
			},
		}
		err = store2.SaveStep(ctx, runID, 5, "node5", state5)
		if err != nil {
			t.Fatalf("Failed to save step 5: %v", err)
		}

		finalState, finalStep, err := store2.LoadLatest(ctx, runID)
		if err != nil {
			t.Fatalf("Failed to load final state: %v", err)
		}

		if finalStep != 5 {
			t.Errorf("Final step = %d, want 5", finalStep)
		}
		if finalState["status"] != "completed" {
			t.Errorf("Final state[status] = %q, want %q", finalState["status"], "completed")
		}

		finalData, ok := finalState["data"].(map[string]interface{})
		if !ok {
			t.Fatal("Final state[data] not a map")
		}
		if result, ok := finalData["result"].(string); !ok || result != "success" {
			t.Errorf("Final state data['result'] = %v, want %q", finalData["result"], "success")
		}

		t.Log("integration test passed: 5-node workflow survived crash and resumed from checkpoint")
	})

	t.Run("concurrent workflow execution", func(t *testing.T) {
		ctx := context.Background()

		store, err := NewMySQLStore(dsn)
		if err != nil {
			t.Fatalf("Failed to create MySQLStore: %v", err)
		}
		defer func() { _ = store.Close() }()

		workflows := []string{"workflow-A", "workflow-B", "workflow-C"}
		done := make(chan error, len(workflows))

		for _, wfID := range workflows {
			go func(workflowID string) {
				for step := 1; step <= 3; step++ {
					state := map[string]any{
						"workflow_id": workflowID,
						"steps":       step,
						"status":      "running",
						"data":        map[string]interface{}{"step": step},
					}
					err := store.SaveStep(ctx, workflowID, step, fmt.Sprintf("node%d", step), state)
					if err != nil {
						done <- fmt.Errorf("workflow %s step %d failed: %w", workflowID, step, err)
						return
					}
					time.Sleep(10 * time.Millisecond)
				}
				done <- nil
			}(wfID)
		}

		for i := 0; i < len(workflows); i++ {
			if err := <-done; err != nil {
				t.Errorf("Concurrent workflow failed: %v", err)
			}
		}

		for _, wfID := range workflows {
			state, step, err := store.LoadLatest(ctx, wfID)
			if err != nil {
				t.Errorf("Failed to load state for %s: %v", wfID, err)
				continue
			}
			if step != 3 {
				t.Errorf("Workflow %s final step = %d, want 3", wfID, step)
			}
			if fmt.Sprint(state["steps"]) != "3" {
				t.Errorf("Workflow %s state[steps] = %v, want 3", wfID, state["steps"])
			}
		}

		t.Log("concurrent execution test passed: 3 workflows executed independently")
	})

	t.Run("checkpoint isolation between workflows", func(t *testing.T) {
		ctx := context.Background()

		store, err := NewMySQLStore(dsn)
		if err != nil {
			t.Fatalf("Failed to create MySQLStore: %v", err)
		}
		defer func() { _ = store.Close() }()

		workflow1 := fmt.Sprintf("checkpoint-test-1-%d", time.Now().UnixNano())
		workflow2 := fmt.Sprintf("checkpoint-test-2-%d", time.Now().UnixNano())

		state1 := map[string]any{
			"workflow_id": workflow1,
			"steps":       1,
			"status":      "workflow1",
			"data":        map[string]interface{}{"source": "workflow1"},
		}

		state2 := map[string]any{
			"workflow_id": workflow2,
			"steps":       2,
			"status":      "workflow2",
			"data":        map[string]interface{}{"source": "workflow2"},
		}

		checkpoint1ID := fmt.Sprintf("%s-milestone", workflow1)
		checkpoint2ID := fmt.Sprintf("%s-milestone", workflow2)

		err = store.SaveCheckpoint(ctx, checkpoint1ID, state1, 1)
		if err != nil {
			t.Fatalf("Failed to save checkpoint for workflow1: %v", err)
		}

		err = store.SaveCheckpoint(ctx, checkpoint2ID, state2, 2)
		if err != nil {
			t.Fatalf("Failed to save checkpoint for workflow2: %v", err)
		}

		loaded1, step1, err := store.LoadCheckpoint(ctx, checkpoint1ID)
		if err != nil {
			t.Fatalf("Failed to load checkpoint for workflow1: %v", err)
		}

		loaded2, step2, err := store.LoadCheckpoint(ctx, checkpoint2ID)
		if err != nil {
			t.Fatalf("Failed to load checkpoint for workflow2: %v", err)
		}

		if step1 != 1 {
			t.Errorf("Workflow1 checkpoint step = %d, want 1", step1)
		}
		if step2 != 2 {
			t.Errorf("Workflow2 checkpoint step = %d, want 2", step2)
		}

		if loaded1["status"] != "workflow1" {
			t.Errorf("Workflow1 checkpoint status = %q, want %q", loaded1["status"], "workflow1")
		}
		if loaded2["status"] != "workflow2" {
			t.Errorf("Workflow2 checkpoint status = %q, want %q", loaded2["status"], "workflow2")
		}

		data1, ok := loaded1["data"].(map[string]interface{})
		if !ok {
			t.Fatal("Workflow1 checkpoint data not a map")
		}
		if source1, ok := data1["source"].(string); !ok || source1 != "workflow1" {
			t.Error("Workflow1 checkpoint data corrupted or mixed with workflow2")
		}

		data2, ok := loaded2["data"].(map[string]interface{})
		if !ok {
			t.Fatal("Workflow2 checkpoint data not a map")
		}
		if source2, ok := data2["source"].(string); !ok || source2 != "workflow2" {
			t.Error("Workflow2 checkpoint data corrupted or mixed with workflow1")
		}

		t.Log("checkpoint isolation test passed: workflows maintain independent checkpoints")
	})
}

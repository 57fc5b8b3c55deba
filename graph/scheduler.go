package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Scope identifies the isolation key a work item executes under: a loop
// iteration, a parallel task, or the run-level default scope. Scoped sub-maps (loop_states, task_states, node_contexts)
// are keyed by ScopeID.
type Scope struct {
	LoopID string
	TaskID string
}

// WorkItem is one unit of pending work in the executor runtime's queue:
// a node to run, in a given scope, carrying enough provenance to compute
// a deterministic OrderKey.
type WorkItem struct {
	NodeID       string
	Scope        Scope
	Attempt      int
	ParentNodeID string
	EdgeIndex    int
	OrderKey     uint64
}

// ComputeOrderKey derives a deterministic ordering key for a fan-out
// branch from its parent node and edge index:
// SHA-256("parentNodeID:edgeIndex") -> first 8 bytes -> uint64 big-endian.
// The runtime merges branch deltas in completion order, not by this key.
func ComputeOrderKey(parentNodeID string, edgeIndex int) uint64 {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", parentNodeID, edgeIndex)))
	return binary.BigEndian.Uint64(h[:8])
}

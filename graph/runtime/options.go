package runtime

import (
	"context"

	"github.com/flowforge/agentgraph/graph/emit"
	"github.com/flowforge/agentgraph/graph/metrics"
	"github.com/flowforge/agentgraph/graph/store"
)

// Options configures the engine itself, independent of any one run.
type Options struct {
	RecursionLimit            int
	DefaultTimeoutMs          int
	ParallelBranchConcurrency int
	SnapshotMaxStringChars    int
	SnapshotMessagesAsCount   bool
	FallbackNodeID            string
	// EnableCheckpointing turns on level-boundary CheckpointV2 persistence
	// through Store. Has no effect if Store is nil.
	EnableCheckpointing bool
	// Store persists step history and checkpoints when EnableCheckpointing
	// is set. A nil Store silently disables checkpointing regardless of
	// EnableCheckpointing.
	Store store.Store
	// Metrics receives inflight/queue-depth gauges and per-node latency
	// and retry observations when set. A nil Metrics makes every call a
	// no-op.
	Metrics metrics.Recorder
}

// DefaultOptions returns the engine's baseline configuration.
func DefaultOptions() Options {
	return Options{
		RecursionLimit:            1000,
		DefaultTimeoutMs:          120000,
		ParallelBranchConcurrency: 8,
		SnapshotMaxStringChars:    500,
		SnapshotMessagesAsCount:   true,
	}
}

// Option mutates an Options value, following a functional option pattern.
type Option func(*Options)

func WithRecursionLimit(n int) Option {
	return func(o *Options) { o.RecursionLimit = n }
}

func WithParallelBranchConcurrency(n int) Option {
	return func(o *Options) { o.ParallelBranchConcurrency = n }
}

func WithFallbackNodeID(id string) Option {
	return func(o *Options) { o.FallbackNodeID = id }
}

func WithCheckpointing(enabled bool) Option {
	return func(o *Options) { o.EnableCheckpointing = enabled }
}

func WithStore(s store.Store) Option {
	return func(o *Options) { o.Store = s }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(o *Options) { o.Metrics = m }
}

// RunConfig configures a single invoke/stream/resume call.
type RunConfig struct {
	ThreadID  string
	Cancel    context.Context
	TimeoutMs int
	Callbacks []emit.Emitter
	Tags      []string
	Metadata  map[string]any

	// ResumeContent, when set, is promoted into messages by a
	// human_input node on resume.
	ResumeContent string
}

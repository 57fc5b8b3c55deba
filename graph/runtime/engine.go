package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/emit"
	"github.com/flowforge/agentgraph/graph/errs"
	"github.com/flowforge/agentgraph/graph/executor"
	"github.com/flowforge/agentgraph/graph/resolve"
	"github.com/flowforge/agentgraph/graph/store"
)

// Engine drives one CompiledPlan to completion across Invoke/Resume calls,
// reusing its resolved node wrappers.
type Engine struct {
	plan     *graph.CompiledPlan
	wrappers map[string]executor.Wrapper
	opts     Options
	retries  map[errs.Kind]*graph.RetryPolicy

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewEngine resolves every node in plan to a Wrapper via registry.
func NewEngine(plan *graph.CompiledPlan, registry *executor.Registry, services *executor.Services, opts Options) (*Engine, error) {
	wrappers := make(map[string]executor.Wrapper, len(plan.NodeDefs))
	for id, def := range plan.NodeDefs {
		w, err := registry.Build(def, services)
		if err != nil {
			return nil, errs.New(errs.KindCompileError, id, fmt.Sprintf("building executor: %v", err), err)
		}
		wrappers[id] = w
	}
	return &Engine{
		plan:     plan,
		wrappers: wrappers,
		opts:     opts,
		retries:  graph.DefaultRetryPolicies(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// PausedError is returned by Invoke/Resume when execution halts before an
// interruptBefore node awaiting human input. The carried
// State is the run's value at the moment of the pause; Resume clones it
// and re-enters at NodeID.
type PausedError struct {
	NodeID string
	State  *graph.State
}

func (e *PausedError) Error() string {
	return fmt.Sprintf("execution paused before node %q awaiting human input", e.NodeID)
}

func (e *PausedError) Unwrap() error { return errs.ErrInterrupted }

// Invoke runs a fresh execution from the plan's start nodes.
func (e *Engine) Invoke(ctx context.Context, input map[string]any, cfg RunConfig) (*graph.State, error) {
	ctx, cancel := e.prepareContext(ctx, cfg)
	defer cancel()

	state := graph.FromValues(e.plan.Schema, input)
	frontier := make([]graph.WorkItem, 0, len(e.plan.StartNodeIDs))
	for _, id := range e.plan.StartNodeIDs {
		frontier = append(frontier, graph.WorkItem{NodeID: id})
	}
	return e.run(ctx, state, frontier, "", "", cfg)
}

// Stream behaves exactly like Invoke: every NodeTrace is pushed to
// cfg.Callbacks as soon as it is produced, so an incremental observer just
// reads its own Emitter rather than a separate channel here.
func (e *Engine) Stream(ctx context.Context, input map[string]any, cfg RunConfig) (*graph.State, error) {
	return e.Invoke(ctx, input, cfg)
}

// Resume continues execution from a PausedError returned by a prior
// Invoke/Resume call. cfg.ResumeContent supplies the human reply, which
// the human_input node promotes into a message.
func (e *Engine) Resume(ctx context.Context, paused *PausedError, cfg RunConfig) (*graph.State, error) {
	ctx, cancel := e.prepareContext(ctx, cfg)
	defer cancel()

	frontier := []graph.WorkItem{{NodeID: paused.NodeID}}
	return e.run(ctx, paused.State.Clone(), frontier, paused.NodeID, cfg.ResumeContent, cfg)
}

// InvokeFromCheckpoint resumes a run from a CheckpointV2 previously saved
// through Options.Store, restoring the accumulated state and the pending
// work frontier directly rather than re-running from the plan's start
// nodes. Returns an error wrapping errs.ErrPlanHashMismatch if cp was
// taken against a differently compiled plan.
func (e *Engine) InvokeFromCheckpoint(ctx context.Context, cp store.CheckpointV2, cfg RunConfig) (*graph.State, error) {
	if cp.PlanHash != "" && cp.PlanHash != e.plan.Hash() {
		return nil, errs.New(errs.KindCompileError, "", "checkpoint plan_hash does not match the compiled plan", errs.ErrPlanHashMismatch)
	}
	ctx, cancel := e.prepareContext(ctx, cfg)
	defer cancel()

	state := graph.FromValues(e.plan.Schema, cp.State)
	frontier := append([]graph.WorkItem(nil), cp.Frontier...)
	return e.run(ctx, state, frontier, "", "", cfg)
}

func (e *Engine) prepareContext(ctx context.Context, cfg RunConfig) (context.Context, context.CancelFunc) {
	timeoutMs := cfg.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = e.opts.DefaultTimeoutMs
	}
	if timeoutMs > 0 {
		ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		return e.withCancelSource(ctx, cfg, cancel)
	}
	return e.withCancelSource(ctx, cfg, func() {})
}

// withCancelSource folds an optional secondary cancellation source
// (cfg.Cancel) into ctx, so a caller can abort a run without owning its
// timeout context.
func (e *Engine) withCancelSource(ctx context.Context, cfg RunConfig, outer context.CancelFunc) (context.Context, context.CancelFunc) {
	if cfg.Cancel == nil {
		return ctx, outer
	}
	merged, cancel := context.WithCancel(ctx)
	stop := make(chan struct{})
	go func() {
		select {
		case <-cfg.Cancel.Done():
			cancel()
		case <-stop:
		}
	}()
	return merged, func() {
		close(stop)
		cancel()
		outer()
	}
}

// runState is the mutable bookkeeping threaded through one run: the
// authoritative State (mutated only under mu, in real completion order
// rather than replay-deterministic merge ordering), the step counter for
// the recursion limit, and the fan-in arrival sets keyed by aggregator
// node ID.
type runState struct {
	mu            sync.Mutex
	state         *graph.State
	steps         int
	arrived       map[string]map[string]bool
	resumeNodeID  string
	resumeContent string
}

func (rs *runState) snapshot() *graph.State {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state.Clone()
}

// run drives the (nodeID, scope) work queue level by level: every item in
// a batch is dispatched concurrently (bounded by
// Options.ParallelBranchConcurrency), and each branch's delta is applied to
// the shared State as soon as it completes — in real completion order, not
// sorted by WorkItem.OrderKey.
func (e *Engine) run(ctx context.Context, state *graph.State, initial []graph.WorkItem, resumeNodeID, resumeContent string, cfg RunConfig) (*graph.State, error) {
	rs := &runState{
		state:         state,
		arrived:       map[string]map[string]bool{},
		resumeNodeID:  resumeNodeID,
		resumeContent: resumeContent,
	}

	queue := initial
	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return rs.state, errs.New(errs.KindCancelled, "", "run cancelled", ctx.Err())
		default:
		}

		concurrency := e.opts.ParallelBranchConcurrency
		if concurrency < 1 {
			concurrency = 1
		}
		sem := make(chan struct{}, concurrency)

		if e.opts.Metrics != nil {
			e.opts.Metrics.UpdateQueueDepth(len(queue))
			if len(queue) > concurrency {
				e.opts.Metrics.IncrementBackpressure(cfg.ThreadID, "max_concurrent")
			}
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		var nextItems []graph.WorkItem
		var runErr error
		var paused *PausedError
		var inflight int32

		for _, item := range queue {
			item := item

			rs.mu.Lock()
			rs.steps++
			steps := rs.steps
			rs.mu.Unlock()
			if e.opts.RecursionLimit > 0 && steps > e.opts.RecursionLimit {
				return rs.state, errs.New(errs.KindRecursionLimitError, item.NodeID, "recursion limit exceeded", nil)
			}

			meta := e.plan.NodeMeta[item.NodeID]
			if meta.InterruptBefore && item.NodeID != rs.resumeNodeID {
				mu.Lock()
				if paused == nil {
					paused = &PausedError{NodeID: item.NodeID, State: rs.snapshot()}
				}
				mu.Unlock()
				continue
			}

			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				if e.opts.Metrics != nil {
					n := atomic.AddInt32(&inflight, 1)
					e.opts.Metrics.UpdateInflightNodes(int(n))
					defer func() {
						e.opts.Metrics.UpdateInflightNodes(int(atomic.AddInt32(&inflight, -1)))
					}()
				}
				succs, err := e.execOne(ctx, rs, item, cfg)
				mu.Lock()
				defer mu.Unlock()
				if err != nil && runErr == nil {
					runErr = err
				}
				nextItems = append(nextItems, succs...)
			}()
		}
		wg.Wait()

		if paused != nil {
			return paused.State, paused
		}
		if runErr != nil {
			if fallback, ok := e.fallbackItem(rs, runErr); ok {
				nextItems = append(nextItems, fallback)
			} else {
				return rs.state, runErr
			}
		}
		queue = nextItems
		e.saveLevelCheckpoint(ctx, cfg, rs, queue)
	}
	return rs.state, nil
}

// execOne runs a single work item and returns the work items it unblocks.
func (e *Engine) execOne(ctx context.Context, rs *runState, item graph.WorkItem, cfg RunConfig) ([]graph.WorkItem, error) {
	def, ok := e.plan.NodeDefs[item.NodeID]
	if !ok {
		return nil, errs.New(errs.KindInternalError, item.NodeID, "no such node in compiled plan", nil)
	}
	meta := e.plan.NodeMeta[item.NodeID]
	wrapper := e.wrappers[item.NodeID]

	working := rs.snapshot()

	nodeCfg := resolve.Resolve(def.Config, working.Snapshot())
	nodeCfg["__nodeId"] = item.NodeID
	nodeCfg["__label"] = def.Label
	if item.NodeID == rs.resumeNodeID {
		nodeCfg["__resumeContent"] = rs.resumeContent
	}

	start := time.Now()
	result := e.executeWithRetry(ctx, wrapper, working, nodeCfg, item, cfg.ThreadID)
	trace := graph.NodeTrace{
		NodeID:        item.NodeID,
		Kind:          meta.Kind,
		StartTs:       start,
		EndTs:         time.Now(),
		InputSnapshot: sanitizeSnapshot(working.Snapshot(), e.opts),
	}
	trace.DurationMs = trace.EndTs.Sub(trace.StartTs).Milliseconds()

	if e.opts.Metrics != nil {
		status := "success"
		if result.Err != nil {
			status = "error"
		}
		e.opts.Metrics.RecordStepLatency(cfg.ThreadID, item.NodeID, trace.EndTs.Sub(trace.StartTs), status)
	}

	if result.Err != nil {
		trace.Error = result.Err
		e.emitTrace(cfg, trace)
		if targets := e.aggregatorTargetsOf(item.NodeID); len(targets) > 0 {
			var out []graph.WorkItem
			for _, t := range targets {
				if wi, ready := e.admit(rs, item.NodeID, t, item.Scope, "error", nil, result.Err); ready {
					out = append(out, wi)
				}
			}
			return out, nil
		}
		return nil, result.Err
	}

	delta := result.Delta
	if delta == nil {
		delta = map[string]any{}
	}
	delta[graph.FieldCurrentNode] = item.NodeID

	rs.mu.Lock()
	applyErr := rs.state.Apply(delta)
	var routeDecision string
	if applyErr == nil && graph.IsRoutingKind(meta.Kind) {
		if v, ok := rs.state.Get(graph.FieldRouteDecision); ok {
			routeDecision, _ = v.(string)
		}
	}
	outSnap := rs.state.Snapshot()
	rs.mu.Unlock()

	trace.OutputSnapshot = sanitizeSnapshot(outSnap, e.opts)
	e.emitTrace(cfg, trace)

	if applyErr != nil {
		if e.opts.Metrics != nil {
			e.opts.Metrics.IncrementMergeConflicts(cfg.ThreadID, "reducer_error")
		}
		return nil, errs.New(errs.KindInternalError, item.NodeID, applyErr.Error(), applyErr)
	}

	e.saveStep(ctx, cfg, rs, item.NodeID, outSnap)

	if result.Command != nil && result.Command.Goto != "" {
		return e.dispatchTo(rs, item, result.Command.Goto, delta), nil
	}
	if graph.IsRoutingKind(meta.Kind) {
		target, ok := e.plan.ConditionalSuccessors[item.NodeID][routeDecision]
		if !ok {
			target, ok = e.plan.ConditionalDefault[item.NodeID]
		}
		if !ok {
			return nil, errs.New(errs.KindParamError, item.NodeID,
				fmt.Sprintf("no route for decision %q and no default edge", routeDecision), errs.ErrNoRoute)
		}
		return e.dispatchTo(rs, item, target, delta), nil
	}
	return e.dispatchStatic(rs, item, delta), nil
}

func (e *Engine) dispatchStatic(rs *runState, item graph.WorkItem, delta map[string]any) []graph.WorkItem {
	edges := e.plan.StaticSuccessors[item.NodeID]
	out := make([]graph.WorkItem, 0, len(edges))
	for i, ed := range edges {
		wi, ready := e.admit(rs, item.NodeID, ed.Target, item.Scope, "success", delta, nil)
		if !ready {
			continue
		}
		wi.ParentNodeID = item.NodeID
		wi.EdgeIndex = i
		wi.OrderKey = graph.ComputeOrderKey(item.NodeID, i)
		out = append(out, wi)
	}
	return out
}

func (e *Engine) dispatchTo(rs *runState, item graph.WorkItem, target string, delta map[string]any) []graph.WorkItem {
	wi, ready := e.admit(rs, item.NodeID, target, item.Scope, "success", delta, nil)
	if !ready {
		return nil
	}
	wi.ParentNodeID = item.NodeID
	wi.OrderKey = graph.ComputeOrderKey(item.NodeID, 0)
	return []graph.WorkItem{wi}
}

// admit decides whether a successor becomes runnable, handling the
// aggregator fan-in barrier: a target with ExpectedUpstream
// predecessors only becomes ready once every predecessor has arrived.
// Arrival also appends a task_results entry for source, which the
// aggregator wrapper itself reads to compute success/error counts.
// branchResult carries source's own result delta (nil on error); on
// error branchErr's message is recorded instead. task_id is the
// source's own scope TaskID, assigned when it was admitted into its
// parallel branch, so fan-in results stay keyed one-to-one per branch
// rather than by node name alone.
func (e *Engine) admit(rs *runState, source, target string, parentScope graph.Scope, status string, branchResult map[string]any, branchErr error) (graph.WorkItem, bool) {
	scope := parentScope
	meta := e.plan.NodeMeta[target]
	if meta.IsLoopBody && meta.LoopOwnerID != "" {
		scope = graph.Scope{LoopID: meta.LoopOwnerID}
	}
	if meta.IsParallelBranch {
		scope = graph.Scope{LoopID: scope.LoopID, TaskID: uuid.NewString()}
	}

	expected, isAggregatorTarget := e.plan.ExpectedUpstream[target]
	if !isAggregatorTarget {
		return graph.WorkItem{NodeID: target, Scope: scope}, true
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	set := rs.arrived[target]
	if set == nil {
		set = map[string]bool{}
		rs.arrived[target] = set
	}
	if set[source] {
		return graph.WorkItem{}, false
	}
	set[source] = true

	taskResult := map[string]any{
		"status":  status,
		"result":  branchResult,
		"task_id": parentScope.TaskID,
	}
	if branchErr != nil {
		taskResult["error_msg"] = branchErr.Error()
	}
	rs.state.Apply(map[string]any{
		graph.FieldTaskResults: []any{taskResult},
	})

	for _, up := range expected {
		if !set[up] {
			return graph.WorkItem{}, false
		}
	}
	return graph.WorkItem{NodeID: target, Scope: scope}, true
}

func (e *Engine) aggregatorTargetsOf(nodeID string) []string {
	var out []string
	for agg, expected := range e.plan.ExpectedUpstream {
		for _, up := range expected {
			if up == nodeID {
				out = append(out, agg)
				break
			}
		}
	}
	return out
}

// effectiveFallback lets Options.FallbackNodeID override the plan's
// compiled default, for callers that want to redirect failures to a
// run-specific handler without recompiling the graph.
func (e *Engine) effectiveFallback() string {
	if e.opts.FallbackNodeID != "" {
		return e.opts.FallbackNodeID
	}
	return e.plan.FallbackNodeID
}

func (e *Engine) fallbackItem(rs *runState, runErr error) (graph.WorkItem, bool) {
	fallback := e.effectiveFallback()
	if fallback == "" {
		return graph.WorkItem{}, false
	}
	kind := errs.KindOf(runErr)
	var nodeID string
	if ge, ok := errs.As(runErr); ok {
		nodeID = ge.NodeID
	}
	rs.mu.Lock()
	_ = rs.state.Apply(map[string]any{
		graph.FieldError:           fmt.Sprintf("%s: %v", kind, runErr),
		graph.FieldErrorSourceNode: nodeID,
		graph.FieldErrorTimestamp:  int(time.Now().Unix()),
	})
	rs.mu.Unlock()
	return graph.WorkItem{NodeID: fallback}, true
}

// executeWithRetry applies graph.DefaultRetryPolicies to ExternalError and
// AuthError kinds, backing off between attempts via graph.ComputeBackoff.
// Other error kinds are never retried here.
func (e *Engine) executeWithRetry(ctx context.Context, wrapper executor.Wrapper, state *graph.State, cfg map[string]any, item graph.WorkItem, runID string) graph.NodeResult {
	attempt := 0
	for {
		result := wrapper.Execute(ctx, state, cfg)
		if result.Err == nil {
			return result
		}
		kind := errs.KindOf(result.Err)
		policy, ok := e.retries[kind]
		if !ok || attempt+1 >= policy.MaxAttempts {
			return result
		}
		if e.opts.Metrics != nil {
			e.opts.Metrics.IncrementRetries(runID, item.NodeID, string(kind))
		}
		e.rngMu.Lock()
		delay := graph.ComputeBackoff(attempt, policy.BaseDelay, policy.MaxDelay, e.rng)
		e.rngMu.Unlock()
		select {
		case <-ctx.Done():
			return graph.Fail(errs.New(errs.KindCancelled, item.NodeID, "context cancelled during retry backoff", ctx.Err()))
		case <-time.After(delay):
		}
		attempt++
	}
}

// saveStep persists outSnap through Options.Store under the current step
// number, when checkpointing is enabled. Failures are reported as a
// trace event rather than aborting the run; a store outage should not
// take down in-flight execution.
func (e *Engine) saveStep(ctx context.Context, cfg RunConfig, rs *runState, nodeID string, outSnap map[string]any) {
	if e.opts.Store == nil || !e.opts.EnableCheckpointing || cfg.ThreadID == "" {
		return
	}
	rs.mu.Lock()
	step := rs.steps
	rs.mu.Unlock()
	if err := e.opts.Store.SaveStep(ctx, cfg.ThreadID, step, nodeID, outSnap); err != nil {
		e.emitWarning(cfg, fmt.Sprintf("checkpoint SaveStep for node %s failed: %v", nodeID, err))
	}
}

// saveLevelCheckpoint persists a CheckpointV2 at a work-queue level
// boundary, capturing the frontier about to run next so a crash can
// resume via InvokeFromCheckpoint instead of re-running from the plan's
// start nodes.
func (e *Engine) saveLevelCheckpoint(ctx context.Context, cfg RunConfig, rs *runState, frontier []graph.WorkItem) {
	if e.opts.Store == nil || !e.opts.EnableCheckpointing || cfg.ThreadID == "" {
		return
	}
	rs.mu.Lock()
	snap := rs.state.Snapshot()
	step := rs.steps
	rs.mu.Unlock()

	cp := store.CheckpointV2{
		RunID:          cfg.ThreadID,
		StepID:         step,
		State:          snap,
		Frontier:       append([]graph.WorkItem(nil), frontier...),
		RNGSeed:        seedFromRunID(cfg.ThreadID),
		IdempotencyKey: idempotencyKey(cfg.ThreadID, step),
		PlanHash:       e.plan.Hash(),
		Timestamp:      time.Now(),
	}
	if err := e.opts.Store.SaveCheckpointV2(ctx, cp); err != nil {
		e.emitWarning(cfg, fmt.Sprintf("checkpoint save at step %d failed: %v", step, err))
	}
}

func seedFromRunID(runID string) int64 {
	h := sha256.Sum256([]byte(runID))
	return int64(binary.BigEndian.Uint64(h[:8]))
}

func idempotencyKey(runID string, step int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", runID, step)))
	return "sha256:" + hex.EncodeToString(h[:])
}

// emitWarning reports a non-fatal runtime condition (a failed checkpoint
// write) through the same callback channel as node traces.
func (e *Engine) emitWarning(cfg RunConfig, msg string) {
	if len(cfg.Callbacks) == 0 {
		return
	}
	evt := emit.Event{RunID: cfg.ThreadID, Msg: msg}
	for _, emitter := range cfg.Callbacks {
		emitter.Emit(evt)
	}
}

func (e *Engine) emitTrace(cfg RunConfig, trace graph.NodeTrace) {
	if len(cfg.Callbacks) == 0 {
		return
	}
	msg := fmt.Sprintf("node %s (%s) completed in %dms", trace.NodeID, trace.Kind, trace.DurationMs)
	meta := map[string]interface{}{
		"duration_ms": trace.DurationMs,
		"input":       trace.InputSnapshot,
		"output":      trace.OutputSnapshot,
	}
	if trace.Error != nil {
		msg = fmt.Sprintf("node %s (%s) failed: %v", trace.NodeID, trace.Kind, trace.Error)
		meta["error"] = trace.Error.Error()
	}
	evt := emit.Event{RunID: cfg.ThreadID, NodeID: trace.NodeID, Msg: msg, Meta: meta}
	for _, emitter := range cfg.Callbacks {
		emitter.Emit(evt)
	}
}

// sanitizeSnapshot bounds trace snapshot size: long strings are truncated
// to Options.SnapshotMaxStringChars, and the messages field is collapsed
// to a count when SnapshotMessagesAsCount is set, so a node with a long
// chat history doesn't blow up trace size.
func sanitizeSnapshot(snap map[string]any, opts Options) map[string]any {
	out := make(map[string]any, len(snap))
	for k, v := range snap {
		out[k] = sanitizeValue(v, opts)
	}
	return out
}

func sanitizeValue(v any, opts Options) any {
	switch t := v.(type) {
	case string:
		if opts.SnapshotMaxStringChars > 0 && len(t) > opts.SnapshotMaxStringChars {
			return t[:opts.SnapshotMaxStringChars] + "…"
		}
		return t
	case []graph.Message:
		if opts.SnapshotMessagesAsCount {
			return fmt.Sprintf("<%d messages>", len(t))
		}
		return t
	default:
		return v
	}
}

// Package metrics exposes Prometheus instrumentation for graph execution:
// concurrency levels, queue depth, per-node latency, retries, and the
// merge-conflict/backpressure counters a production deployment scrapes.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is implemented by Collector. A nil Recorder has no methods to
// call, so the engine checks Options.Metrics for nil before each use.
type Recorder interface {
	RecordStepLatency(runID, nodeID string, latency time.Duration, status string)
	IncrementRetries(runID, nodeID, reason string)
	UpdateQueueDepth(depth int)
	UpdateInflightNodes(count int)
	IncrementMergeConflicts(runID, conflictType string)
	IncrementBackpressure(runID, reason string)
}

// Collector is the Prometheus-backed Recorder.
//
// Metrics, all namespaced "agentgraph_":
//   - inflight_nodes (gauge): nodes executing concurrently right now.
//   - queue_depth (gauge): work items waiting for a scheduler slot.
//   - step_latency_ms (histogram{run_id,node_id,status}): node duration.
//   - retries_total (counter{run_id,node_id,reason}): retry attempts.
//   - merge_conflicts_total (counter{run_id,conflict_type}): reducer errors
//     or divergent concurrent state updates.
//   - backpressure_events_total (counter{run_id,reason}): queue-saturation
//     throttling events.
type Collector struct {
	inflightNodes prometheus.Gauge
	queueDepth    prometheus.Gauge

	stepLatency *prometheus.HistogramVec

	retries        *prometheus.CounterVec
	mergeConflicts *prometheus.CounterVec
	backpressure   *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewCollector registers every metric against registry and returns the
// collector ready for use. A nil registry falls back to
// prometheus.DefaultRegisterer.
func NewCollector(registry prometheus.Registerer) *Collector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Collector{
		enabled: true,
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentgraph",
			Name:      "inflight_nodes",
			Help:      "Nodes executing concurrently across all runs",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentgraph",
			Name:      "queue_depth",
			Help:      "Work items waiting for a scheduler slot",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentgraph",
			Name:      "step_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"run_id", "node_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Name:      "retries_total",
			Help:      "Node retry attempts",
		}, []string{"run_id", "node_id", "reason"}),
		mergeConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Name:      "merge_conflicts_total",
			Help:      "Reducer errors or divergent concurrent state updates",
		}, []string{"run_id", "conflict_type"}),
		backpressure: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph",
			Name:      "backpressure_events_total",
			Help:      "Queue-saturation throttling events",
		}, []string{"run_id", "reason"}),
	}
}

func (c *Collector) isEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// RecordStepLatency observes a node's execution duration. status is
// typically "success", "error", or "timeout".
func (c *Collector) RecordStepLatency(runID, nodeID string, latency time.Duration, status string) {
	if !c.isEnabled() {
		return
	}
	c.stepLatency.WithLabelValues(runID, nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries counts one retry attempt for nodeID, keyed by reason
// (the errs.Kind of the error that triggered it).
func (c *Collector) IncrementRetries(runID, nodeID, reason string) {
	if !c.isEnabled() {
		return
	}
	c.retries.WithLabelValues(runID, nodeID, reason).Inc()
}

// UpdateQueueDepth sets the current scheduler queue length.
func (c *Collector) UpdateQueueDepth(depth int) {
	if !c.isEnabled() {
		return
	}
	c.queueDepth.Set(float64(depth))
}

// UpdateInflightNodes sets the current concurrently-executing node count.
func (c *Collector) UpdateInflightNodes(count int) {
	if !c.isEnabled() {
		return
	}
	c.inflightNodes.Set(float64(count))
}

// IncrementMergeConflicts counts one reducer error or state-divergence
// event detected during concurrent delta application.
func (c *Collector) IncrementMergeConflicts(runID, conflictType string) {
	if !c.isEnabled() {
		return
	}
	c.mergeConflicts.WithLabelValues(runID, conflictType).Inc()
}

// IncrementBackpressure counts one queue-saturation throttling event.
func (c *Collector) IncrementBackpressure(runID, reason string) {
	if !c.isEnabled() {
		return
	}
	c.backpressure.WithLabelValues(runID, reason).Inc()
}

// Disable stops recording without unregistering collectors, so a test can
// silence metrics mid-run.
func (c *Collector) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
}

// Enable resumes recording after Disable.
func (c *Collector) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
}

// Reset zeroes the gauges. Counters and histograms are cumulative by
// Prometheus design and are left untouched.
func (c *Collector) Reset() {
	c.inflightNodes.Set(0)
	c.queueDepth.Set(0)
}

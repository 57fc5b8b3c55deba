package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestCollector_GaugesTrackLatestValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.UpdateInflightNodes(3)
	c.UpdateQueueDepth(7)

	if got := gaugeValue(t, c.inflightNodes); got != 3 {
		t.Fatalf("inflightNodes = %v, want 3", got)
	}
	if got := gaugeValue(t, c.queueDepth); got != 7 {
		t.Fatalf("queueDepth = %v, want 7", got)
	}
}

func TestCollector_Disable_SuppressesUpdates(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.UpdateInflightNodes(5)
	c.Disable()
	c.UpdateInflightNodes(9)
	if got := gaugeValue(t, c.inflightNodes); got != 5 {
		t.Fatalf("inflightNodes after Disable = %v, want unchanged 5", got)
	}

	c.Enable()
	c.UpdateInflightNodes(9)
	if got := gaugeValue(t, c.inflightNodes); got != 9 {
		t.Fatalf("inflightNodes after Enable = %v, want 9", got)
	}
}

func TestCollector_Reset_ZeroesGaugesOnly(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.UpdateInflightNodes(4)
	c.UpdateQueueDepth(2)
	c.IncrementRetries("run-1", "node-a", "ExternalError")

	c.Reset()
	if got := gaugeValue(t, c.inflightNodes); got != 0 {
		t.Fatalf("inflightNodes after Reset = %v, want 0", got)
	}
	if got := gaugeValue(t, c.queueDepth); got != 0 {
		t.Fatalf("queueDepth after Reset = %v, want 0", got)
	}
}

func TestCollector_RecordStepLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordStepLatency("run-1", "node-a", 42*time.Millisecond, "success")

	mf, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, f := range mf {
		if f.GetName() != "agentgraph_step_latency_ms" {
			continue
		}
		for _, m := range f.Metric {
			if m.GetHistogram().GetSampleCount() == 1 {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected one observation recorded on agentgraph_step_latency_ms")
	}
}

func TestCollector_NilSafeAsRecorder(t *testing.T) {
	var r Recorder
	if r != nil {
		t.Fatal("zero value Recorder should be nil")
	}
}

package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns Events into OpenTelemetry spans: one span per event,
// named after event.Msg, with RunID/Step/NodeID carried as
// agentgraph.run_id/step/node_id attributes. Meta fields become attributes
// too: tokens_in, tokens_out, cost_usd, latency_ms and model are renamed to
// agentgraph.llm.* / agentgraph.node.* keys, step_id, order_key and attempt
// to agentgraph.step_id/order_key/attempt, and every other key keeps its
// own name without a prefix. Each span represents a
// point in time rather than a duration, so it is started and ended
// immediately inside Emit/EmitBatch.
type OTelEmitter struct {
	tracer trace.Tracer
	spans  []trace.Span
}

// NewOTelEmitter builds an OTelEmitter around tracer, typically obtained
// from otel.Tracer("agentgraph").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{
		tracer: tracer,
		spans:  make([]trace.Span, 0),
	}
}

func (o *OTelEmitter) Emit(event Event) {
	ctx := context.Background()
	_, span := o.tracer.Start(ctx, event.Msg)
	defer span.End()

	o.addStandardAttributes(span, event)
	o.addMetadataAttributes(span, event.Meta)
	o.addConcurrencyAttributes(span, event.Meta)

	if err, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, err)
		span.RecordError(fmt.Errorf("%s", err))
	}
}

// EmitBatch starts and immediately ends one span per event, in order.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)

		o.addStandardAttributes(span, event)
		o.addMetadataAttributes(span, event.Meta)
		o.addConcurrencyAttributes(span, event.Meta)

		if err, ok := event.Meta["error"].(string); ok {
			span.SetStatus(codes.Error, err)
			span.RecordError(fmt.Errorf("%s", err))
		}

		span.End()
	}

	return nil
}

// Flush calls ForceFlush on the global tracer provider if it supports one,
// blocking until pending spans are exported or ctx expires. A no-op
// provider (the default when no SDK is configured) leaves this a no-op.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()

	type flusher interface {
		ForceFlush(context.Context) error
	}

	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}

	return nil
}

func (o *OTelEmitter) addStandardAttributes(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("agentgraph.run_id", event.RunID),
		attribute.Int("agentgraph.step", event.Step),
		attribute.String("agentgraph.node_id", event.NodeID),
	)
}

// addMetadataAttributes maps event.Meta onto span attributes, renaming the
// LLM cost/latency fields to namespaced keys and converting recognized Go
// types; anything else falls back to its string representation.
func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	if meta == nil {
		return
	}

	for key, value := range meta {
		if key == "step_id" || key == "order_key" || key == "attempt" {
			continue
		}

		attrKey := key
		switch key {
		case "tokens_in":
			attrKey = "agentgraph.llm.tokens_in"
		case "tokens_out":
			attrKey = "agentgraph.llm.tokens_out"
		case "cost_usd":
			attrKey = "agentgraph.llm.cost_usd"
		case "latency_ms":
			attrKey = "agentgraph.node.latency_ms"
		case "model":
			attrKey = "agentgraph.llm.model"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}

// addConcurrencyAttributes surfaces scheduler metadata (order key, step id,
// retry attempt) used to correlate a span back to its deterministic replay
// position.
func (o *OTelEmitter) addConcurrencyAttributes(span trace.Span, meta map[string]interface{}) {
	if meta == nil {
		return
	}

	if stepID, ok := meta["step_id"].(string); ok {
		span.SetAttributes(attribute.String("agentgraph.step_id", stepID))
	}

	if orderKey, ok := meta["order_key"].(string); ok {
		span.SetAttributes(attribute.String("agentgraph.order_key", orderKey))
	}

	if attempt, ok := meta["attempt"].(int); ok {
		span.SetAttributes(attribute.Int("agentgraph.attempt", attempt))
	} else if attempt, ok := meta["attempt"].(int64); ok {
		span.SetAttributes(attribute.Int64("agentgraph.attempt", attempt))
	}
}

// Command examples runs the linear scenario from the engine's test
// suite end to end: an agent node answers a user message, then a
// direct_reply node appends a fixed follow-up. It demonstrates wiring
// together the compiler, the executor registry, a mocked LLM client,
// an in-memory checkpoint store, and a Prometheus metrics collector —
// the full set of collaborators a real deployment would configure at
// startup.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/compiler"
	"github.com/flowforge/agentgraph/graph/emit"
	"github.com/flowforge/agentgraph/graph/executor"
	"github.com/flowforge/agentgraph/graph/metrics"
	"github.com/flowforge/agentgraph/graph/model"
	"github.com/flowforge/agentgraph/graph/runtime"
	"github.com/flowforge/agentgraph/graph/store"
)

func main() {
	def := graph.GraphDefinition{
		ID:   "linear-demo",
		Name: "agent-then-reply",
		Nodes: map[string]graph.NodeDef{
			"A": {
				ID:     "A",
				Kind:   graph.KindAgent,
				Label:  "A",
				Config: map[string]any{"model": "mock-default"},
				Reads:  []string{graph.FieldMessages},
				Writes: []string{graph.FieldMessages},
			},
			"B": {
				ID:     "B",
				Kind:   graph.KindDirectReply,
				Label:  "B",
				Config: map[string]any{"template": "Anything else I can help with?"},
				Writes: []string{graph.FieldMessages},
			},
		},
		Edges: []graph.EdgeDef{
			{Source: "A", Target: "B", Kind: graph.EdgeNormal},
		},
	}

	registry := executor.NewRegistry()
	plan, err := compiler.Compile(def, registry)
	if err != nil {
		log.Fatalf("compile: %v", err)
	}

	mock := &model.MockChatModel{
		Responses: []model.ChatOut{{Text: "Hi! How can I help you today?"}},
	}
	services := &executor.Services{
		LLMClientFactory: func(string) (model.ChatModel, error) { return mock, nil },
	}

	memStore := store.NewMemStore()
	collector := metrics.NewCollector(prometheus.NewRegistry())

	opts := runtime.DefaultOptions()
	opts.EnableCheckpointing = true
	opts.Store = memStore
	opts.Metrics = collector

	engine, err := runtime.NewEngine(plan, registry, services, opts)
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	input := map[string]any{
		graph.FieldMessages: []graph.Message{
			{ID: uuid.NewString(), Role: graph.RoleUser, Content: "hi"},
		},
	}
	cfg := runtime.RunConfig{
		ThreadID:  "demo-run-1",
		Callbacks: []emit.Emitter{emit.NewLogEmitter(os.Stdout, false)},
	}

	final, err := engine.Invoke(context.Background(), input, cfg)
	if err != nil {
		log.Fatalf("invoke: %v", err)
	}

	msgsVal, _ := final.Get(graph.FieldMessages)
	msgs, _ := msgsVal.([]graph.Message)
	currentNode, _ := final.Get(graph.FieldCurrentNode)

	fmt.Printf("\nfinal current_node = %v\n", currentNode)
	fmt.Printf("final messages (%d):\n", len(msgs))
	for _, m := range msgs {
		fmt.Printf("  [%s] %s\n", m.Role, m.Content)
	}

	if _, step, err := memStore.LoadLatest(context.Background(), cfg.ThreadID); err == nil {
		fmt.Printf("\npersisted through step %d\n", step)
	}
}

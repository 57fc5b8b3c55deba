// Package executor implements the NodeWrapper contract and
// the concrete executor kinds: agent, condition/router/loop, aggregator,
// http/tool/function/json_parser/direct_reply/human_input, and todo.
package executor

import (
	"context"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/model"
	"github.com/flowforge/agentgraph/graph/tool"
)

// Services bundles the collaborator handles a factory needs to build a
// Wrapper.
type Services struct {
	LLMClientFactory func(modelHandle string) (model.ChatModel, error)
	ToolRegistry     *tool.Registry
}

// Wrapper is the interface every node executor implements.
type Wrapper interface {
	Execute(ctx context.Context, state *graph.State, cfg map[string]any) graph.NodeResult
	DeclaredReads() []string
	DeclaredWrites() []string
}

// Factory builds a Wrapper for one NodeDef, given the shared Services.
type Factory func(def graph.NodeDef, services *Services) (Wrapper, error)

// Registry resolves node kinds to Factories.
type Registry struct {
	factories map[graph.NodeKind]Factory
}

// NewRegistry builds a Registry pre-populated with every built-in
// executor kind.
func NewRegistry() *Registry {
	r := &Registry{factories: map[graph.NodeKind]Factory{}}
	r.Register(graph.KindAgent, newAgentFactory)
	r.Register(graph.KindCodeAgent, newAgentFactory)
	r.Register(graph.KindCondition, newConditionFactory)
	r.Register(graph.KindConditionAgent, newConditionAgentFactory)
	r.Register(graph.KindRouter, newRouterFactory)
	r.Register(graph.KindLoopCondition, newLoopFactory)
	r.Register(graph.KindAggregator, newAggregatorFactory)
	r.Register(graph.KindHTTP, newHTTPFactory)
	r.Register(graph.KindTool, newToolFactory)
	r.Register(graph.KindFunction, newFunctionFactory)
	r.Register(graph.KindJSONParser, newJSONParserFactory)
	r.Register(graph.KindDirectReply, newDirectReplyFactory)
	r.Register(graph.KindHumanInput, newHumanInputFactory)
	r.Register(graph.KindTodoAdd, newTodoAddFactory)
	r.Register(graph.KindTodoComplete, newTodoCompleteFactory)
	return r
}

// Register adds or overrides the factory for a node kind.
func (r *Registry) Register(kind graph.NodeKind, f Factory) {
	r.factories[kind] = f
}

// Resolve returns the factory for kind, if registered.
func (r *Registry) Resolve(kind graph.NodeKind) (Factory, bool) {
	f, ok := r.factories[kind]
	return f, ok
}

// Build resolves def.Kind and invokes its factory.
func (r *Registry) Build(def graph.NodeDef, services *Services) (Wrapper, error) {
	f, ok := r.Resolve(def.Kind)
	if !ok {
		return nil, &unknownKindError{Kind: def.Kind}
	}
	return f(def, services)
}

type unknownKindError struct{ Kind graph.NodeKind }

func (e *unknownKindError) Error() string {
	return "unknown node kind: " + string(e.Kind)
}

// baseWrapper provides the DeclaredReads/DeclaredWrites boilerplate every
// concrete executor embeds.
type baseWrapper struct {
	reads  []string
	writes []string
}

func (b baseWrapper) DeclaredReads() []string  { return b.reads }
func (b baseWrapper) DeclaredWrites() []string { return b.writes }

package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// NodeKind names one of the executor kinds the registry resolves.
type NodeKind string

const (
	KindAgent           NodeKind = "agent"
	KindCodeAgent        NodeKind = "code_agent"
	KindCondition        NodeKind = "condition"
	KindConditionAgent   NodeKind = "condition_agent"
	KindRouter           NodeKind = "router_node"
	KindLoopCondition    NodeKind = "loop_condition_node"
	KindAggregator       NodeKind = "aggregator_node"
	KindHTTP             NodeKind = "http"
	KindTool             NodeKind = "tool"
	KindFunction         NodeKind = "function"
	KindJSONParser       NodeKind = "json_parser"
	KindDirectReply      NodeKind = "direct_reply"
	KindHumanInput       NodeKind = "human_input"
	KindTodoAdd          NodeKind = "todo_add"
	KindTodoComplete     NodeKind = "todo_complete"
)

// routingKinds are node kinds whose outgoing edges are conditional
// (routeKey-addressed) rather than static fan-out successors.
var routingKinds = map[NodeKind]bool{
	KindCondition:      true,
	KindConditionAgent: true,
	KindRouter:         true,
	KindLoopCondition:  true,
}

// IsRoutingKind reports whether a node kind routes via conditional edges.
func IsRoutingKind(k NodeKind) bool { return routingKinds[k] }

// NodeDef is one node in a GraphDefinition.
type NodeDef struct {
	ID              string
	Kind            NodeKind
	Label           string
	Config          map[string]any
	Reads           []string
	Writes          []string
	InterruptBefore bool
}

// EdgeKind distinguishes static (always-taken) edges from conditional
// (routeKey-addressed) ones.
type EdgeKind string

const (
	EdgeNormal      EdgeKind = "normal"
	EdgeConditional EdgeKind = "conditional"
)

// EdgeDef is one edge in a GraphDefinition.
type EdgeDef struct {
	Source         string
	Target         string
	Kind           EdgeKind
	RouteKey       string
	SourceHandleID string
}

// GraphDefinition is the immutable, collaborator-supplied description of a
// workflow: nodes, edges, and a dynamic state schema.
type GraphDefinition struct {
	ID             string
	Name           string
	Nodes          map[string]NodeDef
	Edges          []EdgeDef
	StateFields    []FieldSpec
	FallbackNodeID string
}

// NodeWrapperMeta carries the compiler-derived metadata every compiled
// node carries alongside its resolved executor.
type NodeWrapperMeta struct {
	NodeID          string
	Kind            NodeKind
	IsLoopBody      bool
	LoopOwnerID     string
	IsParallelBranch bool
	FallbackTarget  string
	InterruptBefore bool
	DeclaredReads   []string
	DeclaredWrites  []string
}

// CompiledPlan is the compiler's immutable output.
type CompiledPlan struct {
	StartNodeIDs          []string
	NodeDefs              map[string]NodeDef
	NodeMeta              map[string]NodeWrapperMeta
	StaticSuccessors      map[string][]EdgeDef
	ConditionalSuccessors map[string]map[string]string // nodeID -> routeKey -> target
	ConditionalDefault    map[string]string             // nodeID -> default target
	ExpectedUpstream      map[string][]string           // aggregator nodeID -> predecessor node IDs
	Schema                *Schema
	FallbackNodeID        string
}

// Hash returns a deterministic fingerprint of the plan's node kinds and
// static/conditional edges, stable across process restarts regardless of
// map iteration order. A checkpoint's PlanHash is compared against this
// on resume: a mismatch means the graph changed underneath a saved run.
func (p *CompiledPlan) Hash() string {
	nodeIDs := make([]string, 0, len(p.NodeDefs))
	for id := range p.NodeDefs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	h := sha256.New()
	for _, id := range nodeIDs {
		fmt.Fprintf(h, "node:%s:%s\n", id, p.NodeMeta[id].Kind)
		edges := append([]EdgeDef(nil), p.StaticSuccessors[id]...)
		sort.Slice(edges, func(i, j int) bool { return edges[i].Target < edges[j].Target })
		for _, e := range edges {
			fmt.Fprintf(h, "static:%s->%s\n", id, e.Target)
		}
		routeKeys := make([]string, 0, len(p.ConditionalSuccessors[id]))
		for k := range p.ConditionalSuccessors[id] {
			routeKeys = append(routeKeys, k)
		}
		sort.Strings(routeKeys)
		for _, k := range routeKeys {
			fmt.Fprintf(h, "cond:%s:%s->%s\n", id, k, p.ConditionalSuccessors[id][k])
		}
		if def, ok := p.ConditionalDefault[id]; ok {
			fmt.Fprintf(h, "default:%s->%s\n", id, def)
		}
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}

// NodeTrace is the per-node observability record emitted through every
// configured trace sink.
type NodeTrace struct {
	NodeID         string
	Kind           NodeKind
	StartTs        time.Time
	EndTs          time.Time
	DurationMs     int64
	InputSnapshot  map[string]any
	OutputSnapshot map[string]any
	Error          error
}

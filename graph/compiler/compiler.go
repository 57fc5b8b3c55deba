// Package compiler validates a GraphDefinition and produces a CompiledPlan.
package compiler

import (
	"fmt"
	"log"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/errs"
	"github.com/flowforge/agentgraph/graph/executor"
)

// Compile validates def against registry and produces an immutable
// CompiledPlan, or a *errs.Error with Kind=CompileError.
func Compile(def graph.GraphDefinition, registry *executor.Registry) (*graph.CompiledPlan, error) {
	if err := validateEdges(def); err != nil {
		return nil, err
	}
	schema, err := graph.NewSchema(def.StateFields)
	if err != nil {
		return nil, compileErr("", fmt.Sprintf("state schema: %v", err))
	}

	if def.FallbackNodeID != "" {
		if _, ok := def.Nodes[def.FallbackNodeID]; !ok {
			return nil, compileErr(def.FallbackNodeID, "fallbackNodeId refers to an unknown node")
		}
	}

	plan := &graph.CompiledPlan{
		NodeDefs:              def.Nodes,
		NodeMeta:              map[string]graph.NodeWrapperMeta{},
		StaticSuccessors:      map[string][]graph.EdgeDef{},
		ConditionalSuccessors: map[string]map[string]string{},
		ConditionalDefault:    map[string]string{},
		ExpectedUpstream:      map[string][]string{},
		Schema:                schema,
		FallbackNodeID:        def.FallbackNodeID,
	}

	for id, nd := range def.Nodes {
		if registry != nil {
			if _, ok := registry.Resolve(nd.Kind); !ok {
				return nil, compileErr(id, fmt.Sprintf("unknown executor kind %q", nd.Kind))
			}
		}
		for _, w := range nd.Writes {
			if w == "*" {
				continue
			}
			if _, ok := schema.Field(w); !ok {
				return nil, compileErr(id, fmt.Sprintf("declared write to unknown state field %q", w))
			}
		}
		plan.NodeMeta[id] = graph.NodeWrapperMeta{
			NodeID:          id,
			Kind:            nd.Kind,
			FallbackTarget:  def.FallbackNodeID,
			InterruptBefore: nd.InterruptBefore,
			DeclaredReads:   nd.Reads,
			DeclaredWrites:  nd.Writes,
		}
	}

	// classify edges by source node kind
	incoming := map[string][]string{}
	for _, e := range def.Edges {
		if graph.IsRoutingKind(def.Nodes[e.Source].Kind) {
			key := e.RouteKey
			if key == "" {
				key = e.SourceHandleID
			}
			if key == "" {
				return nil, compileErr(e.Source, "conditional source edge missing routeKey/sourceHandleId")
			}
			if plan.ConditionalSuccessors[e.Source] == nil {
				plan.ConditionalSuccessors[e.Source] = map[string]string{}
			}
			if key == "default" {
				plan.ConditionalDefault[e.Source] = e.Target
			} else {
				// last wins + warn on duplicate routeKey
				if prev, dup := plan.ConditionalSuccessors[e.Source][key]; dup {
					log.Printf("compiler: node %s: duplicate routeKey %q, target %s replaced by %s", e.Source, key, prev, e.Target)
				}
				plan.ConditionalSuccessors[e.Source][key] = e.Target
			}
		} else {
			plan.StaticSuccessors[e.Source] = append(plan.StaticSuccessors[e.Source], e)
		}
		incoming[e.Target] = append(incoming[e.Target], e.Source)
	}

	// propagate metadata
	propagateLoopBody(def, plan)
	propagateParallelBranch(def, plan)

	// expected upstream for aggregator nodes, derived from incoming static edges
	for id, nd := range def.Nodes {
		if nd.Kind == graph.KindAggregator {
			plan.ExpectedUpstream[id] = incoming[id]
		}
	}

	// start nodes: no incoming normal edges
	hasIncoming := map[string]bool{}
	for _, e := range def.Edges {
		if e.Kind == graph.EdgeNormal || !graph.IsRoutingKind(def.Nodes[e.Source].Kind) {
			hasIncoming[e.Target] = true
		}
	}
	for id := range def.Nodes {
		if !hasIncoming[id] {
			plan.StartNodeIDs = append(plan.StartNodeIDs, id)
		}
	}

	return plan, nil
}

func validateEdges(def graph.GraphDefinition) error {
	for _, e := range def.Edges {
		if _, ok := def.Nodes[e.Source]; !ok {
			return compileErr(e.Source, "edge source refers to unknown node")
		}
		if _, ok := def.Nodes[e.Target]; !ok {
			return compileErr(e.Target, "edge target refers to unknown node")
		}
	}
	return nil
}

// propagateLoopBody marks every node reachable from the target of a
// loop_condition_node's "continue" route, following static and conditional
// successors and stopping at the loop node itself, as isLoopBody, owned by
// that loop node. A node is marked even when other paths also reach it.
func propagateLoopBody(def graph.GraphDefinition, plan *graph.CompiledPlan) {
	for _, nd := range def.Nodes {
		if nd.Kind != graph.KindLoopCondition {
			continue
		}
		loopTarget, ok := plan.ConditionalSuccessors[nd.ID]["continue"]
		if !ok {
			continue
		}
		visited := map[string]bool{}
		markLoopBody(plan, loopTarget, nd.ID, visited)
	}
}

func markLoopBody(plan *graph.CompiledPlan, nodeID, ownerID string, visited map[string]bool) {
	if visited[nodeID] || nodeID == ownerID {
		return
	}
	visited[nodeID] = true
	meta := plan.NodeMeta[nodeID]
	meta.IsLoopBody = true
	meta.LoopOwnerID = ownerID
	plan.NodeMeta[nodeID] = meta
	for _, e := range plan.StaticSuccessors[nodeID] {
		markLoopBody(plan, e.Target, ownerID, visited)
	}
	for _, target := range plan.ConditionalSuccessors[nodeID] {
		markLoopBody(plan, target, ownerID, visited)
	}
}

// propagateParallelBranch marks every successor of an implicit fan-out
// (a non-routing node with >1 static successors) as isParallelBranch.
func propagateParallelBranch(def graph.GraphDefinition, plan *graph.CompiledPlan) {
	for id, edges := range plan.StaticSuccessors {
		if graph.IsRoutingKind(def.Nodes[id].Kind) {
			continue
		}
		if len(edges) <= 1 {
			continue
		}
		for _, e := range edges {
			meta := plan.NodeMeta[e.Target]
			meta.IsParallelBranch = true
			plan.NodeMeta[e.Target] = meta
		}
	}
}

func compileErr(nodeID, msg string) error {
	return errs.New(errs.KindCompileError, nodeID, msg, nil)
}

package graph

import (
	"fmt"

	"github.com/flowforge/flowforge/types"
)

var knownTypes = map[NodeType]struct{}{
	NodeStart: {}, NodeEnd: {}, NodeAgent: {}, NodeMemoryRead: {},
	NodeMemoryWrite: {}, NodeTool: {}, NodeDecision: {}, NodeParallelFork: {},
	NodeParallelJoin: {}, NodeLoop: {}, NodeErrorRetry: {}, NodeTimeoutGuard: {},
	NodeHumanPause: {}, NodeSubgraph: {}, NodeCustom: {},
}

// Validate checks the schema for structural defects that would make
// compilation meaningless: empty graphs, duplicate or colliding node ids,
// unknown node types, and edges referencing nodes that do not exist.
//
// A graph without a start node is accepted; Entry falls back to the first
// declared node in that case.
func (s *Schema) Validate() error {
	if len(s.Nodes) == 0 {
		return types.NewError(types.ErrInvalidGraph, "graph has no nodes")
	}

	ids := make(map[string]struct{}, len(s.Nodes))
	sanitized := make(map[string]string, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" {
			return types.NewError(types.ErrInvalidGraph, "node with empty id")
		}
		if _, dup := ids[n.ID]; dup {
			return types.NewError(types.ErrInvalidGraph,
				fmt.Sprintf("duplicate node id %q", n.ID))
		}
		ids[n.ID] = struct{}{}

		if _, ok := knownTypes[n.Type.Normalize()]; !ok {
			return types.NewError(types.ErrInvalidGraph,
				fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type)).
				WithNodeID(n.ID)
		}

		san := SanitizeID(n.ID)
		if prev, clash := sanitized[san]; clash {
			return types.NewError(types.ErrInvalidGraph,
				fmt.Sprintf("node ids %q and %q collide after sanitization (%q)", prev, n.ID, san))
		}
		sanitized[san] = n.ID
	}

	for _, e := range s.Edges {
		if _, ok := ids[e.Source]; !ok {
			return types.NewError(types.ErrEdgeUnroutable,
				fmt.Sprintf("edge %q references unknown source %q", e.ID, e.Source))
		}
		if _, ok := ids[e.Target]; !ok {
			return types.NewError(types.ErrEdgeUnroutable,
				fmt.Sprintf("edge %q references unknown target %q", e.ID, e.Target))
		}
	}
	return nil
}

// Entry returns the execution entry point: the first start node in
// declaration order, or the first node of the graph when no start node
// exists.
func (s *Schema) Entry() *Node {
	for i := range s.Nodes {
		if s.Nodes[i].Type.Normalize() == NodeStart {
			return &s.Nodes[i]
		}
	}
	if len(s.Nodes) > 0 {
		return &s.Nodes[0]
	}
	return nil
}

// OutgoingEdges returns the edges whose source is the given node, in
// declaration order.
func (s *Schema) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range s.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns the edges whose target is the given node, in
// declaration order.
func (s *Schema) IncomingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range s.Edges {
		if e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// NodesOfType returns the ids of all nodes of the given type.
func (s *Schema) NodesOfType(t NodeType) map[string]struct{} {
	out := map[string]struct{}{}
	for _, n := range s.Nodes {
		if n.Type.Normalize() == t {
			out[n.ID] = struct{}{}
		}
	}
	return out
}

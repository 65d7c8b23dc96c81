package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/types"
)

func TestClassifyEdgePrecedence(t *testing.T) {
	forks := map[string]struct{}{"fork-1": {}}
	joins := map[string]struct{}{"join-1": {}}

	cases := []struct {
		name string
		edge graph.Edge
		want EdgeKind
	}{
		{"plain", graph.Edge{Source: "a", Target: "b"}, EdgeDirect},
		{"decision handle", graph.Edge{SourceHandle: "decision.success"}, EdgeDecision},
		{"decision beats loop", graph.Edge{SourceHandle: "decision-loop-continue"}, EdgeDecision},
		{"loop handle", graph.Edge{SourceHandle: "loop-continue"}, EdgeLoop},
		{"loop beats retry", graph.Edge{SourceHandle: "loop-retry-exit"}, EdgeLoop},
		{"retry handle", graph.Edge{SourceHandle: "retry-should_retry"}, EdgeRetry},
		{"fork membership", graph.Edge{Source: "fork-1", Target: "b"}, EdgeFork},
		{"fork handle", graph.Edge{SourceHandle: "fork-out"}, EdgeFork},
		{"retry beats fork", graph.Edge{Source: "fork-1", SourceHandle: "retry-continue"}, EdgeRetry},
		{"join membership", graph.Edge{Source: "a", Target: "join-1"}, EdgeJoin},
		{"join handle", graph.Edge{TargetHandle: "join-in"}, EdgeJoin},
		{"fork beats join", graph.Edge{Source: "fork-1", Target: "join-1"}, EdgeFork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyEdge(tc.edge, forks, joins))
		})
	}
}

func TestDecisionBranch(t *testing.T) {
	assert.Equal(t, "success", DecisionBranch(graph.Edge{SourceHandle: "decision.success"}))
	assert.Equal(t, "error", DecisionBranch(graph.Edge{SourceHandle: "decision-error"}))
	assert.Equal(t, "default", DecisionBranch(graph.Edge{SourceHandle: "decision"}))
}

func TestBuildRoutesLoop(t *testing.T) {
	s := &graph.Schema{
		Nodes: []graph.Node{
			{ID: "loop", Type: graph.NodeLoop},
			{ID: "body", Type: graph.NodeCustom},
			{ID: "end", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "loop", Target: "body", SourceHandle: "loop-continue"},
			{ID: "e2", Source: "loop", Target: "end", SourceHandle: "loop-exit"},
			{ID: "e3", Source: "body", Target: "loop"},
		},
	}
	routes, err := BuildRoutes(s)
	require.NoError(t, err)

	plan := routes["loop"]
	assert.Equal(t, EdgeLoop, plan.Kind)
	assert.Equal(t, "body", plan.LoopContinue)
	assert.Equal(t, "end", plan.LoopExit)
	assert.Equal(t, "loop", routes["body"].Direct)
}

func TestBuildRoutesRetry(t *testing.T) {
	s := &graph.Schema{
		Nodes: []graph.Node{
			{ID: "work", Type: graph.NodeTool},
			{ID: "retry", Type: graph.NodeErrorRetry},
			{ID: "end", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "work", Target: "retry"},
			{ID: "e2", Source: "retry", Target: "work", SourceHandle: "retry-should_retry"},
			{ID: "e3", Source: "retry", Target: "end", SourceHandle: "retry-continue"},
		},
	}
	routes, err := BuildRoutes(s)
	require.NoError(t, err)

	plan := routes["retry"]
	assert.Equal(t, EdgeRetry, plan.Kind)
	assert.Equal(t, "work", plan.RetryTarget)
	assert.Equal(t, "end", plan.ProceedTarget)
}

func TestBuildRoutesForkFindsJoin(t *testing.T) {
	s := &graph.Schema{
		Nodes: []graph.Node{
			{ID: "fork", Type: graph.NodeParallelFork},
			{ID: "b1", Type: graph.NodeCustom},
			{ID: "b2", Type: graph.NodeCustom},
			{ID: "join", Type: graph.NodeParallelJoin},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "fork", Target: "b1"},
			{ID: "e2", Source: "fork", Target: "b2"},
			{ID: "e3", Source: "b1", Target: "join"},
			{ID: "e4", Source: "b2", Target: "join"},
		},
	}
	routes, err := BuildRoutes(s)
	require.NoError(t, err)

	plan := routes["fork"]
	assert.Equal(t, EdgeFork, plan.Kind)
	assert.Equal(t, []string{"b1", "b2"}, plan.ForkTargets)
	assert.Equal(t, "join", plan.JoinNode)
}

func TestBuildRoutesRejectsDuplicateDecisionBranch(t *testing.T) {
	s := &graph.Schema{
		Nodes: []graph.Node{
			{ID: "d", Type: graph.NodeDecision},
			{ID: "a", Type: graph.NodeCustom},
			{ID: "b", Type: graph.NodeCustom},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "d", Target: "a", SourceHandle: "decision.success"},
			{ID: "e2", Source: "d", Target: "b", SourceHandle: "decision.success"},
		},
	}
	_, err := BuildRoutes(s)
	require.Error(t, err)
	assert.Equal(t, types.ErrEdgeUnroutable, types.GetErrorCode(err))
}

func TestRoutePlanNextDecision(t *testing.T) {
	plan := &RoutePlan{
		NodeID:   "d",
		Kind:     EdgeDecision,
		Branches: map[string]string{"success": "a", "default": "b"},
	}

	s := types.NewState("")
	s[types.KeyDecision] = "success"
	assert.Equal(t, "a", plan.Next(s))

	s[types.KeyDecision] = "unknown"
	assert.Equal(t, "b", plan.Next(s))
}

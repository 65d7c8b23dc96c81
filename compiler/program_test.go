package compiler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/intervene"
	"github.com/flowforge/flowforge/llm"
	"github.com/flowforge/flowforge/subgraph"
	"github.com/flowforge/flowforge/tools"
	"github.com/flowforge/flowforge/types"
)

func TestProgramLinearFlow(t *testing.T) {
	c := newTestCompiler(t, Options{LLM: llm.NewMockClient("agent says hi")})
	s := &graph.Schema{
		GraphName: "linear",
		Nodes: []graph.Node{
			{ID: "s", Type: graph.NodeStart},
			{ID: "a", Type: graph.NodeAgent},
			{ID: "e", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "s", Target: "a"},
			{ID: "e2", Source: "a", Target: "e"},
		},
	}
	program, err := c.Compile(s)
	require.NoError(t, err)

	final, err := program.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "agent says hi", final[types.KeyFinalOutput])
	assert.False(t, final.HasErrors())
}

func TestProgramForkJoinDefaultMerge(t *testing.T) {
	c := newTestCompiler(t, Options{})
	s := &graph.Schema{
		GraphName: "parallel",
		Nodes: []graph.Node{
			{ID: "s", Type: graph.NodeStart},
			{ID: "fork", Type: graph.NodeParallelFork},
			{ID: "b1", Type: graph.NodeCustom, Data: graph.NodeData{FunctionBody: `{ a = 1 }`}},
			{ID: "b2", Type: graph.NodeCustom, Data: graph.NodeData{FunctionBody: `{ b = 2 }`}},
			{ID: "join", Type: graph.NodeParallelJoin},
			{ID: "e", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "s", Target: "fork"},
			{ID: "e2", Source: "fork", Target: "b1"},
			{ID: "e3", Source: "fork", Target: "b2"},
			{ID: "e4", Source: "b1", Target: "join"},
			{ID: "e5", Source: "b2", Target: "join"},
			{ID: "e6", Source: "join", Target: "e"},
		},
	}
	program, err := c.Compile(s)
	require.NoError(t, err)

	final, err := program.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "b": int64(2)}, final[types.KeyFinalOutput])

	results := final[types.KeyParallelResults].([]any)
	require.Len(t, results, 2)
	// Results land in edge declaration order.
	assert.Equal(t, map[string]any{"a": int64(1)}, results[0])
}

func TestProgramDecisionRouting(t *testing.T) {
	c := newTestCompiler(t, Options{})
	s := &graph.Schema{
		GraphName: "branching",
		Nodes: []graph.Node{
			{ID: "s", Type: graph.NodeStart},
			{ID: "prep", Type: graph.NodeCustom, Data: graph.NodeData{FunctionBody: `"done"`}},
			{ID: "d", Type: graph.NodeDecision, Data: graph.NodeData{
				Condition: "check success",
				Branches:  []string{"success", "failure"},
			}},
			{ID: "win", Type: graph.NodeCustom, Data: graph.NodeData{FunctionBody: `"took success branch"`}},
			{ID: "lose", Type: graph.NodeCustom, Data: graph.NodeData{FunctionBody: `"took failure branch"`}},
			{ID: "e", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "s", Target: "prep"},
			{ID: "e2", Source: "prep", Target: "d"},
			{ID: "e3", Source: "d", Target: "win", SourceHandle: "decision.success"},
			{ID: "e4", Source: "d", Target: "lose", SourceHandle: "decision.failure"},
			{ID: "e5", Source: "win", Target: "e"},
			{ID: "e6", Source: "lose", Target: "e"},
		},
	}
	program, err := c.Compile(s)
	require.NoError(t, err)

	final, err := program.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "took success branch", final[types.KeyFinalOutput])
}

func TestProgramLoopOverCollection(t *testing.T) {
	c := newTestCompiler(t, Options{})
	s := &graph.Schema{
		GraphName: "looping",
		Nodes: []graph.Node{
			{ID: "s", Type: graph.NodeStart, Data: graph.NodeData{
				InitialState: map[string]any{"items": []any{"x", "y", "z"}},
			}},
			{ID: "loop", Type: graph.NodeLoop, Data: graph.NodeData{
				CollectionKey: "items",
				IteratorKey:   "item",
			}},
			{ID: "body", Type: graph.NodeCustom, Data: graph.NodeData{FunctionBody: `state.item`}},
			{ID: "e", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "s", Target: "loop"},
			{ID: "e2", Source: "loop", Target: "body", SourceHandle: "loop-continue"},
			{ID: "e3", Source: "body", Target: "loop"},
			{ID: "e4", Source: "loop", Target: "e", SourceHandle: "loop-exit"},
		},
	}
	program, err := c.Compile(s)
	require.NoError(t, err)

	final, err := program.Run(context.Background(), "")
	require.NoError(t, err)
	// The body saw every item; the last one is the final output.
	assert.Equal(t, "z", final[types.KeyFinalOutput])
	scope := final.Scope(types.KeyLoopState, "loop")
	assert.Equal(t, true, scope["complete"])
}

func TestProgramRetryRecovers(t *testing.T) {
	registry := tools.NewRegistry(zaptest.NewLogger(t))
	var calls int32
	require.NoError(t, registry.Register(tools.Tool{
		Name: "flaky",
		Fn: func(context.Context, map[string]any) (any, error) {
			if atomic.AddInt32(&calls, 1) <= 2 {
				return nil, types.NewError(types.ErrInternalError, "transient")
			}
			return "finally", nil
		},
	}))
	c := newTestCompiler(t, Options{Tools: registry})

	s := &graph.Schema{
		GraphName: "retrying",
		Nodes: []graph.Node{
			{ID: "s", Type: graph.NodeStart},
			{ID: "work", Type: graph.NodeTool, Data: graph.NodeData{FunctionName: "flaky"}},
			{ID: "retry", Type: graph.NodeErrorRetry, Data: graph.NodeData{
				MaxRetries:     intPtr(3),
				InitialDelayMs: 1,
				Jitter:         boolPtr(false),
			}},
			{ID: "e", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "s", Target: "work"},
			{ID: "e2", Source: "work", Target: "retry"},
			{ID: "e3", Source: "retry", Target: "work", SourceHandle: "retry-should_retry"},
			{ID: "e4", Source: "retry", Target: "e", SourceHandle: "retry-continue"},
		},
	}
	program, err := c.Compile(s)
	require.NoError(t, err)

	final, err := program.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "finally", final[types.KeyFinalOutput])
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	// The transient failures stay on the record.
	assert.Len(t, final.Errors(), 2)
}

func TestProgramStepCapAborts(t *testing.T) {
	c := newTestCompiler(t, Options{MaxSteps: 10})
	s := &graph.Schema{
		GraphName: "cyclic",
		Nodes: []graph.Node{
			{ID: "a", Type: graph.NodeCustom},
			{ID: "b", Type: graph.NodeCustom},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "a"},
		},
	}
	program, err := c.Compile(s)
	require.NoError(t, err)

	_, err = program.Run(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, types.ErrExecutionAborted, types.GetErrorCode(err))
}

func TestProgramHumanPauseResume(t *testing.T) {
	coordinator := intervene.NewCoordinator(zaptest.NewLogger(t))
	c := newTestCompiler(t, Options{Interventions: coordinator})

	s := &graph.Schema{
		GraphName: "paused",
		Nodes: []graph.Node{
			{ID: "s", Type: graph.NodeStart},
			{ID: "p", Type: graph.NodeHumanPause, Data: graph.NodeData{
				PauseMessage: "approve?",
				AllowEdits:   boolPtr(true),
				TimeoutMs:    60000,
			}},
			{ID: "e", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "s", Target: "p"},
			{ID: "e2", Source: "p", Target: "e"},
		},
	}
	program, err := c.Compile(s)
	require.NoError(t, err)

	done := make(chan types.State, 1)
	go func() {
		final, err := program.Run(context.Background(), "draft")
		require.NoError(t, err)
		done <- final
	}()

	var req *intervene.Request
	require.Eventually(t, func() bool {
		pending := coordinator.Pending()
		if len(pending) == 0 {
			return false
		}
		req = pending[0]
		return true
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, coordinator.Resume(req.ID, map[string]any{
		"input":  "draft",
		"output": "approved",
	}, false))

	final := <-done
	assert.Equal(t, "continue", final[types.KeyHumanDecision])
	assert.Equal(t, "approved", final[types.KeyFinalOutput])
}

func TestProgramSubgraph(t *testing.T) {
	registry := subgraph.NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, registry.Register("inner", "v1", &graph.Schema{
		GraphName: "inner",
		Nodes: []graph.Node{
			{ID: "s", Type: graph.NodeStart},
			{ID: "c", Type: graph.NodeCustom, Data: graph.NodeData{FunctionBody: `"sub result"`}},
			{ID: "e", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "s", Target: "c"},
			{ID: "e2", Source: "c", Target: "e"},
		},
	}))
	c := newTestCompiler(t, Options{Subgraphs: registry})

	s := &graph.Schema{
		GraphName: "outer",
		Nodes: []graph.Node{
			{ID: "s", Type: graph.NodeStart},
			{ID: "sub", Type: graph.NodeSubgraph, Data: graph.NodeData{GraphID: "inner"}},
			{ID: "e", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "s", Target: "sub"},
			{ID: "e2", Source: "sub", Target: "e"},
		},
	}
	program, err := c.Compile(s)
	require.NoError(t, err)

	final, err := program.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "sub result", final[types.KeyFinalOutput])
}

func TestProgramUnknownSubgraphDegradesAtRun(t *testing.T) {
	registry := subgraph.NewRegistry(zaptest.NewLogger(t))
	c := newTestCompiler(t, Options{Subgraphs: registry})

	s := &graph.Schema{
		GraphName: "outer",
		Nodes: []graph.Node{
			{ID: "s", Type: graph.NodeStart},
			{ID: "sub", Type: graph.NodeSubgraph, Data: graph.NodeData{GraphID: "ghost"}},
		},
		Edges: []graph.Edge{{ID: "e1", Source: "s", Target: "sub"}},
	}

	// An unresolvable reference still compiles; the node itself reports the
	// failure when the program runs.
	program, err := c.Compile(s)
	require.NoError(t, err)

	final, err := program.Run(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, final.HasErrors())

	result, ok := final[types.KeyOutput].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, result["success"])
	assert.Contains(t, result["subgraph_execution_error"], "SUBGRAPH_FAILED")
}

func TestProgramSubgraphContextPassthrough(t *testing.T) {
	registry := subgraph.NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, registry.Register("inner", "v1", &graph.Schema{
		GraphName: "inner",
		Nodes: []graph.Node{
			{ID: "s", Type: graph.NodeStart},
			{ID: "c", Type: graph.NodeCustom, Data: graph.NodeData{FunctionBody: `state.context.topic`}},
			{ID: "e", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "s", Target: "c"},
			{ID: "e2", Source: "c", Target: "e"},
		},
	}))
	c := newTestCompiler(t, Options{Subgraphs: registry})

	program, err := c.Compile(&graph.Schema{
		GraphName: "outer",
		Nodes: []graph.Node{
			{ID: "s", Type: graph.NodeStart},
			{ID: "sub", Type: graph.NodeSubgraph, Data: graph.NodeData{GraphID: "inner"}},
			{ID: "e", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "s", Target: "sub"},
			{ID: "e2", Source: "sub", Target: "e"},
		},
	})
	require.NoError(t, err)

	state := types.NewState("")
	state[types.KeyContext] = map[string]any{"topic": "billing"}
	final, err := program.RunState(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "billing", final[types.KeyFinalOutput])
}

func TestProgramCancellationStopsRun(t *testing.T) {
	c := newTestCompiler(t, Options{})
	s := &graph.Schema{
		GraphName: "cyclic",
		Nodes: []graph.Node{
			{ID: "a", Type: graph.NodeCustom},
			{ID: "b", Type: graph.NodeCustom},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "a"},
		},
	}
	program, err := c.Compile(s)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = program.RunState(ctx, types.NewState(""))
	require.Error(t, err)
	assert.Equal(t, types.ErrExecutionAborted, types.GetErrorCode(err))
}

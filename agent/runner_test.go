package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/flowforge/flowforge/llm"
	"github.com/flowforge/flowforge/tools"
)

func TestDefaultStrategySingleShot(t *testing.T) {
	mock := llm.NewMockClient("the answer")
	r := NewRunner(mock, nil, nil, zaptest.NewLogger(t))

	out, err := r.Run(context.Background(), "question", Options{
		SystemPrompt: "be brief",
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", out.Output)
	require.NotEmpty(t, mock.Requests)
	assert.Equal(t, llm.RoleSystem, mock.Requests[0].Messages[0].Role)
}

func TestReactStrategyUsesToolThenAnswers(t *testing.T) {
	registry := tools.NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, registry.Register(tools.Tool{
		Name:        "double",
		Description: "double a number",
		Fn: func(_ context.Context, args map[string]any) (any, error) {
			n := args["n"].(float64)
			return n * 2, nil
		},
	}))
	executor := tools.NewExecutor(0, zaptest.NewLogger(t))

	mock := llm.NewMockClient(
		"Action: double\nAction Input: {\"n\": 21}",
		"Final Answer: 42",
	)
	r := NewRunner(mock, registry, executor, zaptest.NewLogger(t))

	out, err := r.Run(context.Background(), "double 21", Options{Strategy: StrategyReact})
	require.NoError(t, err)
	assert.Equal(t, "42", out.Output)

	// The observation was fed back to the model.
	second := mock.Requests[1]
	last := second.Messages[len(second.Messages)-1]
	assert.Contains(t, last.Content, "Observation:")
	assert.Contains(t, last.Content, "42")
}

func TestReactStrategyFallsBackWithoutAction(t *testing.T) {
	mock := llm.NewMockClient("plain reply with no action")
	r := NewRunner(mock, nil, nil, zaptest.NewLogger(t))

	out, err := r.Run(context.Background(), "hi", Options{Strategy: StrategyReact})
	require.NoError(t, err)
	assert.Equal(t, "plain reply with no action", out.Output)
}

func TestPlanAndExecuteRunsSteps(t *testing.T) {
	mock := llm.NewMockClient(
		"1. gather data\n2. compute result",
		"data gathered",
		"result computed",
	)
	r := NewRunner(mock, nil, nil, zaptest.NewLogger(t))

	out, err := r.Run(context.Background(), "task", Options{Strategy: StrategyPlanAndExecute})
	require.NoError(t, err)
	assert.Equal(t, "result computed", out.Output)

	// Plan request first, then one request per step.
	require.Len(t, mock.Requests, 3)
	assert.Contains(t, mock.Requests[0].Messages[len(mock.Requests[0].Messages)-1].Content,
		"Create a step-by-step plan to solve: task")
}

func TestParsePlanSteps(t *testing.T) {
	steps := parsePlanSteps("Here is the plan:\n1. first\n2) second\n- third\n\nnotes")
	assert.Equal(t, []string{"first", "second", "third"}, steps)
}

func TestParseAction(t *testing.T) {
	name, args, ok := parseAction("Thought: x\nAction: search_web\nAction Input: {\"query\": \"go\"}")
	require.True(t, ok)
	assert.Equal(t, "search_web", name)
	assert.Equal(t, map[string]any{"query": "go"}, args)

	// Non-JSON input degrades to a raw input argument.
	_, args, ok = parseAction("Action: calc\nAction Input: 1+1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"input": "1+1"}, args)
}

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/flowforge/flowforge/types"
)

func TestEvaluateBoolComparison(t *testing.T) {
	e := NewEvaluator(zaptest.NewLogger(t))

	vars := map[string]any{
		"state": map[string]any{"output": "done", "count": float64(3)},
	}

	ok, err := e.EvaluateBool(`state.count > 2`, vars)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvaluateBool(`state.output == "pending"`, vars)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateBoolTruthiness(t *testing.T) {
	e := NewEvaluator(zaptest.NewLogger(t))

	cases := []struct {
		expr string
		vars map[string]any
		want bool
	}{
		{`state.output`, map[string]any{"state": map[string]any{"output": ""}}, false},
		{`state.output`, map[string]any{"state": map[string]any{"output": "x"}}, true},
		{`state.items`, map[string]any{"state": map[string]any{"items": []any{}}}, false},
		{`state.items`, map[string]any{"state": map[string]any{"items": []any{1}}}, true},
		{`state.n`, map[string]any{"state": map[string]any{"n": float64(0)}}, false},
	}
	for _, tc := range cases {
		got, err := e.EvaluateBool(tc.expr, tc.vars)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestHasKeyFunction(t *testing.T) {
	e := NewEvaluator(zaptest.NewLogger(t))
	vars := map[string]any{
		"state": map[string]any{"memory": map[string]any{"notes": "x"}},
	}

	ok, err := e.EvaluateBool(`has_key(state.memory, "notes")`, vars)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvaluateBool(`has_key(state.memory, "missing")`, vars)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContainsFunction(t *testing.T) {
	e := NewEvaluator(zaptest.NewLogger(t))
	vars := map[string]any{
		"state": map[string]any{
			"output": "task failed badly",
			"tags":   []any{"a", "b"},
		},
	}

	ok, err := e.EvaluateBool(`contains(state.output, "failed")`, vars)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvaluateBool(`contains(state.tags, "b")`, vars)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvaluateBool(`contains(state.tags, "z")`, vars)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateReturnsNativeValues(t *testing.T) {
	e := NewEvaluator(zaptest.NewLogger(t))

	v, err := e.Evaluate(`1 + 2`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = e.Evaluate(`{ a = 1, b = "x" }`, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "b": "x"}, v)
}

func TestEvaluateParseErrorIsSandboxViolation(t *testing.T) {
	e := NewEvaluator(zaptest.NewLogger(t))

	_, err := e.Evaluate(`state.`, map[string]any{"state": map[string]any{}})
	require.Error(t, err)
	assert.Equal(t, types.ErrSandboxViolation, types.GetErrorCode(err))
}

func TestEvaluateUnknownVariableFails(t *testing.T) {
	e := NewEvaluator(zaptest.NewLogger(t))

	_, err := e.EvaluateBool(`ghost.output == "x"`, map[string]any{})
	require.Error(t, err)
}

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateScopeIsolatesNodes(t *testing.T) {
	s := NewState("hi")

	a := s.Scope(KeyLoopState, "loop-1")
	a["iterations"] = 3

	b := s.Scope(KeyLoopState, "loop-2")
	assert.Empty(t, b)

	// Same node id returns the same scope.
	again := s.Scope(KeyLoopState, "loop-1")
	assert.Equal(t, 3, again["iterations"])
}

func TestStateCloneIsDeep(t *testing.T) {
	s := NewState("in")
	s["nested"] = map[string]any{"list": []any{1, 2}}

	c := s.Clone()
	c["nested"].(map[string]any)["list"] = []any{9}
	c.AppendError("boom")

	require.Equal(t, []any{1, 2}, s["nested"].(map[string]any)["list"])
	assert.Empty(t, s.Errors())
	assert.Len(t, c.Errors(), 1)
}

func TestStateHasErrors(t *testing.T) {
	s := NewState("")
	assert.False(t, s.HasErrors())

	s[KeyError] = "bad"
	assert.True(t, s.HasErrors())

	delete(s, KeyError)
	s.AppendError(map[string]any{"node_id": "n1"})
	assert.True(t, s.HasErrors())
}

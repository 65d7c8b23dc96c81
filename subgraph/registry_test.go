package subgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/types"
)

func sampleSchema() *graph.Schema {
	return &graph.Schema{
		GraphName: "sub",
		Nodes: []graph.Node{
			{ID: "s", Type: graph.NodeStart, Data: graph.NodeData{
				InitialState: map[string]any{"query": "", "depth": 1},
			}},
			{ID: "e", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{{ID: "e1", Source: "s", Target: "e"}},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, r.Register("search", "v1", sampleSchema()))

	entry, err := r.Get("search", "v1")
	require.NoError(t, err)
	assert.Equal(t, "search", entry.ID)

	// v1 also became latest.
	latest, err := r.Get("search", "")
	require.NoError(t, err)
	assert.Equal(t, "sub", latest.Schema.GraphName)
}

func TestGetUnknownFails(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))

	_, err := r.Get("ghost", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestRegisterRejectsInvalidSchema(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	bad := &graph.Schema{GraphName: "empty"}

	err := r.Register("bad", "", bad)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidGraph, types.GetErrorCode(err))
}

func TestListIsSorted(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, r.Register("b", "v1", sampleSchema()))
	require.NoError(t, r.Register("a", "v1", sampleSchema()))

	entries := r.List()
	require.NotEmpty(t, entries)
	assert.Equal(t, "a", entries[0].ID)
}

func TestInferInterface(t *testing.T) {
	iface := InferInterface(sampleSchema())
	assert.ElementsMatch(t, []string{"context", "depth", "input", "query"}, iface.Inputs)
	assert.Equal(t, []string{"output", "final_output"}, iface.Outputs)
}

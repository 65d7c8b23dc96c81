package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/types"
)

func TestRenderEmitsParsableProgram(t *testing.T) {
	c := newTestCompiler(t, Options{})
	s := &graph.Schema{
		GraphName: "Demo Flow",
		Nodes: []graph.Node{
			{ID: "s", Type: graph.NodeStart},
			{ID: "e", Type: graph.NodeEnd},
		},
		Edges: []graph.Edge{{ID: "e1", Source: "s", Target: "e"}},
	}

	rendered, err := c.Render(s)
	require.NoError(t, err)
	assert.Equal(t, "generated/demo_flow.go", rendered.FilePath)
	assert.True(t, strings.HasPrefix(rendered.Code, "// Code generated"))
	assert.Contains(t, rendered.Code, "package main")
	assert.Contains(t, rendered.Code, "graph.Parse")
	// The schema rides inside the program.
	assert.Contains(t, rendered.Code, "Demo Flow")
}

func TestRenderRejectsInvalidSchema(t *testing.T) {
	c := newTestCompiler(t, Options{})

	_, err := c.Render(&graph.Schema{GraphName: "empty"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidGraph, types.GetErrorCode(err))
}

func TestRenderRejectsUnroutableEdges(t *testing.T) {
	c := newTestCompiler(t, Options{})
	s := &graph.Schema{
		GraphName: "bad",
		Nodes: []graph.Node{
			{ID: "d", Type: graph.NodeDecision},
			{ID: "a", Type: graph.NodeCustom},
			{ID: "b", Type: graph.NodeCustom},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "d", Target: "a", SourceHandle: "decision.x"},
			{ID: "e2", Source: "d", Target: "b", SourceHandle: "decision.x"},
		},
	}
	_, err := c.Render(s)
	require.Error(t, err)
	assert.Equal(t, types.ErrEdgeUnroutable, types.GetErrorCode(err))
}

func TestCheckSyntaxGate(t *testing.T) {
	require.NoError(t, checkSyntax("package main\n\nfunc main() {}\n"))

	err := checkSyntax("package main\n\nfunc main() {")
	require.Error(t, err)
	assert.Equal(t, types.ErrRenderInvalid, types.GetErrorCode(err))
}

func TestRenderFileName(t *testing.T) {
	assert.Equal(t, "my_graph.go", renderFileName("My Graph"))
	assert.Equal(t, "workflow.go", renderFileName(""))
	assert.Equal(t, "workflow.go", renderFileName("!!!"))
}

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/flowforge/flowforge/compiler"
)

func newCodegenHandler(t *testing.T) *CodegenHandler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return NewCodegenHandler(compiler.New(compiler.Options{Logger: logger}), logger)
}

func postGenerateCode(t *testing.T, h *CodegenHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate_code", strings.NewReader(body))
	h.HandleGenerateCode(rec, req)
	return rec
}

func TestGenerateCode_Success(t *testing.T) {
	h := newCodegenHandler(t)

	rec := postGenerateCode(t, h, `{
		"graphName": "demo",
		"nodes": [
			{"id": "s", "type": "startNode", "data": {"label": "start"}},
			{"id": "e", "type": "endNode", "data": {"label": "end"}}
		],
		"edges": [{"id": "s-e", "source": "s", "target": "e"}]
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success bool                 `json:"success"`
		Data    GenerateCodeResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "generated/demo.go", resp.Data.FilePath)
	assert.Contains(t, resp.Data.Code, "package main")
}

func TestGenerateCode_EmptyGraphRejected(t *testing.T) {
	h := newCodegenHandler(t)

	rec := postGenerateCode(t, h, `{"graphName": "empty", "nodes": [], "edges": []}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_GRAPH")
}

func TestGenerateCode_MalformedJSON(t *testing.T) {
	h := newCodegenHandler(t)

	rec := postGenerateCode(t, h, `{"nodes": "not a list"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateCode_EmptyBody(t *testing.T) {
	h := newCodegenHandler(t)

	rec := postGenerateCode(t, h, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "graph is required")
}

func TestGenerateCode_DanglingEdgeRejected(t *testing.T) {
	h := newCodegenHandler(t)

	rec := postGenerateCode(t, h, `{
		"graphName": "broken",
		"nodes": [{"id": "s", "type": "startNode", "data": {"label": "start"}}],
		"edges": [{"id": "s-x", "source": "s", "target": "ghost"}]
	}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

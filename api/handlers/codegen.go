package handlers

import (
	"bytes"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/flowforge/flowforge/compiler"
	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/types"
)

// Renderer turns a parsed graph into a standalone program.
type Renderer interface {
	Render(schema *graph.Schema) (*compiler.Rendered, error)
}

// CodegenHandler serves code generation requests.
type CodegenHandler struct {
	renderer Renderer
	logger   *zap.Logger
}

// NewCodegenHandler creates the handler.
func NewCodegenHandler(renderer Renderer, logger *zap.Logger) *CodegenHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodegenHandler{
		renderer: renderer,
		logger:   logger.With(zap.String("component", "codegen_handler")),
	}
}

// HandleGenerateCode handles POST /generate_code. The request body is the
// editor graph itself: {graphName, nodes, edges}. Graph validation failures
// return 422; a rendered program that fails the syntax gate returns 400.
func (h *CodegenHandler) HandleGenerateCode(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "read request body").
			WithCause(err), h.logger)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "graph is required"), h.logger)
		return
	}

	schema, err := graph.Parse(body)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "malformed graph JSON").
			WithCause(err), h.logger)
		return
	}

	rendered, err := h.renderer.Render(schema)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	h.logger.Info("code generated",
		zap.String("graph", schema.GraphName),
		zap.String("file", rendered.FilePath))
	WriteSuccess(w, GenerateCodeResponse{
		FilePath: rendered.FilePath,
		Code:     rendered.Code,
	})
}

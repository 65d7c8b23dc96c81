package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/subgraph"
	"github.com/flowforge/flowforge/types"
)

// SubgraphHandler exposes the subgraph registry.
type SubgraphHandler struct {
	registry *subgraph.Registry
	logger   *zap.Logger
}

// NewSubgraphHandler creates the handler.
func NewSubgraphHandler(registry *subgraph.Registry, logger *zap.Logger) *SubgraphHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubgraphHandler{
		registry: registry,
		logger:   logger.With(zap.String("component", "subgraph_handler")),
	}
}

// HandleRegister handles POST /subgraphs.
func (h *SubgraphHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterSubgraphRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.ID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "subgraph id is required"), h.logger)
		return
	}

	schema, err := graph.Parse(req.Graph)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "malformed graph JSON").
			WithCause(err), h.logger)
		return
	}
	if err := h.registry.Register(req.ID, req.Version, schema); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	iface := subgraph.InferInterface(schema)
	WriteJSON(w, http.StatusCreated, Response{
		Success: true,
		Data: SubgraphInfo{
			ID:      req.ID,
			Version: req.Version,
			Inputs:  iface.Inputs,
			Outputs: iface.Outputs,
		},
		Timestamp: time.Now(),
	})
}

// HandleList handles GET /subgraphs.
func (h *SubgraphHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	entries := h.registry.List()
	infos := make([]SubgraphInfo, 0, len(entries))
	for _, e := range entries {
		iface := subgraph.InferInterface(e.Schema)
		infos = append(infos, SubgraphInfo{
			ID:           e.ID,
			Version:      e.Version,
			Inputs:       iface.Inputs,
			Outputs:      iface.Outputs,
			RegisteredAt: e.RegisteredAt,
		})
	}
	WriteSuccess(w, infos)
}

// HandleGet handles GET /subgraphs/{id} with an optional version query
// parameter.
func (h *SubgraphHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := h.registry.Get(r.PathValue("id"), r.URL.Query().Get("version"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, entry)
}

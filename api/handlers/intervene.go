package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/flowforge/flowforge/intervene"
	"github.com/flowforge/flowforge/types"
)

// InterventionHandler exposes the human-pause coordinator.
type InterventionHandler struct {
	coordinator *intervene.Coordinator
	logger      *zap.Logger
}

// NewInterventionHandler creates the handler.
func NewInterventionHandler(coordinator *intervene.Coordinator, logger *zap.Logger) *InterventionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterventionHandler{
		coordinator: coordinator,
		logger:      logger.With(zap.String("component", "intervention_handler")),
	}
}

// HandlePending handles GET /interventions/pending.
func (h *InterventionHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.coordinator.Pending())
}

// HandleGet handles GET /interventions/{id}.
func (h *InterventionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	req, err := h.coordinator.Get(r.PathValue("id"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, req)
}

// HandleResume handles POST /interventions/{id}/resume. A resume that omits
// required fields leaves the intervention pending; failed resume
// preconditions return 400.
func (h *InterventionHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req ResumeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := h.coordinator.Resume(id, req.State, req.Skip); err != nil {
		var resumeErr *types.Error
		if errors.As(err, &resumeErr) {
			switch resumeErr.Code {
			case types.ErrMissingRequiredField, types.ErrInterventionTerminal:
				resumeErr.WithHTTPStatus(http.StatusBadRequest)
			}
		}
		WriteAnyError(w, err, h.logger)
		return
	}

	h.logger.Info("intervention resumed",
		zap.String("id", id),
		zap.Bool("skip", req.Skip))
	WriteSuccess(w, map[string]any{"id": id, "resumed": true})
}

package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/store"
	"github.com/flowforge/flowforge/types"
)

// ProjectHandler serves project and graph version persistence.
type ProjectHandler struct {
	store    *store.Store
	renderer Renderer
	logger   *zap.Logger
}

// NewProjectHandler creates the handler. renderer may be nil; saving with
// render requested then fails with 503.
func NewProjectHandler(st *store.Store, renderer Renderer, logger *zap.Logger) *ProjectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectHandler{
		store:    st,
		renderer: renderer,
		logger:   logger.With(zap.String("component", "project_handler")),
	}
}

// HandleCreate handles POST /projects.
func (h *ProjectHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	project, err := h.store.CreateProject(r.Context(), req.Name, req.Description)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	h.logger.Info("project created", zap.String("id", project.ID), zap.String("name", project.Name))
	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: project, Timestamp: time.Now()})
}

// HandleList handles GET /projects.
func (h *ProjectHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, projects)
}

// HandleGet handles GET /projects/{id}.
func (h *ProjectHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	project, err := h.store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, project)
}

// HandleUpdate handles PUT /projects/{id}.
func (h *ProjectHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateProjectRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Name == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "project name is required"), h.logger)
		return
	}
	project, err := h.store.UpdateProject(r.Context(), r.PathValue("id"), req.Name, req.Description)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, project)
}

// HandleDelete handles DELETE /projects/{id}.
func (h *ProjectHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteProject(r.Context(), r.PathValue("id")); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"deleted": true})
}

// HandleSaveGraph handles PUT /projects/{id}/graph. The draft for the tag is
// created or updated in place; published versions are never touched.
func (h *ProjectHandler) HandleSaveGraph(w http.ResponseWriter, r *http.Request) {
	var req SaveGraphRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if len(req.Graph) == 0 {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "graph is required"), h.logger)
		return
	}

	schema, err := graph.Parse(req.Graph)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "malformed graph JSON").
			WithCause(err), h.logger)
		return
	}
	if err := schema.Validate(); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	var renderedCode string
	if req.Render {
		if h.renderer == nil {
			WriteError(w, types.NewError(types.ErrServiceUnavailable, "renderer is not configured"), h.logger)
			return
		}
		rendered, err := h.renderer.Render(schema)
		if err != nil {
			WriteAnyError(w, err, h.logger)
			return
		}
		renderedCode = rendered.Code
	}

	version, err := h.store.SaveDraft(r.Context(), r.PathValue("id"), req.VersionTag, string(req.Graph), renderedCode)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, version)
}

// HandlePublish handles POST /projects/{id}/publish.
func (h *ProjectHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	version, err := h.store.PublishDraft(r.Context(), r.PathValue("id"), req.VersionTag)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	h.logger.Info("version published",
		zap.String("project_id", version.ProjectID),
		zap.String("version_id", version.ID),
		zap.String("tag", version.VersionTag))
	WriteSuccess(w, version)
}

// HandleListVersions handles GET /projects/{id}/versions.
func (h *ProjectHandler) HandleListVersions(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.GetProject(r.Context(), r.PathValue("id")); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	versions, err := h.store.ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, versions)
}

// HandleGetVersion handles GET /versions/{id}.
func (h *ProjectHandler) HandleGetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := h.store.GetVersion(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, version)
}

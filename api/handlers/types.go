package handlers

import (
	"encoding/json"
	"time"
)

// GenerateCodeResponse returns the rendered standalone program.
type GenerateCodeResponse struct {
	FilePath string `json:"file_path"`
	Code     string `json:"code"`
}

// ResumeRequest resolves a pending intervention.
type ResumeRequest struct {
	// State is the operator-edited state. Ignored when the pause node does
	// not allow edits.
	State map[string]any `json:"state,omitempty"`
	// Skip resolves the intervention without applying any edits.
	Skip bool `json:"skip,omitempty"`
}

// CreateProjectRequest creates a project.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateProjectRequest renames a project.
type UpdateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SaveGraphRequest upserts a project's draft graph.
type SaveGraphRequest struct {
	VersionTag string          `json:"version_tag,omitempty"`
	Graph      json.RawMessage `json:"graph"`
	// Render also generates and stores the standalone program alongside
	// the draft.
	Render bool `json:"render,omitempty"`
}

// PublishRequest freezes a draft into an immutable version.
type PublishRequest struct {
	VersionTag string `json:"version_tag,omitempty"`
}

// RegisterSubgraphRequest registers a reusable graph.
type RegisterSubgraphRequest struct {
	ID      string          `json:"id"`
	Version string          `json:"version,omitempty"`
	Graph   json.RawMessage `json:"graph"`
}

// SubgraphInfo describes one registered subgraph version.
type SubgraphInfo struct {
	ID           string    `json:"id"`
	Version      string    `json:"version"`
	Inputs       []string  `json:"inputs"`
	Outputs      []string  `json:"outputs"`
	RegisteredAt time.Time `json:"registered_at"`
}

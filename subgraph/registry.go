package subgraph

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/types"
)

// DefaultVersion is used when a subgraph node omits the version.
const DefaultVersion = "latest"

// Entry is one registered graph version.
type Entry struct {
	ID           string        `json:"id"`
	Version      string        `json:"version"`
	Schema       *graph.Schema `json:"schema"`
	RegisteredAt time.Time     `json:"registered_at"`
}

// Interface describes the state keys a graph consumes and produces.
type Interface struct {
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// Registry stores graphs by id and version. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	graphs map[string]map[string]*Entry
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		graphs: make(map[string]map[string]*Entry),
		logger: logger.With(zap.String("component", "subgraph")),
	}
}

// Register stores schema under id/version, replacing any previous entry.
// The entry also becomes the "latest" version.
func (r *Registry) Register(id, version string, schema *graph.Schema) error {
	if id == "" {
		return types.NewError(types.ErrInvalidRequest, "subgraph id is required")
	}
	if schema == nil {
		return types.NewError(types.ErrInvalidRequest, "subgraph schema is required")
	}
	if err := schema.Validate(); err != nil {
		return err
	}
	if version == "" {
		version = DefaultVersion
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.graphs[id]
	if !ok {
		versions = make(map[string]*Entry)
		r.graphs[id] = versions
	}
	entry := &Entry{ID: id, Version: version, Schema: schema, RegisteredAt: time.Now()}
	versions[version] = entry
	if version != DefaultVersion {
		latest := *entry
		latest.Version = DefaultVersion
		versions[DefaultVersion] = &latest
	}

	r.logger.Info("subgraph registered",
		zap.String("id", id),
		zap.String("version", version))
	return nil
}

// Get returns the entry for id/version. An empty version means latest.
func (r *Registry) Get(id, version string) (*Entry, error) {
	if version == "" {
		version = DefaultVersion
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.graphs[id][version]
	if !ok {
		return nil, types.NewError(types.ErrNotFound,
			fmt.Sprintf("subgraph %s@%s not found", id, version))
	}
	return entry, nil
}

// ResolveSubgraph returns the schema for id/version. It satisfies the
// compiler's resolver interface.
func (r *Registry) ResolveSubgraph(id, version string) (*graph.Schema, error) {
	entry, err := r.Get(id, version)
	if err != nil {
		return nil, err
	}
	return entry.Schema, nil
}

// List returns all entries sorted by id then version.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Entry
	for _, versions := range r.graphs {
		for _, entry := range versions {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// InferInterface derives the input and output keys of a graph: inputs come
// from the start node's initial state plus the standard input keys, outputs
// are the standard output keys.
func InferInterface(schema *graph.Schema) Interface {
	inputSet := map[string]struct{}{
		types.KeyInput:   {},
		types.KeyContext: {},
	}
	for _, n := range schema.Nodes {
		if n.Type.Normalize() != graph.NodeStart {
			continue
		}
		for key := range n.Data.InitialState {
			inputSet[key] = struct{}{}
		}
	}
	inputs := make([]string, 0, len(inputSet))
	for key := range inputSet {
		inputs = append(inputs, key)
	}
	sort.Strings(inputs)
	return Interface{
		Inputs:  inputs,
		Outputs: []string{types.KeyOutput, types.KeyFinalOutput},
	}
}

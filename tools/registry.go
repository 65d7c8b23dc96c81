package tools

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/flowforge/flowforge/types"
)

// DefaultModulePath is assumed when a tool node leaves the path unset.
const DefaultModulePath = "builtin"

// Func is the tool function signature. Arguments come from the run state and
// the node's static configuration.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Tool couples a callable with its description.
type Tool struct {
	Name        string `json:"name"`
	ModulePath  string `json:"module_path"`
	Description string `json:"description,omitempty"`
	Fn          Func   `json:"-"`
}

// Registry resolves tool references from graph nodes. Safe for concurrent
// use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]map[string]Tool // module path -> name -> tool
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]map[string]Tool),
		logger: logger.With(zap.String("component", "tools")),
	}
}

// Register adds a tool under its module path. Re-registering a name replaces
// the previous binding.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return types.NewError(types.ErrInvalidRequest, "tool name is required")
	}
	if tool.Fn == nil {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("tool %q has no function", tool.Name))
	}
	if tool.ModulePath == "" {
		tool.ModulePath = DefaultModulePath
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	mod, ok := r.tools[tool.ModulePath]
	if !ok {
		mod = make(map[string]Tool)
		r.tools[tool.ModulePath] = mod
	}
	mod[tool.Name] = tool
	r.logger.Info("tool registered",
		zap.String("module_path", tool.ModulePath),
		zap.String("name", tool.Name))
	return nil
}

// Resolve returns the tool bound to modulePath/name. When the reference does
// not resolve it returns a placeholder that fails at call time, so a graph
// with a stale binding still compiles.
func (r *Registry) Resolve(modulePath, name string) Tool {
	if modulePath == "" {
		modulePath = DefaultModulePath
	}
	r.mu.RLock()
	tool, ok := r.tools[modulePath][name]
	r.mu.RUnlock()
	if ok {
		return tool
	}

	r.logger.Warn("tool not found, using placeholder",
		zap.String("module_path", modulePath),
		zap.String("name", name))
	return Tool{
		Name:        name,
		ModulePath:  modulePath,
		Description: "unresolved tool placeholder",
		Fn: func(context.Context, map[string]any) (any, error) {
			return nil, types.NewError(types.ErrToolUnresolved,
				fmt.Sprintf("tool %s/%s is not registered", modulePath, name))
		},
	}
}

// Has reports whether modulePath/name resolves to a registered tool.
func (r *Registry) Has(modulePath, name string) bool {
	if modulePath == "" {
		modulePath = DefaultModulePath
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[modulePath][name]
	return ok
}

// List returns all registered tools grouped by module path.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Tool
	for _, mod := range r.tools {
		for _, tool := range mod {
			out = append(out, tool)
		}
	}
	return out
}

// Package flowforge provides a top-level convenience entry point for
// compiling and running visual workflow graphs with minimal boilerplate.
//
// Usage:
//
//	import "github.com/flowforge/flowforge"
//
//	rt, err := flowforge.New(flowforge.WithLogger(logger))
//	program, err := rt.Compile(schema)
//	final, err := program.Run(ctx, "hello")
//
// Generated standalone programs use this package as their runtime.
package flowforge

import (
	"github.com/flowforge/flowforge/compiler"
	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/intervene"
	"github.com/flowforge/flowforge/llm"
	"github.com/flowforge/flowforge/memory"
	"github.com/flowforge/flowforge/sandbox"
	"github.com/flowforge/flowforge/subgraph"
	"github.com/flowforge/flowforge/tools"
	"go.uber.org/zap"
)

type options struct {
	logger       *zap.Logger
	client       llm.Client
	memory       *memory.Manager
	toolWorkDir  string
	toolRate     float64
	maxSteps     int
	interveneOff bool
}

// Option configures the runtime created by [New].
type Option func(*options)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLLM sets the chat backend used by agent nodes.
func WithLLM(client llm.Client) Option {
	return func(o *options) { o.client = client }
}

// WithOpenAI creates an OpenAI chat backend. An empty baseURL uses the
// public API.
func WithOpenAI(apiKey, baseURL string) Option {
	return func(o *options) { o.client = llm.NewOpenAI(apiKey, baseURL, o.logger) }
}

// WithMemory sets the memory manager used by memory nodes.
func WithMemory(manager *memory.Manager) Option {
	return func(o *options) { o.memory = manager }
}

// WithToolWorkDir confines file tools to dir. File tools are disabled when
// unset.
func WithToolWorkDir(dir string) Option {
	return func(o *options) { o.toolWorkDir = dir }
}

// WithToolRateLimit caps tool invocations per second. Zero means unlimited.
func WithToolRateLimit(callsPerSecond float64) Option {
	return func(o *options) { o.toolRate = callsPerSecond }
}

// WithMaxSteps caps driver iterations per run.
func WithMaxSteps(n int) Option {
	return func(o *options) { o.maxSteps = n }
}

// WithoutInterventions disables the human-pause coordinator; pause nodes
// then route straight down their skip branch.
func WithoutInterventions() Option {
	return func(o *options) { o.interveneOff = true }
}

// Runtime bundles the compiler with the services its programs need.
type Runtime struct {
	compiler      *compiler.Compiler
	interventions *intervene.Coordinator
	subgraphs     *subgraph.Registry
	tools         *tools.Registry
	memory        *memory.Manager
	logger        *zap.Logger
}

// New assembles a runtime. All options are optional; the zero configuration
// compiles and runs graphs with in-process memory, built-in tools, and no
// chat backend.
func New(opts ...Option) (*Runtime, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	eval := sandbox.NewEvaluator(logger)

	registry := tools.NewRegistry(logger)
	if err := tools.RegisterDefaults(registry, eval, o.toolWorkDir); err != nil {
		return nil, err
	}
	executor := tools.NewExecutor(o.toolRate, logger)

	mem := o.memory
	if mem == nil {
		mem = memory.NewManager(nil, nil, eval, logger)
	}

	var coordinator *intervene.Coordinator
	if !o.interveneOff {
		coordinator = intervene.NewCoordinator(logger)
	}

	subgraphs := subgraph.NewRegistry(logger)

	comp := compiler.New(compiler.Options{
		LLM:           o.client,
		Tools:         registry,
		ToolExecutor:  executor,
		Memory:        mem,
		Interventions: coordinator,
		Subgraphs:     subgraphs,
		Evaluator:     eval,
		Logger:        logger,
		MaxSteps:      o.maxSteps,
	})

	return &Runtime{
		compiler:      comp,
		interventions: coordinator,
		subgraphs:     subgraphs,
		tools:         registry,
		memory:        mem,
		logger:        logger,
	}, nil
}

// Compile assembles a schema into an executable Program.
func (rt *Runtime) Compile(schema *graph.Schema) (*compiler.Program, error) {
	return rt.compiler.Compile(schema)
}

// CompileJSON parses raw graph JSON and compiles it.
func (rt *Runtime) CompileJSON(data []byte) (*compiler.Program, error) {
	schema, err := graph.Parse(data)
	if err != nil {
		return nil, err
	}
	return rt.compiler.Compile(schema)
}

// Render generates a standalone Go program for a schema.
func (rt *Runtime) Render(schema *graph.Schema) (*compiler.Rendered, error) {
	return rt.compiler.Render(schema)
}

// Interventions exposes the human-pause coordinator. Nil when interventions
// are disabled.
func (rt *Runtime) Interventions() *intervene.Coordinator {
	return rt.interventions
}

// Subgraphs exposes the subgraph registry for pre-registering reusable
// graphs.
func (rt *Runtime) Subgraphs() *subgraph.Registry {
	return rt.subgraphs
}

// Tools exposes the tool registry for registering custom tools.
func (rt *Runtime) Tools() *tools.Registry {
	return rt.tools
}

package compiler

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/flowforge/flowforge/agent"
	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/intervene"
	"github.com/flowforge/flowforge/llm"
	"github.com/flowforge/flowforge/memory"
	"github.com/flowforge/flowforge/sandbox"
	"github.com/flowforge/flowforge/tools"
	"github.com/flowforge/flowforge/types"
)

// SubgraphResolver resolves subgraph node references to schemas.
type SubgraphResolver interface {
	ResolveSubgraph(id, version string) (*graph.Schema, error)
}

// maxSubgraphDepth bounds recursive subgraph compilation.
const maxSubgraphDepth = 5

// Options wires the runtime services node functions depend on. Nil fields
// get safe defaults; nodes whose service is genuinely absent fail at run
// time, not compile time.
type Options struct {
	LLM           llm.Client
	Tools         *tools.Registry
	ToolExecutor  *tools.Executor
	Memory        *memory.Manager
	Interventions *intervene.Coordinator
	Subgraphs     SubgraphResolver
	Evaluator     *sandbox.Evaluator
	Logger        *zap.Logger

	// MaxSteps caps driver iterations per run as a cycle guard.
	MaxSteps int
}

// Compiler assembles Programs from schemas.
type Compiler struct {
	opts   Options
	eval   *sandbox.Evaluator
	agents *agent.Runner
	logger *zap.Logger
}

// New creates a compiler.
func New(opts Options) *Compiler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Evaluator == nil {
		opts.Evaluator = sandbox.NewEvaluator(logger)
	}
	if opts.ToolExecutor == nil {
		opts.ToolExecutor = tools.NewExecutor(0, logger)
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 1000
	}
	return &Compiler{
		opts:   opts,
		eval:   opts.Evaluator,
		agents: agent.NewRunner(opts.LLM, opts.Tools, opts.ToolExecutor, logger),
		logger: logger.With(zap.String("component", "compiler")),
	}
}

// Compile validates schema and assembles it into a Program.
func (c *Compiler) Compile(schema *graph.Schema) (*Program, error) {
	return c.compile(schema, 0)
}

func (c *Compiler) compile(schema *graph.Schema, depth int) (*Program, error) {
	if depth > maxSubgraphDepth {
		return nil, types.NewError(types.ErrSubgraphFailed,
			fmt.Sprintf("subgraph nesting exceeds %d levels", maxSubgraphDepth))
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	routes, err := BuildRoutes(schema)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]NodeFunc, len(schema.Nodes))
	for i := range schema.Nodes {
		n := &schema.Nodes[i]
		fn, err := c.compileNode(n, depth)
		if err != nil {
			return nil, err
		}
		nodes[n.ID] = fn
	}

	entry := schema.Entry()
	c.logger.Info("graph compiled",
		zap.String("graph", schema.GraphName),
		zap.String("entry", entry.ID),
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(schema.Edges)))

	return &Program{
		Name:     schema.GraphName,
		schema:   schema,
		entry:    entry.ID,
		nodes:    nodes,
		routes:   routes,
		maxSteps: c.opts.MaxSteps,
		logger:   c.logger.With(zap.String("graph", schema.GraphName)),
	}, nil
}

package compiler

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/types"
)

var (
	tracer = otel.Tracer("github.com/flowforge/flowforge/compiler")
	meter  = otel.Meter("github.com/flowforge/flowforge/compiler")

	runCounter, _ = meter.Int64Counter("flowforge.program.runs",
		metric.WithDescription("Completed program runs"))
)

// Program is a compiled, executable graph.
type Program struct {
	Name     string
	schema   *graph.Schema
	entry    string
	nodes    map[string]NodeFunc
	routes   map[string]*RoutePlan
	maxSteps int
	logger   *zap.Logger
}

// Entry returns the id of the entry node.
func (p *Program) Entry() string { return p.entry }

// Schema returns the graph the program was compiled from.
func (p *Program) Schema() *graph.Schema { return p.schema }

// Run executes the program over a fresh state seeded with input and returns
// the final state.
func (p *Program) Run(ctx context.Context, input any) (types.State, error) {
	return p.RunState(ctx, types.NewState(input))
}

// RunState executes the program over an existing state. Node failures are
// recorded in the state's error list and the flow continues; only context
// cancellation, an abort flag or the step cap end a run early.
func (p *Program) RunState(ctx context.Context, s types.State) (types.State, error) {
	ctx, span := tracer.Start(ctx, "program.run",
		trace.WithAttributes(attribute.String("graph.name", p.Name)))
	defer span.End()

	_, err := p.runFrom(ctx, s, p.entry, "")
	runCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("graph.name", p.Name),
		attribute.Bool("error", err != nil)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return s, err
}

// runFrom drives the flow starting at nodeID, stopping before stopAt (used
// by fork branches to halt at the join node). It returns the id of the node
// it stopped at, or "" when the flow ended.
func (p *Program) runFrom(ctx context.Context, s types.State, nodeID, stopAt string) (string, error) {
	for steps := 0; nodeID != ""; steps++ {
		if err := ctx.Err(); err != nil {
			return nodeID, types.NewError(types.ErrExecutionAborted, "run canceled").WithCause(err)
		}
		if steps >= p.maxSteps {
			return nodeID, types.NewError(types.ErrExecutionAborted,
				"step limit reached, aborting run").WithNodeID(nodeID)
		}
		if stopAt != "" && nodeID == stopAt {
			return nodeID, nil
		}
		if aborted, _ := s[types.KeyAbort].(bool); aborted {
			return nodeID, types.NewError(types.ErrExecutionAborted, "run aborted").WithNodeID(nodeID)
		}

		fn, ok := p.nodes[nodeID]
		if !ok {
			return nodeID, types.NewError(types.ErrNodeNotFound, "no compiled node").WithNodeID(nodeID)
		}

		p.logger.Debug("executing node", zap.String("node_id", nodeID))
		nodeCtx, nodeSpan := tracer.Start(ctx, "node.run",
			trace.WithAttributes(attribute.String("node.id", nodeID)))
		_, err := fn(nodeCtx, s)
		if err != nil {
			nodeSpan.RecordError(err)
		}
		nodeSpan.End()
		if err != nil {
			if types.GetErrorCode(err) == types.ErrExecutionAborted {
				return nodeID, err
			}
			p.recordError(s, nodeID, err)
		}

		plan := p.routes[nodeID]
		if plan.Kind == EdgeFork {
			next, err := p.runFork(ctx, s, plan)
			if err != nil {
				return nodeID, err
			}
			nodeID = next
			continue
		}
		nodeID = plan.Next(s)
	}
	return "", nil
}

// runFork executes the fork branches concurrently on cloned states, collects
// each branch's output in edge declaration order and resumes at the join
// node.
func (p *Program) runFork(ctx context.Context, s types.State, plan *RoutePlan) (string, error) {
	branchStates := make([]types.State, len(plan.ForkTargets))
	g, gctx := errgroup.WithContext(ctx)
	for i, head := range plan.ForkTargets {
		clone := s.Clone()
		branchStates[i] = clone
		g.Go(func() error {
			_, err := p.runFrom(gctx, clone, head, plan.JoinNode)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	results, _ := s[types.KeyParallelResults].([]any)
	for _, branch := range branchStates {
		results = append(results, branch[types.KeyOutput])
		// Branch errors surface on the shared state.
		for _, e := range branch.Errors() {
			s.AppendError(e)
		}
	}
	s[types.KeyParallelResults] = results

	p.logger.Debug("fork branches joined",
		zap.String("fork_node_id", plan.NodeID),
		zap.Int("branches", len(plan.ForkTargets)),
		zap.String("join_node_id", plan.JoinNode))
	return plan.JoinNode, nil
}

func (p *Program) recordError(s types.State, nodeID string, err error) {
	p.logger.Warn("node failed",
		zap.String("node_id", nodeID),
		zap.Error(err))
	s.AppendError(map[string]any{
		"node_id": nodeID,
		"error":   err.Error(),
		"code":    string(types.GetErrorCode(err)),
	})
	s[types.KeyError] = err.Error()
}

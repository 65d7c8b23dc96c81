package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge/flowforge/agent"
	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/intervene"
	"github.com/flowforge/flowforge/memory"
	"github.com/flowforge/flowforge/tools"
	"github.com/flowforge/flowforge/types"
)

// NodeFunc executes one node against the run state. The returned state is
// the same map, mutated; operational failures are returned as errors and
// recorded by the driver without halting the flow.
type NodeFunc func(ctx context.Context, s types.State) (types.State, error)

// Behavior defaults shared with the rendered programs.
const (
	DefaultMaxIterations  = 10
	DefaultMaxRetries     = 3
	DefaultInitialDelayMs = 1000
	DefaultMaxDelayMs     = 30000
	DefaultTimeoutMs      = 60000
)

func (c *Compiler) compileNode(n *graph.Node, depth int) (NodeFunc, error) {
	switch n.Type.Normalize() {
	case graph.NodeStart:
		return c.compileStart(n), nil
	case graph.NodeEnd:
		return c.compileEnd(n), nil
	case graph.NodeAgent:
		return c.compileAgent(n), nil
	case graph.NodeTool:
		return c.compileTool(n)
	case graph.NodeMemoryRead:
		return c.compileMemoryRead(n), nil
	case graph.NodeMemoryWrite:
		return c.compileMemoryWrite(n), nil
	case graph.NodeDecision:
		return c.compileDecision(n), nil
	case graph.NodeLoop:
		return c.compileLoop(n), nil
	case graph.NodeErrorRetry:
		return c.compileErrorRetry(n), nil
	case graph.NodeTimeoutGuard:
		return c.compileTimeoutGuard(n), nil
	case graph.NodeHumanPause:
		return c.compileHumanPause(n), nil
	case graph.NodeParallelFork:
		return c.compileFork(n), nil
	case graph.NodeParallelJoin:
		return c.compileJoin(n), nil
	case graph.NodeSubgraph:
		return c.compileSubgraph(n, depth)
	case graph.NodeCustom:
		return c.compileCustom(n), nil
	default:
		return nil, types.NewError(types.ErrInvalidGraph,
			fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type)).WithNodeID(n.ID)
	}
}

func (c *Compiler) compileStart(n *graph.Node) NodeFunc {
	initial := n.Data.InitialState
	return func(_ context.Context, s types.State) (types.State, error) {
		for k, v := range initial {
			if _, exists := s[k]; !exists {
				s[k] = v
			}
		}
		return s, nil
	}
}

func (c *Compiler) compileEnd(n *graph.Node) NodeFunc {
	format := n.Data.OutputFormat
	transform := n.Data.FinalTransform
	return func(_ context.Context, s types.State) (types.State, error) {
		var final any = s[types.KeyOutput]
		switch format {
		case "json":
			raw := s.GetString(types.KeyOutput)
			var parsed any
			if raw != "" && json.Unmarshal([]byte(raw), &parsed) == nil {
				final = parsed
			} else {
				final = map[string]any{"result": s[types.KeyOutput]}
			}
		case "markdown":
			final = fmt.Sprintf("```markdown\n%s\n```", stringify(s[types.KeyOutput]))
		}

		if transform != "" {
			transformed, err := c.eval.Evaluate(transform, map[string]any{"state": map[string]any(s)})
			if err != nil {
				return s, types.NewError(types.ErrSandboxViolation, "final transform failed").
					WithCause(err).WithNodeID(n.ID)
			}
			final = transformed
		}
		s[types.KeyFinalOutput] = final
		return s, nil
	}
}

func (c *Compiler) compileAgent(n *graph.Node) NodeFunc {
	opts := agent.Options{
		Strategy:     agent.Strategy(n.Data.AgentType),
		Model:        n.Data.Model,
		Temperature:  n.Data.Temperature,
		MaxTokens:    n.Data.MaxTokens,
		SystemPrompt: n.Data.SystemPrompt,
	}
	return func(ctx context.Context, s types.State) (types.State, error) {
		input := s.GetString(types.KeyOutput)
		if input == "" {
			input = stringify(s[types.KeyInput])
		}
		outcome, err := c.agents.Run(ctx, input, opts)
		if err != nil {
			return s, types.NewError(types.ErrUpstreamError, "agent execution failed").
				WithCause(err).WithNodeID(n.ID)
		}
		s[types.KeyOutput] = outcome.Output
		messages, _ := s[types.KeyAgentMessages].([]any)
		for _, m := range outcome.Messages {
			messages = append(messages, map[string]any{"role": m.Role, "content": m.Content})
		}
		s[types.KeyAgentMessages] = messages
		return s, nil
	}
}

func (c *Compiler) compileTool(n *graph.Node) (NodeFunc, error) {
	staticArgs := map[string]any{}
	if n.Data.ArgsSchema != "" {
		if err := json.Unmarshal([]byte(n.Data.ArgsSchema), &staticArgs); err != nil {
			return nil, types.NewError(types.ErrInvalidGraph,
				fmt.Sprintf("node %q has invalid argsSchema", n.ID)).
				WithCause(err).WithNodeID(n.ID)
		}
	}
	execOpts := tools.ExecOptions{
		Strategy: tools.ErrorStrategy(n.Data.ErrorHandling),
	}
	if n.Data.MaxRetries != nil {
		execOpts.MaxRetries = *n.Data.MaxRetries
	}
	if n.Data.Timeout > 0 {
		execOpts.Timeout = time.Duration(n.Data.Timeout) * time.Millisecond
	}
	modulePath := n.Data.ModulePath
	name := n.Data.FunctionName
	if name == "" {
		name = n.Data.Label
	}

	return func(ctx context.Context, s types.State) (types.State, error) {
		if c.opts.Tools == nil {
			return s, types.NewError(types.ErrServiceUnavailable, "no tool registry configured").
				WithNodeID(n.ID)
		}
		args := map[string]any{"input": s[types.KeyOutput]}
		if args["input"] == "" || args["input"] == nil {
			args["input"] = s[types.KeyInput]
		}
		for k, v := range staticArgs {
			args[k] = v
		}

		tool := c.opts.Tools.Resolve(modulePath, name)
		res := c.opts.ToolExecutor.Execute(ctx, tool, args, execOpts)

		results, _ := s[types.KeyToolResults].(map[string]any)
		if results == nil {
			results = map[string]any{}
			s[types.KeyToolResults] = results
		}
		results[n.ID] = map[string]any{
			"name":     res.Name,
			"output":   res.Output,
			"error":    res.Error,
			"attempts": res.Attempts,
		}

		if res.Error != "" {
			return s, types.NewError(types.ErrInternalError, res.Error).WithNodeID(n.ID)
		}
		s[types.KeyOutput] = res.Output
		return s, nil
	}, nil
}

func (c *Compiler) compileMemoryRead(n *graph.Node) NodeFunc {
	tier := memory.Tier(n.Data.MemoryType)
	namespace := n.Data.Namespace
	key := n.Data.Key
	filter := n.Data.Filter
	return func(ctx context.Context, s types.State) (types.State, error) {
		if c.opts.Memory == nil {
			return s, types.NewError(types.ErrServiceUnavailable, "no memory manager configured").
				WithNodeID(n.ID)
		}
		value, err := c.opts.Memory.Read(ctx, tier, namespace, key, filter)
		if err != nil {
			return s, err
		}
		mem, _ := s[types.KeyMemory].(map[string]any)
		if mem == nil {
			mem = map[string]any{}
			s[types.KeyMemory] = mem
		}
		if key != "" {
			mem[key] = value
		} else if all, ok := value.(map[string]any); ok {
			for k, v := range all {
				mem[k] = v
			}
		}
		return s, nil
	}
}

func (c *Compiler) compileMemoryWrite(n *graph.Node) NodeFunc {
	tier := memory.Tier(n.Data.MemoryType)
	namespace := n.Data.Namespace
	key := n.Data.Key
	overwrite := n.Data.OverwriteExisting != nil && *n.Data.OverwriteExisting
	ttl := time.Duration(n.Data.TTL) * time.Second
	return func(ctx context.Context, s types.State) (types.State, error) {
		if c.opts.Memory == nil {
			return s, types.NewError(types.ErrServiceUnavailable, "no memory manager configured").
				WithNodeID(n.ID)
		}
		if err := c.opts.Memory.Write(ctx, tier, namespace, key, s[types.KeyOutput], overwrite, ttl); err != nil {
			return s, err
		}
		return s, nil
	}
}

func (c *Compiler) compileDecision(n *graph.Node) NodeFunc {
	data := n.Data
	return func(_ context.Context, s types.State) (types.State, error) {
		var result string
		if data.EvaluationMode == "advanced" && len(data.Predicates) > 0 {
			result = c.evalPredicates(data, s, n.ID)
		} else {
			result = simpleDecision(data.Condition, s)
		}
		s[types.KeyDecision] = mapBranch(result, data.Branches, data.DefaultBranch)
		return s, nil
	}
}

// evalPredicates walks advanced-mode predicates in order; the first that
// holds names the branch. A predicate that fails to evaluate is skipped.
func (c *Compiler) evalPredicates(data graph.NodeData, s types.State, nodeID string) string {
	vars := map[string]any{"state": map[string]any(s)}
	for _, p := range data.Predicates {
		ok, err := c.eval.EvaluateBool(p.Expression, vars)
		if err != nil {
			c.logger.Warn("predicate evaluation failed",
				zap.String("node_id", nodeID),
				zap.String("predicate", p.Name),
				zap.Error(err))
			continue
		}
		if ok {
			return p.Name
		}
	}
	if data.DefaultBranch != "" {
		return data.DefaultBranch
	}
	return "default"
}

// simpleDecision applies keyword heuristics over the condition text against
// the current output and error signals.
func simpleDecision(condition string, s types.State) string {
	cond := strings.ToLower(condition)
	output := s.GetString(types.KeyOutput)
	hasErrors := s.HasErrors()

	switch {
	case strings.Contains(cond, "error") && hasErrors:
		return "error"
	case strings.Contains(cond, "success") && output != "":
		return "success"
	case (strings.Contains(cond, "empty") || strings.Contains(cond, "missing")) && output == "":
		return "missing"
	case strings.Contains(cond, "fail") && (output == "" || hasErrors):
		return "failure"
	default:
		return "default"
	}
}

func mapBranch(result string, branches []string, defaultBranch string) string {
	for _, b := range branches {
		if b == result {
			return result
		}
	}
	if defaultBranch != "" {
		return defaultBranch
	}
	if len(branches) > 0 {
		return branches[0]
	}
	return "default"
}

func (c *Compiler) compileLoop(n *graph.Node) NodeFunc {
	data := n.Data
	maxIterations := DefaultMaxIterations
	if data.MaxIterations != nil && *data.MaxIterations > 0 {
		maxIterations = *data.MaxIterations
	}
	iteratorKey := data.IteratorKey
	if iteratorKey == "" {
		iteratorKey = "item"
	}
	return func(_ context.Context, s types.State) (types.State, error) {
		scope := s.Scope(types.KeyLoopState, n.ID)
		iterations := asInt(scope["iterations"])

		// The iteration cap always wins, after exactly maxIterations passes.
		if iterations >= maxIterations {
			scope["complete"] = true
			return s, nil
		}
		scope["iterations"] = iterations + 1

		if data.CollectionKey != "" {
			index := asInt(scope["index"])
			collection, _ := s[data.CollectionKey].([]any)
			if index >= len(collection) {
				scope["complete"] = true
				return s, nil
			}
			s[iteratorKey] = collection[index]
			scope["index"] = index + 1
			scope["complete"] = false
			return s, nil
		}

		if data.Condition != "" {
			ok, err := c.eval.EvaluateBool(data.Condition, map[string]any{"state": map[string]any(s)})
			if err != nil {
				c.logger.Warn("loop condition failed, exiting loop",
					zap.String("node_id", n.ID), zap.Error(err))
				scope["complete"] = true
				return s, nil
			}
			scope["complete"] = !ok
			return s, nil
		}

		scope["complete"] = false
		return s, nil
	}
}

func (c *Compiler) compileErrorRetry(n *graph.Node) NodeFunc {
	data := n.Data
	maxRetries := DefaultMaxRetries
	if data.MaxRetries != nil && *data.MaxRetries > 0 {
		maxRetries = *data.MaxRetries
	}
	initialDelay := DefaultInitialDelayMs
	if data.InitialDelayMs > 0 {
		initialDelay = data.InitialDelayMs
	}
	maxDelay := DefaultMaxDelayMs
	if data.MaxDelayMs > 0 {
		maxDelay = data.MaxDelayMs
	}
	jitter := data.Jitter == nil || *data.Jitter

	return func(_ context.Context, s types.State) (types.State, error) {
		scope := s.Scope(types.KeyRetryState, n.ID)
		attempts := asInt(scope["attempts"])

		errCount := len(s.Errors())
		seen := asInt(scope["errors_seen"])
		_, hasErrorKey := s[types.KeyError]
		failed := hasErrorKey || errCount > seen
		scope["errors_seen"] = errCount

		if !failed || attempts >= maxRetries {
			scope["should_retry"] = false
			return s, nil
		}

		attempts++
		scope["attempts"] = attempts
		scope["should_retry"] = true
		scope["last_attempt_time"] = time.Now().UnixMilli()
		delete(s, types.KeyError)

		// The delay is reported for the caller to honor, never slept here.
		delay := backoffDelay(data.BackoffType, attempts, initialDelay, maxDelay, jitter)
		scope["retry_delay_ms"] = int(delay / time.Millisecond)
		return s, nil
	}
}

// backoffDelay computes the attempt delay in the configured backoff shape,
// capped at maxDelayMs, with an optional uniform 0.8-1.2 jitter.
func backoffDelay(backoffType string, attempt, initialDelayMs, maxDelayMs int, jitter bool) time.Duration {
	var ms float64
	switch backoffType {
	case "constant":
		ms = float64(initialDelayMs)
	case "linear":
		ms = float64(initialDelayMs * attempt)
	default: // exponential
		ms = float64(initialDelayMs) * float64(int(1)<<uint(attempt-1))
	}
	if ms > float64(maxDelayMs) {
		ms = float64(maxDelayMs)
	}
	if jitter {
		ms *= 0.8 + 0.4*rand.Float64()
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Compiler) compileTimeoutGuard(n *graph.Node) NodeFunc {
	data := n.Data
	timeout := time.Duration(DefaultTimeoutMs) * time.Millisecond
	if data.TimeoutMs > 0 {
		timeout = time.Duration(data.TimeoutMs) * time.Millisecond
	}
	heartbeat := time.Duration(data.HeartbeatIntervalMs) * time.Millisecond

	return func(_ context.Context, s types.State) (types.State, error) {
		scope := s.Scope(types.KeyTimeoutState, n.ID)
		now := time.Now()

		start, ok := scope["start_time"].(time.Time)
		if !ok {
			start = now
			scope["start_time"] = start
		}
		if heartbeat > 0 {
			if last, ok := scope["last_heartbeat"].(time.Time); ok && now.Sub(last) <= 2*heartbeat {
				// A live heartbeat grants half the budget back.
				start = now.Add(-timeout / 2)
				scope["start_time"] = start
			}
		}
		scope["last_heartbeat"] = now

		if now.Sub(start) <= timeout {
			scope["timed_out"] = false
			return s, nil
		}

		scope["timed_out"] = true
		switch data.OnTimeout {
		case "default":
			s[types.KeyOutput] = data.DefaultResult
			return s, nil
		case "abort":
			s[types.KeyAbort] = true
			return s, types.NewError(types.ErrExecutionAborted,
				fmt.Sprintf("operation exceeded %s", timeout)).WithNodeID(n.ID)
		default: // error
			return s, types.NewError(types.ErrTimeout,
				fmt.Sprintf("operation exceeded %s", timeout)).WithNodeID(n.ID)
		}
	}
}

func (c *Compiler) compileHumanPause(n *graph.Node) NodeFunc {
	data := n.Data
	timeout := time.Duration(data.TimeoutMs) * time.Millisecond
	allowEdits := data.AllowEdits != nil && *data.AllowEdits
	return func(ctx context.Context, s types.State) (types.State, error) {
		if c.opts.Interventions == nil {
			s[types.KeyHumanDecision] = "skip"
			return s, nil
		}
		res, err := c.opts.Interventions.Suspend(ctx, intervene.SuspendOptions{
			NodeID:         n.ID,
			Message:        data.PauseMessage,
			State:          s.Clone(),
			RequiredFields: data.RequiredFields,
			AllowEdits:     allowEdits,
			Timeout:        timeout,
		})
		if err != nil {
			s[types.KeyHumanDecision] = "skip"
			return s, err
		}
		if res.Skipped {
			s[types.KeyHumanDecision] = "skip"
			return s, nil
		}
		s.Merge(res.State)
		s[types.KeyHumanDecision] = "continue"
		return s, nil
	}
}

func (c *Compiler) compileFork(n *graph.Node) NodeFunc {
	return func(_ context.Context, s types.State) (types.State, error) {
		s["parallel_context"] = map[string]any{"fork_node_id": n.ID}
		return s, nil
	}
}

func (c *Compiler) compileJoin(n *graph.Node) NodeFunc {
	strategy := n.Data.MergeStrategy
	merger := n.Data.CustomMerger
	return func(_ context.Context, s types.State) (types.State, error) {
		results, _ := s[types.KeyParallelResults].([]any)
		if len(results) == 0 {
			c.logger.Warn("join node found no parallel results",
				zap.String("node_id", n.ID))
			return s, nil
		}
		s[types.KeyOutput] = c.mergeResults(strategy, merger, results, n.ID)
		return s, nil
	}
}

func (c *Compiler) mergeResults(strategy, merger string, results []any, nodeID string) any {
	switch strategy {
	case "concat":
		if lists, ok := allLists(results); ok {
			var flat []any
			for _, l := range lists {
				flat = append(flat, l...)
			}
			return flat
		}
		parts := make([]string, len(results))
		for i, r := range results {
			parts[i] = stringify(r)
		}
		return strings.Join(parts, "\n")
	case "custom":
		if merger != "" {
			merged, err := c.eval.Evaluate(merger, map[string]any{"results": results})
			if err == nil {
				return merged
			}
			c.logger.Warn("custom merger failed, passing results through",
				zap.String("node_id", nodeID), zap.Error(err))
		}
		return results
	default:
		if maps, ok := allMaps(results); ok {
			merged := map[string]any{}
			for _, m := range maps {
				for k, v := range m {
					merged[k] = v
				}
			}
			return merged
		}
		return results
	}
}

func allLists(results []any) ([][]any, bool) {
	lists := make([][]any, len(results))
	for i, r := range results {
		l, ok := r.([]any)
		if !ok {
			return nil, false
		}
		lists[i] = l
	}
	return lists, true
}

func allMaps(results []any) ([]map[string]any, bool) {
	maps := make([]map[string]any, len(results))
	for i, r := range results {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, false
		}
		maps[i] = m
	}
	return maps, true
}

// compileSubgraph never fails the outer compile: an unresolvable or broken
// subgraph becomes a placeholder node that reports the failure when run,
// like an unresolved tool import.
func (c *Compiler) compileSubgraph(n *graph.Node, depth int) (NodeFunc, error) {
	sub, err := c.resolveSubgraphProgram(n, depth)
	if err != nil {
		c.logger.Warn("subgraph unavailable, compiling failure placeholder",
			zap.String("node_id", n.ID),
			zap.String("graph_id", n.Data.GraphID),
			zap.Error(err))
		return c.subgraphFailure(n, err), nil
	}

	inputMapping := n.Data.InputMapping
	outputMapping := n.Data.OutputMapping
	return func(ctx context.Context, s types.State) (types.State, error) {
		subState := types.NewState(s[types.KeyInput])
		if len(inputMapping) == 0 {
			if parentCtx, ok := s[types.KeyContext]; ok {
				subState[types.KeyContext] = parentCtx
			}
		}
		for subKey, parentKey := range inputMapping {
			subState[subKey] = s[parentKey]
		}
		final, err := sub.RunState(ctx, subState)
		if err != nil {
			runErr := types.NewError(types.ErrSubgraphFailed,
				fmt.Sprintf("subgraph %q failed", n.Data.GraphID)).
				WithCause(err).WithNodeID(n.ID)
			s[types.KeyOutput] = subgraphErrorResult(runErr)
			return s, runErr
		}
		if len(outputMapping) == 0 {
			s[types.KeyOutput] = final[types.KeyFinalOutput]
		}
		for subKey, parentKey := range outputMapping {
			s[parentKey] = final[subKey]
		}
		return s, nil
	}, nil
}

func (c *Compiler) resolveSubgraphProgram(n *graph.Node, depth int) (*Program, error) {
	if c.opts.Subgraphs == nil {
		return nil, types.NewError(types.ErrSubgraphFailed,
			fmt.Sprintf("node %q references a subgraph but no registry is configured", n.ID)).
			WithNodeID(n.ID)
	}
	subSchema, err := c.opts.Subgraphs.ResolveSubgraph(n.Data.GraphID, n.Data.Version)
	if err != nil {
		return nil, types.NewError(types.ErrSubgraphFailed,
			fmt.Sprintf("resolve subgraph %q", n.Data.GraphID)).
			WithCause(err).WithNodeID(n.ID)
	}
	sub, err := c.compile(subSchema, depth+1)
	if err != nil {
		return nil, types.NewError(types.ErrSubgraphFailed,
			fmt.Sprintf("compile subgraph %q", n.Data.GraphID)).
			WithCause(err).WithNodeID(n.ID)
	}
	return sub, nil
}

func (c *Compiler) subgraphFailure(n *graph.Node, reason error) NodeFunc {
	return func(_ context.Context, s types.State) (types.State, error) {
		failure := types.NewError(types.ErrSubgraphFailed,
			fmt.Sprintf("subgraph %q unavailable", n.Data.GraphID)).
			WithCause(reason).WithNodeID(n.ID)
		s[types.KeyOutput] = subgraphErrorResult(failure)
		return s, failure
	}
}

func subgraphErrorResult(err error) map[string]any {
	return map[string]any{
		"success":                  false,
		"subgraph_execution_error": err.Error(),
	}
}

func (c *Compiler) compileCustom(n *graph.Node) NodeFunc {
	body := n.Data.FunctionBody
	return func(_ context.Context, s types.State) (types.State, error) {
		if body == "" {
			return s, nil
		}
		result, err := c.eval.Evaluate(body, map[string]any{"state": map[string]any(s)})
		if err != nil {
			return s, types.NewError(types.ErrSandboxViolation, "custom node failed").
				WithCause(err).WithNodeID(n.ID)
		}
		s[types.KeyOutput] = result
		return s, nil
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}


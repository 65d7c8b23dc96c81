package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/flowforge/flowforge/llm"
	"github.com/flowforge/flowforge/tools"
	"github.com/flowforge/flowforge/types"
)

// Strategy selects how an agent node drives the model.
type Strategy string

const (
	StrategyDefault        Strategy = ""
	StrategyReact          Strategy = "react"
	StrategyPlanAndExecute Strategy = "planAndExecute"
)

const (
	maxReactSteps  = 5
	maxPlanSteps   = 8
	inputTokensCap = 6000
)

// Options configures one agent invocation.
type Options struct {
	Strategy     Strategy
	Model        string
	Temperature  *float64
	MaxTokens    int
	SystemPrompt string
}

// Outcome is the result of an agent invocation.
type Outcome struct {
	Output   string        `json:"output"`
	Messages []llm.Message `json:"messages"`
}

// Runner executes agent strategies against a Client, using the tool registry
// for ReAct actions.
type Runner struct {
	client   llm.Client
	registry *tools.Registry
	executor *tools.Executor
	logger   *zap.Logger
}

// NewRunner creates a runner. registry and executor may be nil when ReAct is
// not used.
func NewRunner(client llm.Client, registry *tools.Registry, executor *tools.Executor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		client:   client,
		registry: registry,
		executor: executor,
		logger:   logger.With(zap.String("component", "agent")),
	}
}

// Run executes one agent invocation over input.
func (r *Runner) Run(ctx context.Context, input string, opts Options) (*Outcome, error) {
	if r.client == nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "no llm client configured")
	}
	model := opts.Model
	if model == "" {
		model = llm.DefaultModel
	}
	input = llm.TruncateToTokens(model, input, inputTokensCap)

	switch opts.Strategy {
	case StrategyReact:
		return r.runReact(ctx, input, model, opts)
	case StrategyPlanAndExecute:
		return r.runPlanAndExecute(ctx, input, model, opts)
	default:
		return r.runDefault(ctx, input, model, opts)
	}
}

func (r *Runner) complete(ctx context.Context, model string, opts Options, messages []llm.Message) (string, error) {
	resp, err := r.client.Complete(ctx, llm.Request{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (r *Runner) runDefault(ctx context.Context, input, model string, opts Options) (*Outcome, error) {
	messages := []llm.Message{}
	if opts.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: opts.SystemPrompt})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input})

	content, err := r.complete(ctx, model, opts, messages)
	if err != nil {
		return nil, err
	}
	messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: content})
	return &Outcome{Output: content, Messages: messages}, nil
}

const reactSystemPrompt = `You solve tasks step by step using tools.
Available tools:
%s
Respond with either:
  Action: <tool name>
  Action Input: <JSON arguments>
or, when done:
  Final Answer: <answer>`

func (r *Runner) runReact(ctx context.Context, input, model string, opts Options) (*Outcome, error) {
	var toolLines []string
	if r.registry != nil {
		for _, tool := range r.registry.List() {
			toolLines = append(toolLines, fmt.Sprintf("- %s: %s", tool.Name, tool.Description))
		}
	}
	system := fmt.Sprintf(reactSystemPrompt, strings.Join(toolLines, "\n"))
	if opts.SystemPrompt != "" {
		system = opts.SystemPrompt + "\n\n" + system
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: input},
	}

	for step := 0; step < maxReactSteps; step++ {
		content, err := r.complete(ctx, model, opts, messages)
		if err != nil {
			return nil, err
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: content})

		if answer, ok := parseFinalAnswer(content); ok {
			return &Outcome{Output: answer, Messages: messages}, nil
		}

		name, args, ok := parseAction(content)
		if !ok {
			// No action and no final answer: treat the whole reply as the
			// answer.
			return &Outcome{Output: content, Messages: messages}, nil
		}

		observation := r.observe(ctx, name, args)
		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: "Observation: " + observation,
		})
	}

	last := messages[len(messages)-1].Content
	r.logger.Warn("react loop hit step limit", zap.Int("steps", maxReactSteps))
	return &Outcome{Output: last, Messages: messages}, nil
}

func (r *Runner) observe(ctx context.Context, name string, args map[string]any) string {
	if r.registry == nil || r.executor == nil {
		return "no tools available"
	}
	tool := r.registry.Resolve("", name)
	res := r.executor.Execute(ctx, tool, args, tools.ExecOptions{Strategy: tools.StrategyFail})
	if res.Error != "" {
		return "error: " + res.Error
	}
	encoded, err := json.Marshal(res.Output)
	if err != nil {
		return fmt.Sprintf("%v", res.Output)
	}
	return string(encoded)
}

func (r *Runner) runPlanAndExecute(ctx context.Context, input, model string, opts Options) (*Outcome, error) {
	planPrompt := fmt.Sprintf("Create a step-by-step plan to solve: %s", input)
	messages := []llm.Message{}
	if opts.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: opts.SystemPrompt})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: planPrompt})

	plan, err := r.complete(ctx, model, opts, messages)
	if err != nil {
		return nil, err
	}
	messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: plan})

	steps := parsePlanSteps(plan)
	if len(steps) > maxPlanSteps {
		steps = steps[:maxPlanSteps]
	}

	var results []string
	var lastOut string
	for i, step := range steps {
		prompt := fmt.Sprintf("Execute step %d of the plan: %s\n\nOriginal task: %s", i+1, step, input)
		if len(results) > 0 {
			prompt += "\n\nResults so far:\n" + strings.Join(results, "\n")
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})
		out, err := r.complete(ctx, model, opts, messages)
		if err != nil {
			return nil, err
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: out})
		lastOut = out
		results = append(results, fmt.Sprintf("Step %d: %s", i+1, out))
	}

	// The outcome is the final step's raw output; the numbered entries only
	// feed the next step's prompt.
	output := plan
	if len(results) > 0 {
		output = lastOut
	}
	return &Outcome{Output: output, Messages: messages}, nil
}

func parseFinalAnswer(content string) (string, bool) {
	idx := strings.Index(content, "Final Answer:")
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(content[idx+len("Final Answer:"):]), true
}

func parseAction(content string) (string, map[string]any, bool) {
	var name string
	var argsRaw string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(trimmed, "Action:"); ok {
			name = strings.TrimSpace(after)
		} else if after, ok := strings.CutPrefix(trimmed, "Action Input:"); ok {
			argsRaw = strings.TrimSpace(after)
		}
	}
	if name == "" {
		return "", nil, false
	}
	args := map[string]any{}
	if argsRaw != "" {
		if err := json.Unmarshal([]byte(argsRaw), &args); err != nil {
			args = map[string]any{"input": argsRaw}
		}
	}
	return name, args, true
}

func parsePlanSteps(plan string) []string {
	var steps []string
	for _, line := range strings.Split(plan, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		// Lines like "1. do x", "2) do y", "- do z".
		cut := strings.TrimLeft(trimmed, "0123456789")
		if cut != trimmed {
			cut = strings.TrimLeft(cut, ".) ")
			steps = append(steps, cut)
		} else if after, ok := strings.CutPrefix(trimmed, "- "); ok {
			steps = append(steps, after)
		}
	}
	return steps
}

package tools

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/flowforge/flowforge/types"
)

// ErrorStrategy controls what the executor does when a tool call fails.
type ErrorStrategy string

const (
	StrategyFail   ErrorStrategy = "fail"
	StrategyIgnore ErrorStrategy = "ignore"
	StrategyRetry  ErrorStrategy = "retry"
)

const (
	defaultMaxRetries  = 3
	defaultCallTimeout = 30 * time.Second
	defaultRetryBase   = time.Second
)

// ExecOptions configures a single tool invocation.
type ExecOptions struct {
	Strategy   ErrorStrategy
	MaxRetries int           // retry strategy only
	Timeout    time.Duration // per attempt
}

// Result is the outcome of one tool invocation.
type Result struct {
	Name     string        `json:"name"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Ignored  bool          `json:"ignored,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// Call pairs a tool with its arguments for batch execution.
type Call struct {
	Tool Tool
	Args map[string]any
	Opts ExecOptions
}

// Executor runs tools with error strategies, per-attempt timeouts, a global
// rate limit and bounded batch concurrency.
type Executor struct {
	limiter *rate.Limiter
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error
}

// NewExecutor creates an executor. callsPerSecond <= 0 disables rate
// limiting.
func NewExecutor(callsPerSecond float64, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if callsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(callsPerSecond), int(callsPerSecond)+1)
	}
	return &Executor{
		limiter: limiter,
		logger:  logger.With(zap.String("component", "tools.executor")),
		sleep:   sleepCtx,
	}
}

// Execute runs one tool call, applying its error strategy.
func (e *Executor) Execute(ctx context.Context, tool Tool, args map[string]any, opts ExecOptions) Result {
	start := time.Now()

	if opts.Timeout <= 0 {
		opts.Timeout = defaultCallTimeout
	}
	maxAttempts := 1
	if opts.Strategy == StrategyRetry {
		maxAttempts = opts.MaxRetries
		if maxAttempts <= 0 {
			maxAttempts = defaultMaxRetries
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, retryDelay(tool.Name, attempt-1)); err != nil {
				lastErr = err
				break
			}
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}

		output, err := e.attempt(ctx, tool, args, opts.Timeout)
		if err == nil {
			return Result{
				Name:     tool.Name,
				Output:   output,
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}
		lastErr = err
		e.logger.Warn("tool call failed",
			zap.String("name", tool.Name),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	res := Result{
		Name:     tool.Name,
		Error:    lastErr.Error(),
		Attempts: maxAttempts,
		Duration: time.Since(start),
	}
	if opts.Strategy == StrategyIgnore {
		res.Ignored = true
		res.Output = fmt.Sprintf("Tool execution error (ignored): %v", lastErr)
		res.Error = ""
	}
	return res
}

func (e *Executor) attempt(ctx context.Context, tool Tool, args map[string]any, timeout time.Duration) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := tool.Fn(attemptCtx, args)
		done <- outcome{value, err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-attemptCtx.Done():
		return nil, types.NewError(types.ErrTimeout,
			fmt.Sprintf("tool %s exceeded %s", tool.Name, timeout)).WithRetryable(true)
	}
}

// ExecuteBatch runs calls with at most concurrency in flight, preserving
// input order in the results. Failures surface per-result; the batch itself
// never errors.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []Call, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]Result, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.Execute(gctx, call.Tool, call.Args, call.Opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// retryDelay grows exponentially with a deterministic jitter factor derived
// from the tool name, so repeated runs of the same graph back off the same
// way.
func retryDelay(name string, attempt int) time.Duration {
	delay := defaultRetryBase * time.Duration(1<<uint(attempt-1))
	h := fnv.New32a()
	h.Write([]byte(name))
	factor := 0.5 + 0.5*float64(h.Sum32()%100)/100
	return time.Duration(float64(delay) * factor)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

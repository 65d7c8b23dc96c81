package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flowforge/flowforge/sandbox"
	"github.com/flowforge/flowforge/types"
)

// RegisterDefaults installs the built-in tool set under the default module
// path. File tools are confined to workDir; an empty workDir disables them.
func RegisterDefaults(r *Registry, eval *sandbox.Evaluator, workDir string) error {
	builtins := []Tool{
		{
			Name:        "search_web",
			Description: "Search the web for a query (stub backend)",
			Fn:          searchWeb,
		},
		{
			Name:        "calculate",
			Description: "Evaluate an arithmetic expression",
			Fn:          calculateWith(eval),
		},
		{
			Name:        "get_current_weather",
			Description: "Report current weather for a location (stub backend)",
			Fn:          currentWeather,
		},
		{
			Name:        "get_current_datetime",
			Description: "Return the current date and time",
			Fn: func(context.Context, map[string]any) (any, error) {
				return time.Now().Format(time.RFC3339), nil
			},
		},
		{
			Name:        "json_parser",
			Description: "Parse a JSON string into structured data",
			Fn:          jsonParser,
		},
		{
			Name:        "summarize_text",
			Description: "Produce a naive leading-sentences summary",
			Fn:          summarizeText,
		},
	}
	if workDir != "" {
		builtins = append(builtins,
			Tool{Name: "read_file", Description: "Read a file inside the workspace", Fn: readFileIn(workDir)},
			Tool{Name: "write_file", Description: "Write a file inside the workspace", Fn: writeFileIn(workDir)},
		)
	}
	for _, tool := range builtins {
		tool.ModulePath = DefaultModulePath
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("missing argument %q", key))
	}
	s, ok := v.(string)
	if !ok {
		return "", types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("argument %q must be a string", key))
	}
	return s, nil
}

func searchWeb(_ context.Context, args map[string]any) (any, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"query":   query,
		"results": []any{},
		"note":    "no search backend configured",
	}, nil
}

func calculateWith(eval *sandbox.Evaluator) Func {
	return func(_ context.Context, args map[string]any) (any, error) {
		expr, err := stringArg(args, "expression")
		if err != nil {
			return nil, err
		}
		return eval.Evaluate(expr, nil)
	}
}

func currentWeather(_ context.Context, args map[string]any) (any, error) {
	location, err := stringArg(args, "location")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"location": location,
		"note":     "no weather backend configured",
	}, nil
}

func jsonParser(_ context.Context, args map[string]any) (any, error) {
	raw, err := stringArg(args, "text")
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid JSON").WithCause(err)
	}
	return out, nil
}

func summarizeText(_ context.Context, args map[string]any) (any, error) {
	text, err := stringArg(args, "text")
	if err != nil {
		return nil, err
	}
	maxSentences := 3
	if n, ok := args["max_sentences"].(float64); ok && n > 0 {
		maxSentences = int(n)
	}
	sentences := strings.SplitAfter(text, ". ")
	if len(sentences) <= maxSentences {
		return text, nil
	}
	return strings.TrimSpace(strings.Join(sentences[:maxSentences], "")), nil
}

func resolveIn(workDir, name string) (string, error) {
	path := filepath.Join(workDir, filepath.Clean("/"+name))
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	root, err := filepath.Abs(workDir)
	if err != nil {
		return "", err
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", types.NewError(types.ErrSandboxViolation,
			fmt.Sprintf("path %q escapes workspace", name))
	}
	return abs, nil
}

func readFileIn(workDir string) Func {
	return func(_ context.Context, args map[string]any) (any, error) {
		name, err := stringArg(args, "path")
		if err != nil {
			return nil, err
		}
		path, err := resolveIn(workDir, name)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, types.NewError(types.ErrNotFound, "read file").WithCause(err)
		}
		return string(data), nil
	}
}

func writeFileIn(workDir string) Func {
	return func(_ context.Context, args map[string]any) (any, error) {
		name, err := stringArg(args, "path")
		if err != nil {
			return nil, err
		}
		content, err := stringArg(args, "content")
		if err != nil {
			return nil, err
		}
		path, err := resolveIn(workDir, name)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, types.NewError(types.ErrInternalError, "create directory").WithCause(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, types.NewError(types.ErrInternalError, "write file").WithCause(err)
		}
		return map[string]any{"path": name, "bytes": len(content)}, nil
	}
}

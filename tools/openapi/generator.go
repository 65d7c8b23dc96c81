package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge/flowforge/tools"
	"github.com/flowforge/flowforge/types"
)

// Spec is a parsed OpenAPI document, reduced to what tool generation needs.
type Spec struct {
	OpenAPI string              `json:"openapi"`
	Info    Info                `json:"info"`
	Servers []Server            `json:"servers,omitempty"`
	Paths   map[string]PathItem `json:"paths"`
}

// Info carries API metadata.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Server is one API base URL.
type Server struct {
	URL string `json:"url"`
}

// PathItem holds the operations on a path.
type PathItem struct {
	Get    *Operation `json:"get,omitempty"`
	Post   *Operation `json:"post,omitempty"`
	Put    *Operation `json:"put,omitempty"`
	Delete *Operation `json:"delete,omitempty"`
	Patch  *Operation `json:"patch,omitempty"`
}

// Operation is one API operation.
type Operation struct {
	OperationID string       `json:"operationId,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	Description string       `json:"description,omitempty"`
	Parameters  []Parameter  `json:"parameters,omitempty"`
	RequestBody *RequestBody `json:"requestBody,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}

// Parameter is one operation parameter.
type Parameter struct {
	Name     string `json:"name"`
	In       string `json:"in"` // query, path, header
	Required bool   `json:"required,omitempty"`
}

// RequestBody marks whether an operation takes a JSON body.
type RequestBody struct {
	Required bool `json:"required,omitempty"`
}

// Options filters and targets tool generation.
type Options struct {
	// ModulePath is the registry module path the tools register under.
	ModulePath string
	// BaseURL overrides the spec's first server URL.
	BaseURL string
	// IncludeTags keeps only operations carrying one of these tags.
	IncludeTags []string
	// ExcludeTags drops operations carrying one of these tags.
	ExcludeTags []string
}

// Generator loads OpenAPI specs and registers their operations as tools.
type Generator struct {
	httpClient *http.Client
	logger     *zap.Logger
	mu         sync.RWMutex
	cache      map[string]*Spec
}

// NewGenerator creates a generator. timeout bounds both spec loading and
// tool invocation; zero means 30s.
func NewGenerator(timeout time.Duration, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Generator{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "openapi")),
		cache:      make(map[string]*Spec),
	}
}

// LoadSpec reads an OpenAPI document from an http(s) URL or a local file
// path. Specs are cached by source.
func (g *Generator) LoadSpec(ctx context.Context, source string) (*Spec, error) {
	g.mu.RLock()
	if spec, ok := g.cache[source]; ok {
		g.mu.RUnlock()
		return spec, nil
	}
	g.mu.RUnlock()

	var data []byte
	var err error
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = g.fetch(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("load OpenAPI spec %s", source)).WithCause(err)
	}

	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("parse OpenAPI spec %s", source)).WithCause(err)
	}

	g.mu.Lock()
	g.cache[source] = &spec
	g.mu.Unlock()

	g.logger.Info("loaded OpenAPI spec",
		zap.String("title", spec.Info.Title),
		zap.String("version", spec.Info.Version),
		zap.Int("paths", len(spec.Paths)))
	return &spec, nil
}

func (g *Generator) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// RegisterTools converts every matching operation in spec into a tool and
// registers it. Returns the registered tool names.
func (g *Generator) RegisterTools(registry *tools.Registry, spec *Spec, opts Options) ([]string, error) {
	baseURL := opts.BaseURL
	if baseURL == "" && len(spec.Servers) > 0 {
		baseURL = spec.Servers[0].URL
	}
	if baseURL == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "OpenAPI spec has no server URL")
	}

	var names []string
	for path, item := range spec.Paths {
		for method, op := range map[string]*Operation{
			http.MethodGet:    item.Get,
			http.MethodPost:   item.Post,
			http.MethodPut:    item.Put,
			http.MethodDelete: item.Delete,
			http.MethodPatch:  item.Patch,
		} {
			if op == nil {
				continue
			}
			if len(opts.IncludeTags) > 0 && !hasAnyTag(op.Tags, opts.IncludeTags) {
				continue
			}
			if len(opts.ExcludeTags) > 0 && hasAnyTag(op.Tags, opts.ExcludeTags) {
				continue
			}

			tool := g.operationTool(method, path, op, baseURL, opts.ModulePath)
			if err := registry.Register(tool); err != nil {
				return nil, err
			}
			names = append(names, tool.Name)
		}
	}

	g.logger.Info("registered OpenAPI tools",
		zap.String("module_path", opts.ModulePath),
		zap.Int("count", len(names)))
	return names, nil
}

func (g *Generator) operationTool(method, path string, op *Operation, baseURL, modulePath string) tools.Tool {
	name := op.OperationID
	if name == "" {
		name = strings.ToLower(method) + "_" + sanitizePath(path)
	}
	description := op.Summary
	if description == "" {
		description = op.Description
	}
	if description == "" {
		description = method + " " + path
	}

	params := op.Parameters
	hasBody := op.RequestBody != nil

	return tools.Tool{
		Name:        name,
		ModulePath:  modulePath,
		Description: description,
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			return g.invoke(ctx, method, baseURL, path, params, hasBody, args)
		},
	}
}

// invoke performs the HTTP call for a generated tool. Path parameters are
// substituted, query parameters appended, and remaining args sent as the
// JSON body when the operation accepts one.
func (g *Generator) invoke(ctx context.Context, method, baseURL, path string, params []Parameter, hasBody bool, args map[string]any) (any, error) {
	consumed := make(map[string]bool)
	for _, p := range params {
		if p.In != "path" {
			continue
		}
		val, ok := args[p.Name]
		if !ok {
			if p.Required {
				return nil, types.NewError(types.ErrInvalidRequest,
					fmt.Sprintf("missing path parameter %q", p.Name))
			}
			continue
		}
		path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(fmt.Sprint(val)))
		consumed[p.Name] = true
	}

	query := url.Values{}
	for _, p := range params {
		if p.In != "query" {
			continue
		}
		if val, ok := args[p.Name]; ok {
			query.Set(p.Name, fmt.Sprint(val))
			consumed[p.Name] = true
		} else if p.Required {
			return nil, types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("missing query parameter %q", p.Name))
		}
	}

	target := strings.TrimSuffix(baseURL, "/") + path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	var body io.Reader
	if hasBody {
		payload := make(map[string]any, len(args))
		for k, v := range args {
			if !consumed[k] {
				payload[k] = v
			}
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "encode request body").WithCause(err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "build request").WithCause(err)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, p := range params {
		if p.In == "header" {
			if val, ok := args[p.Name]; ok {
				req.Header.Set(p.Name, fmt.Sprint(val))
			}
		}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("%s %s", method, target)).WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "read response").WithCause(err)
	}
	if resp.StatusCode >= 400 {
		return nil, types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("%s %s returned %d", method, target, resp.StatusCode))
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return string(data), nil
	}
	return decoded, nil
}

func hasAnyTag(tags, targets []string) bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	for _, t := range targets {
		if set[t] {
			return true
		}
	}
	return false
}

func sanitizePath(path string) string {
	path = strings.ReplaceAll(path, "/", "_")
	path = strings.ReplaceAll(path, "{", "")
	path = strings.ReplaceAll(path, "}", "")
	return strings.Trim(path, "_")
}

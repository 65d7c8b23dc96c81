package graph

import (
	"encoding/json"
	"strings"
)

// NodeType identifies the behavior of a node.
type NodeType string

const (
	NodeStart        NodeType = "start"
	NodeEnd          NodeType = "end"
	NodeAgent        NodeType = "agent"
	NodeMemoryRead   NodeType = "memoryRead"
	NodeMemoryWrite  NodeType = "memoryWrite"
	NodeTool         NodeType = "tool"
	NodeDecision     NodeType = "decision"
	NodeParallelFork NodeType = "parallelFork"
	NodeParallelJoin NodeType = "parallelJoin"
	NodeLoop         NodeType = "loop"
	NodeErrorRetry   NodeType = "errorRetry"
	NodeTimeoutGuard NodeType = "timeoutGuard"
	NodeHumanPause   NodeType = "humanPause"
	NodeSubgraph     NodeType = "subgraph"
	NodeCustom       NodeType = "custom"
)

// Normalize maps editor-emitted type names ("startNode", "parallelForkNode")
// onto the canonical enum values.
func (t NodeType) Normalize() NodeType {
	s := string(t)
	if strings.HasSuffix(s, "Node") {
		s = strings.TrimSuffix(s, "Node")
	}
	return NodeType(s)
}

// Position is the node position on the visual canvas. Presentational only;
// it never influences compilation.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Predicate is one named boolean expression of an advanced-mode decision
// node. Predicates are evaluated in declaration order; the first that holds
// selects its name as the branch key.
type Predicate struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// NodeData carries the type-specific configuration of a node. All fields are
// optional; each node type reads only the fields it understands.
type NodeData struct {
	Label string `json:"label,omitempty"`

	// start
	InitialState map[string]any `json:"initialState,omitempty"`

	// end
	OutputFormat   string `json:"outputFormat,omitempty"` // raw|json|markdown
	FinalTransform string `json:"finalTransform,omitempty"`

	// agent
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"maxTokens,omitempty"`
	AgentType    string   `json:"agentType,omitempty"` // react|planAndExecute|""
	SystemPrompt string   `json:"systemPrompt,omitempty"`

	// tool
	ModulePath    string `json:"modulePath,omitempty"`
	FunctionName  string `json:"functionName,omitempty"`
	ArgsSchema    string `json:"argsSchema,omitempty"`
	Concurrency   int    `json:"concurrency,omitempty"`
	ErrorHandling string `json:"errorHandling,omitempty"` // fail|ignore|retry
	MaxRetries    *int   `json:"maxRetries,omitempty"`
	Timeout       int    `json:"timeout,omitempty"` // per-call timeout, ms

	// memoryRead / memoryWrite
	MemoryType        string `json:"memoryType,omitempty"` // short_term|long_term
	Key               string `json:"key,omitempty"`
	Namespace         string `json:"namespace,omitempty"`
	Filter            string `json:"filter,omitempty"`
	TTL               int    `json:"ttl,omitempty"` // seconds, long-term only
	OverwriteExisting *bool  `json:"overwriteExisting,omitempty"`

	// decision
	EvaluationMode string      `json:"evaluationMode,omitempty"` // simple|advanced
	Condition      string      `json:"condition,omitempty"`      // also loop condition
	Branches       []string    `json:"branches,omitempty"`
	DefaultBranch  string      `json:"defaultBranch,omitempty"`
	Predicates     []Predicate `json:"predicates,omitempty"`

	// parallelFork / parallelJoin
	MinBranches   int    `json:"minBranches,omitempty"`
	MergeStrategy string `json:"mergeStrategy,omitempty"` // concat|custom|""
	CustomMerger  string `json:"customMerger,omitempty"`

	// loop
	MaxIterations *int   `json:"maxIterations,omitempty"`
	CollectionKey string `json:"collectionKey,omitempty"`
	IteratorKey   string `json:"iteratorKey,omitempty"`

	// errorRetry
	InitialDelayMs int    `json:"initialDelayMs,omitempty"`
	MaxDelayMs     int    `json:"maxDelayMs,omitempty"`
	BackoffType    string `json:"backoffType,omitempty"` // constant|linear|exponential
	Jitter         *bool  `json:"jitter,omitempty"`

	// timeoutGuard
	TimeoutMs           int    `json:"timeoutMs,omitempty"`
	OnTimeout           string `json:"onTimeout,omitempty"` // error|default|abort
	DefaultResult       string `json:"defaultResult,omitempty"`
	HeartbeatIntervalMs int    `json:"heartbeatIntervalMs,omitempty"`

	// humanPause
	PauseMessage   string   `json:"pauseMessage,omitempty"`
	RequiredFields []string `json:"requiredFields,omitempty"`
	AllowEdits     *bool    `json:"allowEdits,omitempty"`

	// subgraph
	GraphID       string            `json:"graphId,omitempty"`
	Version       string            `json:"version,omitempty"`
	InputMapping  map[string]string `json:"inputMapping,omitempty"`
	OutputMapping map[string]string `json:"outputMapping,omitempty"`

	// custom
	FunctionBody string `json:"functionBody,omitempty"`
	Language     string `json:"language,omitempty"`
}

// Node is one configured unit of graph behavior.
type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Edge is a directed connection between two nodes, optionally qualified by
// source/target handles encoding the signal under which it fires.
type Edge struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	SourceHandle string         `json:"sourceHandle,omitempty"`
	TargetHandle string         `json:"targetHandle,omitempty"`
	Animated     *bool          `json:"animated,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Schema is a complete graph as submitted for compilation.
type Schema struct {
	GraphName string `json:"graphName"`
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges"`
}

// Parse decodes a schema from JSON and normalizes node type names.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	for i := range s.Nodes {
		s.Nodes[i].Type = s.Nodes[i].Type.Normalize()
	}
	return &s, nil
}

// Node returns the node with the given id, if present.
func (s *Schema) Node(id string) (*Node, bool) {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i], true
		}
	}
	return nil, false
}

// SanitizeID converts a node id into a safe program identifier: every
// non-alphanumeric rune becomes an underscore.
func SanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

package types

// Well-known state keys shared between the compiler and the runtime. The
// shape mirrors the state schema of the generated programs: one flat map
// with a handful of reserved keys plus per-node bookkeeping sections.
const (
	KeyInput           = "input"
	KeyOutput          = "output"
	KeyFinalOutput     = "final_output"
	KeyContext         = "context"
	KeyMemory          = "memory"
	KeyToolResults     = "tool_results"
	KeyAgentMessages   = "agent_messages"
	KeyErrors          = "errors"
	KeyError           = "error"
	KeyDecision        = "decision"
	KeyHumanDecision   = "human_decision"
	KeyParallelResults = "parallel_results"
	KeyLoopState       = "loop_state"
	KeyRetryState      = "retry_state"
	KeyTimeoutState    = "timeout_state"
	KeyAbort           = "abort"
)

// State is the mutable execution state threaded through a compiled program.
// It is owned by exactly one logical flow at a time; fork branches operate on
// clones and the join node merges their results back.
type State map[string]any

// NewState creates a state seeded with the standard keys.
func NewState(input any) State {
	return State{
		KeyInput:         input,
		KeyOutput:        "",
		KeyContext:       map[string]any{},
		KeyMemory:        map[string]any{},
		KeyToolResults:   map[string]any{},
		KeyAgentMessages: []any{},
		KeyErrors:        []any{},
	}
}

// GetString returns the value under key as a string, or "" when absent or
// not a string.
func (s State) GetString(key string) string {
	v, ok := s[key]
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// Errors returns the structured error list, never nil.
func (s State) Errors() []any {
	if list, ok := s[KeyErrors].([]any); ok {
		return list
	}
	return nil
}

// AppendError appends a structured error entry to the error list.
func (s State) AppendError(entry any) {
	list, _ := s[KeyErrors].([]any)
	s[KeyErrors] = append(list, entry)
}

// HasErrors reports whether the state carries an error key or a non-empty
// error list.
func (s State) HasErrors() bool {
	if _, ok := s[KeyError]; ok {
		return true
	}
	return len(s.Errors()) > 0
}

// Merge applies updates on top of the state, overwriting existing keys.
func (s State) Merge(updates map[string]any) {
	for k, v := range updates {
		s[k] = v
	}
}

// Scope returns the per-node bookkeeping map under section/nodeID, creating
// the nesting on demand. Sections are loop_state, retry_state and
// timeout_state; keying by node id keeps multiple nodes of the same type
// from colliding.
func (s State) Scope(section, nodeID string) map[string]any {
	sec, ok := s[section].(map[string]any)
	if !ok {
		sec = map[string]any{}
		s[section] = sec
	}
	scope, ok := sec[nodeID].(map[string]any)
	if !ok {
		scope = map[string]any{}
		sec[nodeID] = scope
	}
	return scope
}

// Clone returns a deep copy of the state. Maps and slices are copied
// recursively; scalar values are shared.
func (s State) Clone() State {
	return State(deepCopyMap(s))
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case State:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

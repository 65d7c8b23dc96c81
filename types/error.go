package types

import "fmt"

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Validation and compile error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInvalidGraph   ErrorCode = "INVALID_GRAPH"
	ErrNodeNotFound   ErrorCode = "NODE_NOT_FOUND"
	ErrEdgeUnroutable ErrorCode = "EDGE_UNROUTABLE"
	ErrRenderInvalid  ErrorCode = "RENDER_INVALID"
	ErrToolUnresolved ErrorCode = "TOOL_UNRESOLVED"
)

// Runtime error codes
const (
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrExecutionAborted ErrorCode = "EXECUTION_ABORTED"
	ErrSandboxViolation ErrorCode = "SANDBOX_VIOLATION"
	ErrSubgraphFailed   ErrorCode = "SUBGRAPH_FAILED"
	ErrMemoryBackend    ErrorCode = "MEMORY_BACKEND"
)

// Intervention error codes
const (
	ErrInterventionNotFound ErrorCode = "INTERVENTION_NOT_FOUND"
	ErrInterventionTerminal ErrorCode = "INTERVENTION_TERMINAL"
	ErrMissingRequiredField ErrorCode = "MISSING_REQUIRED_FIELD"
)

// Infrastructure error codes
const (
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	NodeID     string    `json:"node_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithNodeID attaches the graph node the error originated from.
func (e *Error) WithNodeID(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

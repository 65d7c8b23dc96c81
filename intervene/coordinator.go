package intervene

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowforge/flowforge/types"
)

// Status is the lifecycle state of an intervention request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusSkipped  Status = "skipped"
	StatusTimedOut Status = "timed_out"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// DefaultTimeout applies when a pause node does not set one.
const DefaultTimeout = 5 * time.Minute

// evictionGrace is how long a terminal request stays queryable.
const evictionGrace = 5 * time.Minute

// Request is one suspension awaiting operator input.
type Request struct {
	ID             string         `json:"id"`
	RunID          string         `json:"run_id,omitempty"`
	NodeID         string         `json:"node_id"`
	Message        string         `json:"message"`
	State          map[string]any `json:"state"`
	RequiredFields []string       `json:"required_fields,omitempty"`
	AllowEdits     bool           `json:"allow_edits"`
	Timeout        time.Duration  `json:"timeout"`
	Status         Status         `json:"status"`
	Response       map[string]any `json:"response,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
}

// Resolution is what a suspended run receives when it unblocks.
type Resolution struct {
	// State is the state the run resumes with: the operator response when
	// edits are allowed, otherwise the original suspended state.
	State map[string]any
	// Skipped is true when the operator skipped the pause or the timeout
	// fired; the node then routes down its skip branch.
	Skipped bool
}

type pendingRequest struct {
	req      *Request
	resultCh chan Resolution
}

// Coordinator tracks suspended runs and mediates their resumption. All
// methods are safe for concurrent use.
type Coordinator struct {
	mu       sync.RWMutex
	requests map[string]*pendingRequest
	logger   *zap.Logger
	grace    time.Duration
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		requests: make(map[string]*pendingRequest),
		logger:   logger.With(zap.String("component", "intervene")),
		grace:    evictionGrace,
	}
}

// SuspendOptions configures a suspension.
type SuspendOptions struct {
	RunID          string
	NodeID         string
	Message        string
	State          map[string]any
	RequiredFields []string
	AllowEdits     bool
	Timeout        time.Duration
}

// Suspend registers a new intervention request and blocks until it is
// resumed, skipped, times out, or ctx is canceled. The returned Resolution
// is always usable; on timeout or cancellation it carries the original state
// with Skipped set.
func (c *Coordinator) Suspend(ctx context.Context, opts SuspendOptions) (Resolution, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	req := &Request{
		ID:             uuid.NewString(),
		RunID:          opts.RunID,
		NodeID:         opts.NodeID,
		Message:        opts.Message,
		State:          opts.State,
		RequiredFields: opts.RequiredFields,
		AllowEdits:     opts.AllowEdits,
		Timeout:        timeout,
		Status:         StatusPending,
		CreatedAt:      time.Now(),
	}
	pending := &pendingRequest{
		req:      req,
		resultCh: make(chan Resolution, 1),
	}

	c.mu.Lock()
	c.requests[req.ID] = pending
	c.mu.Unlock()

	c.logger.Info("run suspended",
		zap.String("id", req.ID),
		zap.String("node_id", req.NodeID),
		zap.Duration("timeout", timeout))

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case res := <-pending.resultCh:
		return res, nil
	case <-waitCtx.Done():
		c.finish(req.ID, StatusTimedOut, nil)
		c.logger.Warn("intervention timed out",
			zap.String("id", req.ID),
			zap.String("node_id", req.NodeID))
		return Resolution{State: opts.State, Skipped: true}, nil
	}
}

// Resume resolves a pending request with an operator response. Skip wins
// over everything else and returns the original state to the run. A resume
// with missing required fields fails and leaves the request pending.
func (c *Coordinator) Resume(id string, response map[string]any, skip bool) error {
	c.mu.RLock()
	pending, ok := c.requests[id]
	c.mu.RUnlock()
	if !ok {
		return types.NewError(types.ErrInterventionNotFound,
			fmt.Sprintf("intervention %s not found", id))
	}
	if pending.req.Status.Terminal() {
		return types.NewError(types.ErrInterventionTerminal,
			fmt.Sprintf("intervention %s already %s", id, pending.req.Status))
	}

	if skip {
		c.deliver(pending, StatusSkipped, nil,
			Resolution{State: pending.req.State, Skipped: true})
		return nil
	}

	for _, field := range pending.req.RequiredFields {
		if _, present := response[field]; !present {
			return types.NewError(types.ErrMissingRequiredField,
				fmt.Sprintf("response missing required field %q", field))
		}
	}

	resumed := pending.req.State
	if pending.req.AllowEdits && response != nil {
		resumed = response
	}
	c.deliver(pending, StatusResolved, response,
		Resolution{State: resumed, Skipped: false})
	return nil
}

func (c *Coordinator) deliver(pending *pendingRequest, status Status, response map[string]any, res Resolution) {
	c.mu.Lock()
	if pending.req.Status.Terminal() {
		c.mu.Unlock()
		return
	}
	pending.req.Status = status
	pending.req.Response = response
	now := time.Now()
	pending.req.ResolvedAt = &now
	c.mu.Unlock()

	select {
	case pending.resultCh <- res:
	default:
	}

	c.logger.Info("intervention resolved",
		zap.String("id", pending.req.ID),
		zap.String("status", string(status)))
	c.scheduleEviction(pending.req.ID)
}

func (c *Coordinator) finish(id string, status Status, response map[string]any) {
	c.mu.Lock()
	pending, ok := c.requests[id]
	if !ok || pending.req.Status.Terminal() {
		c.mu.Unlock()
		return
	}
	pending.req.Status = status
	pending.req.Response = response
	now := time.Now()
	pending.req.ResolvedAt = &now
	c.mu.Unlock()

	c.scheduleEviction(id)
}

func (c *Coordinator) scheduleEviction(id string) {
	time.AfterFunc(c.grace, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if pending, ok := c.requests[id]; ok && pending.req.Status.Terminal() {
			delete(c.requests, id)
		}
	})
}

// Get returns a snapshot of the request with the given id.
func (c *Coordinator) Get(id string) (*Request, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pending, ok := c.requests[id]
	if !ok {
		return nil, types.NewError(types.ErrInterventionNotFound,
			fmt.Sprintf("intervention %s not found", id))
	}
	snapshot := *pending.req
	return &snapshot, nil
}

// Pending returns snapshots of every request still awaiting resolution.
func (c *Coordinator) Pending() []*Request {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Request
	for _, pending := range c.requests {
		if pending.req.Status == StatusPending {
			snapshot := *pending.req
			out = append(out, &snapshot)
		}
	}
	return out
}

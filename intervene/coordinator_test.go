package intervene

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/flowforge/flowforge/types"
)

func suspendAsync(t *testing.T, c *Coordinator, opts SuspendOptions) chan Resolution {
	t.Helper()
	ch := make(chan Resolution, 1)
	go func() {
		res, err := c.Suspend(context.Background(), opts)
		require.NoError(t, err)
		ch <- res
	}()
	return ch
}

func waitForPending(t *testing.T, c *Coordinator) *Request {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if reqs := c.Pending(); len(reqs) > 0 {
			return reqs[0]
		}
		select {
		case <-deadline:
			t.Fatal("no pending intervention appeared")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestResumeWithEditsReturnsResponseState(t *testing.T) {
	c := NewCoordinator(zaptest.NewLogger(t))
	original := map[string]any{"output": "draft"}

	resCh := suspendAsync(t, c, SuspendOptions{
		NodeID:     "pause-1",
		State:      original,
		AllowEdits: true,
		Timeout:    time.Minute,
	})
	req := waitForPending(t, c)

	edited := map[string]any{"output": "approved"}
	require.NoError(t, c.Resume(req.ID, edited, false))

	res := <-resCh
	assert.False(t, res.Skipped)
	assert.Equal(t, edited, res.State)
}

func TestResumeWithoutEditsKeepsOriginalState(t *testing.T) {
	c := NewCoordinator(zaptest.NewLogger(t))
	original := map[string]any{"output": "draft"}

	resCh := suspendAsync(t, c, SuspendOptions{
		NodeID:  "pause-1",
		State:   original,
		Timeout: time.Minute,
	})
	req := waitForPending(t, c)

	require.NoError(t, c.Resume(req.ID, map[string]any{"output": "ignored"}, false))

	res := <-resCh
	assert.False(t, res.Skipped)
	assert.Equal(t, original, res.State)
}

func TestSkipReturnsOriginalState(t *testing.T) {
	c := NewCoordinator(zaptest.NewLogger(t))
	original := map[string]any{"k": "v"}

	resCh := suspendAsync(t, c, SuspendOptions{
		State:      original,
		AllowEdits: true,
		Timeout:    time.Minute,
	})
	req := waitForPending(t, c)

	require.NoError(t, c.Resume(req.ID, nil, true))

	res := <-resCh
	assert.True(t, res.Skipped)
	assert.Equal(t, original, res.State)
}

func TestMissingRequiredFieldLeavesRequestPending(t *testing.T) {
	c := NewCoordinator(zaptest.NewLogger(t))

	resCh := suspendAsync(t, c, SuspendOptions{
		State:          map[string]any{},
		RequiredFields: []string{"decision", "reason"},
		AllowEdits:     true,
		Timeout:        time.Minute,
	})
	req := waitForPending(t, c)

	err := c.Resume(req.ID, map[string]any{"decision": "yes"}, false)
	require.Error(t, err)
	assert.Equal(t, types.ErrMissingRequiredField, types.GetErrorCode(err))

	// Still pending; a complete response succeeds.
	got, err := c.Get(req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	require.NoError(t, c.Resume(req.ID, map[string]any{"decision": "yes", "reason": "ok"}, false))
	res := <-resCh
	assert.False(t, res.Skipped)
}

func TestTimeoutUnblocksWithOriginalState(t *testing.T) {
	c := NewCoordinator(zaptest.NewLogger(t))
	original := map[string]any{"k": 1}

	res, err := c.Suspend(context.Background(), SuspendOptions{
		State:   original,
		Timeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, original, res.State)
}

func TestDoubleResumeFails(t *testing.T) {
	c := NewCoordinator(zaptest.NewLogger(t))

	resCh := suspendAsync(t, c, SuspendOptions{
		State:   map[string]any{},
		Timeout: time.Minute,
	})
	req := waitForPending(t, c)

	require.NoError(t, c.Resume(req.ID, nil, true))
	<-resCh

	err := c.Resume(req.ID, nil, true)
	require.Error(t, err)
	assert.Equal(t, types.ErrInterventionTerminal, types.GetErrorCode(err))
}

func TestResumeUnknownIDFails(t *testing.T) {
	c := NewCoordinator(zaptest.NewLogger(t))

	err := c.Resume("nope", nil, false)
	require.Error(t, err)
	assert.Equal(t, types.ErrInterventionNotFound, types.GetErrorCode(err))
}

func TestPendingListsOnlyPending(t *testing.T) {
	c := NewCoordinator(zaptest.NewLogger(t))

	resCh := suspendAsync(t, c, SuspendOptions{State: map[string]any{}, Timeout: time.Minute})
	req := waitForPending(t, c)
	assert.Len(t, c.Pending(), 1)

	require.NoError(t, c.Resume(req.ID, nil, true))
	<-resCh
	assert.Empty(t, c.Pending())

	// Terminal request stays queryable during the grace period.
	got, err := c.Get(req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, got.Status)
}

func TestEvictionAfterGrace(t *testing.T) {
	c := NewCoordinator(zaptest.NewLogger(t))
	c.grace = 10 * time.Millisecond

	resCh := suspendAsync(t, c, SuspendOptions{State: map[string]any{}, Timeout: time.Minute})
	req := waitForPending(t, c)
	require.NoError(t, c.Resume(req.ID, nil, true))
	<-resCh

	assert.Eventually(t, func() bool {
		_, err := c.Get(req.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

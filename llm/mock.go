package llm

import (
	"context"
	"sync"
)

// MockClient is a scriptable Client for tests. When no script is set it
// echoes the last user message.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	next      int
	Requests  []Request
	Err       error
}

// NewMockClient creates a mock that replies with the given responses in
// order, repeating the last one when exhausted.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

func (m *MockClient) Complete(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}

	content := ""
	if len(m.responses) > 0 {
		idx := m.next
		if idx >= len(m.responses) {
			idx = len(m.responses) - 1
		}
		content = m.responses[idx]
		m.next++
	} else {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == RoleUser {
				content = req.Messages[i].Content
				break
			}
		}
	}
	return &Response{Content: content, Model: req.Model}, nil
}

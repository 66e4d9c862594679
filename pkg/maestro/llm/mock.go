package llm

import (
	"context"
	"sync"
)

// MockClient is a test double implementing Client.
// It records every request and can serve fixed, sequential, or computed
// responses. Safe for concurrent use.
type MockClient struct {
	mu        sync.Mutex
	response  string
	responses []string
	transform func(prompt string) string
	err       error
	calls     []ChatRequest
}

// NewMockClient creates a mock that always answers with response.
func NewMockClient(response string) *MockClient {
	return &MockClient{response: response}
}

// WithResponses makes the mock cycle through the given responses.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	return m
}

// WithError makes every call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithTransform makes the mock compute its answer from the last user
// message, e.g. an echo or appending transform.
func (m *MockClient) WithTransform(fn func(prompt string) string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transform = fn
	return m
}

// CallCount returns the number of completed calls (blocking and streaming).
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of all recorded requests.
func (m *MockClient) Calls() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// LastPrompt returns the content of the last user message of the most
// recent call, or "" if no calls were made.
func (m *MockClient) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	msgs := m.calls[len(m.calls)-1].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// next records the call and produces the response content.
func (m *MockClient) next(req ChatRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", m.err
	}

	callIndex := len(m.calls)
	m.calls = append(m.calls, req)

	if m.transform != nil {
		prompt := ""
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == RoleUser {
				prompt = req.Messages[i].Content
				break
			}
		}
		return m.transform(prompt), nil
	}

	if len(m.responses) > 0 {
		return m.responses[callIndex%len(m.responses)], nil
	}

	return m.response, nil
}

// Chat implements Client.
func (m *MockClient) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	content, err := m.next(req)
	if err != nil {
		return nil, err
	}
	return &ChatResponse{Content: content, Model: req.Model}, nil
}

// Stream implements Client.
// The response is delivered as one content chunk followed by a done chunk.
func (m *MockClient) Stream(_ context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	content, err := m.next(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk, 2)
	if content != "" {
		ch <- StreamChunk{Content: content}
	}
	ch <- StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

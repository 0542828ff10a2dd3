package llm

import (
	"context"
	"net/http"
	"sync"
)

// MockClient is a deterministic Client implementation for testing.
// Responses are served from a script in order; after the script is
// exhausted the last entry repeats. Errors can be interleaved with
// responses to exercise transport-retry paths.
type MockClient struct {
	mu sync.Mutex

	// Responses is the scripted sequence of response texts.
	Responses []string

	// Errors, when non-nil at the call index, is returned instead of a
	// response. A nil entry means the call succeeds.
	Errors []error

	// Prompts records every request passed to Complete, in order.
	Prompts []Request

	calls int
}

// NewMockClient creates a mock that always returns the given response.
func NewMockClient(response string) *MockClient {
	return &MockClient{Responses: []string{response}}
}

// NewMockClientScript creates a mock that returns each response in turn.
func NewMockClientScript(responses ...string) *MockClient {
	return &MockClient{Responses: responses}
}

// NewMockClientWithError creates a mock whose every call fails with err.
func NewMockClientWithError(err error) *MockClient {
	return &MockClient{Errors: []error{err}}
}

// Complete returns the next scripted response or error.
func (m *MockClient) Complete(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.Prompts = append(m.Prompts, req)
	idx := m.calls
	m.calls++

	if len(m.Errors) > 0 {
		errIdx := idx
		if errIdx >= len(m.Errors) {
			errIdx = len(m.Errors) - 1
		}
		if err := m.Errors[errIdx]; err != nil {
			return Response{}, err
		}
	}

	if len(m.Responses) == 0 {
		return Response{Text: "", StatusCode: http.StatusOK}, nil
	}
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return Response{Text: m.Responses[idx], StatusCode: http.StatusOK}, nil
}

// Calls returns how many times Complete has been invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastPrompt returns the most recent request, or a zero Request if none.
func (m *MockClient) LastPrompt() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Prompts) == 0 {
		return Request{}
	}
	return m.Prompts[len(m.Prompts)-1]
}

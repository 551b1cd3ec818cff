package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	mu       sync.Mutex
	requests []CompletionRequest
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response"}, nil
}

// Requests returns a copy of every request seen by Complete.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}

// ScriptedReplies returns a CompleteFunc that answers with the given replies
// in order, repeating the last one once exhausted.
func ScriptedReplies(replies ...string) func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) == 0 {
			return &CompletionResponse{}, nil
		}
		r := replies[min(i, len(replies)-1)]
		i++
		return &CompletionResponse{Content: r, Model: "mock"}, nil
	}
}

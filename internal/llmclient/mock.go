package llmclient

import "context"

// MockBackend returns a canned response, for tests exercising
// SummaryEngine/ResponseParser without network access.
type MockBackend struct {
	Response CompletionResult
	Err      error
	Calls    int
}

func (m *MockBackend) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	m.Calls++
	if m.Err != nil {
		return CompletionResult{}, m.Err
	}
	result := m.Response
	if result.Model == "" {
		result.Model = req.Model
	}
	return result, nil
}

package llm

import "context"

// MockGenerator is a Generator for tests. Responses are returned in order;
// the last one repeats once exhausted. If Err is set every call fails.
type MockGenerator struct {
	Responses []string
	Err       error
	Calls     []Request
}

func (m *MockGenerator) Generate(_ context.Context, req Request) (string, error) {
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}
	idx := len(m.Calls) - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

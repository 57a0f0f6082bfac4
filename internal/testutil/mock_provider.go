// Package testutil provides shared test helpers and mocks for the engagement pipeline.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/llm"
)

// MockProvider implements llm.Provider without network calls.
// When Content is empty, Generate returns "mock response from " + ProviderName.
// Set Err to simulate provider errors and Delay to simulate latency (honours ctx).
type MockProvider struct {
	ProviderName string
	Content      string
	Err          error
	Delay        time.Duration

	mu       sync.Mutex
	calls    int
	requests []*llm.Request
}

// Name returns the provider identifier (implements llm.Provider).
func (m *MockProvider) Name() string { return m.ProviderName }

// Generate returns a canned response or the configured error.
func (m *MockProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	content := m.Content
	if content == "" {
		content = "mock response from " + m.ProviderName
	}
	return &llm.Response{
		Content:      content,
		FinishReason: "stop",
		InputTokens:  10,
		OutputTokens: 20,
		Model:        req.Model,
	}, nil
}

// EstimateCost returns a fixed cost for tests.
func (m *MockProvider) EstimateCost(string, int, int) float64 { return 0.001 }

// Calls returns how many times Generate was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request, or nil.
func (m *MockProvider) LastRequest() *llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// SequenceProvider returns Errs[i] (when non-nil) or Content on call i,
// repeating the last entry once the sequence is exhausted.
type SequenceProvider struct {
	Content string
	Errs    []error

	mu    sync.Mutex
	calls int
}

// Name returns "sequence".
func (p *SequenceProvider) Name() string { return "sequence" }

// Generate implements llm.Provider.
func (p *SequenceProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()

	if len(p.Errs) > 0 {
		if idx >= len(p.Errs) {
			idx = len(p.Errs) - 1
		}
		if err := p.Errs[idx]; err != nil {
			return nil, err
		}
	}
	return &llm.Response{Content: p.Content, FinishReason: "stop", Model: req.Model}, nil
}

// EstimateCost returns 0.
func (p *SequenceProvider) EstimateCost(string, int, int) float64 { return 0 }

// Calls returns how many times Generate was invoked.
func (p *SequenceProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Package llm abstracts the text generation providers the brain engine and
// the signal inferrer call. Callers bound every call with a timeout.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutLLMCall is the provider-side ceiling; callers usually set a tighter deadline.
const TimeoutLLMCall = 30 * time.Second

// Domain errors for the LLM package.
var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrEmptyResponse   = errors.New("provider returned no choices")
)

// Provider is the interface all generation providers implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string
	// Generate sends a completion request and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// EstimateCost estimates the cost in EUR for the given model and token counts.
	EstimateCost(model string, inputTokens, outputTokens int) float64
}

// Request is a generation request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// Message is a chat message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response is a generation response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}

// NewProvider builds a provider by name. baseURL is optional for both kinds.
func NewProvider(name, apiKey, baseURL string) (Provider, error) {
	switch name {
	case "openai":
		if baseURL != "" {
			return NewOpenAIProviderWithBaseURL(apiKey, baseURL), nil
		}
		return NewOpenAIProvider(apiKey), nil
	case "ollama":
		return NewOllamaProvider(baseURL), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

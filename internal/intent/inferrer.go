package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/llm"
)

// ErrMalformedInference is returned when the collaborator's answer cannot be parsed.
var ErrMalformedInference = errors.New("malformed inference response")

// InferredSignal is a signal in the collaborator's external taxonomy.
type InferredSignal struct {
	Label  string `json:"label"`
	Phrase string `json:"phrase,omitempty"`
}

// Inferrer proposes additional signals for ambiguous text.
type Inferrer interface {
	Name() string
	Infer(ctx context.Context, text string) ([]InferredSignal, error)
}

// InferenceOutcome is the degradable result of one inference call: either
// adapted signals or the error that was swallowed.
type InferenceOutcome struct {
	Signals []DetectedSignal
	Err     error
}

// externalLabels adapts the collaborator taxonomy into lexicon categories.
var externalLabels = map[string]struct {
	category Category
	strong   bool
}{
	"purchase_intent": {CategoryConditional, false},
	"question":        {CategoryInterrogativeWord, false},
	"where_to_buy":    {CategorySource, false},
	"complaint":       {CategoryProblem, false},
	"refund":          {CategoryRegret, false},
	"comparison":      {CategoryEvaluative, false},
	"suitability":     {CategoryEvaluative, true},
	"occasion":        {CategoryUsageContext, false},
	"product_mention": {CategoryProductRef, false},
}

// AdaptInferred converts external labels into DetectedSignals. Unknown labels
// are dropped. The phrase defaults to "inferred:<label>".
func AdaptInferred(labels []InferredSignal) []DetectedSignal {
	out := make([]DetectedSignal, 0, len(labels))
	for _, l := range labels {
		label := strings.ToLower(strings.TrimSpace(l.Label))
		m, ok := externalLabels[label]
		if !ok {
			continue
		}
		phrase := Normalize(l.Phrase)
		if phrase == "" {
			phrase = "inferred:" + label
		}
		out = append(out, NewSignal(m.category, phrase, m.strong))
	}
	return out
}

const inferencePrompt = `Label the social media comment with zero or more of these labels:
purchase_intent, question, where_to_buy, complaint, refund, comparison, suitability, occasion, product_mention.
Reply with JSON only: {"signals":[{"label":"<label>","phrase":"<exact words from the comment>"}]}`

// LLMInferrer asks a generation provider to label text.
type LLMInferrer struct {
	provider llm.Provider
	model    string
}

// NewLLMInferrer creates an inferrer backed by provider/model.
func NewLLMInferrer(provider llm.Provider, model string) *LLMInferrer {
	return &LLMInferrer{provider: provider, model: model}
}

// Name implements Inferrer.
func (i *LLMInferrer) Name() string {
	return "llm:" + i.provider.Name()
}

// Infer implements Inferrer.
func (i *LLMInferrer) Infer(ctx context.Context, text string) ([]InferredSignal, error) {
	resp, err := i.provider.Generate(ctx, &llm.Request{
		Model: i.model,
		Messages: []llm.Message{
			{Role: "system", Content: inferencePrompt},
			{Role: "user", Content: text},
		},
		Temperature: 0,
		MaxTokens:   200,
	})
	if err != nil {
		return nil, fmt.Errorf("inference call: %w", err)
	}
	return parseInference(resp.Content)
}

func parseInference(content string) ([]InferredSignal, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var payload struct {
		Signals []InferredSignal `json:"signals"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInference, err)
	}
	return payload.Signals, nil
}

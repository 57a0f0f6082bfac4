package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Retrieval bounds. Results slower or less confident are discarded.
const (
	RetrievalTimeout       = 800 * time.Millisecond
	RetrievalMinConfidence = 0.7
	DefaultMaxSnippets     = 3
)

// RetrievalQuery is what the engine asks the retrieval collaborator.
type RetrievalQuery struct {
	Query       string `json:"query"`
	TenantID    string `json:"tenant_id"`
	MaxSnippets int    `json:"max_snippets"`
}

// Snippet is one supporting passage.
type Snippet struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// RetrievalResult is the collaborator's answer.
type RetrievalResult struct {
	Snippets   []Snippet `json:"snippets"`
	Confidence float64   `json:"confidence"`
}

// Retriever fetches supporting snippets for a reply.
type Retriever interface {
	Retrieve(ctx context.Context, q RetrievalQuery) (*RetrievalResult, error)
}

// RetrievalOutcome records what happened to a retrieval attempt. Used is
// true only when the snippets were passed to the prompt.
type RetrievalOutcome struct {
	Attempted  bool          `json:"attempted"`
	Used       bool          `json:"used"`
	Discarded  string        `json:"discarded,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	Snippets   []Snippet     `json:"-"`
	Latency    time.Duration `json:"latency_ns,omitempty"`
}

// Sources lists snippet sources for citations.
func (o RetrievalOutcome) Sources() []string {
	var out []string
	for _, s := range o.Snippets {
		if s.Source != "" {
			out = append(out, s.Source)
		}
	}
	return out
}

// retrieve calls r with the fixed bound and confidence floor. It never
// returns an error; failures are reported in the outcome.
func retrieve(ctx context.Context, r Retriever, q RetrievalQuery) RetrievalOutcome {
	if r == nil {
		return RetrievalOutcome{}
	}
	ctx, cancel := context.WithTimeout(ctx, RetrievalTimeout)
	defer cancel()

	type reply struct {
		res *RetrievalResult
		err error
	}
	ch := make(chan reply, 1)
	start := time.Now()
	go func() {
		res, err := r.Retrieve(ctx, q)
		ch <- reply{res, err}
	}()

	out := RetrievalOutcome{Attempted: true}
	select {
	case <-ctx.Done():
		out.Latency = time.Since(start)
		out.Discarded = "timeout"
		return out
	case rep := <-ch:
		out.Latency = time.Since(start)
		switch {
		case rep.err != nil:
			out.Discarded = "error: " + rep.err.Error()
		case rep.res == nil || len(rep.res.Snippets) == 0:
			out.Discarded = "empty"
		case rep.res.Confidence < RetrievalMinConfidence:
			out.Confidence = rep.res.Confidence
			out.Discarded = fmt.Sprintf("low_confidence: %.2f", rep.res.Confidence)
		default:
			out.Used = true
			out.Confidence = rep.res.Confidence
			out.Snippets = rep.res.Snippets
			if q.MaxSnippets > 0 && len(out.Snippets) > q.MaxSnippets {
				out.Snippets = out.Snippets[:q.MaxSnippets]
			}
		}
		return out
	}
}

// HTTPRetriever calls a retrieval service over JSON: POST {base}/v1/retrieve.
type HTTPRetriever struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRetriever creates a client for the retrieval service at baseURL.
func NewHTTPRetriever(baseURL string) *HTTPRetriever {
	return &HTTPRetriever{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * RetrievalTimeout},
	}
}

func (h *HTTPRetriever) Retrieve(ctx context.Context, q RetrievalQuery) (*RetrievalResult, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshaling retrieval request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/retrieve", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating retrieval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling retrieval service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("retrieval service error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out RetrievalResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding retrieval response: %w", err)
	}
	return &out, nil
}

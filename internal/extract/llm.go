// internal/extract/llm.go
package extract

import "context"

// LanguageModel is the interface for any completion backend. Implementations
// own transport concerns: authentication, pacing and retry of transient
// provider errors. A returned answer, possibly empty, is the only contract.
type LanguageModel interface {
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
	TokenCount(ctx context.Context, text string) (int, error)
}

// CompletionRequest is a single system+user prompt exchange.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Completion is the model answer with the token usage reported by the provider.
// Truncated is set when generation stopped at the MaxTokens limit.
type Completion struct {
	Text      string
	Model     string
	Usage     Usage
	Truncated bool
}

// Usage is the token accounting of one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Sampling holds the sampling parameters sent with every stage request.
// Downstream parsing assumes low-variance formatting, so the defaults are
// near-deterministic.
type Sampling struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// DefaultSampling returns temperature 0 and top-p 0. MaxTokens caps each
// answer; an answer cut at the cap loses its last line to the grammar.
func DefaultSampling() Sampling {
	return Sampling{Temperature: 0, TopP: 0, MaxTokens: 4096}
}

// Package enrich adds LLM-derived summaries, needs, and cited claims to
// deduplicated events. Every claim is locked to an exact quote span in source
// text; anything the model asserts without a verifiable quote is dropped.
package enrich

import "context"

// Provider is the interface for LLM backends.
type Provider interface {
	// Name returns the provider name (e.g., "gemini").
	Name() string

	// Available returns true if the provider is configured and ready.
	Available() bool

	// Generate sends a prompt and returns the response.
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request is a prompt request to an LLM provider.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

// Response is the LLM provider's response.
type Response struct {
	Content     string
	Model       string
	RawResponse string // raw API body for diagnostics
}

// Package llm provides the generation client for brief synthesis. It defines
// a provider-agnostic Client interface with a concrete OpenAI implementation
// and deterministic mocks for testing, plus the batch dispatcher and the
// cross-job rate limiter that throttles outbound requests.
package llm

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTransport     = errors.New("generation request failed")
	ErrInvalidConfig = errors.New("invalid LLM configuration")
	ErrEmptyResponse = errors.New("empty response from generation service")
)

// Request is one generation call. One request may carry a whole batch of
// subject records in its user message.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Response is the raw text returned by the generation service. It is
// consumed immediately by the repair parser and never persisted.
type Response struct {
	Text       string
	StatusCode int
}

// Client defines the interface for the generation service.
// Implementations must be stateless and safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Config holds common configuration for generation clients.
type Config struct {
	// Model is the default model identifier when a Request leaves it empty.
	Model string

	// Temperature is the default sampling temperature.
	Temperature float64

	// MaxTokens limits response length (0 = provider default).
	MaxTokens int

	// APIKey authenticates with the provider.
	APIKey string
}

// DefaultConfig returns sensible defaults for brief synthesis.
func DefaultConfig() Config {
	return Config{
		Model:     "gpt-4o",
		MaxTokens: 4096,
	}
}

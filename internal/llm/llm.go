// Package llm provides chat-completion clients for the copilot.
//
// The copilot doesn't care about the provider -- it just needs a function that
// takes an ordered message list and returns the model's text.
package llm

import (
	"context"
	"fmt"
	"net/http"
)

// Message is one entry of the ordered conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Client makes completion calls against a language model.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// APIError is returned when the provider answers with a non-success status.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Body)
}

// Options configures a provider client.
type Options struct {
	Provider   string // "anthropic" or "openai"; empty picks whichever key is set
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a Client for the configured provider.
func New(opts Options) (Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("no LLM API key configured")
	}
	switch opts.Provider {
	case "", "anthropic":
		return NewAnthropicClient(opts.APIKey, opts.BaseURL, opts.HTTPClient), nil
	case "openai":
		return NewOpenAIClient(opts.APIKey, opts.BaseURL, opts.HTTPClient), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", opts.Provider)
	}
}

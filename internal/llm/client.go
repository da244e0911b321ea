// Package llm provides the remote reasoning clients. Every provider
// takes one system/user prompt pair and returns the model's raw text;
// interpreting that text is the caller's job.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/axis/internal/config"
	"github.com/nugget/axis/internal/httpkit"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = config.LevelTrace

// Request is a single completion request.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// JSON asks the provider to constrain output to a JSON object where
	// it supports that, and to say so in the prompt where it does not.
	JSON bool
}

// Response is the model's reply.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Client sends completion requests to a remote model. Implementations
// never retry: a failed call returns an error wrapping
// [ErrUpstreamUnavailable] or [ErrUpstreamMalformed].
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	// Provider names the backend, e.g. "openai".
	Provider() string
}

// jsonInstruction is appended to the system prompt for providers
// without a native JSON mode.
const jsonInstruction = "\n\nRespond with a single JSON object and nothing else."

// New builds the client selected by cfg.
func New(cfg config.LLMConfig, apiKey string, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := httpkit.NewClient(httpkit.WithTimeout(time.Duration(cfg.TimeoutSec) * time.Second))

	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(apiKey, cfg.BaseURL, cfg.Model, httpClient, logger), nil
	case "anthropic":
		return NewAnthropicClient(apiKey, cfg.BaseURL, cfg.Model, httpClient, logger), nil
	case "ollama":
		return NewOllamaClient(cfg.BaseURL, cfg.Model, httpClient, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

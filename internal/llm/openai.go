package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nugget/axis/internal/httpkit"
)

// OpenAIClient talks to the OpenAI chat completions API, or any
// endpoint compatible with it when a base URL is configured.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIClient creates a client. An empty baseURL uses the public
// OpenAI endpoint.
func NewOpenAIClient(apiKey, baseURL, model string, httpClient *http.Client, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.With("provider", "openai"),
	}
}

// Provider implements [Client].
func (c *OpenAIClient) Provider() string { return "openai" }

// Complete implements [Client].
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	creq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	c.logger.Debug("sending request",
		"model", c.model,
		"system_len", len(req.System),
		"user_len", len(req.User),
		"json", req.JSON,
	)
	c.logger.Log(ctx, LevelTrace, "request payload", "system", req.System, "user", req.User)

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, c.mapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, malformed("openai", "response has no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, malformed("openai", "response content is empty")
	}

	out := &Response{
		Text:         text,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	c.logger.Debug("response received",
		"model", out.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", out.Text)
	return out, nil
}

// mapError converts go-openai errors to the package taxonomy, keeping
// the upstream message when the API supplied one.
func (c *OpenAIClient) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		c.logger.Error("API error", "status", apiErr.HTTPStatusCode, "message", apiErr.Message)
		return &UpstreamError{Provider: "openai", StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := httpkit.ErrorMessage(string(reqErr.Body))
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		c.logger.Error("request error", "status", reqErr.HTTPStatusCode, "message", msg)
		return &UpstreamError{Provider: "openai", StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	c.logger.Error("request failed", "error", err)
	return unavailable("openai", err)
}

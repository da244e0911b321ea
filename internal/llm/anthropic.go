package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nugget/axis/internal/httpkit"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"
)

// AnthropicClient is a client for the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey, baseURL, model string, httpClient *http.Client, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = anthropicAPIURL
	}
	if httpClient == nil {
		httpClient = httpkit.NewClient()
	}
	return &AnthropicClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
		logger:     logger.With("provider", "anthropic"),
	}
}

// Anthropic API types

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Provider implements [Client].
func (c *AnthropicClient) Provider() string { return "anthropic" }

// Complete implements [Client]. The Messages API has no JSON mode, so
// a JSON request adds an instruction to the system prompt instead.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	system := req.System
	if req.JSON {
		system += jsonInstruction
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	areq := anthropicRequest{
		Model:       c.model,
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	jsonData, err := json.Marshal(areq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("sending request", "model", c.model, "system_len", len(system), "user_len", len(req.User))
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, unavailable("anthropic", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, &UpstreamError{Provider: "anthropic", StatusCode: resp.StatusCode, Message: httpkit.ErrorMessage(errBody)}
	}

	var aresp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&aresp); err != nil {
		return nil, malformed("anthropic", "decode response: "+err.Error())
	}

	var text strings.Builder
	for _, block := range aresp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := &Response{
		Text:         strings.TrimSpace(text.String()),
		Model:        aresp.Model,
		InputTokens:  aresp.Usage.InputTokens,
		OutputTokens: aresp.Usage.OutputTokens,
	}
	if out.Text == "" {
		return nil, malformed("anthropic", "response has no text content")
	}

	c.logger.Debug("response received",
		"model", out.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"stop_reason", aresp.StopReason,
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", out.Text)
	return out, nil
}

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

// OllamaClient is a client for a local Ollama server.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL, model string, httpClient *http.Client, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if httpClient == nil {
		httpClient = httpkit.NewClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
		logger:     logger.With("provider", "ollama"),
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

// ollamaOptions are model parameters.
type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

// Provider implements [Client].
func (c *OllamaClient) Provider() string { return "ollama" }

// Complete implements [Client]. JSON requests use Ollama's
// format=json constraint.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Response, error) {
	oreq := ollamaRequest{
		Model: c.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Options: &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	if req.JSON {
		oreq.Format = "json"
	}

	jsonData, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, unavailable("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, &UpstreamError{Provider: "ollama", StatusCode: resp.StatusCode, Message: httpkit.ErrorMessage(errBody)}
	}

	var oresp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&oresp); err != nil {
		return nil, malformed("ollama", "decode response: "+err.Error())
	}
	text := strings.TrimSpace(oresp.Message.Content)
	if text == "" {
		return nil, malformed("ollama", "response content is empty")
	}

	c.logger.Debug("response received",
		"model", oresp.Model,
		"input_tokens", oresp.PromptEvalCount,
		"output_tokens", oresp.EvalCount,
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", text)

	return &Response{
		Text:         text,
		Model:        oresp.Model,
		InputTokens:  oresp.PromptEvalCount,
		OutputTokens: oresp.EvalCount,
	}, nil
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nugget/axis/internal/config"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClient_Complete(t *testing.T) {
	var gotBody map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":" {\"type\":\"final\"} "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`)
	})

	c := NewOpenAIClient("sk-test", srv.URL+"/v1", "gpt-4o-mini", srv.Client(), nil)
	resp, err := c.Complete(context.Background(), Request{System: "sys", User: "hi", Temperature: 0.3, MaxTokens: 900, JSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != `{"type":"final"}` {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 4 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}

	rf, _ := gotBody["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", gotBody["response_format"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", gotBody["messages"])
	}
}

func TestOpenAIClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind error
		wantMsg  string
	}{
		{"api error", 401, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, ErrUpstreamUnavailable, "Incorrect API key provided"},
		{"server error", 503, `{"error":{"message":"overloaded","type":"server_error"}}`, ErrUpstreamUnavailable, "overloaded"},
		{"empty choices", 200, `{"id":"c1","model":"m","choices":[]}`, ErrUpstreamMalformed, ""},
		{"empty content", 200, `{"id":"c1","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":""}}]}`, ErrUpstreamMalformed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			c := NewOpenAIClient("k", srv.URL, "m", srv.Client(), nil)
			_, err := c.Complete(context.Background(), Request{System: "s", User: "u"})
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("err = %v, want %v", err, tt.wantKind)
			}
			if tt.wantMsg != "" {
				var ue *UpstreamError
				if !errors.As(err, &ue) {
					t.Fatalf("err = %T, want *UpstreamError", err)
				}
				if ue.StatusCode != tt.status || ue.Message != tt.wantMsg {
					t.Errorf("UpstreamError = %+v", ue)
				}
			}
		})
	}
}

func TestAnthropicClient_Complete(t *testing.T) {
	var got anthropicRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ak" || r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("headers = %v", r.Header)
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"id":"m1","type":"message","model":"claude-test",
			"content":[{"type":"text","text":"{\"type\":"},{"type":"text","text":"\"final\"}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":30,"output_tokens":7}}`)
	})

	c := NewAnthropicClient("ak", srv.URL, "claude-test", srv.Client(), nil)
	resp, err := c.Complete(context.Background(), Request{System: "sys", User: "hi", MaxTokens: 100, JSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != `{"type":"final"}` {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.InputTokens != 30 || resp.OutputTokens != 7 || resp.Model != "claude-test" {
		t.Errorf("resp = %+v", resp)
	}
	if !strings.HasSuffix(got.System, jsonInstruction) {
		t.Errorf("system prompt missing JSON instruction: %q", got.System)
	}
	if got.MaxTokens != 100 || len(got.Messages) != 1 || got.Messages[0].Content != "hi" {
		t.Errorf("request = %+v", got)
	}
}

func TestAnthropicClient_Errors(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	})
	c := NewAnthropicClient("ak", srv.URL, "m", srv.Client(), nil)
	_, err := c.Complete(context.Background(), Request{User: "hi"})

	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != 529 || ue.Message != "Overloaded" {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Error("UpstreamError should match ErrUpstreamUnavailable")
	}

	empty := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"m1","type":"message","content":[],"usage":{}}`)
	})
	c = NewAnthropicClient("ak", empty.URL, "m", empty.Client(), nil)
	if _, err := c.Complete(context.Background(), Request{User: "hi"}); !errors.Is(err, ErrUpstreamMalformed) {
		t.Errorf("empty content err = %v, want ErrUpstreamMalformed", err)
	}
}

func TestOllamaClient_Complete(t *testing.T) {
	var got ollamaRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"model":"qwen3:8b","message":{"role":"assistant","content":"{\"ok\":true}"},"done":true,"prompt_eval_count":50,"eval_count":6}`)
	})

	c := NewOllamaClient(srv.URL, "qwen3:8b", srv.Client(), nil)
	resp, err := c.Complete(context.Background(), Request{System: "s", User: "u", Temperature: 0.2, MaxTokens: 64, JSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != `{"ok":true}` || resp.InputTokens != 50 || resp.OutputTokens != 6 {
		t.Errorf("resp = %+v", resp)
	}
	if got.Format != "json" || got.Stream || got.Options.NumPredict != 64 {
		t.Errorf("request = %+v", got)
	}
}

func TestOllamaClient_Errors(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"model \"nope\" not found"}`)
	})
	c := NewOllamaClient(srv.URL, "nope", srv.Client(), nil)
	_, err := c.Complete(context.Background(), Request{User: "u"})
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Message != `model "nope" not found` {
		t.Fatalf("err = %v", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	clients := []Client{
		NewOpenAIClient("k", url, "m", nil, nil),
		NewAnthropicClient("k", url, "m", nil, nil),
		NewOllamaClient(url, "m", nil, nil),
	}
	for _, c := range clients {
		t.Run(c.Provider(), func(t *testing.T) {
			_, err := c.Complete(context.Background(), Request{User: "u"})
			if !errors.Is(err, ErrUpstreamUnavailable) {
				t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
			}
			var ue *UpstreamError
			if errors.As(err, &ue) {
				t.Errorf("transport failure should not carry a status: %+v", ue)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic", "ollama"} {
		cfg := config.Default()
		cfg.LLM.Provider = provider
		c, err := New(cfg.LLM, "k", nil)
		if err != nil {
			t.Fatalf("New(%s): %v", provider, err)
		}
		if c.Provider() != provider {
			t.Errorf("Provider() = %q, want %q", c.Provider(), provider)
		}
	}
	cfg := config.Default()
	cfg.LLM.Provider = "gemini"
	if _, err := New(cfg.LLM, "k", nil); err == nil {
		t.Error("unknown provider should error")
	}
}

func TestScriptedClient(t *testing.T) {
	boom := errors.New("boom")
	c := NewScriptedClient("one").Push(ScriptedReply{Err: boom})

	resp, err := c.Complete(context.Background(), Request{User: "a"})
	if err != nil || resp.Text != "one" {
		t.Fatalf("first call = %v, %v", resp, err)
	}
	if _, err := c.Complete(context.Background(), Request{User: "b"}); !errors.Is(err, boom) {
		t.Errorf("second call err = %v", err)
	}
	if _, err := c.Complete(context.Background(), Request{User: "c"}); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("exhausted script err = %v", err)
	}
	calls := c.Calls()
	if len(calls) != 3 || calls[2].User != "c" {
		t.Errorf("calls = %+v", calls)
	}
}

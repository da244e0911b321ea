package httpkit

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient_Timeout(t *testing.T) {
	if got := NewClient().Timeout; got != DefaultTimeout {
		t.Errorf("default timeout = %v, want %v", got, DefaultTimeout)
	}
	if got := NewClient(WithTimeout(0)).Timeout; got != 0 {
		t.Errorf("WithTimeout(0) = %v, want 0", got)
	}
	if got := NewClient(WithTimeout(5 * time.Second)).Timeout; got != 5*time.Second {
		t.Errorf("WithTimeout(5s) = %v", got)
	}
}

func TestNewClient_UserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	get := func(ua string) string {
		t.Helper()
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		if ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		resp, err := NewClient().Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	if got := get(""); !strings.HasPrefix(got, "Axis/") {
		t.Errorf("default User-Agent = %q, want Axis/ prefix", got)
	}
	if got := get("CustomBot/2.0"); got != "CustomBot/2.0" {
		t.Errorf("caller User-Agent overwritten: %q", got)
	}
}

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, errors.New("simulated read error") }

func TestReadErrorBody(t *testing.T) {
	if got := ReadErrorBody(io.NopCloser(strings.NewReader("error details here")), 512); got != "error details here" {
		t.Errorf("got %q", got)
	}
	if got := ReadErrorBody(io.NopCloser(strings.NewReader(strings.Repeat("x", 1000))), 10); len(got) != 10 {
		t.Errorf("expected 10 bytes, got %d", len(got))
	}
	if got := ReadErrorBody(nil, 512); got != "" {
		t.Errorf("nil body = %q", got)
	}
	if got := ReadErrorBody(io.NopCloser(failReader{}), 512); !strings.Contains(got, "failed to read") {
		t.Errorf("read failure = %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai shape", `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, "Incorrect API key provided"},
		{"anthropic shape", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, "Overloaded"},
		{"ollama shape", `{"error":"model \"llama9\" not found"}`, `model "llama9" not found`},
		{"top-level message", `{"message":"rate limited"}`, "rate limited"},
		{"plain text", "  Bad Gateway\n", "Bad Gateway"},
		{"json without message", `{"status":500}`, `{"status":500}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorMessage(tt.body); got != tt.want {
				t.Errorf("ErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

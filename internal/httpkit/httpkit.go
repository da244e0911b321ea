// Package httpkit builds the HTTP clients used to reach model providers
// and decodes the error bodies they return.
//
// Clients built here never retry. A failed round trip is reported to the
// caller as-is.
package httpkit

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/axis/internal/buildinfo"
	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds a whole provider round trip unless overridden.
const DefaultTimeout = 60 * time.Second

// providerHeaderTimeout is generous: a model can think for a long time
// before the first response byte.
const providerHeaderTimeout = 120 * time.Second

// ClientOption adjusts a client built by NewClient.
type ClientOption func(*http.Client)

// WithTimeout sets the overall request timeout. Zero leaves the deadline
// to the request context.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *http.Client) { c.Timeout = d }
}

// NewClient returns a client with a private transport tuned for a small
// number of long-running provider calls. Every request carries the Axis
// User-Agent unless the caller set one.
func NewClient(opts ...ClientOption) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: providerHeaderTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   4,
		ForceAttemptHTTP2:     true,
	}
	c := &http.Client{
		Timeout:   DefaultTimeout,
		Transport: uaTransport{base: transport, agent: buildinfo.UserAgent()},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type uaTransport struct {
	base  http.RoundTripper
	agent string
}

func (t uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.base.RoundTrip(req)
}

// ReadErrorBody returns at most limit bytes of an error response and
// closes rc after draining a little more so the connection can be
// reused.
func ReadErrorBody(rc io.ReadCloser, limit int64) string {
	if rc == nil {
		return ""
	}
	defer rc.Close()
	body, err := io.ReadAll(io.LimitReader(rc, limit))
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1024))
	if err != nil {
		return fmt.Sprintf("(failed to read error body: %v)", err)
	}
	return string(body)
}

// ErrorMessage pulls the human-readable message out of a provider error
// body. OpenAI and Anthropic nest it under error.message; Ollama sends
// a bare "error" string. Anything else comes back trimmed.
func ErrorMessage(body string) string {
	if gjson.Valid(body) {
		for _, path := range []string{"error.message", "message", "error"} {
			if r := gjson.Get(body, path); r.Type == gjson.String && r.String() != "" {
				return r.String()
			}
		}
	}
	return strings.TrimSpace(body)
}

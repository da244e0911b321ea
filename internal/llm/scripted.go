package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedReply is one canned answer for a [ScriptedClient]. When Err
// is set it is returned instead of Text.
type ScriptedReply struct {
	Text string
	Err  error
}

// ScriptedClient replays a fixed sequence of replies. It stands in for
// a real provider wherever deterministic model behavior is needed.
type ScriptedClient struct {
	mu      sync.Mutex
	replies []ScriptedReply
	calls   []Request
}

// NewScriptedClient returns a client that answers successive calls
// with texts in order.
func NewScriptedClient(texts ...string) *ScriptedClient {
	c := &ScriptedClient{}
	for _, t := range texts {
		c.replies = append(c.replies, ScriptedReply{Text: t})
	}
	return c
}

// Push appends a reply to the script.
func (c *ScriptedClient) Push(r ScriptedReply) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, r)
	return c
}

// Provider implements [Client].
func (c *ScriptedClient) Provider() string { return "scripted" }

// Complete implements [Client]. Once the script runs out every call
// fails with [ErrUpstreamUnavailable].
func (c *ScriptedClient) Complete(_ context.Context, req Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, req)
	n := len(c.calls)
	if n > len(c.replies) {
		return nil, fmt.Errorf("scripted client: no reply for call %d: %w", n, ErrUpstreamUnavailable)
	}
	r := c.replies[n-1]
	if r.Err != nil {
		return nil, r.Err
	}
	return &Response{
		Text:         r.Text,
		Model:        "scripted",
		InputTokens:  len(req.System) + len(req.User),
		OutputTokens: len(r.Text),
	}, nil
}

// Calls returns the requests received so far.
func (c *ScriptedClient) Calls() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.calls))
	copy(out, c.calls)
	return out
}

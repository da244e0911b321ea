package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nugget/axis/internal/llm"
)

const (
	replyTool  = "tool"
	replyFinal = "final"
)

// reply is a model turn after validation. Tool replies carry Tool and
// Args; final replies carry Reply and Plan.
type reply struct {
	Type  string
	Tool  string
	Args  map[string]any
	Reply string
	Plan  []string
}

type rawReply struct {
	Type  string          `json:"type"`
	Tool  string          `json:"tool"`
	Args  json.RawMessage `json:"args"`
	Reply any             `json:"reply"`
	Plan  []any           `json:"plan"`
}

var errNoJSON = errors.New("reply is not a JSON object")

// parseReply interprets model output as one of the two reply shapes.
func parseReply(text string) (*reply, error) {
	body := llm.ExtractJSON(text)
	if body == "" || body[0] != '{' {
		return nil, errNoJSON
	}
	var raw rawReply
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errNoJSON, err)
	}

	switch strings.ToLower(strings.TrimSpace(raw.Type)) {
	case replyTool:
		name := strings.TrimSpace(raw.Tool)
		if name == "" {
			return nil, errors.New(`tool reply is missing "tool"`)
		}
		args := map[string]any{}
		if len(raw.Args) > 0 && string(raw.Args) != "null" {
			if err := json.Unmarshal(raw.Args, &args); err != nil {
				return nil, errors.New(`tool reply "args" must be an object`)
			}
		}
		return &reply{Type: replyTool, Tool: name, Args: args}, nil

	case replyFinal:
		r := &reply{Type: replyFinal}
		switch v := raw.Reply.(type) {
		case nil:
		case string:
			r.Reply = strings.TrimSpace(v)
		default:
			return nil, errors.New(`final reply "reply" must be a string`)
		}
		for _, item := range raw.Plan {
			var s string
			switch v := item.(type) {
			case string:
				s = v
			case nil:
				continue
			default:
				s = fmt.Sprint(v)
			}
			if s = strings.TrimSpace(s); s != "" {
				r.Plan = append(r.Plan, s)
			}
		}
		return r, nil

	default:
		return nil, fmt.Errorf(`"type" must be %q or %q, got %q`, replyTool, replyFinal, raw.Type)
	}
}

// render composes the user-facing message: the reply text, then the
// plan and the actions taken as bullet lists.
func render(text string, plan, actions []string) string {
	var parts []string
	if text = strings.TrimSpace(text); text != "" {
		parts = append(parts, text)
	}
	if len(plan) > 0 {
		parts = append(parts, "Plan:\n"+bullets(plan))
	}
	if len(actions) > 0 {
		parts = append(parts, "Actions:\n"+bullets(actions))
	}
	if len(parts) == 0 {
		return "Done."
	}
	return strings.Join(parts, "\n\n")
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

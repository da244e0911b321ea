package agent

import (
	"reflect"
	"testing"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    *reply
		wantErr bool
	}{
		{
			name: "tool call",
			text: `{"type":"tool","tool":"add_task","args":{"name":"Essay"}}`,
			want: &reply{Type: replyTool, Tool: "add_task", Args: map[string]any{"name": "Essay"}},
		},
		{
			name: "tool call without args",
			text: `{"type":"tool","tool":"rebalance_week"}`,
			want: &reply{Type: replyTool, Tool: "rebalance_week", Args: map[string]any{}},
		},
		{
			name: "final with prose around it",
			text: "Here you go:\n{\"type\":\"final\",\"reply\":\" Done for today. \",\"plan\":[\"Rest\", \"\", 3]}",
			want: &reply{Type: replyFinal, Reply: "Done for today.", Plan: []string{"Rest", "3"}},
		},
		{
			name: "final type is case-insensitive",
			text: `{"type":"FINAL"}`,
			want: &reply{Type: replyFinal},
		},
		{name: "plain text", text: "I added it.", wantErr: true},
		{name: "array", text: `[{"type":"final"}]`, wantErr: true},
		{name: "truncated", text: `{"type":"final","reply":"`, wantErr: true},
		{name: "missing type", text: `{"tool":"add_task"}`, wantErr: true},
		{name: "tool without name", text: `{"type":"tool","args":{}}`, wantErr: true},
		{name: "args array", text: `{"type":"tool","tool":"add_task","args":[1]}`, wantErr: true},
		{name: "reply object", text: `{"type":"final","reply":{"text":"hi"}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseReply(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseReply(%q) = %+v, want error", tt.text, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseReply: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		reply   string
		plan    []string
		actions []string
		want    string
	}{
		{"", nil, nil, "Done."},
		{"  ", []string{}, []string{}, "Done."},
		{"Hi.", nil, nil, "Hi."},
		{"", []string{"a", "b"}, nil, "Plan:\n- a\n- b"},
		{"", nil, []string{`Added task "X"`}, "Actions:\n- Added task \"X\""},
		{"Ok.", []string{"a"}, []string{"b"}, "Ok.\n\nPlan:\n- a\n\nActions:\n- b"},
	}
	for _, tt := range tests {
		if got := render(tt.reply, tt.plan, tt.actions); got != tt.want {
			t.Errorf("render(%q, %v, %v) = %q, want %q", tt.reply, tt.plan, tt.actions, got, tt.want)
		}
	}
}

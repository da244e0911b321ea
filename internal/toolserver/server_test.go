package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nugget/axis/internal/planner"
	"github.com/nugget/axis/internal/tools"
)

type memStore struct {
	mu    sync.Mutex
	doc   *planner.Document
	saves int
}

func (m *memStore) LoadDocument(context.Context, string) (*planner.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return planner.New(), nil
	}
	return m.doc.Clone(), nil
}

func (m *memStore) SaveDocument(_ context.Context, _ string, doc *planner.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.doc = doc.Clone()
	return nil
}

func newTestServer(t *testing.T, store *memStore) *Server {
	t.Helper()
	s, err := New(store, tools.NewRegistry(nil, nil), "u1", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("content is %T, want text", res.Content[0])
	}
	return tc.Text
}

func TestCall_SavesOnSuccess(t *testing.T) {
	store := &memStore{}
	s := newTestServer(t, store)

	res, err := s.Call(context.Background(), "add_task", map[string]any{"name": "Essay"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !res.OK || res.TaskID == "" {
		t.Errorf("result = %+v", res)
	}
	if store.saves != 1 || len(store.doc.Tasks) != 1 {
		t.Errorf("saves = %d, doc = %+v", store.saves, store.doc)
	}

	// A second call sees the first call's change.
	if _, err := s.Call(context.Background(), "complete_task", map[string]any{"query": "essay"}); err != nil {
		t.Fatalf("complete_task: %v", err)
	}
	if !store.doc.Tasks[0].Completed {
		t.Error("completion not persisted")
	}
}

func TestCall_FailureDoesNotSave(t *testing.T) {
	store := &memStore{}
	s := newTestServer(t, store)

	res, err := s.Call(context.Background(), "delete_habit", map[string]any{"query": "run"})
	if !errors.Is(err, tools.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if res == nil || res.OK {
		t.Errorf("result = %+v", res)
	}
	if store.saves != 0 {
		t.Errorf("saves = %d, want 0", store.saves)
	}
}

func TestHandler_ToolErrorIsResult(t *testing.T) {
	s := newTestServer(t, &memStore{})

	res, err := s.handler("rebalance_week")(context.Background(), callRequest("rebalance_week", nil))
	if err != nil {
		t.Fatalf("handler returned protocol error: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "precondition failed") {
		t.Errorf("result = %+v", res)
	}
}

func TestHandler_SuccessReturnsJSON(t *testing.T) {
	s := newTestServer(t, &memStore{})

	res, err := s.handler("add_habit")(context.Background(), callRequest("add_habit", map[string]any{"name": "Read", "time": "evening"}))
	if err != nil {
		t.Fatal(err)
	}
	var got tools.Result
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if !got.OK || got.HabitID == "" || got.Action != `Added habit "Read"` {
		t.Errorf("result = %+v", got)
	}
}

func TestGetPlanner(t *testing.T) {
	store := &memStore{doc: planner.New()}
	store.doc.Tasks = []planner.Task{{ID: "t1", Name: "Essay"}}
	s := newTestServer(t, store)

	res, err := s.handleGetPlanner(context.Background(), callRequest("get_planner", nil))
	if err != nil {
		t.Fatal(err)
	}
	doc, err := planner.Decode([]byte(resultText(t, res)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Tasks) != 1 || doc.Tasks[0].ID != "t1" {
		t.Errorf("tasks = %+v", doc.Tasks)
	}
}

func TestToolsList(t *testing.T) {
	s := newTestServer(t, &memStore{})

	resp := s.mcp.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"get_planner", "add_task", "complete_task", "delete_task", "add_habit", "delete_habit", "rebalance_week"} {
		if !strings.Contains(string(data), `"name":"`+name+`"`) {
			t.Errorf("tools/list does not include %s: %s", name, data)
		}
	}
}

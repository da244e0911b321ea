package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/nugget/axis/internal/config"
	"github.com/nugget/axis/internal/planner"
)

type fakeConn struct {
	mu        sync.Mutex
	published []*paho.Publish
	err       error
}

func (f *fakeConn) Publish(_ context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, p)
	return &paho.PublishResponse{}, f.err
}

var now = time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

func testPublisher(conn connection) *Publisher {
	p := New(config.MQTTConfig{DeviceName: "study", PublishTimeoutSec: 1}, "0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b", nil)
	p.now = func() time.Time { return now }
	p.conn = conn
	return p
}

func TestLoadOrCreateInstanceID(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Errorf("%q is not a UUID: %v", first, err)
	}
	second, err := LoadOrCreateInstanceID(dir)
	if err != nil || second != first {
		t.Errorf("second call = %q, %v; want %q", second, err, first)
	}

	data, err := os.ReadFile(filepath.Join(dir, instanceFile))
	if err != nil || strings.TrimSpace(string(data)) != first {
		t.Errorf("file = %q, %v", data, err)
	}
}

func TestClientID(t *testing.T) {
	if got := clientID("study", "0190a1b2-c3d4"); got != "axis-study-0190a1b2" {
		t.Errorf("clientID = %q", got)
	}
	if got := clientID("study", ""); got != "axis-study" {
		t.Errorf("clientID without instance = %q", got)
	}
}

func TestSummaryTopic(t *testing.T) {
	p := testPublisher(nil)
	if got := p.SummaryTopic("u1"); got != "axis/study/users/u1/summary" {
		t.Errorf("SummaryTopic = %q", got)
	}
	if got := p.availabilityTopic(); got != "axis/study/availability" {
		t.Errorf("availabilityTopic = %q", got)
	}
}

func TestBuildSummary(t *testing.T) {
	doc := planner.New()
	doc.Tasks = []planner.Task{
		{ID: "t1", Name: "Essay"},
		{ID: "t2", Name: "Lab"},
		{ID: "t3", Name: "Quiz", Completed: true},
	}
	doc.DailyHabits = []planner.Habit{{ID: "h1", Name: "Run", Time: "07:00"}}
	doc.Schedule = []planner.ScheduleBlock{
		{TaskID: "t1", Start: now.Add(-3 * time.Hour), End: now.Add(-2 * time.Hour)}, // past
		{TaskID: "t2", Start: now.Add(2 * time.Hour), End: now.Add(3 * time.Hour)},
		{TaskID: "t1", Start: now.Add(-30 * time.Minute), End: now.Add(30 * time.Minute)}, // in progress
	}

	s := BuildSummary(doc, now)
	if s.PendingTasks != 2 || s.CompletedTasks != 1 || s.Habits != 1 {
		t.Errorf("counts = %+v", s)
	}
	if s.ScheduledBlocks != 2 {
		t.Errorf("ScheduledBlocks = %d, want 2", s.ScheduledBlocks)
	}
	if s.NextBlock == nil || s.NextBlock.TaskName != "Essay" || !s.NextBlock.Start.Equal(now.Add(-30*time.Minute)) {
		t.Errorf("NextBlock = %+v", s.NextBlock)
	}

	empty := BuildSummary(planner.New(), now)
	data, _ := json.Marshal(empty)
	if !strings.Contains(string(data), `"nextBlock":null`) {
		t.Errorf("empty summary = %s", data)
	}
}

func TestOnSave_PublishesRetainedSummary(t *testing.T) {
	conn := &fakeConn{}
	p := testPublisher(conn)

	doc := planner.New()
	doc.Tasks = []planner.Task{{ID: "t1", Name: "Essay"}}
	p.OnSave(context.Background(), "u1", doc)

	if len(conn.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(conn.published))
	}
	msg := conn.published[0]
	if msg.Topic != "axis/study/users/u1/summary" || !msg.Retain || msg.QoS != 1 {
		t.Errorf("publish = %+v", msg)
	}
	var got Summary
	if err := json.Unmarshal(msg.Payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.PendingTasks != 1 || !got.UpdatedAt.Equal(now) {
		t.Errorf("summary = %+v", got)
	}
}

func TestOnDelete_ClearsRetainedSummary(t *testing.T) {
	conn := &fakeConn{}
	testPublisher(conn).OnDelete(context.Background(), "u1")

	if len(conn.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(conn.published))
	}
	if msg := conn.published[0]; len(msg.Payload) != 0 || !msg.Retain {
		t.Errorf("publish = %+v, want empty retained payload", msg)
	}
}

func TestOnSave_FailuresAreSwallowed(t *testing.T) {
	conn := &fakeConn{err: errors.New("connection down")}
	p := testPublisher(conn)
	p.OnSave(context.Background(), "u1", planner.New())
	if len(conn.published) != 1 {
		t.Errorf("publish attempts = %d", len(conn.published))
	}

	// Not started: nothing to publish to.
	p = testPublisher(nil)
	p.OnSave(context.Background(), "u1", planner.New())
}

func TestMQTTConfig_Configured(t *testing.T) {
	if (config.MQTTConfig{}).Configured() {
		t.Error("empty config should not be configured")
	}
	if !(config.MQTTConfig{Broker: "mqtt://localhost:1883"}).Configured() {
		t.Error("config with broker should be configured")
	}
}

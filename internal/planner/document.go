// Package planner defines a user's planning document: tasks, daily
// habits, the generated schedule, fixed commitments, and the opaque
// collections (goals, reflections, blocking rules) carried alongside
// them. The document is always handled whole; there are no partial
// updates.
package planner

import (
	"encoding/json"
	"time"
)

// Priority is one of the four Eisenhower quadrant labels.
type Priority string

const (
	PriorityUrgentImportant Priority = "Urgent & Important"
	PriorityImportant       Priority = "Not Urgent but Important"
	PriorityUrgent          Priority = "Urgent but Not Important"
	PriorityNeither         Priority = "Not Urgent & Not Important"
)

// Defaults applied to new tasks when the caller leaves a field unset.
const (
	DefaultPriority = PriorityImportant
	DefaultCategory = "study"
)

// Priorities lists every valid priority in quadrant order.
var Priorities = []Priority{
	PriorityUrgentImportant,
	PriorityImportant,
	PriorityUrgent,
	PriorityNeither,
}

// Valid reports whether p is one of the four quadrant labels.
func (p Priority) Valid() bool {
	for _, q := range Priorities {
		if p == q {
			return true
		}
	}
	return false
}

// Task is a unit of work the user wants done.
type Task struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Priority      Priority   `json:"priority"`
	Category      string     `json:"category"`
	DeadlineDate  string     `json:"deadlineDate,omitempty"` // YYYY-MM-DD
	DeadlineTime  string     `json:"deadlineTime,omitempty"` // HH:MM
	DurationHours *float64   `json:"durationHours"`
	Completed     bool       `json:"completed"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	Order         int        `json:"order"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Habit is a recurring daily routine.
type Habit struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Time        string `json:"time"`
	Description string `json:"description,omitempty"`
}

// ScheduleBlock places one task in time. End is strictly after Start.
type ScheduleBlock struct {
	TaskID string    `json:"taskId"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason,omitempty"`
}

// FixedBlock is an immovable commitment such as a class or sleep.
type FixedBlock struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Label    string    `json:"label"`
	Category string    `json:"category,omitempty"`
}

// Profile holds free-form scheduling preferences (wake time, focus
// hours, timezone and so on). A nil Profile means onboarding has not
// happened yet.
type Profile map[string]any

// Document is the per-user planning record.
type Document struct {
	Profile       Profile           `json:"profile"`
	Tasks         []Task            `json:"tasks"`
	DailyHabits   []Habit           `json:"dailyHabits"`
	Schedule      []ScheduleBlock   `json:"schedule"`
	FixedBlocks   []FixedBlock      `json:"fixedBlocks"`
	Goals         []json.RawMessage `json:"goals"`
	Reflections   []json.RawMessage `json:"reflections"`
	BlockingRules []json.RawMessage `json:"blockingRules"`
}

// New returns an empty, normalized document.
func New() *Document {
	d := &Document{}
	d.Normalize()
	return d
}

// Normalize replaces every nil collection with an empty one so the
// document always serializes with all collections present as arrays.
func (d *Document) Normalize() {
	if d.Tasks == nil {
		d.Tasks = []Task{}
	}
	if d.DailyHabits == nil {
		d.DailyHabits = []Habit{}
	}
	if d.Schedule == nil {
		d.Schedule = []ScheduleBlock{}
	}
	if d.FixedBlocks == nil {
		d.FixedBlocks = []FixedBlock{}
	}
	if d.Goals == nil {
		d.Goals = []json.RawMessage{}
	}
	if d.Reflections == nil {
		d.Reflections = []json.RawMessage{}
	}
	if d.BlockingRules == nil {
		d.BlockingRules = []json.RawMessage{}
	}
}

// HasProfile reports whether the user has saved preferences.
func (d *Document) HasProfile() bool {
	return d.Profile != nil
}

// NextOrder returns the order value for a newly added task: one more
// than the largest existing order, or 1 when there are no tasks.
func (d *Document) NextOrder() int {
	max := 0
	for _, t := range d.Tasks {
		if t.Order > max {
			max = t.Order
		}
	}
	return max + 1
}

// IncompleteTasks returns the tasks that are not yet completed, in
// document order.
func (d *Document) IncompleteTasks() []Task {
	var out []Task
	for _, t := range d.Tasks {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out
}

// Clone returns a deep copy via JSON round trip. Opaque collections are
// copied byte for byte.
func (d *Document) Clone() *Document {
	data, err := json.Marshal(d)
	if err != nil {
		// Every field is JSON-native; marshal cannot fail.
		panic(err)
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	out.Normalize()
	return &out
}

// Decode parses a stored document and normalizes it. An empty input
// yields an empty document.
func Decode(data []byte) (*Document, error) {
	d := &Document{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, d); err != nil {
			return nil, err
		}
	}
	d.Normalize()
	return d, nil
}

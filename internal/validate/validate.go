// Package validate holds the schema checks applied to every payload
// that arrives from outside the process: HTTP bodies, tool arguments
// produced by the model, and command-line input.
package validate

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nugget/axis/internal/planner"
)

// Field limits.
const (
	MaxNameLen        = 200
	MaxCategoryLen    = 60
	MaxDescriptionLen = 500
	MaxHabitTimeLen   = 40
	MaxDisplayNameLen = 100
	MinPasswordLen    = 8
	MaxPasswordLen    = 128
	MaxMessageLen     = 4000
	MaxDurationHours  = 100

	MinHorizonDays     = 1
	MaxHorizonDays     = 21
	DefaultHorizonDays = 7
	MinHoursPerDay     = 1
	MaxHoursPerDay     = 16
	DefaultHoursPerDay = 10
)

// Date and time layouts for task deadlines.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Error is a single field failure.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Message
}

// Errors collects every failure found in one payload.
type Errors []*Error

func (es Errors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Err returns nil when no failures were recorded. Always return
// through Err so a typed nil never escapes as a non-nil error.
func (es Errors) Err() error {
	if len(es) == 0 {
		return nil
	}
	return es
}

func (es *Errors) add(field, format string, args ...any) {
	*es = append(*es, &Error{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (es *Errors) maxLen(field, value string, limit int) {
	if utf8.RuneCountInString(value) > limit {
		es.add(field, "must be at most %d characters", limit)
	}
}

// Registration checks a new account request.
func Registration(email, password, name string) error {
	var errs Errors
	Email(&errs, email)
	Password(&errs, "password", password)
	name = strings.TrimSpace(name)
	if name == "" {
		errs.add("name", "is required")
	}
	errs.maxLen("name", name, MaxDisplayNameLen)
	return errs.Err()
}

// DisplayName checks a profile name update.
func DisplayName(name string) error {
	var errs Errors
	name = strings.TrimSpace(name)
	if name == "" {
		errs.add("name", "is required")
	}
	errs.maxLen("name", name, MaxDisplayNameLen)
	return errs.Err()
}

// Email appends a failure when s is not a bare email address.
func Email(errs *Errors, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		errs.add("email", "is required")
		return
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		errs.add("email", "is not a valid address")
	}
}

// Password appends a failure when s is outside the accepted length.
func Password(errs *Errors, field, s string) {
	n := utf8.RuneCountInString(s)
	if n < MinPasswordLen {
		errs.add(field, "must be at least %d characters", MinPasswordLen)
	}
	if n > MaxPasswordLen {
		errs.add(field, "must be at most %d characters", MaxPasswordLen)
	}
}

// TaskInput is the externally supplied shape of a new task.
type TaskInput struct {
	Name          string   `json:"name"`
	Priority      string   `json:"priority"`
	Category      string   `json:"category"`
	DeadlineDate  string   `json:"deadlineDate"`
	DeadlineTime  string   `json:"deadlineTime"`
	DurationHours *float64 `json:"durationHours"`
}

// Task checks task fields. Empty optional fields are accepted; the
// caller applies defaults.
func Task(in TaskInput) error {
	var errs Errors
	if strings.TrimSpace(in.Name) == "" {
		errs.add("name", "is required")
	}
	errs.maxLen("name", in.Name, MaxNameLen)
	if in.Priority != "" && !planner.Priority(in.Priority).Valid() {
		errs.add("priority", "must be one of %q, %q, %q, %q", planner.Priorities[0], planner.Priorities[1], planner.Priorities[2], planner.Priorities[3])
	}
	errs.maxLen("category", in.Category, MaxCategoryLen)
	if in.DeadlineDate != "" {
		if _, err := time.Parse(DateLayout, in.DeadlineDate); err != nil {
			errs.add("deadlineDate", "must be YYYY-MM-DD")
		}
	}
	if in.DeadlineTime != "" {
		if _, err := time.Parse(TimeLayout, in.DeadlineTime); err != nil {
			errs.add("deadlineTime", "must be HH:MM")
		}
		if in.DeadlineDate == "" {
			errs.add("deadlineTime", "requires deadlineDate")
		}
	}
	if in.DurationHours != nil {
		d := *in.DurationHours
		if d <= 0 || d > MaxDurationHours {
			errs.add("durationHours", "must be greater than 0 and at most %d", MaxDurationHours)
		}
	}
	return errs.Err()
}

// HabitInput is the externally supplied shape of a new habit.
type HabitInput struct {
	Name        string `json:"name"`
	Time        string `json:"time"`
	Description string `json:"description"`
}

// Habit checks habit fields. Name and time are both required.
func Habit(in HabitInput) error {
	var errs Errors
	if strings.TrimSpace(in.Name) == "" {
		errs.add("name", "is required")
	}
	errs.maxLen("name", in.Name, MaxNameLen)
	if strings.TrimSpace(in.Time) == "" {
		errs.add("time", "is required")
	}
	errs.maxLen("time", in.Time, MaxHabitTimeLen)
	errs.maxLen("description", in.Description, MaxDescriptionLen)
	return errs.Err()
}

// AssistantMessage trims msg and checks its length. An empty result is
// valid; the assistant answers it with a prompt for input.
func AssistantMessage(msg string) (string, error) {
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) > MaxMessageLen {
		return "", &Error{Field: "message", Message: fmt.Sprintf("must be at most %d characters", MaxMessageLen)}
	}
	return msg, nil
}

// Horizon checks the rebalance window. Callers substitute the defaults
// for absent values before calling; an explicit zero is out of range.
func Horizon(horizonDays, maxHoursPerDay int) (int, int, error) {
	var errs Errors
	if horizonDays < MinHorizonDays || horizonDays > MaxHorizonDays {
		errs.add("horizonDays", "must be between %d and %d", MinHorizonDays, MaxHorizonDays)
	}
	if maxHoursPerDay < MinHoursPerDay || maxHoursPerDay > MaxHoursPerDay {
		errs.add("maxHoursPerDay", "must be between %d and %d", MinHoursPerDay, MaxHoursPerDay)
	}
	return horizonDays, maxHoursPerDay, errs.Err()
}

// FixedBlocks checks a replacement set of fixed commitments.
func FixedBlocks(blocks []planner.FixedBlock) error {
	var errs Errors
	for i, b := range blocks {
		field := fmt.Sprintf("fixedBlocks[%d]", i)
		if strings.TrimSpace(b.Label) == "" {
			errs.add(field+".label", "is required")
		}
		errs.maxLen(field+".label", b.Label, MaxNameLen)
		if b.Start.IsZero() || b.End.IsZero() {
			errs.add(field, "start and end are required")
		} else if !b.End.After(b.Start) {
			errs.add(field, "end must be after start")
		}
	}
	return errs.Err()
}

// Document checks a whole planning document supplied by a client.
// Opaque collections are not inspected.
func Document(doc *planner.Document) error {
	var errs Errors
	ids := make(map[string]bool, len(doc.Tasks))
	for i, t := range doc.Tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		if t.ID == "" {
			errs.add(field+".id", "is required")
		} else if ids[t.ID] {
			errs.add(field+".id", "duplicates %q", t.ID)
		}
		ids[t.ID] = true
		if err := Task(TaskInput{
			Name:          t.Name,
			Priority:      string(t.Priority),
			Category:      t.Category,
			DeadlineDate:  t.DeadlineDate,
			DeadlineTime:  t.DeadlineTime,
			DurationHours: t.DurationHours,
		}); err != nil {
			for _, e := range err.(Errors) {
				errs.add(field+"."+e.Field, "%s", e.Message)
			}
		}
	}
	for i, h := range doc.DailyHabits {
		field := fmt.Sprintf("dailyHabits[%d]", i)
		if h.ID == "" {
			errs.add(field+".id", "is required")
		}
		if err := Habit(HabitInput{Name: h.Name, Time: h.Time, Description: h.Description}); err != nil {
			for _, e := range err.(Errors) {
				errs.add(field+"."+e.Field, "%s", e.Message)
			}
		}
	}
	for i, b := range doc.Schedule {
		field := fmt.Sprintf("schedule[%d]", i)
		if !ids[b.TaskID] {
			errs.add(field+".taskId", "references unknown task %q", b.TaskID)
		}
		if !b.End.After(b.Start) {
			errs.add(field, "end must be after start")
		}
	}
	if err := FixedBlocks(doc.FixedBlocks); err != nil {
		errs = append(errs, err.(Errors)...)
	}
	return errs.Err()
}

// Reschedule checks a direct schedule generation request and resolves
// its window the way [Horizon] does.
func Reschedule(tasks []planner.Task, fixed []planner.FixedBlock, horizonDays, maxHoursPerDay int) (int, int, error) {
	var errs Errors
	if len(tasks) == 0 {
		errs.add("tasks", "must contain at least one task")
	}
	ids := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		switch {
		case t.ID == "":
			errs.add(field+".id", "is required")
		case ids[t.ID]:
			errs.add(field+".id", "duplicates %q", t.ID)
		}
		ids[t.ID] = true
		if strings.TrimSpace(t.Name) == "" {
			errs.add(field+".name", "is required")
		}
		errs.maxLen(field+".name", t.Name, MaxNameLen)
	}
	if err := FixedBlocks(fixed); err != nil {
		errs = append(errs, err.(Errors)...)
	}
	horizonDays, maxHoursPerDay, err := Horizon(horizonDays, maxHoursPerDay)
	if err != nil {
		errs = append(errs, err.(Errors)...)
	}
	return horizonDays, maxHoursPerDay, errs.Err()
}

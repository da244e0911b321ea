package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nugget/axis/internal/planner"
	"github.com/nugget/axis/internal/tools"
)

const (
	maxFieldLen    = 160
	maxProfileKeys = 30
	maxLogValueLen = 300
)

// systemPrompt describes the reply contract and the tool catalogue. It
// is the same for every step of a run.
func systemPrompt(catalogue []*tools.Tool) string {
	var sb strings.Builder
	sb.WriteString(`You are a planning assistant. You help one student manage their tasks, daily habits and weekly schedule by calling tools that change their planner.

Each turn you receive the current planner snapshot, the user's message, and the results of the tools you have already called in this conversation. Reply with exactly one JSON object and nothing else, in one of two shapes:

{"type": "tool", "tool": "<tool name>", "args": {...}}
  Call one tool. You will see its result on the next turn.

{"type": "final", "reply": "<message to the user>", "plan": ["<short step>", ...]}
  Finish the conversation. Keep the reply brief. The plan may be empty.

Rules:
- Call one tool per turn. Never claim to have done something a tool result does not show.
- Prefer ids from the snapshot over name queries. A query must match exactly one name.
- If a tool fails, read the error and either correct the call or explain the problem in your final reply.
- Finish as soon as the request is handled. You have a small, fixed number of turns.

Tools:
`)
	for _, t := range catalogue {
		params, err := json.Marshal(t.Parameters)
		if err != nil {
			params = []byte("{}")
		}
		fmt.Fprintf(&sb, "- %s: %s\n  args: %s\n", t.Name, t.Description, params)
	}
	return sb.String()
}

type taskView struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Priority      string   `json:"priority"`
	Category      string   `json:"category,omitempty"`
	DeadlineDate  string   `json:"deadlineDate,omitempty"`
	DeadlineTime  string   `json:"deadlineTime,omitempty"`
	DurationHours *float64 `json:"durationHours,omitempty"`
	Completed     bool     `json:"completed"`
}

type habitView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Time        string `json:"time"`
	Description string `json:"description,omitempty"`
}

type snapshot struct {
	Profile        map[string]any `json:"profile"`
	Tasks          []taskView     `json:"tasks"`
	TasksOmitted   int            `json:"tasksOmitted,omitempty"`
	Habits         []habitView    `json:"dailyHabits"`
	HabitsOmitted  int            `json:"habitsOmitted,omitempty"`
	ScheduleBlocks int            `json:"scheduleBlocks"`
	FixedBlocks    int            `json:"fixedBlocks"`
}

// newSnapshot condenses doc to the bounded view the model sees.
func newSnapshot(doc *planner.Document, limits Limits) snapshot {
	s := snapshot{
		Profile:        planner.SafeProfile(doc.Profile, maxProfileKeys, maxFieldLen),
		Tasks:          []taskView{},
		Habits:         []habitView{},
		ScheduleBlocks: len(doc.Schedule),
		FixedBlocks:    len(doc.FixedBlocks),
	}
	for i, t := range doc.Tasks {
		if i == limits.MaxTasks {
			s.TasksOmitted = len(doc.Tasks) - i
			break
		}
		s.Tasks = append(s.Tasks, taskView{
			ID:            planner.Clip(t.ID, maxFieldLen),
			Name:          planner.Clip(t.Name, maxFieldLen),
			Priority:      planner.Clip(string(t.Priority), maxFieldLen),
			Category:      planner.Clip(t.Category, maxFieldLen),
			DeadlineDate:  planner.Clip(t.DeadlineDate, maxFieldLen),
			DeadlineTime:  planner.Clip(t.DeadlineTime, maxFieldLen),
			DurationHours: t.DurationHours,
			Completed:     t.Completed,
		})
	}
	for i, h := range doc.DailyHabits {
		if i == limits.MaxHabits {
			s.HabitsOmitted = len(doc.DailyHabits) - i
			break
		}
		s.Habits = append(s.Habits, habitView{
			ID:          planner.Clip(h.ID, maxFieldLen),
			Name:        planner.Clip(h.Name, maxFieldLen),
			Time:        planner.Clip(h.Time, maxFieldLen),
			Description: planner.Clip(h.Description, maxFieldLen),
		})
	}
	return s
}

// logEntry is one line of the results log fed back to the model.
type logEntry struct {
	Step   int            `json:"step"`
	Tool   string         `json:"tool,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	OK     bool           `json:"ok"`
	Result *tools.Result  `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func toolEntry(step int, name string, args map[string]any, res *tools.Result) logEntry {
	e := logEntry{Step: step, Tool: planner.Clip(name, maxFieldLen)}
	if len(args) > 0 {
		e.Args = make(map[string]any, len(args))
		for k, v := range args {
			e.Args[planner.Clip(k, maxFieldLen)] = planner.SafeValue(v, maxLogValueLen)
		}
	}
	if res != nil {
		e.OK = res.OK
		if res.OK {
			e.Result = res
		} else {
			e.Error = planner.Clip(res.Error, maxLogValueLen)
		}
	}
	return e
}

func replyFailure(step int, err error) logEntry {
	return logEntry{
		Step:  step,
		Error: planner.Clip("your previous reply could not be used: "+err.Error(), maxLogValueLen),
	}
}

type userPayload struct {
	Now       string     `json:"now"`
	Planner   snapshot   `json:"planner"`
	Results   []logEntry `json:"toolResults"`
	StepsUsed int        `json:"stepsUsed"`
	MaxSteps  int        `json:"maxSteps"`
	Message   string     `json:"message"`
}

func (l *Loop) userPrompt(doc *planner.Document, message string, entries []logEntry) (string, error) {
	if entries == nil {
		entries = []logEntry{}
	}
	payload := userPayload{
		Now:       l.now().UTC().Format(time.RFC3339),
		Planner:   newSnapshot(doc, l.limits),
		Results:   entries,
		StepsUsed: len(entries),
		MaxSteps:  l.limits.MaxSteps,
		Message:   message,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	return string(data), nil
}

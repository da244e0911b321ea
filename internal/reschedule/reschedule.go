// Package reschedule asks the remote model for a complete set of time
// blocks and accepts only the blocks that survive local validation.
// The model does the scheduling; this package decides what it is
// allowed to return.
package reschedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/axis/internal/llm"
	"github.com/nugget/axis/internal/planner"
)

// ErrInvalidResult is returned when the model's output yields no
// acceptable block. A partial or inferred schedule is never returned
// in its place.
var ErrInvalidResult = errors.New("model returned no valid schedule blocks")

// ErrNoTasks is returned before any model call when the request has
// nothing to schedule. It describes the caller's input, not the model.
var ErrNoTasks = errors.New("no incomplete tasks to schedule")

// Prompt bounds.
const (
	maxPromptTasks    = 60
	maxPromptFixed    = 40
	maxPromptSchedule = 80
	maxProfileKeys    = 30
	maxFieldLen       = 160
	maxReasonLen      = 200
)

// Request is everything the model needs to lay out a schedule.
type Request struct {
	Tasks          []planner.Task          `json:"tasks"`
	FixedBlocks    []planner.FixedBlock    `json:"fixedBlocks"`
	Schedule       []planner.ScheduleBlock `json:"schedule"`
	Profile        planner.Profile         `json:"profile"`
	HorizonDays    int                     `json:"horizonDays"`
	MaxHoursPerDay int                     `json:"maxHoursPerDay"`
	// Now anchors the horizon. Zero means the current time.
	Now time.Time `json:"-"`
}

// Generator produces validated schedules.
type Generator struct {
	client      llm.Client
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// NewGenerator creates a generator that calls client with the given
// sampling settings.
func NewGenerator(client llm.Client, temperature float64, maxTokens int, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		client:      client,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger.With("component", "reschedule"),
	}
}

// Generate makes one model call and returns the accepted blocks.
// Transport failures are returned as the llm package reports them;
// anything the model says that leaves no valid block is
// [ErrInvalidResult]. An empty task list is [ErrNoTasks].
func (g *Generator) Generate(ctx context.Context, req Request) ([]planner.ScheduleBlock, error) {
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	if len(req.Tasks) == 0 {
		return nil, ErrNoTasks
	}

	known := make(map[string]bool, len(req.Tasks))
	for _, t := range req.Tasks {
		known[t.ID] = true
	}

	user, err := buildUserPrompt(req)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("requesting schedule",
		"tasks", len(req.Tasks),
		"fixed_blocks", len(req.FixedBlocks),
		"horizon_days", req.HorizonDays,
		"max_hours_per_day", req.MaxHoursPerDay,
	)

	resp, err := g.client.Complete(ctx, llm.Request{
		System:      systemPrompt,
		User:        user,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("reschedule: %w", err)
	}

	cands, err := ParseCandidates(resp.Text)
	if err != nil {
		g.logger.Warn("unparseable schedule output", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}

	accepted, rejected := Validate(cands, known, req.FixedBlocks, req.MaxHoursPerDay)
	for _, r := range rejected {
		g.logger.Debug("block rejected", "task_id", r.Candidate.TaskID, "start", r.Candidate.Start, "reason", r.Reason)
	}
	g.logger.Info("schedule generated",
		"candidates", len(cands),
		"accepted", len(accepted),
		"rejected", len(rejected),
	)

	if len(accepted) == 0 {
		return nil, fmt.Errorf("%w: %d candidates, none acceptable", ErrInvalidResult, len(cands))
	}
	return accepted, nil
}

// ParseCandidates reads the model output. Both {"blocks": [...]} and a
// bare array are accepted.
func ParseCandidates(text string) ([]Candidate, error) {
	raw := llm.ExtractJSON(text)
	if strings.HasPrefix(raw, "[") {
		var cands []Candidate
		if err := json.Unmarshal([]byte(raw), &cands); err != nil {
			return nil, fmt.Errorf("decode block array: %w", err)
		}
		return cands, nil
	}
	var wrapped struct {
		Blocks []Candidate `json:"blocks"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, fmt.Errorf("decode blocks object: %w", err)
	}
	return wrapped.Blocks, nil
}

const systemPrompt = `You are a scheduling engine for a student planner.
Place the given tasks into time blocks within the planning horizon.

Rules:
- Never overlap a fixed block.
- Never overlap another returned block.
- Only use taskId values from the task list.
- Stay within maxHoursPerDay of scheduled work per day.
- Every block is at least 15 minutes long and ends after it starts.
- Schedule higher-priority and earlier-deadline tasks first.
- Respect the user's profile preferences (wake time, focus hours, breaks).
- Use ISO-8601 UTC instants, e.g. 2025-03-03T09:00:00Z.

Respond with JSON only:
{"blocks":[{"taskId":"...","start":"...","end":"...","reason":"short explanation"}]}`

type promptTask struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Priority      string   `json:"priority"`
	Category      string   `json:"category,omitempty"`
	Deadline      string   `json:"deadline,omitempty"`
	DurationHours *float64 `json:"durationHours,omitempty"`
}

type promptBlock struct {
	Label  string `json:"label,omitempty"`
	TaskID string `json:"taskId,omitempty"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

func buildUserPrompt(req Request) (string, error) {
	now := req.Now.UTC()
	payload := struct {
		Now            string         `json:"now"`
		HorizonStart   string         `json:"horizonStart"`
		HorizonEnd     string         `json:"horizonEnd"`
		MaxHoursPerDay int            `json:"maxHoursPerDay"`
		Profile        map[string]any `json:"profile"`
		Tasks          []promptTask   `json:"tasks"`
		FixedBlocks    []promptBlock  `json:"fixedBlocks"`
		CurrentBlocks  []promptBlock  `json:"currentSchedule"`
	}{
		Now:            now.Format(time.RFC3339),
		HorizonStart:   now.Format(time.RFC3339),
		HorizonEnd:     now.AddDate(0, 0, req.HorizonDays).Format(time.RFC3339),
		MaxHoursPerDay: req.MaxHoursPerDay,
		Profile:        planner.SafeProfile(req.Profile, maxProfileKeys, maxFieldLen),
		Tasks:          []promptTask{},
		FixedBlocks:    []promptBlock{},
		CurrentBlocks:  []promptBlock{},
	}

	for i, t := range req.Tasks {
		if i == maxPromptTasks {
			break
		}
		pt := promptTask{
			ID:            planner.Clip(t.ID, maxFieldLen),
			Name:          planner.Clip(t.Name, maxFieldLen),
			Priority:      string(t.Priority),
			Category:      planner.Clip(t.Category, maxFieldLen),
			DurationHours: t.DurationHours,
		}
		if t.DeadlineDate != "" {
			pt.Deadline = strings.TrimSpace(t.DeadlineDate + " " + t.DeadlineTime)
		}
		payload.Tasks = append(payload.Tasks, pt)
	}
	for i, f := range req.FixedBlocks {
		if i == maxPromptFixed {
			break
		}
		payload.FixedBlocks = append(payload.FixedBlocks, promptBlock{
			Label: planner.Clip(f.Label, maxFieldLen),
			Start: f.Start.UTC().Format(time.RFC3339),
			End:   f.End.UTC().Format(time.RFC3339),
		})
	}
	for i, b := range req.Schedule {
		if i == maxPromptSchedule {
			break
		}
		payload.CurrentBlocks = append(payload.CurrentBlocks, promptBlock{
			TaskID: planner.Clip(b.TaskID, maxFieldLen),
			Start:  b.Start.UTC().Format(time.RFC3339),
			End:    b.End.UTC().Format(time.RFC3339),
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode schedule prompt: %w", err)
	}
	return string(data), nil
}

// Package tools defines the operations the assistant, the HTTP API and
// the command-line tool server may perform on a planning document.
package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/nugget/axis/internal/planner"
	"github.com/nugget/axis/internal/reschedule"
)

// Result is what every tool call returns. On failure OK is false and
// Error carries the message; the remaining fields are set by the tools
// that produce them.
type Result struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
	HabitID string `json:"habitId,omitempty"`
	Blocks  int    `json:"blocks,omitempty"`
	Action  string `json:"action,omitempty"`
}

// Handler mutates doc according to args. It returns a non-nil Result
// on success and an error from the package taxonomy on failure.
type Handler func(ctx context.Context, doc *planner.Document, args map[string]any) (*Result, error)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     Handler        `json:"-"`
}

// Scheduler produces a replacement schedule. [reschedule.Generator]
// is the production implementation.
type Scheduler interface {
	Generate(ctx context.Context, req reschedule.Request) ([]planner.ScheduleBlock, error)
}

// Registry holds available tools.
type Registry struct {
	tools     map[string]*Tool
	order     []string
	scheduler Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

// NewRegistry creates a registry with the planner tools installed.
// sched may be nil, in which case rebalance_week fails its
// precondition check.
func NewRegistry(sched Scheduler, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:     make(map[string]*Tool),
		scheduler: sched,
		logger:    logger.With("component", "tools"),
		now:       time.Now,
	}
	r.registerTaskTools()
	r.registerHabitTools()
	r.registerScheduleTools()
	return r
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tools in registration order.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Execute runs a tool by name against doc. The returned Result is
// never nil. Failures are reported both in the Result and as an error
// that matches one of the package sentinels (or *ErrToolUnavailable,
// or an error from the scheduler) under errors.Is/As.
func (r *Registry) Execute(ctx context.Context, doc *planner.Document, name string, args map[string]any) (*Result, error) {
	tool := r.tools[name]
	if tool == nil {
		err := &ErrToolUnavailable{ToolName: name}
		return &Result{Error: err.Error()}, err
	}
	if args == nil {
		args = map[string]any{}
	}

	res, err := tool.Handler(ctx, doc, args)
	if err != nil {
		r.logger.Debug("tool failed", "tool", name, "error", err)
		return &Result{Error: err.Error()}, err
	}
	res.OK = true
	r.logger.Debug("tool executed", "tool", name, "action", res.Action)
	return res, nil
}

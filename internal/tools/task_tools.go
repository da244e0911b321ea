package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/axis/internal/planner"
	"github.com/nugget/axis/internal/validate"
)

func selectorProperties(kind, idKey string) map[string]any {
	return map[string]any{
		idKey: map[string]any{
			"type":        "string",
			"description": fmt.Sprintf("Exact %s id. Preferred when known.", kind),
		},
		"query": map[string]any{
			"type":        "string",
			"description": fmt.Sprintf("Case-insensitive fragment of the %s name. Must match exactly one %s.", kind, kind),
		},
	}
}

func (r *Registry) registerTaskTools() {
	priorities := make([]string, len(planner.Priorities))
	for i, p := range planner.Priorities {
		priorities[i] = string(p)
	}

	r.Register(&Tool{
		Name:        "add_task",
		Description: "Add a task to the user's list.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Short task name",
				},
				"priority": map[string]any{
					"type":        "string",
					"enum":        priorities,
					"description": fmt.Sprintf("Eisenhower quadrant (default %q)", planner.DefaultPriority),
				},
				"category": map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("Free-text category (default %q)", planner.DefaultCategory),
				},
				"deadlineDate": map[string]any{
					"type":        "string",
					"description": "Due date, YYYY-MM-DD",
				},
				"deadlineTime": map[string]any{
					"type":        "string",
					"description": "Due time, HH:MM (24h). Requires deadlineDate.",
				},
				"durationHours": map[string]any{
					"type":        "number",
					"description": "Estimated hours of work",
				},
			},
			"required": []string{"name"},
		},
		Handler: r.handleAddTask,
	})

	r.Register(&Tool{
		Name:        "complete_task",
		Description: "Mark a task as completed. Give taskId, or a query matching exactly one task name.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": selectorProperties("task", "taskId"),
		},
		Handler: r.handleCompleteTask,
	})

	r.Register(&Tool{
		Name:        "delete_task",
		Description: "Delete a task and any schedule blocks for it. Give taskId, or a query matching exactly one task name.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": selectorProperties("task", "taskId"),
		},
		Handler: r.handleDeleteTask,
	})
}

func (r *Registry) handleAddTask(_ context.Context, doc *planner.Document, args map[string]any) (*Result, error) {
	var in validate.TaskInput
	var err error
	if in.Name, err = stringArg(args, "name"); err != nil {
		return nil, err
	}
	if in.Priority, err = stringArg(args, "priority"); err != nil {
		return nil, err
	}
	if in.Category, err = stringArg(args, "category"); err != nil {
		return nil, err
	}
	if in.DeadlineDate, err = stringArg(args, "deadlineDate"); err != nil {
		return nil, err
	}
	if in.DeadlineTime, err = stringArg(args, "deadlineTime"); err != nil {
		return nil, err
	}
	if in.DurationHours, err = floatArg(args, "durationHours"); err != nil {
		return nil, err
	}
	if err := validate.Task(in); err != nil {
		return nil, invalidArgs("%v", err)
	}

	task := NewTask(doc, in, r.now())
	doc.Tasks = append(doc.Tasks, task)

	return &Result{
		TaskID: task.ID,
		Action: fmt.Sprintf("Added task %q", task.Name),
	}, nil
}

// NewTask builds a task from validated input with defaults applied and
// the next display order for doc. It does not add the task to doc.
func NewTask(doc *planner.Document, in validate.TaskInput, now time.Time) planner.Task {
	priority := planner.Priority(in.Priority)
	if priority == "" {
		priority = planner.DefaultPriority
	}
	category := in.Category
	if category == "" {
		category = planner.DefaultCategory
	}
	return planner.Task{
		ID:            newID(),
		Name:          in.Name,
		Priority:      priority,
		Category:      category,
		DeadlineDate:  in.DeadlineDate,
		DeadlineTime:  in.DeadlineTime,
		DurationHours: in.DurationHours,
		Order:         doc.NextOrder(),
		CreatedAt:     now.UTC(),
	}
}

func (r *Registry) handleCompleteTask(_ context.Context, doc *planner.Document, args map[string]any) (*Result, error) {
	i, err := findTask(doc, args)
	if err != nil {
		return nil, err
	}
	task := &doc.Tasks[i]
	if !task.Completed {
		now := r.now().UTC()
		task.Completed = true
		task.CompletedAt = &now
	}
	return &Result{
		TaskID: task.ID,
		Action: fmt.Sprintf("Completed task %q", task.Name),
	}, nil
}

func (r *Registry) handleDeleteTask(_ context.Context, doc *planner.Document, args map[string]any) (*Result, error) {
	i, err := findTask(doc, args)
	if err != nil {
		return nil, err
	}
	task := doc.Tasks[i]
	doc.Tasks = append(doc.Tasks[:i], doc.Tasks[i+1:]...)

	kept := doc.Schedule[:0]
	for _, b := range doc.Schedule {
		if b.TaskID != task.ID {
			kept = append(kept, b)
		}
	}
	doc.Schedule = kept

	return &Result{
		TaskID: task.ID,
		Action: fmt.Sprintf("Deleted task %q", task.Name),
	}, nil
}

func findTask(doc *planner.Document, args map[string]any) (int, error) {
	id, err := stringArg(args, "taskId")
	if err != nil {
		return -1, err
	}
	query, err := stringArg(args, "query")
	if err != nil {
		return -1, err
	}
	i, err := doc.FindTask(id, query)
	return i, selectorError("task", id, query, err)
}

// selectorError maps resolution failures onto the tool taxonomy.
func selectorError(kind, id, query string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, planner.ErrNoSelector):
		return invalidArgs("%sId or query is required", kind)
	case id != "":
		return notFound("no %s with id %q", kind, id)
	case errors.Is(err, planner.ErrAmbiguous):
		return notFound("%q matches more than one %s; use the %s id", query, kind, kind)
	default:
		return notFound("no %s matches %q", kind, query)
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

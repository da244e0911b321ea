package tools

import (
	"context"
	"fmt"

	"github.com/nugget/axis/internal/planner"
	"github.com/nugget/axis/internal/validate"
)

func (r *Registry) registerHabitTools() {
	r.Register(&Tool{
		Name:        "add_habit",
		Description: "Add a daily habit.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Habit name",
				},
				"time": map[string]any{
					"type":        "string",
					"description": "When in the day, free text (e.g. morning, 07:30, after lunch)",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Optional details",
				},
			},
			"required": []string{"name", "time"},
		},
		Handler: r.handleAddHabit,
	})

	r.Register(&Tool{
		Name:        "delete_habit",
		Description: "Delete a daily habit. Give habitId, or a query matching exactly one habit name.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": selectorProperties("habit", "habitId"),
		},
		Handler: r.handleDeleteHabit,
	})
}

func (r *Registry) handleAddHabit(_ context.Context, doc *planner.Document, args map[string]any) (*Result, error) {
	var in validate.HabitInput
	var err error
	if in.Name, err = stringArg(args, "name"); err != nil {
		return nil, err
	}
	if in.Time, err = stringArg(args, "time"); err != nil {
		return nil, err
	}
	if in.Description, err = stringArg(args, "description"); err != nil {
		return nil, err
	}
	if err := validate.Habit(in); err != nil {
		return nil, invalidArgs("%v", err)
	}

	habit := planner.Habit{
		ID:          newID(),
		Name:        in.Name,
		Time:        in.Time,
		Description: in.Description,
	}
	doc.DailyHabits = append(doc.DailyHabits, habit)

	return &Result{
		HabitID: habit.ID,
		Action:  fmt.Sprintf("Added habit %q", habit.Name),
	}, nil
}

func (r *Registry) handleDeleteHabit(_ context.Context, doc *planner.Document, args map[string]any) (*Result, error) {
	id, err := stringArg(args, "habitId")
	if err != nil {
		return nil, err
	}
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	i, err := doc.FindHabit(id, query)
	if err := selectorError("habit", id, query, err); err != nil {
		return nil, err
	}

	habit := doc.DailyHabits[i]
	doc.DailyHabits = append(doc.DailyHabits[:i], doc.DailyHabits[i+1:]...)

	return &Result{
		HabitID: habit.ID,
		Action:  fmt.Sprintf("Deleted habit %q", habit.Name),
	}, nil
}

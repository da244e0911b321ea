package tools

import (
	"context"
	"fmt"

	"github.com/nugget/axis/internal/planner"
	"github.com/nugget/axis/internal/reschedule"
	"github.com/nugget/axis/internal/validate"
)

func (r *Registry) registerScheduleTools() {
	r.Register(&Tool{
		Name:        "rebalance_week",
		Description: "Replace the schedule with freshly generated time blocks for all incomplete tasks, honoring fixed blocks. Requires a saved profile.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"horizonDays": map[string]any{
					"type":        "integer",
					"minimum":     validate.MinHorizonDays,
					"maximum":     validate.MaxHorizonDays,
					"description": fmt.Sprintf("Days ahead to plan (default %d)", validate.DefaultHorizonDays),
				},
				"maxHoursPerDay": map[string]any{
					"type":        "integer",
					"minimum":     validate.MinHoursPerDay,
					"maximum":     validate.MaxHoursPerDay,
					"description": fmt.Sprintf("Cap on scheduled work per day (default %d)", validate.DefaultHoursPerDay),
				},
			},
		},
		Handler: r.handleRebalanceWeek,
	})
}

func (r *Registry) handleRebalanceWeek(ctx context.Context, doc *planner.Document, args map[string]any) (*Result, error) {
	if !doc.HasProfile() {
		return nil, fmt.Errorf("%w: set up a profile before rebalancing the schedule", ErrPreconditionFailed)
	}
	if r.scheduler == nil {
		return nil, fmt.Errorf("%w: schedule generation is not configured", ErrPreconditionFailed)
	}
	tasks := doc.IncompleteTasks()
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrPreconditionFailed, reschedule.ErrNoTasks)
	}

	days, err := intArg(args, "horizonDays", validate.DefaultHorizonDays)
	if err != nil {
		return nil, err
	}
	hours, err := intArg(args, "maxHoursPerDay", validate.DefaultHoursPerDay)
	if err != nil {
		return nil, err
	}
	days, hours, err = validate.Horizon(days, hours)
	if err != nil {
		return nil, invalidArgs("%v", err)
	}

	blocks, err := r.scheduler.Generate(ctx, reschedule.Request{
		Tasks:          tasks,
		FixedBlocks:    doc.FixedBlocks,
		Schedule:       doc.Schedule,
		Profile:        doc.Profile,
		HorizonDays:    days,
		MaxHoursPerDay: hours,
		Now:            r.now(),
	})
	if err != nil {
		return nil, err
	}

	doc.Schedule = blocks
	return &Result{
		Blocks: len(blocks),
		Action: fmt.Sprintf("Rebalanced schedule: %d blocks over the next %d days", len(blocks), days),
	}, nil
}

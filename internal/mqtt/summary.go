package mqtt

import (
	"time"

	"github.com/nugget/axis/internal/planner"
)

// NextBlock is the schedule block in progress or starting soonest.
type NextBlock struct {
	TaskID   string    `json:"taskId"`
	TaskName string    `json:"taskName,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Summary is the retained payload published for each user.
type Summary struct {
	PendingTasks    int        `json:"pendingTasks"`
	CompletedTasks  int        `json:"completedTasks"`
	Habits          int        `json:"habits"`
	ScheduledBlocks int        `json:"scheduledBlocks"`
	NextBlock       *NextBlock `json:"nextBlock"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// BuildSummary condenses doc as of now. ScheduledBlocks counts blocks
// that have not yet ended.
func BuildSummary(doc *planner.Document, now time.Time) Summary {
	s := Summary{
		Habits:    len(doc.DailyHabits),
		UpdatedAt: now.UTC(),
	}
	names := make(map[string]string, len(doc.Tasks))
	for _, t := range doc.Tasks {
		names[t.ID] = t.Name
		if t.Completed {
			s.CompletedTasks++
		} else {
			s.PendingTasks++
		}
	}

	for _, b := range doc.Schedule {
		if !b.End.After(now) {
			continue
		}
		s.ScheduledBlocks++
		if s.NextBlock == nil || b.Start.Before(s.NextBlock.Start) {
			s.NextBlock = &NextBlock{
				TaskID:   b.TaskID,
				TaskName: names[b.TaskID],
				Start:    b.Start.UTC(),
				End:      b.End.UTC(),
			}
		}
	}
	return s
}

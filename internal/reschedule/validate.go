package reschedule

import (
	"sort"
	"strings"
	"time"

	"github.com/nugget/axis/internal/planner"
)

// MinBlockLength is the shortest block the generator accepts.
const MinBlockLength = 15 * time.Minute

// Candidate is one block as the model returned it, before validation.
type Candidate struct {
	TaskID string `json:"taskId"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Reason string `json:"reason"`
}

// Rejection records why a candidate was dropped.
type Rejection struct {
	Candidate Candidate
	Reason    string
}

// instant layouts accepted for candidate start/end, most specific
// first. Layouts without an offset are read as UTC.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func parseInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// dayShares splits [start, end) at UTC midnights and returns the time
// falling on each calendar day.
func dayShares(start, end time.Time) map[string]time.Duration {
	shares := make(map[string]time.Duration, 1)
	for start.Before(end) {
		y, m, d := start.Date()
		midnight := time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
		stop := end
		if midnight.Before(stop) {
			stop = midnight
		}
		shares[start.Format("2006-01-02")] += stop.Sub(start)
		start = stop
	}
	return shares
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Validate checks every candidate independently against the known task
// ids, the fixed commitments, the blocks already accepted, and the
// per-day hour cap (by UTC calendar day, with a block that crosses
// midnight charged to each day for its share; zero disables the cap). Candidates are considered in start order, so when
// two overlap the earlier one wins. Accepted blocks are returned sorted
// by start, in UTC.
func Validate(cands []Candidate, taskIDs map[string]bool, fixed []planner.FixedBlock, maxHoursPerDay int) ([]planner.ScheduleBlock, []Rejection) {
	type parsed struct {
		c          Candidate
		start, end time.Time
	}

	var (
		rejected []Rejection
		ok       []parsed
	)
	reject := func(c Candidate, reason string) {
		rejected = append(rejected, Rejection{Candidate: c, Reason: reason})
	}

	for _, c := range cands {
		if !taskIDs[c.TaskID] {
			reject(c, "unknown task id")
			continue
		}
		start, okStart := parseInstant(c.Start)
		end, okEnd := parseInstant(c.End)
		if !okStart || !okEnd {
			reject(c, "unparseable start or end")
			continue
		}
		if !end.After(start) {
			reject(c, "end is not after start")
			continue
		}
		if end.Sub(start) < MinBlockLength {
			reject(c, "shorter than 15 minutes")
			continue
		}
		ok = append(ok, parsed{c: c, start: start, end: end})
	}

	sort.SliceStable(ok, func(i, j int) bool { return ok[i].start.Before(ok[j].start) })

	dayCap := time.Duration(maxHoursPerDay) * time.Hour
	perDay := make(map[string]time.Duration)
	var accepted []planner.ScheduleBlock

next:
	for _, p := range ok {
		for _, f := range fixed {
			if overlaps(p.start, p.end, f.Start, f.End) {
				reject(p.c, "overlaps fixed block "+f.Label)
				continue next
			}
		}
		for _, a := range accepted {
			if overlaps(p.start, p.end, a.Start, a.End) {
				reject(p.c, "overlaps another block")
				continue next
			}
		}
		shares := dayShares(p.start, p.end)
		if dayCap > 0 {
			for day, d := range shares {
				if perDay[day]+d > dayCap {
					reject(p.c, "exceeds daily hour cap")
					continue next
				}
			}
		}
		for day, d := range shares {
			perDay[day] += d
		}
		accepted = append(accepted, planner.ScheduleBlock{
			TaskID: p.c.TaskID,
			Start:  p.start,
			End:    p.end,
			Reason: planner.Clip(strings.TrimSpace(p.c.Reason), maxReasonLen),
		})
	}

	return accepted, rejected
}

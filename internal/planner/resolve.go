package planner

import (
	"errors"
	"strings"
)

// Resolution errors. Callers decide how each maps to a user-facing
// failure; none of them is ever resolved by guessing.
var (
	ErrNoSelector = errors.New("an id or a query is required")
	ErrNoMatch    = errors.New("no match")
	ErrAmbiguous  = errors.New("query matches more than one item")
)

// FindTask returns the index of the task selected by id or, when id
// is empty, by a case-insensitive substring match of query against
// task names. A query must match exactly one task.
func (d *Document) FindTask(id, query string) (int, error) {
	return resolve(len(d.Tasks), id, query,
		func(i int) string { return d.Tasks[i].ID },
		func(i int) string { return d.Tasks[i].Name })
}

// FindHabit is [Document.FindTask] for daily habits.
func (d *Document) FindHabit(id, query string) (int, error) {
	return resolve(len(d.DailyHabits), id, query,
		func(i int) string { return d.DailyHabits[i].ID },
		func(i int) string { return d.DailyHabits[i].Name })
}

func resolve(n int, id, query string, idAt, nameAt func(int) string) (int, error) {
	id = strings.TrimSpace(id)
	query = strings.ToLower(strings.TrimSpace(query))

	if id != "" {
		for i := 0; i < n; i++ {
			if idAt(i) == id {
				return i, nil
			}
		}
		return -1, ErrNoMatch
	}
	if query == "" {
		return -1, ErrNoSelector
	}

	found := -1
	for i := 0; i < n; i++ {
		if !strings.Contains(strings.ToLower(nameAt(i)), query) {
			continue
		}
		if found >= 0 {
			return -1, ErrAmbiguous
		}
		found = i
	}
	if found < 0 {
		return -1, ErrNoMatch
	}
	return found, nil
}

package taskcache

import (
	"maps"
	"time"

	"github.com/nhle/taskzen/internal/model"
)

// Stats aggregates a task list for dashboards and board headers.
type Stats struct {
	Total int

	// ByStatus always has an entry for every known status.
	ByStatus map[model.TaskStatus]int

	// ByPriority always has an entry for every known priority.
	ByPriority map[model.Priority]int

	Overdue     int
	DueToday    int
	DueTomorrow int
	DueThisWeek int
	Completed   int
}

func (s Stats) clone() Stats {
	c := s
	c.ByStatus = maps.Clone(s.ByStatus)
	c.ByPriority = maps.Clone(s.ByPriority)
	return c
}

// ComputeStats aggregates tasks relative to now. Day boundaries are those
// of now's location. A task is overdue when its status is Overdue, or its
// deadline has passed and it is not Completed. Due-date counts skip
// completed tasks; "this week" is the seven days starting today.
func ComputeStats(tasks []model.Task, now time.Time) Stats {
	s := Stats{
		Total:      len(tasks),
		ByStatus:   make(map[model.TaskStatus]int),
		ByPriority: make(map[model.Priority]int),
	}
	for _, st := range model.AllStatuses() {
		s.ByStatus[st] = 0
	}
	for _, p := range model.AllPriorities() {
		s.ByPriority[p] = 0
	}

	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	tomorrow := today.AddDate(0, 0, 1)
	dayAfter := today.AddDate(0, 0, 2)
	weekEnd := today.AddDate(0, 0, 7)

	for _, t := range tasks {
		s.ByStatus[t.Status]++
		s.ByPriority[t.Priority]++

		if t.Status == model.StatusCompleted {
			s.Completed++
		}
		if t.IsOverdue(now) {
			s.Overdue++
		}

		if t.Deadline == nil || t.Status == model.StatusCompleted {
			continue
		}
		d := t.Deadline.In(loc)
		if !d.Before(today) && d.Before(tomorrow) {
			s.DueToday++
		}
		if !d.Before(tomorrow) && d.Before(dayAfter) {
			s.DueTomorrow++
		}
		if !d.Before(today) && d.Before(weekEnd) {
			s.DueThisWeek++
		}
	}

	return s
}

package service

import (
	"math"
	"time"

	"task-planner/internal/model"
)

// statsWindow is the number of days covered by Stats.CompletedPerDay.
const statsWindow = 7

// Stats are the dashboard numbers of one collection.
type Stats struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Open           int     `json:"open"`
	Overdue        int     `json:"overdue"`
	DueToday       int     `json:"due_today"`
	Repeating      int     `json:"repeating"`
	CompletionRate float64 `json:"completion_rate"`
	// CompletedPerDay[i] counts tasks completed i days before now; index 0 is today.
	CompletedPerDay [statsWindow]int `json:"completed_per_day"`
}

// ComputeStats derives dashboard metrics. A task's completion day is its last update.
func ComputeStats(tasks []model.Task, now time.Time) Stats {
	var st Stats
	today := startOfDay(now)

	for _, task := range tasks {
		st.Total++
		if task.Repetition.Repeats() {
			st.Repeating++
		}
		if task.Completed {
			st.Completed++
			days := int(math.Round(today.Sub(startOfDay(task.UpdatedAt.In(now.Location()))).Hours() / 24))
			if days >= 0 && days < statsWindow {
				st.CompletedPerDay[days]++
			}
			continue
		}
		st.Open++
		if task.DueDate == nil {
			continue
		}
		switch {
		case dueOn(task, now):
			st.DueToday++
			if task.DueDate.Before(now) {
				st.Overdue++
			}
		case task.DueDate.Before(now):
			st.Overdue++
		}
	}

	if st.Total > 0 {
		st.CompletionRate = float64(st.Completed) / float64(st.Total)
	}
	return st
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

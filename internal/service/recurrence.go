package service

import (
	"time"

	"task-planner/internal/model"
)

// NextOccurrence advances base by one repetition step, keeping time of day and location.
// Monthly steps clamp to the last day of the target month (Jan 31 -> Feb 28).
func NextOccurrence(base time.Time, r model.Repetition) time.Time {
	switch r {
	case model.RepeatDaily:
		return base.AddDate(0, 0, 1)
	case model.RepeatWeekly:
		return base.AddDate(0, 0, 7)
	case model.RepeatMonthly:
		return addMonthClamped(base)
	default:
		return base
	}
}

// AdvanceN applies NextOccurrence n times.
func AdvanceN(base time.Time, r model.Repetition, n int) time.Time {
	for i := 0; i < n; i++ {
		base = NextOccurrence(base, r)
	}
	return base
}

func addMonthClamped(base time.Time) time.Time {
	year, month, day := base.Date()
	hour, minute, sec := base.Clock()

	targetYear, targetMonth := year, month+1
	if targetMonth > time.December {
		targetMonth = time.January
		targetYear++
	}
	if last := daysInMonth(targetMonth, targetYear); day > last {
		day = last
	}
	return time.Date(targetYear, targetMonth, day, hour, minute, sec, base.Nanosecond(), base.Location())
}

func daysInMonth(month time.Month, year int) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// followUpDraft builds the next instance of a repeating task. Steps are taken in loc,
// so a stored UTC timestamp keeps the planner's wall clock and calendar month.
// The reminder keeps its offset before the due date; without a due date it advances by one step.
func followUpDraft(task model.Task, now time.Time, loc *time.Location) model.Draft {
	if loc == nil {
		loc = time.Local
	}
	base := now.In(loc)
	if task.DueDate != nil {
		base = task.DueDate.In(loc)
	}
	nextDue := NextOccurrence(base, task.Repetition)

	draft := model.Draft{
		Title:       task.Title,
		Description: task.Description,
		DueDate:     &nextDue,
		Tags:        append([]string(nil), task.Tags...),
		Repetition:  task.Repetition,
	}

	if task.Reminder != nil {
		var next time.Time
		if task.DueDate != nil {
			next = nextDue.Add(task.Reminder.Sub(*task.DueDate))
		} else {
			next = NextOccurrence(task.Reminder.In(loc), task.Repetition)
		}
		draft.Reminder = &next
	}
	return draft
}

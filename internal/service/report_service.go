package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	"task-planner/internal/model"
)

// ReportService builds human-readable summaries for periodic notifications.
type ReportService struct {
	loc *time.Location
}

func NewReportService(loc *time.Location) *ReportService {
	if loc == nil {
		loc = time.Local
	}
	return &ReportService{loc: loc}
}

// DailySummary renders today's agenda for one owner's collection as Telegram HTML.
func (s *ReportService) DailySummary(tasks []model.Task, now time.Time) string {
	now = now.In(s.loc)
	open := openTasks(tasks)

	today := Apply(open, Query{Scope: ScopeToday, SortKey: SortByDueDate, Now: now})

	var overdue, repeating []model.Task
	for _, task := range Apply(open, Query{SortKey: SortByDueDate, Now: now}) {
		if task.DueDate == nil {
			continue
		}
		if task.DueDate.Before(now) && !sameDay(task.DueDate.In(s.loc), now) {
			overdue = append(overdue, task)
			continue
		}
		if task.Repetition.Repeats() && task.DueDate.After(now) && !sameDay(task.DueDate.In(s.loc), now) {
			repeating = append(repeating, task)
		}
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Ежедневный отчёт</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("02.01.2006")))

	builder.WriteString("🔥 <b>На сегодня</b>\n")
	if len(today) == 0 {
		builder.WriteString("— на сегодня задач нет\n")
	}
	for _, task := range today {
		builder.WriteString(formatReportLine(task, s.loc))
	}

	builder.WriteString("\n⚠️ <b>Просрочено</b>\n")
	if len(overdue) == 0 {
		builder.WriteString("— ничего не просрочено\n")
	}
	for _, task := range overdue {
		builder.WriteString(formatReportLine(task, s.loc))
	}

	builder.WriteString("\n♻️ <b>Регулярные задачи</b>\n")
	if len(repeating) == 0 {
		builder.WriteString("— нет запланированных повторов\n")
	}
	for _, task := range repeating {
		builder.WriteString(formatReportLine(task, s.loc))
	}

	return strings.TrimSpace(builder.String())
}

func openTasks(tasks []model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if !task.Completed {
			out = append(out, task)
		}
	}
	return out
}

func formatReportLine(task model.Task, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("• ")
	sb.WriteString(html.EscapeString(strings.TrimSpace(task.Title)))
	if task.DueDate != nil {
		sb.WriteString(fmt.Sprintf(" — %s", task.DueDate.In(loc).Format("02.01 15:04")))
	}
	if len(task.Tags) > 0 {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(strings.Join(task.Tags, ", "))))
	}
	sb.WriteByte('\n')
	return sb.String()
}

package bot

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	"task-planner/internal/model"
	"task-planner/internal/service"
)

const (
	iconDefault   = "🟢"
	iconDue       = "⏳"
	iconOverdue   = "⚠️"
	iconDone      = "✔️"
	iconRecurring = "♻️"
)

// shortIDLen is how many id characters are shown and usually enough to address a task.
const shortIDLen = 8

var errAmbiguousRef = errors.New("ambiguous task reference")

// resolveTask finds a task by full id or by a unique id prefix.
func resolveTask(tasks []model.Task, ref string) (model.Task, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return model.Task{}, fmt.Errorf("%w: empty id", service.ErrTaskNotFound)
	}

	var found []model.Task
	for _, task := range tasks {
		id := strings.ToLower(task.ID)
		if id == ref {
			return task, nil
		}
		if strings.HasPrefix(id, ref) {
			found = append(found, task)
		}
	}
	switch len(found) {
	case 0:
		return model.Task{}, fmt.Errorf("%w: %s", service.ErrTaskNotFound, ref)
	case 1:
		return found[0], nil
	default:
		return model.Task{}, fmt.Errorf("%w: %s", errAmbiguousRef, ref)
	}
}

// parseListArgs reads /tasks arguments: scope words, sort words, #tags; the rest is search text.
func parseListArgs(args string) service.Query {
	query := service.Query{Scope: service.ScopeAll, SortKey: service.SortByDueDate}
	var search []string
	for _, word := range strings.Fields(args) {
		lower := strings.ToLower(word)
		switch {
		case strings.HasPrefix(word, "#"):
			if tag := strings.TrimPrefix(word, "#"); tag != "" {
				query.RequiredTags = append(query.RequiredTags, tag)
			}
		case lower == "today" || lower == "сегодня":
			query.Scope = service.ScopeToday
		case lower == "all" || lower == "все":
			query.Scope = service.ScopeAll
		case lower == "title" || lower == "алфавит":
			query.SortKey = service.SortByTitle
		case lower == "due" || lower == "срок":
			query.SortKey = service.SortByDueDate
		default:
			search = append(search, word)
		}
	}
	query.SearchText = strings.Join(search, " ")
	return query
}

// matchKnownTags maps tags typed in any case onto the spelling used in the collection.
func matchKnownTags(tags, known []string) []string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = tag
		for _, k := range known {
			if strings.EqualFold(k, tag) {
				out[i] = k
				break
			}
		}
	}
	return out
}

func describeQuery(q service.Query) string {
	var parts []string
	if len(q.RequiredTags) > 0 {
		parts = append(parts, "теги: "+formatTags(q.RequiredTags))
	}
	if q.SearchText != "" {
		parts = append(parts, fmt.Sprintf("поиск: «%s»", escape(q.SearchText)))
	}
	if q.SortKey == service.SortByTitle {
		parts = append(parts, "по названию")
	}
	if len(parts) == 0 {
		return ""
	}
	return "<i>" + strings.Join(parts, " · ") + "</i>"
}

// parseTags splits comma or space separated tags and drops a leading '#'.
func parseTags(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	tags := make([]string, 0, len(fields))
	for _, field := range fields {
		tags = append(tags, strings.TrimLeft(field, "#"))
	}
	return model.NormalizeTags(tags)
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006",
}

// parseDateTime reads a date with an optional time in loc. A bare date means midnight.
func parseDateTime(text string, loc *time.Location) (time.Time, error) {
	text = strings.Join(strings.Fields(text), " ")
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", text)
}

// parseReminder accepts a full date-time or a bare HH:MM. A bare time lands on the
// due date when there is one, otherwise on the next occurrence of that time after now.
func parseReminder(text string, due *time.Time, now time.Time, loc *time.Location) (time.Time, error) {
	if t, err := parseDateTime(text, loc); err == nil {
		return t, nil
	}
	clock, err := time.Parse("15:04", strings.TrimSpace(text))
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized reminder %q", text)
	}

	day := now.In(loc)
	if due != nil {
		day = due.In(loc)
	}
	at := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	if due == nil && !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

func parseRepetitionInput(text string) (model.Repetition, error) {
	if strings.EqualFold(strings.TrimSpace(text), btnRepeatNone) || isSkipInput(text) {
		return model.RepeatNone, nil
	}
	return model.ParseRepetition(text)
}

func repetitionLabel(r model.Repetition) string {
	switch r {
	case model.RepeatDaily:
		return "каждый день"
	case model.RepeatWeekly:
		return "каждую неделю"
	case model.RepeatMonthly:
		return "каждый месяц"
	default:
		return "без повтора"
	}
}

// formatWhen prints a date, adding the time only when it is not midnight.
func formatWhen(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	if t.Hour() == 0 && t.Minute() == 0 {
		return t.Format("02.01.2006")
	}
	return t.Format("02.01.2006 15:04")
}

func formatTags(tags []string) string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = "#" + escape(tag)
	}
	return strings.Join(out, " ")
}

func formatTask(task model.Task, now time.Time) string {
	loc := now.Location()
	var b strings.Builder

	icon := iconDefault
	switch {
	case task.Completed:
		icon = iconDone
	case task.DueDate != nil && now.After(*task.DueDate):
		icon = iconOverdue
	case task.DueDate != nil && task.DueDate.Sub(now) <= 48*time.Hour:
		icon = iconDue
	}
	title := escape(normalizeTitle(task.Title))
	if task.Completed {
		title = "<s>" + title + "</s>"
	}
	b.WriteString(fmt.Sprintf("%s %s <code>%s</code>\n", icon, title, shortID(task.ID)))

	if task.DueDate != nil {
		if !task.Completed && now.After(*task.DueDate) {
			b.WriteString(fmt.Sprintf("   ⏰ Срок: %s, <b>просрочено</b>\n", formatWhen(*task.DueDate, loc)))
		} else {
			b.WriteString(fmt.Sprintf("   ⏰ Срок: %s\n", formatWhen(*task.DueDate, loc)))
		}
	}
	if task.Reminder != nil && !task.Completed {
		b.WriteString(fmt.Sprintf("   🔔 %s\n", formatWhen(*task.Reminder, loc)))
	}
	if task.Repetition.Repeats() {
		b.WriteString(fmt.Sprintf("   %s %s\n", iconRecurring, repetitionLabel(task.Repetition)))
	}
	if len(task.Tags) > 0 {
		b.WriteString(fmt.Sprintf("   🏷 %s\n", formatTags(task.Tags)))
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(task.Description)))
	}
	b.WriteByte('\n')
	return b.String()
}

func formatReminder(task model.Task, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔔 <b>Напоминание</b>\n%s", escape(normalizeTitle(task.Title))))
	if task.DueDate != nil {
		b.WriteString(fmt.Sprintf("\n⏰ Срок: %s", formatWhen(*task.DueDate, loc)))
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("\n📝 %s", escape(task.Description)))
	}
	return b.String()
}

func formatStats(st service.Stats) string {
	var b strings.Builder
	b.WriteString("📊 <b>Статистика</b>\n")
	b.WriteString(fmt.Sprintf("• Всего задач: %d\n", st.Total))
	b.WriteString(fmt.Sprintf("• Выполнено: %d (%.0f%%)\n", st.Completed, st.CompletionRate*100))
	b.WriteString(fmt.Sprintf("• В работе: %d\n", st.Open))
	b.WriteString(fmt.Sprintf("• На сегодня: %d\n", st.DueToday))
	b.WriteString(fmt.Sprintf("• Просрочено: %d\n", st.Overdue))
	b.WriteString(fmt.Sprintf("• Повторяющихся: %d\n", st.Repeating))

	b.WriteString("\nВыполнено за неделю: ")
	days := make([]string, len(st.CompletedPerDay))
	for i := range st.CompletedPerDay {
		// oldest day first
		days[i] = fmt.Sprint(st.CompletedPerDay[len(st.CompletedPerDay)-1-i])
	}
	b.WriteString(strings.Join(days, " · "))
	return b.String()
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func escape(s string) string {
	return html.EscapeString(s)
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "пропустить" || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "подтвердить" || value == "да"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "отмена" || value == "нет"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "отменить ввод"
}

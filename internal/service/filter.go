package service

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"task-planner/internal/model"
)

// Scope limits a query by due date.
type Scope string

const (
	ScopeAll   Scope = "all"
	ScopeToday Scope = "today"
)

// SortKey selects the ordering of query results.
type SortKey string

const (
	SortByDueDate SortKey = "due"
	SortByTitle   SortKey = "title"
)

// Query describes a read-only view over a task collection.
// Now anchors the Today scope; its location decides what "today" means.
type Query struct {
	Scope        Scope
	SearchText   string
	RequiredTags []string
	SortKey      SortKey
	Now          time.Time
}

func ParseScope(raw string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all", "все":
		return ScopeAll, nil
	case "today", "сегодня":
		return ScopeToday, nil
	default:
		return "", fmt.Errorf("unknown scope %q", raw)
	}
}

func ParseSortKey(raw string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "due", "due_date", "deadline":
		return SortByDueDate, nil
	case "title", "name":
		return SortByTitle, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", raw)
	}
}

var epoch = time.Unix(0, 0)

// Apply filters and orders tasks. The input slice is never modified.
func Apply(tasks []model.Task, q Query) []model.Task {
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}

	out := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if q.Scope == ScopeToday && !dueOn(task, now) {
			continue
		}
		out = append(out, task)
	}

	if q.SearchText != "" {
		fold := cases.Fold()
		needle := fold.String(q.SearchText)
		out = slices.DeleteFunc(out, func(task model.Task) bool {
			return !strings.Contains(fold.String(task.Title), needle)
		})
	}

	if len(q.RequiredTags) > 0 {
		out = slices.DeleteFunc(out, func(task model.Task) bool {
			return !hasAllTags(task, q.RequiredTags)
		})
	}

	switch q.SortKey {
	case SortByTitle:
		coll := collate.New(language.Und, collate.IgnoreCase)
		sort.SliceStable(out, func(i, j int) bool {
			return coll.CompareString(out[i].Title, out[j].Title) < 0
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return dueOrEpoch(out[i]).Before(dueOrEpoch(out[j]))
		})
	}
	return out
}

// UniqueTags lists every distinct tag in tasks, sorted.
func UniqueTags(tasks []model.Task) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, task := range tasks {
		for _, tag := range task.Tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

func dueOn(task model.Task, now time.Time) bool {
	if task.DueDate == nil {
		return false
	}
	return sameDay(task.DueDate.In(now.Location()), now)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func hasAllTags(task model.Task, required []string) bool {
	for _, tag := range required {
		if !task.HasTag(tag) {
			return false
		}
	}
	return true
}

func dueOrEpoch(task model.Task) time.Time {
	if task.DueDate == nil {
		return epoch
	}
	return *task.DueDate
}

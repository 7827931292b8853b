package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repetition controls whether completing a task spawns a follow-up.
type Repetition string

const (
	RepeatNone    Repetition = "none"
	RepeatDaily   Repetition = "daily"
	RepeatWeekly  Repetition = "weekly"
	RepeatMonthly Repetition = "monthly"
)

// PredefinedTags are offered as quick picks when tagging a task.
var PredefinedTags = []string{"Work", "Personal", "Urgent", "Reading", "Shopping", "Fitness"}

// ParseRepetition accepts "", "none", "daily", "weekly", "monthly" in any case.
func ParseRepetition(raw string) (Repetition, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none", "нет":
		return RepeatNone, nil
	case "daily", "ежедневно":
		return RepeatDaily, nil
	case "weekly", "еженедельно":
		return RepeatWeekly, nil
	case "monthly", "ежемесячно":
		return RepeatMonthly, nil
	default:
		return "", fmt.Errorf("unknown repetition %q", raw)
	}
}

// Repeats reports whether r spawns follow-up tasks.
func (r Repetition) Repeats() bool {
	return r == RepeatDaily || r == RepeatWeekly || r == RepeatMonthly
}

// Task represents a single item in the planner.
type Task struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	UserID      uint       `gorm:"index" json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Reminder    *time.Time `json:"reminder,omitempty"`
	Tags        []string   `gorm:"serializer:json" json:"tags"`
	Repetition  Repetition `gorm:"size:16" json:"repetition"`
	Completed   bool       `gorm:"default:false" json:"completed"`
	CreatedAt   time.Time  `json:"inserted_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeCreate assigns the task id.
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave keeps stored rows canonical: UTC timestamps, unique tags, explicit repetition.
func (t *Task) BeforeSave(tx *gorm.DB) error {
	t.DueDate = utc(t.DueDate)
	t.Reminder = utc(t.Reminder)
	t.Tags = NormalizeTags(t.Tags)
	if t.Repetition == "" {
		t.Repetition = RepeatNone
	}
	return nil
}

// HasTag reports whether tag is attached to the task.
func (t Task) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// Clone returns a copy that shares no memory with t.
func (t Task) Clone() Task {
	out := t
	out.DueDate = cloneTime(t.DueDate)
	out.Reminder = cloneTime(t.Reminder)
	if t.Tags != nil {
		out.Tags = slices.Clone(t.Tags)
	}
	return out
}

// Draft carries the caller-supplied fields of a new task.
type Draft struct {
	Title       string
	Description string
	DueDate     *time.Time
	Reminder    *time.Time
	Tags        []string
	Repetition  Repetition
}

// Patch represents a partial update.
// nil pointer => "no change"; Clear* flags drop an optional timestamp.
type Patch struct {
	Title         *string     `json:"title,omitempty"`
	Description   *string     `json:"description,omitempty"`
	DueDate       *time.Time  `json:"due_date,omitempty"`
	ClearDueDate  bool        `json:"clear_due_date,omitempty"`
	Reminder      *time.Time  `json:"reminder,omitempty"`
	ClearReminder bool        `json:"clear_reminder,omitempty"`
	Tags          *[]string   `json:"tags,omitempty"`
	Repetition    *Repetition `json:"repetition,omitempty"`
	Completed     *bool       `json:"completed,omitempty"`
}

// Apply writes the patch onto t.
func (p Patch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	switch {
	case p.ClearDueDate:
		t.DueDate = nil
	case p.DueDate != nil:
		t.DueDate = cloneTime(p.DueDate)
	}
	switch {
	case p.ClearReminder:
		t.Reminder = nil
	case p.Reminder != nil:
		t.Reminder = cloneTime(p.Reminder)
	}
	if p.Tags != nil {
		t.Tags = NormalizeTags(*p.Tags)
	}
	if p.Repetition != nil {
		t.Repetition = *p.Repetition
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
}

// NormalizeTags trims tags and drops blanks and duplicates, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

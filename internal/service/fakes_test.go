package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"task-planner/internal/model"
)

var errBackend = errors.New("backend unavailable")

// fakePersistence mimics the task repository in memory.
type fakePersistence struct {
	mu      sync.Mutex
	seq     int
	tasks   []model.Task
	clock   time.Time
	failOn  map[string]error
	created []model.Draft
	// listGate, when set for an owner, holds ListTasks until the channel is closed.
	listGate map[uint]chan struct{}
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		failOn:   map[string]error{},
		listGate: map[uint]chan struct{}{},
	}
}

func (f *fakePersistence) seed(owner uint, task model.Task) model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if task.ID == "" {
		task.ID = fmt.Sprintf("t%d", f.seq)
	}
	task.UserID = owner
	if task.Repetition == "" {
		task.Repetition = model.RepeatNone
	}
	f.clock = f.clock.Add(time.Minute)
	task.CreatedAt = f.clock
	task.UpdatedAt = f.clock
	f.tasks = append(f.tasks, task)
	return task
}

func (f *fakePersistence) CreateTask(_ context.Context, owner uint, draft model.Draft) (*model.Task, error) {
	if err := f.failOn["create"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.created = append(f.created, draft)
	f.mu.Unlock()
	task := f.seed(owner, model.Task{
		Title:       draft.Title,
		Description: draft.Description,
		DueDate:     draft.DueDate,
		Reminder:    draft.Reminder,
		Tags:        model.NormalizeTags(draft.Tags),
		Repetition:  draft.Repetition,
	})
	return &task, nil
}

func (f *fakePersistence) ListTasks(_ context.Context, owner uint) ([]model.Task, error) {
	if err := f.failOn["list"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	gate := f.listGate[owner]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Task
	for _, task := range f.tasks {
		if task.UserID == owner {
			out = append(out, task.Clone())
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (f *fakePersistence) PatchTask(_ context.Context, id string, patch model.Patch) (*model.Task, error) {
	if err := f.failOn["patch"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			patch.Apply(&f.tasks[i])
			f.clock = f.clock.Add(time.Minute)
			f.tasks[i].UpdatedAt = f.clock
			out := f.tasks[i].Clone()
			return &out, nil
		}
	}
	return nil, errors.New("record not found")
}

func (f *fakePersistence) DeleteTask(_ context.Context, id string) error {
	if err := f.failOn["delete"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks = slices.Delete(f.tasks, i, i+1)
			return nil
		}
	}
	return errors.New("record not found")
}

type fakeReminders struct {
	mu        sync.Mutex
	scheduled []string
	cancelled []string
	err       error
}

func (f *fakeReminders) ScheduleReminder(_ context.Context, task model.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, task.ID)
	return f.err
}

func (f *fakeReminders) CancelReminder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return f.err
}

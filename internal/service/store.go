package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"task-planner/internal/model"
)

// TaskPersistence is the durable side of a task collection.
type TaskPersistence interface {
	CreateTask(ctx context.Context, ownerID uint, draft model.Draft) (*model.Task, error)
	ListTasks(ctx context.Context, ownerID uint) ([]model.Task, error)
	PatchTask(ctx context.Context, id string, patch model.Patch) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// ReminderScheduler arms and disarms per-task reminders.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, task model.Task) error
	CancelReminder(ctx context.Context, taskID string) error
}

// Store is the authoritative in-memory task collection of one owner.
//
// Local state changes only after persistence confirms a mutation. Operations are not
// serialized against each other: two in-flight updates of the same task resolve as
// last-write-wins on the record returned by persistence.
type Store struct {
	owner     uint
	persist   TaskPersistence
	reminders ReminderScheduler
	now       func() time.Time
	loc       *time.Location

	mu      sync.RWMutex
	tasks   []model.Task
	lastErr error
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithLocation sets the planner time zone used to step repeating tasks.
func WithLocation(loc *time.Location) StoreOption {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the time source used for follow-up tasks without a due date.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(owner uint, persist TaskPersistence, reminders ReminderScheduler, opts ...StoreOption) *Store {
	s := &Store{
		owner:     owner,
		persist:   persist,
		reminders: reminders,
		now:       time.Now,
		loc:       time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Owner() uint { return s.owner }

// ToggleResult reports what ToggleComplete changed.
type ToggleResult struct {
	// Spawned is the follow-up created for a repeating task, if any.
	Spawned *model.Task
	// Updated is the original task after its completion flag flipped.
	Updated *model.Task
}

// Load replaces the collection with the owner's persisted tasks, newest first.
// On failure the previous collection is kept.
func (s *Store) Load(ctx context.Context) error {
	s.resetErr()
	tasks, err := s.persist.ListTasks(ctx, s.owner)
	if err != nil {
		return s.fail(ErrLoad, err)
	}

	s.mu.Lock()
	s.tasks = tasks
	s.mu.Unlock()
	return nil
}

// Add persists draft and prepends the confirmed task.
func (s *Store) Add(ctx context.Context, draft model.Draft) (*model.Task, error) {
	s.resetErr()
	task, err := s.persist.CreateTask(ctx, s.owner, draft)
	if err != nil {
		return nil, s.fail(ErrAdd, err)
	}

	s.mu.Lock()
	s.tasks = slices.Insert(s.tasks, 0, task.Clone())
	s.mu.Unlock()

	s.schedule(ctx, *task)
	return task, nil
}

// UpdateByID persists patch and swaps in the confirmed record.
func (s *Store) UpdateByID(ctx context.Context, id string, patch model.Patch) (*model.Task, error) {
	s.resetErr()
	task, err := s.persist.PatchTask(ctx, id, patch)
	if err != nil {
		return nil, s.fail(ErrUpdate, err)
	}

	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 {
		s.tasks[i] = task.Clone()
	}
	s.mu.Unlock()

	s.schedule(ctx, *task)
	return task, nil
}

// DeleteByID removes a task once persistence confirms the delete.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	s.resetErr()
	if err := s.persist.DeleteTask(ctx, id); err != nil {
		return s.fail(ErrDelete, err)
	}

	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 {
		s.tasks = slices.Delete(s.tasks, i, i+1)
	}
	s.mu.Unlock()

	s.cancel(ctx, id)
	return nil
}

// Reload re-reads the collection and re-arms its reminders, picking up rows written
// by other processes. Reminders of tasks that disappeared are cancelled.
func (s *Store) Reload(ctx context.Context) error {
	before := s.Tasks()
	if err := s.Load(ctx); err != nil {
		return err
	}
	if s.reminders == nil {
		return nil
	}

	current := s.Tasks()
	kept := make(map[string]struct{}, len(current))
	for _, task := range current {
		kept[task.ID] = struct{}{}
		s.schedule(ctx, task)
	}
	for _, task := range before {
		if _, ok := kept[task.ID]; !ok {
			s.cancel(ctx, task.ID)
		}
	}
	return nil
}

// ToggleComplete flips the completion flag of id. Completing a repeating task
// first adds its next occurrence. The two steps are independent: a failed
// follow-up does not block the flip and vice versa; errors are joined.
func (s *Store) ToggleComplete(ctx context.Context, id string) (ToggleResult, error) {
	var res ToggleResult

	current, ok := s.Get(id)
	if !ok {
		s.resetErr()
		return res, s.fail(ErrUpdate, fmt.Errorf("%w: %s", ErrTaskNotFound, id))
	}

	var addErr error
	if !current.Completed && current.Repetition.Repeats() {
		res.Spawned, addErr = s.Add(ctx, followUpDraft(current, s.now(), s.loc))
	}

	completed := !current.Completed
	updated, updErr := s.UpdateByID(ctx, id, model.Patch{Completed: &completed})
	res.Updated = updated

	err := errors.Join(addErr, updErr)
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return res, err
}

// Get returns a copy of the task with id.
func (s *Store) Get(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.tasks[i].Clone(), true
	}
	return model.Task{}, false
}

// Tasks returns a snapshot of the collection in store order.
func (s *Store) Tasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Task, len(s.tasks))
	for i, task := range s.tasks {
		out[i] = task.Clone()
	}
	return out
}

// Query runs q over a snapshot of the collection.
func (s *Store) Query(q Query) []model.Task {
	return Apply(s.Tasks(), q)
}

// UniqueTags lists the distinct tags of the whole collection.
func (s *Store) UniqueTags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return UniqueTags(s.tasks)
}

// LastError returns the failure of the most recent operation, or nil.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.tasks, func(t model.Task) bool { return t.ID == id })
}

func (s *Store) schedule(ctx context.Context, task model.Task) {
	if s.reminders == nil {
		return
	}
	if err := s.reminders.ScheduleReminder(ctx, task); err != nil {
		log.Printf("schedule reminder task=%s: %v", task.ID, err)
	}
}

func (s *Store) cancel(ctx context.Context, id string) {
	if s.reminders == nil {
		return
	}
	if err := s.reminders.CancelReminder(ctx, id); err != nil {
		log.Printf("cancel reminder task=%s: %v", id, err)
	}
}

func (s *Store) resetErr() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

func (s *Store) fail(kind, cause error) error {
	err := fmt.Errorf("%w: %w", kind, cause)
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"task-planner/internal/model"
)

// ReminderSender delivers a due reminder to the task owner.
type ReminderSender interface {
	SendReminder(ctx context.Context, task model.Task) error
}

// LogSender only logs reminders. Used when no chat transport is running.
type LogSender struct{}

func (LogSender) SendReminder(_ context.Context, task model.Task) error {
	log.Printf("[info] reminder task=%s user=%d title=%q", task.ID, task.UserID, task.Title)
	return nil
}

// ReminderService arms one cron entry per task reminder.
type ReminderService struct {
	scheduler   *SchedulerService
	now         func() time.Time
	sendTimeout time.Duration

	mu      sync.Mutex
	sender  ReminderSender
	entries map[string]cron.EntryID
}

func NewReminderService(scheduler *SchedulerService, sender ReminderSender) *ReminderService {
	if sender == nil {
		sender = LogSender{}
	}
	return &ReminderService{
		scheduler:   scheduler,
		now:         time.Now,
		sendTimeout: 30 * time.Second,
		sender:      sender,
		entries:     make(map[string]cron.EntryID),
	}
}

// SetSender swaps the delivery transport, e.g. once the bot is connected.
func (s *ReminderService) SetSender(sender ReminderSender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = sender
}

// ScheduleReminder (re)arms the reminder of task. Any previous entry for the task is
// dropped first; nothing is armed for completed tasks or reminders not in the future.
func (s *ReminderService) ScheduleReminder(_ context.Context, task model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(task.ID)
	if task.Completed || task.Reminder == nil || !task.Reminder.After(s.now()) {
		return nil
	}

	snapshot := task.Clone()
	id := s.scheduler.ScheduleAt(*task.Reminder, func() { s.fire(snapshot) })
	s.entries[task.ID] = id
	return nil
}

// CancelReminder drops the pending reminder of taskID, if any.
func (s *ReminderService) CancelReminder(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(taskID)
	return nil
}

// Pending reports how many reminders are armed.
func (s *ReminderService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Restore arms reminders for tasks loaded at startup.
func (s *ReminderService) Restore(ctx context.Context, tasks []model.Task) {
	for _, task := range tasks {
		_ = s.ScheduleReminder(ctx, task)
	}
	log.Printf("[info] restored %d reminders", s.Pending())
}

func (s *ReminderService) fire(task model.Task) {
	s.mu.Lock()
	sender := s.sender
	s.removeLocked(task.ID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()
	if err := sender.SendReminder(ctx, task); err != nil {
		log.Printf("send reminder task=%s: %v", task.ID, err)
	}
}

func (s *ReminderService) removeLocked(taskID string) {
	if id, ok := s.entries[taskID]; ok {
		s.scheduler.Remove(id)
		delete(s.entries, taskID)
	}
}

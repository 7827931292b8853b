package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"task-planner/internal/config"
	"task-planner/internal/repository"
	"task-planner/internal/service"
)

// app holds what every long-running command shares.
type app struct {
	cfg       config.Config
	loc       *time.Location
	db        *gorm.DB
	users     *repository.UserRepository
	tasks     *repository.TaskRepository
	scheduler *service.SchedulerService
	reminders *service.ReminderService
	stores    *service.Stores
}

func newApp(cfg config.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	taskRepo := repository.NewTaskRepository(db)
	scheduler := service.NewSchedulerService(loc)
	reminders := service.NewReminderService(scheduler, nil)

	return &app{
		cfg:       cfg,
		loc:       loc,
		db:        db,
		users:     repository.NewUserRepository(db),
		tasks:     taskRepo,
		scheduler: scheduler,
		reminders: reminders,
		stores:    service.NewStores(taskRepo, reminders, service.WithLocation(loc)),
	}, nil
}

// restoreReminders re-arms reminders that were pending when the process stopped.
func (a *app) restoreReminders(ctx context.Context) error {
	pending, err := a.tasks.ListPendingReminders(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("restore reminders: %w", err)
	}
	a.reminders.Restore(ctx, pending)
	return nil
}

func (a *app) close() {
	a.scheduler.Stop()
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("close db: %v", err)
		}
	}
}

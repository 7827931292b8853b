package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"task-planner/internal/model"
)

// TaskRepository is the durable store behind the in-memory task collections.
// It assigns ids and timestamps and is the only writer of the tasks table.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// CreateTask inserts a new, incomplete task for ownerID.
func (r *TaskRepository) CreateTask(ctx context.Context, ownerID uint, draft model.Draft) (*model.Task, error) {
	task := model.Task{
		UserID:      ownerID,
		Title:       draft.Title,
		Description: draft.Description,
		DueDate:     draft.DueDate,
		Reminder:    draft.Reminder,
		Tags:        draft.Tags,
		Repetition:  draft.Repetition,
	}
	if err := r.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &task, nil
}

// ListTasks returns every task of ownerID, newest first.
func (r *TaskRepository) ListTasks(ctx context.Context, ownerID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// PatchTask applies patch to the stored task and returns the saved row.
func (r *TaskRepository) PatchTask(ctx context.Context, id string, patch model.Patch) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&task).Error; err != nil {
			return err
		}
		patch.Apply(&task)
		return tx.Save(&task).Error
	})
	if err != nil {
		return nil, fmt.Errorf("patch task: %w", err)
	}
	return &task, nil
}

// DeleteTask removes a task regardless of its repetition.
func (r *TaskRepository) DeleteTask(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Task{})
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete task: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

// ListPendingReminders returns open tasks whose reminder fires after the given instant.
func (r *TaskRepository) ListPendingReminders(ctx context.Context, after time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("completed = ? AND reminder IS NOT NULL AND reminder > ?", false, after.UTC()).
		Order("reminder ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return tasks, nil
}

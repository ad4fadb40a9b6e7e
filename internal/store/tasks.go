package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chat-task-scanner-go/internal/models"
)

// ErrTaskNotFound indicates that no task exists for the given id.
var ErrTaskNotFound = errors.New("task not found")

// TaskStore persists classification results keyed by message fingerprint.
type TaskStore struct {
	db *gorm.DB
}

// NewTaskStore creates a new task store
func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

// CreateTask inserts a task with insert-or-ignore semantics on the message
// fingerprint. Returns true if a row was actually created; a duplicate insert
// is silently dropped and returns false.
func (s *TaskStore) CreateTask(ctx context.Context, task *models.Task) (bool, error) {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(task)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create task: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetTask returns a single task by id
func (s *TaskStore) GetTask(ctx context.Context, id uint) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).First(&task, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// ListTasks returns tasks, optionally filtered by status, newest first
func (s *TaskStore) ListTasks(ctx context.Context, status models.TaskStatus, limit int) ([]models.Task, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var tasks []models.Task
	if err := query.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// CompleteTask marks a pending task as completed. The transition is one-way;
// completing an already-completed task is a no-op.
func (s *TaskStore) CompleteTask(ctx context.Context, id uint) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND status = ?", id, models.TaskStatusPending).
		Updates(map[string]interface{}{
			"status":       models.TaskStatusCompleted,
			"completed_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Either missing or already completed; distinguish for the caller.
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to complete task: %w", err)
		}
		if count == 0 {
			return ErrTaskNotFound
		}
	}
	return nil
}

// CountTasks returns the number of tasks with the given status
func (s *TaskStore) CountTasks(ctx context.Context, status models.TaskStatus) (int64, error) {
	var count int64
	query := s.db.WithContext(ctx).Model(&models.Task{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

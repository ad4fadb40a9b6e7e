package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"chat-task-scanner-go/internal/models"
)

// checkpointRowID pins the session checkpoint to a single row.
const checkpointRowID = 1

// CheckpointStore manages the singleton session checkpoint row. The
// last-seen timestamp is the backfill cursor; it is advanced only after a
// completed scan.
type CheckpointStore struct {
	db *gorm.DB
}

// NewCheckpointStore creates a new checkpoint store
func NewCheckpointStore(db *gorm.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Load returns the checkpoint row, creating a zero-valued one on first use
func (s *CheckpointStore) Load(ctx context.Context) (*models.SessionCheckpoint, error) {
	var cp models.SessionCheckpoint
	err := s.db.WithContext(ctx).First(&cp, checkpointRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cp = models.SessionCheckpoint{ID: checkpointRowID}
		if createErr := s.db.WithContext(ctx).Create(&cp).Error; createErr != nil {
			return nil, fmt.Errorf("failed to create checkpoint: %w", createErr)
		}
		return &cp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return &cp, nil
}

// Advance moves the backfill cursor forward. Never called speculatively.
func (s *CheckpointStore) Advance(ctx context.Context, t time.Time) error {
	if _, err := s.Load(ctx); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Model(&models.SessionCheckpoint{}).
		Where("id = ?", checkpointRowID).
		Update("last_seen_at", t).Error
	if err != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", err)
	}
	return nil
}

// RecordLogin stamps the last successful login time
func (s *CheckpointStore) RecordLogin(ctx context.Context, t time.Time) error {
	if _, err := s.Load(ctx); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Model(&models.SessionCheckpoint{}).
		Where("id = ?", checkpointRowID).
		Update("logged_in_at", t).Error
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

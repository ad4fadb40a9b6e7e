package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chat-task-scanner-go/internal/models"
)

// ProcessedStore is the deduplication boundary. Every message fingerprint is
// recorded here exactly once; the unique index on message_id absorbs
// concurrent retries at the storage layer.
type ProcessedStore struct {
	db *gorm.DB
}

// NewProcessedStore creates a new processed-message store
func NewProcessedStore(db *gorm.DB) *ProcessedStore {
	return &ProcessedStore{db: db}
}

// IsProcessed checks whether a message fingerprint has already been seen
func (s *ProcessedStore) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.ProcessedMessage{}).
		Where("message_id = ?", messageID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("database error checking processed message: %w", err)
	}
	return count > 0, nil
}

// MarkProcessed records a message fingerprint as seen. Inserting the same
// fingerprint twice is a no-op, never an error.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, messageID, chatID string, hadIndicators bool) error {
	rec := models.ProcessedMessage{
		MessageID:     messageID,
		ChatID:        chatID,
		HadIndicators: hadIndicators,
		ProcessedAt:   time.Now(),
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to mark message as processed: %w", err)
	}
	return nil
}

// MarkAnalyzed upgrades an existing record to was_analyzed=true. The flag is
// one-way; repeated calls are harmless.
func (s *ProcessedStore) MarkAnalyzed(ctx context.Context, messageID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.ProcessedMessage{}).
		Where("message_id = ?", messageID).
		Update("was_analyzed", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark message as analyzed: %w", err)
	}
	return nil
}

// CountProcessed returns the total number of processed-message records
func (s *ProcessedStore) CountProcessed(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ProcessedMessage{}).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count processed messages: %w", err)
	}
	return count, nil
}

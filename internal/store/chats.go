package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chat-task-scanner-go/internal/models"
)

// ChatStore persists the chat directory: which chats exist on the transport
// and which of them are monitored.
type ChatStore struct {
	db *gorm.DB
}

// NewChatStore creates a new chat store
func NewChatStore(db *gorm.DB) *ChatStore {
	return &ChatStore{db: db}
}

// Monitored returns all chats whose messages are eligible for classification
func (s *ChatStore) Monitored(ctx context.Context) ([]models.ChatConfig, error) {
	var chats []models.ChatConfig
	err := s.db.WithContext(ctx).
		Where("monitored = ?", true).
		Order("name ASC").
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load monitored chats: %w", err)
	}
	return chats, nil
}

// All returns every known chat
func (s *ChatStore) All(ctx context.Context) ([]models.ChatConfig, error) {
	var chats []models.ChatConfig
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("failed to load chats: %w", err)
	}
	return chats, nil
}

// Upsert inserts or refreshes a chat row keyed by chat_id, updating the
// transport-sourced columns while preserving the monitored flag.
func (s *ChatStore) Upsert(ctx context.Context, chat *models.ChatConfig) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "is_group", "participants", "updated_at"}),
		}).
		Create(chat).Error
	if err != nil {
		return fmt.Errorf("failed to upsert chat: %w", err)
	}
	return nil
}

// SetMonitored flips the monitored flag for a chat
func (s *ChatStore) SetMonitored(ctx context.Context, chatID string, monitored bool) error {
	err := s.db.WithContext(ctx).
		Model(&models.ChatConfig{}).
		Where("chat_id = ?", chatID).
		Update("monitored", monitored).Error
	if err != nil {
		return fmt.Errorf("failed to update monitored flag: %w", err)
	}
	return nil
}

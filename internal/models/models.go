package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// TaskType classifies what kind of actionable item a message describes.
type TaskType string

const (
	TaskTypeEvent    TaskType = "event"
	TaskTypePayment  TaskType = "payment"
	TaskTypeReminder TaskType = "reminder"
	TaskTypeRequest  TaskType = "request"
)

// ValidTaskType reports whether t is one of the known task types.
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskTypeEvent, TaskTypePayment, TaskTypeReminder, TaskTypeRequest:
		return true
	}
	return false
}

// TaskStatus is the lifecycle status of a task. Transitions are one-way:
// pending -> completed.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// Message is a transient chat message as delivered by the transport.
// Immutable once observed; never persisted as-is.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	HasMedia  bool      `json:"has_media"`
}

// ProcessedMessage records that a message fingerprint has been seen, to
// guarantee at-most-once classification. The unique index on MessageID is
// the deduplication boundary; duplicate inserts are ignored, not errors.
type ProcessedMessage struct {
	ID            uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID     string         `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	ChatID        string         `json:"chat_id" gorm:"type:varchar(255);not null;index"`
	HadIndicators bool           `json:"had_indicators" gorm:"default:false"`
	WasAnalyzed   bool           `json:"was_analyzed" gorm:"default:false"`
	ProcessedAt   time.Time      `json:"processed_at"`
	DeletedAt     gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for ProcessedMessage
func (ProcessedMessage) TableName() string {
	return "processed_messages"
}

// Task is a classified actionable item extracted from a message. At most one
// task ever exists per message fingerprint.
type Task struct {
	ID          uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID   string         `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	ChatID      string         `json:"chat_id" gorm:"type:varchar(255);not null;index"`
	ChatName    string         `json:"chat_name" gorm:"type:varchar(255)"`
	Sender      string         `json:"sender" gorm:"type:varchar(255)"`
	Text        string         `json:"text" gorm:"type:text"`
	Types       string         `json:"types" gorm:"type:varchar(255)"`
	Summary     string         `json:"summary" gorm:"type:text"`
	EventTime   *time.Time     `json:"event_time,omitempty"`
	Amount      string         `json:"amount" gorm:"type:varchar(64)"`
	Link        string         `json:"link" gorm:"type:varchar(512)"`
	Confidence  float64        `json:"confidence"`
	Status      TaskStatus     `json:"status" gorm:"type:varchar(32);not null;default:pending;index"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DeletedAt   gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for Task
func (Task) TableName() string {
	return "tasks"
}

// TypeList returns the task types as a slice, decoded from the stored
// comma-separated column.
func (t *Task) TypeList() []TaskType {
	if t.Types == "" {
		return nil
	}
	parts := strings.Split(t.Types, ",")
	out := make([]TaskType, 0, len(parts))
	for _, p := range parts {
		out = append(out, TaskType(strings.TrimSpace(p)))
	}
	return out
}

// JoinTypes encodes a type set into the stored column representation.
func JoinTypes(types []TaskType) string {
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, ",")
}

// ChatConfig is a chat known to the scanner. The Monitored flag gates whether
// the chat's messages enter the pipeline at all.
type ChatConfig struct {
	ID           uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	ChatID       string         `json:"chat_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	Name         string         `json:"name" gorm:"type:varchar(255);not null"`
	Monitored    bool           `json:"monitored" gorm:"default:false;index"`
	IsGroup      bool           `json:"is_group" gorm:"default:false"`
	Participants int            `json:"participants" gorm:"default:0"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for ChatConfig
func (ChatConfig) TableName() string {
	return "chat_configs"
}

// SessionCheckpoint is a singleton row holding the backfill cursor. The
// LastSeenAt timestamp is advanced only after a completed scan.
type SessionCheckpoint struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	LoggedInAt time.Time `json:"logged_in_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for SessionCheckpoint
func (SessionCheckpoint) TableName() string {
	return "session_checkpoints"
}

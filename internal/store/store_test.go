package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chat-task-scanner-go/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("store_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	require.NoError(t, db.AutoMigrate(
		&models.Task{},
		&models.ProcessedMessage{},
		&models.ChatConfig{},
		&models.SessionCheckpoint{},
	))
	return db
}

func TestMarkProcessedIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	s := NewProcessedStore(db)
	ctx := context.Background()

	require.NoError(t, s.MarkProcessed(ctx, "msg-1", "chat-1", true))
	require.NoError(t, s.MarkProcessed(ctx, "msg-1", "chat-1", true))
	require.NoError(t, s.MarkProcessed(ctx, "msg-1", "chat-1", false))

	var count int64
	require.NoError(t, db.Model(&models.ProcessedMessage{}).Where("message_id = ?", "msg-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	seen, err := s.IsProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.IsProcessed(ctx, "msg-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMarkProcessedPreservesFirstIndicatorFlag(t *testing.T) {
	db := newTestDB(t)
	s := NewProcessedStore(db)
	ctx := context.Background()

	require.NoError(t, s.MarkProcessed(ctx, "msg-1", "chat-1", true))
	require.NoError(t, s.MarkProcessed(ctx, "msg-1", "chat-1", false))

	var rec models.ProcessedMessage
	require.NoError(t, db.First(&rec, "message_id = ?", "msg-1").Error)
	assert.True(t, rec.HadIndicators)
}

func TestMarkAnalyzedUpgradesWithoutReinsert(t *testing.T) {
	db := newTestDB(t)
	s := NewProcessedStore(db)
	ctx := context.Background()

	require.NoError(t, s.MarkProcessed(ctx, "msg-1", "chat-1", true))
	require.NoError(t, s.MarkAnalyzed(ctx, "msg-1"))
	require.NoError(t, s.MarkAnalyzed(ctx, "msg-1"))

	var recs []models.ProcessedMessage
	require.NoError(t, db.Find(&recs, "message_id = ?", "msg-1").Error)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].WasAnalyzed)
}

func TestCreateTaskDuplicateIsSilentlyDropped(t *testing.T) {
	db := newTestDB(t)
	s := NewTaskStore(db)
	ctx := context.Background()

	task := &models.Task{
		MessageID: "msg-1",
		ChatID:    "chat-1",
		Summary:   "Pay rent",
		Types:     "payment",
	}
	created, err := s.CreateTask(ctx, task)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.TaskStatusPending, task.Status)

	dup := &models.Task{MessageID: "msg-1", ChatID: "chat-1", Summary: "Pay rent again"}
	created, err = s.CreateTask(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	count, err := s.CountTasks(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCompleteTaskIsOneWay(t *testing.T) {
	db := newTestDB(t)
	s := NewTaskStore(db)
	ctx := context.Background()

	task := &models.Task{MessageID: "msg-1", ChatID: "chat-1", Summary: "x"}
	_, err := s.CreateTask(ctx, task)
	require.NoError(t, err)

	require.NoError(t, s.CompleteTask(ctx, task.ID))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	firstCompletion := *got.CompletedAt

	// Completing again neither errors nor rewrites the completion time.
	require.NoError(t, s.CompleteTask(ctx, task.ID))
	got, err = s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, firstCompletion.Unix(), got.CompletedAt.Unix())

	assert.ErrorIs(t, s.CompleteTask(ctx, 9999), ErrTaskNotFound)
}

func TestListTasksFiltersByStatus(t *testing.T) {
	db := newTestDB(t)
	s := NewTaskStore(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.CreateTask(ctx, &models.Task{
			MessageID: fmt.Sprintf("msg-%d", i),
			ChatID:    "chat-1",
			Summary:   "x",
		})
		require.NoError(t, err)
	}
	var first models.Task
	require.NoError(t, db.First(&first, "message_id = ?", "msg-0").Error)
	require.NoError(t, s.CompleteTask(ctx, first.ID))

	pending, err := s.ListTasks(ctx, models.TaskStatusPending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	all, err := s.ListTasks(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestChatStoreUpsertPreservesMonitoredFlag(t *testing.T) {
	db := newTestDB(t)
	s := NewChatStore(db)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, &models.ChatConfig{ChatID: "c1", Name: "Family", IsGroup: true, Participants: 4}))
	require.NoError(t, s.SetMonitored(ctx, "c1", true))

	// Transport refresh with new participant count must not drop the flag.
	require.NoError(t, s.Upsert(ctx, &models.ChatConfig{ChatID: "c1", Name: "Family", IsGroup: true, Participants: 5}))

	monitored, err := s.Monitored(ctx)
	require.NoError(t, err)
	require.Len(t, monitored, 1)
	assert.Equal(t, 5, monitored[0].Participants)
}

func TestCheckpointSingletonAdvance(t *testing.T) {
	db := newTestDB(t)
	s := NewCheckpointStore(db)
	ctx := context.Background()

	cp, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, cp.LastSeenAt.IsZero())

	now := time.Now().Truncate(time.Second)
	require.NoError(t, s.Advance(ctx, now))
	require.NoError(t, s.RecordLogin(ctx, now))

	cp, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), cp.LastSeenAt.Unix())
	assert.Equal(t, now.Unix(), cp.LoggedInAt.Unix())

	// Still a single row after repeated loads and advances.
	var count int64
	require.NoError(t, db.Model(&models.SessionCheckpoint{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// Package scheduler runs periodic maintenance: refreshing the chat
// directory from the transport and keeping operational gauges current.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"chat-task-scanner-go/internal/config"
	"chat-task-scanner-go/internal/connection"
	"chat-task-scanner-go/internal/metrics"
	"chat-task-scanner-go/internal/models"
	"chat-task-scanner-go/internal/pipeline"
	"chat-task-scanner-go/internal/store"
	"chat-task-scanner-go/internal/transport"
)

// Scheduler manages the periodic maintenance work
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	cfg       *config.Config
	client    transport.Client
	directory *pipeline.ChatDirectory
	manager   *connection.Manager
	tasks     *store.TaskStore
	metrics   *metrics.Metrics
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.Config, client transport.Client, directory *pipeline.ChatDirectory, manager *connection.Manager, tasks *store.TaskStore, m *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		cfg:       cfg,
		client:    client,
		directory: directory,
		manager:   manager,
		tasks:     tasks,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	// Recreate the context in case of a restart
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	schedule := fmt.Sprintf("0 */%d * * * *", s.cfg.Scheduler.RefreshIntervalMinutes)

	entryID, err := s.cron.AddFunc(schedule, s.maintain)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Maintenance scheduler started with interval: %d minutes", s.cfg.Scheduler.RefreshIntervalMinutes)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	// Cancel context to stop any running operations
	s.cancel()

	// Remove the entry so a restart does not schedule it twice
	s.cron.Remove(s.entryID)

	// Stop the cron scheduler
	ctx := s.cron.Stop()

	// Wait for all jobs to complete
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// maintain is the periodic maintenance tick
func (s *Scheduler) maintain() {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	var status connection.Status
	if s.manager != nil {
		status = s.manager.Status()
	}

	if s.directory != nil {
		if status.State == connection.StateReady {
			if err := s.directory.Sync(s.ctx, s.client, s.cfg.Monitor.Chats); err != nil {
				logrus.Warnf("Chat directory refresh failed: %v", err)
			}
		} else {
			logrus.Debugf("Skipping chat refresh, connection state is %s", status.State)
		}
		s.metrics.MonitoredChats.Set(float64(len(s.directory.Monitored())))
	}

	if s.tasks != nil {
		pending, err := s.tasks.CountTasks(s.ctx, models.TaskStatusPending)
		if err != nil {
			logrus.Warnf("Failed to count pending tasks: %v", err)
		} else {
			s.metrics.PendingTasks.Set(float64(pending))
		}
	}

	if status.State != connection.StateReady && !status.LastConnectedAt.IsZero() {
		logrus.Warnf("Transport not ready (state=%s, last connected %s ago)",
			status.State, time.Since(status.LastConnectedAt).Round(time.Second))
	}
}

// RunOnce runs the maintenance tick once (for manual triggering)
func (s *Scheduler) RunOnce() error {
	logrus.Info("Running maintenance once")
	s.maintain()
	return nil
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	if !s.IsRunning() {
		return time.Time{}
	}
	entry := s.cron.Entry(s.entryID)
	return entry.Next
}

// GetLastRun returns the time of the last run
func (s *Scheduler) GetLastRun() time.Time {
	if !s.IsRunning() {
		return time.Time{}
	}
	entry := s.cron.Entry(s.entryID)
	return entry.Prev
}

// Wait waits for in-flight maintenance work to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

package scheduler

import (
	"testing"

	"chat-task-scanner-go/internal/config"
	"chat-task-scanner-go/internal/metrics"
)

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{RefreshIntervalMinutes: 15},
	}
}

func TestSchedulerRestart(t *testing.T) {
	sched := NewScheduler(testConfig(), nil, nil, nil, nil, metrics.NewMetrics())

	if err := sched.Start(); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Fatalf("scheduler should be running after Start")
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if sched.IsRunning() {
		t.Fatalf("scheduler should not be running after Stop")
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Fatalf("scheduler should be running after second Start")
	}
	// context should be active
	if sched.ctx == nil || sched.ctx.Err() != nil {
		t.Fatalf("scheduler context should be active after restart")
	}
	// the restart must not leave the old entry scheduled alongside the new one
	if got := len(sched.cron.Entries()); got != 1 {
		t.Fatalf("expected exactly one cron entry after restart, got %d", got)
	}
	sched.Stop()
}

func TestStartWhileRunning(t *testing.T) {
	sched := NewScheduler(testConfig(), nil, nil, nil, nil, metrics.NewMetrics())

	if err := sched.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer sched.Stop()

	if err := sched.Start(); err == nil {
		t.Fatalf("second Start on a running scheduler should fail")
	}
}

func TestRunOnceWithNilCollaborators(t *testing.T) {
	sched := NewScheduler(testConfig(), nil, nil, nil, nil, metrics.NewMetrics())

	if err := sched.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer sched.Stop()

	// The maintenance tick must tolerate absent collaborators.
	if err := sched.RunOnce(); err != nil {
		t.Fatalf("run once failed: %v", err)
	}
	sched.Wait()
}

func TestNextRunOnlyWhileRunning(t *testing.T) {
	sched := NewScheduler(testConfig(), nil, nil, nil, nil, metrics.NewMetrics())

	if !sched.GetNextRun().IsZero() {
		t.Fatalf("next run should be zero while stopped")
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if sched.GetNextRun().IsZero() {
		t.Fatalf("next run should be scheduled while running")
	}
	sched.Stop()
}

// Package connection manages the transport session lifecycle: pairing,
// reconnection with bounded attempts, session-health heuristics, and the
// guarded clearing of persisted session material.
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chat-task-scanner-go/internal/config"
	"chat-task-scanner-go/internal/metrics"
	"chat-task-scanner-go/internal/models"
	"chat-task-scanner-go/internal/store"
	"chat-task-scanner-go/internal/transport"
)

// State is a connection lifecycle state.
type State string

const (
	StateDisconnected    State = "disconnected"
	StateAwaitingPairing State = "awaiting_pairing"
	StateAuthenticating  State = "authenticating"
	StateConnecting      State = "connecting"
	StateReconnecting    State = "reconnecting"
	StateReady           State = "ready"
)

func stateGauge(s State) float64 {
	switch s {
	case StateAwaitingPairing:
		return 1
	case StateAuthenticating:
		return 2
	case StateConnecting:
		return 3
	case StateReconnecting:
		return 4
	case StateReady:
		return 5
	default:
		return 0
	}
}

// Status is a point-in-time snapshot of the connection state.
type Status struct {
	State             State     `json:"state"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	Failures          int       `json:"failures"`
	SessionClears     int       `json:"session_clears"`
	LastConnectedAt   time.Time `json:"last_connected_at"`
}

// Manager owns the connection state machine. It is the only mutator of the
// connection counters; other components read snapshots via Status and wait
// on Ready.
type Manager struct {
	client      transport.Client
	session     *transport.SessionDir
	checkpoints *store.CheckpointStore
	cfg         config.ConnectionConfig
	metrics     *metrics.Metrics

	mu            sync.RWMutex
	state         State
	enteredAt     time.Time
	attempts      int
	failures      int
	sessionClears int
	lastConnected time.Time

	ready     chan struct{}
	readyOnce sync.Once
	messages  chan models.Message
}

// NewManager creates a connection manager
func NewManager(client transport.Client, session *transport.SessionDir, checkpoints *store.CheckpointStore, cfg config.ConnectionConfig, m *metrics.Metrics) *Manager {
	return &Manager{
		client:      client,
		session:     session,
		checkpoints: checkpoints,
		cfg:         cfg,
		metrics:     m,
		state:       StateDisconnected,
		enteredAt:   time.Now(),
		ready:       make(chan struct{}),
		messages:    make(chan models.Message, 256),
	}
}

// Ready is closed once the transport first reaches the ready state. The
// backfill scanner and ingestion loop wait on it.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Messages is the stream of live message events. Buffered so messages
// arriving during the startup backfill queue instead of racing it.
func (m *Manager) Messages() <-chan models.Message {
	return m.messages
}

// Status returns a snapshot of the connection state
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		State:             m.state,
		ReconnectAttempts: m.attempts,
		Failures:          m.failures,
		SessionClears:     m.sessionClears,
		LastConnectedAt:   m.lastConnected,
	}
}

// Run drives the state machine until the context is cancelled. It returns
// ctx.Err() on cancellation; reconnect exhaustion is not an error, it leaves
// the manager parked in the disconnected state for operator attention.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.messages)

	m.setState(StateConnecting)
	if err := m.client.Initialize(ctx); err != nil {
		logrus.Errorf("Initial transport connect failed: %v", err)
		m.reconnect(ctx, "initial connect failed")
	}

	for {
		var (
			timer    *time.Timer
			timeoutC <-chan time.Time
		)
		if d := m.remainingStateTime(); d > 0 {
			timer = time.NewTimer(d)
			timeoutC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case ev, ok := <-m.client.Events():
			if timer != nil {
				timer.Stop()
			}
			if !ok {
				return nil
			}
			m.handleEvent(ctx, ev)
		case <-timeoutC:
			state := m.currentState()
			logrus.Warnf("Connection state %s timed out, forcing reconnect", state)
			m.reconnect(ctx, "state timeout")
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventPairingCode:
		logrus.Infof("Pairing code issued, scan to authenticate: %s", ev.Code)
		m.setState(StateAwaitingPairing)

	case transport.EventAuthenticated:
		logrus.Info("Transport authenticated")
		m.setState(StateAuthenticating)

	case transport.EventReady:
		m.onReady(ctx)

	case transport.EventAuthFailure:
		logrus.Errorf("Transport authentication failed: %s", ev.Reason)
		m.recordFailure()
		m.reconnect(ctx, "auth failure")

	case transport.EventDisconnected:
		logrus.Warnf("Transport disconnected: %s", ev.Reason)
		m.recordFailure()
		m.reconnect(ctx, "disconnected")

	case transport.EventMessage:
		if ev.Message == nil {
			return
		}
		// A full buffer applies backpressure on the event loop rather than
		// dropping; a message is only lost to shutdown.
		select {
		case m.messages <- *ev.Message:
		case <-ctx.Done():
			logrus.Warnf("Shutting down, dropping message %s", ev.Message.ID)
		}

	case transport.EventStateChange:
		logrus.Debugf("Transport state changed: %s", ev.State)

	case transport.EventBattery:
		logrus.Debugf("Transport battery level: %d", ev.Battery)
	}
}

// onReady resets all counters and signals waiters.
func (m *Manager) onReady(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	m.state = StateReady
	m.enteredAt = now
	m.attempts = 0
	m.failures = 0
	m.lastConnected = now
	m.mu.Unlock()

	m.metrics.ConnectionState.Set(stateGauge(StateReady))
	logrus.Info("Transport ready")

	if err := m.checkpoints.RecordLogin(ctx, now); err != nil {
		logrus.Warnf("Failed to record login time: %v", err)
	}

	m.readyOnce.Do(func() { close(m.ready) })
}

// reconnect tears the session down and retries with growing delay. When the
// attempt ceiling is exceeded it parks in the disconnected state and never
// auto-initializes again.
func (m *Manager) reconnect(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	m.attempts++
	attempts := m.attempts
	clears := m.sessionClears
	m.mu.Unlock()

	m.metrics.Reconnects.Inc()

	if attempts > m.cfg.MaxReconnectAttempts {
		logrus.Errorf("Reconnect ceiling (%d) exceeded after %s; operator intervention required",
			m.cfg.MaxReconnectAttempts, reason)
		m.setState(StateDisconnected)
		return
	}

	logrus.Infof("Reconnecting (attempt %d/%d): %s", attempts, m.cfg.MaxReconnectAttempts, reason)
	m.setState(StateReconnecting)

	m.destroyWithTimeout(ctx)

	if m.shouldClearSession() {
		m.clearSession()
	}

	delay := m.retryDelay(attempts + clears)
	logrus.Infof("Waiting %s before reconnect", delay)
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	m.setState(StateConnecting)
	if err := m.client.Initialize(ctx); err != nil {
		logrus.Errorf("Reconnect attempt %d failed: %v", attempts, err)
		m.recordFailure()
		m.reconnect(ctx, "initialize failed")
	}
}

// destroyWithTimeout races the session teardown against a bound. A wedged
// destroy is abandoned; the late completion is tolerated as a no-op.
func (m *Manager) destroyWithTimeout(ctx context.Context) {
	dctx, cancel := context.WithTimeout(ctx, m.cfg.DestroyTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.client.Destroy(dctx) }()

	select {
	case err := <-done:
		if err != nil {
			logrus.Warnf("Transport destroy failed: %v", err)
		}
	case <-dctx.Done():
		logrus.Warn("Transport destroy timed out, abandoning session object")
	}
}

// shouldClearSession guards automatic session clearing: enabled AND failure
// threshold reached AND the health heuristic fails.
func (m *Manager) shouldClearSession() bool {
	if !m.cfg.AutoClearSession {
		return false
	}

	m.mu.RLock()
	failures := m.failures
	lastConnected := m.lastConnected
	m.mu.RUnlock()

	if failures < m.cfg.SessionClearThreshold {
		return false
	}
	if m.sessionHealthy(lastConnected) {
		logrus.Info("Failure threshold reached but session looks healthy, keeping it")
		return false
	}
	return true
}

// sessionHealthy inspects the persisted session material: present, non-empty,
// young enough, and a successful connection recently.
func (m *Manager) sessionHealthy(lastConnected time.Time) bool {
	if !m.session.Exists() {
		return false
	}
	empty, err := m.session.Empty()
	if err != nil || empty {
		return false
	}
	age, err := m.session.Age()
	if err != nil {
		return false
	}
	if age > time.Duration(m.cfg.SessionMaxAgeDays)*24*time.Hour {
		return false
	}
	if !lastConnected.IsZero() && time.Since(lastConnected) > m.cfg.StaleConnectionAfter {
		return false
	}
	return true
}

func (m *Manager) clearSession() {
	if backup, err := m.session.Backup(m.cfg.BackupKeep); err != nil {
		logrus.Warnf("Session backup failed, clearing anyway: %v", err)
	} else {
		logrus.Infof("Session material backed up to %s", backup)
	}

	if err := m.session.Clear(); err != nil {
		logrus.Errorf("Failed to clear session material: %v", err)
		return
	}

	m.mu.Lock()
	m.sessionClears++
	m.failures = 0
	m.mu.Unlock()

	m.metrics.SessionClears.Inc()
	logrus.Warn("Persisted session material cleared, fresh pairing required")
}

func (m *Manager) recordFailure() {
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

// retryDelay grows linearly with the combined attempt/clear counter, capped
// so reconnects never hot-loop against a failing remote endpoint.
func (m *Manager) retryDelay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := time.Duration(n) * m.cfg.RetryDelayBase
	if delay > m.cfg.MaxRetryDelay {
		delay = m.cfg.MaxRetryDelay
	}
	return delay
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.enteredAt = time.Now()
	m.mu.Unlock()
	m.metrics.ConnectionState.Set(stateGauge(s))
}

func (m *Manager) currentState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// remainingStateTime returns how long the current state may persist before a
// forced reconnect, or 0 for states without a timeout (pairing waits for the
// external scan; ready and disconnected are stable).
func (m *Manager) remainingStateTime() time.Duration {
	m.mu.RLock()
	state := m.state
	entered := m.enteredAt
	m.mu.RUnlock()

	var limit time.Duration
	switch state {
	case StateConnecting, StateReconnecting:
		limit = m.cfg.ConnectTimeout
	case StateAuthenticating:
		limit = m.cfg.AuthTimeout
	default:
		return 0
	}

	remaining := limit - time.Since(entered)
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}
	return remaining
}

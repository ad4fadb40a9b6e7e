package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chat-task-scanner-go/internal/models"
)

// BridgeClient implements Client against the HTTP sidecar that owns the
// actual chat session. Events are long-polled from the sidecar and fanned
// out on a buffered channel so a slow consumer never blocks the poll loop
// for long.
type BridgeClient struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration

	events chan Event

	mu       sync.Mutex
	cancel   context.CancelFunc
	pollDone chan struct{}
	cursor   int64
}

// wireEvent is the sidecar's event representation.
type wireEvent struct {
	Type    string       `json:"type"`
	Code    string       `json:"code,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	State   string       `json:"state,omitempty"`
	Battery int          `json:"battery,omitempty"`
	Message *wireMessage `json:"message,omitempty"`
}

type wireMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	HasMedia  bool      `json:"has_media"`
}

type eventsPage struct {
	Cursor int64       `json:"cursor"`
	Events []wireEvent `json:"events"`
}

// NewBridgeClient creates a transport client for the given sidecar URL
func NewBridgeClient(baseURL string, pollInterval time.Duration) *BridgeClient {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &BridgeClient{
		baseURL:      baseURL,
		http:         &http.Client{Timeout: 30 * time.Second},
		pollInterval: pollInterval,
		events:       make(chan Event, 256),
	}
}

// Initialize starts the sidecar session and the event poll loop
func (c *BridgeClient) Initialize(ctx context.Context) error {
	if err := c.post(ctx, "/session/start"); err != nil {
		return fmt.Errorf("failed to start transport session: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		// Poll loop already running from a previous cycle; keep it.
		return nil
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.pollDone = make(chan struct{})
	go c.pollLoop(pollCtx)
	return nil
}

// Destroy stops the sidecar session. The poll loop keeps running so that a
// subsequent Initialize resumes event delivery on the same channel.
func (c *BridgeClient) Destroy(ctx context.Context) error {
	if err := c.post(ctx, "/session/stop"); err != nil {
		return fmt.Errorf("failed to stop transport session: %w", err)
	}
	return nil
}

// Close shuts down the poll loop and closes the event channel for good
func (c *BridgeClient) Close() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.pollDone
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		close(c.events)
	}
}

// Events returns the transport event stream
func (c *BridgeClient) Events() <-chan Event {
	return c.events
}

// ListChats returns every conversation the session can see
func (c *BridgeClient) ListChats(ctx context.Context) ([]ChatInfo, error) {
	var chats []ChatInfo
	if err := c.getJSON(ctx, "/chats", &chats); err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}

// ChatByID looks up a single conversation
func (c *BridgeClient) ChatByID(ctx context.Context, chatID string) (*ChatInfo, error) {
	var chat ChatInfo
	if err := c.getJSON(ctx, "/chats/"+url.PathEscape(chatID), &chat); err != nil {
		return nil, fmt.Errorf("failed to get chat %s: %w", chatID, err)
	}
	return &chat, nil
}

// FetchMessages returns up to limit most-recent messages for a chat
func (c *BridgeClient) FetchMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	path := fmt.Sprintf("/chats/%s/messages?limit=%s",
		url.PathEscape(chatID), strconv.Itoa(limit))

	var wire []wireMessage
	if err := c.getJSON(ctx, path, &wire); err != nil {
		return nil, fmt.Errorf("failed to fetch messages for chat %s: %w", chatID, err)
	}

	msgs := make([]models.Message, 0, len(wire))
	for _, w := range wire {
		msgs = append(msgs, w.toModel())
	}
	return msgs, nil
}

func (w *wireMessage) toModel() models.Message {
	return models.Message{
		ID:        w.ID,
		ChatID:    w.ChatID,
		Sender:    w.Sender,
		Body:      w.Body,
		Timestamp: w.Timestamp,
		HasMedia:  w.HasMedia,
	}
}

// pollLoop long-polls the sidecar event endpoint and forwards events
func (c *BridgeClient) pollLoop(ctx context.Context) {
	defer close(c.pollDone)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		page, err := c.fetchEvents(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logrus.Debugf("Transport event poll failed: %v", err)
			continue
		}

		for _, we := range page.Events {
			ev := we.toEvent()
			select {
			case c.events <- ev:
			case <-ctx.Done():
				return
			}
		}
		c.mu.Lock()
		c.cursor = page.Cursor
		c.mu.Unlock()
	}
}

func (c *BridgeClient) fetchEvents(ctx context.Context) (*eventsPage, error) {
	c.mu.Lock()
	cursor := c.cursor
	c.mu.Unlock()

	var page eventsPage
	path := fmt.Sprintf("/events?cursor=%d", cursor)
	if err := c.getJSON(ctx, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (we *wireEvent) toEvent() Event {
	ev := Event{
		Kind:    EventKind(we.Type),
		Code:    we.Code,
		Reason:  we.Reason,
		State:   we.State,
		Battery: we.Battery,
	}
	if we.Message != nil {
		m := we.Message.toModel()
		ev.Message = &m
	}
	return ev
}

func (c *BridgeClient) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bridge returned %s for POST %s", resp.Status, path)
	}
	return nil
}

func (c *BridgeClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bridge returned %s for GET %s", resp.Status, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

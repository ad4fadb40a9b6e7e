package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridge is an httptest stand-in for the sidecar: it serves a fixed chat
// list, per-chat messages, and a single page of events past cursor 0.
type fakeBridge struct {
	mu       sync.Mutex
	started  int
	stopped  int
	messages []wireMessage
	events   []wireEvent
}

func (b *fakeBridge) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/session/start", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.started++
		b.mu.Unlock()
	})
	mux.HandleFunc("/session/stop", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.stopped++
		b.mu.Unlock()
	})
	mux.HandleFunc("/chats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]ChatInfo{
			{ID: "123@g.us", Name: "Family", IsGroup: true, Participants: 4},
			{ID: "456@c.us", Name: "Alice"},
		})
	})
	mux.HandleFunc("/chats/123@g.us/messages", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		msgs := b.messages
		if limit > 0 && len(msgs) > limit {
			msgs = msgs[:limit]
		}
		json.NewEncoder(w).Encode(msgs)
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		page := eventsPage{Cursor: int64(len(b.events))}
		if r.URL.Query().Get("cursor") == "0" {
			page.Events = b.events
		}
		json.NewEncoder(w).Encode(page)
	})
	return mux
}

func TestBridgeClientSessionLifecycle(t *testing.T) {
	bridge := &fakeBridge{}
	srv := httptest.NewServer(bridge.handler())
	defer srv.Close()

	client := NewBridgeClient(srv.URL, 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, client.Initialize(ctx))
	require.NoError(t, client.Destroy(ctx))
	// A reconnect cycle restarts the session without disturbing the loop.
	require.NoError(t, client.Initialize(ctx))
	client.Close()

	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	assert.Equal(t, 2, bridge.started)
	assert.Equal(t, 1, bridge.stopped)

	_, open := <-client.Events()
	assert.False(t, open, "event channel closes with the client")
}

func TestBridgeClientEvents(t *testing.T) {
	msg := wireMessage{
		ID:        "m1",
		ChatID:    "123@g.us",
		Sender:    "bob",
		Body:      "Dinner Friday at 8pm?",
		Timestamp: time.Date(2026, 8, 28, 20, 0, 0, 0, time.UTC),
	}
	bridge := &fakeBridge{
		events: []wireEvent{
			{Type: "ready"},
			{Type: "message-received", Message: &msg},
		},
	}
	srv := httptest.NewServer(bridge.handler())
	defer srv.Close()

	client := NewBridgeClient(srv.URL, 10*time.Millisecond)
	require.NoError(t, client.Initialize(context.Background()))
	defer client.Close()

	deadline := time.After(2 * time.Second)
	var got []Event
	for len(got) < 2 {
		select {
		case ev := <-client.Events():
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %d", len(got))
		}
	}

	assert.Equal(t, EventReady, got[0].Kind)
	assert.Equal(t, EventMessage, got[1].Kind)
	require.NotNil(t, got[1].Message)
	assert.Equal(t, "m1", got[1].Message.ID)
	assert.Equal(t, "Dinner Friday at 8pm?", got[1].Message.Body)
	assert.True(t, got[1].Message.Timestamp.Equal(msg.Timestamp))
}

func TestBridgeClientFetchAndList(t *testing.T) {
	bridge := &fakeBridge{
		messages: []wireMessage{
			{ID: "m2", ChatID: "123@g.us", Body: "newest"},
			{ID: "m1", ChatID: "123@g.us", Body: "older"},
		},
	}
	srv := httptest.NewServer(bridge.handler())
	defer srv.Close()

	client := NewBridgeClient(srv.URL, time.Second)
	ctx := context.Background()

	chats, err := client.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "Family", chats[0].Name)
	assert.True(t, chats[0].IsGroup)

	msgs, err := client.FetchMessages(ctx, "123@g.us", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].ID, "messages arrive newest first")
}

func TestBridgeClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not started", http.StatusConflict)
	}))
	defer srv.Close()

	client := NewBridgeClient(srv.URL, time.Second)
	ctx := context.Background()

	assert.Error(t, client.Initialize(ctx))
	_, err := client.ListChats(ctx)
	assert.Error(t, err)
}

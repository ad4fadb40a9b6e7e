// Package transport defines the contract between the scanner and the chat
// transport: the events the transport raises and the calls the scanner makes
// against it. The concrete implementation in this package talks to a
// sidecar bridge process over HTTP; everything downstream depends only on
// the interface.
package transport

import (
	"context"

	"chat-task-scanner-go/internal/models"
)

// EventKind identifies a transport lifecycle or message event.
type EventKind string

const (
	EventPairingCode   EventKind = "pairing-code-issued"
	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventAuthFailure   EventKind = "auth-failed"
	EventDisconnected  EventKind = "disconnected"
	EventMessage       EventKind = "message-received"
	EventBattery       EventKind = "battery-changed"
	EventStateChange   EventKind = "state-changed"
)

// Event is a single transport event. Only the fields relevant to the Kind
// are populated.
type Event struct {
	Kind    EventKind
	Code    string // pairing code
	Reason  string // auth failure / disconnect reason
	State   string // raw transport state string
	Battery int
	Message *models.Message
}

// ChatInfo describes a conversation known to the transport.
type ChatInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsGroup      bool   `json:"is_group"`
	Participants int    `json:"participants"`
}

// Client is the transport call surface. Implementations must be safe for
// concurrent use; every call honors context cancellation.
type Client interface {
	// Initialize starts (or restarts) the transport session. Events begin
	// flowing on the Events channel afterwards.
	Initialize(ctx context.Context) error

	// Destroy tears down the transport session object. It may be slow on a
	// wedged session; callers bound it with a timeout.
	Destroy(ctx context.Context) error

	// ListChats returns every conversation the session can see.
	ListChats(ctx context.Context) ([]ChatInfo, error)

	// ChatByID looks up a single conversation.
	ChatByID(ctx context.Context, chatID string) (*ChatInfo, error)

	// FetchMessages returns up to limit most-recent messages for a chat,
	// newest first.
	FetchMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error)

	// Events is the stream of transport events. The channel is closed when
	// the client is destroyed for good.
	Events() <-chan Event
}

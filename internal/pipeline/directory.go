package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"chat-task-scanner-go/internal/models"
	"chat-task-scanner-go/internal/store"
	"chat-task-scanner-go/internal/transport"
)

// ChatDirectory is the process-wide cache of monitored chats. It is the only
// writer of its own state; readers get consistent snapshots under the lock.
type ChatDirectory struct {
	chats       *store.ChatStore
	commandChat string

	mu   sync.RWMutex
	byID map[string]models.ChatConfig
}

// NewChatDirectory creates a chat directory backed by the chat store
func NewChatDirectory(chats *store.ChatStore, commandChat string) *ChatDirectory {
	return &ChatDirectory{
		chats:       chats,
		commandChat: commandChat,
		byID:        make(map[string]models.ChatConfig),
	}
}

// Refresh reloads the monitored-chat cache from the store
func (d *ChatDirectory) Refresh(ctx context.Context) error {
	monitored, err := d.chats.Monitored(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]models.ChatConfig, len(monitored))
	for _, c := range monitored {
		byID[c.ChatID] = c
	}

	d.mu.Lock()
	d.byID = byID
	d.mu.Unlock()

	logrus.Infof("Chat directory refreshed: %d monitored chats", len(byID))
	return nil
}

// Sync reconciles the transport's chat list against the configured monitored
// names, then refreshes the cache. Names match case-insensitively.
func (d *ChatDirectory) Sync(ctx context.Context, client transport.Client, monitoredNames []string) error {
	infos, err := client.ListChats(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(monitoredNames))
	for _, name := range monitoredNames {
		wanted[strings.ToLower(strings.TrimSpace(name))] = true
	}

	matched := 0
	for _, info := range infos {
		monitored := wanted[strings.ToLower(info.Name)]
		chat := models.ChatConfig{
			ChatID:       info.ID,
			Name:         info.Name,
			Monitored:    monitored,
			IsGroup:      info.IsGroup,
			Participants: info.Participants,
		}
		if err := d.chats.Upsert(ctx, &chat); err != nil {
			logrus.Warnf("Failed to upsert chat %s: %v", info.Name, err)
			continue
		}
		if monitored {
			// Upsert preserves an operator-set flag; make sure configured
			// chats are actually on.
			if err := d.chats.SetMonitored(ctx, info.ID, true); err != nil {
				logrus.Warnf("Failed to mark chat %s monitored: %v", info.Name, err)
				continue
			}
			matched++
		}
	}

	if matched < len(monitoredNames) {
		logrus.Warnf("Only %d of %d configured chats were found on the transport", matched, len(monitoredNames))
	}

	return d.Refresh(ctx)
}

// IsMonitored reports whether a chat's messages enter the pipeline
func (d *ChatDirectory) IsMonitored(chatID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.byID[chatID]
	return ok
}

// IsCommandChat reports whether a chat is the operator command chat, which is
// exempt from classification.
func (d *ChatDirectory) IsCommandChat(chatID string) bool {
	if d.commandChat == "" {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	chat, ok := d.byID[chatID]
	if !ok {
		return false
	}
	return strings.EqualFold(chat.Name, d.commandChat)
}

// Monitored returns a snapshot of the monitored chats
func (d *ChatDirectory) Monitored() []models.ChatConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.ChatConfig, 0, len(d.byID))
	for _, c := range d.byID {
		out = append(out, c)
	}
	return out
}

// Name returns the display name for a chat id, or the id itself when unknown
func (d *ChatDirectory) Name(chatID string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.byID[chatID]; ok {
		return c.Name
	}
	return chatID
}

package repository

import (
	"context"

	"github.com/KuzeyMurathan/shadchat/internal/model"
)

// Repository defines the interface for data storage operations.
// This interface makes it easy to switch database implementations.
//
// Conversations are stored as documents: SaveConversation persists the whole
// aggregate (row plus message list) and is idempotent, so the orchestrator
// can call it at every durable point of an exchange and a subsequent
// GetConversation always reflects the most recent save.
type Repository interface {
	SaveConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	ListConversations(ctx context.Context) ([]model.Summary, error)
	UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error
	SetConversationPinned(ctx context.Context, conversationID string, pinned bool) error
	DeleteConversation(ctx context.Context, conversationID string) error

	// Settings are flat key/value pairs; the settings service composes them
	// into its document.
	GetSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
}

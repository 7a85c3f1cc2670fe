package interfaces

import (
	"context"

	"github.com/KuzeyMurathan/shadchat/internal/model"
	"github.com/KuzeyMurathan/shadchat/internal/service"
)

// This file defines the interfaces for our core services.
// Depending on these interfaces, instead of concrete implementations, allows for
// decoupling (e.g., API layer from Service layer) and easier testing via mocking.

// ChatService defines the contract for conversation and exchange logic.
type ChatService interface {
	SendMessage(ctx context.Context, req *service.SendMessageRequest) (<-chan model.StreamEvent, error)
	RetryMessage(ctx context.Context, conversationID, messageID string) (<-chan model.StreamEvent, error)
	ContinueWithoutSystemPrompt(ctx context.Context, conversationID string) (<-chan model.StreamEvent, error)
	StopStreaming(conversationID string) bool
	SessionCost() float64
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	ListConversations(ctx context.Context) ([]model.Summary, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error
	SetConversationPinned(ctx context.Context, conversationID string, pinned bool) error
}

// ModelService defines the contract for the provider catalog.
type ModelService interface {
	Providers() []string
	ListModels(ctx context.Context, providerID string) ([]model.ModelInfo, error)
}

// SettingsService defines the contract for managing application settings.
type SettingsService interface {
	Get(ctx context.Context) (*service.Settings, error)
	Save(ctx context.Context, settings *service.Settings) error
}

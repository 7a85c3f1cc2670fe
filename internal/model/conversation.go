package model

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the aggregate the whole application revolves around: an
// ordered message history bound to one provider/model pair, plus the running
// cost total.
type Conversation struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	ProviderID          string     `json:"provider_id"`
	ModelID             string     `json:"model_id"`
	Messages            []*Message `json:"messages"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	TotalCost           float64    `json:"total_cost"`
	DisableSystemPrompt bool       `json:"disable_system_prompt,omitempty"`
	Pinned              bool       `json:"pinned,omitempty"`
	GroupID             string     `json:"group_id,omitempty"`
}

// Summary is the listing view of a conversation: everything except the
// message bodies.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ProviderID   string    `json:"provider_id"`
	ModelID      string    `json:"model_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	TotalCost    float64   `json:"total_cost"`
	Pinned       bool      `json:"pinned,omitempty"`
	GroupID      string    `json:"group_id,omitempty"`
	MessageCount int       `json:"message_count"`
}

// NewConversation creates an empty conversation for the given provider/model.
func NewConversation(providerID, modelID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		ModelID:    modelID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Append adds a message to the end of the history and bumps UpdatedAt.
func (c *Conversation) Append(m *Message) {
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = time.Now()
}

// LastMessage returns the newest message, or nil for an empty history.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// IndexOf returns the position of the message with the given id, or -1.
func (c *Conversation) IndexOf(messageID string) int {
	for i, m := range c.Messages {
		if m.ID == messageID {
			return i
		}
	}
	return -1
}

// TruncateTo discards every message after the one with the given id, keeping
// the target itself. Returns false when the id is not part of the history.
func (c *Conversation) TruncateTo(messageID string) bool {
	i := c.IndexOf(messageID)
	if i < 0 {
		return false
	}
	c.Messages = c.Messages[:i+1]
	c.UpdatedAt = time.Now()
	return true
}

// Summary projects the conversation onto its listing view.
func (c *Conversation) Summary() Summary {
	return Summary{
		ID:           c.ID,
		Title:        c.Title,
		ProviderID:   c.ProviderID,
		ModelID:      c.ModelID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		TotalCost:    c.TotalCost,
		Pinned:       c.Pinned,
		GroupID:      c.GroupID,
		MessageCount: len(c.Messages),
	}
}

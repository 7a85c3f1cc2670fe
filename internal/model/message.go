package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message stores a single message in a conversation.
//
// An assistant message begins life as an empty placeholder with Streaming set,
// is mutated token by token while the vendor response arrives, and is
// finalized exactly once. The same struct is never replaced mid-exchange, so
// anything holding a pointer to it observes the content grow.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Model       string       `json:"model,omitempty"` // Model used for this specific message.
	Timestamp   time.Time    `json:"timestamp"`
	TokenCount  int          `json:"token_count,omitempty"`
	Timing      *Timing      `json:"timing,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Streaming   bool         `json:"streaming,omitempty"`

	stream strings.Builder
}

// Timing records how a streamed exchange performed. Durations are serialized
// in nanoseconds.
type Timing struct {
	TTFT         time.Duration `json:"ttft_ns"`
	Total        time.Duration `json:"total_ns"`
	TokensPerSec float64       `json:"tokens_per_sec"`
}

// NewUserMessage builds a user message with a fresh id.
func NewUserMessage(content string, attachments []Attachment) *Message {
	return &Message{
		ID:          uuid.NewString(),
		Role:        RoleUser,
		Content:     content,
		Timestamp:   time.Now(),
		Attachments: attachments,
	}
}

// NewAssistantPlaceholder builds the empty assistant message that is appended
// to a conversation before the vendor request goes out.
func NewAssistantPlaceholder(modelID string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Model:     modelID,
		Timestamp: time.Now(),
		Streaming: true,
	}
}

// AppendToken appends one streamed token. Content always reflects the text
// accumulated so far, so a partial exchange can be persisted as-is.
func (m *Message) AppendToken(token string) {
	m.stream.WriteString(token)
	m.Content = m.stream.String()
}

// FinalizeStream closes the streaming phase. Safe to call when nothing was
// ever appended (the content stays whatever it already is).
func (m *Message) FinalizeStream() {
	if m.stream.Len() > 0 {
		m.Content = m.stream.String()
	}
	m.Streaming = false
}

// IsPlaceholder reports whether the message is an assistant message that has
// not received any content yet, the position required for resending a failed
// exchange.
func (m *Message) IsPlaceholder() bool {
	return m.Role == RoleAssistant && m.Content == "" && m.stream.Len() == 0
}

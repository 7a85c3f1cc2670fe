package model

// Codes attached to terminal stream events so the client can tell a
// recoverable condition from a dead end.
const (
	// CodeSystemPromptUnsupported marks the vendor rejection of the system
	// role. The client resolves it by calling the continue endpoint, which
	// resends the exchange without the system prompt.
	CodeSystemPromptUnsupported = "system_prompt_unsupported"
)

// StreamEvent is the structure for a single chunk in a streaming response.
// While the exchange runs, events carry Content deltas; the terminal event
// has Done set and carries the finalized message plus the cost attributed to
// the exchange.
type StreamEvent struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	MessageID      string   `json:"message_id,omitempty"`
	Content        string   `json:"content,omitempty"`
	Done           bool     `json:"done"`
	Error          string   `json:"error,omitempty"`
	Code           string   `json:"code,omitempty"`
	Message        *Message `json:"message,omitempty"`
	Cost           float64  `json:"cost,omitempty"`
	SessionCost    float64  `json:"session_cost,omitempty"`
}

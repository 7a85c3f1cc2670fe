package model

// ModelPricing is the USD price per million tokens in each direction.
type ModelPricing struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// ModelInfo describes one entry of a provider's model catalog. Pricing is
// only set when the vendor catalog carries it (OpenRouter does, the others
// rely on the adapter's static table).
type ModelInfo struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	ContextLength     int           `json:"context_length,omitempty"`
	SupportsImages    bool          `json:"supports_images,omitempty"`
	SupportsDocuments bool          `json:"supports_documents,omitempty"`
	Pricing           *ModelPricing `json:"pricing,omitempty"`
}

// ChatConfig carries the per-request generation parameters. It is assembled
// by the orchestrator for each exchange and never persisted.
type ChatConfig struct {
	Model        string   `json:"model"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
}

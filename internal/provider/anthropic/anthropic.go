// Package anthropic implements the adapter for the Anthropic Messages API.
// The protocol differs from the OpenAI family in every part that matters
// here: auth rides in x-api-key, the system prompt is a top-level field, the
// stream is made of typed events, and there is no catalog endpoint.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/KuzeyMurathan/shadchat/internal/model"
	"github.com/KuzeyMurathan/shadchat/internal/provider"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"
	// pdfBeta opts the request into document blocks; required whenever a
	// PDF attachment is present.
	pdfBeta = "pdfs-2024-09-25"
	// defaultMaxTokens fills the mandatory max_tokens field when the
	// request does not set one.
	defaultMaxTokens = 4096
)

var pricing = provider.PriceTable{
	Tiers: []provider.PriceTier{
		{Match: "claude-3-5-sonnet", Input: 3, Output: 15},
		{Match: "claude-3-5-haiku", Input: 0.80, Output: 4},
		{Match: "claude-3-opus", Input: 15, Output: 75},
		{Match: "claude-3-sonnet", Input: 3, Output: 15},
		{Match: "claude-3-haiku", Input: 0.25, Output: 1.25},
	},
	Default: provider.PriceTier{Input: 3, Output: 15},
}

// catalog is static: the vendor has no public models endpoint, so the
// adapter ships the list.
var catalog = []model.ModelInfo{
	{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextLength: 200000, SupportsImages: true, SupportsDocuments: true},
	{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextLength: 200000, SupportsImages: true},
	{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", ContextLength: 200000, SupportsImages: true},
	{ID: "claude-3-sonnet-20240229", Name: "Claude 3 Sonnet", ContextLength: 200000, SupportsImages: true},
	{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextLength: 200000, SupportsImages: true},
}

// Client talks to the Anthropic Messages API.
type Client struct {
	baseURL string
	client  *http.Client
}

// New builds the adapter. An empty baseURL keeps the production endpoint.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (c *Client) ID() string { return "anthropic" }

// FetchModels returns the static catalog; it never fails.
func (c *Client) FetchModels(ctx context.Context, apiKey string) ([]model.ModelInfo, error) {
	models := make([]model.ModelInfo, len(catalog))
	copy(models, catalog)
	return models, nil
}

// EstimateCost prices an exchange against the static table.
func (c *Client) EstimateCost(inputTokens, outputTokens int, modelID string) float64 {
	return pricing.Cost(inputTokens, outputTokens, modelID)
}

// --- Chat ---

type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role string `json:"role"`
	// Content is a plain string for text-only messages and a slice of
	// contentBlock when attachments ride along.
	Content any `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *blockSource `json:"source,omitempty"`
}

type blockSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// streamEvent is the union of every event payload the stream can carry; the
// Type field says which parts are populated.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StreamChat sends the history to POST /messages and decodes the typed event
// stream. See provider.Adapter for the callback lifecycle.
func (c *Client) StreamChat(ctx context.Context, messages []*model.Message, cfg model.ChatConfig, apiKey string, cb provider.Callbacks) {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	wire, hasPDF := buildMessages(messages)
	payload := messagesRequest{
		Model:       cfg.Model,
		MaxTokens:   maxTokens,
		System:      cfg.SystemPrompt,
		Messages:    wire,
		Stream:      true,
		Temperature: cfg.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		cb.Fail(fmt.Errorf("could not marshal request: %w", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewBuffer(body))
	if err != nil {
		cb.Fail(fmt.Errorf("could not create request: %w", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	if hasPDF {
		req.Header.Set("anthropic-beta", pdfBeta)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		cb.Fail(&provider.Error{Provider: "anthropic", Kind: provider.KindHTTP, Message: "request failed", Cause: err})
		return
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		cb.Fail(&provider.Error{Provider: "anthropic", Kind: provider.KindNoBody, Cause: provider.ErrNoResponseBody})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		cb.Fail(classifyStatus(resp.StatusCode, provider.ReadErrorBody(resp.Body)))
		return
	}

	c.scanStream(ctx, resp, cb)
}

// scanStream consumes the event stream. Text only arrives on
// content_block_delta events carrying a text_delta; every other event type
// (message_start, ping, content_block_start/stop, message_delta) is
// bookkeeping and gets skipped. message_stop terminates the exchange.
func (c *Client) scanStream(ctx context.Context, resp *http.Response, cb provider.Callbacks) {
	var full strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				full.WriteString(event.Delta.Text)
				cb.Token(event.Delta.Text)
			}
		case "message_stop":
			cb.Complete(full.String())
			return
		case "error":
			message := "stream error"
			if event.Error != nil {
				message = event.Error.Message
			}
			cb.Fail(&provider.Error{Provider: "anthropic", Kind: provider.KindHTTP, Message: message})
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		cb.Fail(&provider.Error{Provider: "anthropic", Kind: provider.KindStream, Message: "stream read failed", Cause: err})
		return
	}
	cb.Complete(full.String())
}

// buildMessages maps the domain history onto the wire format and reports
// whether any PDF rides along (which decides the beta header). Attachments
// precede the text block within a message. Attachments that are neither
// images nor PDFs have no representation in this protocol and are omitted.
func buildMessages(messages []*model.Message) ([]chatMessage, bool) {
	out := make([]chatMessage, 0, len(messages))
	hasPDF := false
	for _, m := range messages {
		if len(m.Attachments) == 0 {
			out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
			continue
		}
		var blocks []contentBlock
		for _, a := range m.Attachments {
			mime, payload, err := a.DecodeDataURL()
			if err != nil {
				continue
			}
			switch {
			case a.IsPDF():
				hasPDF = true
				blocks = append(blocks, contentBlock{Type: "document", Source: &blockSource{Type: "base64", MediaType: "application/pdf", Data: payload}})
			case a.IsImage():
				blocks = append(blocks, contentBlock{Type: "image", Source: &blockSource{Type: "base64", MediaType: mime, Data: payload}})
			}
		}
		if m.Content != "" {
			blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
		}
		if len(blocks) == 0 {
			out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
			continue
		}
		out = append(out, chatMessage{Role: string(m.Role), Content: blocks})
	}
	return out, hasPDF
}

// classifyStatus turns a non-200 response into a typed error, preserving the
// vendor's wording from the JSON error envelope when one is present.
func classifyStatus(status int, body string) error {
	message := body
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	kind := provider.KindHTTP
	if systemPromptRejected(message) {
		kind = provider.KindSystemPrompt
	}
	return &provider.Error{Provider: "anthropic", Kind: kind, Status: status, Message: message}
}

// systemPromptRejected matches the phrasings used when a model rejects the
// top-level system field.
func systemPromptRejected(message string) bool {
	lower := strings.ToLower(message)
	for _, needle := range []string{
		"system: extra inputs are not permitted",
		"system prompt is not supported",
		"does not support system",
	} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

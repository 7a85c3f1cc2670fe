// Package openai implements the adapter for the OpenAI-compatible protocol
// family. OpenAI, xAI, Groq and OpenRouter all speak the same chat
// completions dialect, so one client type covers all four; the constructors
// differ only in base URL, extra headers, catalog filter and pricing table.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/KuzeyMurathan/shadchat/internal/model"
	"github.com/KuzeyMurathan/shadchat/internal/provider"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultXAIBaseURL        = "https://api.x.ai/v1"
	defaultGroqBaseURL       = "https://api.groq.com/openai/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// Config assembles one member of the protocol family.
type Config struct {
	ID      string
	BaseURL string
	// Headers are sent on every request in addition to auth and content
	// type (OpenRouter wants app attribution).
	Headers map[string]string
	Pricing provider.PriceTable
	// Include filters the vendor catalog down to chat-capable models.
	Include func(modelID string) bool
}

// Client talks to one OpenAI-compatible vendor.
type Client struct {
	id      string
	baseURL string
	headers map[string]string
	pricing provider.PriceTable
	include func(string) bool
	client  *http.Client
}

// New builds a client from an explicit Config. The named constructors below
// are the usual entry points.
func New(cfg Config) *Client {
	return &Client{
		id:      cfg.ID,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		pricing: cfg.Pricing,
		include: cfg.Include,
		client:  &http.Client{},
	}
}

// NewOpenAI returns the adapter for api.openai.com. An empty baseURL keeps
// the default endpoint.
func NewOpenAI(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return New(Config{
		ID:      "openai",
		BaseURL: baseURL,
		Pricing: openAIPricing,
		Include: func(id string) bool {
			return strings.HasPrefix(id, "gpt-") ||
				strings.HasPrefix(id, "chatgpt-") ||
				strings.HasPrefix(id, "o1")
		},
	})
}

// NewXAI returns the adapter for api.x.ai.
func NewXAI(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultXAIBaseURL
	}
	return New(Config{
		ID:      "xai",
		BaseURL: baseURL,
		Pricing: xaiPricing,
		Include: func(id string) bool { return strings.HasPrefix(id, "grok") },
	})
}

// NewGroq returns the adapter for api.groq.com. Groq lists Whisper
// transcription models in the same catalog; those are filtered out.
func NewGroq(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	return New(Config{
		ID:      "groq",
		BaseURL: baseURL,
		Pricing: groqPricing,
		Include: func(id string) bool { return !strings.Contains(id, "whisper") },
	})
}

// NewOpenRouter returns the adapter for openrouter.ai. The catalog there is
// a meta-catalog spanning many upstream vendors and carries per-token
// pricing, which gets surfaced on the returned ModelInfo entries.
func NewOpenRouter(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	return New(Config{
		ID:      "openrouter",
		BaseURL: baseURL,
		Headers: map[string]string{
			"HTTP-Referer": "https://github.com/KuzeyMurathan/shadchat",
			"X-Title":      "shadchat",
		},
		Pricing: openRouterPricing,
	})
}

func (c *Client) ID() string { return c.id }

// EstimateCost prices an exchange against the vendor's static table.
func (c *Client) EstimateCost(inputTokens, outputTokens int, modelID string) float64 {
	return c.pricing.Cost(inputTokens, outputTokens, modelID)
}

// --- Catalog ---

type catalogResponse struct {
	Data []catalogModel `json:"data"`
}

type catalogModel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length"`
	Pricing       *struct {
		Prompt     string `json:"prompt"`
		Completion string `json:"completion"`
	} `json:"pricing"`
	Architecture *struct {
		Modality string `json:"modality"`
	} `json:"architecture"`
}

// FetchModels lists the vendor's chat models via GET /models.
func (c *Client) FetchModels(ctx context.Context, apiKey string) ([]model.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("could not create catalog request: %w", err)
	}
	c.setHeaders(req, apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &provider.Error{Provider: c.id, Kind: provider.KindCatalog, Message: "catalog request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &provider.Error{
			Provider: c.id,
			Kind:     provider.KindCatalog,
			Status:   resp.StatusCode,
			Message:  provider.ReadErrorBody(resp.Body),
		}
	}

	var catalog catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, &provider.Error{Provider: c.id, Kind: provider.KindCatalog, Message: "could not decode catalog", Cause: err}
	}

	models := make([]model.ModelInfo, 0, len(catalog.Data))
	for _, m := range catalog.Data {
		if c.include != nil && !c.include(m.ID) {
			continue
		}
		info := model.ModelInfo{
			ID:             m.ID,
			Name:           m.Name,
			ContextLength:  m.ContextLength,
			SupportsImages: visionModel(m.ID),
		}
		if info.Name == "" {
			info.Name = m.ID
		}
		if info.ContextLength == 0 {
			info.ContextLength = contextWindow(m.ID)
		}
		if m.Architecture != nil && strings.Contains(m.Architecture.Modality, "image") {
			info.SupportsImages = true
		}
		if m.Pricing != nil {
			info.Pricing = perMillionPricing(m.Pricing.Prompt, m.Pricing.Completion)
		}
		models = append(models, info)
	}
	return models, nil
}

// perMillionPricing converts the per-token decimal strings of the OpenRouter
// catalog into per-million rates. Unparseable pricing is dropped rather than
// guessed at.
func perMillionPricing(prompt, completion string) *model.ModelPricing {
	in, err := strconv.ParseFloat(prompt, 64)
	if err != nil {
		return nil
	}
	out, err := strconv.ParseFloat(completion, 64)
	if err != nil {
		return nil
	}
	return &model.ModelPricing{Input: in * 1e6, Output: out * 1e6}
}

// visionModel guesses image support from the model id for vendors whose
// catalog carries no modality metadata.
func visionModel(id string) bool {
	switch {
	case strings.Contains(id, "vision"):
		return true
	case strings.HasPrefix(id, "gpt-4o"), strings.HasPrefix(id, "chatgpt-4o"):
		return true
	case strings.HasPrefix(id, "gpt-4-turbo"), strings.HasPrefix(id, "o1"):
		return true
	}
	return false
}

// contextWindow backfills a context length for catalogs that omit one.
func contextWindow(id string) int {
	switch {
	case strings.HasPrefix(id, "gpt-4o"), strings.HasPrefix(id, "chatgpt-4o"),
		strings.HasPrefix(id, "gpt-4-turbo"), strings.HasPrefix(id, "o1"):
		return 128000
	case strings.HasPrefix(id, "gpt-4"):
		return 8192
	case strings.HasPrefix(id, "gpt-3.5"):
		return 16385
	case strings.HasPrefix(id, "grok"):
		return 131072
	case strings.Contains(id, "llama-3"), strings.Contains(id, "llama3"):
		return 131072
	case strings.Contains(id, "mixtral"):
		return 32768
	}
	return 0
}

// --- Chat ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role string `json:"role"`
	// Content is a plain string for text-only messages and a slice of
	// contentPart when attachments ride along.
	Content any `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// StreamChat sends the history to POST /chat/completions and decodes the SSE
// reply. See provider.Adapter for the callback lifecycle.
func (c *Client) StreamChat(ctx context.Context, messages []*model.Message, cfg model.ChatConfig, apiKey string, cb provider.Callbacks) {
	payload := chatRequest{
		Model:       cfg.Model,
		Messages:    buildMessages(messages, cfg.SystemPrompt),
		Stream:      true,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		cb.Fail(fmt.Errorf("could not marshal request: %w", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		cb.Fail(fmt.Errorf("could not create request: %w", err))
		return
	}
	c.setHeaders(req, apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		cb.Fail(&provider.Error{Provider: c.id, Kind: provider.KindHTTP, Message: "request failed", Cause: err})
		return
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		cb.Fail(&provider.Error{Provider: c.id, Kind: provider.KindNoBody, Cause: provider.ErrNoResponseBody})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		cb.Fail(c.classifyStatus(resp.StatusCode, provider.ReadErrorBody(resp.Body)))
		return
	}

	c.scanStream(ctx, resp, cb)
}

// scanStream consumes `data:` SSE lines until [DONE], a vendor error chunk,
// EOF or cancellation. Malformed lines are skipped; the stream keeps going.
func (c *Client) scanStream(ctx context.Context, resp *http.Response, cb provider.Callbacks) {
	var full strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			cb.Complete(full.String())
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			cb.Fail(&provider.Error{Provider: c.id, Kind: provider.KindHTTP, Message: chunk.Error.Message})
			return
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			full.WriteString(delta)
			cb.Token(delta)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		cb.Fail(&provider.Error{Provider: c.id, Kind: provider.KindStream, Message: "stream read failed", Cause: err})
		return
	}
	// Clean EOF without [DONE], or a cancelled context: the text gathered
	// so far is the answer.
	cb.Complete(full.String())
}

// buildMessages maps the domain history onto the wire format. The system
// prompt, when present, leads as a system-role message. Image attachments
// expand the content into typed blocks; other attachment kinds have no
// representation in this protocol and are omitted.
func buildMessages(messages []*model.Message, systemPrompt string) []chatMessage {
	out := make([]chatMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, chatMessage{Role: string(model.RoleSystem), Content: systemPrompt})
	}
	for _, m := range messages {
		images := imageAttachments(m.Attachments)
		if len(images) == 0 {
			out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
			continue
		}
		parts := make([]contentPart, 0, len(images)+1)
		if m.Content != "" {
			parts = append(parts, contentPart{Type: "text", Text: m.Content})
		}
		for _, a := range images {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageRef{URL: a.Data}})
		}
		out = append(out, chatMessage{Role: string(m.Role), Content: parts})
	}
	return out
}

func imageAttachments(attachments []model.Attachment) []model.Attachment {
	var images []model.Attachment
	for _, a := range attachments {
		if a.IsImage() {
			images = append(images, a)
		}
	}
	return images
}

func (c *Client) setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

// classifyStatus turns a non-200 chat response into a typed error. The
// vendor's own wording is preserved; a rejection of the system role is
// marked recoverable so the orchestrator can offer the retry-without-prompt
// path.
func (c *Client) classifyStatus(status int, body string) error {
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
	return &provider.Error{Provider: c.id, Kind: kind, Status: status, Message: message}
}

// systemPromptRejected matches the phrasings this family uses when a model
// refuses the system role (o1 models on OpenAI, Gemma on Groq).
func systemPromptRejected(message string) bool {
	lower := strings.ToLower(message)
	for _, needle := range []string{
		"does not support 'system'",
		"does not support system",
		"system role not supported",
		"system prompt is not supported",
		"unsupported value: 'messages[0].role'",
	} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

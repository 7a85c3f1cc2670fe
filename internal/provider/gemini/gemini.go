// Package gemini implements the adapter for the Google Gemini API. The
// protocol authenticates through a key query parameter, needs roles mapped
// (assistant becomes "model"), and streams the reply as one long JSON array
// rather than SSE, which is why the decode loop below rides a json.Decoder
// instead of a line scanner.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/KuzeyMurathan/shadchat/internal/model"
	"github.com/KuzeyMurathan/shadchat/internal/provider"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

var pricing = provider.PriceTable{
	Tiers: []provider.PriceTier{
		{Match: "gemini-1.5-flash-8b", Input: 0.0375, Output: 0.15},
		{Match: "gemini-1.5-flash", Input: 0.075, Output: 0.30},
		{Match: "gemini-1.5-pro", Input: 1.25, Output: 5},
		{Match: "gemini-2.0-flash", Input: 0.10, Output: 0.40},
		{Match: "gemini-1.0-pro", Input: 0.50, Output: 1.50},
	},
	Default: provider.PriceTier{Input: 0.075, Output: 0.30},
}

// Client talks to the Gemini generative language API.
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

func (c *Client) ID() string { return "gemini" }

// EstimateCost prices an exchange against the static table.
func (c *Client) EstimateCost(inputTokens, outputTokens int, modelID string) float64 {
	return pricing.Cost(inputTokens, outputTokens, modelID)
}

// --- Catalog ---

type catalogResponse struct {
	Models []catalogModel `json:"models"`
}

type catalogModel struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName"`
	InputTokenLimit            int      `json:"inputTokenLimit"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

// FetchModels lists the chat-capable models: entries whose supported
// generation methods include generateContent. Ids drop the "models/"
// resource prefix the API uses.
func (c *Client) FetchModels(ctx context.Context, apiKey string) ([]model.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/models", apiKey), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create catalog request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &provider.Error{Provider: "gemini", Kind: provider.KindCatalog, Message: "catalog request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &provider.Error{
			Provider: "gemini",
			Kind:     provider.KindCatalog,
			Status:   resp.StatusCode,
			Message:  provider.ReadErrorBody(resp.Body),
		}
	}

	var catalog catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, &provider.Error{Provider: "gemini", Kind: provider.KindCatalog, Message: "could not decode catalog", Cause: err}
	}

	models := make([]model.ModelInfo, 0, len(catalog.Models))
	for _, m := range catalog.Models {
		if !supportsGenerateContent(m.SupportedGenerationMethods) {
			continue
		}
		id := strings.TrimPrefix(m.Name, "models/")
		multimodal := strings.Contains(id, "gemini-1.5") || strings.Contains(id, "gemini-2")
		info := model.ModelInfo{
			ID:                id,
			Name:              m.DisplayName,
			ContextLength:     m.InputTokenLimit,
			SupportsImages:    multimodal || strings.Contains(id, "vision"),
			SupportsDocuments: multimodal,
		}
		if info.Name == "" {
			info.Name = id
		}
		models = append(models, info)
	}
	return models, nil
}

func supportsGenerateContent(methods []string) bool {
	for _, m := range methods {
		if m == "generateContent" {
			return true
		}
	}
	return false
}

// --- Chat ---

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	SafetySettings    []safetySetting   `json:"safetySettings"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// permissiveSafety turns the vendor-side content filters down for every
// request; the chat surface does its own moderation upstream.
var permissiveSafety = []safetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
}

type streamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// StreamChat sends the history to POST /models/{model}:streamGenerateContent
// and decodes the streamed JSON array. See provider.Adapter for the callback
// lifecycle.
func (c *Client) StreamChat(ctx context.Context, messages []*model.Message, cfg model.ChatConfig, apiKey string, cb provider.Callbacks) {
	payload := generateRequest{
		Contents:       buildContents(messages),
		SafetySettings: permissiveSafety,
	}
	if cfg.SystemPrompt != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: cfg.SystemPrompt}}}
	}
	if cfg.Temperature != nil || cfg.MaxTokens > 0 {
		payload.GenerationConfig = &generationConfig{Temperature: cfg.Temperature, MaxOutputTokens: cfg.MaxTokens}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		cb.Fail(fmt.Errorf("could not marshal request: %w", err))
		return
	}

	endpoint := c.endpoint("/models/"+cfg.Model+":streamGenerateContent", apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		cb.Fail(fmt.Errorf("could not create request: %w", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		cb.Fail(&provider.Error{Provider: "gemini", Kind: provider.KindHTTP, Message: "request failed", Cause: err})
		return
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		cb.Fail(&provider.Error{Provider: "gemini", Kind: provider.KindNoBody, Cause: provider.ErrNoResponseBody})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		cb.Fail(classifyStatus(resp.StatusCode, provider.ReadErrorBody(resp.Body)))
		return
	}

	c.decodeStream(ctx, resp, cb)
}

// decodeStream walks the response array element by element as bytes arrive:
// consume the opening bracket, then decode one chunk per More(). Elements
// that fail to decode end the walk (the decoder cannot resync inside an
// array), but everything gathered until then still completes the exchange.
func (c *Client) decodeStream(ctx context.Context, resp *http.Response, cb provider.Callbacks) {
	var full strings.Builder

	dec := json.NewDecoder(resp.Body)
	if _, err := dec.Token(); err != nil {
		if ctx.Err() != nil {
			cb.Complete(full.String())
			return
		}
		cb.Fail(&provider.Error{Provider: "gemini", Kind: provider.KindStream, Message: "stream read failed", Cause: err})
		return
	}

	for dec.More() {
		var chunk streamChunk
		if err := dec.Decode(&chunk); err != nil {
			if ctx.Err() != nil {
				cb.Complete(full.String())
				return
			}
			cb.Fail(&provider.Error{Provider: "gemini", Kind: provider.KindStream, Message: "stream read failed", Cause: err})
			return
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, p := range chunk.Candidates[0].Content.Parts {
			if p.Text != "" {
				full.WriteString(p.Text)
				cb.Token(p.Text)
			}
		}
	}

	// More() going false either means the closing bracket arrived or the
	// connection dropped; reading the bracket tells the two apart.
	if _, err := dec.Token(); err != nil && ctx.Err() == nil {
		cb.Fail(&provider.Error{Provider: "gemini", Kind: provider.KindStream, Message: "stream ended unexpectedly", Cause: err})
		return
	}
	cb.Complete(full.String())
}

// buildContents maps the domain history onto the wire format. The assistant
// role becomes "model"; inline attachment parts precede the text part.
// Attachments with an unreadable data URL are omitted.
func buildContents(messages []*model.Message) []content {
	out := make([]content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == model.RoleAssistant {
			role = "model"
		}
		var parts []part
		for _, a := range m.Attachments {
			mime, payload, err := a.DecodeDataURL()
			if err != nil {
				continue
			}
			parts = append(parts, part{InlineData: &inlineData{MimeType: mime, Data: payload}})
		}
		if m.Content != "" || len(parts) == 0 {
			parts = append(parts, part{Text: m.Content})
		}
		out = append(out, content{Role: role, Parts: parts})
	}
	return out
}

// endpoint builds a full URL with the key query parameter attached.
func (c *Client) endpoint(path, apiKey string) string {
	q := url.Values{}
	if apiKey != "" {
		q.Set("key", apiKey)
	}
	u := c.baseURL + path
	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// classifyStatus turns a non-200 response into a typed error, preserving the
// vendor's wording from the JSON error envelope when one is present.
func classifyStatus(status int, body string) error {
	message := body
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	kind := provider.KindHTTP
	if systemPromptRejected(message) {
		kind = provider.KindSystemPrompt
	}
	return &provider.Error{Provider: "gemini", Kind: kind, Status: status, Message: message}
}

// systemPromptRejected matches the phrasings used when a model rejects the
// systemInstruction field (Gemma models served through this API).
func systemPromptRejected(message string) bool {
	lower := strings.ToLower(message)
	for _, needle := range []string{
		"developer instruction is not enabled",
		"system instruction is not supported",
		"system instructions are not supported",
	} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

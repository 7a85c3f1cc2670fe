// Package provider defines the contract every LLM vendor adapter implements,
// plus the pieces they share: the streaming callback sink, the error
// taxonomy, the static pricing tables and the registry the orchestrator
// resolves adapters through.
//
// One adapter exists per vendor protocol family. The OpenAI-compatible
// family (OpenAI, xAI, Groq, OpenRouter) is a single client type configured
// four ways; Anthropic and Gemini each speak their own protocol.
package provider

import (
	"context"
	"io"
	"strings"

	"github.com/KuzeyMurathan/shadchat/internal/model"
)

// Adapter is the vendor-facing contract. Implementations own everything
// protocol-specific: catalog fetch, request construction (including where
// the system prompt and attachments go), streaming decode, and pricing.
type Adapter interface {
	// ID returns the provider id the adapter is registered under.
	ID() string

	// FetchModels retrieves the vendor's model catalog. Vendors without a
	// catalog endpoint return a static list and never fail.
	FetchModels(ctx context.Context, apiKey string) ([]model.ModelInfo, error)

	// StreamChat sends the outbound history and streams the reply into cb.
	// The call blocks until the exchange terminates. Lifecycle contract:
	// zero or more OnToken calls followed by exactly one terminal event,
	// either OnComplete with the full accumulated text or OnError.
	// Cancelling ctx mid-stream is not an error: the adapter terminates
	// with OnComplete carrying the partial text received so far.
	//
	// messages holds user/assistant turns only; the system prompt travels
	// in cfg and is placed wherever the vendor protocol wants it.
	StreamChat(ctx context.Context, messages []*model.Message, cfg model.ChatConfig, apiKey string, cb Callbacks)

	// EstimateCost prices an exchange in USD from heuristic token counts,
	// using the adapter's static table for the given model id.
	EstimateCost(inputTokens, outputTokens int, modelID string) float64
}

// Callbacks receives streaming events from an adapter. Unset callbacks are
// skipped, so a caller only interested in the terminal outcome can leave
// OnToken nil.
type Callbacks struct {
	OnToken    func(token string)
	OnComplete func(text string)
	OnError    func(err error)
}

// Token forwards one content delta.
func (c Callbacks) Token(t string) {
	if c.OnToken != nil {
		c.OnToken(t)
	}
}

// Complete fires the success terminal with the full accumulated text.
func (c Callbacks) Complete(text string) {
	if c.OnComplete != nil {
		c.OnComplete(text)
	}
}

// Fail fires the error terminal.
func (c Callbacks) Fail(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// maxErrorBody caps how much of a vendor error response gets read into an
// error message.
const maxErrorBody = 64 * 1024

// ReadErrorBody drains up to maxErrorBody bytes of a failed response for
// inclusion in an Error. Never fails; an unreadable body yields "".
func ReadErrorBody(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

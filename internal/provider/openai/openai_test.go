package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KuzeyMurathan/shadchat/internal/model"
	"github.com/KuzeyMurathan/shadchat/internal/provider"
	"github.com/KuzeyMurathan/shadchat/internal/provider/openai"
)

// recorder collects everything an adapter reports through its callbacks, so
// a test can assert on the exact sequence afterwards. StreamChat blocks until
// the exchange is over, so no locking is needed.
type recorder struct {
	tokens    []string
	completed []string
	failures  []error
}

func (r *recorder) callbacks() provider.Callbacks {
	return provider.Callbacks{
		OnToken:    func(tok string) { r.tokens = append(r.tokens, tok) },
		OnComplete: func(text string) { r.completed = append(r.completed, text) },
		OnError:    func(err error) { r.failures = append(r.failures, err) },
	}
}

// sse writes one server-sent event line the way the chat completions API
// frames them.
func sse(w http.ResponseWriter, data string) {
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// wireRequest mirrors the chat completions payload for assertions.
type wireRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

// TestStreamChat_HappyPath verifies the full streaming round trip.
//
// GOAL: the adapter must POST a correctly shaped chat completions request
// (system prompt first, user turns after, stream flag set, bearer auth) and
// reassemble the SSE deltas in order, ending with exactly one OnComplete
// carrying the accumulated text.
func TestStreamChat_HappyPath(t *testing.T) {
	var capturedAuth string
	var captured wireRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat/completions", r.URL.Path)
		capturedAuth = r.Header.Get("Authorization")

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "text/event-stream")
		sse(w, `{"choices":[{"delta":{"content":"Hel"}}]}`)
		sse(w, `{"choices":[{"delta":{"content":"lo"}}]}`)
		sse(w, `[DONE]`)
	}))
	defer server.Close()

	client := openai.NewOpenAI(server.URL)
	rec := &recorder{}

	client.StreamChat(context.Background(),
		[]*model.Message{{Role: model.RoleUser, Content: "Say hello"}},
		model.ChatConfig{Model: "gpt-4o", SystemPrompt: "Be brief."},
		"sk-test",
		rec.callbacks(),
	)

	// The wire request: system first, then the user turn, streaming on.
	assert.Equal(t, "Bearer sk-test", capturedAuth)
	assert.Equal(t, "gpt-4o", captured.Model)
	assert.True(t, captured.Stream)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.JSONEq(t, `"Be brief."`, string(captured.Messages[0].Content))
	assert.Equal(t, "user", captured.Messages[1].Role)

	// The callback sequence: two deltas, one completion, no errors.
	assert.Equal(t, []string{"Hel", "lo"}, rec.tokens)
	require.Len(t, rec.completed, 1)
	assert.Equal(t, "Hello", rec.completed[0])
	assert.Empty(t, rec.failures)
}

// TestStreamChat_SkipsMalformedChunks verifies the decoder's tolerance: a
// garbage line in the middle of a stream must not kill the exchange.
func TestStreamChat_SkipsMalformedChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sse(w, `{"choices":[{"delta":{"content":"A"}}]}`)
		sse(w, `{not json at all`)
		fmt.Fprint(w, ": keep-alive comment\n\n")
		sse(w, `{"choices":[{"delta":{"content":"B"}}]}`)
		sse(w, `[DONE]`)
	}))
	defer server.Close()

	client := openai.NewOpenAI(server.URL)
	rec := &recorder{}

	client.StreamChat(context.Background(),
		[]*model.Message{{Role: model.RoleUser, Content: "hi"}},
		model.ChatConfig{Model: "gpt-4o"},
		"sk-test",
		rec.callbacks(),
	)

	assert.Equal(t, []string{"A", "B"}, rec.tokens)
	require.Len(t, rec.completed, 1)
	assert.Equal(t, "AB", rec.completed[0])
	assert.Empty(t, rec.failures)
}

// TestStreamChat_EOFWithoutDone verifies that a stream ending cleanly without
// the [DONE] marker still completes with whatever text arrived.
func TestStreamChat_EOFWithoutDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sse(w, `{"choices":[{"delta":{"content":"partial"}}]}`)
	}))
	defer server.Close()

	client := openai.NewOpenAI(server.URL)
	rec := &recorder{}

	client.StreamChat(context.Background(),
		[]*model.Message{{Role: model.RoleUser, Content: "hi"}},
		model.ChatConfig{Model: "gpt-4o"},
		"sk-test",
		rec.callbacks(),
	)

	require.Len(t, rec.completed, 1)
	assert.Equal(t, "partial", rec.completed[0])
	assert.Empty(t, rec.failures)
}

// TestStreamChat_CancelMidStream verifies the cancellation contract:
// cancelling the context mid-stream is not an error, the adapter completes
// with the partial text received so far.
func TestStreamChat_CancelMidStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sse(w, `{"choices":[{"delta":{"content":"par"}}]}`)
		// Hold the stream open until the client hangs up.
		<-r.Context().Done()
	}))
	defer server.Close()

	client := openai.NewOpenAI(server.URL)
	ctx, cancel := context.WithCancel(context.Background())

	rec := &recorder{}
	cb := rec.callbacks()
	onToken := cb.OnToken
	cb.OnToken = func(tok string) {
		onToken(tok)
		cancel()
	}

	client.StreamChat(ctx,
		[]*model.Message{{Role: model.RoleUser, Content: "go on forever"}},
		model.ChatConfig{Model: "gpt-4o"},
		"sk-test",
		cb,
	)

	assert.Equal(t, []string{"par"}, rec.tokens)
	require.Len(t, rec.completed, 1)
	assert.Equal(t, "par", rec.completed[0])
	assert.Empty(t, rec.failures)
}

// TestStreamChat_ErrorChunk verifies that an in-band error event terminates
// the exchange through OnError.
func TestStreamChat_ErrorChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sse(w, `{"choices":[{"delta":{"content":"a"}}]}`)
		sse(w, `{"error":{"message":"The server is overloaded"}}`)
	}))
	defer server.Close()

	client := openai.NewOpenAI(server.URL)
	rec := &recorder{}

	client.StreamChat(context.Background(),
		[]*model.Message{{Role: model.RoleUser, Content: "hi"}},
		model.ChatConfig{Model: "gpt-4o"},
		"sk-test",
		rec.callbacks(),
	)

	assert.Empty(t, rec.completed)
	require.Len(t, rec.failures, 1)
	assert.ErrorContains(t, rec.failures[0], "The server is overloaded")
}

// TestStreamChat_HTTPErrors verifies status classification: the vendor's own
// message is surfaced, and a system-role rejection is marked recoverable.
func TestStreamChat_HTTPErrors(t *testing.T) {
	testCases := []struct {
		name            string
		status          int
		body            string
		wantRecoverable bool
		wantContains    string
	}{
		{
			name:         "Plain authentication failure",
			status:       http.StatusUnauthorized,
			body:         `{"error":{"message":"Incorrect API key provided"}}`,
			wantContains: "Incorrect API key provided",
		},
		{
			name:            "o1 rejects the system role",
			status:          http.StatusBadRequest,
			body:            `{"error":{"message":"Unsupported value: 'messages[0].role' does not support 'system' with this model."}}`,
			wantRecoverable: true,
			wantContains:    "messages[0].role",
		},
		{
			name:            "Gemma on Groq rejects the system role",
			status:          http.StatusBadRequest,
			body:            `{"error":{"message":"System role not supported for this model"}}`,
			wantRecoverable: true,
			wantContains:    "System role not supported",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := openai.NewOpenAI(server.URL)
			rec := &recorder{}

			client.StreamChat(context.Background(),
				[]*model.Message{{Role: model.RoleUser, Content: "hi"}},
				model.ChatConfig{Model: "o1-mini", SystemPrompt: "Be brief."},
				"sk-test",
				rec.callbacks(),
			)

			assert.Empty(t, rec.completed)
			require.Len(t, rec.failures, 1)
			err := rec.failures[0]
			assert.Equal(t, tc.wantRecoverable, provider.IsSystemPromptUnsupported(err))
			assert.ErrorContains(t, err, tc.wantContains)

			var perr *provider.Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.status, perr.Status)
		})
	}
}

// TestStreamChat_ImageAttachment verifies that an image rides along as a
// typed content block with the data URL passed through verbatim.
func TestStreamChat_ImageAttachment(t *testing.T) {
	var captured wireRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "text/event-stream")
		sse(w, `[DONE]`)
	}))
	defer server.Close()

	client := openai.NewOpenAI(server.URL)
	dataURL := "data:image/png;base64,aGVsbG8="

	client.StreamChat(context.Background(),
		[]*model.Message{{
			Role:    model.RoleUser,
			Content: "What is in this picture?",
			Attachments: []model.Attachment{
				{Kind: model.AttachmentImage, Name: "pic.png", MimeType: "image/png", Data: dataURL},
			},
		}},
		model.ChatConfig{Model: "gpt-4o"},
		"sk-test",
		(&recorder{}).callbacks(),
	)

	require.Len(t, captured.Messages, 1)
	var parts []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		ImageURL *struct {
			URL string `json:"url"`
		} `json:"image_url"`
	}
	require.NoError(t, json.Unmarshal(captured.Messages[0].Content, &parts))
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "What is in this picture?", parts[0].Text)
	assert.Equal(t, "image_url", parts[1].Type)
	require.NotNil(t, parts[1].ImageURL)
	assert.Equal(t, dataURL, parts[1].ImageURL.URL)
}

// TestFetchModels verifies the catalog fetch, the per-vendor chat filter and
// the heuristic metadata backfill.
func TestFetchModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/models", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"gpt-4o"},
			{"id":"whisper-1"},
			{"id":"dall-e-3"},
			{"id":"o1-mini"}
		]}`))
	}))
	defer server.Close()

	client := openai.NewOpenAI(server.URL)
	models, err := client.FetchModels(context.Background(), "sk-test")
	require.NoError(t, err)

	// Whisper and DALL-E are not chat models and must be filtered out.
	require.Len(t, models, 2)
	assert.Equal(t, "gpt-4o", models[0].ID)
	assert.True(t, models[0].SupportsImages)
	assert.Equal(t, 128000, models[0].ContextLength)
	assert.Equal(t, "o1-mini", models[1].ID)
}

// TestFetchModels_OpenRouter verifies the meta-catalog specifics: attribution
// headers, per-token price conversion and modality metadata.
func TestFetchModels_OpenRouter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "shadchat", r.Header.Get("X-Title"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{
				"id":"anthropic/claude-3.5-sonnet",
				"name":"Anthropic: Claude 3.5 Sonnet",
				"context_length":200000,
				"pricing":{"prompt":"0.000003","completion":"0.000015"},
				"architecture":{"modality":"text+image->text"}
			},
			{
				"id":"mistralai/mistral-7b-instruct:free",
				"name":"Mistral 7B (free)",
				"context_length":32768,
				"pricing":{"prompt":"0","completion":"0"}
			}
		]}`))
	}))
	defer server.Close()

	client := openai.NewOpenRouter(server.URL)
	models, err := client.FetchModels(context.Background(), "sk-or-test")
	require.NoError(t, err)
	require.Len(t, models, 2)

	sonnet := models[0]
	assert.Equal(t, "Anthropic: Claude 3.5 Sonnet", sonnet.Name)
	assert.Equal(t, 200000, sonnet.ContextLength)
	assert.True(t, sonnet.SupportsImages)
	require.NotNil(t, sonnet.Pricing)
	// Per-token decimal strings become per-million rates.
	assert.InDelta(t, 3.0, sonnet.Pricing.Input, 1e-9)
	assert.InDelta(t, 15.0, sonnet.Pricing.Output, 1e-9)

	free := models[1]
	require.NotNil(t, free.Pricing)
	assert.Zero(t, free.Pricing.Input)
	assert.Zero(t, free.Pricing.Output)
}

// TestFetchModels_UpstreamFailure verifies that a failed catalog fetch comes
// back as a typed catalog error.
func TestFetchModels_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`upstream exploded`))
	}))
	defer server.Close()

	client := openai.NewOpenAI(server.URL)
	_, err := client.FetchModels(context.Background(), "sk-test")
	require.Error(t, err)
	assert.True(t, provider.IsCatalogError(err))
	assert.ErrorContains(t, err, "upstream exploded")
}

// TestEstimateCost_TierSelection verifies the static table picks the right
// family for representative ids and never prices an unknown model at zero.
func TestEstimateCost_TierSelection(t *testing.T) {
	client := openai.NewOpenAI("")

	// gpt-4o-mini must match its own tier, not the broader gpt-4o one.
	mini := client.EstimateCost(1_000_000, 1_000_000, "gpt-4o-mini")
	full := client.EstimateCost(1_000_000, 1_000_000, "gpt-4o")
	assert.Less(t, mini, full)

	unknown := client.EstimateCost(1_000_000, 0, "gpt-99-experimental")
	assert.Greater(t, unknown, 0.0)
}

// TestEstimateCost_OpenRouterNamespacedIDs verifies that upstream ids like
// "anthropic/claude-3-5-sonnet" are absent from the static table and land on
// the non-zero default tier, while :free variants cost nothing.
func TestEstimateCost_OpenRouterNamespacedIDs(t *testing.T) {
	client := openai.NewOpenRouter("")

	cost := client.EstimateCost(1_000_000, 1_000_000, "anthropic/claude-3-5-sonnet")
	assert.InDelta(t, 1.0+3.0, cost, 1e-9)

	free := client.EstimateCost(1_000_000, 1_000_000, "meta-llama/llama-3.1-8b-instruct:free")
	assert.Zero(t, free)
}

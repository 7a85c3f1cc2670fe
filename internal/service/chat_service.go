package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	app_errors "github.com/KuzeyMurathan/shadchat/internal/errors"
	"github.com/KuzeyMurathan/shadchat/internal/model"
	"github.com/KuzeyMurathan/shadchat/internal/provider"
	"github.com/KuzeyMurathan/shadchat/internal/repository"
	"github.com/KuzeyMurathan/shadchat/internal/token"
)

// saveTimeout bounds the persistence calls that run after the request
// context is already gone (a stopped or disconnected exchange must still
// reach the store).
const saveTimeout = 10 * time.Second

// ChatService drives a message exchange end to end: placeholder management,
// streaming, cancellation, retry, cost accounting. One exchange may be in
// flight per conversation; a second send is rejected with ErrConflict rather
// than queued.
type ChatService struct {
	repo     repository.Repository
	registry *provider.Registry
	settings *SettingsService
	logger   *slog.Logger

	mu          sync.Mutex
	inflight    map[string]*exchangeHandle
	sessionCost float64
}

// exchangeHandle marks a conversation as busy. The cancel func is filled in
// once the streaming context exists; Stop is a no-op until then.
type exchangeHandle struct {
	cancel context.CancelFunc
}

// SendMessageRequest is the structure for a new message request from the client.
type SendMessageRequest struct {
	ConversationID string             `json:"conversation_id"`
	Provider       string             `json:"provider"`
	Model          string             `json:"model"`
	Content        string             `json:"content" validate:"required"`
	Attachments    []model.Attachment `json:"attachments,omitempty"`
	Temperature    *float64           `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens      int                `json:"max_tokens,omitempty" validate:"omitempty,gte=1"`
}

func NewChatService(repo repository.Repository, registry *provider.Registry, settings *SettingsService, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		repo:     repo,
		registry: registry,
		settings: settings,
		logger:   logger,
		inflight: make(map[string]*exchangeHandle),
	}
}

// exchange carries everything one streaming run needs.
type exchange struct {
	conv        *model.Conversation
	placeholder *model.Message
	adapter     provider.Adapter
	apiKey      string
	cfg         model.ChatConfig
	outbound    []*model.Message
}

// SendMessage starts a new exchange: get or create the conversation, append
// the user message and the assistant placeholder, persist, then stream. The
// returned channel delivers content deltas and exactly one terminal event
// (Done or Error) before closing. Preparation failures are returned directly
// so the caller can answer with a proper status instead of a broken stream.
func (s *ChatService) SendMessage(ctx context.Context, req *SendMessageRequest) (<-chan model.StreamEvent, error) {
	var conv *model.Conversation
	isNew := req.ConversationID == ""
	if isNew {
		if req.Provider == "" || req.Model == "" {
			return nil, fmt.Errorf("%w: provider and model are required for a new conversation", app_errors.ErrValidation)
		}
		conv = model.NewConversation(req.Provider, req.Model)
		conv.Title = truncate(req.Content, 50)
	} else {
		var err error
		conv, err = s.loadConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		// The client may switch provider or model mid-conversation.
		if req.Provider != "" {
			conv.ProviderID = req.Provider
		}
		if req.Model != "" {
			conv.ModelID = req.Model
		}
	}

	if err := s.acquire(conv.ID); err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			s.release(conv.ID)
		}
	}()

	ex, err := s.prepare(ctx, conv)
	if err != nil {
		return nil, err
	}

	userMessage := model.NewUserMessage(req.Content, req.Attachments)
	userMessage.TokenCount = token.EstimateMessage(userMessage)
	conv.Append(userMessage)
	ex.placeholder = model.NewAssistantPlaceholder(conv.ModelID)
	conv.Append(ex.placeholder)

	// Durable point one: user message and placeholder exist before any
	// network traffic.
	if err := s.repo.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("could not save conversation: %w", err)
	}

	ex.cfg.Temperature = req.Temperature
	ex.cfg.MaxTokens = req.MaxTokens
	ex.outbound = outboundHistory(conv)

	s.logger.Info("starting exchange",
		"conversation_id", conv.ID,
		"provider", conv.ProviderID,
		"model", conv.ModelID,
		"new_conversation", isNew,
	)

	events := make(chan model.StreamEvent, 64)
	ok = true
	go s.run(ctx, ex, events)
	return events, nil
}

// RetryMessage regenerates the assistant reply for the given user message:
// the history is truncated back to that message, a fresh placeholder is
// appended, and the exchange streams again with the conversation's current
// provider and model.
func (s *ChatService) RetryMessage(ctx context.Context, conversationID, messageID string) (<-chan model.StreamEvent, error) {
	conv, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	idx := conv.IndexOf(messageID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: message %s", app_errors.ErrNotFound, messageID)
	}
	if conv.Messages[idx].Role != model.RoleUser {
		return nil, fmt.Errorf("%w: can only retry from a user message", app_errors.ErrValidation)
	}

	if err := s.acquire(conv.ID); err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			s.release(conv.ID)
		}
	}()

	ex, err := s.prepare(ctx, conv)
	if err != nil {
		return nil, err
	}

	conv.TruncateTo(messageID)
	ex.placeholder = model.NewAssistantPlaceholder(conv.ModelID)
	conv.Append(ex.placeholder)

	// Durable point two: the truncated history with the fresh placeholder.
	if err := s.repo.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("could not save conversation: %w", err)
	}

	ex.outbound = outboundHistory(conv)

	s.logger.Info("retrying exchange", "conversation_id", conv.ID, "from_message", messageID)

	events := make(chan model.StreamEvent, 64)
	ok = true
	go s.run(ctx, ex, events)
	return events, nil
}

// ContinueWithoutSystemPrompt resolves the recoverable system-prompt
// rejection: the conversation permanently drops its system prompt, the
// existing placeholder is reused (same message id), and the exchange
// streams again.
func (s *ChatService) ContinueWithoutSystemPrompt(ctx context.Context, conversationID string) (<-chan model.StreamEvent, error) {
	conv, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	last := conv.LastMessage()
	if last == nil || !last.IsPlaceholder() {
		return nil, fmt.Errorf("%w: conversation has no pending assistant placeholder", app_errors.ErrValidation)
	}

	if err := s.acquire(conv.ID); err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			s.release(conv.ID)
		}
	}()

	conv.DisableSystemPrompt = true
	ex, err := s.prepare(ctx, conv)
	if err != nil {
		return nil, err
	}
	ex.placeholder = last

	if err := s.repo.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("could not save conversation: %w", err)
	}

	ex.outbound = outboundHistory(conv)

	s.logger.Info("continuing without system prompt", "conversation_id", conv.ID)

	events := make(chan model.StreamEvent, 64)
	ok = true
	go s.run(ctx, ex, events)
	return events, nil
}

// StopStreaming cancels the in-flight exchange for a conversation, if any.
// The exchange finalizes with whatever text already arrived; stopping an
// idle conversation is a no-op.
func (s *ChatService) StopStreaming(conversationID string) bool {
	s.mu.Lock()
	handle := s.inflight[conversationID]
	s.mu.Unlock()
	if handle == nil || handle.cancel == nil {
		return false
	}
	handle.cancel()
	return true
}

// SessionCost returns the cost accumulated across all exchanges since the
// process started.
func (s *ChatService) SessionCost() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionCost
}

// --- Conversation CRUD ---

func (s *ChatService) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return s.loadConversation(ctx, conversationID)
}

func (s *ChatService) ListConversations(ctx context.Context) ([]model.Summary, error) {
	return s.repo.ListConversations(ctx)
}

func (s *ChatService) DeleteConversation(ctx context.Context, conversationID string) error {
	s.StopStreaming(conversationID)
	if err := s.repo.DeleteConversation(ctx, conversationID); err != nil {
		return s.mapRepoErr(err, conversationID)
	}
	return nil
}

func (s *ChatService) UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error {
	if newTitle == "" {
		return fmt.Errorf("%w: title cannot be empty", app_errors.ErrValidation)
	}
	if err := s.repo.UpdateConversationTitle(ctx, conversationID, newTitle); err != nil {
		return s.mapRepoErr(err, conversationID)
	}
	return nil
}

func (s *ChatService) SetConversationPinned(ctx context.Context, conversationID string, pinned bool) error {
	if err := s.repo.SetConversationPinned(ctx, conversationID, pinned); err != nil {
		return s.mapRepoErr(err, conversationID)
	}
	return nil
}

// --- Exchange internals ---

// prepare resolves the adapter, the API key and the base chat config for a
// conversation, without touching the message history.
func (s *ChatService) prepare(ctx context.Context, conv *model.Conversation) (*exchange, error) {
	if conv.ModelID == "" {
		return nil, fmt.Errorf("%w: conversation has no model selected", app_errors.ErrConfiguration)
	}
	adapter, err := s.registry.Get(conv.ProviderID)
	if err != nil {
		return nil, err
	}
	apiKey, err := s.settings.APIKey(ctx, conv.ProviderID)
	if err != nil {
		return nil, err
	}

	cfg := model.ChatConfig{Model: conv.ModelID}
	if !conv.DisableSystemPrompt {
		prompt, err := s.settings.SystemPrompt(ctx)
		if err != nil {
			return nil, err
		}
		cfg.SystemPrompt = prompt
	}

	return &exchange{conv: conv, adapter: adapter, apiKey: apiKey, cfg: cfg}, nil
}

// run executes the streaming phase of an exchange. It owns the events
// channel and the in-flight entry; both are released on every exit path.
// ctx is the caller's context (client disconnect); the derived context adds
// the Stop lever.
func (s *ChatService) run(ctx context.Context, ex *exchange, events chan<- model.StreamEvent) {
	defer close(events)
	defer s.release(ex.conv.ID)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.arm(ex.conv.ID, cancel)

	start := time.Now()
	var firstToken time.Time
	terminal := false

	cb := provider.Callbacks{
		OnToken: func(tok string) {
			if firstToken.IsZero() {
				firstToken = time.Now()
			}
			ex.placeholder.AppendToken(tok)
			s.emit(ctx, events, model.StreamEvent{
				ConversationID: ex.conv.ID,
				MessageID:      ex.placeholder.ID,
				Content:        tok,
			})
		},
		OnComplete: func(full string) {
			if terminal {
				return
			}
			terminal = true
			s.finalize(ctx, ex, events, start, firstToken, full)
		},
		OnError: func(err error) {
			if terminal {
				return
			}
			terminal = true
			s.failExchange(ctx, ex, events, err)
		},
	}

	ex.adapter.StreamChat(streamCtx, ex.outbound, ex.cfg, ex.apiKey, cb)
}

// finalize is durable point three: stamp token count, timing and cost onto
// the placeholder, fold the cost into the conversation and session totals,
// persist, and emit the terminal event.
func (s *ChatService) finalize(ctx context.Context, ex *exchange, events chan<- model.StreamEvent, start, firstToken time.Time, full string) {
	ex.placeholder.FinalizeStream()

	outputTokens := token.Estimate(full)
	ex.placeholder.TokenCount = outputTokens

	timing := &model.Timing{Total: time.Since(start)}
	if !firstToken.IsZero() {
		timing.TTFT = firstToken.Sub(start)
	}
	if secs := timing.Total.Seconds(); secs > 0 {
		timing.TokensPerSec = float64(outputTokens) / secs
	}
	ex.placeholder.Timing = timing

	inputTokens := token.EstimateMessages(ex.outbound) + token.Estimate(ex.cfg.SystemPrompt)
	cost := ex.adapter.EstimateCost(inputTokens, outputTokens, ex.cfg.Model)
	ex.conv.TotalCost += cost
	ex.conv.UpdatedAt = time.Now()

	s.mu.Lock()
	s.sessionCost += cost
	sessionCost := s.sessionCost
	s.mu.Unlock()

	s.saveDetached(ex.conv)

	s.logger.Info("exchange complete",
		"conversation_id", ex.conv.ID,
		"output_tokens", outputTokens,
		"cost", cost,
		"duration", timing.Total,
	)

	s.emit(ctx, events, model.StreamEvent{
		ConversationID: ex.conv.ID,
		MessageID:      ex.placeholder.ID,
		Done:           true,
		Message:        ex.placeholder,
		Cost:           cost,
		SessionCost:    sessionCost,
	})
}

// failExchange handles the error terminal: the partial text already applied
// to the placeholder stays (never rolled back), but no cost or timing is
// finalized. A system-prompt rejection is tagged recoverable so the client
// can offer the continue path.
func (s *ChatService) failExchange(ctx context.Context, ex *exchange, events chan<- model.StreamEvent, err error) {
	ex.placeholder.FinalizeStream()
	ex.conv.UpdatedAt = time.Now()
	s.saveDetached(ex.conv)

	code := ""
	if provider.IsSystemPromptUnsupported(err) {
		code = model.CodeSystemPromptUnsupported
	}

	s.logger.Error("exchange failed",
		"conversation_id", ex.conv.ID,
		"provider", ex.conv.ProviderID,
		"error", err,
	)

	s.emit(ctx, events, model.StreamEvent{
		ConversationID: ex.conv.ID,
		MessageID:      ex.placeholder.ID,
		Error:          err.Error(),
		Code:           code,
	})
}

// saveDetached persists the conversation on its own context: the terminal
// write must survive a cancelled request (Stop, client disconnect).
func (s *ChatService) saveDetached(conv *model.Conversation) {
	saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.repo.SaveConversation(saveCtx, conv); err != nil {
		s.logger.Error("failed to persist conversation after exchange", "conversation_id", conv.ID, "error", err)
	}
}

// emit forwards an event unless the caller has gone away. Only the caller's
// own context gates delivery; a stopped exchange still reports its terminal
// event to a connected client.
func (s *ChatService) emit(ctx context.Context, events chan<- model.StreamEvent, ev model.StreamEvent) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// outboundHistory selects the messages that go out to the vendor: system
// messages never (the system prompt travels in the config), and assistant
// messages without content never (the active placeholder and any dead ones
// from failed exchanges).
func outboundHistory(conv *model.Conversation) []*model.Message {
	out := make([]*model.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		if m.Role == model.RoleSystem {
			continue
		}
		if m.Role == model.RoleAssistant && m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// acquire reserves the conversation's exchange slot.
func (s *ChatService) acquire(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[conversationID]; busy {
		return fmt.Errorf("%w: conversation %s already has an exchange in flight", app_errors.ErrConflict, conversationID)
	}
	s.inflight[conversationID] = &exchangeHandle{}
	return nil
}

// arm attaches the cancel lever to an already-acquired slot.
func (s *ChatService) arm(conversationID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handle, ok := s.inflight[conversationID]; ok {
		handle.cancel = cancel
	}
}

func (s *ChatService) release(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, conversationID)
}

func (s *ChatService) loadConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, s.mapRepoErr(err, conversationID)
	}
	return conv, nil
}

func (s *ChatService) mapRepoErr(err error, conversationID string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: conversation %s", app_errors.ErrNotFound, conversationID)
	}
	return err
}

// truncate shortens a string to a specified number of runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/KuzeyMurathan/shadchat/internal/interfaces"
	"github.com/KuzeyMurathan/shadchat/internal/model"
	"github.com/KuzeyMurathan/shadchat/internal/service"

	"github.com/go-chi/chi/v5"
)

// ChatHandler handles HTTP requests for conversations and message exchanges.
type ChatHandler struct {
	service interfaces.ChatService
}

func NewChatHandler(svc interfaces.ChatService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// HandleListConversations godoc
// @Summary      List conversations
// @Description  Gets summaries of all conversations, pinned first, most recent next.
// @Tags         Conversations
// @Produce      json
// @Success      200  {array}   model.Summary
// @Failure      500  {object}  ErrorResponse
// @Router       /v1/conversations [get]
func (h *ChatHandler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ListConversations(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summaries)
}

// HandleGetConversation godoc
// @Summary      Get a conversation
// @Description  Retrieves a full conversation with all messages and attachments.
// @Tags         Conversations
// @Produce      json
// @Param        conversationID  path      string  true  "Conversation ID"
// @Success      200             {object}  model.Conversation
// @Failure      404             {object}  ErrorResponse
// @Router       /v1/conversations/{conversationID} [get]
func (h *ChatHandler) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	conv, err := h.service.GetConversation(r.Context(), conversationID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, conv)
}

// HandleUpdateTitle godoc
// @Summary      Update conversation title
// @Description  Manually renames a conversation.
// @Tags         Conversations
// @Accept       json
// @Produce      json
// @Param        conversationID  path      string              true  "Conversation ID"
// @Param        titleRequest    body      UpdateTitleRequest  true  "New Title"
// @Success      200             {object}  StatusResponse
// @Failure      400             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Router       /v1/conversations/{conversationID}/title [put]
func (h *ChatHandler) HandleUpdateTitle(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req UpdateTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload"})
		return
	}
	if err := validateRequest(&req); err != nil {
		respondWithError(w, err)
		return
	}

	if err := h.service.UpdateConversationTitle(r.Context(), conversationID, req.Title); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleSetPinned godoc
// @Summary      Pin or unpin a conversation
// @Description  Pinned conversations sort before all others in the list.
// @Tags         Conversations
// @Accept       json
// @Produce      json
// @Param        conversationID  path      string      true  "Conversation ID"
// @Param        pinRequest      body      PinRequest  true  "Pinned state"
// @Success      200             {object}  StatusResponse
// @Failure      400             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Router       /v1/conversations/{conversationID}/pin [put]
func (h *ChatHandler) HandleSetPinned(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload"})
		return
	}

	if err := h.service.SetConversationPinned(r.Context(), conversationID, req.Pinned); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleDeleteConversation godoc
// @Summary      Delete a conversation
// @Description  Deletes a conversation with all its messages; a running exchange is cancelled first.
// @Tags         Conversations
// @Produce      json
// @Param        conversationID  path      string  true  "Conversation ID"
// @Success      200             {object}  StatusResponse
// @Failure      404             {object}  ErrorResponse
// @Router       /v1/conversations/{conversationID} [delete]
func (h *ChatHandler) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if err := h.service.DeleteConversation(r.Context(), conversationID); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleStreamMessage godoc
// @Summary      Send a message
// @Description  Sends a user message and streams the assistant reply. Preparation failures (unknown conversation, busy conversation, missing API key) are answered with a JSON error status; once streaming starts the response is Server-Sent Events.
// @Tags         Conversations
// @Accept       json
// @Produce      text/event-stream
// @Param        messageRequest  body      service.SendMessageRequest  true  "Message"
// @Success      200             {object}  model.StreamEvent  "Stream of exchange events"
// @Failure      400             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Failure      409             {object}  ErrorResponse
// @Failure      422             {object}  ErrorResponse
// @Router       /v1/conversations/stream [post]
func (h *ChatHandler) HandleStreamMessage(w http.ResponseWriter, r *http.Request) {
	var req service.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload"})
		return
	}
	if err := validateRequest(&req); err != nil {
		respondWithError(w, err)
		return
	}

	events, err := h.service.SendMessage(r.Context(), &req)
	if err != nil {
		respondWithError(w, err)
		return
	}

	h.streamEvents(w, r, events)
}

// HandleRetryMessage godoc
// @Summary      Retry from a user message
// @Description  Discards the given user message's reply and everything after it, then regenerates with the conversation's current provider and model.
// @Tags         Conversations
// @Produce      text/event-stream
// @Param        conversationID  path      string  true  "Conversation ID"
// @Param        messageID       path      string  true  "User message to retry from"
// @Success      200             {object}  model.StreamEvent  "Stream of exchange events"
// @Failure      400             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Failure      409             {object}  ErrorResponse
// @Router       /v1/conversations/{conversationID}/messages/{messageID}/retry [post]
func (h *ChatHandler) HandleRetryMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	messageID := chi.URLParam(r, "messageID")

	events, err := h.service.RetryMessage(r.Context(), conversationID, messageID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	h.streamEvents(w, r, events)
}

// HandleContinue godoc
// @Summary      Continue without system prompt
// @Description  Resolves a system-prompt rejection: permanently disables the system prompt for this conversation and resends the pending exchange.
// @Tags         Conversations
// @Produce      text/event-stream
// @Param        conversationID  path      string  true  "Conversation ID"
// @Success      200             {object}  model.StreamEvent  "Stream of exchange events"
// @Failure      400             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Failure      409             {object}  ErrorResponse
// @Router       /v1/conversations/{conversationID}/continue [post]
func (h *ChatHandler) HandleContinue(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	events, err := h.service.ContinueWithoutSystemPrompt(r.Context(), conversationID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	h.streamEvents(w, r, events)
}

// HandleStop godoc
// @Summary      Stop a streaming exchange
// @Description  Cancels the in-flight exchange for a conversation. The partial reply is kept. Stopping an idle conversation reports stopped=false.
// @Tags         Conversations
// @Produce      json
// @Param        conversationID  path      string  true  "Conversation ID"
// @Success      200             {object}  StopResponse
// @Router       /v1/conversations/{conversationID}/stop [post]
func (h *ChatHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	stopped := h.service.StopStreaming(conversationID)
	respondWithJSON(w, http.StatusOK, StopResponse{Stopped: stopped})
}

// HandleSessionCost godoc
// @Summary      Get session cost
// @Description  Returns the estimated cost accumulated across all exchanges since the server started.
// @Tags         Conversations
// @Produce      json
// @Success      200  {object}  SessionCostResponse
// @Router       /v1/session/cost [get]
func (h *ChatHandler) HandleSessionCost(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, SessionCostResponse{SessionCost: h.service.SessionCost()})
}

// streamEvents drains an exchange's event channel onto an SSE response.
// The channel closes after its terminal event, which ends the stream.
func (h *ChatHandler) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan model.StreamEvent) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for event := range events {
		if r.Context().Err() != nil {
			slog.Info("Client disconnected during exchange stream.")
			break
		}
		if err := writeStreamEvent(w, event); err != nil {
			slog.Warn("Could not write to exchange stream, client likely disconnected.", "error", err)
			break
		}
	}
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/providers"
	"meridian-hq/meridian/pkg/store"
)

// chatCompletionRequest is the OpenAI-compatible completion request with
// the gateway's routing extensions.
type chatCompletionRequest struct {
	Model    string              `json:"model,omitempty"`
	Messages []providers.Message `json:"messages"`

	// Provider pins the preferred provider; ForceProvider disables
	// fallback. The X-Preferred-Provider header overrides Provider.
	Provider      string `json:"provider,omitempty"`
	ForceProvider bool   `json:"force_provider,omitempty"`

	// ChatID appends the exchange to an existing transcript instead of
	// starting a new temporary one.
	ChatID string `json:"chat_id,omitempty"`
}

type chatChoice struct {
	Index        int               `json:"index"`
	Message      providers.Message `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID       string       `json:"id"`
	Object   string       `json:"object"`
	Created  int64        `json:"created"`
	Model    string       `json:"model"`
	Provider string       `json:"provider"`
	Choices  []chatChoice `json:"choices"`
	ChatID   string       `json:"chat_id,omitempty"`
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "messages must not be empty")
		return
	}

	preferred := r.Header.Get("X-Preferred-Provider")
	if preferred == "" {
		preferred = req.Provider
	}

	// Continuing chats carry their stored history into the completion.
	messages := req.Messages
	if req.ChatID != "" && s.store != nil {
		prior, err := s.store.ContextMessages(r.Context(), req.ChatID, 0)
		if errors.Is(err, store.ErrChatNotFound) {
			writeError(w, http.StatusNotFound, "chat_not_found", "unknown chat "+req.ChatID)
			return
		}
		if err != nil {
			s.logger.Warn("failed to load chat context", "chat_id", req.ChatID, "error", err)
		} else {
			messages = append(append([]providers.Message(nil), prior...), req.Messages...)
		}
	}

	outcome := s.engine.Complete(r.Context(), messages, gateway.CompleteOptions{
		Model:             req.Model,
		PreferredProvider: preferred,
		ForceProvider:     req.ForceProvider,
	})
	if !outcome.Success {
		writeOutcomeError(w, outcome)
		return
	}

	chatID := s.persistExchange(r, req, outcome)

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:       "chatcmpl-" + uuid.NewString(),
		Object:   "chat.completion",
		Created:  time.Now().Unix(),
		Model:    outcome.ModelUsed,
		Provider: outcome.ProviderUsed,
		Choices: []chatChoice{{
			Message:      providers.Message{Role: providers.RoleAssistant, Content: outcome.Content},
			FinishReason: "stop",
		}},
		ChatID: chatID,
	})
}

// persistExchange records the user turn and the assistant reply. Store
// failures are logged and never fail the completion.
func (s *Server) persistExchange(r *http.Request, req chatCompletionRequest, outcome providers.Outcome) string {
	if s.store == nil {
		return ""
	}
	ctx := r.Context()

	chatID := req.ChatID
	if chatID == "" {
		title := ""
		for _, m := range req.Messages {
			if m.Role == providers.RoleUser {
				title = m.Content
			}
		}
		if len(title) > 80 {
			title = title[:80]
		}
		chat, err := s.store.CreateChat(ctx, store.NewChat{
			Title:     title,
			Model:     outcome.ModelUsed,
			Provider:  outcome.ProviderUsed,
			Temporary: true,
		})
		if err != nil {
			s.logger.Warn("failed to create transcript chat", "error", err)
			return ""
		}
		chatID = chat.ID
	}

	last := req.Messages[len(req.Messages)-1]
	if _, err := s.store.AddMessage(ctx, chatID, last.Role, last.Content, 0); err != nil {
		s.logger.Warn("failed to persist user turn", "chat_id", chatID, "error", err)
		return chatID
	}
	if _, err := s.store.AddMessage(ctx, chatID, providers.RoleAssistant, outcome.Content, 0); err != nil {
		s.logger.Warn("failed to persist assistant turn", "chat_id", chatID, "error", err)
	}
	return chatID
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	entries := s.cache.Models()
	data := make([]modelEntry, 0, len(entries))
	for _, e := range entries {
		data = append(data, modelEntry{ID: e.Model, Object: "model", OwnedBy: e.Provider})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetStatus())
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": s.engine.Registry().ProviderDetails(),
	})
}

func (s *Server) handleToggleProvider(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	enabled, err := s.engine.Registry().Toggle(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "provider_not_found", "unknown provider "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider": name, "enabled": enabled})
}

func (s *Server) handleProviderKeys(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	report, err := s.engine.GetKeyReport(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "provider_not_found", "unknown provider "+name)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type testProviderRequest struct {
	Provider string `json:"provider"`
	Message  string `json:"message,omitempty"`
}

func (s *Server) handleTestProvider(w http.ResponseWriter, r *http.Request) {
	var req testProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}
	if req.Provider == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "provider is required")
		return
	}

	outcome := s.engine.TestProvider(r.Context(), req.Provider, req.Message)
	if !outcome.Success {
		writeOutcomeError(w, outcome)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleModelProviders(w http.ResponseWriter, r *http.Request) {
	model := r.PathValue("model")
	matches := s.engine.FindModelProviders(model)

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.Provider)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":     model,
		"providers": names,
	})
}

type createChatRequest struct {
	Title        string `json:"title"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Temporary    bool   `json:"temporary,omitempty"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "title is required")
		return
	}

	chat, err := s.store.CreateChat(r.Context(), store.NewChat{
		Title:        req.Title,
		Model:        req.Model,
		Provider:     req.Provider,
		SystemPrompt: req.SystemPrompt,
		Temporary:    req.Temporary,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chat, err := s.store.GetChat(r.Context(), id)
	if errors.Is(err, store.ErrChatNotFound) {
		writeError(w, http.StatusNotFound, "chat_not_found", "unknown chat "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

type renameChatRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req renameChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "title is required")
		return
	}

	err := s.store.UpdateChatTitle(r.Context(), id, req.Title)
	if errors.Is(err, store.ErrChatNotFound) {
		writeError(w, http.StatusNotFound, "chat_not_found", "unknown chat "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	chat, err := s.store.GetChat(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	includeTemporary := r.URL.Query().Get("include_temporary") == "true"
	chats, err := s.store.ListChats(r.Context(), includeTemporary, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msgs, err := s.store.GetMessages(r.Context(), id, 0)
	if errors.Is(err, store.ErrChatNotFound) {
		writeError(w, http.StatusNotFound, "chat_not_found", "unknown chat "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": id, "messages": msgs})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.store.DeleteChat(r.Context(), id)
	if errors.Is(err, store.ErrChatNotFound) {
		writeError(w, http.StatusNotFound, "chat_not_found", "unknown chat "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.engine.GetStatus()
	status := "ok"
	code := http.StatusOK
	if st.AvailableProviders == 0 {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":              status,
		"available_providers": st.AvailableProviders,
		"flagged_providers":   st.FlaggedProviders,
		"model_cache_valid":   s.cache.IsValid(),
	})
}

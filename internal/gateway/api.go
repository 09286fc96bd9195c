// ABOUTME: HTTP API handlers for chat dispatch, conversations, models, prompts and usage
// ABOUTME: Maps dispatcher error kinds to HTTP statuses with a {"error","kind"} body

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/model-router/internal/capability"
	"github.com/2389/model-router/internal/conversation"
	"github.com/2389/model-router/internal/dispatch"
	"github.com/2389/model-router/internal/prompts"
	"github.com/2389/model-router/internal/store"
)

// DefaultModel is used when a chat request names no model.
const DefaultModel = "gpt-5"

// maxRequestBody caps POST /api/chat bodies.
const maxRequestBody = 10 << 20

// kindInvalidRequest marks malformed requests rejected before dispatch.
const kindInvalidRequest = "invalid_request"

// ChatRequest is the JSON request body for POST /api/chat.
type ChatRequest struct {
	Model                string         `json:"model"`
	Prompt               string         `json:"prompt"`
	ConversationID       string         `json:"conversation_id,omitempty"`
	NewConversation      bool           `json:"new_conversation,omitempty"`
	IncludeClarification *bool          `json:"include_clarification,omitempty"` // defaults to true
	Template             string         `json:"template,omitempty"`
	ReasoningEffort      string         `json:"reasoning_effort,omitempty"`
	FilePaths            []string       `json:"file_paths,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	ConversationID  string `json:"conversation_id"`
	Response        string `json:"response"`
	Model           string `json:"model"`
	Timestamp       string `json:"timestamp"`
	NewConversation bool   `json:"new_conversation"`
}

// ModelsResponse is the JSON response for GET /api/models.
type ModelsResponse struct {
	Models []capability.Descriptor `json:"models"`
}

// PromptsResponse is the JSON response for GET /api/prompts.
type PromptsResponse struct {
	Prompts []string `json:"prompts"`
	Path    string   `json:"path"`
}

func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	mux.HandleFunc("POST /api/chat", g.handleChat)
	mux.HandleFunc("GET /api/conversations", g.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", g.handleGetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", g.handleDeleteConversation)
	mux.HandleFunc("GET /api/models", g.handleListModels)
	mux.HandleFunc("GET /api/prompts", g.handleListPrompts)
	mux.HandleFunc("GET /api/stats/usage", g.handleUsageStats)
	mux.HandleFunc("GET /api/events", g.handleEvents)
}

// handleHealth returns 200 OK while the process is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady returns 200 OK once the registry and conversation store are up.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if g.registry == nil || g.conversations == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "not_ready", "gateway is starting")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"models":        len(g.registry.IDs()),
		"conversations": g.conversations.Len(),
		"uptime":        time.Since(g.startedAt).Round(time.Second).String(),
	})
}

// handleChat handles POST /api/chat. The call blocks until the model answers.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	req, err := parseChatRequest(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, kindInvalidRequest, err.Error())
		return
	}

	res, err := g.dispatcher.Dispatch(r.Context(), req.toDispatch())
	if err != nil {
		g.sendDispatchError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, ChatResponse{
		ConversationID:  res.ConversationID,
		Response:        res.Response,
		Model:           res.Model,
		Timestamp:       res.Timestamp.UTC().Format(time.RFC3339Nano),
		NewConversation: res.NewConversation,
	})
}

// parseChatRequest decodes and validates a ChatRequest.
func parseChatRequest(r *http.Request) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.New("request body too large")
		}
		return nil, errors.New("invalid JSON body")
	}
	if req.Prompt == "" {
		return nil, errors.New("prompt is required")
	}
	if req.Model == "" {
		req.Model = DefaultModel
	}
	return &req, nil
}

// toDispatch maps the wire request to a dispatcher request. An explicit
// template wins; otherwise include_clarification selects the clarification
// template, skipped quietly if the prompt file no longer defines it.
func (req *ChatRequest) toDispatch() dispatch.Request {
	out := dispatch.Request{
		Model:           req.Model,
		Prompt:          req.Prompt,
		ConversationID:  req.ConversationID,
		NewConversation: req.NewConversation,
		FilePaths:       req.FilePaths,
		ReasoningEffort: req.ReasoningEffort,
		Metadata:        req.Metadata,
	}
	switch {
	case req.Template != "":
		out.Template = req.Template
	case req.IncludeClarification == nil || *req.IncludeClarification:
		out.Template = prompts.Clarification
		out.TemplateOptional = true
	}
	return out
}

// handleListConversations returns conversation summaries, most recent first.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	summaries := g.conversations.List()
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			g.sendJSONError(w, http.StatusBadRequest, kindInvalidRequest, "limit must be a positive integer")
			return
		}
		if limit < len(summaries) {
			summaries = summaries[:limit]
		}
	}
	if summaries == nil {
		summaries = []conversation.Summary{}
	}
	g.writeJSON(w, http.StatusOK, summaries)
}

// handleGetConversation returns one conversation with its full history.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := g.conversations.Get(r.PathValue("id"))
	if errors.Is(err, conversation.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, dispatch.KindConversationNotFound, "Conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, dispatch.KindInternal, "internal server error")
		return
	}
	g.writeJSON(w, http.StatusOK, conv)
}

// handleDeleteConversation removes a conversation.
func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !g.conversations.Delete(id) {
		g.sendJSONError(w, http.StatusNotFound, dispatch.KindConversationNotFound, "Conversation not found")
		return
	}
	g.logger.Info("conversation deleted", "conversation_id", id)
	g.writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted"})
}

// handleListModels returns the capability table.
func (g *Gateway) handleListModels(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, ModelsResponse{Models: g.registry.List()})
}

// handleListPrompts returns the names of the loaded prompt templates.
func (g *Gateway) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, PromptsResponse{
		Prompts: g.prompts.Names(),
		Path:    g.prompts.Path(),
	})
}

// handleUsageStats returns ledger aggregates, optionally filtered by
// ?model=, ?conversation_id= and ?since= (RFC 3339).
func (g *Gateway) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter store.UsageFilter
	if model := q.Get("model"); model != "" {
		filter.Model = &model
	}
	if convID := q.Get("conversation_id"); convID != "" {
		filter.ConversationID = &convID
	}
	if sinceStr := q.Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, kindInvalidRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = &since
	}

	stats, err := g.usage.GetUsageStats(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to get usage stats", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, dispatch.KindInternal, "internal server error")
		return
	}
	g.writeJSON(w, http.StatusOK, stats)
}

// statusForKind maps a dispatcher error kind to an HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case dispatch.KindUnknownModel:
		return http.StatusBadRequest
	case dispatch.KindConversationNotFound:
		return http.StatusNotFound
	case dispatch.KindModelMismatch:
		return http.StatusConflict
	case dispatch.KindContextTooLarge:
		return http.StatusRequestEntityTooLarge
	case dispatch.KindUnsupportedCapability, dispatch.KindTemplateNotFound:
		return http.StatusUnprocessableEntity
	case dispatch.KindProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sendDispatchError writes the JSON error for a failed dispatch. Internal
// failures are logged and their detail withheld from the client.
func (g *Gateway) sendDispatchError(w http.ResponseWriter, err error) {
	kind := dispatch.Kind(err)
	status := statusForKind(kind)
	if kind == dispatch.KindInternal {
		g.logger.Error("dispatch failed", "error", err)
		g.sendJSONError(w, status, kind, "internal server error")
		return
	}
	g.sendJSONError(w, status, kind, err.Error())
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, kind, message string) {
	g.writeJSON(w, status, map[string]string{"error": message, "kind": kind})
}

// writeJSON writes v as a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

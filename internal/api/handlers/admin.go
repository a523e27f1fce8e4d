package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/api"
	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/pagination"
	"github.com/cloo-solutions/fhirchat/internal/service"
	"github.com/go-chi/chi/v5"
)

type SnippetIngester interface {
	Ingest(ctx context.Context, inputs []service.SnippetInput) (*service.IngestResult, error)
}

type SnippetRemover interface {
	Delete(ctx context.Context, id string) error
}

type ChatLogLister interface {
	List(ctx context.Context, sessionID, cursor string, limit int) (*service.ChatLogPageResult, error)
}

type AdminHandler struct {
	ingester SnippetIngester
	remover  SnippetRemover
	logs     ChatLogLister
}

func NewAdminHandler(ingester SnippetIngester, remover SnippetRemover, logs ChatLogLister) *AdminHandler {
	return &AdminHandler{ingester: ingester, remover: remover, logs: logs}
}

type IngestSnippetsRequest struct {
	Snippets []service.SnippetInput `json:"snippets"`
}

type FeedbackView struct {
	Rating  string `json:"rating"`
	Comment string `json:"comment,omitempty"`
	At      string `json:"at"`
}

type ChatLogView struct {
	ID             string        `json:"id"`
	MessageID      string        `json:"message_id"`
	SessionID      string        `json:"session_id"`
	Query          string        `json:"query"`
	ResponseKind   string        `json:"response_kind"`
	InScope        bool          `json:"in_scope"`
	CitationCount  int           `json:"citation_count"`
	SnippetCount   int           `json:"snippet_count"`
	TokensConsumed int           `json:"tokens_consumed"`
	ProcessingMs   int64         `json:"processing_ms"`
	ErrorDetail    string        `json:"error_detail,omitempty"`
	Feedback       *FeedbackView `json:"feedback,omitempty"`
	CreatedAt      string        `json:"created_at"`
}

func chatLogToView(e *domain.ChatLogEntry) ChatLogView {
	v := ChatLogView{
		ID:             e.ID,
		MessageID:      e.MessageID,
		SessionID:      e.SessionID,
		Query:          e.Query,
		ResponseKind:   string(e.ResponseKind),
		InScope:        e.InScope,
		CitationCount:  e.CitationCount,
		SnippetCount:   e.SnippetCount,
		TokensConsumed: e.TokensConsumed,
		ProcessingMs:   e.ProcessingMs,
		ErrorDetail:    e.ErrorDetail,
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339),
	}
	if e.Feedback != nil {
		v.Feedback = &FeedbackView{
			Rating:  string(e.Feedback.Rating),
			Comment: e.Feedback.Comment,
			At:      e.Feedback.At.UTC().Format(time.RFC3339),
		}
	}
	return v
}

// IngestSnippets handles POST /admin/snippets.
func (h *AdminHandler) IngestSnippets(w http.ResponseWriter, r *http.Request) {
	var req IngestSnippetsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Snippets) == 0 {
		api.Error(w, http.StatusBadRequest, "snippets is required")
		return
	}

	result, err := h.ingester.Ingest(r.Context(), req.Snippets)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, result)
}

// DeleteSnippet handles DELETE /admin/snippets/{id}.
func (h *AdminHandler) DeleteSnippet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.remover.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListChatLogs handles GET /admin/chat-logs.
func (h *AdminHandler) ListChatLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	page, err := h.logs.List(r.Context(), q.Get("session_id"), q.Get("cursor"), pagination.ClampLimit(limit))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]ChatLogView, 0, len(page.Items))
	for _, e := range page.Items {
		items = append(items, chatLogToView(e))
	}

	api.Success(w, http.StatusOK, pagination.PageResult[ChatLogView]{
		Items:   items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	})
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/api"
	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/service"
)

// ChatResponder runs chat turns and records feedback on them.
type ChatResponder interface {
	HandleChatMessage(ctx context.Context, req service.ChatRequest) service.ChatResponse
	RecordUserFeedback(ctx context.Context, req service.FeedbackRequest) service.FeedbackResponse
}

type ChatHandler struct {
	svc ChatResponder
}

func NewChatHandler(svc ChatResponder) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatMessageRequest struct {
	Message             string           `json:"message"`
	SessionID           string           `json:"sessionId"`
	ConversationHistory []HistoryMessage `json:"conversationHistory"`
}

type FeedbackMessageRequest struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	Rating    string `json:"rating"`
	Comment   string `json:"comment"`
	Timestamp string `json:"timestamp"`
}

// toHistory keeps only user and assistant messages with content.
func toHistory(in []HistoryMessage) []domain.Message {
	out := make([]domain.Message, 0, len(in))
	for _, m := range in {
		role := domain.Role(m.Role)
		if role != domain.RoleUser && role != domain.RoleAssistant {
			continue
		}
		if m.Content == "" {
			continue
		}
		out = append(out, domain.Message{Role: role, Content: m.Content})
	}
	return out
}

// Chat handles POST /api/chat. The body is always a well-formed
// ChatResponse; the status reflects the outcome.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.JSON(w, http.StatusBadRequest, service.ChatResponse{
			Success:  false,
			Response: service.InvalidInputResponse,
			Error:    "invalid request body",
		})
		return
	}

	resp := h.svc.HandleChatMessage(r.Context(), service.ChatRequest{
		Message:             req.Message,
		SessionID:           req.SessionID,
		ConversationHistory: toHistory(req.ConversationHistory),
	})

	status := http.StatusOK
	if !resp.Success {
		status = api.DomainErrorToHTTP(resp.Err)
	}
	api.JSON(w, status, resp)
}

// Feedback handles POST /api/chat/feedback.
func (h *ChatHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.JSON(w, http.StatusBadRequest, service.FeedbackResponse{Success: false, Error: "invalid request body"})
		return
	}

	// The client timestamp is informational; an unparsable value is ignored.
	var ts time.Time
	if req.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			ts = parsed
		}
	}

	resp := h.svc.RecordUserFeedback(r.Context(), service.FeedbackRequest{
		SessionID: req.SessionID,
		MessageID: req.MessageID,
		Rating:    req.Rating,
		Comment:   req.Comment,
		Timestamp: ts,
	})

	status := http.StatusOK
	if !resp.Success {
		status = api.DomainErrorToHTTP(resp.Err)
	}
	api.JSON(w, status, resp)
}

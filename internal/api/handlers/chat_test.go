package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, h http.HandlerFunc, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w, out
}

func TestChatHandler_Chat_Answered(t *testing.T) {
	svc := new(MockChatResponder)
	svc.On("HandleChatMessage", mock.Anything, mock.MatchedBy(func(req service.ChatRequest) bool {
		return req.Message == "What is a FHIR Patient resource?" &&
			req.SessionID == "s1" &&
			len(req.ConversationHistory) == 2 &&
			req.ConversationHistory[0].Role == domain.RoleUser
	})).Return(service.ChatResponse{
		Success:        true,
		Response:       "A Patient resource holds demographics [1].",
		Citations:      []service.Citation{{Source: "FHIR Patient", URL: "https://hl7.org/fhir/patient.html"}},
		ProcessingTime: 42,
		SessionID:      "s1",
		MessageID:      "m1",
		Kind:           domain.ResponseKindAnswered,
	})

	h := NewChatHandler(svc)
	w, out := postJSON(t, h.Chat, "/api/chat", `{
		"message": "What is a FHIR Patient resource?",
		"sessionId": "s1",
		"conversationHistory": [
			{"role": "user", "content": "hi"},
			{"role": "system", "content": "ignored"},
			{"role": "assistant", "content": "hello"}
		]
	}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "m1", out["messageId"])
	assert.Equal(t, "s1", out["sessionId"])
	assert.Equal(t, float64(42), out["processingTime"])
	citations, ok := out["citations"].([]interface{})
	require.True(t, ok)
	require.Len(t, citations, 1)
	assert.Equal(t, "FHIR Patient", citations[0].(map[string]interface{})["source"])
	assert.NotContains(t, out, "error")
	svc.AssertExpectations(t)
}

func TestChatHandler_Chat_OutOfScope(t *testing.T) {
	svc := new(MockChatResponder)
	svc.On("HandleChatMessage", mock.Anything, mock.Anything).Return(service.ChatResponse{
		Success:         true,
		Response:        service.OutOfScopeResponse("best pizza?"),
		IsOutOfScope:    true,
		SuggestedAction: service.SuggestedActionContactExpert,
		Kind:            domain.ResponseKindOutOfScope,
	})

	h := NewChatHandler(svc)
	w, out := postJSON(t, h.Chat, "/api/chat", `{"message":"best pizza?","sessionId":"s1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["isOutOfScope"])
	assert.Equal(t, "contact_expert", out["suggestedAction"])
	assert.Equal(t, float64(0), out["processingTime"])
	citations, ok := out["citations"].([]interface{})
	require.True(t, ok, "citations must be a JSON array")
	assert.Empty(t, citations)
}

func TestChatHandler_Chat_FailureStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid input", domain.ErrInvalidChatInput, http.StatusBadRequest},
		{"missing session", domain.ErrMissingSessionID, http.StatusBadRequest},
		{"generation failure", domain.NewGenerationError(assert.AnError), http.StatusBadGateway},
		{"unexpected failure", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockChatResponder)
			svc.On("HandleChatMessage", mock.Anything, mock.Anything).Return(service.ChatResponse{
				Success:  false,
				Response: service.GenericApology,
				Error:    "failed to generate a response",
				Kind:     domain.ResponseKindError,
				Err:      tt.err,
			})

			h := NewChatHandler(svc)
			w, out := postJSON(t, h.Chat, "/api/chat", `{"message":"x","sessionId":"s1"}`)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, service.GenericApology, out["response"])
			assert.NotContains(t, out, "citations")
			assert.NotContains(t, out, "processingTime")
			assert.NotContains(t, w.Body.String(), assert.AnError.Error())
		})
	}
}

func TestChatHandler_Chat_InvalidJSON(t *testing.T) {
	svc := new(MockChatResponder)
	h := NewChatHandler(svc)

	w, out := postJSON(t, h.Chat, "/api/chat", `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "invalid request body", out["error"])
	assert.Equal(t, service.InvalidInputResponse, out["response"])
	svc.AssertNotCalled(t, "HandleChatMessage", mock.Anything, mock.Anything)
}

func TestChatHandler_Feedback(t *testing.T) {
	tests := []struct {
		name       string
		resp       service.FeedbackResponse
		wantStatus int
	}{
		{"recorded", service.FeedbackResponse{Success: true, Message: "Thanks for your feedback!"}, http.StatusOK},
		{"invalid rating", service.FeedbackResponse{Error: domain.ErrInvalidRating.Message, Err: domain.ErrInvalidRating}, http.StatusBadRequest},
		{"no entry", service.FeedbackResponse{Error: domain.ErrChatLogNotFound.Message, Err: domain.ErrChatLogNotFound}, http.StatusNotFound},
		{"duplicate", service.FeedbackResponse{Error: domain.ErrFeedbackAlreadyRecorded.Message, Err: domain.ErrFeedbackAlreadyRecorded}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockChatResponder)
			svc.On("RecordUserFeedback", mock.Anything, mock.MatchedBy(func(req service.FeedbackRequest) bool {
				return req.SessionID == "s1" && req.MessageID == "m1" && req.Rating == "up" &&
					req.Comment == "great" && req.Timestamp.Year() == 2026
			})).Return(tt.resp)

			h := NewChatHandler(svc)
			w, out := postJSON(t, h.Feedback, "/api/chat/feedback",
				`{"sessionId":"s1","messageId":"m1","rating":"up","comment":"great","timestamp":"2026-05-01T10:00:00Z"}`)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.resp.Success, out["success"])
			svc.AssertExpectations(t)
		})
	}
}

func TestChatHandler_Feedback_IgnoresBadTimestamp(t *testing.T) {
	svc := new(MockChatResponder)
	svc.On("RecordUserFeedback", mock.Anything, mock.MatchedBy(func(req service.FeedbackRequest) bool {
		return req.Timestamp.IsZero()
	})).Return(service.FeedbackResponse{Success: true, Message: "Thanks for your feedback!"})

	h := NewChatHandler(svc)
	w, _ := postJSON(t, h.Feedback, "/api/chat/feedback", `{"sessionId":"s1","rating":"down","timestamp":"yesterday"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestChatHandler_Feedback_InvalidJSON(t *testing.T) {
	h := NewChatHandler(new(MockChatResponder))

	w, out := postJSON(t, h.Feedback, "/api/chat/feedback", `[`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request body", out["error"])
}

package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

type APIClient struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

// NewAPIClientWithCmd resolves the API URL and admin token with the cascade
// flag, environment, saved config, default.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	var flagURL, flagToken string
	if cmd != nil {
		flagURL, _ = cmd.Flags().GetString("api-url")
		flagToken, _ = cmd.Flags().GetString("admin-token")
	}

	baseURL, err := resolve(flagURL, envAPIURL, func(c *GlobalConfig) string { return c.APIURL })
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = defaultAPIURL
	}

	token, err := resolve(flagToken, envAdminToken, func(c *GlobalConfig) string { return c.AdminToken })
	if err != nil {
		return nil, err
	}

	return NewAPIClientWithConfig(baseURL, token), nil
}

func NewAPIClientWithConfig(baseURL, adminToken string) *APIClient {
	return &APIClient{
		baseURL:    baseURL,
		adminToken: adminToken,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message             string           `json:"message"`
	SessionID           string           `json:"sessionId"`
	ConversationHistory []HistoryMessage `json:"conversationHistory,omitempty"`
}

type Citation struct {
	Source string `json:"source"`
	URL    string `json:"url"`
}

type ChatResponse struct {
	Success         bool       `json:"success"`
	Response        string     `json:"response"`
	Citations       []Citation `json:"citations,omitempty"`
	IsOutOfScope    bool       `json:"isOutOfScope,omitempty"`
	SuggestedAction string     `json:"suggestedAction,omitempty"`
	ProcessingTime  int64      `json:"processingTime,omitempty"`
	SessionID       string     `json:"sessionId,omitempty"`
	MessageID       string     `json:"messageId,omitempty"`
	Error           string     `json:"error,omitempty"`
}

type FeedbackRequest struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId,omitempty"`
	Rating    string `json:"rating"`
	Comment   string `json:"comment,omitempty"`
	Timestamp string `json:"timestamp"`
}

type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Chat sends one message. Failed turns still carry a readable response, so
// the decoded body is returned together with any APIError.
func (c *APIClient) Chat(req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	status, err := c.do(http.MethodPost, "/api/chat", req, &resp, false)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return &resp, &APIError{StatusCode: status, Message: resp.Error}
	}
	return &resp, nil
}

func (c *APIClient) Feedback(req FeedbackRequest) (*FeedbackResponse, error) {
	if req.Timestamp == "" {
		req.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	var resp FeedbackResponse
	status, err := c.do(http.MethodPost, "/api/chat/feedback", req, &resp, false)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return &resp, &APIError{StatusCode: status, Message: resp.Error}
	}
	return &resp, nil
}

// adminEnvelope matches the {data}|{error} admin response shape.
type adminEnvelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

func (c *APIClient) admin(method, path string, body, out interface{}) error {
	if c.adminToken == "" {
		return fmt.Errorf("%s not set (use --admin-token or the environment variable)", envAdminToken)
	}

	var env adminEnvelope
	status, err := c.do(method, path, body, &env, true)
	if err != nil {
		return err
	}
	if status >= 400 {
		return &APIError{StatusCode: status, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

type SnippetDocument struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	SourceLabel string `json:"source_label"`
	SourceURL   string `json:"source_url,omitempty"`
}

type IngestResult struct {
	Documents int `json:"documents"`
	Snippets  int `json:"snippets"`
}

func (c *APIClient) IngestSnippets(docs []SnippetDocument) (*IngestResult, error) {
	var result IngestResult
	err := c.admin(http.MethodPost, "/admin/snippets", map[string]interface{}{"snippets": docs}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *APIClient) DeleteSnippet(id string) error {
	return c.admin(http.MethodDelete, "/admin/snippets/"+url.PathEscape(id), nil, nil)
}

type ChatLogFeedback struct {
	Rating  string `json:"rating"`
	Comment string `json:"comment,omitempty"`
	At      string `json:"at"`
}

type ChatLog struct {
	ID             string           `json:"id"`
	MessageID      string           `json:"message_id"`
	SessionID      string           `json:"session_id"`
	Query          string           `json:"query"`
	ResponseKind   string           `json:"response_kind"`
	InScope        bool             `json:"in_scope"`
	CitationCount  int              `json:"citation_count"`
	SnippetCount   int              `json:"snippet_count"`
	TokensConsumed int              `json:"tokens_consumed"`
	ProcessingMs   int64            `json:"processing_ms"`
	ErrorDetail    string           `json:"error_detail,omitempty"`
	Feedback       *ChatLogFeedback `json:"feedback,omitempty"`
	CreatedAt      string           `json:"created_at"`
}

type ChatLogPage struct {
	Items   []ChatLog `json:"items"`
	Cursor  string    `json:"cursor,omitempty"`
	HasMore bool      `json:"has_more"`
}

func (c *APIClient) ListChatLogs(sessionID, cursor string, limit int) (*ChatLogPage, error) {
	q := url.Values{}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	path := "/admin/chat-logs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page ChatLogPage
	if err := c.admin(http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// do sends a JSON request and decodes the body into out whatever the status.
func (c *APIClient) do(method, path string, body, out interface{}, withAuth bool) (int, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if withAuth {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if len(respBody) == 0 {
		return resp.StatusCode, nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		if resp.StatusCode >= 400 {
			return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		}
		return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
	}

	return resp.StatusCode, nil
}

//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode"

	"github.com/cloo-solutions/fhirchat/internal/api/handlers"
	"github.com/cloo-solutions/fhirchat/internal/index"
	"github.com/cloo-solutions/fhirchat/internal/logging"
	fhiropenai "github.com/cloo-solutions/fhirchat/internal/openai"
	"github.com/cloo-solutions/fhirchat/internal/repository"
	"github.com/cloo-solutions/fhirchat/internal/server"
	"github.com/cloo-solutions/fhirchat/internal/service"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

const (
	adminToken = "e2e-admin-token"

	// failureMarker in a query makes the language-model stub return 500.
	failureMarker = "trigger-failure"

	stubAnswer = "The Patient resource holds demographics and administrative data [1]. See also [9]."
	stubTokens = 142
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	LLM        *LLMStub
	ChatLogs   *repository.MemoryChatLogStore
	ServerURL  string
	HTTPClient *http.Client

	closers []func()
}

// SetupE2EEnv wires the full chat pipeline against an in-memory index, an
// in-memory chat log and a stubbed language model, and serves it over HTTP.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()
	log := logging.Nop()

	llm := NewLLMStub()

	client := fhiropenai.NewClientWithConfig(fhiropenai.Config{
		APIKey:  "sk-test",
		BaseURL: llm.URL() + "/v1",
	})

	idx, err := index.NewMemoryIndex(client.GenerateEmbedding)
	require.NoError(t, err)

	classifier, err := service.NewScopeClassifier(service.DefaultScopeTerms())
	require.NoError(t, err)

	chatLogs := repository.NewMemoryChatLogStore()
	interactions := service.NewInteractionLogger(chatLogs, log)
	ingest := service.NewIngestService(client, idx, log)
	generator := service.NewGenerator(client, service.DefaultGeneratorConfig())
	retriever := service.NewRetriever(idx, 5*time.Second, log)
	chat := service.NewChatService(classifier, retriever, generator, interactions, service.ChatServiceConfig{}, log)

	router := server.NewRouter(server.RouterConfig{
		ChatHandler:    handlers.NewChatHandler(chat),
		AdminHandler:   handlers.NewAdminHandler(ingest, idx, interactions),
		AdminToken:     adminToken,
		AllowedOrigins: []string{"https://cloo.example"},
		Logger:         log,
	})
	srv := httptest.NewServer(router)

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		LLM:        llm,
		ChatLogs:   chatLogs,
		ServerURL:  srv.URL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.closers = append(env.closers, srv.Close, llm.Close)
	return env
}

// Cleanup stops the HTTP server and the language-model stub
func (e *E2ETestEnv) Cleanup() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// Response is a decoded HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// Envelope is the {data}/{error} wrapper used by admin routes
type Envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// Do sends a request with an optional JSON body and bearer token
func (e *E2ETestEnv) Do(method, path string, body any, token string) Response {
	e.T.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, reader)
	require.NoError(e.T, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.HTTPClient.Do(req)
	require.NoError(e.T, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(e.T, err)
	return Response{StatusCode: resp.StatusCode, Body: raw}
}

// Post sends a JSON POST without credentials
func (e *E2ETestEnv) Post(path string, body any) Response {
	e.T.Helper()
	return e.Do(http.MethodPost, path, body, "")
}

// Admin sends an authenticated admin request and decodes the envelope
func (e *E2ETestEnv) Admin(method, path string, body any) (Response, Envelope) {
	e.T.Helper()
	resp := e.Do(method, path, body, adminToken)
	var env Envelope
	if len(resp.Body) > 0 {
		require.NoError(e.T, json.Unmarshal(resp.Body, &env))
	}
	return resp, env
}

// Decode unmarshals a response body into out
func (e *E2ETestEnv) Decode(resp Response, out any) {
	e.T.Helper()
	require.NoError(e.T, json.Unmarshal(resp.Body, out), string(resp.Body))
}

// LLMStub serves the subset of the OpenAI API the pipeline calls. Embeddings
// are deterministic bag-of-words vectors, so related texts rank together.
type LLMStub struct {
	srv         *httptest.Server
	completions atomic.Int64
	embeddings  atomic.Int64
}

// NewLLMStub starts the stub server
func NewLLMStub() *LLMStub {
	s := &LLMStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/embeddings", s.handleEmbeddings)
	mux.HandleFunc("POST /v1/chat/completions", s.handleCompletions)
	s.srv = httptest.NewServer(mux)
	return s
}

func (s *LLMStub) URL() string { return s.srv.URL }

func (s *LLMStub) Close() { s.srv.Close() }

// Completions returns the number of chat completion calls served
func (s *LLMStub) Completions() int64 { return s.completions.Load() }

func (s *LLMStub) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	s.embeddings.Add(1)

	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStubError(w, http.StatusBadRequest, "invalid embeddings request")
		return
	}

	resp := openai.EmbeddingResponse{
		Object: "list",
		Model:  openai.EmbeddingModel(req.Model),
	}
	for i, text := range req.Input {
		resp.Data = append(resp.Data, openai.Embedding{
			Object:    "embedding",
			Embedding: bagOfWords(text, fhiropenai.DefaultEmbeddingDimensions),
			Index:     i,
		})
	}
	writeStubJSON(w, http.StatusOK, resp)
}

func (s *LLMStub) handleCompletions(w http.ResponseWriter, r *http.Request) {
	s.completions.Add(1)

	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStubError(w, http.StatusBadRequest, "invalid completion request")
		return
	}
	for _, m := range req.Messages {
		if strings.Contains(m.Content, failureMarker) {
			writeStubError(w, http.StatusInternalServerError, "upstream model failure")
			return
		}
	}

	writeStubJSON(w, http.StatusOK, openai.ChatCompletionResponse{
		ID:     "chatcmpl-e2e",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: stubAnswer},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 100, CompletionTokens: 42, TotalTokens: stubTokens},
	})
}

// bagOfWords hashes each word into a bucket. Bucket 0 is a constant bias so
// the vector is never zero.
func bagOfWords(text string, dims int) []float32 {
	vec := make([]float32, dims)
	vec[0] = 0.1
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[1+int(h.Sum32()%uint32(dims-1))] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func writeStubJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStubError(w http.ResponseWriter, status int, msg string) {
	writeStubJSON(w, status, map[string]any{
		"error": map[string]any{"message": msg, "type": "server_error"},
	})
}

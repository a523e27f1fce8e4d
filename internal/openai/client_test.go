package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockOpenAIAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func TestClient_GenerateEmbedding_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, Config{})

	ctx := context.Background()
	text := "What is a FHIR Observation?"
	expected := make([]float32, DefaultEmbeddingDimensions)
	for i := range expected {
		expected[i] = float32(i) * 0.001
	}

	mockAPI.On("CreateEmbeddings", ctx, text).Return(expected, nil)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.NoError(t, err)
	assert.Equal(t, expected, embedding)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_EmptyText(t *testing.T) {
	client := NewClient("")

	embedding, err := client.GenerateEmbedding(context.Background(), "")

	assert.Nil(t, embedding)
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_GenerateEmbedding_WrongDimensions(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, Config{})

	mockAPI.On("CreateEmbeddings", mock.Anything, "text").Return([]float32{1, 2, 3}, nil)

	_, err := client.GenerateEmbedding(context.Background(), "text")
	assert.ErrorIs(t, err, ErrWrongDimensions)
}

func TestClient_GenerateEmbedding_APIError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, Config{})

	mockAPI.On("CreateEmbeddings", mock.Anything, "text").Return(nil, errors.New("API rate limit exceeded"))

	_, err := client.GenerateEmbedding(context.Background(), "text")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create embedding")
}

func TestClient_Complete(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, Config{ChatModel: "gpt-test"})

	mockAPI.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == "gpt-test" &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == openai.ChatMessageRoleSystem &&
			req.Messages[0].Content == "system" &&
			req.Messages[1].Content == "What is FHIR?" &&
			req.Temperature == 0.3 &&
			req.MaxTokens == 500
	})).Return(openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "FHIR is a standard [1]."}}},
		Usage:   openai.Usage{TotalTokens: 42},
	}, nil)

	text, tokens, err := client.Complete(context.Background(), "system", "What is FHIR?", 0.3, 500)

	require.NoError(t, err)
	assert.Equal(t, "FHIR is a standard [1].", text)
	assert.Equal(t, 42, tokens)
}

func TestClient_Complete_NoChoices(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, Config{})

	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(openai.ChatCompletionResponse{}, nil)

	_, _, err := client.Complete(context.Background(), "s", "u", 0.3, 500)
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestClient_Complete_APIError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newClient(mockAPI, Config{})

	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, errors.New("401 unauthorized"))

	_, _, err := client.Complete(context.Background(), "s", "u", 0.3, 500)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create chat completion")
}

func TestClient_Complete_AgainstCompatibleEndpoint(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Model:   req.Model,
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "hello"}}},
			Usage:   openai.Usage{TotalTokens: 7},
		})
	}))
	defer srv.Close()

	client := NewClientWithConfig(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})

	text, tokens, err := client.Complete(context.Background(), "system", "hi", 0.3, 500)

	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, 7, tokens)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestNewClient(t *testing.T) {
	client := NewClient("test-api-key")

	assert.NotNil(t, client)
	assert.NotNil(t, client.api)
	assert.Equal(t, DefaultChatModel, client.chatModel)
	assert.Equal(t, DefaultEmbeddingDimensions, client.dimensions)
}

func TestNewClientFromEnv_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	client, err := NewClientFromEnv()

	assert.Nil(t, client)
	assert.Equal(t, ErrNoAPIKey, err)
}

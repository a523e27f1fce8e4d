package service

import (
	"context"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/pagination"
	"github.com/stretchr/testify/mock"
)

type MockKnowledgeIndex struct {
	mock.Mock
}

func (m *MockKnowledgeIndex) Search(ctx context.Context, query string, limit int) ([]domain.KnowledgeSnippet, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.KnowledgeSnippet), args.Error(1)
}

type MockChatCompleter struct {
	mock.Mock
}

func (m *MockChatCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, int, error) {
	args := m.Called(ctx, systemPrompt, userPrompt, temperature, maxTokens)
	return args.String(0), args.Int(1), args.Error(2)
}

type MockChatLogRepo struct {
	mock.Mock
}

func (m *MockChatLogRepo) Create(ctx context.Context, entry *domain.ChatLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockChatLogRepo) FindByMessageID(ctx context.Context, sessionID, messageID string) (*domain.ChatLogEntry, error) {
	args := m.Called(ctx, sessionID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatLogEntry), args.Error(1)
}

func (m *MockChatLogRepo) ListRecentBySession(ctx context.Context, sessionID string, limit int) ([]*domain.ChatLogEntry, error) {
	args := m.Called(ctx, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChatLogEntry), args.Error(1)
}

func (m *MockChatLogRepo) SetFeedback(ctx context.Context, entryID string, fb domain.Feedback) error {
	args := m.Called(ctx, entryID, fb)
	return args.Error(0)
}

func (m *MockChatLogRepo) ListWithCursor(ctx context.Context, sessionID string, cursor *pagination.Cursor, limit int) (*ChatLogPageResult, error) {
	args := m.Called(ctx, sessionID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ChatLogPageResult), args.Error(1)
}

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, query string, limit int) []domain.KnowledgeSnippet {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.KnowledgeSnippet)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, query string, snippets []domain.KnowledgeSnippet, history []domain.Message) (*domain.GeneratedAnswer, error) {
	args := m.Called(ctx, query, snippets, history)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GeneratedAnswer), args.Error(1)
}

type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockSnippetStore struct {
	mock.Mock
}

func (m *MockSnippetStore) Upsert(ctx context.Context, s *domain.Snippet) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

type fixedUUIDGen struct {
	ids []string
	n   int
}

func (g *fixedUUIDGen) NewString() string {
	id := g.ids[g.n%len(g.ids)]
	g.n++
	return id
}

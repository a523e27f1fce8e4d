package handlers

import (
	"context"

	"github.com/cloo-solutions/fhirchat/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockChatResponder struct {
	mock.Mock
}

func (m *MockChatResponder) HandleChatMessage(ctx context.Context, req service.ChatRequest) service.ChatResponse {
	args := m.Called(ctx, req)
	return args.Get(0).(service.ChatResponse)
}

func (m *MockChatResponder) RecordUserFeedback(ctx context.Context, req service.FeedbackRequest) service.FeedbackResponse {
	args := m.Called(ctx, req)
	return args.Get(0).(service.FeedbackResponse)
}

type MockSnippetIngester struct {
	mock.Mock
}

func (m *MockSnippetIngester) Ingest(ctx context.Context, inputs []service.SnippetInput) (*service.IngestResult, error) {
	args := m.Called(ctx, inputs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestResult), args.Error(1)
}

type MockSnippetRemover struct {
	mock.Mock
}

func (m *MockSnippetRemover) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockChatLogLister struct {
	mock.Mock
}

func (m *MockChatLogLister) List(ctx context.Context, sessionID, cursor string, limit int) (*service.ChatLogPageResult, error) {
	args := m.Called(ctx, sessionID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChatLogPageResult), args.Error(1)
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRetriever_Retrieve_OrdersAndAssignsOrdinals(t *testing.T) {
	idx := new(MockKnowledgeIndex)
	r := NewRetriever(idx, time.Second, nil)

	idx.On("Search", mock.Anything, "fhir bundle", 3).Return([]domain.KnowledgeSnippet{
		{ID: "a", RelevanceScore: 0.2, OrdinalIndex: 7},
		{ID: "b", RelevanceScore: 0.9},
		{ID: "c", RelevanceScore: 0.5},
		{ID: "d", RelevanceScore: 0.1},
	}, nil)

	got := r.Retrieve(context.Background(), "fhir bundle", 3)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})
	for i, s := range got {
		assert.Equal(t, i, s.OrdinalIndex)
	}
	idx.AssertExpectations(t)
}

func TestRetriever_Retrieve_FailsClosed(t *testing.T) {
	idx := new(MockKnowledgeIndex)
	r := NewRetriever(idx, time.Second, nil)

	idx.On("Search", mock.Anything, "q", 5).Return(nil, errors.New("connection refused"))

	got := r.Retrieve(context.Background(), "q", 5)

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRetriever_Retrieve_Timeout(t *testing.T) {
	idx := new(MockKnowledgeIndex)
	r := NewRetriever(idx, 20*time.Millisecond, nil)

	idx.On("Search", mock.Anything, "slow", 5).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	got := r.Retrieve(context.Background(), "slow", 5)
	assert.Empty(t, got)
}

func TestRetriever_Retrieve_NilIndex(t *testing.T) {
	r := NewRetriever(nil, 0, nil)
	assert.Empty(t, r.Retrieve(context.Background(), "q", 5))
}

func TestRetriever_Retrieve_DefaultLimit(t *testing.T) {
	idx := new(MockKnowledgeIndex)
	r := NewRetriever(idx, time.Second, nil)

	idx.On("Search", mock.Anything, "q", defaultRetrievalLimit).Return([]domain.KnowledgeSnippet{}, nil)

	r.Retrieve(context.Background(), "q", 0)
	idx.AssertExpectations(t)
}

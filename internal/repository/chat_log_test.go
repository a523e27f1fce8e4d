//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatLogEntry(sessionID string, createdAt time.Time) *domain.ChatLogEntry {
	return &domain.ChatLogEntry{
		ID:             uuid.NewString(),
		MessageID:      uuid.NewString(),
		SessionID:      sessionID,
		Query:          "What is a FHIR Observation resource?",
		ResponseKind:   domain.ResponseKindAnswered,
		InScope:        true,
		CitationCount:  2,
		TokensConsumed: 321,
		ProcessingMs:   850,
		SnippetCount:   5,
		CreatedAt:      createdAt.UTC().Truncate(time.Microsecond),
	}
}

func TestChatLogRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	pool := testutil.StartPostgres(ctx, t, "../../migrations")
	repo := NewChatLogRepository(pool)

	e := newChatLogEntry("s1", time.Now())
	e.ResponseKind = domain.ResponseKindError
	e.ErrorDetail = "generation failed: timeout"
	require.NoError(t, repo.Create(ctx, e))

	got, err := repo.FindByMessageID(ctx, "s1", e.MessageID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, domain.ResponseKindError, got.ResponseKind)
	assert.Equal(t, "generation failed: timeout", got.ErrorDetail)
	assert.Equal(t, 321, got.TokensConsumed)
	assert.Equal(t, int64(850), got.ProcessingMs)
	assert.True(t, e.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.Feedback)
	assert.Nil(t, got.ExportedAt)

	_, err = repo.FindByMessageID(ctx, "other", e.MessageID)
	assert.ErrorIs(t, err, domain.ErrChatLogNotFound)
}

func TestChatLogRepository_ListRecentBySession(t *testing.T) {
	ctx := context.Background()
	pool := testutil.StartPostgres(ctx, t, "../../migrations")
	repo := NewChatLogRepository(pool)

	base := time.Now().Add(-time.Hour)
	var last *domain.ChatLogEntry
	for i := 0; i < 12; i++ {
		last = newChatLogEntry("s1", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, last))
	}
	require.NoError(t, repo.Create(ctx, newChatLogEntry("s2", time.Now())))

	got, err := repo.ListRecentBySession(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, last.ID, got[0].ID)

	empty, err := repo.ListRecentBySession(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestChatLogRepository_SetFeedback(t *testing.T) {
	ctx := context.Background()
	pool := testutil.StartPostgres(ctx, t, "../../migrations")
	repo := NewChatLogRepository(pool)

	e := newChatLogEntry("s1", time.Now())
	require.NoError(t, repo.Create(ctx, e))

	fb := domain.Feedback{Rating: domain.RatingDown, Comment: "missing R5 details", At: time.Now().UTC().Truncate(time.Microsecond)}
	require.NoError(t, repo.SetFeedback(ctx, e.ID, fb))
	assert.ErrorIs(t, repo.SetFeedback(ctx, e.ID, fb), domain.ErrFeedbackAlreadyRecorded)
	assert.ErrorIs(t, repo.SetFeedback(ctx, uuid.NewString(), fb), domain.ErrChatLogNotFound)

	got, err := repo.FindByMessageID(ctx, "s1", e.MessageID)
	require.NoError(t, err)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, domain.RatingDown, got.Feedback.Rating)
	assert.Equal(t, "missing R5 details", got.Feedback.Comment)
}

func TestChatLogRepository_ListWithCursor(t *testing.T) {
	ctx := context.Background()
	pool := testutil.StartPostgres(ctx, t, "../../migrations")
	repo := NewChatLogRepository(pool)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, newChatLogEntry("s1", base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.Create(ctx, newChatLogEntry("s2", base)))

	page1, err := repo.ListWithCursor(ctx, "s1", nil, 3)
	require.NoError(t, err)
	assert.Len(t, page1.Items, 3)
	assert.True(t, page1.HasMore)

	page2, err := repo.ListWithCursor(ctx, "s1", decode(t, page1.NextCursor), 3)
	require.NoError(t, err)
	assert.Len(t, page2.Items, 2)
	assert.False(t, page2.HasMore)

	all, err := repo.ListWithCursor(ctx, "", nil, 20)
	require.NoError(t, err)
	assert.Len(t, all.Items, 6)
}

func TestChatLogRepository_Export(t *testing.T) {
	ctx := context.Background()
	pool := testutil.StartPostgres(ctx, t, "../../migrations")
	repo := NewChatLogRepository(pool)

	base := time.Now().Add(-time.Hour)
	first := newChatLogEntry("s1", base)
	second := newChatLogEntry("s1", base.Add(time.Minute))
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	pending, err := repo.ListUnexported(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)

	require.NoError(t, repo.MarkExported(ctx, []string{first.ID}, time.Now().UTC()))

	pending, err = repo.ListUnexported(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

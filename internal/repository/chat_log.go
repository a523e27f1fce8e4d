package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/pagination"
	"github.com/cloo-solutions/fhirchat/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const chatLogColumns = `id, message_id, session_id, query, response_kind, in_scope, citation_count,
	tokens_consumed, processing_ms, snippet_count, error_detail,
	feedback_rating, feedback_comment, feedback_at, exported_at, created_at`

// ChatLogRepository is the append-only Postgres store of chat turns.
type ChatLogRepository struct {
	db dbtx
}

func NewChatLogRepository(pool *pgxpool.Pool) *ChatLogRepository {
	return &ChatLogRepository{db: pool}
}

func (r *ChatLogRepository) Create(ctx context.Context, e *domain.ChatLogEntry) error {
	if err := domain.ValidateChatLogEntry(e); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO chat_logs (id, message_id, session_id, query, response_kind, in_scope, citation_count,
			tokens_consumed, processing_ms, snippet_count, error_detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.MessageID, e.SessionID, e.Query, string(e.ResponseKind), e.InScope, e.CitationCount,
		e.TokensConsumed, e.ProcessingMs, e.SnippetCount, nullableString(e.ErrorDetail), e.CreatedAt,
	)
	return err
}

func (r *ChatLogRepository) FindByMessageID(ctx context.Context, sessionID, messageID string) (*domain.ChatLogEntry, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+chatLogColumns+` FROM chat_logs WHERE message_id = $1 AND session_id = $2`,
		messageID, sessionID,
	)
	e, err := scanChatLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChatLogNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *ChatLogRepository) ListRecentBySession(ctx context.Context, sessionID string, limit int) ([]*domain.ChatLogEntry, error) {
	if limit <= 0 {
		limit = service.FeedbackLookback
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+chatLogColumns+` FROM chat_logs
		 WHERE session_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChatLogRows(rows)
}

// SetFeedback attaches feedback once. A second attempt on the same entry
// returns domain.ErrFeedbackAlreadyRecorded.
func (r *ChatLogRepository) SetFeedback(ctx context.Context, entryID string, fb domain.Feedback) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE chat_logs
		 SET feedback_rating = $1, feedback_comment = $2, feedback_at = $3
		 WHERE id = $4 AND feedback_rating IS NULL`,
		string(fb.Rating), nullableString(fb.Comment), fb.At, entryID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM chat_logs WHERE id = $1)`, entryID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrFeedbackAlreadyRecorded
	}
	return domain.ErrChatLogNotFound
}

// ListWithCursor pages through entries newest first. An empty sessionID
// lists all sessions.
func (r *ChatLogRepository) ListWithCursor(ctx context.Context, sessionID string, cursor *pagination.Cursor, limit int) (*service.ChatLogPageResult, error) {
	limit = pagination.ClampLimit(limit)

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+chatLogColumns+` FROM chat_logs
			 WHERE ($1 = '' OR session_id = $1) AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			sessionID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+chatLogColumns+` FROM chat_logs
			 WHERE ($1 = '' OR session_id = $1)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			sessionID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanChatLogRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &service.ChatLogPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListUnexported returns the oldest entries not yet archived.
func (r *ChatLogRepository) ListUnexported(ctx context.Context, limit int) ([]*domain.ChatLogEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+chatLogColumns+` FROM chat_logs
		 WHERE exported_at IS NULL
		 ORDER BY created_at, id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChatLogRows(rows)
}

func (r *ChatLogRepository) MarkExported(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE chat_logs SET exported_at = $1 WHERE id = ANY($2) AND exported_at IS NULL`,
		at, ids,
	)
	return err
}

func scanChatLog(row pgx.Row) (*domain.ChatLogEntry, error) {
	var e domain.ChatLogEntry
	var kind string
	var errorDetail, rating, comment *string
	var feedbackAt, exportedAt *time.Time

	err := row.Scan(
		&e.ID, &e.MessageID, &e.SessionID, &e.Query, &kind, &e.InScope, &e.CitationCount,
		&e.TokensConsumed, &e.ProcessingMs, &e.SnippetCount, &errorDetail,
		&rating, &comment, &feedbackAt, &exportedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ResponseKind = domain.ResponseKind(kind)
	e.ErrorDetail = derefString(errorDetail)
	if rating != nil {
		fb := &domain.Feedback{Rating: domain.Rating(*rating), Comment: derefString(comment)}
		if feedbackAt != nil {
			fb.At = *feedbackAt
		}
		e.Feedback = fb
	}
	e.ExportedAt = exportedAt
	return &e, nil
}

func scanChatLogRows(rows pgx.Rows) ([]*domain.ChatLogEntry, error) {
	results := make([]*domain.ChatLogEntry, 0)
	for rows.Next() {
		e, err := scanChatLog(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

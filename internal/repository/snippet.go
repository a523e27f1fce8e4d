package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// SnippetRepository stores knowledge snippets and serves similarity search
// over their embeddings.
type SnippetRepository struct {
	db    dbtx
	embed service.EmbeddingClient
}

func NewSnippetRepository(pool *pgxpool.Pool, embed service.EmbeddingClient) *SnippetRepository {
	return &SnippetRepository{db: pool, embed: embed}
}

func (r *SnippetRepository) Upsert(ctx context.Context, s *domain.Snippet) error {
	if err := domain.ValidateSnippet(s); err != nil {
		return err
	}

	var embedding *pgvector.Vector
	if len(s.Embedding) > 0 {
		v := pgvector.NewVector(s.Embedding)
		embedding = &v
	}

	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = updatedAt
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_snippets (id, content, source_label, source_url, embedding, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET content = EXCLUDED.content,
		     source_label = EXCLUDED.source_label,
		     source_url = EXCLUDED.source_url,
		     embedding = EXCLUDED.embedding,
		     updated_at = EXCLUDED.updated_at`,
		s.ID, s.Content, s.SourceLabel, nullableString(s.SourceURL), embedding, createdAt, updatedAt,
	)
	return err
}

func (r *SnippetRepository) GetByID(ctx context.Context, id string) (*domain.Snippet, error) {
	var s domain.Snippet
	var sourceURL *string
	err := r.db.QueryRow(ctx,
		`SELECT id, content, source_label, source_url, created_at, updated_at
		 FROM knowledge_snippets WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Content, &s.SourceLabel, &sourceURL, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSnippetNotFound
		}
		return nil, err
	}
	s.SourceURL = derefString(sourceURL)
	return &s, nil
}

func (r *SnippetRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM knowledge_snippets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSnippetNotFound
	}
	return nil
}

func (r *SnippetRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_snippets`).Scan(&n)
	return n, err
}

// Search embeds query and returns the closest snippets by cosine distance.
// RelevanceScore is cosine similarity.
func (r *SnippetRepository) Search(ctx context.Context, query string, limit int) ([]domain.KnowledgeSnippet, error) {
	if limit <= 0 {
		limit = 5
	}
	if r.embed == nil {
		return nil, errors.New("snippet search requires an embedding client")
	}

	embedding, err := r.embed.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return r.SearchByEmbedding(ctx, embedding, limit)
}

func (r *SnippetRepository) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.KnowledgeSnippet, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, content, source_label, source_url, 1 - (embedding <=> $1) AS score
		 FROM knowledge_snippets
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1, id
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.KnowledgeSnippet, 0, limit)
	for rows.Next() {
		var s domain.KnowledgeSnippet
		var sourceURL *string
		var score float64
		if err := rows.Scan(&s.ID, &s.Content, &s.SourceLabel, &sourceURL, &score); err != nil {
			return nil, err
		}
		s.SourceURL = derefString(sourceURL)
		s.RelevanceScore = float32(score)
		s.OrdinalIndex = len(results)
		results = append(results, s)
	}

	return results, rows.Err()
}

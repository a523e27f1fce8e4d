// Package index provides an in-process knowledge index for runs without a
// database.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/philippgille/chromem-go"
)

const collectionName = "knowledge_snippets"

const (
	metaSourceLabel = "source_label"
	metaSourceURL   = "source_url"
)

// EmbedFunc turns text into an embedding vector
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// MemoryIndex is a chromem-go backed knowledge index
type MemoryIndex struct {
	collection *chromem.Collection
}

// NewMemoryIndex creates an empty index. embed is used for queries and for
// snippets upserted without a precomputed embedding.
func NewMemoryIndex(embed EmbedFunc) (*MemoryIndex, error) {
	if embed == nil {
		return nil, errors.New("embedding function is required")
	}
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(collectionName, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &MemoryIndex{collection: collection}, nil
}

// Upsert adds or replaces a snippet
func (m *MemoryIndex) Upsert(ctx context.Context, s *domain.Snippet) error {
	if err := domain.ValidateSnippet(s); err != nil {
		return err
	}
	err := m.collection.AddDocument(ctx, chromem.Document{
		ID:      s.ID,
		Content: s.Content,
		Metadata: map[string]string{
			metaSourceLabel: s.SourceLabel,
			metaSourceURL:   s.SourceURL,
		},
		Embedding: s.Embedding,
	})
	if err != nil {
		return fmt.Errorf("failed to add snippet %s: %w", s.ID, err)
	}
	return nil
}

// Delete removes a snippet by id
func (m *MemoryIndex) Delete(ctx context.Context, id string) error {
	return m.collection.Delete(ctx, nil, nil, id)
}

// Count returns the number of indexed snippets
func (m *MemoryIndex) Count() int {
	return m.collection.Count()
}

// Search returns up to limit snippets by cosine similarity
func (m *MemoryIndex) Search(ctx context.Context, query string, limit int) ([]domain.KnowledgeSnippet, error) {
	n := m.collection.Count()
	if n == 0 || query == "" {
		return []domain.KnowledgeSnippet{}, nil
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	results, err := m.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	snippets := make([]domain.KnowledgeSnippet, 0, len(results))
	for i, r := range results {
		snippets = append(snippets, domain.KnowledgeSnippet{
			ID:             r.ID,
			Content:        r.Content,
			SourceLabel:    r.Metadata[metaSourceLabel],
			SourceURL:      r.Metadata[metaSourceURL],
			RelevanceScore: r.Similarity,
			OrdinalIndex:   i,
		})
	}
	return snippets, nil
}

package service

import (
	"context"
	"sort"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/logging"
	"github.com/cloo-solutions/fhirchat/internal/telemetry"
)

const (
	defaultRetrievalLimit   = 5
	defaultRetrievalTimeout = 10 * time.Second
)

// KnowledgeIndex is the external content index searched for snippets.
// Implementations return at most limit snippets; ordering and ordinals are
// normalised by the Retriever.
type KnowledgeIndex interface {
	Search(ctx context.Context, query string, limit int) ([]domain.KnowledgeSnippet, error)
}

// Retriever returns ranked knowledge snippets for a query. It fails closed:
// an unavailable or slow index yields no snippets rather than an error.
type Retriever struct {
	index   KnowledgeIndex
	timeout time.Duration
	log     *logging.Logger
}

// NewRetriever creates a Retriever. A nil index always yields no snippets.
func NewRetriever(index KnowledgeIndex, timeout time.Duration, log *logging.Logger) *Retriever {
	if timeout <= 0 {
		timeout = defaultRetrievalTimeout
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Retriever{index: index, timeout: timeout, log: log}
}

// Retrieve returns at most limit snippets ordered by descending relevance,
// with OrdinalIndex set to each snippet's position.
func (r *Retriever) Retrieve(ctx context.Context, query string, limit int) []domain.KnowledgeSnippet {
	if limit <= 0 {
		limit = defaultRetrievalLimit
	}
	if r.index == nil {
		return []domain.KnowledgeSnippet{}
	}

	ctx, span := telemetry.StartSpan(ctx, "Retriever.Retrieve", telemetry.SpanAttributes{Operation: "retrieve"})
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	snippets, err := r.index.Search(ctx, query, limit)
	if err != nil {
		r.log.Warn().Err(err).Msg("knowledge index unavailable, continuing without snippets")
		span.SetData("retrieval_unavailable", true)
		telemetry.CaptureMessage(ctx, "knowledge index unavailable: "+err.Error())
		return []domain.KnowledgeSnippet{}
	}

	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].RelevanceScore > snippets[j].RelevanceScore
	})
	if len(snippets) > limit {
		snippets = snippets[:limit]
	}
	for i := range snippets {
		snippets[i].OrdinalIndex = i
	}

	span.SetData("snippet_count", len(snippets))
	return snippets
}

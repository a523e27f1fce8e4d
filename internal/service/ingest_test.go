package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const observationMarkdown = `---
id: fhir-observation
source_label: FHIR Observation
source_url: https://hl7.org/fhir/observation.html
---
# Observation

Observations are a central element in healthcare.
`

func TestParseMarkdownSnippet_FrontMatter(t *testing.T) {
	in, err := ParseMarkdownSnippet("observation.md", []byte(observationMarkdown))

	require.NoError(t, err)
	assert.Equal(t, "fhir-observation", in.ID)
	assert.Equal(t, "FHIR Observation", in.SourceLabel)
	assert.Equal(t, "https://hl7.org/fhir/observation.html", in.SourceURL)
	assert.True(t, strings.HasPrefix(in.Content, "# Observation"))
	assert.NotContains(t, in.Content, "source_label")
}

func TestParseMarkdownSnippet_Defaults(t *testing.T) {
	in, err := ParseMarkdownSnippet("bundles.md", []byte("## Bundle basics\n\nA Bundle is a container."))

	require.NoError(t, err)
	assert.Equal(t, "bundles", in.ID)
	assert.Equal(t, "Bundle basics", in.SourceLabel)
	assert.Empty(t, in.SourceURL)
}

func TestParseMarkdownSnippet_Unterminated(t *testing.T) {
	_, err := ParseMarkdownSnippet("bad.md", []byte("---\nid: x\nno end"))
	assert.Error(t, err)
}

func TestLoadSnippetDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte(observationMarkdown), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`[
		{"id": "cloo-training", "content": "Cloo runs FHIR training.", "source_label": "Training", "source_url": "https://cloo.solutions/training"}
	]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	inputs, err := LoadSnippetDir(dir)

	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "fhir-observation", inputs[0].ID)
	assert.Equal(t, "cloo-training", inputs[1].ID)
}

func TestIngestService_Ingest(t *testing.T) {
	client := new(MockEmbeddingClient)
	store := new(MockSnippetStore)
	svc := NewIngestService(client, store, nil)
	ctx := context.Background()

	embedding := []float32{0.1, 0.2, 0.3}
	client.On("GenerateEmbedding", ctx, "Training\n\nCloo runs FHIR training.").Return(embedding, nil)
	store.On("Upsert", ctx, mock.MatchedBy(func(s *domain.Snippet) bool {
		return s.ID == "cloo-training" && s.SourceLabel == "Training" && len(s.Embedding) == 3
	})).Return(nil)

	result, err := svc.Ingest(ctx, []SnippetInput{{
		ID: "cloo-training", Content: "Cloo runs FHIR training.", SourceLabel: "Training", SourceURL: "https://cloo.solutions/training",
	}})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 1, result.Snippets)
	client.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestIngestService_Ingest_SplitsLongDocuments(t *testing.T) {
	client := new(MockEmbeddingClient)
	store := new(MockSnippetStore)
	svc := NewIngestService(client, store, nil)
	svc.chunkCfg = ChunkConfig{MaxChars: 40, MinChars: 10}

	var ids []string
	client.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	store.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { ids = append(ids, args.Get(1).(*domain.Snippet).ID) }).
		Return(nil)

	content := "First paragraph about FHIR resources.\n\nSecond paragraph about Bundles."
	result, err := svc.Ingest(context.Background(), []SnippetInput{{ID: "doc", Content: content, SourceLabel: "Doc"}})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Snippets)
	assert.Equal(t, []string{"doc#1", "doc#2"}, ids)
}

func TestIngestService_Ingest_EmbeddingError(t *testing.T) {
	client := new(MockEmbeddingClient)
	store := new(MockSnippetStore)
	svc := NewIngestService(client, store, nil)

	client.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, errors.New("rate limited"))

	_, err := svc.Ingest(context.Background(), []SnippetInput{{ID: "x", Content: "text", SourceLabel: "X"}})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate embedding")
	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestIngestService_Ingest_InvalidInput(t *testing.T) {
	svc := NewIngestService(new(MockEmbeddingClient), new(MockSnippetStore), nil)

	_, err := svc.Ingest(context.Background(), []SnippetInput{{ID: "x", Content: "  ", SourceLabel: "X"}})
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)

	_, err = svc.Ingest(context.Background(), []SnippetInput{{ID: "y", Content: "text", SourceLabel: "Y", SourceURL: "not a url"}})
	require.ErrorAs(t, err, &domainErr)
}

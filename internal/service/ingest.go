package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/logging"
	"gopkg.in/yaml.v3"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// SnippetStore persists embedded snippets into a knowledge index.
type SnippetStore interface {
	Upsert(ctx context.Context, s *domain.Snippet) error
}

// SnippetInput is one knowledge document before chunking and embedding.
type SnippetInput struct {
	ID          string `json:"id" yaml:"id"`
	Content     string `json:"content" yaml:"-"`
	SourceLabel string `json:"source_label" yaml:"source_label"`
	SourceURL   string `json:"source_url" yaml:"source_url"`
}

// IngestResult summarises an ingestion run.
type IngestResult struct {
	Documents int `json:"documents"`
	Snippets  int `json:"snippets"`
}

// IngestService chunks, embeds and stores knowledge documents.
type IngestService struct {
	client   EmbeddingClient
	store    SnippetStore
	chunkCfg ChunkConfig
	log      *logging.Logger
	now      func() time.Time
}

// NewIngestService creates a new IngestService instance
func NewIngestService(client EmbeddingClient, store SnippetStore, log *logging.Logger) *IngestService {
	if log == nil {
		log = logging.Nop()
	}
	return &IngestService{
		client:   client,
		store:    store,
		chunkCfg: DefaultChunkConfig(),
		log:      log,
		now:      time.Now,
	}
}

// Ingest stores every input. Documents longer than one chunk become several
// snippets with ids "<id>#<n>". It stops at the first failure.
func (s *IngestService) Ingest(ctx context.Context, inputs []SnippetInput) (*IngestResult, error) {
	result := &IngestResult{}

	for _, in := range inputs {
		chunks := splitContent(in.Content, s.chunkCfg)
		if len(chunks) == 0 {
			return result, domain.NewDomainError(domain.ErrCodeValidation, fmt.Sprintf("snippet %q has no content", in.ID))
		}

		for i, chunk := range chunks {
			id := in.ID
			if len(chunks) > 1 {
				id = fmt.Sprintf("%s#%d", in.ID, i+1)
			}

			snippet := domain.NewSnippet(id, chunk, in.SourceLabel, in.SourceURL, s.now().UTC())
			if err := domain.ValidateSnippet(snippet); err != nil {
				return result, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid snippet", err)
			}

			embedding, err := s.client.GenerateEmbedding(ctx, in.SourceLabel+"\n\n"+chunk)
			if err != nil {
				return result, fmt.Errorf("failed to generate embedding for %s: %w", id, err)
			}
			snippet.Embedding = embedding

			if err := s.store.Upsert(ctx, snippet); err != nil {
				return result, fmt.Errorf("failed to store snippet %s: %w", id, err)
			}
			result.Snippets++
		}

		result.Documents++
		s.log.Debug().Str("snippet_id", in.ID).Int("chunks", len(chunks)).Msg("ingested knowledge document")
	}

	return result, nil
}

// IngestDir loads every .md and .json file under dir and ingests it.
func (s *IngestService) IngestDir(ctx context.Context, dir string) (*IngestResult, error) {
	inputs, err := LoadSnippetDir(dir)
	if err != nil {
		return nil, err
	}
	return s.Ingest(ctx, inputs)
}

// LoadSnippetDir walks dir in lexical order. Markdown files may carry YAML
// front matter with id, source_label and source_url; JSON files hold an
// array of SnippetInput.
func LoadSnippetDir(dir string) ([]SnippetInput, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".markdown", ".json":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk knowledge dir: %w", err)
	}
	sort.Strings(paths)

	var inputs []SnippetInput
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		if strings.EqualFold(filepath.Ext(path), ".json") {
			var batch []SnippetInput
			if err := json.Unmarshal(data, &batch); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			inputs = append(inputs, batch...)
			continue
		}

		in, err := ParseMarkdownSnippet(filepath.Base(path), data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		inputs = append(inputs, in)
	}

	return inputs, nil
}

var frontMatterDelim = []byte("---")

// ParseMarkdownSnippet splits optional YAML front matter from the body.
// Missing ids default to the file name without extension and missing labels
// to the first heading.
func ParseMarkdownSnippet(name string, data []byte) (SnippetInput, error) {
	var in SnippetInput
	body := bytes.TrimSpace(data)

	if bytes.HasPrefix(body, frontMatterDelim) {
		rest := body[len(frontMatterDelim):]
		end := bytes.Index(rest, append([]byte("\n"), frontMatterDelim...))
		if end < 0 {
			return in, fmt.Errorf("unterminated front matter")
		}
		if err := yaml.Unmarshal(rest[:end], &in); err != nil {
			return in, fmt.Errorf("invalid front matter: %w", err)
		}
		body = bytes.TrimSpace(rest[end+1+len(frontMatterDelim):])
	}

	in.Content = string(body)
	if in.ID == "" {
		in.ID = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if in.SourceLabel == "" {
		in.SourceLabel = firstHeading(in.Content)
	}
	if in.SourceLabel == "" {
		in.SourceLabel = in.ID
	}
	return in, nil
}

func firstHeading(md string) string {
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}

package domain

import (
	"fmt"
	"net/url"
	"time"
)

// Snippet is an indexed knowledge reference as stored by the knowledge index
type Snippet struct {
	ID          string
	Content     string
	SourceLabel string
	SourceURL   string
	Embedding   []float32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewSnippet creates a new Snippet instance
func NewSnippet(id, content, sourceLabel, sourceURL string, createdAt time.Time) *Snippet {
	return &Snippet{
		ID:          id,
		Content:     content,
		SourceLabel: sourceLabel,
		SourceURL:   sourceURL,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

// ValidateSnippet validates a Snippet instance
func ValidateSnippet(s *Snippet) error {
	if s == nil {
		return fmt.Errorf("snippet cannot be nil")
	}

	if s.ID == "" {
		return fmt.Errorf("snippet ID is required")
	}

	if s.Content == "" {
		return fmt.Errorf("snippet Content is required")
	}

	if s.SourceLabel == "" {
		return fmt.Errorf("snippet SourceLabel is required")
	}

	if s.SourceURL != "" {
		u, err := url.Parse(s.SourceURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("snippet SourceURL is not an absolute URL: %s", s.SourceURL)
		}
	}

	return nil
}

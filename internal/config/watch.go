package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// WatchScopeTerms reloads the scope term file whenever it changes and hands
// the new terms to apply. A file that fails to load is logged and skipped,
// so the previous terms stay in effect. It blocks until ctx is done.
func WatchScopeTerms(ctx context.Context, path string, apply func(domain.ScopeTerms) error, log *logging.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	// Editors replace files via rename, so watch the directory.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			terms, err := LoadScopeTerms(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("scope terms reload failed, keeping previous terms")
				continue
			}
			if err := apply(terms); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("scope terms rejected, keeping previous terms")
				continue
			}
			log.Info().
				Str("path", path).
				Int("domain_terms", len(terms.DomainTerms)).
				Int("business_terms", len(terms.BusinessTerms)).
				Int("off_topic_patterns", len(terms.OffTopicPatterns)).
				Msg("scope terms reloaded")
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("scope terms watcher error")
		}
	}
}

package service

import (
	"regexp"
	"strconv"

	"github.com/cloo-solutions/fhirchat/internal/domain"
)

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// ResolveCitations maps [k] markers in the answer back to snippets[k-1].
// Out-of-range markers are ignored, results are deduplicated by SourceURL
// keeping the first occurrence, and order follows first appearance in text.
func ResolveCitations(answer *domain.GeneratedAnswer, snippets []domain.KnowledgeSnippet) []domain.KnowledgeSnippet {
	cited := []domain.KnowledgeSnippet{}
	if answer == nil {
		return cited
	}

	seenURL := make(map[string]struct{})
	seenIndex := make(map[int]struct{})

	for _, m := range citationMarker.FindAllStringSubmatch(answer.Text, -1) {
		k, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		idx := k - 1
		if idx < 0 || idx >= len(snippets) {
			continue
		}
		if _, ok := seenIndex[idx]; ok {
			continue
		}
		seenIndex[idx] = struct{}{}

		s := snippets[idx]
		if _, ok := seenURL[s.SourceURL]; ok {
			continue
		}
		seenURL[s.SourceURL] = struct{}{}
		cited = append(cited, s)
	}

	return cited
}

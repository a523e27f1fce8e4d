package service

import (
	"strings"
	"unicode"
)

// ChunkConfig controls how long knowledge documents are split into snippets.
type ChunkConfig struct {
	MaxChars  int
	MinChars  int
	MaxChunks int
}

// DefaultChunkConfig keeps snippets short enough that five of them fit the
// system prompt comfortably.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:  1200,
		MinChars:  300,
		MaxChunks: 40,
	}
}

// splitContent packs paragraphs into chunks of at most MaxChars runes.
// Paragraphs longer than MaxChars are cut at the last whitespace after
// MinChars.
func splitContent(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	if len([]rune(clean)) <= cfg.MaxChars {
		return []string{clean}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
		currentLen = 0
	}

	for _, para := range strings.Split(clean, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := len([]rune(para))

		if n > cfg.MaxChars {
			flush()
			chunks = append(chunks, cutRunes(para, cfg)...)
			continue
		}
		if currentLen > 0 && currentLen+2+n > cfg.MaxChars {
			flush()
		}
		if currentLen > 0 {
			current.WriteString("\n\n")
			currentLen += 2
		}
		current.WriteString(para)
		currentLen += n
	}
	flush()

	if cfg.MaxChunks > 0 && len(chunks) > cfg.MaxChunks {
		chunks = chunks[:cfg.MaxChunks]
	}
	return chunks
}

func cutRunes(text string, cfg ChunkConfig) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for start < len(runes) {
		end := start + cfg.MaxChars
		if end >= len(runes) {
			out = append(out, strings.TrimSpace(string(runes[start:])))
			break
		}
		minCut := start + cfg.MinChars
		if minCut > end {
			minCut = start
		}
		cut := end
		for i := end; i > minCut; i-- {
			if unicode.IsSpace(runes[i-1]) {
				cut = i
				break
			}
		}
		if s := strings.TrimSpace(string(runes[start:cut])); s != "" {
			out = append(out, s)
		}
		start = cut
	}
	return out
}

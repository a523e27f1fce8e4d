package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a conversation message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation history sent by the caller
type Message struct {
	Role    Role
	Content string
}

// ChatTurn is one inbound user message with its correlation data.
// It is never persisted; only its ChatLogEntry projection is.
type ChatTurn struct {
	Query     string
	SessionID string
	MessageID string
	History   []Message
}

// TrimHistory keeps the last `pairs` user/assistant exchanges of history.
// Older messages are dropped, never summarised.
func TrimHistory(history []Message, pairs int) []Message {
	if pairs <= 0 {
		return nil
	}
	max := pairs * 2
	if len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}

// ScopeDecision is the output of query classification.
// IsExcludedTopic always forces InScope to false.
type ScopeDecision struct {
	InScope              bool
	MatchedDomainTerms   bool
	MatchedBusinessTerms bool
	IsExcludedTopic      bool
	// Confidence is advisory telemetry only; nothing branches on it.
	Confidence float64
}

// KnowledgeSnippet is one retrieved reference. Citation marker [k] refers to
// the snippet with OrdinalIndex k-1.
type KnowledgeSnippet struct {
	ID             string
	Content        string
	SourceLabel    string
	SourceURL      string
	RelevanceScore float32
	OrdinalIndex   int
}

// GeneratedAnswer is the language model output for one in-scope turn
type GeneratedAnswer struct {
	Text           string
	TokensConsumed int
}

// ResponseKind is the terminal outcome of an orchestrated turn
type ResponseKind string

const (
	ResponseKindAnswered   ResponseKind = "answered"
	ResponseKindOutOfScope ResponseKind = "out_of_scope"
	ResponseKindError      ResponseKind = "error"
)

// Rating is the user's thumbs up/down on an answer
type Rating string

const (
	RatingUp   Rating = "up"
	RatingDown Rating = "down"
)

// ParseRating validates a raw rating value
func ParseRating(s string) (Rating, error) {
	switch Rating(strings.ToLower(strings.TrimSpace(s))) {
	case RatingUp:
		return RatingUp, nil
	case RatingDown:
		return RatingDown, nil
	}
	return "", ErrInvalidRating
}

// Feedback is attached to a ChatLogEntry at most once
type Feedback struct {
	Rating  Rating
	Comment string
	At      time.Time
}

// ChatLogEntry is the durable record of one orchestrated turn
type ChatLogEntry struct {
	ID             string
	MessageID      string
	SessionID      string
	Query          string
	ResponseKind   ResponseKind
	InScope        bool
	CitationCount  int
	TokensConsumed int
	ProcessingMs   int64
	SnippetCount   int
	ErrorDetail    string
	CreatedAt      time.Time
	Feedback       *Feedback
	ExportedAt     *time.Time
}

// ValidateChatLogEntry validates a ChatLogEntry before persisting it
func ValidateChatLogEntry(e *ChatLogEntry) error {
	if e == nil {
		return fmt.Errorf("chat log entry cannot be nil")
	}

	if e.MessageID == "" {
		return fmt.Errorf("chat log entry MessageID is required")
	}

	if !isValidResponseKind(e.ResponseKind) {
		return fmt.Errorf("chat log entry ResponseKind is invalid: %s", e.ResponseKind)
	}

	if e.TokensConsumed < 0 {
		return fmt.Errorf("chat log entry TokensConsumed must not be negative")
	}

	if e.CreatedAt.IsZero() {
		return fmt.Errorf("chat log entry CreatedAt is required")
	}

	return nil
}

func isValidResponseKind(k ResponseKind) bool {
	switch k {
	case ResponseKindAnswered, ResponseKindOutOfScope, ResponseKindError:
		return true
	}
	return false
}

// ScopeTerms is the static configuration driving query classification.
// OffTopicPatterns are regular expressions; the term lists are matched as
// case-insensitive substrings.
type ScopeTerms struct {
	DomainTerms      []string `yaml:"domain_terms"`
	BusinessTerms    []string `yaml:"business_terms"`
	OffTopicPatterns []string `yaml:"off_topic_patterns"`
}

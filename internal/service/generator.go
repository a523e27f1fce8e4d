package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/telemetry"
)

const (
	DefaultTemperature       float32 = 0.3
	DefaultMaxTokens                 = 500
	defaultGenerationTimeout         = 30 * time.Second
)

const assistantPersona = `You are the FHIR assistant for Cloo Solutions, a healthcare interoperability consultancy.
You answer questions about HL7 FHIR, healthcare data exchange and standards, and about Cloo's consulting and training services.
Be accurate and concise. Prefer the numbered references below over general knowledge.
When a sentence relies on a reference, cite it inline with its number in square brackets, for example [1].
Only cite numbers that appear in the reference list. If the references do not cover the question, say so and suggest talking to one of our FHIR experts.`

// ChatCompleter issues a single chat completion against a language model
type ChatCompleter interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (text string, totalTokens int, err error)
}

// GeneratorConfig holds the fixed sampling settings of the generator
type GeneratorConfig struct {
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultGeneratorConfig returns the default generator configuration.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Timeout:     defaultGenerationTimeout,
	}
}

// Generator produces cited answers from a query, retrieved snippets and
// recent conversation history. It never retries.
type Generator struct {
	completer ChatCompleter
	cfg       GeneratorConfig
}

// NewGenerator creates a Generator
func NewGenerator(completer ChatCompleter, cfg GeneratorConfig) *Generator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGenerationTimeout
	}
	return &Generator{completer: completer, cfg: cfg}
}

// Generate issues exactly one completion call. Any failure, including a
// timeout or an empty completion, is returned as *domain.GenerationError.
func (g *Generator) Generate(ctx context.Context, query string, snippets []domain.KnowledgeSnippet, history []domain.Message) (*domain.GeneratedAnswer, error) {
	ctx, span := telemetry.StartSpan(ctx, "Generator.Generate", telemetry.SpanAttributes{Operation: "generate"})
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	systemPrompt := BuildSystemPrompt(snippets, history)

	text, tokens, err := g.completer.Complete(ctx, systemPrompt, query, g.cfg.Temperature, g.cfg.MaxTokens)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("completion timed out after %s: %w", g.cfg.Timeout, err)
		}
		span.SetError(err)
		return nil, domain.NewGenerationError(err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		err := errors.New("language model returned an empty completion")
		span.SetError(err)
		return nil, domain.NewGenerationError(err)
	}
	if tokens < 0 {
		tokens = 0
	}

	span.SetData("tokens_consumed", tokens)
	return &domain.GeneratedAnswer{Text: text, TokensConsumed: tokens}, nil
}

// BuildSystemPrompt renders the persona, the numbered snippet blocks and the
// conversation history into a single system instruction. Snippet markers
// use OrdinalIndex+1.
func BuildSystemPrompt(snippets []domain.KnowledgeSnippet, history []domain.Message) string {
	var sb strings.Builder
	sb.WriteString(assistantPersona)

	sb.WriteString("\n\nReferences:\n")
	if len(snippets) == 0 {
		sb.WriteString("(no references were found for this question)\n")
	}
	for _, s := range snippets {
		fmt.Fprintf(&sb, "[%d] %s (source: %s)\n", s.OrdinalIndex+1, strings.TrimSpace(s.Content), s.SourceLabel)
	}

	if len(history) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", roleLabel(m.Role), m.Content)
		}
	}

	return sb.String()
}

func roleLabel(r domain.Role) string {
	if r == domain.RoleAssistant {
		return "Assistant"
	}
	return "User"
}

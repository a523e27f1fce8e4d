package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/logging"
	"github.com/cloo-solutions/fhirchat/internal/telemetry"
)

const (
	// SuggestedActionContactExpert is offered with every out-of-scope refusal.
	SuggestedActionContactExpert = "contact_expert"

	// GenericApology is the only failure text a chat caller ever sees.
	GenericApology = "I'm sorry, something went wrong while preparing an answer. Please try again in a moment, or get in touch with our team directly."

	InvalidInputResponse = "Please type a question about FHIR or healthcare interoperability and I'll do my best to help."

	outOfScopeTemplate = "Thanks for your question: \"%s\". I'm focused on HL7 FHIR, healthcare interoperability and Cloo Solutions' consulting and training services, so I can't help with that topic. If it relates to a project of yours, one of our FHIR experts would be happy to talk it through."

	defaultHistoryTurns = 4
)

// OutOfScopeResponse renders the refusal text for an out-of-scope query.
func OutOfScopeResponse(query string) string {
	return fmt.Sprintf(outOfScopeTemplate, query)
}

// QueryClassifier decides whether a query is within the assistant's domain.
type QueryClassifier interface {
	Classify(query string) domain.ScopeDecision
}

// SnippetRetriever returns ranked snippets and never fails.
type SnippetRetriever interface {
	Retrieve(ctx context.Context, query string, limit int) []domain.KnowledgeSnippet
}

// AnswerGenerator produces an answer with a single language-model call.
type AnswerGenerator interface {
	Generate(ctx context.Context, query string, snippets []domain.KnowledgeSnippet, history []domain.Message) (*domain.GeneratedAnswer, error)
}

// ChatRequest is one inbound chat message.
type ChatRequest struct {
	Message             string
	SessionID           string
	ConversationHistory []domain.Message
}

// Citation is a resolved reference as returned to the caller.
type Citation struct {
	Source string `json:"source"`
	URL    string `json:"url"`
}

// ChatResponse is always well-formed, whatever the outcome of the turn.
// Successful turns always carry citations and processingTime; failed turns
// serialise as {success, response, error}.
type ChatResponse struct {
	Success         bool       `json:"success"`
	Response        string     `json:"response"`
	Citations       []Citation `json:"citations"`
	IsOutOfScope    bool       `json:"isOutOfScope,omitempty"`
	SuggestedAction string     `json:"suggestedAction,omitempty"`
	ProcessingTime  int64      `json:"processingTime"`
	SessionID       string     `json:"sessionId,omitempty"`
	MessageID       string     `json:"messageId,omitempty"`
	Error           string     `json:"error,omitempty"`

	Kind domain.ResponseKind `json:"-"`
	// Err holds the internal cause of a failed turn. Never serialised.
	Err error `json:"-"`
}

type chatFailureBody struct {
	Success   bool   `json:"success"`
	Response  string `json:"response"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

func (r ChatResponse) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(chatFailureBody{
			Success:   false,
			Response:  r.Response,
			Error:     r.Error,
			SessionID: r.SessionID,
			MessageID: r.MessageID,
		})
	}
	type body ChatResponse
	if r.Citations == nil {
		r.Citations = []Citation{}
	}
	return json.Marshal(body(r))
}

// FeedbackRequest is a thumbs up/down on a previous answer.
type FeedbackRequest struct {
	SessionID string
	MessageID string
	Rating    string
	Comment   string
	Timestamp time.Time
}

type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	Err error `json:"-"`
}

// ChatServiceConfig holds orchestration settings
type ChatServiceConfig struct {
	HistoryTurns   int
	RetrievalLimit int
}

// ChatService runs one chat turn through classification, retrieval,
// generation and citation resolution, and logs exactly one entry per turn.
type ChatService struct {
	classifier QueryClassifier
	retriever  SnippetRetriever
	generator  AnswerGenerator
	logger     *InteractionLogger
	uuidGen    UUIDGenerator
	cfg        ChatServiceConfig
	log        *logging.Logger
	now        func() time.Time
}

// NewChatService creates a new ChatService instance
func NewChatService(
	classifier QueryClassifier,
	retriever SnippetRetriever,
	generator AnswerGenerator,
	logger *InteractionLogger,
	cfg ChatServiceConfig,
	log *logging.Logger,
) *ChatService {
	return NewChatServiceWithUUIDGen(classifier, retriever, generator, logger, cfg, log, &DefaultUUIDGenerator{})
}

// NewChatServiceWithUUIDGen creates a ChatService with a custom UUID generator (for testing)
func NewChatServiceWithUUIDGen(
	classifier QueryClassifier,
	retriever SnippetRetriever,
	generator AnswerGenerator,
	logger *InteractionLogger,
	cfg ChatServiceConfig,
	log *logging.Logger,
	uuidGen UUIDGenerator,
) *ChatService {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultHistoryTurns
	}
	if cfg.RetrievalLimit <= 0 {
		cfg.RetrievalLimit = defaultRetrievalLimit
	}
	if log == nil {
		log = logging.Nop()
	}
	return &ChatService{
		classifier: classifier,
		retriever:  retriever,
		generator:  generator,
		logger:     logger,
		uuidGen:    uuidGen,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// HandleChatMessage orchestrates a single chat turn.
func (s *ChatService) HandleChatMessage(ctx context.Context, req ChatRequest) ChatResponse {
	start := s.now()
	turn := domain.ChatTurn{
		Query:     strings.TrimSpace(req.Message),
		SessionID: strings.TrimSpace(req.SessionID),
		MessageID: s.uuidGen.NewString(),
		History:   domain.TrimHistory(req.ConversationHistory, s.cfg.HistoryTurns),
	}

	ctx, span := telemetry.StartSpan(ctx, "ChatService.HandleChatMessage", telemetry.SpanAttributes{
		SessionID: turn.SessionID,
		MessageID: turn.MessageID,
		Operation: "chat",
	})
	defer span.End()

	entry := &domain.ChatLogEntry{
		MessageID: turn.MessageID,
		SessionID: turn.SessionID,
		Query:     req.Message,
	}

	resp := s.run(ctx, turn, entry)
	resp.SessionID = turn.SessionID
	resp.MessageID = turn.MessageID

	elapsed := s.now().Sub(start).Milliseconds()
	entry.ProcessingMs = elapsed
	entry.ResponseKind = resp.Kind
	if resp.Success {
		resp.ProcessingTime = elapsed
	}
	if resp.Err != nil {
		entry.ErrorDetail = resp.Err.Error()
		var domainErr *domain.DomainError
		if !errors.As(resp.Err, &domainErr) {
			span.SetError(resp.Err)
		}
	}

	if ctx.Err() != nil {
		s.log.Warn().Str("session_id", turn.SessionID).Msg("chat turn cancelled by caller, skipping log write")
		return resp
	}
	s.logger.Record(ctx, entry)

	return resp
}

func (s *ChatService) run(ctx context.Context, turn domain.ChatTurn, entry *domain.ChatLogEntry) (resp ChatResponse) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("chat pipeline panic: %v", r)
			s.log.Error().Err(err).Str("session_id", turn.SessionID).Msg("recovered from panic in chat pipeline")
			resp = failure(err)
		}
	}()

	if turn.Query == "" {
		return ChatResponse{
			Success:  false,
			Response: InvalidInputResponse,
			Error:    domain.ErrInvalidChatInput.Message,
			Kind:     domain.ResponseKindError,
			Err:      domain.ErrInvalidChatInput,
		}
	}
	if turn.SessionID == "" {
		return ChatResponse{
			Success:  false,
			Response: InvalidInputResponse,
			Error:    domain.ErrMissingSessionID.Message,
			Kind:     domain.ResponseKindError,
			Err:      domain.ErrMissingSessionID,
		}
	}

	decision := s.classifier.Classify(turn.Query)
	entry.InScope = decision.InScope
	s.log.Debug().
		Str("session_id", turn.SessionID).
		Bool("in_scope", decision.InScope).
		Float64("confidence", decision.Confidence).
		Msg("query classified")
	telemetry.AddBreadcrumb(ctx, "scope", fmt.Sprintf("in_scope=%t domain=%t business=%t excluded=%t",
		decision.InScope, decision.MatchedDomainTerms, decision.MatchedBusinessTerms, decision.IsExcludedTopic))

	if !decision.InScope {
		return ChatResponse{
			Success:         true,
			Response:        OutOfScopeResponse(entry.Query),
			Citations:       []Citation{},
			IsOutOfScope:    true,
			SuggestedAction: SuggestedActionContactExpert,
			Kind:            domain.ResponseKindOutOfScope,
		}
	}

	snippets := s.retriever.Retrieve(ctx, turn.Query, s.cfg.RetrievalLimit)
	entry.SnippetCount = len(snippets)

	answer, err := s.generator.Generate(ctx, turn.Query, snippets, turn.History)
	if err != nil {
		var genErr *domain.GenerationError
		if !errors.As(err, &genErr) {
			err = domain.NewGenerationError(err)
		}
		s.log.Error().Err(err).Str("session_id", turn.SessionID).Msg("answer generation failed")
		return failure(err)
	}
	entry.TokensConsumed = answer.TokensConsumed

	cited := ResolveCitations(answer, snippets)
	entry.CitationCount = len(cited)

	citations := make([]Citation, 0, len(cited))
	for _, c := range cited {
		citations = append(citations, Citation{Source: c.SourceLabel, URL: c.SourceURL})
	}

	return ChatResponse{
		Success:   true,
		Response:  answer.Text,
		Citations: citations,
		Kind:      domain.ResponseKindAnswered,
	}
}

func failure(err error) ChatResponse {
	return ChatResponse{
		Success:  false,
		Response: GenericApology,
		Error:    "failed to generate a response",
		Kind:     domain.ResponseKindError,
		Err:      err,
	}
}

// RecordUserFeedback attaches a rating to a previous turn of the session.
func (s *ChatService) RecordUserFeedback(ctx context.Context, req FeedbackRequest) FeedbackResponse {
	ctx, span := telemetry.StartSpan(ctx, "ChatService.RecordUserFeedback", telemetry.SpanAttributes{
		SessionID: req.SessionID,
		MessageID: req.MessageID,
		Operation: "feedback",
	})
	defer span.End()

	rating, err := domain.ParseRating(req.Rating)
	if err != nil {
		return feedbackFailure(err)
	}

	if err := s.logger.AttachFeedback(ctx, req.SessionID, req.MessageID, rating, req.Comment); err != nil {
		var domainErr *domain.DomainError
		if !errors.As(err, &domainErr) {
			s.log.Error().Err(err).Str("session_id", req.SessionID).Msg("failed to attach feedback")
			span.SetError(err)
		}
		return feedbackFailure(err)
	}

	return FeedbackResponse{Success: true, Message: "Thanks for your feedback!"}
}

func feedbackFailure(err error) FeedbackResponse {
	msg := "failed to record feedback"
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		msg = domainErr.Message
	}
	return FeedbackResponse{Success: false, Error: msg, Err: err}
}

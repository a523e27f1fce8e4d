package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/logging"
	"github.com/cloo-solutions/fhirchat/internal/pagination"
	"github.com/cloo-solutions/fhirchat/internal/telemetry"
)

// FeedbackLookback bounds how many recent entries of a session are
// considered when feedback carries no usable message id.
const FeedbackLookback = 10

// ChatLogRepository is the durable, append-only store of chat turns.
type ChatLogRepository interface {
	Create(ctx context.Context, entry *domain.ChatLogEntry) error
	// FindByMessageID returns domain.ErrChatLogNotFound when the message
	// does not belong to the session.
	FindByMessageID(ctx context.Context, sessionID, messageID string) (*domain.ChatLogEntry, error)
	// ListRecentBySession returns entries newest first.
	ListRecentBySession(ctx context.Context, sessionID string, limit int) ([]*domain.ChatLogEntry, error)
	// SetFeedback returns domain.ErrFeedbackAlreadyRecorded if the entry
	// already carries feedback.
	SetFeedback(ctx context.Context, entryID string, fb domain.Feedback) error
	ListWithCursor(ctx context.Context, sessionID string, cursor *pagination.Cursor, limit int) (*ChatLogPageResult, error)
}

type ChatLogPageResult struct {
	Items      []*domain.ChatLogEntry
	NextCursor string
	HasMore    bool
}

// InteractionLogger records orchestrated turns and attaches user feedback.
type InteractionLogger struct {
	repo    ChatLogRepository
	uuidGen UUIDGenerator
	log     *logging.Logger
	now     func() time.Time
}

// NewInteractionLogger creates a new InteractionLogger
func NewInteractionLogger(repo ChatLogRepository, log *logging.Logger) *InteractionLogger {
	if log == nil {
		log = logging.Nop()
	}
	return &InteractionLogger{
		repo:    repo,
		uuidGen: &DefaultUUIDGenerator{},
		log:     log,
		now:     time.Now,
	}
}

// Record persists entry. It never fails: store errors are logged and dropped.
func (l *InteractionLogger) Record(ctx context.Context, entry *domain.ChatLogEntry) {
	if entry.ID == "" {
		entry.ID = l.uuidGen.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}

	if err := domain.ValidateChatLogEntry(entry); err != nil {
		l.log.Error().Err(err).Str("session_id", entry.SessionID).Msg("dropping invalid chat log entry")
		return
	}

	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Error().Err(err).
			Str("session_id", entry.SessionID).
			Str("message_id", entry.MessageID).
			Msg("failed to persist chat log entry")
		telemetry.CaptureError(ctx, err)
	}
}

// AttachFeedback attaches a rating to the entry identified by messageID, or
// to the most recent entry of the session when messageID is unknown.
func (l *InteractionLogger) AttachFeedback(ctx context.Context, sessionID, messageID string, rating domain.Rating, comment string) error {
	if strings.TrimSpace(sessionID) == "" {
		return domain.ErrMissingSessionID
	}
	if rating != domain.RatingUp && rating != domain.RatingDown {
		return domain.ErrInvalidRating
	}

	entry, err := l.findTarget(ctx, sessionID, messageID)
	if err != nil {
		return err
	}

	fb := domain.Feedback{
		Rating:  rating,
		Comment: strings.TrimSpace(comment),
		At:      l.now().UTC(),
	}
	return l.repo.SetFeedback(ctx, entry.ID, fb)
}

func (l *InteractionLogger) findTarget(ctx context.Context, sessionID, messageID string) (*domain.ChatLogEntry, error) {
	if messageID != "" {
		entry, err := l.repo.FindByMessageID(ctx, sessionID, messageID)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, domain.ErrChatLogNotFound) {
			return nil, err
		}
	}

	recent, err := l.repo.ListRecentBySession(ctx, sessionID, FeedbackLookback)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, domain.ErrChatLogNotFound
	}
	return recent[0], nil
}

// List returns a page of log entries, optionally filtered by session.
func (l *InteractionLogger) List(ctx context.Context, sessionID, cursor string, limit int) (*ChatLogPageResult, error) {
	c, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}
	return l.repo.ListWithCursor(ctx, sessionID, c, limit)
}

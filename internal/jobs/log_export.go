package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/logging"
	"github.com/cloo-solutions/fhirchat/internal/telemetry"
	"github.com/getsentry/sentry-go"
)

const (
	defaultExportBatchSize = 500
	defaultExportPrefix    = "chat-logs"
	maxExportBatchesPerRun = 20

	jsonlContentType = "application/x-ndjson"
)

// ChatLogExportSource lists and marks chat log entries for archival
type ChatLogExportSource interface {
	ListUnexported(ctx context.Context, limit int) ([]*domain.ChatLogEntry, error)
	MarkExported(ctx context.Context, ids []string, at time.Time) error
}

// ObjectWriter stores an archive object
type ObjectWriter interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// LogExporter archives chat logs as JSON Lines objects. Entries are marked
// exported only after their object has been written.
type LogExporter struct {
	source    ChatLogExportSource
	writer    ObjectWriter
	batchSize int
	prefix    string
	log       *logging.Logger
	now       func() time.Time
}

// NewLogExporter creates a new LogExporter instance
func NewLogExporter(source ChatLogExportSource, writer ObjectWriter, log *logging.Logger) *LogExporter {
	if log == nil {
		log = logging.Nop()
	}
	return &LogExporter{
		source:    source,
		writer:    writer,
		batchSize: defaultExportBatchSize,
		prefix:    defaultExportPrefix,
		log:       log,
		now:       time.Now,
	}
}

type exportRecord struct {
	ID              string     `json:"id"`
	MessageID       string     `json:"message_id"`
	SessionID       string     `json:"session_id"`
	Query           string     `json:"query"`
	ResponseKind    string     `json:"response_kind"`
	InScope         bool       `json:"in_scope"`
	CitationCount   int        `json:"citation_count"`
	TokensConsumed  int        `json:"tokens_consumed"`
	ProcessingMs    int64      `json:"processing_ms"`
	SnippetCount    int        `json:"snippet_count"`
	ErrorDetail     string     `json:"error_detail,omitempty"`
	FeedbackRating  string     `json:"feedback_rating,omitempty"`
	FeedbackComment string     `json:"feedback_comment,omitempty"`
	FeedbackAt      *time.Time `json:"feedback_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ProcessJobs implements the JobProcessor interface
func (e *LogExporter) ProcessJobs(ctx context.Context) error {
	_, err := e.ExportPending(ctx)
	return err
}

// ExportPending writes every unexported entry, one object per batch, and
// returns the number of entries archived.
func (e *LogExporter) ExportPending(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartTransaction(ctx, "LogExporter.ExportPending", "job.export")
	defer span.End()

	total := 0
	for i := 0; i < maxExportBatchesPerRun; i++ {
		n, err := e.exportBatch(ctx)
		total += n
		if err != nil {
			span.SetError(err)
			return total, err
		}
		if n < e.batchSize {
			break
		}
	}
	span.SetData("entries", total)
	span.SetStatus(sentry.SpanStatusOK)
	if total > 0 {
		e.log.Info().Int("entries", total).Msg("chat logs archived")
	}
	return total, nil
}

func (e *LogExporter) exportBatch(ctx context.Context) (int, error) {
	entries, err := e.source.ListUnexported(ctx, e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list unexported chat logs: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	body, ids, err := encodeJSONL(entries)
	if err != nil {
		return 0, err
	}

	now := e.now().UTC()
	key := ArchiveKey(e.prefix, now, entries[0].ID)
	if err := e.writer.PutObject(ctx, key, body, jsonlContentType); err != nil {
		return 0, fmt.Errorf("failed to upload chat log archive: %w", err)
	}

	if err := e.source.MarkExported(ctx, ids, now); err != nil {
		return 0, fmt.Errorf("failed to mark chat logs exported: %w", err)
	}

	e.log.Debug().Str("key", key).Int("entries", len(entries)).Msg("wrote chat log archive")
	return len(entries), nil
}

// ArchiveKey returns "<prefix>/YYYY/MM/DD/<HHMMSS>-<firstID>.jsonl"
func ArchiveKey(prefix string, at time.Time, firstID string) string {
	return fmt.Sprintf("%s/%s/%s-%s.jsonl", prefix, at.Format("2006/01/02"), at.Format("150405"), firstID)
}

func encodeJSONL(entries []*domain.ChatLogEntry) ([]byte, []string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		rec := exportRecord{
			ID:             entry.ID,
			MessageID:      entry.MessageID,
			SessionID:      entry.SessionID,
			Query:          entry.Query,
			ResponseKind:   string(entry.ResponseKind),
			InScope:        entry.InScope,
			CitationCount:  entry.CitationCount,
			TokensConsumed: entry.TokensConsumed,
			ProcessingMs:   entry.ProcessingMs,
			SnippetCount:   entry.SnippetCount,
			ErrorDetail:    entry.ErrorDetail,
			CreatedAt:      entry.CreatedAt,
		}
		if entry.Feedback != nil {
			rec.FeedbackRating = string(entry.Feedback.Rating)
			rec.FeedbackComment = entry.Feedback.Comment
			at := entry.Feedback.At
			rec.FeedbackAt = &at
		}
		if err := enc.Encode(rec); err != nil {
			return nil, nil, fmt.Errorf("failed to encode chat log %s: %w", entry.ID, err)
		}
		ids = append(ids, entry.ID)
	}

	return buf.Bytes(), ids, nil
}

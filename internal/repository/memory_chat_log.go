package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/domain"
	"github.com/cloo-solutions/fhirchat/internal/pagination"
	"github.com/cloo-solutions/fhirchat/internal/service"
)

// DefaultMemoryChatLogCapacity bounds the in-memory store.
const DefaultMemoryChatLogCapacity = 10000

// MemoryChatLogStore keeps chat logs in process memory. It mirrors
// ChatLogRepository for runs without a database; contents are lost on exit.
// It holds at most capacity entries. When full, the oldest exported entry
// is evicted first, then the oldest entry overall.
type MemoryChatLogStore struct {
	mu       sync.RWMutex
	entries  []*domain.ChatLogEntry
	byID     map[string]*domain.ChatLogEntry
	capacity int
}

func NewMemoryChatLogStore() *MemoryChatLogStore {
	return NewMemoryChatLogStoreWithCapacity(DefaultMemoryChatLogCapacity)
}

// NewMemoryChatLogStoreWithCapacity creates a store holding at most capacity
// entries. A non-positive capacity uses the default.
func NewMemoryChatLogStoreWithCapacity(capacity int) *MemoryChatLogStore {
	if capacity <= 0 {
		capacity = DefaultMemoryChatLogCapacity
	}
	return &MemoryChatLogStore{
		byID:     make(map[string]*domain.ChatLogEntry),
		capacity: capacity,
	}
}

func (s *MemoryChatLogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryChatLogStore) Create(_ context.Context, e *domain.ChatLogEntry) error {
	if err := domain.ValidateChatLogEntry(e); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[e.ID]; ok {
		return domain.NewDomainError(domain.ErrCodeAlreadyExists, "chat log entry already exists")
	}
	for _, existing := range s.entries {
		if existing.MessageID == e.MessageID {
			return domain.NewDomainError(domain.ErrCodeAlreadyExists, "chat log message id already exists")
		}
	}

	for len(s.entries) >= s.capacity {
		s.evictOne()
	}

	stored := copyEntry(e)
	s.entries = append(s.entries, stored)
	s.byID[stored.ID] = stored
	return nil
}

func (s *MemoryChatLogStore) FindByMessageID(_ context.Context, sessionID, messageID string) (*domain.ChatLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.MessageID == messageID && e.SessionID == sessionID {
			return copyEntry(e), nil
		}
	}
	return nil, domain.ErrChatLogNotFound
}

func (s *MemoryChatLogStore) ListRecentBySession(_ context.Context, sessionID string, limit int) ([]*domain.ChatLogEntry, error) {
	if limit <= 0 {
		limit = service.FeedbackLookback
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.ChatLogEntry, 0)
	for _, e := range s.newestFirst() {
		if e.SessionID != sessionID {
			continue
		}
		out = append(out, copyEntry(e))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryChatLogStore) SetFeedback(_ context.Context, entryID string, fb domain.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[entryID]
	if !ok {
		return domain.ErrChatLogNotFound
	}
	if e.Feedback != nil {
		return domain.ErrFeedbackAlreadyRecorded
	}
	e.Feedback = &fb
	return nil
}

func (s *MemoryChatLogStore) ListWithCursor(_ context.Context, sessionID string, cursor *pagination.Cursor, limit int) (*service.ChatLogPageResult, error) {
	limit = pagination.ClampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]*domain.ChatLogEntry, 0, limit+1)
	for _, e := range s.newestFirst() {
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		if cursor != nil && !before(e, cursor) {
			continue
		}
		items = append(items, copyEntry(e))
		if len(items) > limit {
			break
		}
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	var next string
	if hasMore {
		last := items[len(items)-1]
		next = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &service.ChatLogPageResult{Items: items, NextCursor: next, HasMore: hasMore}, nil
}

func (s *MemoryChatLogStore) ListUnexported(_ context.Context, limit int) ([]*domain.ChatLogEntry, error) {
	if limit <= 0 {
		limit = 500
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.newestFirst()
	out := make([]*domain.ChatLogEntry, 0)
	for i := len(sorted) - 1; i >= 0 && len(out) < limit; i-- {
		if sorted[i].ExportedAt == nil {
			out = append(out, copyEntry(sorted[i]))
		}
	}
	return out, nil
}

func (s *MemoryChatLogStore) MarkExported(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if e, ok := s.byID[id]; ok && e.ExportedAt == nil {
			t := at
			e.ExportedAt = &t
		}
	}
	return nil
}

// evictOne drops the oldest exported entry, or the oldest entry when none
// has been exported. Must be called with the write lock held.
func (s *MemoryChatLogStore) evictOne() {
	victim := 0
	for i, e := range s.entries {
		if e.ExportedAt != nil {
			victim = i
			break
		}
	}
	delete(s.byID, s.entries[victim].ID)
	s.entries = append(s.entries[:victim], s.entries[victim+1:]...)
}

// newestFirst must be called with the lock held.
func (s *MemoryChatLogStore) newestFirst() []*domain.ChatLogEntry {
	sorted := make([]*domain.ChatLogEntry, len(s.entries))
	copy(sorted, s.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}

func before(e *domain.ChatLogEntry, c *pagination.Cursor) bool {
	if e.CreatedAt.Equal(c.Timestamp) {
		return e.ID < c.LastID
	}
	return e.CreatedAt.Before(c.Timestamp)
}

func copyEntry(e *domain.ChatLogEntry) *domain.ChatLogEntry {
	c := *e
	if e.Feedback != nil {
		fb := *e.Feedback
		c.Feedback = &fb
	}
	if e.ExportedAt != nil {
		t := *e.ExportedAt
		c.ExportedAt = &t
	}
	return &c
}

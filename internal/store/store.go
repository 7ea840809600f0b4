// Package store owns the bounded, ordered collection of ingested push
// messages. The in-memory slice is the source of truth for the process
// lifetime; every mutation rewrites the persisted blob in full and then
// signals observers. Persistence is best effort: a failed write is logged
// and the operation still succeeds.
package store

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pushlens/pushlens/internal/metrics"
	"github.com/pushlens/pushlens/internal/normalize"
)

// Message kinds.
const (
	TypePush = "push_notification"
	TypeTest = "test_notification"
)

// Message lifecycle statuses.
const (
	StatusReceived  = "received"
	StatusSent      = "sent"
	StatusClicked   = "clicked"
	StatusDismissed = "dismissed"
)

const (
	// DefaultMaxMessages caps the stored collection; insertion order is
	// authoritative for this bound, the oldest entries past it are evicted.
	DefaultMaxMessages = 1000

	keyMessages   = "pushlens:messages"
	keyLastUpdate = "pushlens:lastUpdate"
)

// Message is the canonical stored record for one ingested notification.
type Message struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Icon      string         `json:"icon,omitempty"`
	URL       string         `json:"url"`
	Timestamp string         `json:"timestamp"` // ISO-8601, immutable
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	UpdatedAt string         `json:"updatedAt,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// KV is the durable key-value blob storage the store persists into. Get
// returns (nil, nil) when the key is absent. Implementations provide no
// transactional guarantees; the store compensates by always writing the
// full collection.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Notifier receives best-effort change signals after every mutation.
type Notifier interface {
	StateChanged(ctx context.Context, count int)
}

// Store holds the bounded message history.
type Store struct {
	mu       sync.Mutex
	messages []Message

	max      int
	kv       KV // nil disables persistence
	notifier Notifier
	logger   *zap.Logger
}

// New creates a Store. kv and notifier may be nil; max <= 0 selects
// DefaultMaxMessages.
func New(kv KV, notifier Notifier, max int, logger *zap.Logger) *Store {
	if max <= 0 {
		max = DefaultMaxMessages
	}
	return &Store{
		max:      max,
		kv:       kv,
		notifier: notifier,
		logger:   logger,
	}
}

// Load restores the persisted collection. A missing blob or a read failure
// leaves the store empty; the error is returned for logging only.
func (s *Store) Load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}

	raw, err := s.kv.Get(ctx, keyMessages)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}

	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return err
	}

	s.mu.Lock()
	s.messages = msgs
	count := len(msgs)
	s.mu.Unlock()

	metrics.SetMessagesStored(count)
	s.logger.Info("message history loaded", zap.Int("count", count))
	return nil
}

// Append constructs a Message from a normalized descriptor, inserts it at
// the head, enforces the capacity bound, persists, and signals change. The
// stored record is returned.
func (s *Store) Append(ctx context.Context, d normalize.Descriptor, kind string) Message {
	now := time.Now().UTC()

	status := StatusReceived
	if kind == TypeTest {
		status = StatusSent
	}

	msg := Message{
		ID:        newID(now),
		Title:     d.Title,
		Body:      d.Body,
		Icon:      d.Icon,
		URL:       d.URL(),
		Timestamp: now.Format(time.RFC3339Nano),
		Type:      kind,
		Status:    status,
		Data:      d.Data,
	}

	s.mu.Lock()
	s.messages = append([]Message{msg}, s.messages...)
	if len(s.messages) > s.max {
		evicted := len(s.messages) - s.max
		s.messages = s.messages[:s.max]
		metrics.RecordMessagesEvicted("capacity", evicted)
	}
	s.persistLocked(ctx)
	count := len(s.messages)
	s.mu.Unlock()

	metrics.SetMessagesStored(count)
	s.signal(ctx, count)
	return msg
}

// List returns a snapshot of the collection, head = newest.
func (s *Store) List() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Count returns the current number of stored messages.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Clear empties the collection, persists the empty state and signals change.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	before := len(s.messages)
	s.messages = nil
	s.persistLocked(ctx)
	s.mu.Unlock()

	metrics.SetMessagesStored(0)
	s.logger.Info("message history cleared", zap.Int("removed", before))
	s.signal(ctx, 0)
}

// Delete removes a single message by id. Returns whether a deletion
// occurred; persistence and change signaling happen only on a hit.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	idx := -1
	for i := range s.messages {
		if s.messages[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
	s.persistLocked(ctx)
	count := len(s.messages)
	s.mu.Unlock()

	metrics.SetMessagesStored(count)
	s.signal(ctx, count)
	return true
}

// UpdateStatus finds the first message whose data.tag equals key, or whose
// id equals key, and moves it to the given status, stamping updatedAt. An
// unmatched key is a silent no-op. Returns whether a message was updated.
func (s *Store) UpdateStatus(ctx context.Context, key, status string) bool {
	s.mu.Lock()
	idx := -1
	for i := range s.messages {
		if dataTag(s.messages[i]) == key || s.messages[i].ID == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages[idx].Status = status
	s.messages[idx].UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	s.persistLocked(ctx)
	count := len(s.messages)
	s.mu.Unlock()

	s.logger.Debug("message status updated",
		zap.String("key", key),
		zap.String("status", status),
	)
	s.signal(ctx, count)
	return true
}

// PruneOlderThan removes messages whose stored timestamp is older than
// now minus the given number of days. The persisted blob is rewritten only
// when something was removed. Returns the number of pruned messages.
func (s *Store) PruneOlderThan(ctx context.Context, days int) int {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	s.mu.Lock()
	kept := s.messages[:0]
	for _, m := range s.messages {
		ts, err := time.Parse(time.RFC3339, m.Timestamp)
		if err != nil || ts.After(cutoff) {
			kept = append(kept, m)
		}
	}
	pruned := len(s.messages) - len(kept)
	s.messages = kept
	if pruned > 0 {
		s.persistLocked(ctx)
	}
	count := len(s.messages)
	s.mu.Unlock()

	if pruned > 0 {
		metrics.RecordMessagesEvicted("age", pruned)
		metrics.SetMessagesStored(count)
		s.logger.Info("old messages pruned",
			zap.Int("removed", pruned),
			zap.Int("retention_days", days),
		)
		s.signal(ctx, count)
	}
	return pruned
}

// persistLocked writes the full collection plus the advisory freshness
// marker. Failures are logged and swallowed; in-memory state stays the
// source of truth. Callers hold s.mu.
func (s *Store) persistLocked(ctx context.Context) {
	if s.kv == nil {
		return
	}

	raw, err := json.Marshal(s.messages)
	if err != nil {
		s.logger.Error("failed to marshal messages", zap.Error(err))
		return
	}

	if err := s.kv.Set(ctx, keyMessages, raw); err != nil {
		s.logger.Error("failed to persist messages",
			zap.Error(err),
			zap.Int("count", len(s.messages)),
		)
		return
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.kv.Set(ctx, keyLastUpdate, []byte(now)); err != nil {
		s.logger.Warn("failed to persist freshness marker", zap.Error(err))
	}
}

func (s *Store) signal(ctx context.Context, count int) {
	if s.notifier != nil {
		s.notifier.StateChanged(ctx, count)
	}
}

func dataTag(m Message) string {
	if m.Data == nil {
		return ""
	}
	if tag, ok := m.Data["tag"].(string); ok {
		return tag
	}
	return ""
}

// newID builds a time-prefixed unique id. The prefix keeps ids roughly
// sortable by creation time; the uuid suffix guarantees uniqueness.
func newID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + uuid.NewString()[:8]
}

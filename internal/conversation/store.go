// ABOUTME: Thread-safe in-memory Conversation Store with per-conversation locking
// ABOUTME: Sharded by id; appends are linearized per id and announced to a Notifier

package conversation

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultShards is the number of independent lock domains for membership.
	DefaultShards = 32

	// DefaultRetention is how long an idle conversation is kept.
	DefaultRetention = 20 * 24 * time.Hour
)

// ErrInvalidRole is returned by Append for a role outside user/assistant/system.
var ErrInvalidRole = errors.New("invalid message role")

// ModelSet reports whether a model identifier has a capability entry.
type ModelSet interface {
	Has(model string) bool
}

// Notifier is told about every message the Store appends. Implementations
// must return promptly; Notify is called while the conversation is locked.
type Notifier interface {
	Notify(conversationID string, msg Message)
}

// entry owns one conversation. removed is set under mu when the entry leaves
// the map so that holders of a stale pointer observe the removal.
type entry struct {
	mu      sync.RWMutex
	conv    *Conversation
	removed bool
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Models   ModelSet // required for Create to validate models; nil accepts any model
	Notifier Notifier // optional
	Shards   int      // defaults to DefaultShards
	Logger   *slog.Logger
}

// Store is the sole owner of all Conversation records.
//
// Shard locks guard map membership only. Every read or write of a
// conversation's contents happens under that conversation's entry lock.
// The only place both are held is eviction, which always takes the entry
// lock first.
type Store struct {
	shards   []*shard
	models   ModelSet
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore creates an empty Store.
func NewStore(cfg StoreConfig) *Store {
	n := cfg.Shards
	if n <= 0 {
		n = DefaultShards
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		shards:   make([]*shard, n),
		models:   cfg.Models,
		notifier: cfg.Notifier,
		logger:   logger.With("component", "conversation-store"),
		now:      time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *Store) lookup(id string) (*entry, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	e, ok := sh.entries[id]
	sh.mu.RUnlock()
	return e, ok
}

// Create allocates an empty conversation bound to model and returns its id.
func (s *Store) Create(model string, metadata map[string]any) (string, error) {
	if s.models != nil && !s.models.Has(model) {
		return "", fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}

	now := s.now()
	conv := &Conversation{
		ID:             uuid.New().String(),
		Model:          model,
		Messages:       []Message{},
		CreatedAt:      now,
		LastActivityAt: now,
		Metadata:       cloneMetadata(metadata),
	}

	sh := s.shardFor(conv.ID)
	sh.mu.Lock()
	for {
		if _, taken := sh.entries[conv.ID]; !taken {
			break
		}
		// uuid collision; practically unreachable but ids must stay unique
		conv.ID = uuid.New().String()
		sh.mu.Unlock()
		sh = s.shardFor(conv.ID)
		sh.mu.Lock()
	}
	sh.entries[conv.ID] = &entry{conv: conv}
	sh.mu.Unlock()

	s.logger.Debug("conversation created", "conversation_id", conv.ID, "model", model)
	return conv.ID, nil
}

// Append adds a message to the end of a conversation.
func (s *Store) Append(id string, role Role, content string) (Message, error) {
	return s.AppendWithModel(id, role, content, "")
}

// AppendWithModel is Append with the answering model recorded on the message.
func (s *Store) AppendWithModel(id string, role Role, content, model string) (Message, error) {
	msg, _, err := s.appendMessage(id, role, content, model, false)
	return msg, err
}

// AppendSnapshot appends a message and returns a deep copy of the
// conversation as it stood right after the append. No other append can land
// between the two.
func (s *Store) AppendSnapshot(id string, role Role, content string) (Message, *Conversation, error) {
	return s.appendMessage(id, role, content, "", true)
}

func (s *Store) appendMessage(id string, role Role, content, model string, snapshot bool) (Message, *Conversation, error) {
	if !role.Valid() {
		return Message{}, nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	e, ok := s.lookup(id)
	if !ok {
		return Message{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Message{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	now := s.now()
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
		Model:     model,
	}
	e.conv.Messages = append(e.conv.Messages, msg)
	e.conv.LastActivityAt = now

	// Notifying under the entry lock keeps observer order equal to history order.
	if s.notifier != nil {
		s.notifier.Notify(id, msg)
	}

	s.logger.Debug("message appended",
		"conversation_id", id,
		"role", role,
		"message_count", len(e.conv.Messages))

	var conv *Conversation
	if snapshot {
		conv = e.conv.clone()
	}
	return msg, conv, nil
}

// Get returns a deep copy of a conversation.
func (s *Store) Get(id string) (*Conversation, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.removed {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.conv.clone(), nil
}

// List returns summaries of every live conversation, most recently active first.
func (s *Store) List() []Summary {
	var entries []*entry
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, e := range sh.entries {
			entries = append(entries, e)
		}
		sh.mu.RUnlock()
	}

	summaries := make([]Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		if !e.removed {
			summaries = append(summaries, e.conv.summary())
		}
		e.mu.RUnlock()
	}

	slices.SortFunc(summaries, func(a, b Summary) int {
		if c := b.LastActivityAt.Compare(a.LastActivityAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return summaries
}

// Len returns the number of live conversations.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Delete removes a conversation. It reports whether one existed.
func (s *Store) Delete(id string) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	e, ok := sh.entries[id]
	if ok {
		delete(sh.entries, id)
	}
	sh.mu.Unlock()
	if !ok {
		return false
	}

	// Wait out any in-flight append, then poison stale pointers.
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()

	s.logger.Debug("conversation deleted", "conversation_id", id)
	return true
}

// EvictExpired removes every conversation whose last activity is older than
// now-ttl and returns how many were removed. Each candidate is re-checked
// under its own lock, so a conversation that received an append after the
// scan survives.
func (s *Store) EvictExpired(now time.Time, ttl time.Duration) int {
	cutoff := now.Add(-ttl)
	removed := 0

	for _, sh := range s.shards {
		var candidates []*entry
		sh.mu.RLock()
		for _, e := range sh.entries {
			candidates = append(candidates, e)
		}
		sh.mu.RUnlock()

		for _, e := range candidates {
			if s.evictIfExpired(sh, e, cutoff) {
				removed++
			}
		}
	}

	if removed > 0 {
		s.logger.Info("evicted expired conversations", "count", removed, "cutoff", cutoff)
	}
	return removed
}

func (s *Store) evictIfExpired(sh *shard, e *entry, cutoff time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || !e.conv.LastActivityAt.Before(cutoff) {
		return false
	}

	sh.mu.Lock()
	cur, ok := sh.entries[e.conv.ID]
	owned := ok && cur == e
	if owned {
		delete(sh.entries, e.conv.ID)
	}
	sh.mu.Unlock()

	// A concurrent Delete may have taken it out of the map already.
	e.removed = true
	if owned {
		s.logger.Debug("conversation evicted",
			"conversation_id", e.conv.ID,
			"last_activity_at", e.conv.LastActivityAt)
	}
	return owned
}

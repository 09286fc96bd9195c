// ABOUTME: Tests for the conversation Store
// ABOUTME: Covers lifecycle, concurrent appends, snapshot isolation, listing, and eviction

package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type modelList []string

func (m modelList) Has(model string) bool {
	for _, id := range m {
		if id == model {
			return true
		}
	}
	return false
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Message
	ids    []string
}

func (r *recordingNotifier) Notify(conversationID string, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, conversationID)
	r.events = append(r.events, msg)
}

// fakeClock is a settable time source for eviction tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(StoreConfig{Models: modelList{"gpt-5", "claude"}, Shards: 4})
}

func TestStore_CreateThenGet(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("gpt-5", map[string]any{"source": "test"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	conv, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, conv.ID)
	assert.Equal(t, "gpt-5", conv.Model)
	assert.Empty(t, conv.Messages)
	assert.NotNil(t, conv.Messages)
	assert.Equal(t, "test", conv.Metadata["source"])
	assert.False(t, conv.CreatedAt.IsZero())
	assert.Equal(t, conv.CreatedAt, conv.LastActivityAt)
	assert.Equal(t, 1, s.Len())
}

func TestStore_CreateUnknownModel(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create("gpt-2", nil)
	require.ErrorIs(t, err, ErrUnknownModel)
	assert.Equal(t, 0, s.Len())
}

func TestStore_CreateIDsAreUnique(t *testing.T) {
	s := newTestStore(t)

	seen := make(map[string]bool)
	for range 200 {
		id, err := s.Create("claude", nil)
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 200, s.Len())
}

func TestStore_AppendUpdatesHistory(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create("gpt-5", nil)
	require.NoError(t, err)

	_, err = s.Append(id, RoleUser, "Hello")
	require.NoError(t, err)
	msg, err := s.AppendWithModel(id, RoleAssistant, "Hi there", "gpt-5")
	require.NoError(t, err)
	assert.Equal(t, "gpt-5", msg.Model)

	conv, err := s.Get(id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Hello", conv.Messages[0].Content)
	assert.Empty(t, conv.Messages[0].Model)
	assert.Equal(t, RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "Hi there", conv.Messages[1].Content)
	assert.Equal(t, conv.Messages[1].Timestamp, conv.LastActivityAt)
	assert.False(t, conv.Messages[1].Timestamp.Before(conv.Messages[0].Timestamp))
}

func TestStore_AppendSnapshot(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create("claude", nil)
	require.NoError(t, err)
	_, err = s.Append(id, RoleUser, "first")
	require.NoError(t, err)

	msg, conv, err := s.AppendSnapshot(id, RoleUser, "second")
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Content)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, msg, conv.Messages[1])

	// The snapshot is a copy.
	conv.Messages[0].Content = "mutated"
	stored, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "first", stored.Messages[0].Content)

	_, _, err = s.AppendSnapshot("missing", RoleUser, "x")
	require.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.AppendSnapshot(id, Role("tool"), "x")
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestStore_AppendSnapshotEndsWithOwnMessage(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create("claude", nil)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			content := fmt.Sprintf("m%d", i)
			_, conv, err := s.AppendSnapshot(id, RoleUser, content)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, content, conv.Messages[len(conv.Messages)-1].Content)
		})
	}
	wg.Wait()

	conv, err := s.Get(id)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, n)
}

func TestStore_AppendInvalidRole(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create("gpt-5", nil)
	require.NoError(t, err)

	_, err = s.Append(id, Role("tool"), "nope")
	require.ErrorIs(t, err, ErrInvalidRole)

	conv, err := s.Get(id)
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
}

func TestStore_AppendUnknownConversation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Append("missing", RoleUser, "hello")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetUnknownConversation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ConcurrentAppendsAreLinearized(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create("gpt-5", nil)
	require.NoError(t, err)

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := range writers {
		wg.Go(func() {
			for i := range perWriter {
				_, err := s.Append(id, RoleUser, fmt.Sprintf("%d-%d", w, i))
				assert.NoError(t, err)
			}
		})
	}
	wg.Wait()

	conv, err := s.Get(id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, writers*perWriter)

	// No message lost or duplicated, and each writer's own order is preserved.
	seen := make(map[string]bool)
	next := make([]int, writers)
	for _, m := range conv.Messages {
		require.False(t, seen[m.Content], "duplicate message %s", m.Content)
		seen[m.Content] = true

		var w, i int
		_, err := fmt.Sscanf(m.Content, "%d-%d", &w, &i)
		require.NoError(t, err)
		assert.Equal(t, next[w], i, "writer %d out of order", w)
		next[w] = i + 1
	}
}

func TestStore_ConcurrentCreateAndAppendAcrossConversations(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Go(func() {
			id, err := s.Create("claude", nil)
			assert.NoError(t, err)
			ids[i] = id
			for range 10 {
				_, err := s.Append(id, RoleUser, "x")
				assert.NoError(t, err)
			}
		})
	}
	wg.Wait()

	for _, id := range ids {
		conv, err := s.Get(id)
		require.NoError(t, err)
		assert.Len(t, conv.Messages, 10)
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create("gpt-5", map[string]any{
		"tags":   []any{"a", "b"},
		"nested": map[string]any{"k": "v"},
	})
	require.NoError(t, err)
	_, err = s.Append(id, RoleUser, "original")
	require.NoError(t, err)

	snap, err := s.Get(id)
	require.NoError(t, err)

	snap.Messages[0].Content = "mutated"
	snap.Messages = append(snap.Messages, Message{Role: RoleUser, Content: "extra"})
	snap.Metadata["new"] = true
	snap.Metadata["tags"].([]any)[0] = "z"
	snap.Metadata["nested"].(map[string]any)["k"] = "changed"

	_, err = s.Append(id, RoleAssistant, "reply")
	require.NoError(t, err)

	fresh, err := s.Get(id)
	require.NoError(t, err)
	require.Len(t, fresh.Messages, 2)
	assert.Equal(t, "original", fresh.Messages[0].Content)
	assert.Equal(t, "reply", fresh.Messages[1].Content)
	assert.NotContains(t, fresh.Metadata, "new")
	assert.Equal(t, "a", fresh.Metadata["tags"].([]any)[0])
	assert.Equal(t, "v", fresh.Metadata["nested"].(map[string]any)["k"])

	// The earlier snapshot does not see the later append.
	assert.Len(t, snap.Messages, 2)
	assert.Equal(t, "extra", snap.Messages[1].Content)
}

func TestStore_CreateCopiesCallerMetadata(t *testing.T) {
	s := newTestStore(t)
	meta := map[string]any{"user": "alice"}
	id, err := s.Create("gpt-5", meta)
	require.NoError(t, err)

	meta["user"] = "mallory"

	conv, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", conv.Metadata["user"])
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create("gpt-5", nil)
	require.NoError(t, err)

	assert.True(t, s.Delete(id))
	assert.False(t, s.Delete(id))
	assert.False(t, s.Delete("never-existed"))

	_, err = s.Get(id)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Append(id, RoleUser, "too late")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestStore_ListOrdersByLastActivity(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(t)
	s.now = clock.Now

	first, err := s.Create("gpt-5", nil)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := s.Create("claude", nil)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = s.Append(first, RoleUser, "bump")
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0].ID)
	assert.Equal(t, 1, list[0].MessageCount)
	assert.Equal(t, second, list[1].ID)
	assert.Equal(t, "claude", list[1].Model)
	assert.Equal(t, 0, list[1].MessageCount)
}

func TestStore_ListEmpty(t *testing.T) {
	s := newTestStore(t)
	assert.Empty(t, s.List())
}

func TestStore_EvictExpired(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	s := newTestStore(t)
	s.now = clock.Now

	stale, err := s.Create("gpt-5", nil)
	require.NoError(t, err)
	fresh, err := s.Create("gpt-5", nil)
	require.NoError(t, err)

	clock.Advance(10 * 24 * time.Hour)
	_, err = s.Append(fresh, RoleUser, "still here")
	require.NoError(t, err)

	// 21 days after creation: stale is past 20 days, fresh is 11 days idle.
	clock.Advance(11 * 24 * time.Hour)
	removed := s.EvictExpired(clock.Now(), DefaultRetention)
	assert.Equal(t, 1, removed)

	_, err = s.Get(stale)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(fresh)
	require.NoError(t, err)

	// Running it again removes nothing more.
	assert.Equal(t, 0, s.EvictExpired(clock.Now(), DefaultRetention))
}

func TestStore_EvictExpiredBoundaryIsExclusive(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	s := newTestStore(t)
	s.now = clock.Now

	id, err := s.Create("gpt-5", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, s.EvictExpired(start.Add(DefaultRetention), DefaultRetention))
	_, err = s.Get(id)
	require.NoError(t, err)

	assert.Equal(t, 1, s.EvictExpired(start.Add(DefaultRetention+time.Nanosecond), DefaultRetention))
}

func TestStore_EvictConcurrentWithDelete(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	s := newTestStore(t)
	s.now = clock.Now

	ids := make([]string, 50)
	for i := range ids {
		id, err := s.Create("gpt-5", nil)
		require.NoError(t, err)
		ids[i] = id
	}

	var evicted, deleted int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Go(func() {
		n := s.EvictExpired(start.Add(30*24*time.Hour), DefaultRetention)
		mu.Lock()
		evicted += n
		mu.Unlock()
	})
	wg.Go(func() {
		for _, id := range ids {
			if s.Delete(id) {
				mu.Lock()
				deleted++
				mu.Unlock()
			}
		}
	})
	wg.Wait()

	assert.Equal(t, len(ids), evicted+deleted, "each conversation removed exactly once")
	assert.Equal(t, 0, s.Len())
}

func TestStore_NotifierSeesAppendsInOrder(t *testing.T) {
	n := &recordingNotifier{}
	s := NewStore(StoreConfig{Models: modelList{"gpt-5"}, Notifier: n})

	id, err := s.Create("gpt-5", nil)
	require.NoError(t, err)
	_, err = s.Append(id, RoleSystem, "be brief")
	require.NoError(t, err)
	_, err = s.Append(id, RoleUser, "Hello")
	require.NoError(t, err)
	_, err = s.AppendWithModel(id, RoleAssistant, "Hi there", "gpt-5")
	require.NoError(t, err)

	n.mu.Lock()
	defer n.mu.Unlock()
	require.Len(t, n.events, 3)
	assert.Equal(t, []string{id, id, id}, n.ids)
	assert.Equal(t, RoleSystem, n.events[0].Role)
	assert.Equal(t, "Hello", n.events[1].Content)
	assert.Equal(t, "gpt-5", n.events[2].Model)
}

func TestStore_NotifierNotCalledOnFailedAppend(t *testing.T) {
	n := &recordingNotifier{}
	s := NewStore(StoreConfig{Models: modelList{"gpt-5"}, Notifier: n})

	_, err := s.Append("missing", RoleUser, "hello")
	require.Error(t, err)

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Empty(t, n.events)
}

func TestStore_NilModelSetAcceptsAnyModel(t *testing.T) {
	s := NewStore(StoreConfig{})

	id, err := s.Create("anything", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestStore_WithBroadcaster(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()
	s := NewStore(StoreConfig{Models: modelList{"gpt-5"}, Notifier: b})

	id, err := s.Create("gpt-5", nil)
	require.NoError(t, err)
	ch, _ := b.Subscribe(t.Context(), id)

	_, err = s.Append(id, RoleUser, "Hello")
	require.NoError(t, err)

	evt := receive(t, ch)
	assert.Equal(t, id, evt.ConversationID)
	assert.Equal(t, "Hello", evt.Message.Content)
}

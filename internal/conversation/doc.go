// Package conversation owns multi-turn conversation state.
//
// # Records
//
// A Conversation is bound to one model for its whole life and holds an
// append-only list of Messages. Callers never receive the Store's own
// records: Get returns a deep copy and List returns Summaries.
//
// # Store
//
// The Store is constructed explicitly and shared by the dispatcher, the HTTP
// layer and the janitor:
//
//	broadcaster := conversation.NewEventBroadcaster(logger)
//	store := conversation.NewStore(conversation.StoreConfig{
//		Models:   registry,
//		Notifier: broadcaster,
//	})
//
// Operations:
//
//   - Create(model, metadata): new empty conversation, ErrUnknownModel if the model has no capability entry
//   - Append(id, role, content): append and notify, ErrNotFound if absent
//   - Get(id): snapshot, ErrNotFound if absent
//   - List(): summaries, most recently active first
//   - Delete(id): true if something was removed
//   - EvictExpired(now, ttl): drop conversations idle since before now-ttl
//
// # Locking
//
// Conversations are spread over shards by id hash. A shard lock only guards
// map membership; each conversation has its own RWMutex that serialises
// appends and lets readers copy a consistent history. Work on different ids
// never waits on the same entry lock. Eviction takes the entry lock before
// removing the entry, so it cannot remove a conversation mid-append.
//
// # Notifications
//
// The Store calls Notifier.Notify synchronously for every append, under the
// conversation's lock, so observers see messages in history order. The
// EventBroadcaster implementation never blocks: each subscriber has a
// bounded buffer and events are dropped for subscribers that fall behind.
//
// # Eviction
//
// Janitor evicts conversations idle for longer than the retention window
// (20 days by default) once at start and then on a cron schedule (@daily by
// default).
package conversation

// ABOUTME: In-memory fan-out event broadcaster for conversation observers
// ABOUTME: Implements Notifier; publishes appended messages without ever blocking the Store

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// AllConversations subscribes to events from every conversation.
	AllConversations = ""

	// EventNewMessage is the type of events published for appended messages.
	EventNewMessage = "new_message"
)

// Event is what observers receive for each appended message.
type Event struct {
	Type           string  `json:"type"`
	ConversationID string  `json:"conversation_id"`
	Message        Message `json:"message"`
}

// EventBroadcaster provides in-memory pub/sub for conversation events.
// Subscribers register for one conversation id, or for AllConversations, and
// receive events on a bounded channel. A full channel drops events for that
// subscriber only.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // conversationID -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan *Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on conversationID (or every
// conversation when it is AllConversations). The returned channel is closed
// when ctx is cancelled, on Unsubscribe, or when the broadcaster closes.
func (b *EventBroadcaster) Subscribe(ctx context.Context, conversationID string) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[conversationID]; !ok {
		b.subscribers[conversationID] = make(map[string]chan *Event)
	}
	b.subscribers[conversationID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(conversationID, subID)
	}()

	return ch, subID
}

// Notify publishes a new_message event. It satisfies Notifier.
func (b *EventBroadcaster) Notify(conversationID string, msg Message) {
	b.Publish(&Event{
		Type:           EventNewMessage,
		ConversationID: conversationID,
		Message:        msg,
	})
}

// Publish delivers an event to subscribers of its conversation and to
// AllConversations subscribers. Non-blocking.
func (b *EventBroadcaster) Publish(event *Event) {
	b.mu.RLock()
	targets := make([]chan *Event, 0, len(b.subscribers[event.ConversationID])+len(b.subscribers[AllConversations]))
	for _, ch := range b.subscribers[event.ConversationID] {
		targets = append(targets, ch)
	}
	if event.ConversationID != AllConversations {
		for _, ch := range b.subscribers[AllConversations] {
			targets = append(targets, ch)
		}
	}

	// Sends happen under the read lock so Unsubscribe cannot close a channel
	// mid-send. Every send is non-blocking, so the lock is held briefly.
	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"conversation_id", event.ConversationID)
		}
	}
	b.mu.RUnlock()
}

// SubscriberCount returns the number of active subscriptions.
func (b *EventBroadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(conversationID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[conversationID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, conversationID)
	}

	b.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for convID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, convID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}

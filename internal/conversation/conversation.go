// ABOUTME: Message and Conversation records owned by the conversation Store
// ABOUTME: Callers only ever see deep copies; the Store keeps the originals

package conversation

import (
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned when a conversation id is unknown or already evicted.
var ErrNotFound = errors.New("conversation not found")

// ErrUnknownModel is returned by Create when no capability entry exists for the model.
var ErrUnknownModel = errors.New("unknown model")

// Role identifies who authored a message.
type Role string

// Message roles
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single turn. It is never modified after it has been appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model,omitempty"` // set on assistant turns
}

// Conversation is an ordered, append-only history bound to one model.
type Conversation struct {
	ID             string         `json:"id"`
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	Metadata       map[string]any `json:"metadata"`
}

// Summary is the lightweight listing form of a Conversation.
type Summary struct {
	ID             string         `json:"id"`
	Model          string         `json:"model"`
	MessageCount   int            `json:"message_count"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	Metadata       map[string]any `json:"metadata"`
}

// clone returns a deep copy safe to hand to callers.
func (c *Conversation) clone() *Conversation {
	out := *c
	out.Messages = slices.Clone(c.Messages)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	out.Metadata = cloneMetadata(c.Metadata)
	return &out
}

func (c *Conversation) summary() Summary {
	return Summary{
		ID:             c.ID,
		Model:          c.Model,
		MessageCount:   len(c.Messages),
		CreatedAt:      c.CreatedAt,
		LastActivityAt: c.LastActivityAt,
		Metadata:       cloneMetadata(c.Metadata),
	}
}

// cloneMetadata deep-copies the JSON-shaped values callers pass as metadata
// (nested maps and slices); anything else is copied by value.
func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMetadata(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}

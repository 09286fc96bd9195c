// ABOUTME: Contract between the dispatcher and the per-vendor model clients
// ABOUTME: Messages and options in, response text out; vendors live in subpackages

package provider

import (
	"context"
	"errors"
)

// Message roles understood by every client.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotConfigured is returned by a client whose API key is missing.
var ErrNotConfigured = errors.New("provider not configured")

// Message is one entry of the outbound history.
type Message struct {
	Role    string
	Content string
}

// Options carries the per-call knobs the dispatcher decided to pass.
// Empty fields mean the client's default.
type Options struct {
	ReasoningEffort string
	FilePaths       []string
}

// Client calls one upstream model.
type Client interface {
	Call(ctx context.Context, messages []Message, opts Options) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, messages []Message, opts Options) (string, error)

// Call implements Client.
func (f ClientFunc) Call(ctx context.Context, messages []Message, opts Options) (string, error) {
	return f(ctx, messages, opts)
}

// SplitSystem separates system messages from the conversational turns.
// Several vendor APIs take system text as a separate field.
func SplitSystem(messages []Message) (system []string, turns []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}

// ABOUTME: Error taxonomy surfaced by the dispatcher
// ABOUTME: Sentinels per failure kind plus ProviderError wrapping upstream failures

package dispatch

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownModel          = errors.New("unknown model")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrModelMismatch         = errors.New("model mismatch")
	ErrUnsupportedCapability = errors.New("unsupported capability")
	ErrContextTooLarge       = errors.New("context too large")
	ErrTemplateNotFound      = errors.New("template not found")
)

// Stable kind names used by the route layer.
const (
	KindUnknownModel          = "unknown_model"
	KindConversationNotFound  = "conversation_not_found"
	KindModelMismatch         = "model_mismatch"
	KindUnsupportedCapability = "unsupported_capability"
	KindContextTooLarge       = "context_too_large"
	KindTemplateNotFound      = "template_not_found"
	KindProviderError         = "provider_error"
	KindInternal              = "internal"
)

// ProviderError wraps a failure returned by a provider client.
type ProviderError struct {
	Model string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error from %s: %v", e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Kind classifies err into one of the Kind* names.
func Kind(err error) string {
	var perr *ProviderError
	switch {
	case errors.As(err, &perr):
		return KindProviderError
	case errors.Is(err, ErrUnknownModel):
		return KindUnknownModel
	case errors.Is(err, ErrConversationNotFound):
		return KindConversationNotFound
	case errors.Is(err, ErrModelMismatch):
		return KindModelMismatch
	case errors.Is(err, ErrUnsupportedCapability):
		return KindUnsupportedCapability
	case errors.Is(err, ErrContextTooLarge):
		return KindContextTooLarge
	case errors.Is(err, ErrTemplateNotFound):
		return KindTemplateNotFound
	default:
		return KindInternal
	}
}

// ABOUTME: Dispatcher validates a request against model capabilities and routes it
// ABOUTME: Records the user turn before the provider call and the answer after it

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/2389/model-router/internal/capability"
	"github.com/2389/model-router/internal/conversation"
	"github.com/2389/model-router/internal/provider"
	"github.com/2389/model-router/internal/store"
)

// DefaultRequestTimeout bounds a provider call when none is configured.
const DefaultRequestTimeout = 10 * time.Minute

// Registry resolves model ids to bound capability descriptors.
type Registry interface {
	Lookup(model string) (capability.Descriptor, error)
}

// TemplateLookup resolves prompt templates by name.
type TemplateLookup interface {
	Get(name string) (string, error)
}

// UsageRecorder receives one record per dispatch outcome.
type UsageRecorder interface {
	SaveUsage(ctx context.Context, rec *store.UsageRecord) error
}

// Config wires a Dispatcher.
type Config struct {
	Registry       Registry
	Store          *conversation.Store
	Templates      TemplateLookup // optional; requests naming a template fail without it
	Usage          UsageRecorder  // optional
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Request is one prompt to route.
type Request struct {
	Model            string
	Prompt           string
	ConversationID   string
	NewConversation  bool
	FilePaths        []string
	ReasoningEffort  string
	Template         string // empty means no template
	TemplateOptional bool   // skip a missing template instead of failing
	Metadata         map[string]any
}

// Result is a successful dispatch.
type Result struct {
	ConversationID  string    `json:"conversation_id"`
	Response        string    `json:"response"`
	Model           string    `json:"model"`
	Timestamp       time.Time `json:"timestamp"`
	NewConversation bool      `json:"new_conversation"`
}

// Dispatcher routes prompts to provider clients and keeps the conversation
// store in step. Safe for concurrent use.
type Dispatcher struct {
	registry  Registry
	store     *conversation.Store
	templates TemplateLookup
	usage     UsageRecorder
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("dispatcher needs a registry")
	}
	if cfg.Store == nil {
		return nil, errors.New("dispatcher needs a conversation store")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:  cfg.Registry,
		store:     cfg.Store,
		templates: cfg.Templates,
		usage:     cfg.Usage,
		timeout:   timeout,
		logger:    logger.With("component", "dispatcher"),
		now:       time.Now,
	}, nil
}

// Dispatch validates req, records the user turn, calls the model and records
// its answer. Every validation runs before the store is touched, so a
// rejected request leaves no trace. A provider failure, or a context limit
// crossed only because of turns appended concurrently, leaves the user turn
// in place without an answer.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	desc, err := d.registry.Lookup(req.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, req.Model)
	}

	isNew := req.NewConversation || req.ConversationID == ""
	var history []conversation.Message
	if !isNew {
		conv, err := d.store.Get(req.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, req.ConversationID)
		}
		if conv.Model != req.Model {
			return nil, fmt.Errorf("%w: conversation %s is bound to %s, not %s",
				ErrModelMismatch, conv.ID, conv.Model, req.Model)
		}
		history = conv.Messages
	}

	if len(req.FilePaths) > 0 && !desc.SupportsFiles {
		return nil, fmt.Errorf("%w: %s does not accept file attachments", ErrUnsupportedCapability, desc.ID)
	}

	effort, err := desc.ResolveEffort(req.ReasoningEffort)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCapability, err)
	}

	template, err := d.lookupTemplate(req.Template)
	if err != nil {
		if !req.TemplateOptional {
			return nil, err
		}
		d.logger.Debug("optional template missing", "template", req.Template)
		template = ""
	}

	// Pre-check on what is known now so that an oversized prompt leaves no trace.
	pending := append(slices.Clone(history), conversation.Message{Role: conversation.RoleUser, Content: req.Prompt})
	promptTokens := EstimateTokens(assemble(template, pending))
	if desc.Bounded() && promptTokens > desc.MaxContextTokens {
		return nil, d.contextTooLarge(ctx, req.ConversationID, desc, promptTokens)
	}

	convID := req.ConversationID
	if isNew {
		if convID, err = d.startConversation(desc.ID, template, req.Metadata); err != nil {
			return nil, err
		}
	}

	// The user turn is visible to readers before the provider answers. The
	// outbound history is the snapshot taken with the append, so turns that
	// other dispatches recorded in the meantime are sent too.
	_, conv, err := d.store.AppendSnapshot(convID, conversation.RoleUser, req.Prompt)
	if err != nil {
		return nil, d.storeError(convID, err)
	}
	outbound := assemble(template, conv.Messages)
	promptTokens = EstimateTokens(outbound)
	if desc.Bounded() && promptTokens > desc.MaxContextTokens {
		// Concurrent turns pushed it over. The user turn stays unanswered,
		// as it does after a provider failure.
		d.logger.Warn("context grew past limit while dispatching",
			"conversation_id", convID,
			"model", desc.ID,
			"prompt_tokens", promptTokens)
		return nil, d.contextTooLarge(ctx, convID, desc, promptTokens)
	}

	opts := provider.Options{ReasoningEffort: effort}
	if desc.SupportsFiles {
		opts.FilePaths = req.FilePaths
	}

	// No store lock is held across the call.
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	start := d.now()
	text, callErr := desc.Client.Call(callCtx, outbound, opts)
	latency := d.now().Sub(start)
	cancel()

	if callErr != nil {
		d.logger.Warn("provider call failed",
			"conversation_id", convID,
			"model", desc.ID,
			"latency", latency,
			"error", callErr)
		d.record(ctx, &store.UsageRecord{
			ConversationID: convID,
			Model:          desc.ID,
			Status:         store.StatusProviderError,
			PromptTokens:   promptTokens,
			Latency:        latency,
			Error:          callErr.Error(),
		})
		return nil, &ProviderError{Model: desc.ID, Err: callErr}
	}

	d.record(ctx, &store.UsageRecord{
		ConversationID: convID,
		Model:          desc.ID,
		Status:         store.StatusOK,
		PromptTokens:   promptTokens,
		ResponseTokens: estimateText(text),
		Latency:        latency,
	})

	msg, err := d.store.AppendWithModel(convID, conversation.RoleAssistant, text, desc.ID)
	if err != nil {
		return nil, d.storeError(convID, err)
	}

	d.logger.Info("dispatch completed",
		"conversation_id", convID,
		"model", desc.ID,
		"new_conversation", isNew,
		"prompt_tokens", promptTokens,
		"latency", latency)

	return &Result{
		ConversationID:  convID,
		Response:        text,
		Model:           desc.ID,
		Timestamp:       msg.Timestamp,
		NewConversation: isNew,
	}, nil
}

// contextTooLarge records the rejection and builds its error.
func (d *Dispatcher) contextTooLarge(ctx context.Context, convID string, desc capability.Descriptor, tokens int) error {
	d.record(ctx, &store.UsageRecord{
		ConversationID: convID,
		Model:          desc.ID,
		Status:         store.StatusContextTooLarge,
		PromptTokens:   tokens,
		Error:          fmt.Sprintf("estimated %d tokens, limit %d", tokens, desc.MaxContextTokens),
	})
	return fmt.Errorf("%w: estimated %d tokens exceeds %s limit of %d",
		ErrContextTooLarge, tokens, desc.ID, desc.MaxContextTokens)
}

func (d *Dispatcher) lookupTemplate(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	if d.templates == nil {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	text, err := d.templates.Get(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return text, nil
}

// startConversation creates the conversation and persists the template as
// its first message.
func (d *Dispatcher) startConversation(model, template string, metadata map[string]any) (string, error) {
	id, err := d.store.Create(model, metadata)
	if err != nil {
		if errors.Is(err, conversation.ErrUnknownModel) {
			return "", fmt.Errorf("%w: %s", ErrUnknownModel, model)
		}
		return "", fmt.Errorf("creating conversation: %w", err)
	}
	if template != "" {
		if _, err := d.store.Append(id, conversation.RoleSystem, template); err != nil {
			return "", d.storeError(id, err)
		}
	}
	return id, nil
}

// storeError maps a failed append. The only expected failure is a conversation
// deleted or evicted while this dispatch was running.
func (d *Dispatcher) storeError(id string, err error) error {
	if errors.Is(err, conversation.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return fmt.Errorf("appending to conversation %s: %w", id, err)
}

func (d *Dispatcher) record(ctx context.Context, rec *store.UsageRecord) {
	if d.usage == nil {
		return
	}
	rec.ID = uuid.New().String()
	rec.CreatedAt = d.now()
	if err := d.usage.SaveUsage(context.WithoutCancel(ctx), rec); err != nil {
		d.logger.Error("failed to record usage",
			"conversation_id", rec.ConversationID,
			"model", rec.Model,
			"error", err)
	}
}

// assemble builds the outbound list: template (as system), then history,
// which already ends with the new prompt. A template already persisted in
// history is not repeated.
func assemble(template string, history []conversation.Message) []provider.Message {
	out := make([]provider.Message, 0, len(history)+1)
	if template != "" && !hasSystemMessage(history, template) {
		out = append(out, provider.Message{Role: provider.RoleSystem, Content: template})
	}
	for _, m := range history {
		out = append(out, provider.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func hasSystemMessage(history []conversation.Message, content string) bool {
	for _, m := range history {
		if m.Role == conversation.RoleSystem && m.Content == content {
			return true
		}
	}
	return false
}

// ABOUTME: provider.Client backed by a langchaingo llms.Model
// ABOUTME: Serves Anthropic Claude and Google Gemini; the model is built on first use

package langchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/2389/model-router/internal/provider"
)

// DefaultMaxTokens caps answers when the config leaves it unset.
const DefaultMaxTokens = 4000

// Config configures a langchaingo-backed client.
type Config struct {
	APIKey    string
	BaseURL   string // Anthropic only
	Model     string // upstream model name
	MaxTokens int

	// AttachFiles sends attachments as binary parts on the last user turn.
	AttachFiles bool

	Logger *slog.Logger
}

// Factory builds the underlying llms.Model.
type Factory func(ctx context.Context) (llms.Model, error)

// Client adapts an llms.Model to provider.Client. The model is constructed
// lazily so a missing API key surfaces per call rather than at startup.
type Client struct {
	factory     Factory
	maxTokens   int
	attachFiles bool
	logger      *slog.Logger

	mu  sync.Mutex
	llm llms.Model
}

// New creates a client around factory.
func New(cfg Config, factory Factory) *Client {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		factory:     factory,
		maxTokens:   maxTokens,
		attachFiles: cfg.AttachFiles,
		logger:      logger.With("component", "langchain", "model", cfg.Model),
	}
}

// NewWithModel wraps an already constructed model.
func NewWithModel(cfg Config, llm llms.Model) *Client {
	return New(cfg, func(context.Context) (llms.Model, error) { return llm, nil })
}

// NewAnthropic creates a Claude client.
func NewAnthropic(cfg Config) *Client {
	return New(cfg, func(context.Context) (llms.Model, error) {
		if cfg.APIKey == "" {
			return nil, provider.ErrNotConfigured
		}
		opts := []anthropic.Option{
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)
	})
}

// NewGemini creates a Google Gemini client.
func NewGemini(cfg Config) *Client {
	return New(cfg, func(ctx context.Context) (llms.Model, error) {
		if cfg.APIKey == "" {
			return nil, provider.ErrNotConfigured
		}
		return googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
		)
	})
}

// model returns the cached llms.Model, building it on first use. The factory
// runs without c.mu held, on a context detached from the caller's deadline.
// Concurrent first calls may each build a model; the first one stored wins.
func (c *Client) model(ctx context.Context) (llms.Model, error) {
	c.mu.Lock()
	llm := c.llm
	c.mu.Unlock()
	if llm != nil {
		return llm, nil
	}

	built, err := c.factory(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.llm == nil {
		c.llm = built
	}
	return c.llm, nil
}

// Call implements provider.Client.
func (c *Client) Call(ctx context.Context, messages []provider.Message, opts provider.Options) (string, error) {
	if len(opts.FilePaths) > 0 && !c.attachFiles {
		return "", errors.New("this model does not accept attachments")
	}

	llm, err := c.model(ctx)
	if err != nil {
		return "", err
	}

	content, err := toMessageContent(messages)
	if err != nil {
		return "", err
	}
	if len(opts.FilePaths) > 0 {
		if content, err = attachFiles(content, opts.FilePaths); err != nil {
			return "", err
		}
	}

	resp, err := llm.GenerateContent(ctx, content, llms.WithMaxTokens(c.maxTokens))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	c.logger.Debug("generation finished", "stop_reason", resp.Choices[0].StopReason)
	return resp.Choices[0].Content, nil
}

// toMessageContent folds all system text into one leading system message and
// maps the remaining turns onto langchaingo roles.
func toMessageContent(messages []provider.Message) ([]llms.MessageContent, error) {
	system, turns := provider.SplitSystem(messages)

	out := make([]llms.MessageContent, 0, len(turns)+1)
	if len(system) > 0 {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, strings.Join(system, "\n\n")))
	}
	for _, m := range turns {
		var role llms.ChatMessageType
		switch m.Role {
		case provider.RoleUser:
			role = llms.ChatMessageTypeHuman
		case provider.RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out, nil
}

func attachFiles(content []llms.MessageContent, paths []string) ([]llms.MessageContent, error) {
	last := -1
	for i := len(content) - 1; i >= 0; i-- {
		if content[i].Role == llms.ChatMessageTypeHuman {
			last = i
			break
		}
	}
	if last < 0 {
		return nil, errors.New("attachments need a user message")
	}

	files, err := provider.LoadFiles(paths)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		content[last].Parts = append(content[last].Parts, llms.BinaryContent{
			MIMEType: f.MIMEType,
			Data:     f.Data,
		})
	}
	return content, nil
}

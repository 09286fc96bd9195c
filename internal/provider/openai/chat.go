// ABOUTME: Client for OpenAI-compatible chat completions endpoints
// ABOUTME: Serves xAI grok through https://api.x.ai/v1

package openai

import (
	"context"
	"errors"

	"github.com/2389/model-router/internal/provider"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model           string        `json:"model"`
	Messages        []chatMessage `json:"messages"`
	MaxTokens       int           `json:"max_tokens,omitempty"`
	ReasoningEffort string        `json:"reasoning_effort,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// ChatClient calls POST {base}/chat/completions.
type ChatClient struct {
	t         transport
	model     string
	maxTokens int
}

// NewChatClient creates a chat completions client. BaseURL defaults to xAI.
func NewChatClient(cfg Config) *ChatClient {
	return &ChatClient{
		t:         newTransport(cfg, XAIBaseURL, "openai-chat"),
		model:     cfg.Model,
		maxTokens: cfg.MaxOutputTokens,
	}
}

// Call implements provider.Client. Attachments are not supported.
func (c *ChatClient) Call(ctx context.Context, messages []provider.Message, opts provider.Options) (string, error) {
	if len(opts.FilePaths) > 0 {
		return "", errors.New("chat completions client does not accept attachments")
	}

	req := chatRequest{
		Model:           c.model,
		Messages:        make([]chatMessage, 0, len(messages)),
		MaxTokens:       c.maxTokens,
		ReasoningEffort: opts.ReasoningEffort,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	var resp chatResponse
	if err := c.t.postJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// ABOUTME: Client for the OpenAI Responses API used by gpt-5 and o3-pro
// ABOUTME: Sends history as input items with reasoning effort and inline attachments

package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/model-router/internal/provider"
)

type responsesRequest struct {
	Model           string           `json:"model"`
	Input           []inputItem      `json:"input"`
	Reasoning       *reasoningConfig `json:"reasoning,omitempty"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
}

type reasoningConfig struct {
	Effort string `json:"effort"`
}

// inputItem content is a plain string, or a []inputPart when attachments ride along.
type inputItem struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type inputPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responsesResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r *responsesResponse) text() string {
	var parts []string
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" {
				parts = append(parts, c.Text)
			}
		}
	}
	return strings.Join(parts, "")
}

// ResponsesClient calls POST {base}/responses.
type ResponsesClient struct {
	t               transport
	model           string
	maxOutputTokens int
	fixedEffort     string
}

// NewResponsesClient creates a Responses API client for one upstream model.
func NewResponsesClient(cfg Config) *ResponsesClient {
	return &ResponsesClient{
		t:               newTransport(cfg, DefaultBaseURL, "openai-responses"),
		model:           cfg.Model,
		maxOutputTokens: cfg.MaxOutputTokens,
		fixedEffort:     cfg.FixedEffort,
	}
}

// Call implements provider.Client.
func (c *ResponsesClient) Call(ctx context.Context, messages []provider.Message, opts provider.Options) (string, error) {
	input, err := buildInput(messages, opts.FilePaths)
	if err != nil {
		return "", err
	}

	req := responsesRequest{
		Model:           c.model,
		Input:           input,
		MaxOutputTokens: c.maxOutputTokens,
	}
	effort := opts.ReasoningEffort
	if effort == "" {
		effort = c.fixedEffort
	}
	if effort != "" {
		req.Reasoning = &reasoningConfig{Effort: effort}
	}

	var resp responsesResponse
	if err := c.t.postJSON(ctx, "/responses", req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return "", &APIError{Status: 200, Code: resp.Error.Code, Message: resp.Error.Message}
	}

	text := resp.text()
	if text == "" {
		if resp.IncompleteDetails != nil {
			return "", fmt.Errorf("response %s incomplete: %s", resp.ID, resp.IncompleteDetails.Reason)
		}
		return "", errors.New("response contained no output text")
	}
	return text, nil
}

// buildInput converts history to input items. Attachments are added to the
// last user message.
func buildInput(messages []provider.Message, filePaths []string) ([]inputItem, error) {
	items := make([]inputItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, inputItem{Role: m.Role, Content: m.Content})
	}
	if len(filePaths) == 0 {
		return items, nil
	}

	last := -1
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Role == provider.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		return nil, errors.New("attachments need a user message")
	}

	files, err := provider.LoadFiles(filePaths)
	if err != nil {
		return nil, err
	}

	parts := []inputPart{{Type: "input_text", Text: items[last].Content.(string)}}
	for _, f := range files {
		switch {
		case f.IsText():
			parts = append(parts, inputPart{
				Type: "input_text",
				Text: fmt.Sprintf("--- %s ---\n%s", f.Name, f.Data),
			})
		case strings.HasPrefix(f.MIMEType, "image/"):
			parts = append(parts, inputPart{Type: "input_image", ImageURL: dataURL(f)})
		default:
			parts = append(parts, inputPart{Type: "input_file", Filename: f.Name, FileData: dataURL(f)})
		}
	}
	items[last].Content = parts
	return items, nil
}

func dataURL(f provider.File) string {
	return "data:" + f.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

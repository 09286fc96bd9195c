// ABOUTME: Shared HTTP plumbing for OpenAI-style JSON APIs
// ABOUTME: Auth headers, bounded body reads, and APIError decoding

package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/model-router/internal/provider"
)

const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	// XAIBaseURL is the xAI OpenAI-compatible API root.
	XAIBaseURL = "https://api.x.ai/v1"

	// DefaultTimeout bounds a single upstream call. Reasoning models are slow.
	DefaultTimeout = 10 * time.Minute

	// MaxResponseSize caps how much of a response body is read.
	MaxResponseSize = 10 << 20
)

// APIError is a non-2xx answer from the upstream API.
type APIError struct {
	Status  int
	Type    string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream error (HTTP %d): %s", e.Status, e.Message)
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Config configures either client in this package.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string // upstream model name
	Timeout time.Duration

	// MaxOutputTokens caps the answer length; 0 leaves it to the API.
	MaxOutputTokens int

	// FixedEffort is sent on every call when the caller passes no effort.
	// Used for models that always reason at maximum effort.
	FixedEffort string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

type transport struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func newTransport(cfg Config, defaultBase, component string) transport {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBase
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return transport{
		apiKey:  cfg.APIKey,
		baseURL: base,
		http:    hc,
		logger:  logger.With("component", component, "model", cfg.Model),
	}
}

// postJSON sends body to path and decodes a 2xx answer into out.
func (t transport) postJSON(ctx context.Context, path string, body, out any) error {
	if t.apiKey == "" {
		return provider.ErrNotConfigured
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return err
	}
	t.logger.Debug("upstream response",
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

func decodeError(status int, body []byte) error {
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr := &APIError{
			Status:  status,
			Type:    parsed.Error.Type,
			Message: parsed.Error.Message,
		}
		if parsed.Error.Code != nil {
			apiErr.Code = fmt.Sprint(parsed.Error.Code)
		}
		return apiErr
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}

// ABOUTME: Builds provider clients for capability descriptors from provider configuration
// ABOUTME: OpenAI and xAI use the HTTP clients; Anthropic and Gemini go through langchaingo

package gateway

import (
	"fmt"
	"log/slog"

	"github.com/2389/model-router/internal/capability"
	"github.com/2389/model-router/internal/config"
	"github.com/2389/model-router/internal/provider"
	"github.com/2389/model-router/internal/provider/langchain"
	"github.com/2389/model-router/internal/provider/openai"
)

// maxEffort is sent to models that always reason at full effort.
const maxEffort = "high"

// NewResolver returns a capability.Resolver that binds each descriptor to a
// client for its provider family. Clients are created even when the API key
// is empty; such a client fails every call with provider.ErrNotConfigured.
func NewResolver(cfg config.ProvidersConfig, logger *slog.Logger) capability.Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return func(d capability.Descriptor) (provider.Client, error) {
		switch d.Provider {
		case capability.ProviderOpenAI:
			oc := openai.Config{
				APIKey:          cfg.OpenAI.APIKey,
				BaseURL:         cfg.OpenAI.BaseURL,
				Model:           d.UpstreamModel,
				Timeout:         cfg.OpenAI.Timeout,
				MaxOutputTokens: cfg.OpenAI.MaxTokens,
				Logger:          logger,
			}
			if d.Reasoning == capability.ReasoningFixedMax {
				oc.FixedEffort = maxEffort
			}
			return openai.NewResponsesClient(oc), nil

		case capability.ProviderXAI:
			return openai.NewChatClient(openai.Config{
				APIKey:          cfg.XAI.APIKey,
				BaseURL:         cfg.XAI.BaseURL,
				Model:           d.UpstreamModel,
				Timeout:         cfg.XAI.Timeout,
				MaxOutputTokens: cfg.XAI.MaxTokens,
				Logger:          logger,
			}), nil

		case capability.ProviderAnthropic:
			return langchain.NewAnthropic(langchain.Config{
				APIKey:    cfg.Anthropic.APIKey,
				BaseURL:   cfg.Anthropic.BaseURL,
				Model:     d.UpstreamModel,
				MaxTokens: cfg.Anthropic.MaxTokens,
				Logger:    logger,
			}), nil

		case capability.ProviderGemini:
			return langchain.NewGemini(langchain.Config{
				APIKey:      cfg.Gemini.APIKey,
				Model:       d.UpstreamModel,
				MaxTokens:   cfg.Gemini.MaxTokens,
				AttachFiles: d.SupportsFiles,
				Logger:      logger,
			}), nil

		default:
			return nil, fmt.Errorf("no client for provider %q", d.Provider)
		}
	}
}

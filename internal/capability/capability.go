// ABOUTME: Capability Descriptors describing what each routable model supports
// ABOUTME: Files, context ceiling, and reasoning-effort control per model id

package capability

import (
	"errors"
	"fmt"
	"slices"

	"github.com/2389/model-router/internal/provider"
)

// Unbounded marks a model with no declared context ceiling.
const Unbounded = 0

// Provider families.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderXAI       = "xai"
	ProviderGemini    = "gemini"
)

var (
	// ErrUnknownModel is returned when no descriptor exists for a model id.
	ErrUnknownModel = errors.New("unknown model")

	// ErrUnsupportedEffort is returned for a reasoning effort the model does not offer.
	ErrUnsupportedEffort = errors.New("unsupported reasoning effort")
)

// ReasoningMode says how much control callers have over model reasoning.
type ReasoningMode string

const (
	// ReasoningNone models have no reasoning knob.
	ReasoningNone ReasoningMode = "none"
	// ReasoningFixedMax models always reason at maximum effort.
	ReasoningFixedMax ReasoningMode = "fixed-max"
	// ReasoningAdaptive models pick their own reasoning budget.
	ReasoningAdaptive ReasoningMode = "adaptive"
	// ReasoningSelectable models accept one of Levels per call.
	ReasoningSelectable ReasoningMode = "selectable"
)

// Descriptor is the static capability entry for one model id.
type Descriptor struct {
	ID               string        `json:"id"`
	Provider         string        `json:"provider"`
	UpstreamModel    string        `json:"upstream_model"`
	SupportsFiles    bool          `json:"supports_files"`
	MaxContextTokens int           `json:"max_context_tokens"` // Unbounded when 0
	Reasoning        ReasoningMode `json:"reasoning"`
	Levels           []string      `json:"reasoning_levels,omitempty"`

	// Client serves calls for this model. Set by Bind.
	Client provider.Client `json:"-"`
}

// Bounded reports whether the model declares a finite context ceiling.
func (d Descriptor) Bounded() bool {
	return d.MaxContextTokens != Unbounded
}

// ResolveEffort returns the effort to send upstream. It is empty unless the
// model is selectable; an empty request picks the first level.
func (d Descriptor) ResolveEffort(requested string) (string, error) {
	if d.Reasoning != ReasoningSelectable {
		return "", nil
	}
	if requested == "" {
		if len(d.Levels) == 0 {
			return "", nil
		}
		return d.Levels[0], nil
	}
	if !slices.Contains(d.Levels, requested) {
		return "", fmt.Errorf("%w: %s accepts %v, got %q", ErrUnsupportedEffort, d.ID, d.Levels, requested)
	}
	return requested, nil
}

func (d Descriptor) validate() error {
	if d.ID == "" {
		return errors.New("descriptor has empty id")
	}
	if d.MaxContextTokens < 0 {
		return fmt.Errorf("model %s: negative max_context_tokens", d.ID)
	}
	switch d.Reasoning {
	case ReasoningNone, ReasoningFixedMax, ReasoningAdaptive:
	case ReasoningSelectable:
		if len(d.Levels) == 0 {
			return fmt.Errorf("model %s: selectable reasoning needs at least one level", d.ID)
		}
	default:
		return fmt.Errorf("model %s: unknown reasoning mode %q", d.ID, d.Reasoning)
	}
	return nil
}

func (d Descriptor) clone() Descriptor {
	d.Levels = slices.Clone(d.Levels)
	return d
}

var gptLevels = []string{"high", "medium", "low", "minimal"}

// DefaultTable returns the built-in models. Clients are unset.
func DefaultTable() []Descriptor {
	return []Descriptor{
		{ID: "o3-pro", Provider: ProviderOpenAI, UpstreamModel: "o3-pro", SupportsFiles: true, MaxContextTokens: 200000, Reasoning: ReasoningFixedMax},
		{ID: "gpt-5", Provider: ProviderOpenAI, UpstreamModel: "gpt-5", MaxContextTokens: 400000, Reasoning: ReasoningSelectable, Levels: slices.Clone(gptLevels)},
		{ID: "gpt-5-pro", Provider: ProviderOpenAI, UpstreamModel: "gpt-5-pro", MaxContextTokens: 400000, Reasoning: ReasoningSelectable, Levels: slices.Clone(gptLevels)},
		{ID: "claude", Provider: ProviderAnthropic, UpstreamModel: "claude-sonnet-4-5-20250929", MaxContextTokens: 200000, Reasoning: ReasoningNone},
		{ID: "claude-opus", Provider: ProviderAnthropic, UpstreamModel: "claude-opus-4-1-20250805", MaxContextTokens: 200000, Reasoning: ReasoningNone},
		{ID: "claude-haiku", Provider: ProviderAnthropic, UpstreamModel: "claude-haiku-4-5", MaxContextTokens: 200000, Reasoning: ReasoningNone},
		{ID: "grok", Provider: ProviderXAI, UpstreamModel: "grok-4-fast-reasoning", MaxContextTokens: 2000000, Reasoning: ReasoningFixedMax},
		{ID: "gemini", Provider: ProviderGemini, UpstreamModel: "gemini-2.5-pro", SupportsFiles: true, MaxContextTokens: Unbounded, Reasoning: ReasoningAdaptive},
	}
}

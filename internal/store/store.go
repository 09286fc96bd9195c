// ABOUTME: Usage ledger types and the UsageStore interface
// ABOUTME: One record per dispatch outcome; conversation content is never stored

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Status is the outcome of one dispatch.
type Status string

const (
	StatusOK              Status = "ok"
	StatusProviderError   Status = "provider_error"
	StatusContextTooLarge Status = "context_too_large"
)

// UsageRecord is one ledger row.
type UsageRecord struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Model          string        `json:"model"`
	Status         Status        `json:"status"`
	PromptTokens   int           `json:"prompt_tokens"`
	ResponseTokens int           `json:"response_tokens"`
	Latency        time.Duration `json:"latency_ns"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// UsageFilter narrows ListUsage and GetUsageStats. Nil fields match everything.
type UsageFilter struct {
	Model          *string
	ConversationID *string
	Since          *time.Time
	Until          *time.Time
	Limit          int // ListUsage only; 0 means no limit
}

// ModelUsage aggregates the ledger for one model.
type ModelUsage struct {
	Model          string        `json:"model"`
	Requests       int64         `json:"requests"`
	Failures       int64         `json:"failures"`
	PromptTokens   int64         `json:"prompt_tokens"`
	ResponseTokens int64         `json:"response_tokens"`
	AvgLatency     time.Duration `json:"avg_latency_ns"`
}

// UsageStats aggregates the ledger across models.
type UsageStats struct {
	Requests       int64        `json:"requests"`
	Failures       int64        `json:"failures"`
	PromptTokens   int64        `json:"prompt_tokens"`
	ResponseTokens int64        `json:"response_tokens"`
	TotalTokens    int64        `json:"total_tokens"`
	ByModel        []ModelUsage `json:"by_model"`
}

// UsageStore records and aggregates dispatch outcomes.
type UsageStore interface {
	SaveUsage(ctx context.Context, rec *UsageRecord) error
	GetUsage(ctx context.Context, id string) (*UsageRecord, error)
	ListUsage(ctx context.Context, filter UsageFilter) ([]*UsageRecord, error)
	GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error)
	Close() error
}

func (s *UsageStats) addModel(m ModelUsage) {
	s.Requests += m.Requests
	s.Failures += m.Failures
	s.PromptTokens += m.PromptTokens
	s.ResponseTokens += m.ResponseTokens
	s.TotalTokens = s.PromptTokens + s.ResponseTokens
	s.ByModel = append(s.ByModel, m)
}

// ABOUTME: Mock UsageStore implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory UsageStore for tests.
type MockStore struct {
	mu      sync.RWMutex
	records map[string]*UsageRecord

	// SaveErr, when set, is returned by SaveUsage.
	SaveErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{records: make(map[string]*UsageRecord)}
}

// SaveUsage stores a copy of rec.
func (m *MockStore) SaveUsage(ctx context.Context, rec *UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("inserting usage: duplicate id %s", rec.ID)
	}
	r := *rec
	m.records[r.ID] = &r
	return nil
}

// GetUsage returns a copy of one record.
func (m *MockStore) GetUsage(ctx context.Context, id string) (*UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

// ListUsage returns copies of matching records, newest first.
func (m *MockStore) ListUsage(ctx context.Context, filter UsageFilter) ([]*UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*UsageRecord
	for _, r := range m.records {
		if matches(r, filter) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetUsageStats aggregates matching records per model.
func (m *MockStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byModel := make(map[string]*ModelUsage)
	latency := make(map[string]time.Duration)
	for _, r := range m.records {
		if !matches(r, filter) {
			continue
		}
		mu, ok := byModel[r.Model]
		if !ok {
			mu = &ModelUsage{Model: r.Model}
			byModel[r.Model] = mu
		}
		mu.Requests++
		if r.Status != StatusOK {
			mu.Failures++
		}
		mu.PromptTokens += int64(r.PromptTokens)
		mu.ResponseTokens += int64(r.ResponseTokens)
		latency[r.Model] += r.Latency
	}

	models := make([]string, 0, len(byModel))
	for model := range byModel {
		models = append(models, model)
	}
	sort.Strings(models)

	stats := &UsageStats{ByModel: []ModelUsage{}}
	for _, model := range models {
		mu := byModel[model]
		mu.AvgLatency = latency[model] / time.Duration(mu.Requests)
		stats.addModel(*mu)
	}
	return stats, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

func matches(r *UsageRecord, f UsageFilter) bool {
	if f.Model != nil && r.Model != *f.Model {
		return false
	}
	if f.ConversationID != nil && r.ConversationID != *f.ConversationID {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !r.CreatedAt.Before(*f.Until) {
		return false
	}
	return true
}

var _ UsageStore = (*MockStore)(nil)

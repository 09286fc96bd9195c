// ABOUTME: Tests for the dashboard pages
// ABOUTME: Uses in-memory fakes for conversations, models and usage

package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/model-router/internal/capability"
	"github.com/2389/model-router/internal/conversation"
	"github.com/2389/model-router/internal/store"
)

type fakeConversations struct {
	convs map[string]*conversation.Conversation
	err   error
}

func (f *fakeConversations) List() []conversation.Summary {
	var out []conversation.Summary
	for _, c := range f.convs {
		out = append(out, conversation.Summary{
			ID:             c.ID,
			Model:          c.Model,
			MessageCount:   len(c.Messages),
			CreatedAt:      c.CreatedAt,
			LastActivityAt: c.LastActivityAt,
		})
	}
	return out
}

func (f *fakeConversations) Get(id string) (*conversation.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.convs[id]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	return c, nil
}

type fakeModels []capability.Descriptor

func (f fakeModels) List() []capability.Descriptor { return f }

type fakeUsage struct {
	stats *store.UsageStats
	err   error
}

func (f *fakeUsage) GetUsageStats(ctx context.Context, filter store.UsageFilter) (*store.UsageStats, error) {
	return f.stats, f.err
}

const convID = "0f8fad5b-d9cb-469f-a165-70867728950e"

func newTestDashboard(t *testing.T, usage UsageSource) (*http.ServeMux, *fakeConversations) {
	t.Helper()
	now := time.Now()
	convs := &fakeConversations{convs: map[string]*conversation.Conversation{
		convID: {
			ID:    convID,
			Model: "gpt-5",
			Messages: []conversation.Message{
				{Role: conversation.RoleSystem, Content: "Ask questions first.", Timestamp: now},
				{Role: conversation.RoleUser, Content: "Explain **bold** and <script>alert(1)</script>", Timestamp: now},
				{Role: conversation.RoleAssistant, Content: "- one\n- two", Timestamp: now, Model: "gpt-5"},
			},
			CreatedAt:      now.Add(-2 * time.Hour),
			LastActivityAt: now,
			Metadata:       map[string]any{"source": "cli"},
		},
	}}
	d, err := New(Config{
		Conversations: convs,
		Models:        fakeModels(capability.DefaultTable()),
		Usage:         usage,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	d.RegisterRoutes(mux)
	return mux, convs
}

func get(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresSources(t *testing.T) {
	_, err := New(Config{Models: fakeModels(nil)})
	assert.Error(t, err)
	_, err = New(Config{Conversations: &fakeConversations{}})
	assert.Error(t, err)
}

func TestIndex_ListsConversationsAndModels(t *testing.T) {
	mux, _ := newTestDashboard(t, &fakeUsage{stats: &store.UsageStats{
		Requests:    3,
		Failures:    1,
		TotalTokens: 120,
		ByModel:     []store.ModelUsage{{Model: "gpt-5", Requests: 3, Failures: 1}},
	}})

	rec := get(t, mux, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "/conversations/"+convID)
	assert.Contains(t, body, convID[:8])
	assert.Contains(t, body, "claude-sonnet-4-5-20250929")
	assert.Contains(t, body, "unbounded", "gemini has no context limit")
	assert.Contains(t, body, "3 requests, 1 failures, 120 estimated tokens")
	assert.Contains(t, body, `"/api/events"`)
}

func TestIndex_UsageErrorStillRenders(t *testing.T) {
	mux, _ := newTestDashboard(t, &fakeUsage{err: errors.New("db gone")})

	rec := get(t, mux, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "estimated tokens")
}

func TestIndex_NoUsageSource(t *testing.T) {
	mux, _ := newTestDashboard(t, nil)

	rec := get(t, mux, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Conversations")
}

func TestIndex_OnlyRootPath(t *testing.T) {
	mux, _ := newTestDashboard(t, nil)

	rec := get(t, mux, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversation_RendersMarkdownSafely(t *testing.T) {
	mux, _ := newTestDashboard(t, nil)

	rec := get(t, mux, "/conversations/"+convID)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "<strong>bold</strong>")
	assert.Contains(t, body, "<li>one</li>")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "Ask questions first.")
	assert.Contains(t, body, "source")
	assert.Contains(t, body, `"?conversation_id="`)
}

func TestConversation_NotFound(t *testing.T) {
	mux, _ := newTestDashboard(t, nil)

	rec := get(t, mux, "/conversations/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Conversation not found")
}

func TestConversation_StoreError(t *testing.T) {
	mux, convs := newTestDashboard(t, nil)
	convs.err = errors.New("boom")

	rec := get(t, mux, "/conversations/"+convID)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRenderMarkdown(t *testing.T) {
	assert.Contains(t, string(renderMarkdown("# Title")), "<h1>Title</h1>")
	assert.Contains(t, string(renderMarkdown("line one\nline two")), "<br>")
	assert.Contains(t, string(renderMarkdown("| a | b |\n|---|---|\n| 1 | 2 |")), "<table>")
}

func TestAgo(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", ago(now))
	assert.Equal(t, "5m ago", ago(now.Add(-5*time.Minute-time.Second)))
	assert.Equal(t, "3h ago", ago(now.Add(-3*time.Hour-time.Second)))
	assert.Equal(t, "2d ago", ago(now.Add(-49*time.Hour)))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0f8fad5b", shortID(convID))
	assert.Equal(t, "abc", shortID("abc"))
}

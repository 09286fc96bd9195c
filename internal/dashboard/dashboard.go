// ABOUTME: HTML monitoring dashboard for live conversations, models and usage
// ABOUTME: Server-rendered pages; the browser subscribes to /api/events for live updates

package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/model-router/internal/capability"
	"github.com/2389/model-router/internal/conversation"
	"github.com/2389/model-router/internal/store"
)

// ConversationSource is the read side of the conversation store.
type ConversationSource interface {
	List() []conversation.Summary
	Get(id string) (*conversation.Conversation, error)
}

// ModelSource lists the registered models.
type ModelSource interface {
	List() []capability.Descriptor
}

// UsageSource aggregates the usage ledger.
type UsageSource interface {
	GetUsageStats(ctx context.Context, filter store.UsageFilter) (*store.UsageStats, error)
}

// Config wires a Dashboard.
type Config struct {
	Conversations ConversationSource
	Models        ModelSource
	Usage         UsageSource // optional
	EventsPath    string      // SSE endpoint the pages subscribe to
	Logger        *slog.Logger
}

// Dashboard serves the monitoring pages.
type Dashboard struct {
	conversations ConversationSource
	models        ModelSource
	usage         UsageSource
	eventsPath    string
	templates     *template.Template
	logger        *slog.Logger
}

type pageData struct {
	Title      string
	EventsPath string
}

type indexData struct {
	pageData
	Conversations []conversation.Summary
	Models        []capability.Descriptor
	Usage         *store.UsageStats
}

type conversationData struct {
	pageData
	Conversation *conversation.Conversation
}

// New parses the embedded templates and returns a Dashboard.
func New(cfg Config) (*Dashboard, error) {
	if cfg.Conversations == nil || cfg.Models == nil {
		return nil, errors.New("dashboard needs conversations and models")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	eventsPath := cfg.EventsPath
	if eventsPath == "" {
		eventsPath = "/api/events"
	}

	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing dashboard templates: %w", err)
	}

	return &Dashboard{
		conversations: cfg.Conversations,
		models:        cfg.Models,
		usage:         cfg.Usage,
		eventsPath:    eventsPath,
		templates:     tmpl,
		logger:        logger.With("component", "dashboard"),
	}, nil
}

// RegisterRoutes mounts the dashboard pages on mux.
func (d *Dashboard) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", d.handleIndex)
	mux.HandleFunc("GET /conversations/{id}", d.handleConversation)
}

func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		pageData:      pageData{Title: "Model Router", EventsPath: d.eventsPath},
		Conversations: d.conversations.List(),
		Models:        d.models.List(),
	}
	if d.usage != nil {
		stats, err := d.usage.GetUsageStats(r.Context(), store.UsageFilter{})
		if err != nil {
			d.logger.Warn("failed to load usage stats", "error", err)
		} else {
			data.Usage = stats
		}
	}
	d.render(w, http.StatusOK, "index.html", data)
}

func (d *Dashboard) handleConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, err := d.conversations.Get(id)
	if errors.Is(err, conversation.ErrNotFound) {
		d.render(w, http.StatusNotFound, "not_found.html", pageData{Title: "Conversation not found", EventsPath: d.eventsPath})
		return
	}
	if err != nil {
		d.logger.Error("failed to load conversation", "conversation_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	d.render(w, http.StatusOK, "conversation.html", conversationData{
		pageData:     pageData{Title: "Conversation " + shortID(conv.ID), EventsPath: d.eventsPath},
		Conversation: conv,
	})
}

// render executes into a buffer first so a template error never produces a
// half-written page.
func (d *Dashboard) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := d.templates.ExecuteTemplate(&buf, name, data); err != nil {
		d.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"markdown": renderMarkdown,
		"shortID":  shortID,
		"ago":      ago,
		"rfc3339": func(t time.Time) string {
			return t.UTC().Format(time.RFC3339)
		},
		"contextLimit": func(d capability.Descriptor) string {
			if !d.Bounded() {
				return "unbounded"
			}
			return fmt.Sprintf("%d", d.MaxContextTokens)
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ago formats the time since t in the largest whole unit.
func ago(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

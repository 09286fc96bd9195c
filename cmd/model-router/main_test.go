// ABOUTME: Tests for the model-router CLI commands and the color log handler
// ABOUTME: Client commands run against httptest servers standing in for a live router

package main

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/model-router/internal/config"
	"github.com/2389/model-router/internal/conversation"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "model-router dev") {
		t.Errorf("expected output to contain 'model-router dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := runCmd(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"serve", "init", "health", "models", "conversations", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestInitCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := runCmd(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":3791", cfg.Server.HTTPAddr)

	_, err = runCmd(t, "init", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestModelsCmd(t *testing.T) {
	out, err := runCmd(t, "models")
	require.NoError(t, err)

	assert.Contains(t, out, "MODEL")
	for _, id := range []string{"o3-pro", "gpt-5", "claude", "grok", "gemini"} {
		assert.Contains(t, out, id)
	}
	assert.Contains(t, out, "unbounded")
	assert.Contains(t, out, "fixed-max")
}

func TestHealthCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	out, err := runCmd(t, "health", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "healthy\n", out)
}

func TestHealthCmd_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	_, err := runCmd(t, "health", "--addr", addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
}

func TestConversationsCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "limit=5", r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"abc-123","model":"claude","message_count":4,` +
			`"created_at":"2026-01-01T00:00:00Z","last_activity_at":"2026-01-01T00:00:00Z"}]`))
	}))
	defer srv.Close()

	out, err := runCmd(t, "conversations", "--addr", srv.URL, "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "abc-123")
	assert.Contains(t, out, "claude")
}

func TestConversationsCmd_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"limit must be a positive integer","kind":"invalid_request"}`))
	}))
	defer srv.Close()

	_, err := runCmd(t, "conversations", "--addr", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit must be a positive integer")
	assert.Contains(t, err.Error(), "invalid_request")
}

func TestPrintConversations(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, printConversations(&buf, nil, now))
	assert.Equal(t, "No conversations\n", buf.String())

	buf.Reset()
	require.NoError(t, printConversations(&buf, []conversation.Summary{
		{ID: "c1", Model: "gpt-5", MessageCount: 2, LastActivityAt: now.Add(-90 * time.Second)},
	}, now))
	assert.Contains(t, buf.String(), "1m30s ago")
}

func TestServerURL(t *testing.T) {
	assert.Equal(t, "http://localhost:3791/health", serverURL("localhost:3791", "/health", nil))
	assert.Equal(t, "https://router.example/health", serverURL("https://router.example/", "/health", nil))
	assert.Equal(t, "http://h:1/api/conversations?limit=2",
		serverURL("h:1", "/api/conversations", map[string][]string{"limit": {"2"}}))
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing default path uses defaults", func(t *testing.T) {
		t.Setenv(config.EnvConfigPath, "")
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())

		cfg, path, err := loadConfig("")
		require.NoError(t, err)
		assert.Empty(t, path)
		assert.Equal(t, config.Default().Server.HTTPAddr, cfg.Server.HTTPAddr)
	})

	t.Run("missing explicit path is an error", func(t *testing.T) {
		_, _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("existing file is loaded", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  http_addr: \":4000\"\n"), 0o600))

		cfg, got, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, path, got)
		assert.Equal(t, ":4000", cfg.Server.HTTPAddr)
	})
}

func TestMissingKeys(t *testing.T) {
	p := config.ProvidersConfig{
		OpenAI: config.ProviderConfig{APIKey: "sk"},
		XAI:    config.ProviderConfig{APIKey: "xai"},
	}
	assert.Equal(t, []string{"Anthropic", "Gemini"}, missingKeys(p))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestColorHandler(t *testing.T) {
	orig := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = orig }()

	var buf bytes.Buffer
	h := &colorHandler{mu: &sync.Mutex{}, out: &buf, level: slog.LevelInfo}
	logger := slog.New(h).With("component", "dispatch")

	logger.Debug("hidden")
	logger.Info("dispatched", "model", "gpt-5")
	logger.WithGroup("req").Warn("slow", "ms", 1200)
	logger.Error("failed", slog.Group("err", slog.String("kind", "provider_error")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "INF dispatched component=dispatch model=gpt-5")
	assert.Contains(t, lines[1], "WRN slow component=dispatch req.ms=1200")
	assert.Contains(t, lines[2], "ERR failed component=dispatch err.kind=provider_error")
}

func TestSetupLogger_JSON(t *testing.T) {
	orig := slog.Default()
	defer slog.SetDefault(orig)

	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("dropped")
	logger.Warn("kept", "component", "gateway")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"component":"gateway"`)
	assert.Same(t, logger, slog.Default())
}

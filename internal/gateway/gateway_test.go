// ABOUTME: Tests for gateway construction, listener fallback and the run/shutdown lifecycle
// ABOUTME: Provider clients are replaced by recording stubs via the resolver

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/model-router/internal/capability"
	"github.com/2389/model-router/internal/config"
	"github.com/2389/model-router/internal/provider"
	"github.com/2389/model-router/internal/store"
)

type stubCall struct {
	Model    string
	Messages []provider.Message
	Opts     provider.Options
}

// stubProviders answers every model with the same canned reply.
type stubProviders struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []stubCall
}

func (s *stubProviders) resolver() capability.Resolver {
	return func(d capability.Descriptor) (provider.Client, error) {
		model := d.ID
		return provider.ClientFunc(func(ctx context.Context, messages []provider.Message, opts provider.Options) (string, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.calls = append(s.calls, stubCall{Model: model, Messages: messages, Opts: opts})
			return s.reply, s.err
		}), nil
	}
}

func (s *stubProviders) set(reply string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply, s.err = reply, err
}

func (s *stubProviders) lastCall(t *testing.T) stubCall {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.calls, "no provider calls recorded")
	return s.calls[len(s.calls)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Server.FallbackAddrs = nil
	cfg.Database.Path = store.MemoryPath
	cfg.Prompts.Path = filepath.Join(t.TempDir(), "prompts.xml")
	watch := false
	cfg.Prompts.Watch = &watch
	return cfg
}

func newTestGateway(t *testing.T) (*Gateway, *stubProviders) {
	t.Helper()
	stubs := &stubProviders{reply: "Hi there"}
	gw, err := newGateway(testConfig(t), discardLogger(), stubs.resolver())
	require.NoError(t, err)
	t.Cleanup(func() {
		gw.broadcaster.Close()
		_ = gw.usage.Close()
	})
	return gw, stubs
}

func TestNew_BindsEveryModel(t *testing.T) {
	gw, err := New(testConfig(t), discardLogger())
	require.NoError(t, err)
	defer func() { _ = gw.usage.Close() }()

	assert.ElementsMatch(t,
		[]string{"o3-pro", "gpt-5", "gpt-5-pro", "claude", "claude-opus", "claude-haiku", "grok", "gemini"},
		gw.registry.IDs())
	assert.FileExists(t, gw.prompts.Path(), "prompt file is bootstrapped")
}

func TestNew_ResolverFailure(t *testing.T) {
	failing := func(d capability.Descriptor) (provider.Client, error) {
		return nil, errors.New("no credentials")
	}
	_, err := newGateway(testConfig(t), discardLogger(), failing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "building model registry")
}

func TestNew_BadDatabasePath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(blocker, "usage.db")
	_, err := newGateway(cfg, discardLogger(), (&stubProviders{}).resolver())
	require.Error(t, err)
}

func TestListenWithFallback(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	t.Run("primary free", func(t *testing.T) {
		ln, err := listenWithFallback([]string{"127.0.0.1:0"}, discardLogger())
		require.NoError(t, err)
		ln.Close()
	})

	t.Run("primary busy uses fallback", func(t *testing.T) {
		ln, err := listenWithFallback([]string{busy.Addr().String(), "127.0.0.1:0"}, discardLogger())
		require.NoError(t, err)
		defer ln.Close()
		assert.NotEqual(t, busy.Addr().String(), ln.Addr().String())
	})

	t.Run("all busy", func(t *testing.T) {
		_, err := listenWithFallback([]string{busy.Addr().String(), busy.Addr().String()}, discardLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), busy.Addr().String())
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := listenWithFallback([]string{"", ""}, discardLogger())
		require.Error(t, err)
	})
}

func TestRun_ServesUntilCanceled(t *testing.T) {
	gw, _ := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	require.Eventually(t, func() bool { return gw.Addr() != "" }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + gw.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig(t)
	cfg.Server.HTTPAddr = busy.Addr().String()
	gw, err := newGateway(cfg, discardLogger(), (&stubProviders{}).resolver())
	require.NoError(t, err)

	err = gw.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listening on HTTP address")
}

func TestRun_WithPromptWatcher(t *testing.T) {
	cfg := testConfig(t)
	cfg.Prompts.Watch = nil
	gw, err := newGateway(cfg, discardLogger(), (&stubProviders{}).resolver())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()
	require.Eventually(t, func() bool { return gw.Addr() != "" }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")
	_, err := resolveTailscaleAuthKey("")
	assert.Error(t, err)

	key, err := resolveTailscaleAuthKey("tskey-config")
	require.NoError(t, err)
	assert.Equal(t, "tskey-config", key)

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err = resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/router")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/router", dir)

	dir, err = resolveTailscaleStateDir("")
	require.NoError(t, err)
	assert.Contains(t, dir, filepath.Join("model-router", "tailscale"))
}

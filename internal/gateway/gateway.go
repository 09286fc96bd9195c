// ABOUTME: Gateway orchestrator that wires the registry, stores, dispatcher and HTTP server
// ABOUTME: Manages listener setup (TCP with fallback or Tailscale) and the run/shutdown lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"tailscale.com/tsnet"

	"github.com/2389/model-router/internal/capability"
	"github.com/2389/model-router/internal/config"
	"github.com/2389/model-router/internal/conversation"
	"github.com/2389/model-router/internal/dashboard"
	"github.com/2389/model-router/internal/dispatch"
	"github.com/2389/model-router/internal/prompts"
	"github.com/2389/model-router/internal/store"
)

// shutdownTimeout bounds graceful HTTP shutdown once Run's context ends.
const shutdownTimeout = 5 * time.Second

// Gateway owns every long-lived model-router component.
type Gateway struct {
	config        *config.Config
	registry      *capability.Registry
	conversations *conversation.Store
	broadcaster   *conversation.EventBroadcaster
	dispatcher    *dispatch.Dispatcher
	prompts       *prompts.Store
	usage         store.UsageStore
	janitor       *conversation.Janitor
	httpServer    *http.Server
	logger        *slog.Logger
	startedAt     time.Time

	newTailnetNode func(*tsnet.Server) tailnetNode
	tailnet        tailnetNode // set once the tailnet listener is up

	mu   sync.Mutex
	addr string // bound HTTP address, set once Run is listening
}

// New builds a Gateway whose models are bound to real provider clients
// configured from cfg.Providers.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return newGateway(cfg, logger, NewResolver(cfg.Providers, logger))
}

func newGateway(cfg *config.Config, logger *slog.Logger, resolve capability.Resolver) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := capability.Bind(capability.DefaultTable(), resolve)
	if err != nil {
		return nil, fmt.Errorf("building model registry: %w", err)
	}

	usage, err := store.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening usage ledger: %w", err)
	}

	tmpl, err := prompts.Open(cfg.Prompts.Path, logger)
	if err != nil {
		_ = usage.Close()
		return nil, fmt.Errorf("loading prompts: %w", err)
	}

	broadcaster := conversation.NewEventBroadcaster(logger)
	conversations := conversation.NewStore(conversation.StoreConfig{
		Models:   registry,
		Notifier: broadcaster,
		Shards:   cfg.Conversations.Shards,
		Logger:   logger,
	})

	janitor, err := conversation.NewJanitor(conversations, cfg.Conversations.Retention, cfg.Conversations.EvictionSchedule, logger)
	if err != nil {
		_ = usage.Close()
		broadcaster.Close()
		return nil, fmt.Errorf("creating janitor: %w", err)
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Registry:       registry,
		Store:          conversations,
		Templates:      tmpl,
		Usage:          usage,
		RequestTimeout: cfg.Dispatch.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		_ = usage.Close()
		broadcaster.Close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	dash, err := dashboard.New(dashboard.Config{
		Conversations: conversations,
		Models:        registry,
		Usage:         usage,
		EventsPath:    "/api/events",
		Logger:        logger,
	})
	if err != nil {
		_ = usage.Close()
		broadcaster.Close()
		return nil, fmt.Errorf("creating dashboard: %w", err)
	}

	gw := &Gateway{
		config:        cfg,
		registry:      registry,
		conversations: conversations,
		broadcaster:   broadcaster,
		dispatcher:    dispatcher,
		prompts:       tmpl,
		usage:         usage,
		janitor:       janitor,
		logger:        logger.With("component", "gateway"),
		startedAt:     time.Now(),

		newTailnetNode: newTSNetNode,
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)
	dash.RegisterRoutes(mux)

	gw.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the HTTP handler serving the API and dashboard.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Addr returns the address the HTTP server is bound to, or "" before Run
// has started listening.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addr
}

// Run starts the HTTP server, the eviction janitor and the prompt watcher, and
// blocks until ctx is canceled or one of them fails. Returns nil on graceful
// shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		g.closeComponents()
		return err
	}

	g.mu.Lock()
	g.addr = ln.Addr().String()
	g.mu.Unlock()

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	grp.Go(func() error {
		return g.janitor.Run(gctx)
	})

	if g.config.Prompts.WatchEnabled() {
		grp.Go(func() error {
			if err := g.prompts.Watch(gctx); err != nil {
				g.logger.Warn("prompt watcher stopped", "error", err)
			}
			return nil
		})
	}

	grp.Go(func() error {
		<-gctx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		return g.gracefulShutdown()
	})

	return grp.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The Run context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server and releases resources. Open SSE
// streams end when the broadcaster closes their channels.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	g.broadcaster.Close()
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tailnet != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tailnet.Close())
	}
	errs = appendCloseError(errs, "usage store close", g.usage.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// closeComponents releases resources when Run fails before serving.
func (g *Gateway) closeComponents() {
	g.broadcaster.Close()
	if err := g.usage.Close(); err != nil {
		g.logger.Warn("closing usage store", "error", err)
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// setupListener creates the HTTP listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		return g.setupTailscaleListener(ctx)
	}
	addrs := append([]string{g.config.Server.HTTPAddr}, g.config.Server.FallbackAddrs...)
	return listenWithFallback(addrs, g.logger)
}

// listenWithFallback binds the first address in addrs that is free.
func listenWithFallback(addrs []string, logger *slog.Logger) (net.Listener, error) {
	var errs []error
	for i, addr := range addrs {
		if addr == "" {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			if i > 0 {
				logger.Warn("primary address unavailable, using fallback", "addr", addr, "primary", addrs[0])
			}
			return ln, nil
		}
		logger.Debug("address unavailable", "addr", addr, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
	}
	if len(errs) == 0 {
		return nil, errors.New("no HTTP address configured")
	}
	return nil, fmt.Errorf("listening on HTTP address: %w", errors.Join(errs...))
}

// Package app assembles the voxwire gateway from its parts: the key/value
// store, session store, semantic cache, provider pools, the voice WebSocket
// surface, the admin API, and the background maintenance loops.
//
// main constructs the providers and hands them to [New]; the App owns
// everything downstream of them and tears it down in order on [App.Shutdown].
package app

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

	"github.com/voxwire/voxwire/internal/admin"
	"github.com/voxwire/voxwire/internal/auth"
	"github.com/voxwire/voxwire/internal/cache"
	"github.com/voxwire/voxwire/internal/config"
	"github.com/voxwire/voxwire/internal/gateway"
	"github.com/voxwire/voxwire/internal/health"
	"github.com/voxwire/voxwire/internal/kv"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/orchestrator"
	"github.com/voxwire/voxwire/internal/resilience"
	"github.com/voxwire/voxwire/internal/searchintent"
	"github.com/voxwire/voxwire/internal/session"
	"github.com/voxwire/voxwire/internal/tasks"
	"github.com/voxwire/voxwire/pkg/memory"
	"github.com/voxwire/voxwire/pkg/memory/postgres"
	"github.com/voxwire/voxwire/pkg/provider/embeddings"
	"github.com/voxwire/voxwire/pkg/provider/llm"
)

// cacheWarmTimeout bounds the embedding calls made while preloading the
// semantic cache at startup.
const cacheWarmTimeout = 30 * time.Second

// Providers carries the provider pools main assembled from configuration.
// Any pool may be nil; the pipeline degrades accordingly (no Search pool
// means no web grounding, no Embeddings provider means no semantic cache).
type Providers struct {
	STT        *resilience.STTManager
	LLM        *resilience.LLMManager
	TTS        *resilience.TTSManager
	Search     *resilience.SearchManager
	Embeddings embeddings.Provider
}

// App is the assembled voxwire gateway.
type App struct {
	cfg       *config.Config
	providers *Providers

	kv        kv.Store
	sessions  *session.Store
	cache     *cache.SemanticCache
	issuer    *auth.Issuer
	collector *observe.Collector
	metrics   *observe.Metrics
	memory    memory.Store
	detector  *searchintent.Detector
	cleaner   *tasks.Cleaner
	gateway   *gateway.Handler
	admin     *admin.Server
	server    *http.Server

	mu       sync.Mutex
	listener net.Listener

	// closers run in reverse registration order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option injects a pre-built component, primarily for tests.
type Option func(*App)

// WithKVStore replaces the Redis/in-memory store built from configuration.
func WithKVStore(store kv.Store) Option {
	return func(a *App) { a.kv = store }
}

// WithMemoryStore replaces the long-term conversation store built from
// configuration.
func WithMemoryStore(store memory.Store) Option {
	return func(a *App) { a.memory = store }
}

// WithMetrics replaces the OTel instrument set. When set, New skips global
// OTel provider initialisation.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCollector replaces the per-turn latency collector.
func WithCollector(c *observe.Collector) Option {
	return func(a *App) { a.collector = c }
}

// New wires the application. The context bounds connection attempts to
// external stores; it is not retained.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if providers == nil {
		providers = &Providers{}
	}

	a := &App{cfg: cfg, providers: providers}
	for _, opt := range opts {
		opt(a)
	}

	// ── 1. Key/value store ────────────────────────────────────────────────────
	// Redis when configured and reachable, in-process memory otherwise.
	if a.kv == nil {
		a.kv = kv.Connect(ctx, cfg.Stores.RedisURL)
		a.closers = append(a.closers, a.kv.Close)
	}

	// ── 2. Session store ──────────────────────────────────────────────────────
	a.sessions = session.NewStore(a.kv, time.Duration(cfg.Session.TimeoutSeconds)*time.Second)

	// ── 3. Telemetry ──────────────────────────────────────────────────────────
	// Global OTel providers with a Prometheus bridge, plus the in-process
	// latency collector behind GET /metrics.
	if a.metrics == nil {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName: "voxwire",
		})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.metrics = observe.DefaultMetrics()
		a.closers = append(a.closers, func() error {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(flushCtx)
		})
	}
	if a.collector == nil {
		a.collector = observe.NewCollector()
	}

	if providers.STT != nil {
		providers.STT.SetObserver(a.metrics)
	}
	if providers.LLM != nil {
		providers.LLM.SetObserver(a.metrics)
	}
	if providers.TTS != nil {
		providers.TTS.SetObserver(a.metrics)
	}
	if providers.Search != nil {
		providers.Search.SetObserver(a.metrics)
	}

	// ── 4. Token issuer ───────────────────────────────────────────────────────
	if cfg.Auth.JWTSecret == "" {
		slog.Warn("auth.jwt_secret is empty; tokens are signed with an empty key")
	}
	a.issuer = auth.NewIssuer(cfg.Auth.JWTSecret,
		auth.WithValidity(time.Duration(cfg.Auth.TokenValiditySeconds)*time.Second))

	// ── 5. Semantic cache ─────────────────────────────────────────────────────
	if providers.Embeddings != nil {
		a.cache = cache.New(a.kv, providers.Embeddings,
			cache.WithThreshold(cfg.Cache.SimilarityThreshold),
			cache.WithDefaultTTL(time.Duration(cfg.Cache.TTLDefault)*time.Second),
		)
	} else {
		slog.Info("no embeddings provider configured; semantic cache disabled")
	}

	// ── 6. Search-intent detector ─────────────────────────────────────────────
	// Runs its classification prompt through the LLM pool so detector calls
	// fall back across providers like any other completion.
	if providers.LLM != nil {
		a.detector = searchintent.New(func(ctx context.Context, req llm.Request) (string, error) {
			return resilience.Execute(ctx, providers.LLM, func(ctx context.Context, p llm.Provider) (string, error) {
				return p.Complete(ctx, req)
			})
		})
	}

	// ── 7. Long-term memory ───────────────────────────────────────────────────
	// Best-effort: an unreachable database disables cross-session recall but
	// never blocks startup.
	if a.memory == nil && cfg.Stores.DatabaseURL != "" {
		store, err := postgres.NewStore(ctx, cfg.Stores.DatabaseURL, cfg.Stores.EmbeddingDimensions)
		if err != nil {
			slog.Warn("long-term memory unavailable", "err", err)
		} else {
			a.memory = store
			a.closers = append(a.closers, func() error {
				store.Close()
				return nil
			})
		}
	}

	// ── 8. Background maintenance ─────────────────────────────────────────────
	a.cleaner = tasks.NewCleaner(a.sessions, tasks.WithKVStore(a.kv))

	// ── 9. Voice gateway ──────────────────────────────────────────────────────
	base := orchestrator.Config{
		STT:        providers.STT,
		LLM:        providers.LLM,
		TTS:        providers.TTS,
		Search:     providers.Search,
		Cache:      a.cache,
		Detector:   a.detector,
		Sessions:   a.sessions,
		Memory:     a.memory,
		Collector:  a.collector,
		Metrics:    a.metrics,
		SampleRate: cfg.Audio.SampleRate,
	}
	a.gateway = gateway.New(a.sessions, a.issuer, base,
		gateway.WithMaxConcurrent(cfg.Session.MaxConcurrent),
		gateway.WithMetrics(a.metrics),
		gateway.WithOriginPatterns(cfg.Server.CORSOrigins),
	)

	// ── 10. Admin surface ─────────────────────────────────────────────────────
	kvChecker := health.Checker{
		Name:  a.kv.Mode(),
		Check: a.kv.Ping,
	}
	adminOpts := []admin.Option{
		admin.WithManagers(a.managerProbes()...),
		admin.WithCheckers(kvChecker),
		admin.WithCORSOrigins(cfg.Server.CORSOrigins),
		admin.WithActiveConnections(a.gateway.ActiveConnections),
	}
	if a.cache != nil {
		adminOpts = append(adminOpts, admin.WithCacheStats(a.cache.Stats))
	}
	a.admin = admin.New(a.sessions, a.collector, a.issuer, adminOpts...)

	// ── 11. HTTP server ───────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.Handle("GET /voice/{session_id}", a.gateway)
	a.admin.Register(mux)
	health.New(kvChecker).Register(mux)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// managerProbes adapts the configured pools for /health reporting.
func (a *App) managerProbes() []admin.ManagerProbe {
	var probes []admin.ManagerProbe
	if a.providers.STT != nil {
		probes = append(probes, admin.Probe(a.providers.STT))
	}
	if a.providers.LLM != nil {
		probes = append(probes, admin.Probe(a.providers.LLM))
	}
	if a.providers.TTS != nil {
		probes = append(probes, admin.Probe(a.providers.TTS))
	}
	if a.providers.Search != nil {
		probes = append(probes, admin.Probe(a.providers.Search))
	}
	return probes
}

// Handler returns the full HTTP handler, for tests that serve the app
// through httptest instead of a real listener.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Sessions returns the session store.
func (a *App) Sessions() *session.Store { return a.sessions }

// Addr returns the bound listen address once Run has opened its listener,
// or the configured address before that.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.cfg.Server.ListenAddr
}

// Run serves until ctx is cancelled or the server fails. The returned error
// is ctx's cause on a clean signal-driven stop, so callers typically treat
// [context.Canceled] as success.
func (a *App) Run(ctx context.Context) error {
	// Preload the canonical greetings so a cold deployment answers its first
	// "Hello" from cache.
	if a.cache != nil {
		warmCtx, cancel := context.WithTimeout(ctx, cacheWarmTimeout)
		a.cache.Warm(warmCtx)
		cancel()
	}

	a.cleaner.Start(ctx)

	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()

	slog.Info("voxwire listening",
		"addr", ln.Addr().String(),
		"tls", a.cfg.Server.TLS != nil,
		"kv_mode", a.kv.Mode(),
		"long_term_memory", a.memory != nil,
		"semantic_cache", a.cache != nil,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		// Unblock Serve; the ordered teardown happens in Shutdown.
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(stopCtx)
		return ctx.Err()
	})
	return g.Wait()
}

// Shutdown stops the server and closes every owned component in order.
// Safe to call more than once; later calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: http shutdown: %w", err))
		}
		a.cleaner.Stop()

		for i := len(a.closers) - 1; i >= 0; i-- {
			if ctx.Err() != nil {
				errs = append(errs, fmt.Errorf("app: shutdown deadline exceeded: %w", ctx.Err()))
				return
			}
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

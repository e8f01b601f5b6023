// Command voxwire runs the real-time voice assistant gateway.
//
// Configuration comes from a YAML file (default config.yaml) overlaid with
// environment variables; a .env file in the working directory is loaded
// first. See internal/config for the schema.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voxwire/voxwire/internal/app"
	"github.com/voxwire/voxwire/internal/config"
	"github.com/voxwire/voxwire/internal/resilience"
	"github.com/voxwire/voxwire/pkg/provider/embeddings"
	embeddingslocal "github.com/voxwire/voxwire/pkg/provider/embeddings/local"
	embeddingsollama "github.com/voxwire/voxwire/pkg/provider/embeddings/ollama"
	embeddingsopenai "github.com/voxwire/voxwire/pkg/provider/embeddings/openai"
	"github.com/voxwire/voxwire/pkg/provider/llm"
	"github.com/voxwire/voxwire/pkg/provider/llm/groq"
	llmopenai "github.com/voxwire/voxwire/pkg/provider/llm/openai"
	"github.com/voxwire/voxwire/pkg/provider/search"
	"github.com/voxwire/voxwire/pkg/provider/search/tavily"
	"github.com/voxwire/voxwire/pkg/provider/stt"
	"github.com/voxwire/voxwire/pkg/provider/stt/assemblyai"
	"github.com/voxwire/voxwire/pkg/provider/stt/deepgram"
	"github.com/voxwire/voxwire/pkg/provider/tts"
	"github.com/voxwire/voxwire/pkg/provider/tts/cartesia"
	ttsopenai "github.com/voxwire/voxwire/pkg/provider/tts/openai"
	"github.com/voxwire/voxwire/pkg/provider/tts/polly"
)

// shutdownGrace is how long in-flight turns get to finish after a signal.
const shutdownGrace = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; missing files are fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "config file %q not found, starting with defaults; "+
			"set -config or create it to configure providers\n", *configPath)
		cfg = config.Default()
	case err != nil:
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}
	config.ApplyEnv(cfg)

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("voxwire starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"environment", cfg.Server.Environment,
	)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("provider wiring failed", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("startup failed", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("assemblyai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []assemblyai.Option
		if entry.BaseURL != "" {
			opts = append(opts, assemblyai.WithBaseURL(entry.BaseURL))
		}
		return assemblyai.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("groq", func(entry config.ProviderEntry) (llm.Provider, error) {
		return groq.New(entry.APIKey, entry.Model)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("cartesia", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []cartesia.Option
		if entry.Model != "" {
			opts = append(opts, cartesia.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, cartesia.WithBaseURL(entry.BaseURL))
		}
		if voice := optString(entry.Options, "voice_id"); voice != "" {
			opts = append(opts, cartesia.WithVoice(voice))
		}
		return cartesia.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.Model != "" {
			opts = append(opts, ttsopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, ttsopenai.WithVoice(voice))
		}
		return ttsopenai.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("polly", func(entry config.ProviderEntry) (tts.Provider, error) {
		// AWS credential resolution happens once at construction; the ambient
		// chain applies when no static keys are configured.
		return polly.New(context.Background(), polly.Config{
			Region:          optString(entry.Options, "region"),
			VoiceID:         optString(entry.Options, "voice_id"),
			Engine:          optString(entry.Options, "engine"),
			AccessKeyID:     optString(entry.Options, "access_key_id"),
			SecretAccessKey: optString(entry.Options, "secret_access_key"),
		})
	})

	// ── Search ────────────────────────────────────────────────────────────────

	reg.RegisterSearch("tavily", func(entry config.ProviderEntry) (search.Provider, error) {
		var opts []tavily.Option
		if entry.BaseURL != "" {
			opts = append(opts, tavily.WithBaseURL(entry.BaseURL))
		}
		if depth := optString(entry.Options, "search_depth"); depth != "" {
			opts = append(opts, tavily.WithSearchDepth(depth))
		}
		return tavily.New(entry.APIKey, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []embeddingsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, embeddingsopenai.WithBaseURL(entry.BaseURL))
		}
		return embeddingsopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return embeddingsollama.New(entry.BaseURL, entry.Model)
	})

	reg.RegisterEmbeddings("local", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return embeddingslocal.New(), nil
	})
}

// buildProviders instantiates every enabled provider in cfg's chains and
// assembles them into per-kind fallback pools.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	breaker := resilience.CircuitBreakerConfig{}

	if len(cfg.Providers.STT) > 0 {
		ps.STT = resilience.NewSTTManager(breaker)
		if err := fillChain(ps.STT, "stt", cfg.Providers.STT, reg.CreateSTT); err != nil {
			return nil, err
		}
	}
	if len(cfg.Providers.LLM) > 0 {
		ps.LLM = resilience.NewLLMManager(breaker)
		if err := fillChain(ps.LLM, "llm", cfg.Providers.LLM, reg.CreateLLM); err != nil {
			return nil, err
		}
	}
	if len(cfg.Providers.TTS) > 0 {
		ps.TTS = resilience.NewTTSManager(breaker)
		if err := fillChain(ps.TTS, "tts", cfg.Providers.TTS, reg.CreateTTS); err != nil {
			return nil, err
		}
	}
	if len(cfg.Providers.Search) > 0 {
		ps.Search = resilience.NewSearchManager(breaker)
		if err := fillChain(ps.Search, "search", cfg.Providers.Search, reg.CreateSearch); err != nil {
			return nil, err
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown embeddings provider — semantic cache disabled", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	return ps, nil
}

// fillChain adds every enabled entry of one chain to its pool, ordered by the
// entry's configured priority. Unregistered names are skipped with a warning;
// a registered name that fails to construct aborts startup.
func fillChain[P resilience.Provider](m *resilience.Manager[P], kind string, chain []config.ProviderEntry, create func(config.ProviderEntry) (P, error)) error {
	for _, entry := range chain {
		if !entry.IsEnabled() {
			slog.Info("provider disabled", "kind", kind, "name", entry.Name)
			continue
		}
		p, err := create(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown provider name — skipping", "kind", kind, "name", entry.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
		}
		m.Add(p, entry.Priority, true)
		slog.Info("provider created", "kind", kind, "name", entry.Name, "priority", entry.Priority)
	}
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxwire — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printChain("STT", cfg.Providers.STT)
	printChain("LLM", cfg.Providers.LLM)
	printChain("TTS", cfg.Providers.TTS)
	printChain("Search", cfg.Providers.Search)
	printRow("Embeddings", orNotConfigured(cfg.Providers.Embeddings.Name))
	if cfg.Stores.RedisURL != "" {
		printRow("Redis", "configured")
	} else {
		printRow("Redis", "(in-memory)")
	}
	if cfg.Stores.DatabaseURL != "" {
		printRow("Memory DB", "configured")
	} else {
		printRow("Memory DB", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printChain(kind string, chain []config.ProviderEntry) {
	names := make([]string, 0, len(chain))
	for _, entry := range chain {
		if entry.IsEnabled() {
			names = append(names, entry.Name)
		}
	}
	value := "(not configured)"
	if len(names) > 0 {
		value = names[0]
		for _, n := range names[1:] {
			value += " → " + n
		}
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-13s : %-19s ║\n", label, value)
}

func orNotConfigured(name string) string {
	if name == "" {
		return "(not configured)"
	}
	return name
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

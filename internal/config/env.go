package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// providerKeyEnv maps provider names to the environment variable carrying
// their API key. OpenAI covers the llm, tts and embeddings adapters alike.
var providerKeyEnv = map[string]string{
	"deepgram":   "DEEPGRAM_API_KEY",
	"assemblyai": "ASSEMBLYAI_API_KEY",
	"groq":       "GROQ_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"cartesia":   "CARTESIA_API_KEY",
	"tavily":     "TAVILY_API_KEY",
}

// ApplyEnv overlays environment variables onto cfg. Environment values win
// over the YAML file for secrets and deploy knobs, so the same config file
// can be shipped across environments. Malformed numeric values are logged
// and ignored.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Server.Environment = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.Server.CORSOrigins = origins
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Stores.RedisURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Stores.DatabaseURL = v
	}
	if v := os.Getenv("JWT_SECRET_KEY"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	overlayInt("SESSION_TIMEOUT_SECONDS", &cfg.Session.TimeoutSeconds)
	overlayInt("MAX_CONCURRENT_SESSIONS", &cfg.Session.MaxConcurrent)
	overlayInt("CACHE_TTL_DEFAULT", &cfg.Cache.TTLDefault)
	overlayFloat("CACHE_SIMILARITY_THRESHOLD", &cfg.Cache.SimilarityThreshold)
	overlayInt("SAMPLE_RATE", &cfg.Audio.SampleRate)
	overlayInt("CHUNK_DURATION_MS", &cfg.Audio.ChunkDurationMS)

	applyProviderKeys(cfg.Providers.STT)
	applyProviderKeys(cfg.Providers.LLM)
	applyProviderKeys(cfg.Providers.TTS)
	applyProviderKeys(cfg.Providers.Search)
	if entry := &cfg.Providers.Embeddings; entry.APIKey == "" {
		if env, ok := providerKeyEnv[entry.Name]; ok {
			entry.APIKey = os.Getenv(env)
		}
	}
}

// applyProviderKeys fills empty APIKey fields from the per-vendor environment
// variables. YAML-provided keys are left alone.
func applyProviderKeys(chain []ProviderEntry) {
	for i := range chain {
		entry := &chain[i]
		if entry.APIKey != "" {
			continue
		}
		if env, ok := providerKeyEnv[entry.Name]; ok {
			entry.APIKey = os.Getenv(env)
		}
	}
}

func overlayInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring malformed numeric environment variable", "name", name, "value", v)
		return
	}
	*dst = n
}

func overlayFloat(name string, dst *float64) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring malformed numeric environment variable", "name", name, "value", v)
		return
	}
	*dst = f
}

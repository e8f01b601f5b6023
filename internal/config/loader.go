package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"deepgram", "assemblyai"},
	"llm":        {"groq", "openai"},
	"tts":        {"cartesia", "openai", "polly"},
	"search":     {"tavily"},
	"embeddings": {"openai", "ollama", "local"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with every default applied and no providers
// configured. Used when the server starts without a config file.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued knobs with their documented defaults.
// It never overwrites explicitly set values.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "development"
	}
	if cfg.Session.TimeoutSeconds == 0 {
		cfg.Session.TimeoutSeconds = 1800
	}
	if cfg.Session.MaxConcurrent == 0 {
		cfg.Session.MaxConcurrent = 100
	}
	if cfg.Cache.TTLDefault == 0 {
		cfg.Cache.TTLDefault = 3600
	}
	if cfg.Cache.SimilarityThreshold == 0 {
		cfg.Cache.SimilarityThreshold = 0.85
	}
	if cfg.Stores.EmbeddingDimensions == 0 {
		cfg.Stores.EmbeddingDimensions = 1536
	}
	if cfg.Auth.TokenValiditySeconds == 0 {
		cfg.Auth.TokenValiditySeconds = 86400
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.ChunkDurationMS == 0 {
		cfg.Audio.ChunkDurationMS = 100
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Session.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("session.timeout_seconds %d must not be negative", cfg.Session.TimeoutSeconds))
	}
	if cfg.Session.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("session.max_concurrent %d must not be negative", cfg.Session.MaxConcurrent))
	}

	if t := cfg.Cache.SimilarityThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("cache.similarity_threshold %.2f is out of range [0, 1]", t))
	}
	if cfg.Cache.TTLDefault < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl_default %d must not be negative", cfg.Cache.TTLDefault))
	}

	if cfg.Stores.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("stores.embedding_dimensions %d must not be negative", cfg.Stores.EmbeddingDimensions))
	}

	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}

	validateChain("stt", cfg.Providers.STT, &errs)
	validateChain("llm", cfg.Providers.LLM, &errs)
	validateChain("tts", cfg.Providers.TTS, &errs)
	validateChain("search", cfg.Providers.Search, &errs)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if len(cfg.Providers.STT) == 0 || len(cfg.Providers.LLM) == 0 || len(cfg.Providers.TTS) == 0 {
		slog.Warn("stt, llm and tts provider chains are all needed for voice turns; at least one is empty",
			"stt", len(cfg.Providers.STT),
			"llm", len(cfg.Providers.LLM),
			"tts", len(cfg.Providers.TTS),
		)
	}
	if cfg.Stores.RedisURL == "" {
		slog.Warn("stores.redis_url is empty; sessions and cache will live in process memory only")
	}

	return errors.Join(errs...)
}

// validateChain checks one provider chain for empty names and duplicates.
// Unknown names only warn; a typo'd chain should not block startup of the
// working providers.
func validateChain(kind string, chain []ProviderEntry, errs *[]error) {
	seen := make(map[string]int, len(chain))
	for i, entry := range chain {
		prefix := fmt.Sprintf("providers.%s[%d]", kind, i)
		if entry.Name == "" {
			*errs = append(*errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[entry.Name]; ok {
			*errs = append(*errs, fmt.Errorf("%s.name %q is a duplicate of providers.%s[%d]", prefix, entry.Name, kind, prev))
		}
		seen[entry.Name] = i
		validateProviderName(kind, entry.Name)
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

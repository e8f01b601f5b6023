// Package config provides the configuration schema, loader, environment
// overlay, and provider registry for the voxwire gateway.
package config

// LogLevel controls log verbosity for the voxwire server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxwire.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader],
// then overlaid with environment variables via [ApplyEnv].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`
	Cache     CacheConfig     `yaml:"cache"`
	Stores    StoresConfig    `yaml:"stores"`
	Auth      AuthConfig      `yaml:"auth"`
	Audio     AudioConfig     `yaml:"audio"`
}

// ServerConfig holds network and logging settings for the voxwire server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// Environment tags telemetry and log output (e.g., "development",
	// "production").
	Environment string `yaml:"environment"`

	// CORSOrigins lists origins allowed on the admin HTTP surface.
	// Empty means same-origin only.
	CORSOrigins []string `yaml:"cors_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares the provider chains for each pipeline stage.
// Each list is ordered by [ProviderEntry.Priority]; the manager falls back
// down the chain when a provider fails.
type ProvidersConfig struct {
	STT        []ProviderEntry `yaml:"stt"`
	LLM        []ProviderEntry `yaml:"llm"`
	TTS        []ProviderEntry `yaml:"tts"`
	Search     []ProviderEntry `yaml:"search"`
	Embeddings ProviderEntry   `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. The Name field selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "deepgram", "groq", "cartesia").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Usually injected from the environment rather than the YAML file.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "llama-3.3-70b-versatile", "nova-2", "tts-1").
	Model string `yaml:"model"`

	// Priority orders the fallback chain; lower tries first.
	Priority int `yaml:"priority"`

	// Enabled gates the provider without removing its block. Nil means
	// enabled.
	Enabled *bool `yaml:"enabled"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// IsEnabled reports whether the entry participates in its fallback chain.
func (e ProviderEntry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	// TimeoutSeconds is the session idle TTL. Default 1800.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MaxConcurrent caps simultaneous WebSocket sessions. Default 100.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// CacheConfig holds semantic-cache settings.
type CacheConfig struct {
	// TTLDefault is the fallback cache entry TTL in seconds. Default 3600.
	TTLDefault int `yaml:"ttl_default"`

	// SimilarityThreshold is the minimum cosine similarity for a cache hit,
	// in (0, 1]. Default 0.85.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// StoresConfig holds external store connection strings. Both are optional;
// absence or connection failure activates in-memory fallbacks.
type StoresConfig struct {
	// RedisURL is the Redis connection URL for the KV store
	// (e.g., "redis://localhost:6379/0").
	RedisURL string `yaml:"redis_url"`

	// DatabaseURL is the PostgreSQL DSN for long-term conversation memory.
	// Empty disables long-term memory.
	DatabaseURL string `yaml:"database_url"`

	// EmbeddingDimensions is the vector dimension of the summaries column.
	// Must match the configured embeddings provider. Default 1536.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	// JWTSecret signs and validates client tokens. Rotation invalidates all
	// issued tokens. Usually injected via JWT_SECRET_KEY.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenValiditySeconds is the issued-token lifetime. Default 86400.
	TokenValiditySeconds int `yaml:"token_validity_seconds"`
}

// AudioConfig holds client audio framing parameters.
type AudioConfig struct {
	// SampleRate is the expected client capture rate in Hz. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// ChunkDurationMS is the nominal client fragment duration. Default 100.
	ChunkDurationMS int `yaml:"chunk_duration_ms"`
}

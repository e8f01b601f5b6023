package resilience

import (
	"github.com/voxwire/voxwire/pkg/provider/llm"
	"github.com/voxwire/voxwire/pkg/provider/search"
	"github.com/voxwire/voxwire/pkg/provider/stt"
	"github.com/voxwire/voxwire/pkg/provider/tts"
)

// Typed managers for the four provider families the pipeline uses. The
// aliases keep call sites free of type parameters.
type (
	STTManager    = Manager[stt.Provider]
	LLMManager    = Manager[llm.Provider]
	TTSManager    = Manager[tts.Provider]
	SearchManager = Manager[search.Provider]
)

// NewSTTManager creates an empty pool for speech-to-text providers.
func NewSTTManager(cfg CircuitBreakerConfig) *STTManager {
	return NewManager[stt.Provider]("stt", cfg)
}

// NewLLMManager creates an empty pool for language-model providers.
func NewLLMManager(cfg CircuitBreakerConfig) *LLMManager {
	return NewManager[llm.Provider]("llm", cfg)
}

// NewTTSManager creates an empty pool for text-to-speech providers.
func NewTTSManager(cfg CircuitBreakerConfig) *TTSManager {
	return NewManager[tts.Provider]("tts", cfg)
}

// NewSearchManager creates an empty pool for web-search providers.
func NewSearchManager(cfg CircuitBreakerConfig) *SearchManager {
	return NewManager[search.Provider]("search", cfg)
}

package schema

import "time"

// Prompt bounds applied before a request is dispatched.
const (
	DefaultPromptMinLen = 2
	DefaultPromptMaxLen = 4096
)

// DefaultRequestTimeout bounds non-streaming request/response waits.
const DefaultRequestTimeout = 30 * time.Second

// EngineConfig defines defaults and limits for the inline assist engine.
type EngineConfig struct {
	// RequestTimeout bounds non-streaming RPC waits. Streaming sessions
	// have no hard timeout; they end on user action or backend completion.
	RequestTimeout time.Duration
	PromptMinLen   int
	PromptMaxLen   int
	// ReferencesEnabled permits suggestions that carry code references.
	ReferencesEnabled bool
	// KeyStorePath locates the keymgmt store backing payload encryption.
	KeyStorePath string
}

// NormalizeEngineConfig applies defaults and validates the config.
func NormalizeEngineConfig(cfg EngineConfig) (EngineConfig, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.PromptMinLen <= 0 {
		cfg.PromptMinLen = DefaultPromptMinLen
	}
	if cfg.PromptMaxLen <= 0 {
		cfg.PromptMaxLen = DefaultPromptMaxLen
	}
	if cfg.PromptMaxLen < cfg.PromptMinLen {
		return EngineConfig{}, ErrInvalidConfig
	}
	return cfg, nil
}

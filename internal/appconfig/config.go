package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/inlined/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Chat          ChatConfig    `mapstructure:"chat" yaml:"chat"`
	Backend       BackendConfig `mapstructure:"backend" yaml:"backend"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ChatConfig controls the inline assist engine.
type ChatConfig struct {
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	PromptMinLen          int    `mapstructure:"prompt_min_len" yaml:"prompt_min_len"`
	PromptMaxLen          int    `mapstructure:"prompt_max_len" yaml:"prompt_max_len"`
	ReferencesEnabled     bool   `mapstructure:"references_enabled" yaml:"references_enabled"`
	KeyStorePath          string `mapstructure:"key_store_path" yaml:"key_store_path"`
}

// BackendConfig locates the assistant backend process the engine talks to
// over stdio.
type BackendConfig struct {
	Command string            `mapstructure:"command" yaml:"command"`
	Args    []string          `mapstructure:"args" yaml:"args"`
	Env     map[string]string `mapstructure:"env" yaml:"env"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	stateDir := filepath.Join(home, ".inlined", "state")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      stateDir,
		Chat: ChatConfig{
			RequestTimeoutSeconds: int(schema.DefaultRequestTimeout / time.Second),
			PromptMinLen:          schema.DefaultPromptMinLen,
			PromptMaxLen:          schema.DefaultPromptMaxLen,
			ReferencesEnabled:     false,
			KeyStorePath:          filepath.Join(stateDir, "chat", "keys.bundle"),
		},
		Backend: BackendConfig{
			Command: "assistant-backend",
			Args:    []string{},
			Env:     map[string]string{},
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".inlined", "config.yaml"), nil
}

// EngineConfig converts the chat section to the engine's runtime config.
func (c Config) EngineConfig() schema.EngineConfig {
	return schema.EngineConfig{
		RequestTimeout:    time.Duration(c.Chat.RequestTimeoutSeconds) * time.Second,
		PromptMinLen:      c.Chat.PromptMinLen,
		PromptMaxLen:      c.Chat.PromptMaxLen,
		ReferencesEnabled: c.Chat.ReferencesEnabled,
		KeyStorePath:      c.Chat.KeyStorePath,
	}
}

// Package config provides the configuration schema, loader, backend registry,
// and file watcher for the Ghostline completion engine.
package config

import (
	"time"

	"github.com/pkravets/ghostline/internal/engine"
)

// LogLevel controls log verbosity.
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

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Backends   []BackendEntry   `yaml:"backends"`
	Engine     EngineConfig     `yaml:"engine"`
	Voice      VoiceConfig      `yaml:"voice"`
	Feedback   FeedbackConfig   `yaml:"feedback"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level controls verbosity. Default: info.
	Level LogLevel `yaml:"level"`
}

// MetricsConfig holds the Prometheus scrape endpoint settings.
type MetricsConfig struct {
	// ListenAddr is the TCP address the /metrics endpoint listens on
	// (e.g., ":9090"). Leave empty to disable the endpoint.
	ListenAddr string `yaml:"listen_addr"`
}

// BackendEntry configures one completion backend. The first entry is the
// primary; subsequent entries are tried as fallbacks when the primary fails.
// The Name field selects the constructor registered in the [Registry].
type BackendEntry struct {
	// Name selects the registered backend implementation
	// (e.g., "service", "openai").
	Name string `yaml:"name"`

	// APIKey authenticates requests to the backend, if it requires one.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint.
	// Required for "service"; optional for "openai".
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the backend, where applicable.
	Model string `yaml:"model"`

	// Options holds backend-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// EngineConfig holds the suggestion engine tunables. Durations are expressed
// in milliseconds. Zero values select the engine defaults.
type EngineConfig struct {
	// DebounceMs is the quiet period after the last input event before a
	// suggestion stream opens.
	DebounceMs int `yaml:"debounce_ms"`

	// MinPrefixLen is the minimum rune count before the caret for a
	// suggestion stream to open.
	MinPrefixLen int `yaml:"min_prefix_len"`

	// FirstByteTimeoutMs bounds how long an opened stream may stay silent
	// before it is treated as failed to establish.
	FirstByteTimeoutMs int `yaml:"first_byte_timeout_ms"`

	// IdleTimeoutMs bounds the gap between tokens on a live stream.
	IdleTimeoutMs int `yaml:"idle_timeout_ms"`

	// ViewFlushIntervalMs coalesces suggestion view updates.
	ViewFlushIntervalMs int `yaml:"view_flush_interval_ms"`

	// RequestTimeoutMs bounds single-shot backend requests.
	RequestTimeoutMs int `yaml:"request_timeout_ms"`

	// Locale is the BCP 47 language tag sent with backend requests.
	Locale string `yaml:"locale"`
}

// EngineSettings converts the YAML tunables into an [engine.Config].
// Zero fields are left zero so the engine applies its own defaults.
func (e EngineConfig) EngineSettings() engine.Config {
	return engine.Config{
		Debounce:          time.Duration(e.DebounceMs) * time.Millisecond,
		MinPrefixLen:      e.MinPrefixLen,
		FirstByteTimeout:  time.Duration(e.FirstByteTimeoutMs) * time.Millisecond,
		IdleTimeout:       time.Duration(e.IdleTimeoutMs) * time.Millisecond,
		ViewFlushInterval: time.Duration(e.ViewFlushIntervalMs) * time.Millisecond,
		RequestTimeout:    time.Duration(e.RequestTimeoutMs) * time.Millisecond,
		Locale:            e.Locale,
	}
}

// VoiceConfig holds the spoken-command recognition settings.
type VoiceConfig struct {
	// PhoneticThreshold is the minimum similarity score for a phonetically
	// matched command phrase. Range (0, 1]. Zero selects the default.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// FuzzyThreshold is the minimum similarity score when no phonetic
	// overlap is found. Range (0, 1]. Zero selects the default.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`

	// Phrases registers additional trigger phrases on top of the built-ins.
	Phrases []PhraseConfig `yaml:"phrases"`
}

// PhraseConfig maps a spoken trigger phrase to a command.
type PhraseConfig struct {
	// Text is the trigger phrase (e.g., "scratch that").
	Text string `yaml:"text"`

	// Command is the command name: accept, reject, cancel_edit, submit_edit.
	Command string `yaml:"command"`
}

// FeedbackConfig holds the offline feedback spool settings.
type FeedbackConfig struct {
	// SpoolPath is the JSONL file where undelivered feedback records are
	// kept. Leave empty to discard records that fail to deliver.
	SpoolPath string `yaml:"spool_path"`
}

// ResilienceConfig holds the per-backend circuit breaker settings.
type ResilienceConfig struct {
	// MaxFailures is the number of consecutive failures before a backend's
	// breaker opens. Zero selects the default.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeoutMs is how long an open breaker waits before probing the
	// backend again. Zero selects the default.
	ResetTimeoutMs int `yaml:"reset_timeout_ms"`
}

// Package config provides the configuration schema, loader, and hot-reload
// watcher for the rift voice-response service.
package config

import (
	"log/slog"
	"time"
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

// Level maps l to a [slog.Level]. Unset and unknown values map to
// [slog.LevelInfo].
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Defaults applied by [ApplyDefaults] to zero-valued fields.
const (
	DefaultServiceName     = "rift"
	DefaultRulesTTL        = 60 * time.Second
	DefaultFetchTimeout    = 5 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerReset    = 30 * time.Second
)

// Config is the root configuration structure for rift.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Rules  RulesConfig  `yaml:"rules"`
	FX     FXConfig     `yaml:"fx"`
	Voice  VoiceConfig  `yaml:"voice"`
}

// ServerConfig holds the ops listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the ops listener (e.g., ":8080").
	// Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ServiceName is reported as service.name in metrics and traces.
	// Default: "rift".
	ServiceName string `yaml:"service_name"`
}

// RulesConfig locates the intent rule set and tunes how it is cached.
type RulesConfig struct {
	// Source is a file path, a file:// URL, or an http(s):// URL. Relative
	// paths are resolved against the directory of the config file.
	Source string `yaml:"source"`

	// TTL is how long a loaded rule set is served before it is refetched.
	TTL time.Duration `yaml:"ttl"`

	// FetchTimeout bounds one fetch from Source.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// Breaker guards Source against repeated failures.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the rule-set source.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed fetches that open the
	// breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the breaker stays open before a probe fetch.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// FXConfig selects the post-processing applied to synthesised replies.
type FXConfig struct {
	// DefaultPreset applies to replies whose rule names no preset. Empty
	// means "archive".
	DefaultPreset string `yaml:"default_preset"`
}

// VoiceConfig specifies the speech parameters passed to the TTS and STT
// collaborators.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// Language is a BCP-47 tag used for both synthesis and transcription.
	Language string `yaml:"language"`

	// Speed adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	Speed float64 `yaml:"speed"`

	// Keywords are vocabulary hints passed to the transcriber.
	Keywords []string `yaml:"keywords"`
}

// ApplyDefaults fills zero-valued durations and limits with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ServiceName == "" {
		cfg.Server.ServiceName = DefaultServiceName
	}
	if cfg.Rules.TTL == 0 {
		cfg.Rules.TTL = DefaultRulesTTL
	}
	if cfg.Rules.FetchTimeout == 0 {
		cfg.Rules.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Rules.Breaker.MaxFailures == 0 {
		cfg.Rules.Breaker.MaxFailures = DefaultBreakerFailures
	}
	if cfg.Rules.Breaker.ResetTimeout == 0 {
		cfg.Rules.Breaker.ResetTimeout = DefaultBreakerReset
	}
}

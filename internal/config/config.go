// Package config provides the configuration schema, loader, and provider
// registry for the voxpipe server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can use values like "90s" or
// "5m", which yaml.v3 does not parse into time.Duration on its own.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler via time.ParseDuration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// LogLevel controls log verbosity for the voxpipe server.
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

// Config is the root configuration structure for voxpipe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader]
// and treated as a read-only snapshot for the process lifetime.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Nudge     NudgeConfig     `yaml:"nudge"`
	Cache     CacheConfig     `yaml:"cache"`
	History   HistoryConfig   `yaml:"history"`
	Audio     AudioConfig     `yaml:"audio"`
}

// ServerConfig holds network and logging settings for the voxpipe server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each entry selects a named provider registered in the
// [Registry]; selection happens once at startup, never at runtime.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`

	// Version labels the provider configuration as a whole. It participates
	// in the result-cache fingerprint so that cached results from a previous
	// provider line-up are never served after a configuration change.
	Version string `yaml:"version"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "openai", "whisper", "elevenlabs", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. For local
	// servers (whisper-server, Ollama) this is the server address.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "whisper-1", "gpt-4o-mini", "eleven_flash_v2_5").
	Model string `yaml:"model"`

	// Voice is the default voice for TTS entries. Ignored by other kinds.
	Voice string `yaml:"voice"`
}

// NudgeConfig controls the contextual product nudge attached to replies.
type NudgeConfig struct {
	// Keywords trigger the nudge when the reply text mentions any of them
	// (case-insensitive).
	Keywords []string `yaml:"keywords"`

	// Message, Link, and DisplayText form the nudge payload sent to clients.
	Message     string `yaml:"message"`
	Link        string `yaml:"link"`
	DisplayText string `yaml:"display_text"`

	// CooldownInteractions is the minimum number of interactions that must
	// pass after a nudge fires before the next one may fire in the same
	// session. Default 2.
	CooldownInteractions int `yaml:"cooldown_interactions"`

	// FuzzyThreshold enables fuzzy keyword matching over STT-noisy text:
	// a word whose Jaro-Winkler similarity to a keyword reaches the
	// threshold counts as a match. Valid range (0.0, 1.0]; 0 disables
	// fuzzy matching (exact substring match only).
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// CacheConfig bounds the pipeline result cache. The cache always runs with
// single-flight coordination; these fields only bound retention.
type CacheConfig struct {
	// MaxEntries caps the number of retained results (LRU eviction).
	// Default 1000.
	MaxEntries int `yaml:"max_entries"`

	// TTL is how long a completed result stays servable. Default 5m.
	TTL Duration `yaml:"ttl"`
}

// HistoryConfig selects the conversation-turn store backing session
// continuity.
type HistoryConfig struct {
	// DSN is a Postgres connection string. Empty selects the in-memory store.
	DSN string `yaml:"dsn"`

	// Keep is the number of most recent turns retained per session in the
	// in-memory store. Default 40.
	Keep int `yaml:"keep"`
}

// AudioConfig tunes the external normalization tool.
type AudioConfig struct {
	// FFmpegPath is the ffmpeg binary to invoke. Default "ffmpeg" (PATH).
	FFmpegPath string `yaml:"ffmpeg_path"`

	// SampleRate is the canonical pipeline sample rate in Hz. Default 16000.
	SampleRate int `yaml:"sample_rate"`
}

// Default values applied by [Validate] when fields are zero.
const (
	DefaultCooldownInteractions = 2
	DefaultCacheMaxEntries      = 1000
	DefaultCacheTTL             = Duration(5 * time.Minute)
	DefaultHistoryKeep          = 40
	DefaultSampleRate           = 16000
	DefaultListenAddr           = ":8080"
)

package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/voxpipe/voxpipe/internal/config"
)

// minimalYAML is the smallest config that passes validation.
const minimalYAML = `
providers:
  stt:
    name: openai
  llm:
    name: openai
  tts:
    name: elevenlabs
`

func TestLoadFromReader_MinimalConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.STT.Name != "openai" {
		t.Errorf("stt name = %q; want openai", cfg.Providers.STT.Name)
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q; want %q", cfg.Server.ListenAddr, config.DefaultListenAddr)
	}
	if cfg.Nudge.CooldownInteractions != config.DefaultCooldownInteractions {
		t.Errorf("cooldown = %d; want %d", cfg.Nudge.CooldownInteractions, config.DefaultCooldownInteractions)
	}
	if cfg.Cache.MaxEntries != config.DefaultCacheMaxEntries {
		t.Errorf("cache max_entries = %d; want %d", cfg.Cache.MaxEntries, config.DefaultCacheMaxEntries)
	}
	if cfg.Cache.TTL != config.DefaultCacheTTL {
		t.Errorf("cache ttl = %s; want %s", cfg.Cache.TTL, config.DefaultCacheTTL)
	}
	if cfg.History.Keep != config.DefaultHistoryKeep {
		t.Errorf("history keep = %d; want %d", cfg.History.Keep, config.DefaultHistoryKeep)
	}
	if cfg.Audio.SampleRate != config.DefaultSampleRate {
		t.Errorf("sample_rate = %d; want %d", cfg.Audio.SampleRate, config.DefaultSampleRate)
	}
}

func TestLoadFromReader_MissingProvidersRejected(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
providers:
  stt:
    name: openai
`))
	if err == nil {
		t.Fatal("expected error for missing llm/tts providers, got nil")
	}
	if !strings.Contains(err.Error(), "providers.llm.name") {
		t.Errorf("error should mention providers.llm.name, got: %v", err)
	}
	if !strings.Contains(err.Error(), "providers.tts.name") {
		t.Errorf("error should mention providers.tts.name, got: %v", err)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + `
frobnicate: true
`))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestLoadFromReader_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + `
server:
  log_level: verbose
`))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestLoadFromReader_InvalidFuzzyThreshold(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + `
nudge:
  fuzzy_threshold: 1.5
`))
	if err == nil {
		t.Fatal("expected error for out-of-range fuzzy threshold, got nil")
	}
}

func TestLoadFromReader_CacheTTLParsed(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML + `
cache:
  ttl: 90s
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Cache.TTL.Std() != 90*time.Second {
		t.Errorf("cache ttl = %s; want 90s", cfg.Cache.TTL)
	}
}

func TestLoadFromReader_InvalidCacheTTLRejected(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + `
cache:
  ttl: soon
`))
	if err == nil {
		t.Fatal("expected error for unparseable ttl, got nil")
	}
	if !strings.Contains(err.Error(), "duration") {
		t.Errorf("error should mention duration, got: %v", err)
	}
}

func TestLoadFromReader_EmptyInputRejected(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected validation error for empty config, got nil")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()
	_, err := config.Load("testdata/does-not-exist.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// Command voxpipe is the main entry point for the voxpipe voice pipeline
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/health"
	"github.com/voxpipe/voxpipe/internal/history"
	"github.com/voxpipe/voxpipe/internal/nudge"
	"github.com/voxpipe/voxpipe/internal/observe"
	"github.com/voxpipe/voxpipe/internal/pipeline"
	"github.com/voxpipe/voxpipe/internal/server"
	"github.com/voxpipe/voxpipe/pkg/audio"
	"github.com/voxpipe/voxpipe/pkg/provider/llm"
	"github.com/voxpipe/voxpipe/pkg/provider/llm/anyllm"
	"github.com/voxpipe/voxpipe/pkg/provider/stt"
	oaistt "github.com/voxpipe/voxpipe/pkg/provider/stt/openai"
	"github.com/voxpipe/voxpipe/pkg/provider/stt/whisper"
	"github.com/voxpipe/voxpipe/pkg/provider/tts"
	"github.com/voxpipe/voxpipe/pkg/provider/tts/elevenlabs"
	oaitts "github.com/voxpipe/voxpipe/pkg/provider/tts/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxpipe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxpipe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxpipe starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	transcriber, generator, synthesizer, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── History store ─────────────────────────────────────────────────────────
	var (
		turns    history.Store
		checkers []health.Checker
	)
	if cfg.History.DSN != "" {
		pg, err := history.NewPGStore(ctx, cfg.History.DSN, cfg.History.Keep)
		if err != nil {
			slog.Error("failed to connect history store", "err", err)
			return 1
		}
		defer pg.Close()
		checkers = append(checkers, health.Checker{Name: "postgres", Check: pg.Ping})
		turns = pg
		slog.Info("history store connected", "backend", "postgres")
	} else {
		turns = history.NewMemStore(cfg.History.Keep)
		slog.Info("history store in-memory", "keep", cfg.History.Keep)
	}
	checks := health.New(checkers...)

	// ── Pipeline ──────────────────────────────────────────────────────────────
	nudges := nudge.NewEngine(nudge.Config{
		Keywords:             cfg.Nudge.Keywords,
		Message:              cfg.Nudge.Message,
		Link:                 cfg.Nudge.Link,
		DisplayText:          cfg.Nudge.DisplayText,
		CooldownInteractions: cfg.Nudge.CooldownInteractions,
		FuzzyThreshold:       cfg.Nudge.FuzzyThreshold,
	})

	normalizer := audio.NewFFmpeg(
		audio.WithBinary(cfg.Audio.FFmpegPath),
		audio.WithSampleRate(cfg.Audio.SampleRate),
	)

	pipe := pipeline.New(normalizer, transcriber, generator, synthesizer,
		pipeline.WithCache(pipeline.NewCache(cfg.Cache.MaxEntries, cfg.Cache.TTL.Std())),
		pipeline.WithNudge(nudges),
		pipeline.WithHistory(turns),
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(logger),
		pipeline.WithProviderVersion(cfg.Providers.Version),
		pipeline.WithDefaultVoice(cfg.Providers.TTS.Voice),
	)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := server.New(cfg, reg, pipe, transcriber, generator, synthesizer,
		server.WithNudge(nudges),
		server.WithHistory(turns),
		server.WithHealth(checks),
		server.WithMetrics(metrics),
		server.WithLogger(logger),
	)

	printStartupSummary(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("serve error", "err", err)
			return 1
		}
		return 0
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the adapter
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// All any-llm-go backends share the same pattern: optional APIKey +
	// optional BaseURL (ollama and the llama variants are local servers and
	// only use BaseURL).
	for _, backend := range anyllm.BackendNames() {
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Generator, error) {
			var libOpts []anyllmlib.Option
			if entry.APIKey != "" {
				libOpts = append(libOpts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				libOpts = append(libOpts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, libOpts)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []oaistt.Option
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(entry.Voice))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []oaitts.Option
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Voice != "" {
			opts = append(opts, oaitts.WithDefaultVoice(entry.Voice))
		}
		return oaitts.New(entry.APIKey, opts...)
	})
}

// buildProviders instantiates the three providers named in cfg.
func buildProviders(cfg *config.Config, reg *config.Registry) (stt.Transcriber, llm.Generator, tts.Synthesizer, error) {
	transcriber, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	generator, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	synthesizer, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	return transcriber, generator, synthesizer, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxpipe — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	if cfg.History.DSN != "" {
		fmt.Printf("║  History         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  History         : %-19s ║\n", "in-memory")
	}
	fmt.Printf("║  Cache entries   : %-19d ║\n", cfg.Cache.MaxEntries)
	fmt.Printf("║  Nudge keywords  : %-19d ║\n", len(cfg.Nudge.Keywords))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

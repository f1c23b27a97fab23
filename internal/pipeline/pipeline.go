// Package pipeline orchestrates the batch voice query flow: audio
// normalization, speech-to-text, LLM generation, nudge evaluation and
// text-to-speech, with a single-flight result cache in front of the
// provider stages.
//
// The pipeline composes providers through their interfaces
// ([stt.Transcriber], [llm.Generator], [tts.Synthesizer]) so any registered
// adapter, including the mock packages, can drive it. All provider calls
// inherit the caller's context; cancelling it aborts the in-flight stage.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxpipe/voxpipe/internal/history"
	"github.com/voxpipe/voxpipe/internal/nudge"
	"github.com/voxpipe/voxpipe/internal/observe"
	"github.com/voxpipe/voxpipe/internal/resultcache"
	"github.com/voxpipe/voxpipe/pkg/audio"
	"github.com/voxpipe/voxpipe/pkg/provider/llm"
	"github.com/voxpipe/voxpipe/pkg/provider/stt"
	"github.com/voxpipe/voxpipe/pkg/provider/tts"
)

// historyContextTurns bounds how many recent turns are fed to the LLM as
// conversation context.
const historyContextTurns = 10

// cached is the portion of a pipeline run that is identical for identical
// inputs and therefore safe to share across sessions. Request id, nudge and
// cache-hit flag are stamped per invocation and never stored.
type cached struct {
	transcript string
	confidence float64
	text       string
	audio      []byte
	timings    Timings
}

// Pipeline runs batch voice queries end to end. Safe for concurrent use.
type Pipeline struct {
	normalizer audio.Normalizer
	transcribe stt.Transcriber
	generate   llm.Generator
	synthesize tts.Synthesizer

	cache   *resultcache.Cache[cached]
	nudges  *nudge.Engine
	turns   history.Store
	metrics *observe.Metrics
	log     *slog.Logger

	// providerVersion is folded into cache fingerprints so a provider
	// configuration change invalidates prior entries.
	providerVersion string
	voice           string
}

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithCache sets the result cache. Without one the pipeline computes every
// request.
func WithCache(c *resultcache.Cache[cached]) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithNudge sets the nudge engine. Without one no nudges are evaluated.
func WithNudge(e *nudge.Engine) Option {
	return func(p *Pipeline) { p.nudges = e }
}

// WithHistory sets the conversation history store used for LLM context.
func WithHistory(s history.Store) Option {
	return func(p *Pipeline) { p.turns = s }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithProviderVersion sets the provider configuration version folded into
// cache fingerprints.
func WithProviderVersion(v string) Option {
	return func(p *Pipeline) { p.providerVersion = v }
}

// WithDefaultVoice sets the synthesis voice used when a request carries none.
func WithDefaultVoice(voice string) Option {
	return func(p *Pipeline) { p.voice = voice }
}

// NewCache creates a result cache sized for this pipeline's value type.
func NewCache(maxEntries int, ttl time.Duration) *resultcache.Cache[cached] {
	return resultcache.New[cached](maxEntries, ttl)
}

// New creates a Pipeline wired to the given normalizer and providers.
func New(n audio.Normalizer, s stt.Transcriber, g llm.Generator, t tts.Synthesizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		normalizer: n,
		transcribe: s,
		generate:   g,
		synthesize: t,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p
}

// Run executes one batch voice query. The returned error, when non-nil, is a
// [*StageError] wrapping the underlying failure; provider sentinels remain
// matchable through errors.Is. On error the Result is zero except for its
// RequestID.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "anon"
	}
	res := Result{RequestID: newRequestID(sessionID)}

	log := p.log.With("request_id", res.RequestID, "session_id", sessionID)

	pcm, err := p.normalizer.Normalize(ctx, req.Audio)
	if err != nil {
		p.finish(ctx, start, "error", false)
		return res, stageErr(StageNormalize, err)
	}

	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}

	compute := func(ctx context.Context) (cached, error) {
		return p.compute(ctx, pcm, req.Lang, voice, sessionID)
	}

	var (
		payload cached
		hit     bool
	)
	if p.cache == nil || req.NoCache {
		payload, err = compute(ctx)
	} else {
		key := Fingerprint(pcm, req.Lang, voice, p.providerVersion)
		payload, hit, err = p.cache.GetOrCompute(ctx, key, compute)
		if err == nil {
			p.countCache(ctx, hit)
		}
	}
	if err != nil {
		p.finish(ctx, start, "error", hit)
		return res, err
	}

	res.Transcript = payload.transcript
	res.Confidence = payload.confidence
	res.Text = payload.text
	res.Audio = payload.audio
	res.Timings = payload.timings
	res.CacheHit = hit

	// A cache hit reports the timings of the computation that produced the
	// entry, not this call's wall time.
	if !hit {
		res.Timings.TotalMs = float64(time.Since(start)) / float64(time.Millisecond)
	}

	// Nudges and history are per-session concerns: they run on every
	// interaction, cached payload or not.
	if p.nudges != nil {
		if res.Nudge = p.nudges.Evaluate(sessionID, res.Transcript); res.Nudge != nil {
			p.metrics.NudgesFired.Add(ctx, 1)
			log.Info("nudge attached", "message", res.Nudge.Message)
		}
	}
	p.record(ctx, sessionID, res.Transcript, res.Text)

	p.finish(ctx, start, "ok", hit)
	log.Debug("pipeline completed",
		"cache_hit", hit,
		"transcript_len", len(res.Transcript),
		"audio_bytes", len(res.Audio),
		"total_ms", res.Timings.TotalMs)
	return res, nil
}

// compute runs the provider stages on normalized audio. It is the unit of
// work deduplicated by the result cache.
func (p *Pipeline) compute(ctx context.Context, pcm []byte, lang, voice, sessionID string) (cached, error) {
	var out cached

	sttStart := time.Now()
	tr, err := p.transcribe.Transcribe(ctx, pcm, lang)
	out.timings.STTMs = millis(sttStart)
	p.metrics.RecordStage(ctx, StageSTT, time.Since(sttStart).Seconds(), err != nil)
	if err != nil {
		return cached{}, stageErr(StageSTT, err)
	}
	out.transcript = tr.Text
	out.confidence = tr.Confidence

	llmStart := time.Now()
	resp, err := p.generate.Generate(ctx, llm.Request{
		Prompt:  tr.Text,
		History: p.context(ctx, sessionID),
	})
	out.timings.LLMMs = millis(llmStart)
	p.metrics.RecordStage(ctx, StageLLM, time.Since(llmStart).Seconds(), err != nil)
	if err != nil {
		return cached{}, stageErr(StageLLM, err)
	}
	out.text = strings.TrimSpace(resp.Text)

	ttsStart := time.Now()
	out.audio, err = p.synthesize.Synthesize(ctx, out.text, voice)
	out.timings.TTSMs = millis(ttsStart)
	p.metrics.RecordStage(ctx, StageTTS, time.Since(ttsStart).Seconds(), err != nil)
	if err != nil {
		return cached{}, stageErr(StageTTS, err)
	}

	out.timings.TotalMs = out.timings.STTMs + out.timings.LLMMs + out.timings.TTSMs
	return out, nil
}

// context loads recent conversation turns as LLM messages, oldest first.
func (p *Pipeline) context(ctx context.Context, sessionID string) []llm.Message {
	if p.turns == nil {
		return nil
	}
	turns, err := p.turns.RecentTurns(ctx, sessionID, historyContextTurns)
	if err != nil {
		p.log.Warn("history lookup failed", "session_id", sessionID, "error", err)
		return nil
	}
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Text})
	}
	return msgs
}

// record appends the user and assistant turns of a completed interaction.
func (p *Pipeline) record(ctx context.Context, sessionID, transcript, reply string) {
	if p.turns == nil {
		return
	}
	now := time.Now()
	if err := p.turns.AppendTurn(ctx, sessionID, history.Turn{Role: "user", Text: transcript, At: now}); err != nil {
		p.log.Warn("history append failed", "session_id", sessionID, "error", err)
		return
	}
	if err := p.turns.AppendTurn(ctx, sessionID, history.Turn{Role: "assistant", Text: reply, At: now}); err != nil {
		p.log.Warn("history append failed", "session_id", sessionID, "error", err)
	}
}

// CacheStats exposes the result cache's counters, zero when uncached.
func (p *Pipeline) CacheStats() resultcache.Stats {
	if p.cache == nil {
		return resultcache.Stats{}
	}
	return p.cache.Stats()
}

// ClearCache evicts all cache entries while preserving counters.
func (p *Pipeline) ClearCache() {
	if p.cache != nil {
		p.cache.Clear()
	}
}

// CleanupCache sweeps expired cache entries, returning how many it removed.
func (p *Pipeline) CleanupCache() int {
	if p.cache == nil {
		return 0
	}
	return p.cache.Cleanup()
}

func (p *Pipeline) countCache(ctx context.Context, hit bool) {
	if hit {
		p.metrics.CacheHits.Add(ctx, 1)
	} else {
		p.metrics.CacheMisses.Add(ctx, 1)
	}
}

func (p *Pipeline) finish(ctx context.Context, start time.Time, status string, hit bool) {
	p.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	p.metrics.PipelineRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.Bool("cache_hit", hit),
	))
}

func millis(since time.Time) float64 {
	return float64(time.Since(since)) / float64(time.Millisecond)
}

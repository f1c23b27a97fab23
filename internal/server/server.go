// Package server exposes the voice pipeline over HTTP: the batch query
// endpoint, the realtime WebSocket endpoint, cache and provider inspection,
// health probes and the Prometheus scrape endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/health"
	"github.com/voxpipe/voxpipe/internal/history"
	"github.com/voxpipe/voxpipe/internal/nudge"
	"github.com/voxpipe/voxpipe/internal/observe"
	"github.com/voxpipe/voxpipe/internal/pipeline"
	"github.com/voxpipe/voxpipe/pkg/provider/llm"
	"github.com/voxpipe/voxpipe/pkg/provider/stt"
	"github.com/voxpipe/voxpipe/pkg/provider/tts"
)

// maxUploadBytes caps batch audio uploads (about 25 MiB, matching common
// provider limits).
const maxUploadBytes = 25 << 20

// Server serves the voxpipe HTTP API.
type Server struct {
	pipe *pipeline.Pipeline

	// Realtime sessions talk to the providers directly, bypassing the
	// batch result cache.
	transcribe stt.Transcriber
	generate   llm.Generator
	synthesize tts.Synthesizer

	cfg      *config.Config
	registry *config.Registry
	nudges   *nudge.Engine
	turns    history.Store
	checks   *health.Handler
	metrics  *observe.Metrics
	log      *slog.Logger

	http *http.Server
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithNudge sets the nudge engine passed to realtime sessions.
func WithNudge(e *nudge.Engine) Option {
	return func(s *Server) { s.nudges = e }
}

// WithHistory sets the history store passed to realtime sessions.
func WithHistory(st history.Store) Option {
	return func(s *Server) { s.turns = st }
}

// WithHealth sets the health handler mounted at /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.checks = h }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a Server routing requests to the given pipeline and providers.
func New(cfg *config.Config, reg *config.Registry, pipe *pipeline.Pipeline,
	t stt.Transcriber, g llm.Generator, ts tts.Synthesizer, opts ...Option) *Server {
	s := &Server{
		pipe:       pipe,
		transcribe: t,
		generate:   g,
		synthesize: ts,
		cfg:        cfg,
		registry:   reg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.checks == nil {
		s.checks = health.New()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/voice/query", s.handleVoiceQuery)
	mux.HandleFunc("GET /v1/realtime/ws", s.handleRealtime)
	mux.HandleFunc("GET /v1/cache/stats", s.handleCacheStats)
	mux.HandleFunc("POST /v1/cache/clear", s.handleCacheClear)
	mux.HandleFunc("POST /v1/cache/cleanup", s.handleCacheCleanup)
	mux.HandleFunc("GET /v1/providers", s.handleProviders)
	mux.HandleFunc("GET /v1/config", s.handleConfig)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.checks.Register(mux)

	s.http = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           s.instrument(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests driving the mux directly.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks serving requests until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.log.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ─── Handlers ───

// queryResponse is the batch endpoint's success payload: the pipeline result
// with the synthesized audio inlined as base64.
type queryResponse struct {
	pipeline.Result
	Audio []byte `json:"audio"`
}

// errorResponse is the error payload shared by all endpoints.
type errorResponse struct {
	Error     bool   `json:"error"`
	ErrorType string `json:"error_type"`
	Stage     string `json:"stage,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleVoiceQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, errorResponse{
			Error: true, ErrorType: "BadRequest", Message: "invalid multipart form: " + err.Error(),
		})
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errorResponse{
			Error: true, ErrorType: "BadRequest", Message: `missing "audio" file field`,
		})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errorResponse{
			Error: true, ErrorType: "BadRequest", Message: "reading audio upload: " + err.Error(),
		})
		return
	}
	if len(raw) == 0 {
		s.writeError(w, http.StatusBadRequest, errorResponse{
			Error: true, ErrorType: "BadRequest", Message: "empty audio upload",
		})
		return
	}

	noCache, _ := strconv.ParseBool(r.FormValue("no_cache"))
	req := pipeline.Request{
		Audio:     raw,
		SessionID: r.FormValue("session_id"),
		Lang:      r.FormValue("lang"),
		Voice:     r.FormValue("voice"),
		NoCache:   noCache,
	}

	res, err := s.pipe.Run(r.Context(), req)
	if err != nil {
		resp := errorResponse{
			Error:     true,
			ErrorType: pipeline.ErrorType(err),
			Message:   err.Error(),
			RequestID: res.RequestID,
		}
		var se *pipeline.StageError
		if errors.As(err, &se) {
			resp.Stage = se.Stage
		}
		// Recognised provider failures are the client's problem domain;
		// anything unclassified is ours.
		status := http.StatusUnprocessableEntity
		if resp.ErrorType == "PipelineFailed" {
			status = http.StatusInternalServerError
		}
		s.writeError(w, status, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, queryResponse{Result: res, Audio: res.Audio})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.pipe.CacheStats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	s.pipe.ClearCache()
	s.log.Info("result cache cleared")
	s.writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (s *Server) handleCacheCleanup(w http.ResponseWriter, _ *http.Request) {
	removed := s.pipe.CleanupCache()
	s.log.Info("result cache swept", "removed", removed)
	s.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	type kind struct {
		Active    string   `json:"active"`
		Available []string `json:"available"`
	}
	s.writeJSON(w, http.StatusOK, map[string]kind{
		"stt": {Active: s.cfg.Providers.STT.Name, Available: s.registry.Names("stt")},
		"llm": {Active: s.cfg.Providers.LLM.Name, Available: s.registry.Names("llm")},
		"tts": {Active: s.cfg.Providers.TTS.Name, Available: s.registry.Names("tts")},
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	redacted := *s.cfg
	redacted.Providers.STT.APIKey = mask(redacted.Providers.STT.APIKey)
	redacted.Providers.LLM.APIKey = mask(redacted.Providers.LLM.APIKey)
	redacted.Providers.TTS.APIKey = mask(redacted.Providers.TTS.APIKey)
	redacted.History.DSN = mask(redacted.History.DSN)
	s.writeJSON(w, http.StatusOK, redacted)
}

// mask hides a secret while showing whether one is set.
func mask(v string) string {
	if v == "" {
		return ""
	}
	return "[redacted]"
}

// ─── Plumbing ───

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response write failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, resp errorResponse) {
	s.writeJSON(w, status, resp)
}

// instrument wraps the mux with request logging and latency metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		s.metrics.HTTPRequestDuration.Record(r.Context(), elapsed.Seconds(), metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("path", r.URL.Path),
		))
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", elapsed.Milliseconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// websocket upgrade needs to hijack the connection.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

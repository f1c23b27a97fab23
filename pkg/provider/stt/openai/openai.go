// Package openai provides an stt.Transcriber backed by the OpenAI audio
// transcription API (Whisper).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/voxpipe/voxpipe/pkg/audio"
	"github.com/voxpipe/voxpipe/pkg/provider"
	"github.com/voxpipe/voxpipe/pkg/provider/stt"
)

const defaultModel = "whisper-1"

// Transcriber implements stt.Transcriber using the OpenAI transcription API.
type Transcriber struct {
	client     oai.Client
	model      string
	sampleRate int
}

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// config holds optional configuration for the transcriber.
type config struct {
	baseURL    string
	model      string
	timeout    time.Duration
	sampleRate int
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Useful for
// OpenAI-compatible transcription servers.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the transcription model (default "whisper-1").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithSampleRate sets the sample rate of the incoming PCM audio (default 16000).
func WithSampleRate(hz int) Option {
	return func(c *config) { c.sampleRate = hz }
}

// New constructs a new OpenAI Transcriber.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel, sampleRate: 16000}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Transcriber{
		client:     oai.NewClient(reqOpts...),
		model:      cfg.model,
		sampleRate: cfg.sampleRate,
	}, nil
}

// Transcribe implements stt.Transcriber. The raw PCM is wrapped in a WAV
// container before upload since the API requires a recognised audio format.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte, lang string) (stt.Result, error) {
	wav := audio.WrapWAV(pcm, t.sampleRate, 1)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(t.model),
	}
	if lang != "" {
		params.Language = param.NewOpt(lang)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, classify(err)
	}

	// The transcription endpoint does not report confidence; callers treat
	// 1.0 as "backend reported none".
	return stt.Result{Text: resp.Text, Confidence: 1.0}, nil
}

// classify maps transport and API errors onto the shared provider sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("openai stt: %w: %v", provider.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("openai stt: %w: %v", provider.ErrUnavailable, err)
	}
}

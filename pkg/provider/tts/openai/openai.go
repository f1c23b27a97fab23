// Package openai provides a tts.Synthesizer backed by the OpenAI speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxpipe/voxpipe/pkg/provider"
	"github.com/voxpipe/voxpipe/pkg/provider/tts"
)

const (
	defaultModel = "tts-1"
	defaultVoice = "alloy"
)

// knownVoices is the static OpenAI voice catalogue. The speech API has no
// list endpoint, so voice hints are validated against this set.
var knownVoices = []string{"alloy", "ash", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer"}

// Synthesizer implements tts.Synthesizer using the OpenAI speech API.
type Synthesizer struct {
	client       oai.Client
	model        string
	defaultVoice string
}

// Compile-time assertion that Synthesizer implements tts.Synthesizer.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// config holds optional configuration for the synthesizer.
type config struct {
	baseURL      string
	model        string
	defaultVoice string
	timeout      time.Duration
}

// Option is a functional option for Synthesizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the speech model (default "tts-1").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithDefaultVoice sets the voice used when the caller passes no hint
// (default "alloy").
func WithDefaultVoice(voice string) Option {
	return func(c *config) { c.defaultVoice = voice }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a new OpenAI Synthesizer.
func New(apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel, defaultVoice: defaultVoice}
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

	return &Synthesizer{
		client:       oai.NewClient(reqOpts...),
		model:        cfg.model,
		defaultVoice: cfg.defaultVoice,
	}, nil
}

// Synthesize implements tts.Synthesizer. Output is 24 kHz mono s16le PCM
// (the speech API's pcm response format).
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = s.defaultVoice
	}
	if !validVoice(voice) {
		return nil, fmt.Errorf("openai tts: voice %q: %w", voice, tts.ErrUnsupportedVoice)
	}

	resp, err := s.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(s.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	return audio, nil
}

// Voices implements tts.Synthesizer by returning the static catalogue.
func (s *Synthesizer) Voices(_ context.Context) ([]tts.Voice, error) {
	voices := make([]tts.Voice, 0, len(knownVoices))
	for _, v := range knownVoices {
		voices = append(voices, tts.Voice{ID: v, Name: v})
	}
	return voices, nil
}

// validVoice reports whether v is in the static OpenAI voice catalogue.
func validVoice(v string) bool {
	for _, k := range knownVoices {
		if k == v {
			return true
		}
	}
	return false
}

// classify maps transport and API errors onto the shared provider sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("openai tts: %w: %v", provider.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("openai tts: %w: %v", provider.ErrUnavailable, err)
	}
}

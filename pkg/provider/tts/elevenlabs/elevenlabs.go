// Package elevenlabs provides a tts.Synthesizer backed by the ElevenLabs
// HTTP synthesis API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxpipe/voxpipe/pkg/provider"
	"github.com/voxpipe/voxpipe/pkg/provider/tts"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
	defaultVoiceID   = "21m00Tcm4TlvDq8ikWAM" // "Rachel", the ElevenLabs default voice
	defaultTimeout   = 30 * time.Second
)

// Synthesizer implements tts.Synthesizer backed by the ElevenLabs API.
type Synthesizer struct {
	apiKey       string
	baseURL      string
	model        string
	outputFormat string
	defaultVoice string
	httpClient   *http.Client
}

// Compile-time assertion that Synthesizer implements tts.Synthesizer.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Option is a functional option for configuring the ElevenLabs Synthesizer.
type Option func(*Synthesizer)

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(url string) Option {
	return func(s *Synthesizer) { s.baseURL = strings.TrimRight(url, "/") }
}

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(s *Synthesizer) { s.model = model }
}

// WithOutputFormat sets the audio output format (e.g., "pcm_16000", "pcm_24000").
func WithOutputFormat(format string) Option {
	return func(s *Synthesizer) { s.outputFormat = format }
}

// WithDefaultVoice sets the voice ID used when the caller passes no voice hint.
func WithDefaultVoice(voiceID string) Option {
	return func(s *Synthesizer) { s.defaultVoice = voiceID }
}

// WithHTTPClient replaces the default HTTP client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Synthesizer) { s.httpClient = c }
}

// New creates a new ElevenLabs Synthesizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	s := &Synthesizer{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		defaultVoice: defaultVoiceID,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// synthesisRequest is the JSON payload sent to the synthesis endpoint.
type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize implements tts.Synthesizer. It POSTs text to the voice's
// synthesis endpoint and returns the raw audio bytes in the configured
// output format.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = s.defaultVoice
	}

	payload, err := json.Marshal(synthesisRequest{Text: text, ModelID: s.model})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", s.baseURL, voice, s.outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("elevenlabs: %w: %v", provider.ErrTimeout, err)
		}
		return nil, fmt.Errorf("elevenlabs: %w: %v", provider.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusBadRequest:
		// ElevenLabs reports unknown voice IDs as 400/404 on this endpoint.
		return nil, fmt.Errorf("elevenlabs: voice %q: %w", voice, tts.ErrUnsupportedVoice)
	default:
		return nil, fmt.Errorf("elevenlabs: %w: server returned HTTP %d", provider.ErrUnavailable, resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	return audio, nil
}

// voicesResponse mirrors the relevant part of the /v1/voices payload.
type voicesResponse struct {
	Voices []struct {
		VoiceID string `json:"voice_id"`
		Name    string `json:"name"`
	} `json:"voices"`
}

// Voices implements tts.Synthesizer by querying the ElevenLabs voice catalogue.
func (s *Synthesizer) Voices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w: %v", provider.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: %w: server returned HTTP %d", provider.ErrUnavailable, resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: parse voices response: %w", err)
	}

	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		voices = append(voices, tts.Voice{ID: v.VoiceID, Name: v.Name})
	}
	return voices, nil
}

// Package whisper provides an stt.Transcriber backed by a local
// whisper-server instance.
//
// whisper-server (shipped with whisper.cpp) exposes a REST API at
// POST /inference that accepts a WAV upload and returns the transcription as
// JSON. This adapter wraps incoming PCM in a RIFF/WAV container and submits
// one inference request per Transcribe call. No cgo is required; the model
// runs in the external server process.
//
// Usage:
//
//	t, err := whisper.New("http://localhost:8080", whisper.WithModel("base.en"))
//	res, err := t.Transcribe(ctx, pcm, "en")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/voxpipe/voxpipe/pkg/audio"
	"github.com/voxpipe/voxpipe/pkg/provider"
	"github.com/voxpipe/voxpipe/pkg/provider/stt"
)

const (
	defaultSampleRate = 16000
	defaultTimeout    = 30 * time.Second
)

// Transcriber implements stt.Transcriber against a whisper-server instance.
type Transcriber struct {
	serverURL  string
	model      string
	sampleRate int
	httpClient *http.Client
}

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring the Transcriber.
type Option func(*Transcriber)

// WithModel sets the model name passed to the server (e.g., "base.en").
// Leave empty to use whatever model the server was started with.
func WithModel(model string) Option {
	return func(t *Transcriber) { t.model = model }
}

// WithSampleRate sets the sample rate of incoming PCM audio (default 16000).
func WithSampleRate(hz int) Option {
	return func(t *Transcriber) { t.sampleRate = hz }
}

// WithHTTPClient replaces the default HTTP client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) { t.httpClient = c }
}

// New creates a Transcriber for the whisper-server at serverURL
// (e.g., "http://localhost:8080"). A trailing slash is stripped.
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	t := &Transcriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		sampleRate: defaultSampleRate,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe implements stt.Transcriber. It encodes pcm as WAV and POSTs it
// to the whisper-server /inference endpoint as multipart/form-data.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte, lang string) (stt.Result, error) {
	wav := audio.WrapWAV(pcm, t.sampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	if lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if t.model != "" {
		if err := mw.WriteField("model", t.model); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL+"/inference", &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return stt.Result{}, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return stt.Result{}, fmt.Errorf("whisper: %w: %v", provider.ErrTimeout, err)
		}
		return stt.Result{}, fmt.Errorf("whisper: %w: %v", provider.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fmt.Errorf("whisper: %w: server returned HTTP %d", provider.ErrUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	// whisper-server does not report confidence.
	return stt.Result{Text: strings.TrimSpace(result.Text), Confidence: 1.0}, nil
}

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/pipeline"
	"github.com/voxpipe/voxpipe/internal/server"
	"github.com/voxpipe/voxpipe/pkg/provider"
	"github.com/voxpipe/voxpipe/pkg/provider/llm"
	llmmock "github.com/voxpipe/voxpipe/pkg/provider/llm/mock"
	"github.com/voxpipe/voxpipe/pkg/provider/stt"
	sttmock "github.com/voxpipe/voxpipe/pkg/provider/stt/mock"
	ttsmock "github.com/voxpipe/voxpipe/pkg/provider/tts/mock"
)

type passthrough struct{}

func (passthrough) Normalize(_ context.Context, raw []byte) ([]byte, error) {
	return raw, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  version: "1"
  stt:
    name: mock-stt
  llm:
    name: mock-llm
  tts:
    name: mock-tts
`))
	if err != nil {
		t.Fatalf("test config: %v", err)
	}
	return cfg
}

func newTestServer(t *testing.T) (*server.Server, *sttmock.Transcriber, *llmmock.Generator, *ttsmock.Synthesizer) {
	t.Helper()
	st := &sttmock.Transcriber{Result: stt.Result{Text: "hello", Confidence: 0.88}}
	lg := &llmmock.Generator{Response: llm.Response{Text: "Hi!"}}
	ts := &ttsmock.Synthesizer{Audio: make([]byte, 8000)}

	cfg := testConfig(t)
	pipe := pipeline.New(passthrough{}, st, lg, ts,
		pipeline.WithCache(pipeline.NewCache(10, time.Minute)))
	srv := server.New(cfg, config.NewRegistry(), pipe, st, lg, ts)
	return srv, st, lg, ts
}

// postAudio sends a multipart voice query with the given form values.
func postAudio(t *testing.T, handler http.Handler, audio []byte, form map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if audio != nil {
		fw, err := mw.CreateFormFile("audio", "input.wav")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(audio)
	}
	for k, v := range form {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/voice/query", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestVoiceQuery_HappyPath(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	rec := postAudio(t, srv.Handler(), []byte("pcm-in"), map[string]string{"session_id": "s1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		RequestID  string  `json:"request_id"`
		Transcript string  `json:"transcript"`
		Text       string  `json:"llm_text"`
		Confidence float64 `json:"confidence"`
		Audio      []byte  `json:"audio"`
		FromCache  bool    `json:"from_cache"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Transcript != "hello" || resp.Text != "Hi!" {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Audio) != 8000 {
		t.Errorf("audio length = %d; want 8000", len(resp.Audio))
	}
	if resp.RequestID == "" {
		t.Error("request_id must be set")
	}
	if resp.FromCache {
		t.Error("first query must not be served from cache")
	}
}

func TestVoiceQuery_MissingAudio(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	rec := postAudio(t, srv.Handler(), nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", rec.Code)
	}
	var resp struct {
		Error     bool   `json:"error"`
		ErrorType string `json:"error_type"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Error || resp.ErrorType != "BadRequest" {
		t.Errorf("error payload = %+v", resp)
	}
}

func TestVoiceQuery_ProviderFailure(t *testing.T) {
	t.Parallel()
	srv, st, _, _ := newTestServer(t)
	st.Err = provider.ErrUnavailable

	rec := postAudio(t, srv.Handler(), []byte("pcm"), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d; want 422", rec.Code)
	}
	var resp struct {
		Error     bool   `json:"error"`
		ErrorType string `json:"error_type"`
		Stage     string `json:"stage"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ErrorType != "ProviderUnavailable" {
		t.Errorf("error_type = %q; want ProviderUnavailable", resp.ErrorType)
	}
	if resp.Stage != "stt" {
		t.Errorf("stage = %q; want stt", resp.Stage)
	}
}

func TestVoiceQuery_UnclassifiedFailureIs500(t *testing.T) {
	t.Parallel()
	srv, st, _, _ := newTestServer(t)
	st.Err = errors.New("weird internal state")

	rec := postAudio(t, srv.Handler(), []byte("pcm"), nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", rec.Code)
	}
	var resp struct {
		ErrorType string `json:"error_type"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ErrorType != "PipelineFailed" {
		t.Errorf("error_type = %q; want PipelineFailed", resp.ErrorType)
	}
}

func TestVoiceQuery_CacheRoundTrip(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	postAudio(t, srv.Handler(), []byte("same"), nil)
	rec := postAudio(t, srv.Handler(), []byte("same"), nil)

	var resp struct {
		FromCache bool `json:"from_cache"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.FromCache {
		t.Error("identical audio should be served from cache")
	}
}

func TestCacheStats_Endpoint(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	postAudio(t, srv.Handler(), []byte("a"), nil)
	postAudio(t, srv.Handler(), []byte("a"), nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var stats struct {
		Hits    uint64 `json:"hit_count"`
		Misses  uint64 `json:"miss_count"`
		Entries int    `json:"entry_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("stats = %+v; want 1 hit, 1 miss, 1 entry", stats)
	}
}

func TestCacheClear_Endpoint(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	postAudio(t, srv.Handler(), []byte("a"), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/cache/clear", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	var stats struct {
		Entries int `json:"entry_count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats.Entries != 0 {
		t.Errorf("entries after clear = %d; want 0", stats.Entries)
	}
}

func TestCacheCleanup_Endpoint(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	postAudio(t, srv.Handler(), []byte("a"), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/cache/cleanup", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d", rec.Code)
	}

	// Nothing has expired yet, so the sweep removes nothing and the entry
	// stays servable.
	var body struct {
		Removed int `json:"removed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal cleanup response: %v", err)
	}
	if body.Removed != 0 {
		t.Errorf("removed = %d; want 0 for unexpired entries", body.Removed)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	var stats struct {
		Entries int `json:"entry_count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats.Entries != 1 {
		t.Errorf("entries after cleanup = %d; want 1", stats.Entries)
	}
}

func TestProviders_Endpoint(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mock-stt") {
		t.Errorf("providers body missing active stt: %s", rec.Body)
	}
}

func TestConfig_EndpointRedactsSecrets(t *testing.T) {
	t.Parallel()
	st := &sttmock.Transcriber{}
	lg := &llmmock.Generator{}
	ts := &ttsmock.Synthesizer{}
	cfg := testConfig(t)
	cfg.Providers.STT.APIKey = "super-secret-key"
	pipe := pipeline.New(passthrough{}, st, lg, ts)
	srv := server.New(cfg, config.NewRegistry(), pipe, st, lg, ts)

	req := httptest.NewRequest(http.MethodGet, "/v1/config", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "super-secret-key") {
		t.Error("config endpoint leaked an api key")
	}
	if !strings.Contains(body, "[redacted]") {
		t.Error("config endpoint should mark redacted secrets")
	}
}

func TestHealthz_Endpoint(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d; want 200", rec.Code)
	}
}

func TestMetrics_Endpoint(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d; want 200", rec.Code)
	}
}

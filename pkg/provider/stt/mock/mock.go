// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber to script transcription results and inspect which audio
// buffers and language hints were delivered:
//
//	m := &mock.Transcriber{Result: stt.Result{Text: "hello", Confidence: 0.95}}
//	res, _ := m.Transcribe(ctx, pcm, "en")
//	calls := m.Calls()
package mock

import (
	"context"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Audio is a copy of the audio bytes passed to Transcribe.
	Audio []byte
	// Lang is the language hint passed to Transcribe.
	Lang string
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned from every Transcribe call when Err is nil.
	Result stt.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Fn, if non-nil, is invoked instead of returning Result/Err. Useful for
	// per-call behaviour such as blocking until a channel fires.
	Fn func(ctx context.Context, audio []byte, lang string) (stt.Result, error)

	calls []TranscribeCall
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe records the call and returns the scripted result.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, lang string) (stt.Result, error) {
	t.mu.Lock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	t.calls = append(t.calls, TranscribeCall{Audio: cp, Lang: lang})
	fn := t.Fn
	t.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio, lang)
	}
	if t.Err != nil {
		return stt.Result{}, t.Err
	}
	return t.Result, nil
}

// Calls returns a copy of all recorded invocations. Thread-safe.
func (t *Transcriber) Calls() []TranscribeCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscribeCall, len(t.calls))
	copy(out, t.calls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

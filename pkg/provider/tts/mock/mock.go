// Package mock provides a test double for the tts.Synthesizer interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesizer.Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the voice hint passed to Synthesize.
	Voice string
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Audio is returned from every Synthesize call when Err is nil.
	Audio []byte

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// Fn, if non-nil, is invoked instead of returning Audio/Err.
	Fn func(ctx context.Context, text, voice string) ([]byte, error)

	// VoiceList is returned from Voices.
	VoiceList []tts.Voice

	calls []SynthesizeCall
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesize records the call and returns the scripted audio.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, SynthesizeCall{Text: text, Voice: voice})
	fn := s.Fn
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, voice)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Audio, nil
}

// Voices returns the scripted voice list.
func (s *Synthesizer) Voices(_ context.Context) ([]tts.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.VoiceList, nil
}

// Calls returns a copy of all recorded invocations. Thread-safe.
func (s *Synthesizer) Calls() []SynthesizeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SynthesizeCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

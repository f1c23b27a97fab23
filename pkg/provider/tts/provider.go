// Package tts defines the Synthesizer interface for Text-to-Speech backends.
//
// A Synthesizer wraps a speech synthesis service (ElevenLabs, the OpenAI
// speech API) behind a single batch call: reply text in, audio bytes out.
// The realtime session chunks the returned audio itself, so a streaming
// synthesis contract is not required here; the orchestrator's latency budget
// is dominated by the upstream STT and LLM stages.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrUnsupportedVoice indicates the requested voice hint has no equivalent
// in the backend's catalogue. Adapters wrap it with fmt.Errorf("...: %w", ...).
var ErrUnsupportedVoice = errors.New("unsupported voice")

// Voice describes one entry in a backend's voice catalogue.
type Voice struct {
	// ID is the backend-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string
}

// Synthesizer is the abstraction over any TTS backend.
//
// Synthesize converts text into audio bytes in the backend's configured
// output format (voxpipe adapters default to 16 kHz mono s16le PCM so the
// result can be chunked and replayed without transcoding). voice selects a
// backend voice; the empty string uses the adapter's configured default.
//
// Failures wrap provider.ErrUnavailable, provider.ErrTimeout, or
// ErrUnsupportedVoice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)

	// Voices returns the backend's current voice catalogue. Adapters without
	// a catalogue API return their static default set.
	Voices(ctx context.Context) ([]Voice, error)
}

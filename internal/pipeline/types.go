package pipeline

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/voxpipe/voxpipe/internal/nudge"
)

// Request is one batch voice query. It is immutable for the duration of a
// [Pipeline.Run] call; the pipeline owns it until the call returns.
type Request struct {
	// Audio is the captured audio as received from the client, in any
	// container format the normalizer supports.
	Audio []byte

	// SessionID ties the request to a conversation for nudge cooldown and
	// history continuity. Empty means anonymous; the pipeline assigns a
	// synthetic id.
	SessionID string

	// Lang is an optional BCP-47 recognition hint.
	Lang string

	// Voice is an optional synthesis voice hint.
	Voice string

	// NoCache bypasses the result cache entirely: the pipeline neither
	// reads nor writes it. The zero value keeps caching enabled.
	NoCache bool
}

// Timings records per-stage latency in milliseconds. For a cache hit the
// fields reflect the original computation that produced the entry.
type Timings struct {
	STTMs   float64 `json:"stt_ms"`
	LLMMs   float64 `json:"llm_ms"`
	TTSMs   float64 `json:"tts_ms"`
	TotalMs float64 `json:"total_ms"`
}

// Result is a completed pipeline run. Immutable once produced; the caller
// owns it after return.
type Result struct {
	// RequestID uniquely identifies this invocation. It is stamped per call
	// even when the payload came from the cache.
	RequestID string `json:"request_id"`

	// Transcript is the recognised user utterance.
	Transcript string `json:"transcript"`

	// Confidence is the STT confidence score (0.0–1.0).
	Confidence float64 `json:"confidence"`

	// Text is the generated reply.
	Text string `json:"llm_text"`

	// Audio is the synthesized reply audio.
	Audio []byte `json:"-"`

	// Timings holds per-stage latency.
	Timings Timings `json:"timings"`

	// Nudge is the attached advisory, nil when none fired.
	Nudge *nudge.Payload `json:"gold_nudge,omitempty"`

	// CacheHit reports whether the payload was served from the result cache.
	CacheHit bool `json:"from_cache"`
}

// Fingerprint computes the cache key for a normalized audio buffer and its
// hints. Two requests with identical fingerprints are the same cache entry
// regardless of session. The provider configuration version is folded in so
// entries from a previous provider line-up never survive a config change.
func Fingerprint(pcm []byte, lang, voice, providerVersion string) string {
	h := sha256.New()
	h.Write(pcm)
	h.Write([]byte{0})
	h.Write([]byte(lang))
	h.Write([]byte{0})
	h.Write([]byte(voice))
	h.Write([]byte{0})
	h.Write([]byte(providerVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// newRequestID derives a per-invocation identifier from the session id and
// a random suffix.
func newRequestID(sessionID string) string {
	return sessionID + "_" + uuid.NewString()
}

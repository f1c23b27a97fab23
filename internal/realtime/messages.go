package realtime

import "github.com/voxpipe/voxpipe/internal/nudge"

// Client → server message types.
const (
	TypeHandshake   = "handshake"
	TypeInputAudio  = "input.audio"
	TypeInputCommit = "input.commit"
	TypeCancel      = "cancel"
)

// Server → client message types.
const (
	TypeSessionCreated     = "session.created"
	TypeTranscriptPartial  = "transcript.partial"
	TypeTranscriptFinal    = "transcript.final"
	TypeLLMResponse        = "llm.response"
	TypeOutputAudioChunk   = "output.audio_chunk"
	TypeOutputComplete     = "output.complete"
	TypeError              = "error"
	TypeConversationEnding = "conversation.ending"
)

// Message is one frame of the realtime protocol, in either direction. Fields
// are populated per Type; Audio marshals as base64 per encoding/json's
// []byte convention.
type Message struct {
	Type string `json:"type"`

	// SessionID identifies the conversation. Sent by the client in the
	// handshake (optional) and echoed by the server in session.created.
	SessionID string `json:"session_id,omitempty"`

	// Lang is an optional recognition hint (handshake only).
	Lang string `json:"lang,omitempty"`

	// Voice is an optional synthesis voice (handshake only).
	Voice string `json:"voice,omitempty"`

	// Audio carries PCM data: inbound capture on input.audio, synthesized
	// output on output.audio_chunk.
	Audio []byte `json:"audio,omitempty"`

	// Text carries transcript or reply text.
	Text string `json:"text,omitempty"`

	// Confidence accompanies transcript.final.
	Confidence float64 `json:"confidence,omitempty"`

	// Seq numbers output audio chunks from zero; Chunks on output.complete
	// is the total emitted.
	Seq    int `json:"seq,omitempty"`
	Chunks int `json:"chunks,omitempty"`

	// Nudge is an optional advisory attached to llm.response.
	Nudge *nudge.Payload `json:"gold_nudge,omitempty"`

	// ErrorType and Text describe a failure (error messages only).
	ErrorType string `json:"error_type,omitempty"`
}

// errorMsg builds an outbound error frame.
func errorMsg(errType, text string) Message {
	return Message{Type: TypeError, ErrorType: errType, Text: text}
}

// Package llm defines the Generator interface for language-model backends.
//
// A Generator wraps a remote or local model API behind a single call: the
// user's transcript (plus recent conversation history) in, the assistant's
// reply text out. The anyllm subpackage adapts github.com/mozilla-ai/any-llm-go
// so any of its supported backends (OpenAI, Anthropic, Gemini, Ollama, ...)
// can serve as the Generator; the orchestrator only ever calls through this
// interface.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Message is a single turn in the conversation history.
type Message struct {
	// Role is "user" or "assistant".
	Role string

	// Content is the text of the turn.
	Content string
}

// Request carries the prompt and optional conversation context for one
// generation call. Prompt must be non-empty.
type Request struct {
	// Prompt is the user's current utterance (typically the STT transcript).
	Prompt string

	// History is the recent conversation, oldest first. Implementations may
	// truncate it to fit the model's context window.
	History []Message

	// SystemPrompt optionally overrides the generator's configured system
	// instruction for this call.
	SystemPrompt string
}

// Response is the result of a successful Generate call.
type Response struct {
	// Text is the assistant's reply in plain text.
	Text string

	// Confidence is a generation confidence score (0.0–1.0). Most backends
	// do not report one; implementations then return 1.0.
	Confidence float64
}

// Generator is the abstraction over any LLM backend.
//
// Failures wrap provider.ErrUnavailable or provider.ErrTimeout; a backend
// that declines to answer (safety filter) wraps provider.ErrContentRejected.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Package provider defines the error taxonomy shared by all voxpipe
// provider adapters.
//
// Each capability contract (stt.Transcriber, llm.Generator, tts.Synthesizer)
// lives in its own subpackage; the sentinel errors here are the common
// failure modes every adapter must map its backend's errors onto, so the
// orchestrator can classify failures without knowing which concrete provider
// produced them. Adapters wrap these sentinels with fmt.Errorf("...: %w", ...)
// and callers test with errors.Is.
package provider

import "errors"

var (
	// ErrUnavailable indicates the provider backend could not be reached or
	// refused the connection. The orchestrator does not retry; the failure
	// propagates to the caller tagged with the failing pipeline stage.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrTimeout indicates the provider did not respond within its deadline.
	ErrTimeout = errors.New("provider timeout")

	// ErrContentRejected indicates a generation backend declined to answer
	// (safety filter, policy refusal). Only meaningful for llm.Generator.
	ErrContentRejected = errors.New("content rejected by provider")
)

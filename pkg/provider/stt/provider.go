// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// A Transcriber wraps a transcription service (the OpenAI Whisper API or a
// local whisper-server instance) behind a single batch call: normalized PCM
// bytes in, transcript plus confidence out. The orchestrator selects a
// concrete implementation by name through the provider registry at startup
// and only ever calls through this interface.
//
// Implementations must be safe for concurrent use; one Transcriber instance
// serves all pipeline invocations and realtime sessions in the process.
package stt

import "context"

// Result is a completed transcription.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the backend does not report confidence.
	Confidence float64
}

// Transcriber is the abstraction over any STT backend.
//
// Transcribe converts audio (16 kHz mono s16le PCM unless the implementation
// documents otherwise) into text. lang is an optional BCP-47 hint; the empty
// string lets the backend auto-detect the language if supported.
//
// Failures wrap provider.ErrUnavailable or provider.ErrTimeout. Cancelling
// ctx aborts the in-flight request where the backend supports it.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, lang string) (Result, error)
}

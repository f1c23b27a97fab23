package pipeline

import (
	"errors"
	"fmt"

	"github.com/voxpipe/voxpipe/pkg/audio"
	"github.com/voxpipe/voxpipe/pkg/provider"
	"github.com/voxpipe/voxpipe/pkg/provider/tts"
)

// Pipeline stage names, as surfaced in errors and metrics.
const (
	StageNormalize = "normalize"
	StageSTT       = "stt"
	StageLLM       = "llm"
	StageTTS       = "tts"
)

// StageError tags a provider or normalization failure with the stage it
// occurred in. It wraps the underlying error so callers can still match
// provider sentinels with errors.Is.
type StageError struct {
	// Stage is one of the Stage* constants.
	Stage string
	// Err is the underlying failure.
	Err error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageErr wraps err unless it is nil.
func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// ErrorType maps an error to its wire-level error_type name, used by both
// the HTTP and the realtime surfaces.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, provider.ErrUnavailable):
		return "ProviderUnavailable"
	case errors.Is(err, provider.ErrTimeout):
		return "ProviderTimeout"
	case errors.Is(err, provider.ErrContentRejected):
		return "ContentRejected"
	case errors.Is(err, tts.ErrUnsupportedVoice):
		return "UnsupportedVoice"
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return "UnsupportedFormat"
	default:
		return "PipelineFailed"
	}
}

package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Normalizer converts arbitrary captured audio (webm, ogg, mp3, wav, ...)
// into the pipeline's canonical PCM format. Implementations must be safe for
// concurrent use; each call is an independent pure function of its input.
//
// Failures wrap ErrUnsupportedFormat when the input cannot be decoded.
type Normalizer interface {
	Normalize(ctx context.Context, raw []byte) ([]byte, error)
}

// FFmpeg is a Normalizer that shells out to the ffmpeg binary, feeding raw
// bytes on stdin and reading s16le PCM from stdout. One short-lived process
// is spawned per call; ffmpeg performs all container and codec handling.
type FFmpeg struct {
	binary     string
	sampleRate int
}

// Compile-time assertion that FFmpeg implements Normalizer.
var _ Normalizer = (*FFmpeg)(nil)

// FFmpegOption is a functional option for configuring FFmpeg.
type FFmpegOption func(*FFmpeg)

// WithBinary overrides the ffmpeg binary path (default "ffmpeg", resolved
// via PATH).
func WithBinary(path string) FFmpegOption {
	return func(f *FFmpeg) { f.binary = path }
}

// WithSampleRate sets the target sample rate in Hz (default DefaultSampleRate).
func WithSampleRate(hz int) FFmpegOption {
	return func(f *FFmpeg) { f.sampleRate = hz }
}

// NewFFmpeg creates an FFmpeg normalizer.
func NewFFmpeg(opts ...FFmpegOption) *FFmpeg {
	f := &FFmpeg{
		binary:     "ffmpeg",
		sampleRate: DefaultSampleRate,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Normalize implements Normalizer. Input already in the canonical format
// (a WAV at the target rate, mono, 16-bit) is unwrapped without spawning a
// process.
func (f *FFmpeg) Normalize(ctx context.Context, raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("audio: empty input: %w", ErrUnsupportedFormat)
	}

	if pcm, ok := f.fastPath(raw); ok {
		return pcm, nil
	}

	cmd := exec.CommandContext(ctx, f.binary,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(f.sampleRate),
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(raw)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Decode failures surface as a non-zero exit with a diagnostic
			// on stderr; treat them as unsupported input.
			return nil, fmt.Errorf("audio: ffmpeg: %s: %w", strings.TrimSpace(stderr.String()), ErrUnsupportedFormat)
		}
		return nil, fmt.Errorf("audio: run ffmpeg: %w", err)
	}

	if out.Len() == 0 {
		return nil, fmt.Errorf("audio: ffmpeg produced no output: %w", ErrUnsupportedFormat)
	}
	return out.Bytes(), nil
}

// fastPath unwraps a canonical-format WAV without spawning ffmpeg. Returns
// false when the input needs real decoding.
func (f *FFmpeg) fastPath(raw []byte) ([]byte, bool) {
	if !IsWAV(raw) || len(raw) < 44 {
		return nil, false
	}
	fmtOK := binary.LittleEndian.Uint16(raw[20:22]) == 1 && // PCM
		binary.LittleEndian.Uint16(raw[22:24]) == 1 && // mono
		binary.LittleEndian.Uint32(raw[24:28]) == uint32(f.sampleRate) &&
		binary.LittleEndian.Uint16(raw[34:36]) == bitsPerSample
	if !fmtOK {
		return nil, false
	}
	return raw[44:], true
}

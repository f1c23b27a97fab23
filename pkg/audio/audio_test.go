package audio_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/voxpipe/voxpipe/pkg/audio"
)

func TestWrapWAV_Header(t *testing.T) {
	t.Parallel()
	pcm := []byte{1, 2, 3, 4}
	wav := audio.WrapWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d; want %d", len(wav), 44+len(pcm))
	}
	if !audio.IsWAV(wav) {
		t.Error("WrapWAV output must satisfy IsWAV")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate in header = %d; want 16000", rate)
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Errorf("channels in header = %d; want 1", ch)
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Error("data section must carry the PCM unchanged")
	}
}

func TestIsWAV(t *testing.T) {
	t.Parallel()
	if audio.IsWAV([]byte("OggS....")) {
		t.Error("ogg magic must not be detected as WAV")
	}
	if audio.IsWAV(nil) {
		t.Error("nil input must not be detected as WAV")
	}
	if !audio.IsWAV(audio.WrapWAV([]byte{0, 0}, 8000, 1)) {
		t.Error("wrapped PCM must be detected as WAV")
	}
}

func TestChunk_EvenSplit(t *testing.T) {
	t.Parallel()
	// 500ms of 16kHz s16 mono, chunked at 250ms.
	pcm := make([]byte, 16000)
	chunks := audio.Chunk(pcm, 250, 16000)

	if len(chunks) != 2 {
		t.Fatalf("chunks = %d; want 2", len(chunks))
	}
	for i, c := range chunks {
		if len(c) != 8000 {
			t.Errorf("chunk %d length = %d; want 8000", i, len(c))
		}
	}
}

func TestChunk_Remainder(t *testing.T) {
	t.Parallel()
	pcm := make([]byte, 10000)
	chunks := audio.Chunk(pcm, 250, 16000)

	if len(chunks) != 2 {
		t.Fatalf("chunks = %d; want 2", len(chunks))
	}
	if len(chunks[1]) != 2000 {
		t.Errorf("final chunk length = %d; want 2000", len(chunks[1]))
	}
}

func TestChunk_EmptyAndInvalid(t *testing.T) {
	t.Parallel()
	if got := audio.Chunk(nil, 250, 16000); got != nil {
		t.Errorf("Chunk(nil) = %v; want nil", got)
	}
	if got := audio.Chunk([]byte{1, 2}, 0, 16000); got != nil {
		t.Errorf("Chunk(chunkMs=0) = %v; want nil", got)
	}
}

func TestDurationMs(t *testing.T) {
	t.Parallel()
	if got := audio.DurationMs(make([]byte, 32000), 16000); got != 1000 {
		t.Errorf("duration = %dms; want 1000", got)
	}
	if got := audio.DurationMs(nil, 16000); got != 0 {
		t.Errorf("duration of empty = %dms; want 0", got)
	}
}

func TestNormalize_CanonicalWAVFastPath(t *testing.T) {
	t.Parallel()
	// A canonical WAV must unwrap without spawning a process, so a bogus
	// binary path proves the fast path was taken.
	f := audio.NewFFmpeg(audio.WithBinary("/nonexistent/ffmpeg"))
	pcm := []byte{10, 20, 30, 40}
	wav := audio.WrapWAV(pcm, audio.DefaultSampleRate, 1)

	got, err := f.Normalize(context.Background(), wav)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("normalized = %v; want unwrapped PCM %v", got, pcm)
	}
}

func TestNormalize_WrongRateSkipsFastPath(t *testing.T) {
	t.Parallel()
	f := audio.NewFFmpeg(audio.WithBinary("/nonexistent/ffmpeg"))
	wav := audio.WrapWAV([]byte{1, 2}, 44100, 1)

	// A 44.1kHz WAV needs real resampling, which the bogus binary cannot do.
	if _, err := f.Normalize(context.Background(), wav); err == nil {
		t.Error("expected error when decoding requires the external binary")
	}
}

func TestNormalize_EmptyInput(t *testing.T) {
	t.Parallel()
	f := audio.NewFFmpeg()
	_, err := f.Normalize(context.Background(), nil)
	if !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("error = %v; want ErrUnsupportedFormat", err)
	}
}

// Package audio provides the normalization contract and PCM helpers for the
// voxpipe pipeline.
//
// Codec and container handling is deliberately not implemented here: the
// Normalizer interface delegates to an external audio tool (ffmpeg) consumed
// as a pure bytes→bytes function, so the orchestrator core never parses
// containers itself. The helpers in this package only wrap raw PCM in a WAV
// header for provider uploads and slice PCM into fixed-duration chunks for
// realtime playback.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrUnsupportedFormat indicates the input bytes are not in a format the
// normalizer can decode.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// DefaultSampleRate is the pipeline's canonical PCM sample rate in Hz.
// All STT providers consume this rate; normalization targets it.
const DefaultSampleRate = 16000

// bitsPerSample is fixed at 16 for the s16le PCM flowing through the pipeline.
const bitsPerSample = 16

// WrapWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for direct
// inclusion in a multipart form upload.
func WrapWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 &&
		bytes.Equal(data[0:4], []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WAVE"))
}

// Chunk slices pcm into fixed-duration chunks of chunkMs milliseconds at the
// given sample rate (mono s16le). The final chunk carries the remainder and
// may be shorter. A nil or empty input yields no chunks.
func Chunk(pcm []byte, chunkMs, sampleRate int) [][]byte {
	if len(pcm) == 0 || chunkMs <= 0 || sampleRate <= 0 {
		return nil
	}

	chunkBytes := sampleRate * chunkMs / 1000 * 2 // 2 bytes per sample
	if chunkBytes <= 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(pcm)+chunkBytes-1)/chunkBytes)
	for off := 0; off < len(pcm); off += chunkBytes {
		end := off + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		chunks = append(chunks, pcm[off:end])
	}
	return chunks
}

// DurationMs returns the playback duration of a mono s16le PCM buffer in
// milliseconds. Returns 0 for invalid inputs.
func DurationMs(pcm []byte, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / 2
	return samples * 1000 / sampleRate
}

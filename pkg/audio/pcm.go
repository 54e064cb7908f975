// Package audio provides pure transforms over raw little-endian
// 16-bit PCM: base64 wire text, playback timing, and WAV export.
package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// Common stream formats used by the live voice session.
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000
	BytesPerSample     = 2
	MonoChannels       = 1
)

// EncodeBase64 encodes raw PCM bytes for wire transport.
func EncodeBase64(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeBase64 decodes wire text back into raw PCM bytes.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode pcm: %w", err)
	}
	return data, nil
}

// PCMDuration reports the playback time of raw interleaved PCM.
func PCMDuration(pcmLen, sampleRate, numChannels int) time.Duration {
	if sampleRate <= 0 || numChannels <= 0 {
		return 0
	}
	frames := pcmLen / (BytesPerSample * numChannels)
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// WAV wraps raw s16le PCM in a minimal RIFF container so captured or
// received audio can be saved and played by standard tools.
func WAV(pcm []byte, sampleRate, numChannels int) []byte {
	var b bytes.Buffer
	b.Grow(44 + len(pcm))

	le := binary.LittleEndian
	b.WriteString("RIFF")
	binary.Write(&b, le, uint32(36+len(pcm)))
	b.WriteString("WAVE")

	b.WriteString("fmt ")
	binary.Write(&b, le, uint32(16)) // fmt chunk size
	binary.Write(&b, le, uint16(1))  // uncompressed PCM
	binary.Write(&b, le, uint16(numChannels))
	binary.Write(&b, le, uint32(sampleRate))
	binary.Write(&b, le, uint32(sampleRate*numChannels*BytesPerSample))
	binary.Write(&b, le, uint16(numChannels*BytesPerSample))
	binary.Write(&b, le, uint16(8*BytesPerSample))

	b.WriteString("data")
	binary.Write(&b, le, uint32(len(pcm)))
	b.Write(pcm)
	return b.Bytes()
}

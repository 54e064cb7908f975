package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func TestBase64RoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0xFF, 0x7F}
	got, err := DecodeBase64(EncodeBase64(pcm))
	if err != nil {
		t.Fatalf("DecodeBase64: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("got %v, want %v", got, pcm)
	}
}

func TestDecodeBase64_Invalid(t *testing.T) {
	if _, err := DecodeBase64("not base64!!"); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
}

func TestPCMDuration(t *testing.T) {
	// 24000 mono frames at 24 kHz = exactly one second.
	if got := PCMDuration(24000*BytesPerSample, PlaybackSampleRate, 1); got != time.Second {
		t.Fatalf("PCMDuration = %v, want 1s", got)
	}
	// Stereo halves the frame count for the same byte length.
	if got := PCMDuration(24000*BytesPerSample, PlaybackSampleRate, 2); got != 500*time.Millisecond {
		t.Fatalf("stereo PCMDuration = %v, want 500ms", got)
	}
	if got := PCMDuration(100, 0, 1); got != 0 {
		t.Fatalf("PCMDuration with zero rate = %v, want 0", got)
	}
}

func TestWAV_Header(t *testing.T) {
	pcm := make([]byte, 100)
	wav := WAV(pcm, PlaybackSampleRate, MonoChannels)

	if len(wav) != 144 {
		t.Fatalf("len(wav) = %d, want 144", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad RIFF header")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != PlaybackSampleRate {
		t.Fatalf("sample rate = %d, want %d", got, PlaybackSampleRate)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != PlaybackSampleRate*BytesPerSample {
		t.Fatalf("byte rate = %d, want %d", got, PlaybackSampleRate*BytesPerSample)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 100 {
		t.Fatalf("data size = %d, want 100", got)
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Fatalf("payload does not follow header")
	}
}

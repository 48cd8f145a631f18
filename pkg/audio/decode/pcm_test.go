// ABOUTME: Tests for PCM codec
// ABOUTME: Tests 16-bit and 24-bit PCM decoding into frames
package decode

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

func pcmHints(bitDepth int) audio.StreamInfo {
	return audio.StreamInfo{
		Codec:      "pcm",
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   bitDepth,
	}
}

func frameSample(f *audio.Frame, i int) int32 {
	return int32(binary.LittleEndian.Uint32(f.Data[0][i*4:]))
}

func TestNewPCM(t *testing.T) {
	codec, err := NewPCM(pcmHints(16))
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	if codec == nil {
		t.Fatal("expected codec to be created")
	}

	if codec.NeedPassthrough() {
		t.Error("pcm codec must not need passthrough")
	}
}

func TestPCMDecode16Bit(t *testing.T) {
	codec, err := NewPCM(pcmHints(16))
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	// Input: 4 bytes -> one stereo frame
	input := []byte{0x00, 0x01, 0x02, 0x03}
	n, err := codec.Decode(&audio.Packet{Data: input, PTS: 1000})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if n != len(input) {
		t.Errorf("expected %d bytes consumed, got %d", len(input), n)
	}

	var frame audio.Frame
	if !codec.GetData(&frame) {
		t.Fatal("expected a decoded frame")
	}

	if frame.NbFrames != 1 {
		t.Errorf("expected 1 frame, got %d", frame.NbFrames)
	}
	if frame.PTS != 1000 {
		t.Errorf("expected pts 1000, got %f", frame.PTS)
	}

	// 0x00, 0x01 -> 0x0100 = 256 (16-bit) -> 256<<8 (24-bit)
	if got := frameSample(&frame, 0); got != 256<<8 {
		t.Errorf("expected first sample %d, got %d", 256<<8, got)
	}
	if got := frameSample(&frame, 1); got != 770<<8 {
		t.Errorf("expected second sample %d, got %d", 770<<8, got)
	}
}

func TestPCMDecode24Bit(t *testing.T) {
	codec, err := NewPCM(pcmHints(24))
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	input := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}
	if _, err := codec.Decode(&audio.Packet{Data: input}); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	var frame audio.Frame
	if !codec.GetData(&frame) {
		t.Fatal("expected a decoded frame")
	}

	if got := frameSample(&frame, 0); got != 0x020100 {
		t.Errorf("expected first sample %d, got %d", 0x020100, got)
	}
	if got := frameSample(&frame, 1); got != 0x050403 {
		t.Errorf("expected second sample %d, got %d", 0x050403, got)
	}
}

func TestPCMFrameDuration(t *testing.T) {
	codec, err := NewPCM(pcmHints(16))
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	// 4096 bytes of 16-bit stereo = 1024 frames = 21333µs at 48kHz
	if _, err := codec.Decode(&audio.Packet{Data: make([]byte, 4096)}); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	var frame audio.Frame
	codec.GetData(&frame)

	if frame.NbFrames != 1024 {
		t.Errorf("expected 1024 frames, got %d", frame.NbFrames)
	}
	want := 1024 * audio.TimeBase / 48000
	if frame.Duration != want {
		t.Errorf("expected duration %f, got %f", want, frame.Duration)
	}
	if frame.FrameSize != 8 {
		t.Errorf("expected frame size 8, got %d", frame.FrameSize)
	}
}

func TestPCMBufferFull(t *testing.T) {
	codec, err := NewPCM(pcmHints(16))
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	for i := 0; i < maxPendingFrames; i++ {
		if _, err := codec.Decode(&audio.Packet{Data: make([]byte, 64)}); err != nil {
			t.Fatalf("decode %d failed: %v", i, err)
		}
	}

	_, err = codec.Decode(&audio.Packet{Data: make([]byte, 64)})
	if !errors.Is(err, ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}

	var frame audio.Frame
	codec.GetData(&frame)

	if _, err := codec.Decode(&audio.Packet{Data: make([]byte, 64)}); err != nil {
		t.Errorf("expected decode to succeed after draining one frame, got %v", err)
	}
}

func TestPCMReset(t *testing.T) {
	codec, err := NewPCM(pcmHints(16))
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	codec.Decode(&audio.Packet{Data: make([]byte, 64)})
	codec.Reset()

	var frame audio.Frame
	if codec.GetData(&frame) {
		t.Error("expected no frames after reset")
	}
	if frame.NbFrames != 0 {
		t.Errorf("expected empty frame, got %d frames", frame.NbFrames)
	}
}

func TestNewPCM_InvalidCodec(t *testing.T) {
	hints := pcmHints(16)
	hints.Codec = "opus"

	codec, err := NewPCM(hints)
	if err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}

	if codec != nil {
		t.Fatal("expected codec to be nil for invalid codec")
	}

	expectedError := "invalid codec for PCM decoder: opus"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestNewPCM_UnsupportedBitDepth(t *testing.T) {
	_, err := NewPCM(pcmHints(32))
	if err == nil {
		t.Fatal("expected error for unsupported bit depth, got nil")
	}

	expectedError := "unsupported bit depth: 32 (supported: 16, 24)"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestPCMDecode_EmptyInput(t *testing.T) {
	codec, err := NewPCM(pcmHints(16))
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	n, err := codec.Decode(&audio.Packet{Data: []byte{}})
	if err != nil {
		t.Fatalf("decode failed with empty input: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 bytes consumed, got %d", n)
	}

	var frame audio.Frame
	if codec.GetData(&frame) {
		t.Error("expected no frame from empty input")
	}
}

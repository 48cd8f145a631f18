// ABOUTME: Tests for Opus codec
// ABOUTME: Tests Opus codec creation and validation
package decode

import (
	"testing"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

func TestNewOpus(t *testing.T) {
	hints := audio.StreamInfo{
		Codec:      "opus",
		SampleRate: 48000,
		Channels:   2,
	}

	codec, err := NewOpus(hints)
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	if codec == nil {
		t.Fatal("expected codec to be created")
	}

	if codec.Format().Layout.Count() != 2 {
		t.Errorf("expected stereo layout, got %s", codec.Format().Layout)
	}
}

func TestNewOpus_DefaultsFormat(t *testing.T) {
	codec, err := NewOpus(audio.StreamInfo{Codec: "opus"})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	format := codec.Format()
	if format.SampleRate != 48000 || format.Channels != 2 {
		t.Errorf("expected 48000Hz stereo defaults, got %dHz %dch", format.SampleRate, format.Channels)
	}
}

func TestNewOpus_InvalidCodec(t *testing.T) {
	codec, err := NewOpus(audio.StreamInfo{Codec: "pcm", SampleRate: 48000, Channels: 2})
	if err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}

	if codec != nil {
		t.Fatal("expected codec to be nil for invalid codec")
	}

	expectedError := "invalid codec for Opus decoder: pcm"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestOpusDecode_Garbage(t *testing.T) {
	codec, err := NewOpus(audio.StreamInfo{Codec: "opus", SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	// A lone TOC byte with an invalid frame count code is rejected
	if _, err := codec.Decode(&audio.Packet{Data: []byte{0xFF, 0xFF, 0xFF}}); err == nil {
		t.Error("expected error for corrupt packet")
	}

	var frame audio.Frame
	if codec.GetData(&frame) {
		t.Error("expected no frame after a failed decode")
	}
}

func TestOpusDispose(t *testing.T) {
	codec, err := NewOpus(audio.StreamInfo{Codec: "opus", SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	codec.Dispose()

	var frame audio.Frame
	if codec.GetData(&frame) {
		t.Error("expected no frame after dispose")
	}
}

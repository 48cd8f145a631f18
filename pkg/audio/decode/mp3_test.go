// ABOUTME: Tests for MP3 codec
// ABOUTME: Tests MP3 codec creation and error handling
package decode

import (
	"testing"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

func TestNewMP3(t *testing.T) {
	codec, err := NewMP3(audio.StreamInfo{Codec: "mp3", SampleRate: 44100, Channels: 2})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	// go-mp3 always renders stereo
	if codec.Format().Channels != 2 {
		t.Errorf("expected 2 channels, got %d", codec.Format().Channels)
	}

	if codec.Name() != "mp3" {
		t.Errorf("expected name mp3, got %s", codec.Name())
	}
}

func TestNewMP3_InvalidCodec(t *testing.T) {
	codec, err := NewMP3(audio.StreamInfo{Codec: "opus"})
	if err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}

	if codec != nil {
		t.Fatal("expected codec to be nil for invalid codec")
	}

	expectedError := "invalid codec for MP3 decoder: opus"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestMP3Decode_NotMPEG(t *testing.T) {
	codec, err := NewMP3(audio.StreamInfo{Codec: "mp3"})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	_, err = codec.Decode(&audio.Packet{Data: []byte{0x00, 0x01, 0x02, 0x03}})
	if err == nil {
		t.Fatal("expected error for non-MPEG data")
	}

	var frame audio.Frame
	if codec.GetData(&frame) {
		t.Error("expected no frame after a failed decode")
	}
}

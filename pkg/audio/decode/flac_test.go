// ABOUTME: Tests for FLAC codec
// ABOUTME: Tests FLAC codec creation from a STREAMINFO header
package decode

import (
	"testing"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// streamInfoHeader builds "fLaC" plus a last-block STREAMINFO
func streamInfoHeader(sampleRate, channels, bitsPerSample int) []byte {
	b := []byte("fLaC")
	b = append(b, 0x80, 0x00, 0x00, 0x22) // last block, type 0, length 34

	body := make([]byte, 34)
	body[0], body[1] = 0x10, 0x00 // min block size 4096
	body[2], body[3] = 0x10, 0x00 // max block size 4096

	// 20 bits rate | 3 bits channels-1 | 5 bits bps-1 | 36 bits total samples
	packed := uint64(sampleRate)<<44 | uint64(channels-1)<<41 | uint64(bitsPerSample-1)<<36
	for i := 0; i < 8; i++ {
		body[10+i] = byte(packed >> (56 - 8*uint(i)))
	}

	return append(b, body...)
}

func TestNewFLAC(t *testing.T) {
	hints := audio.StreamInfo{
		Codec:       "flac",
		CodecHeader: streamInfoHeader(48000, 2, 16),
	}

	codec, err := NewFLAC(hints)
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	format := codec.Format()
	if format.SampleRate != 48000 {
		t.Errorf("expected 48000Hz, got %d", format.SampleRate)
	}
	if format.Channels != 2 {
		t.Errorf("expected 2 channels, got %d", format.Channels)
	}
	if format.BitDepth != 16 {
		t.Errorf("expected 16-bit, got %d", format.BitDepth)
	}
}

func TestNewFLAC_HeaderWithoutSignature(t *testing.T) {
	header := streamInfoHeader(44100, 1, 24)[4:]

	codec, err := NewFLAC(audio.StreamInfo{Codec: "flac", CodecHeader: header})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	if codec.Format().SampleRate != 44100 {
		t.Errorf("expected 44100Hz, got %d", codec.Format().SampleRate)
	}
}

func TestNewFLAC_MissingHeader(t *testing.T) {
	_, err := NewFLAC(audio.StreamInfo{Codec: "flac"})
	if err == nil {
		t.Fatal("expected error for missing header")
	}

	expectedError := "flac: missing stream header"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestNewFLAC_InvalidCodec(t *testing.T) {
	codec, err := NewFLAC(audio.StreamInfo{Codec: "opus"})
	if err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}

	if codec != nil {
		t.Fatal("expected codec to be nil for invalid codec")
	}

	expectedError := "invalid codec for FLAC decoder: opus"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

// ABOUTME: Tests for codec selection
// ABOUTME: Tests passthrough vs software codec choice
package decode

import (
	"errors"
	"testing"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

func TestCreateAudioCodec(t *testing.T) {
	tests := []struct {
		name            string
		hints           audio.StreamInfo
		opts            Options
		wantPassthrough bool
		wantErr         error
	}{
		{
			name:  "pcm",
			hints: audio.StreamInfo{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16},
		},
		{
			name:            "ac3 passthrough",
			hints:           audio.StreamInfo{Codec: "ac3", SampleRate: 48000, Channels: 6},
			opts:            Options{AllowPassthrough: true, StreamType: audio.StreamTypeAC3},
			wantPassthrough: true,
		},
		{
			name:    "ac3 without passthrough",
			hints:   audio.StreamInfo{Codec: "ac3", SampleRate: 48000, Channels: 6},
			opts:    Options{AllowPassthrough: false, StreamType: audio.StreamTypeAC3},
			wantErr: ErrUnsupportedCodec,
		},
		{
			name:  "passthrough allowed but not negotiated",
			hints: audio.StreamInfo{Codec: "pcm", SampleRate: 44100, Channels: 2, BitDepth: 24},
			opts:  Options{AllowPassthrough: true},
		},
		{
			name:    "unknown",
			hints:   audio.StreamInfo{Codec: "vorbis"},
			wantErr: ErrUnsupportedCodec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := CreateAudioCodec(tt.hints, tt.opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if codec.NeedPassthrough() != tt.wantPassthrough {
				t.Errorf("expected passthrough %v, got %v", tt.wantPassthrough, codec.NeedPassthrough())
			}
		})
	}
}

func TestPassthroughFrame(t *testing.T) {
	codec, err := NewPassthrough(audio.StreamInfo{Codec: "ac3", SampleRate: 48000}, audio.StreamTypeAC3)
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	payload := make([]byte, 1792)
	if _, err := codec.Decode(&audio.Packet{Data: payload, PTS: 5000}); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	var frame audio.Frame
	if !codec.GetData(&frame) {
		t.Fatal("expected a frame")
	}

	if !frame.Passthrough {
		t.Error("expected passthrough frame")
	}
	if frame.NbFrames != len(payload) || frame.FrameSize != 1 {
		t.Errorf("expected %d one-byte frames, got %d x %d", len(payload), frame.NbFrames, frame.FrameSize)
	}

	// 1536 samples at 48kHz
	if frame.Duration != 32000 {
		t.Errorf("expected 32000µs duration, got %f", frame.Duration)
	}
	if frame.Format.DataFormat != audio.SampleFormatRaw {
		t.Errorf("expected raw data format, got %s", frame.Format.DataFormat)
	}
}

func TestDTSHDFallsBackToCore(t *testing.T) {
	hints := audio.StreamInfo{Codec: "dts", SampleRate: 48000, Channels: 6, Profile: audio.ProfileDTSHDMA}

	codec, err := CreateAudioCodec(hints, Options{AllowPassthrough: true, StreamType: audio.StreamTypeDTSHD})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	if got := codec.Format().StreamType; got != audio.StreamTypeDTS {
		t.Errorf("expected dts core without DTS-HD permission, got %s", got)
	}

	codec, err = CreateAudioCodec(hints, Options{AllowPassthrough: true, StreamType: audio.StreamTypeDTSHD, AllowDTSHD: true})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	if got := codec.Format().StreamType; got != audio.StreamTypeDTSHD {
		t.Errorf("expected dtshd, got %s", got)
	}
}

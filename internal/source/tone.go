// ABOUTME: Generated sine source
// ABOUTME: Encodes a test tone as pcm or opus packets for probing the zones
package source

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/encode"
)

const (
	toneSampleRate   = 48000
	toneChannels     = 2
	toneAmplitude    = 0.5
	tonePacketFrames = 960 // 20ms, also the opus frame size
)

// ToneConfig configures a generated tone
type ToneConfig struct {
	Codec     string // "pcm" (default) or "opus"
	Frequency float64
	Duration  time.Duration // 0 runs forever
}

// Tone is a Source producing a stereo sine wave
type Tone struct {
	cfg    ToneConfig
	enc    encode.Encoder
	hints  audio.StreamInfo
	frames int64
	limit  int64
	closed bool
}

// NewTone creates a tone source
func NewTone(cfg ToneConfig) (*Tone, error) {
	if cfg.Codec == "" {
		cfg.Codec = "pcm"
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = 440
	}

	format := audio.Format{Codec: cfg.Codec, SampleRate: toneSampleRate, Channels: toneChannels, BitDepth: 16}
	enc, err := encode.New(format)
	if err != nil {
		return nil, fmt.Errorf("tone: %w", err)
	}

	return &Tone{
		cfg: cfg,
		enc: enc,
		hints: audio.StreamInfo{
			Codec:        cfg.Codec,
			SampleRate:   toneSampleRate,
			Channels:     toneChannels,
			BitDepth:     16,
			FrameSamples: tonePacketFrames,
		},
		limit: int64(cfg.Duration.Seconds() * toneSampleRate),
	}, nil
}

// Hints returns the generated format
func (s *Tone) Hints() audio.StreamInfo {
	return s.hints
}

// ReadPacket encodes the next 20ms of tone
func (s *Tone) ReadPacket(ctx context.Context) (*audio.Packet, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.limit > 0 && s.frames >= s.limit {
		return nil, io.EOF
	}

	samples := make([]int32, tonePacketFrames*toneChannels)
	for i := 0; i < tonePacketFrames; i++ {
		t := float64(s.frames+int64(i)) / toneSampleRate
		v := audio.SampleFromFloat(toneAmplitude * math.Sin(2*math.Pi*s.cfg.Frequency*t))
		for ch := 0; ch < toneChannels; ch++ {
			samples[i*toneChannels+ch] = v
		}
	}

	data, err := s.enc.Encode(samples)
	if err != nil {
		return nil, err
	}

	pkt := &audio.Packet{
		Data:     data,
		PTS:      framesToTime(s.frames, toneSampleRate),
		DTS:      audio.NoPTS,
		Duration: framesToTime(tonePacketFrames, toneSampleRate),
	}
	s.frames += tonePacketFrames
	return pkt, nil
}

// Close releases the encoder
func (s *Tone) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.enc.Close()
}

// ABOUTME: Opus audio encoder
// ABOUTME: Encodes 20ms frames of 24-bit samples for the tone source and feed server
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

const (
	opusBitrate   = 128000
	maxOpusPacket = 4000
)

// OpusEncoder wraps libopus with reusable sample and packet buffers
type OpusEncoder struct {
	enc       *opus.Encoder
	frameSize int
	pcm       []int16
	packet    []byte
}

// NewOpus creates an Opus encoder producing 20ms packets
func NewOpus(format audio.Format) (Encoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}

	enc, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		return nil, fmt.Errorf("failed to set opus bitrate: %w", err)
	}

	frameSize := format.SampleRate / 50
	return &OpusEncoder{
		enc:       enc,
		frameSize: frameSize,
		pcm:       make([]int16, frameSize*format.Channels),
		packet:    make([]byte, maxOpusPacket),
	}, nil
}

// Encode packs exactly one frame of interleaved samples. The returned slice
// is a fresh copy so callers may keep it.
func (e *OpusEncoder) Encode(samples []int32) ([]byte, error) {
	if len(samples) != len(e.pcm) {
		return nil, fmt.Errorf("opus frame must hold %d samples, got %d", len(e.pcm), len(samples))
	}

	for i, s := range samples {
		e.pcm[i] = audio.SampleToInt16(s)
	}
	n, err := e.enc.Encode(e.pcm, e.packet)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}
	return append([]byte(nil), e.packet[:n]...), nil
}

func (e *OpusEncoder) FrameSize() int { return e.frameSize }

func (e *OpusEncoder) Close() error { return nil }

// ABOUTME: Opus audio codec
// ABOUTME: Decodes Opus packets into 24-bit frames
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrameSamples is the largest Opus frame (120ms at 48kHz)
const maxOpusFrameSamples = 5760

// OpusCodec decodes Opus audio
type OpusCodec struct {
	frameQueue
	decoder *opus.Decoder
	format  audio.Format
	pcm16   []int16
}

// NewOpus creates a new Opus codec
func NewOpus(hints audio.StreamInfo) (*OpusCodec, error) {
	if hints.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", hints.Codec)
	}

	sampleRate := hints.SampleRate
	if sampleRate == 0 {
		sampleRate = 48000
	}
	channels := hints.Channels
	if channels == 0 {
		channels = 2
	}

	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusCodec{
		decoder: dec,
		format: audio.Format{
			Codec:      "opus",
			SampleRate: sampleRate,
			Channels:   channels,
			BitDepth:   16,
			Layout:     audio.DefaultLayout(channels),
		},
		pcm16: make([]int16, maxOpusFrameSamples*channels),
	}, nil
}

// Decode converts one Opus packet to a frame
func (c *OpusCodec) Decode(pkt *audio.Packet) (int, error) {
	if c.full() {
		return 0, ErrBufferFull
	}

	n, err := c.decoder.Decode(pkt.Data, c.pcm16)
	if err != nil {
		return 0, fmt.Errorf("opus decode failed: %w", err)
	}

	// Convert int16 to int32 (Opus is always 16-bit)
	actualSamples := n * c.format.Channels
	pcm32 := make([]int32, actualSamples)
	for i := 0; i < actualSamples; i++ {
		pcm32[i] = audio.SampleFromInt16(c.pcm16[i])
	}

	if n > 0 {
		c.push(pcmFrame(pcm32, c.format, pkt.PTS))
	}
	return len(pkt.Data), nil
}

// GetData returns the next decoded frame
func (c *OpusCodec) GetData(frame *audio.Frame) bool {
	return c.pop(frame)
}

// NeedPassthrough is always false for Opus
func (c *OpusCodec) NeedPassthrough() bool {
	return false
}

// Format returns the output format
func (c *OpusCodec) Format() audio.Format {
	return c.format
}

// Name returns the codec name
func (c *OpusCodec) Name() string {
	return "opus"
}

// Reset drops pending frames and decoder state
func (c *OpusCodec) Reset() {
	c.reset()
	if dec, err := opus.NewDecoder(c.format.SampleRate, c.format.Channels); err == nil {
		c.decoder = dec
	}
}

// Dispose releases resources
func (c *OpusCodec) Dispose() {
	c.reset()
	c.decoder = nil
}

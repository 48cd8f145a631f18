// ABOUTME: PCM audio codec
// ABOUTME: Unpacks 16-bit and 24-bit PCM packets into 24-bit frames
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// PCMCodec decodes PCM audio
type PCMCodec struct {
	frameQueue
	format audio.Format
}

// NewPCM creates a new PCM codec
func NewPCM(hints audio.StreamInfo) (*PCMCodec, error) {
	if hints.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", hints.Codec)
	}

	if hints.BitDepth != 16 && hints.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", hints.BitDepth)
	}

	if hints.Channels <= 0 || hints.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid pcm format: %dHz %dch", hints.SampleRate, hints.Channels)
	}

	return &PCMCodec{
		format: audio.Format{
			Codec:      "pcm",
			SampleRate: hints.SampleRate,
			Channels:   hints.Channels,
			BitDepth:   hints.BitDepth,
			Layout:     audio.DefaultLayout(hints.Channels),
		},
	}, nil
}

// Decode converts PCM bytes to a frame
func (c *PCMCodec) Decode(pkt *audio.Packet) (int, error) {
	if c.full() {
		return 0, ErrBufferFull
	}

	samples := decodePCM(pkt.Data, c.format.BitDepth)
	if len(samples) < c.format.Channels {
		return len(pkt.Data), nil
	}

	c.push(pcmFrame(samples, c.format, pkt.PTS))
	return len(pkt.Data), nil
}

// decodePCM converts little-endian PCM bytes to int32 samples
func decodePCM(data []byte, bitDepth int) []int32 {
	if bitDepth == 24 {
		// 24-bit PCM: 3 bytes per sample
		numSamples := len(data) / 3
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			samples[i] = audio.SampleFrom24Bit(b)
		}
		return samples
	}

	// 16-bit PCM: 2 bytes per sample (default)
	numSamples := len(data) / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = audio.SampleFromInt16(sample16)
	}
	return samples
}

// GetData returns the next decoded frame
func (c *PCMCodec) GetData(frame *audio.Frame) bool {
	return c.pop(frame)
}

// NeedPassthrough is always false for PCM
func (c *PCMCodec) NeedPassthrough() bool {
	return false
}

// Format returns the output format
func (c *PCMCodec) Format() audio.Format {
	return c.format
}

// Name returns the codec name
func (c *PCMCodec) Name() string {
	return fmt.Sprintf("pcm_s%dle", c.format.BitDepth)
}

// Reset drops pending frames
func (c *PCMCodec) Reset() {
	c.reset()
}

// Dispose releases resources
func (c *PCMCodec) Dispose() {
	c.reset()
}

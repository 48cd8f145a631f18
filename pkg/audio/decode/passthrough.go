// ABOUTME: Passthrough codec for compressed bitstreams
// ABOUTME: Wraps AC3/E-AC3/DTS/TrueHD packets as raw frames for a receiver
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// PassthroughCodec forwards packets untouched for a receiver to decode
type PassthroughCodec struct {
	frameQueue
	format       audio.Format
	frameSamples int
}

// NewPassthrough creates a passthrough codec for the given bitstream type
func NewPassthrough(hints audio.StreamInfo, streamType audio.StreamType) (*PassthroughCodec, error) {
	if streamType == audio.StreamTypeNone {
		return nil, fmt.Errorf("passthrough requires a bitstream type")
	}

	sampleRate := hints.SampleRate
	if sampleRate == 0 {
		sampleRate = 48000
	}
	frameSamples := hints.FrameSamples
	if frameSamples == 0 {
		frameSamples = streamType.SamplesPerPacket()
	}

	return &PassthroughCodec{
		format: audio.Format{
			Codec:      hints.Codec,
			SampleRate: sampleRate,
			Channels:   2,
			BitDepth:   16,
			Layout:     audio.DefaultLayout(2),
			DataFormat: audio.SampleFormatRaw,
			StreamType: streamType,
		},
		frameSamples: frameSamples,
	}, nil
}

// Decode wraps the packet as a raw frame
func (c *PassthroughCodec) Decode(pkt *audio.Packet) (int, error) {
	if c.full() {
		return 0, ErrBufferFull
	}
	if len(pkt.Data) == 0 {
		return 0, nil
	}

	duration := pkt.Duration
	if duration <= 0 {
		duration = float64(c.frameSamples) * audio.TimeBase / float64(c.format.SampleRate)
	}

	c.push(&audio.Frame{
		Data:          [][]byte{append([]byte(nil), pkt.Data...)},
		Planes:        1,
		NbFrames:      len(pkt.Data),
		FrameSize:     1,
		PTS:           pkt.PTS,
		Duration:      duration,
		Passthrough:   true,
		Format:        c.format,
		BitsPerSample: 16,
	})
	return len(pkt.Data), nil
}

// GetData returns the next raw frame
func (c *PassthroughCodec) GetData(frame *audio.Frame) bool {
	return c.pop(frame)
}

// NeedPassthrough is always true
func (c *PassthroughCodec) NeedPassthrough() bool {
	return true
}

// Format returns the bitstream format
func (c *PassthroughCodec) Format() audio.Format {
	return c.format
}

// Name returns the codec name
func (c *PassthroughCodec) Name() string {
	return "pt-" + c.format.StreamType.String()
}

// Reset drops pending frames
func (c *PassthroughCodec) Reset() {
	c.reset()
}

// Dispose releases resources
func (c *PassthroughCodec) Dispose() {
	c.reset()
}

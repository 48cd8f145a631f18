// ABOUTME: MP3 audio codec
// ABOUTME: Decodes MPEG audio packets into 24-bit frames
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Codec decodes MP3 audio.
//
// go-mp3 always produces 16-bit stereo, so the output format is fixed at two
// channels whatever the stream header says.
type MP3Codec struct {
	frameQueue
	format audio.Format
	buf    []byte
}

// NewMP3 creates a new MP3 codec
func NewMP3(hints audio.StreamInfo) (*MP3Codec, error) {
	if hints.Codec != "mp3" {
		return nil, fmt.Errorf("invalid codec for MP3 decoder: %s", hints.Codec)
	}

	return &MP3Codec{
		format: audio.Format{
			Codec:      "mp3",
			SampleRate: hints.SampleRate,
			Channels:   2,
			BitDepth:   16,
			Layout:     audio.DefaultLayout(2),
		},
		buf: make([]byte, 8192),
	}, nil
}

// Decode converts one or more MPEG audio frames to a frame
func (c *MP3Codec) Decode(pkt *audio.Packet) (int, error) {
	if c.full() {
		return 0, ErrBufferFull
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(pkt.Data))
	if err != nil {
		return 0, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}
	c.format.SampleRate = decoder.SampleRate()

	var pcm []byte
	for {
		n, err := decoder.Read(c.buf)
		pcm = append(pcm, c.buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("mp3 decode error: %w", err)
		}
		if n == 0 {
			break
		}
	}

	// Convert bytes to int16 then to int32
	numSamples := len(pcm) / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = audio.SampleFromInt16(sample16)
	}

	if numSamples >= c.format.Channels {
		c.push(pcmFrame(samples, c.format, pkt.PTS))
	}
	return len(pkt.Data), nil
}

// GetData returns the next decoded frame
func (c *MP3Codec) GetData(frame *audio.Frame) bool {
	return c.pop(frame)
}

// NeedPassthrough is always false for MP3
func (c *MP3Codec) NeedPassthrough() bool {
	return false
}

// Format returns the output format
func (c *MP3Codec) Format() audio.Format {
	return c.format
}

// Name returns the codec name
func (c *MP3Codec) Name() string {
	return "mp3"
}

// Reset drops pending frames
func (c *MP3Codec) Reset() {
	c.reset()
}

// Dispose releases resources
func (c *MP3Codec) Dispose() {
	c.reset()
}

// ABOUTME: FLAC audio codec
// ABOUTME: Decodes FLAC frames using the stream header carried in the hints
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/mewkiz/flac"
)

var flacSignature = []byte("fLaC")

// FLACCodec decodes FLAC audio.
//
// Packets are bare FLAC frames; the STREAMINFO block arrives once as the
// codec header and is replayed in front of every packet so the frame parser
// can resolve header fields that refer back to it.
type FLACCodec struct {
	frameQueue
	format audio.Format
	header []byte
}

// NewFLAC creates a new FLAC codec
func NewFLAC(hints audio.StreamInfo) (*FLACCodec, error) {
	if hints.Codec != "flac" {
		return nil, fmt.Errorf("invalid codec for FLAC decoder: %s", hints.Codec)
	}
	if len(hints.CodecHeader) == 0 {
		return nil, fmt.Errorf("flac: missing stream header")
	}

	header := hints.CodecHeader
	if !bytes.HasPrefix(header, flacSignature) {
		header = append(append([]byte(nil), flacSignature...), header...)
	}

	stream, err := flac.New(bytes.NewReader(header))
	if err != nil {
		return nil, fmt.Errorf("flac: invalid stream header: %w", err)
	}
	info := stream.Info

	channels := int(info.NChannels)
	return &FLACCodec{
		format: audio.Format{
			Codec:       "flac",
			SampleRate:  int(info.SampleRate),
			Channels:    channels,
			BitDepth:    int(info.BitsPerSample),
			CodecHeader: header,
			Layout:      audio.DefaultLayout(channels),
		},
		header: header,
	}, nil
}

// Decode converts FLAC frames in the packet to a frame
func (c *FLACCodec) Decode(pkt *audio.Packet) (int, error) {
	if c.full() {
		return 0, ErrBufferFull
	}

	stream, err := flac.New(io.MultiReader(bytes.NewReader(c.header), bytes.NewReader(pkt.Data)))
	if err != nil {
		return 0, fmt.Errorf("flac: %w", err)
	}

	shift := 24 - c.format.BitDepth
	index := 0
	for {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("flac decode error: %w", err)
		}

		channels := len(f.Subframes)
		if channels == 0 {
			continue
		}
		blockSize := len(f.Subframes[0].Samples)
		samples := make([]int32, blockSize*channels)
		for i := 0; i < blockSize; i++ {
			for ch, sub := range f.Subframes {
				s := sub.Samples[i]
				if shift > 0 {
					s <<= uint(shift)
				} else if shift < 0 {
					s >>= uint(-shift)
				}
				samples[i*channels+ch] = s
			}
		}

		format := c.format
		format.Channels = channels
		if channels != c.format.Channels {
			format.Layout = audio.DefaultLayout(channels)
		}
		c.push(pcmFrame(samples, format, nextPTS(pkt, index)))
		index++
	}

	return len(pkt.Data), nil
}

// GetData returns the next decoded frame
func (c *FLACCodec) GetData(frame *audio.Frame) bool {
	return c.pop(frame)
}

// NeedPassthrough is always false for FLAC
func (c *FLACCodec) NeedPassthrough() bool {
	return false
}

// Format returns the output format
func (c *FLACCodec) Format() audio.Format {
	return c.format
}

// Name returns the codec name
func (c *FLACCodec) Name() string {
	return "flac"
}

// Reset drops pending frames
func (c *FLACCodec) Reset() {
	c.reset()
}

// Dispose releases resources
func (c *FLACCodec) Dispose() {
	c.reset()
}

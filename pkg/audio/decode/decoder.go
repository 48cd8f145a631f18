// ABOUTME: Codec interface definition
// ABOUTME: Common contract for all audio codecs consumed by the render pipeline
package decode

import (
	"encoding/binary"
	"errors"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

var (
	// ErrBufferFull means the codec holds undelivered output and cannot take more data
	ErrBufferFull = errors.New("codec output buffer full")

	// ErrUnsupportedCodec means no codec can handle the stream
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// maxPendingFrames bounds the decoded output a codec holds before refusing data
const maxPendingFrames = 8

// Codec decodes compressed packets into frames
type Codec interface {
	// Decode feeds one packet and returns the bytes consumed
	Decode(pkt *audio.Packet) (int, error)

	// GetData fills frame with the next decoded block, false if none is ready
	GetData(frame *audio.Frame) bool

	// NeedPassthrough reports whether the codec emits a bitstream for a receiver
	NeedPassthrough() bool

	// Format returns the output format known so far
	Format() audio.Format

	// Name returns a human-readable codec name
	Name() string

	// Reset drops buffered state
	Reset()

	// Dispose releases codec resources
	Dispose()
}

// frameQueue holds decoded frames until the pipeline pulls them
type frameQueue struct {
	pending []*audio.Frame
}

func (q *frameQueue) full() bool {
	return len(q.pending) >= maxPendingFrames
}

func (q *frameQueue) push(f *audio.Frame) {
	q.pending = append(q.pending, f)
}

func (q *frameQueue) pop(out *audio.Frame) bool {
	if len(q.pending) == 0 {
		out.NbFrames = 0
		out.FramesOut = 0
		return false
	}
	next := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]

	*out = *next
	out.FramesOut = 0
	return true
}

func (q *frameQueue) reset() {
	q.pending = nil
}

// pcmFrame builds an interleaved single-plane frame from 24-bit samples
func pcmFrame(samples []int32, format audio.Format, pts float64) *audio.Frame {
	channels := format.Channels
	if channels <= 0 {
		channels = 1
	}
	nb := len(samples) / channels

	data := make([]byte, nb*channels*4)
	for i := 0; i < nb*channels; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(samples[i]))
	}

	format.DataFormat = audio.SampleFormatS24
	if len(format.Layout) != channels {
		format.Layout = audio.DefaultLayout(channels)
	}

	duration := 0.0
	if format.SampleRate > 0 {
		duration = float64(nb) * audio.TimeBase / float64(format.SampleRate)
	}

	return &audio.Frame{
		Data:          [][]byte{data},
		Planes:        1,
		NbFrames:      nb,
		FrameSize:     channels * 4,
		PTS:           pts,
		Duration:      duration,
		Format:        format,
		BitsPerSample: format.BitDepth,
	}
}

// nextPTS returns the packet pts for the first frame and NoPTS afterwards
func nextPTS(pkt *audio.Packet, index int) float64 {
	if index == 0 {
		return pkt.PTS
	}
	return audio.NoPTS
}

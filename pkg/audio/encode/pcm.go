// ABOUTME: PCM audio encoder
// ABOUTME: Packs 24-bit samples as little-endian 16-bit or 24-bit PCM
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// PCMEncoder writes interleaved samples at the stream's bit depth. Samples
// are 24-bit values, so 16-bit output drops the low byte.
type PCMEncoder struct {
	width int
}

// NewPCM creates a PCM encoder for 16 or 24 bit streams
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}
	switch format.BitDepth {
	case 16, 24:
		return &PCMEncoder{width: format.BitDepth / 8}, nil
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}
}

func (e *PCMEncoder) Encode(samples []int32) ([]byte, error) {
	out := make([]byte, len(samples)*e.width)
	for i, s := range samples {
		b := out[i*e.width:]
		if e.width == 2 {
			binary.LittleEndian.PutUint16(b, uint16(audio.SampleToInt16(s)))
			continue
		}
		packed := audio.SampleTo24Bit(s)
		copy(b, packed[:])
	}
	return out, nil
}

// FrameSize is 0 since PCM packets can be any length
func (e *PCMEncoder) FrameSize() int { return 0 }

func (e *PCMEncoder) Close() error { return nil }

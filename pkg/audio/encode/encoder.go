// ABOUTME: Encoder interface definition
// ABOUTME: Packs 24-bit samples into the wire format of a source packet
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// Encoder encodes PCM int32 samples to a codec's packet format
type Encoder interface {
	// Encode converts interleaved samples to one packet
	Encode(samples []int32) ([]byte, error)

	// FrameSize is the number of samples per channel each packet must carry,
	// 0 if any length is accepted
	FrameSize() int

	// Close releases encoder resources
	Close() error
}

// New returns the encoder for format.Codec
func New(format audio.Format) (Encoder, error) {
	switch format.Codec {
	case "pcm":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("no encoder for codec: %s", format.Codec)
	}
}

// ABOUTME: Codec factory
// ABOUTME: Picks passthrough or a software decoder for a stream
package decode

import (
	"fmt"
	"log"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// Options controls codec selection
type Options struct {
	// AllowPassthrough permits a bitstream codec when the sink can take one
	AllowPassthrough bool

	// StreamType is the bitstream the sink negotiated, StreamTypeNone if none
	StreamType audio.StreamType

	// AllowDTSHD permits the DTS-HD bitstream; otherwise only its DTS core is sent
	AllowDTSHD bool

	// Secondary marks the codec as feeding the second zone (logging only)
	Secondary bool
}

// Factory builds codecs; the pipeline takes one so tests can inject fakes
type Factory interface {
	CreateAudioCodec(hints audio.StreamInfo, opts Options) (Codec, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(hints audio.StreamInfo, opts Options) (Codec, error)

// CreateAudioCodec calls f
func (f FactoryFunc) CreateAudioCodec(hints audio.StreamInfo, opts Options) (Codec, error) {
	return f(hints, opts)
}

// Default is the factory backed by the codecs in this package
var Default Factory = FactoryFunc(CreateAudioCodec)

// CreateAudioCodec returns the codec for hints
func CreateAudioCodec(hints audio.StreamInfo, opts Options) (Codec, error) {
	zone := "primary"
	if opts.Secondary {
		zone = "secondary"
	}

	if opts.AllowPassthrough && opts.StreamType != audio.StreamTypeNone {
		streamType := opts.StreamType
		if streamType == audio.StreamTypeDTSHD && !opts.AllowDTSHD {
			streamType = audio.StreamTypeDTS
		}
		codec, err := NewPassthrough(hints, streamType)
		if err == nil {
			log.Printf("Created %s passthrough codec: %s", zone, codec.Name())
			return codec, nil
		}
		log.Printf("Passthrough unavailable for %s: %v", hints.Codec, err)
	}

	var (
		codec Codec
		err   error
	)
	switch hints.Codec {
	case "pcm":
		codec, err = NewPCM(hints)
	case "opus":
		codec, err = NewOpus(hints)
	case "mp3":
		codec, err = NewMP3(hints)
	case "flac":
		codec, err = NewFLAC(hints)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, hints.Codec)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("Created %s codec: %s (%dHz, %dch)", zone, codec.Name(), hints.SampleRate, hints.Channels)
	return codec, nil
}

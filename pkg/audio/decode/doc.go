// ABOUTME: Audio codec package for multiple codec support
// ABOUTME: Provides the Codec contract and PCM, Opus, FLAC, MP3 and passthrough codecs
// Package decode provides the codecs consumed by the render pipeline.
//
// Supports: PCM (16-bit and 24-bit), Opus, FLAC, MP3, and passthrough of
// AC3/E-AC3/DTS/TrueHD bitstreams.
//
// Software codecs output interleaved int32 samples in 24-bit range. A codec
// buffers a bounded number of decoded frames; Decode returns ErrBufferFull
// until the pipeline pulls them with GetData.
//
// Example:
//
//	codec, err := decode.CreateAudioCodec(hints, decode.Options{})
//	_, err = codec.Decode(&audio.Packet{Data: data, PTS: pts})
//	for codec.GetData(&frame) {
//	    // hand frame to a sink
//	}
package decode

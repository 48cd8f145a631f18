// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats, time base and sample conversions
package audio

import "math"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// TimeBase is the number of timestamp units per second (microseconds)
const TimeBase = 1000000.0

// NoPTS marks a timestamp that is not set
const NoPTS = -float64(1 << 52)

// MsecToTime converts milliseconds to time base units
func MsecToTime(ms float64) float64 {
	return ms * TimeBase / 1000.0
}

// SampleFormat describes how samples are laid out in a frame plane
type SampleFormat int

const (
	// SampleFormatS24 is a 24-bit value carried in a little-endian int32
	SampleFormatS24 SampleFormat = iota
	// SampleFormatS16 is little-endian int16
	SampleFormatS16
	// SampleFormatRaw is a compressed bitstream (passthrough)
	SampleFormatRaw
)

// BytesPerSample returns the container size of one sample
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatS16:
		return 2
	case SampleFormatRaw:
		return 1
	default:
		return 4
	}
}

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatS16:
		return "s16"
	case SampleFormatRaw:
		return "raw"
	default:
		return "s24in32"
	}
}

// Format describes audio stream format
type Format struct {
	Codec       string
	SampleRate  int
	Channels    int
	BitDepth    int
	CodecHeader []byte // For FLAC, Opus, etc.
	Layout      ChannelLayout
	DataFormat  SampleFormat
	StreamType  StreamType // Only set for passthrough formats
}

// Equal reports whether two formats render identically
func (f Format) Equal(o Format) bool {
	if f.SampleRate != o.SampleRate || f.DataFormat != o.DataFormat || f.StreamType != o.StreamType {
		return false
	}
	if f.Channels != o.Channels {
		return false
	}
	return f.Layout.Equal(o.Layout)
}

// StreamInfo holds the demuxer hints for a stream
type StreamInfo struct {
	Codec         string
	SampleRate    int
	Channels      int
	ChannelLayout uint64 // Layout mask read from stream metadata, 0 if unknown
	BitDepth      int
	Profile       int
	CodecHeader   []byte
	FrameSamples  int // Samples per compressed packet, 0 if unknown
	Realtime      bool
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	// Left-shift to position 16-bit value in upper bits
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// SampleToFloat converts a 24-bit int32 sample to [-1, 1]
func SampleToFloat(sample int32) float64 {
	return float64(sample) / float64(Max24Bit+1)
}

// SampleFromFloat converts a [-1, 1] sample to the 24-bit range with clipping
func SampleFromFloat(v float64) int32 {
	s := math.Round(v * float64(Max24Bit+1))
	if s > Max24Bit {
		return Max24Bit
	}
	if s < Min24Bit {
		return Min24Bit
	}
	return int32(s)
}

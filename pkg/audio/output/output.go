// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for audio playback backends
package output

import "time"

// Output represents an audio output device
type Output interface {
	// Open initializes the output device
	Open(sampleRate, channels int) error

	// Write outputs 24-bit samples in int32, interleaved
	Write(samples []int32) error

	// Buffered returns audio written but not yet played
	Buffered() time.Duration

	// Latency returns the fixed delay between playout and the listener
	Latency() time.Duration

	// Close releases output resources
	Close() error
}

// BitstreamWriter is an Output that can carry a compressed bitstream to a
// receiver instead of PCM
type BitstreamWriter interface {
	WriteBitstream(data []byte, duration time.Duration) error
}

// VolumeControl is an Output with software volume
type VolumeControl interface {
	SetVolume(volume int)
	SetMuted(muted bool)
	GetVolume() int
	IsMuted() bool
}

// Name returns the backend name of out
func Name(out Output) string {
	switch out.(type) {
	case *Oto:
		return "oto"
	case *WAV:
		return "wav"
	case *Null:
		return "null"
	default:
		return "custom"
	}
}

// ABOUTME: Sink contract consumed by the render pipeline
// ABOUTME: Defines sink roles and the methods a zone output must provide
package sink

import "github.com/Resonate-Protocol/resonate-zones/pkg/audio"

// Role addresses one of the two sinks a pipeline drives
type Role int

const (
	Primary Role = iota
	Secondary
)

// Roles lists every role in processing order
var Roles = [...]Role{Primary, Secondary}

func (r Role) String() string {
	if r == Secondary {
		return "secondary"
	}
	return "primary"
}

// Clock is the master clock a sink measures its sync error against
type Clock interface {
	GetClock() float64
}

// Sink renders frames for one zone. Times are in audio.TimeBase units unless
// noted otherwise.
type Sink interface {
	// IsValidFormat reports whether the sink is set up for frame's format
	IsValidFormat(frame *audio.Frame) bool

	// Create configures the sink for frame's format. The sink starts paused.
	Create(frame *audio.Frame, codec string, useResample bool) bool

	// Destroy tears the sink down, playing out buffered audio if wait is set
	Destroy(wait bool)

	// AddPackets takes frames starting at frame.FramesOut and returns how
	// many were accepted
	AddPackets(frame *audio.Frame) int

	// Delay returns the time until the next added sample is heard
	Delay() float64

	// CacheTime returns buffered audio in seconds
	CacheTime() float64

	// CacheTotal returns buffer capacity in seconds
	CacheTotal() float64

	// MaxDelay returns the largest possible delay in seconds
	MaxDelay() float64

	// PlayingPts returns the timestamp currently being heard
	PlayingPts() float64

	SetResampleMode(on bool)
	ResampleRatio() float64

	Pause()
	Resume()
	Flush()
	Drain()
	AbortAddPackets()

	// SetDynamicRangeCompression sets the amplification in hundredths of a dB
	SetDynamicRangeCompression(drc int64)

	// SyncError returns how far the heard audio is ahead of the clock
	SyncError() float64

	// SetSyncErrorCorrection accounts for a clock step taken to cancel error
	SetSyncErrorCorrection(correction float64)

	// PassthroughStreamType returns the bitstream the sink can carry for a
	// codec, or StreamTypeNone
	PassthroughStreamType(codec string, sampleRate, profile int) audio.StreamType

	// IsDumb reports a sink without usable timing feedback
	IsDumb() bool

	// IsDisabled reports a sink switched off by the user
	IsDisabled() bool
}

// Factory creates the sink for a role
type Factory func(role Role) Sink

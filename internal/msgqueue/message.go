// ABOUTME: Control and data messages consumed by the render goroutine
// ABOUTME: Tagged message variants plus the Synchronize barrier
package msgqueue

import (
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/decode"
)

// Type identifies a message variant
type Type int

const (
	TypeSynchronize Type = iota
	TypeResync
	TypeReset
	TypeFlush
	TypeEOF
	TypeSetSpeed
	TypeStreamChange
	TypePause
	TypeRequestState
	TypeDisplayReset
	TypePacket
)

var typeNames = [...]string{
	"synchronize", "resync", "reset", "flush", "eof", "setspeed",
	"streamchange", "pause", "requeststate", "displayreset", "packet",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// Message is anything that can travel through a Queue
type Message interface {
	Type() Type
}

// Resync tells the pipeline the master clock position at which it is in sync
type Resync struct {
	PTS float64
}

func (Resync) Type() Type { return TypeResync }

// Reset drops all decoder and sink state
type Reset struct{}

func (Reset) Type() Type { return TypeReset }

// Flush drops buffered audio; Sync returns the pipeline to the starting state
type Flush struct {
	Sync bool
}

func (Flush) Type() Type { return TypeFlush }

// EOF marks the end of the upstream stream
type EOF struct{}

func (EOF) Type() Type { return TypeEOF }

// SetSpeed carries a playback speed where 1000 is normal and 0 is paused
type SetSpeed struct {
	Speed int
}

func (SetSpeed) Type() Type { return TypeSetSpeed }

// StreamChange swaps in codecs built for new stream hints.
// Ownership of both codecs passes to the receiver; Codec2 may be nil.
type StreamChange struct {
	Hints  audio.StreamInfo
	Codec  decode.Codec
	Codec2 decode.Codec
}

func (*StreamChange) Type() Type { return TypeStreamChange }

// Pause toggles control-only processing
type Pause struct {
	Paused bool
}

func (Pause) Type() Type { return TypePause }

// RequestState asks the pipeline to report its sync state to the parent
type RequestState struct{}

func (RequestState) Type() Type { return TypeRequestState }

// DisplayReset asks for a passthrough re-evaluation
type DisplayReset struct{}

func (DisplayReset) Type() Type { return TypeDisplayReset }

// DataPacket carries compressed audio. Drop asks the pipeline to discard
// buffered output and restart synchronization.
type DataPacket struct {
	Packet *audio.Packet
	Drop   bool
}

func (*DataPacket) Type() Type { return TypePacket }

// Synchronize sources
const (
	SourceAudio uint = 1 << iota
	SourceVideo
	SourceOwner
)

// Synchronize is a barrier that completes once every named source has
// reached it
type Synchronize struct {
	mu      sync.Mutex
	pending uint
	done    chan struct{}
}

// NewSynchronize creates a barrier for the given source bits
func NewSynchronize(sources uint) *Synchronize {
	s := &Synchronize{
		pending: sources,
		done:    make(chan struct{}),
	}
	if sources == 0 {
		close(s.done)
	}
	return s
}

func (*Synchronize) Type() Type { return TypeSynchronize }

// Wait marks source as arrived and waits up to timeout for the others.
// It returns true once all sources have arrived.
func (s *Synchronize) Wait(timeout time.Duration, source uint) bool {
	s.mu.Lock()
	if s.pending&source != 0 {
		s.pending &^= source
		if s.pending == 0 {
			close(s.done)
		}
	}
	s.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-s.done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return true
	case <-timer.C:
		return false
	}
}

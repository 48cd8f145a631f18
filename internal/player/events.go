// ABOUTME: Events the pipeline reports to its owner
// ABOUTME: Started, AVChange and state reports delivered through an EventSink
package player

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// postTimeout bounds how long Post waits for room for an event the owner
// must see
const postTimeout = time.Second

// Event is a notification from the pipeline to its owner
type Event interface {
	isEvent()
}

// Started is posted once the sinks hold enough audio to begin playback.
// CacheTotal and CacheTime are in time base units.
type Started struct {
	Session    uuid.UUID
	CacheTotal float64
	CacheTime  float64
	Timestamp  float64 // NoPTS if the frame had no codec timestamp
}

// AVChange is posted when the stream or its published format changes
type AVChange struct {
	Session uuid.UUID
}

// ReportState answers a RequestState message
type ReportState struct {
	Session   uuid.UUID
	SyncState SyncState
}

func (Started) isEvent()     {}
func (AVChange) isEvent()    {}
func (ReportState) isEvent() {}

// EventSink receives pipeline events. Post may wait briefly but must not
// block indefinitely.
type EventSink interface {
	Post(ev Event)
}

// Events is a buffered channel EventSink. When it is full an AVChange is
// dropped, since the owner re-reads the status anyway; Started and
// ReportState wait up to postTimeout for room.
type Events chan Event

// NewEvents creates an event channel with room for size events
func NewEvents(size int) Events {
	return make(Events, size)
}

func (e Events) Post(ev Event) {
	select {
	case e <- ev:
		return
	default:
	}

	if _, ok := ev.(AVChange); ok {
		log.Printf("Audio player: event queue full, dropping %T", ev)
		return
	}

	timer := time.NewTimer(postTimeout)
	defer timer.Stop()
	select {
	case e <- ev:
	case <-timer.C:
		log.Printf("Audio player: event queue stuck for %v, dropping %T", postTimeout, ev)
	}
}

// EventFunc adapts a function to EventSink
type EventFunc func(ev Event)

func (f EventFunc) Post(ev Event) {
	f(ev)
}

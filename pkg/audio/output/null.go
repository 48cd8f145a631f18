// ABOUTME: Null audio output
// ABOUTME: Discards audio in real time with a configurable fixed latency
package output

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

// Null plays nothing but drains at real-time speed, so delay reporting and
// synchronization behave as with a device. It accepts bitstreams.
type Null struct {
	volume
	pace       *pacer
	latency    time.Duration
	sampleRate int
	channels   int
	ready      bool
	written    atomic.Int64 // samples
}

// NewNull creates a null output with the given playout latency
func NewNull(latency time.Duration) *Null {
	return &Null{
		volume:  newVolume("null"),
		pace:    newPacer(),
		latency: latency,
	}
}

// Open initializes the output
func (n *Null) Open(sampleRate, channels int) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid format: %dHz %dch", sampleRate, channels)
	}
	n.sampleRate = sampleRate
	n.channels = channels
	n.pace.reset()
	n.ready = true
	log.Printf("Null output opened: %dHz, %d channels, latency %v", sampleRate, channels, n.latency)
	return nil
}

// Write discards samples
func (n *Null) Write(samples []int32) error {
	if !n.ready {
		return fmt.Errorf("output not initialized")
	}
	n.written.Add(int64(len(samples)))
	n.pace.add(samplesDuration(len(samples), n.sampleRate, n.channels))
	return nil
}

// WriteBitstream discards a compressed payload of the given play time
func (n *Null) WriteBitstream(data []byte, duration time.Duration) error {
	if !n.ready {
		return fmt.Errorf("output not initialized")
	}
	n.pace.add(duration)
	return nil
}

// Buffered returns audio not yet "played"
func (n *Null) Buffered() time.Duration {
	return n.pace.buffered()
}

// Latency returns the configured playout latency
func (n *Null) Latency() time.Duration {
	return n.latency
}

// SamplesWritten returns the total samples accepted
func (n *Null) SamplesWritten() int64 {
	return n.written.Load()
}

// Close releases resources
func (n *Null) Close() error {
	n.ready = false
	n.pace.reset()
	return nil
}

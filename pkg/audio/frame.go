// ABOUTME: Decoded audio frame
// ABOUTME: Planar sample buffers with output bookkeeping and downmix metadata
package audio

import "math"

// DefaultCenterMixLevel is the center gain used when a stream carries none
var DefaultCenterMixLevel = math.Sqrt2 / 2

// Frame is a block of decoded audio handed from a codec to a sink.
//
// NbFrames counts audio frames (one sample per channel). FramesOut counts
// how many of them a sink has already accepted; the frame is consumed once
// FramesOut reaches NbFrames.
type Frame struct {
	Data      [][]byte // One buffer per plane
	Planes    int
	NbFrames  int
	FramesOut int
	FrameSize int // Bytes per audio frame across all planes

	PTS          float64 // Time base units, NoPTS if unknown
	HasTimestamp bool
	Duration     float64 // Time base units for NbFrames

	Passthrough   bool
	Format        Format
	BitsPerSample int

	HasDownmix     bool
	CenterMixLevel float64
}

// Consumed reports whether every frame has been output
func (f *Frame) Consumed() bool {
	return f.NbFrames <= f.FramesOut
}

// Remaining returns the frames not yet output
func (f *Frame) Remaining() int {
	if f.NbFrames <= f.FramesOut {
		return 0
	}
	return f.NbFrames - f.FramesOut
}

// PlaneSize returns the valid bytes in each plane
func (f *Frame) PlaneSize() int {
	if f.Planes == 0 {
		return 0
	}
	return f.NbFrames * f.FrameSize / f.Planes
}

// Clear drops the frame contents
func (f *Frame) Clear() {
	f.NbFrames = 0
	f.FramesOut = 0
	f.Data = nil
}

// Silence zeroes the sample data in place
func (f *Frame) Silence() {
	size := f.PlaneSize()
	for i := 0; i < f.Planes && i < len(f.Data); i++ {
		plane := f.Data[i]
		if size < len(plane) {
			plane = plane[:size]
		}
		for j := range plane {
			plane[j] = 0
		}
	}
}

// Clone returns a deep copy of the frame
func (f *Frame) Clone() *Frame {
	c := *f
	c.Data = make([][]byte, len(f.Data))
	for i, plane := range f.Data {
		c.Data[i] = append([]byte(nil), plane...)
	}
	c.Format.Layout = append(ChannelLayout(nil), f.Format.Layout...)
	return &c
}

// Offset returns the plane byte offset of the first frame not yet output
func (f *Frame) Offset() int {
	if f.Planes == 0 {
		return 0
	}
	return f.FramesOut * f.FrameSize / f.Planes
}

// DurationOf returns the duration of n frames of this frame's format
func (f *Frame) DurationOf(n int) float64 {
	if f.NbFrames == 0 {
		return 0
	}
	return f.Duration * float64(n) / float64(f.NbFrames)
}

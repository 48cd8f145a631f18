// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Frame, StreamInfo and sample conversion functions
// Package audio provides fundamental audio types shared by codecs, sinks and
// the render pipeline.
//
// This package defines:
//   - StreamInfo: demuxer hints for an elementary stream
//   - Format: how decoded (or passthrough) audio is laid out
//   - Frame: a decoded block with output bookkeeping and downmix metadata
//
// Timestamps and durations are float64 microseconds (TimeBase). NoPTS marks a
// frame whose codec produced no timestamp.
//
// Example:
//
//	frame := &audio.Frame{NbFrames: 1024, FrameSize: 8, Planes: 1}
//	dur := frame.DurationOf(512)
package audio

// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides Output interface with oto, WAV and null backends
// Package output provides the devices behind a sink.
//
// Oto plays through the system speaker. WAV records a zone to disk. Null
// discards audio at real-time speed with a fixed latency, which makes it a
// stand-in for a remote zone when measuring drift.
//
// Example:
//
//	out := output.NewOto(0)
//	err := out.Open(48000, 2)
//	err = out.Write(samples)
package output

// ABOUTME: Shared playback settings and published audio stream info
// ABOUTME: Read by the render goroutine, written by the owner and status displays
package player

import (
	"sync"

	"github.com/Resonate-Protocol/resonate-zones/internal/sink"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// AudioSettings are the user adjustments applied on playback
type AudioSettings struct {
	// VolumeAmplification in dB, applied as dynamic range compression
	VolumeAmplification float64
	// CenterMixLevel in dB, added to the center downmix level
	CenterMixLevel float64
}

// AudioInfo is what a zone is currently rendering
type AudioInfo struct {
	DecoderName   string
	Channels      audio.ChannelLayout
	SampleRate    int
	BitsPerSample int
}

// ProcessInfo holds state shared between the pipeline and its owner
type ProcessInfo struct {
	mu         sync.RWMutex
	realtime   bool
	tempoMin   float64
	tempoMax   float64
	settings   AudioSettings
	allowDTSHD bool
	audio      [len(sink.Roles)]AudioInfo
}

// NewProcessInfo returns process info allowing only normal speed
func NewProcessInfo() *ProcessInfo {
	return &ProcessInfo{
		tempoMin:   1.0,
		tempoMax:   1.0,
		allowDTSHD: true,
	}
}

// SetRealtime marks the stream as live
func (pi *ProcessInfo) SetRealtime(realtime bool) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.realtime = realtime
}

// IsRealtime reports whether the stream is live
func (pi *ProcessInfo) IsRealtime() bool {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	return pi.realtime
}

// SetTempoRange sets the playback tempos the sinks can render directly
func (pi *ProcessInfo) SetTempoRange(min, max float64) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.tempoMin = min
	pi.tempoMax = max
}

// IsTempoAllowed reports whether audio is rendered at tempo (1.0 is normal)
func (pi *ProcessInfo) IsTempoAllowed(tempo float64) bool {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	if tempo == 1.0 {
		return true
	}
	return pi.tempoMin < pi.tempoMax && tempo >= pi.tempoMin && tempo <= pi.tempoMax
}

// SetSettings replaces the user audio settings
func (pi *ProcessInfo) SetSettings(s AudioSettings) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.settings = s
}

// Settings returns the user audio settings
func (pi *ProcessInfo) Settings() AudioSettings {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	return pi.settings
}

// SetAllowDTSHDDecode permits the DTS-HD bitstream instead of its core
func (pi *ProcessInfo) SetAllowDTSHDDecode(allow bool) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.allowDTSHD = allow
}

func (pi *ProcessInfo) AllowDTSHDDecode() bool {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	return pi.allowDTSHD
}

// ResetAudioCodecInfo clears the published info of both zones
func (pi *ProcessInfo) ResetAudioCodecInfo() {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	for i := range pi.audio {
		pi.audio[i] = AudioInfo{}
	}
}

// SetAudioInfo publishes what role is rendering
func (pi *ProcessInfo) SetAudioInfo(role sink.Role, info AudioInfo) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.audio[role] = info
}

// AudioInfo returns what role is rendering
func (pi *ProcessInfo) AudioInfo(role sink.Role) AudioInfo {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	return pi.audio[role]
}

// ABOUTME: Software volume shared by the output backends
// ABOUTME: Applies volume and mute to 24-bit samples with clipping
package output

import (
	"log"
	"sync"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// volume implements VolumeControl; outputs embed it
type volume struct {
	mu     sync.Mutex
	level  int
	muted  bool
	logTag string
}

func newVolume(tag string) volume {
	return volume{level: 100, logTag: tag}
}

// SetVolume sets the volume (0-100)
func (v *volume) SetVolume(level int) {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	v.mu.Lock()
	v.level = level
	v.mu.Unlock()
	log.Printf("%s volume set to %d", v.logTag, level)
}

// SetMuted sets mute state
func (v *volume) SetMuted(muted bool) {
	v.mu.Lock()
	v.muted = muted
	v.mu.Unlock()
	log.Printf("%s muted: %v", v.logTag, muted)
}

// GetVolume returns current volume
func (v *volume) GetVolume() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.level
}

// IsMuted returns mute state
func (v *volume) IsMuted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.muted
}

func (v *volume) apply(samples []int32) []int32 {
	v.mu.Lock()
	level, muted := v.level, v.muted
	v.mu.Unlock()

	if level == 100 && !muted {
		return samples
	}
	return applyVolume(samples, level, muted)
}

// applyVolume applies volume and mute to samples with clipping protection
func applyVolume(samples []int32, volume int, muted bool) []int32 {
	multiplier := getVolumeMultiplier(volume, muted)

	result := make([]int32, len(samples))
	for i, sample := range samples {
		scaled := int64(float64(sample) * multiplier)

		// Clamp to 24-bit range to prevent overflow
		if scaled > audio.Max24Bit {
			scaled = audio.Max24Bit
		} else if scaled < audio.Min24Bit {
			scaled = audio.Min24Bit
		}

		result[i] = int32(scaled)
	}

	return result
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}

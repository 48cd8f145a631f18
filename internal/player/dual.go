// ABOUTME: Secondary zone output and inter-zone drift correction
// ABOUTME: Inserts silence when the secondary runs ahead and skips when it lags
package player

import (
	"log"
	"math"

	"github.com/Resonate-Protocol/resonate-zones/internal/sink"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// processSecondaryOutput drives the secondary zone one step. It returns
// false when there is nothing to do or the zone is not rendering.
func (p *Player) processSecondaryOutput() bool {
	sec := p.outputs[sink.Secondary]
	if sec.codec == nil {
		return false
	}

	fresh := false
	if sec.frame.Consumed() {
		if !p.pull(sec) {
			return false
		}
		fresh = true
		p.prepareSink(sec)
		p.applySettings(sec)
	}

	if sec.sink.IsDisabled() || sec.sink.IsDumb() {
		p.audioDiff = 0
		sec.frame.FramesOut = sec.frame.NbFrames
		return false
	}

	p.syncSecondary(sec, fresh)

	if p.secondarySkip {
		p.counters.FramesSkipped += sec.frame.Remaining()
		sec.frame.FramesOut = sec.frame.NbFrames
		return true
	}

	n := sec.sink.AddPackets(&sec.frame)
	sec.frame.FramesOut += n
	if n == 0 {
		// a stuck sink must not hold up the merge buffer
		sec.frame.FramesOut = sec.frame.NbFrames
	}
	return true
}

// drift returns primary minus secondary sink delay, in time base units
func (p *Player) drift() float64 {
	return p.outputs[sink.Primary].sink.Delay() - p.outputs[sink.Secondary].sink.Delay()
}

// syncSecondary measures drift between the zones and corrects it. Silence
// is inserted ahead of a fresh frame when the secondary plays early; the
// secondary skips frames while it plays late.
func (p *Player) syncSecondary(sec *output, fresh bool) {
	f := &sec.frame
	if f.NbFrames == 0 || f.Planes == 0 {
		return
	}

	threshold := math.Max(p.cfg.DriftFloor, f.Duration)
	ddiff := p.drift()
	p.audioDiff = ddiff / audio.TimeBase

	if ddiff > threshold && fresh && !p.secondarySkip {
		p.insertSilence(sec)
	}

	if ddiff < -threshold {
		if !p.secondarySkip {
			log.Printf("Audio player: secondary zone %.1fms late, skipping", -ddiff/1000)
		}
		p.secondarySkip = true
	} else if p.secondarySkip && ddiff > 0 {
		p.secondarySkip = false
	}
}

// insertSilence submits a zeroed copy of the secondary frame ahead of it.
// The frame's real content still follows the silence, delaying the zone.
func (p *Player) insertSilence(sec *output) {
	silent := sec.frame.Clone()
	silent.FramesOut = 0
	silent.Silence()
	silent.PTS = audio.NoPTS

	for !silent.Consumed() {
		n := sec.sink.AddPackets(silent)
		if n == 0 {
			break
		}
		silent.FramesOut += n
	}

	p.counters.SilenceInserted++
	if p.counters.SilenceInserted <= 5 {
		log.Printf("Audio player: secondary zone %.1fms early, inserted %.1fms silence",
			p.audioDiff*1000, silent.Duration/1000)
	}
}

// ABOUTME: Passthrough re-evaluation and clock sync mode selection
// ABOUTME: Swaps codecs when bitstream output becomes possible or impossible
package player

import (
	"log"

	"github.com/Resonate-Protocol/resonate-zones/internal/sink"
)

// switchCodecIfNeeded probes fresh codecs for the current stream hints and
// replaces a zone's codec only when its passthrough need changes. Zones are
// evaluated independently. It reports whether the primary codec changed.
func (p *Player) switchCodecIfNeeded() bool {
	if p.displayReset {
		log.Printf("Audio player: display reset, checking for passthrough")
	} else {
		log.Printf("Audio player: stream properties changed, checking for passthrough")
	}
	p.displayReset = false
	p.counters.PassthroughChecks++

	allowPassthrough := !p.cfg.UseDisplayAsClock && !p.pinfo.IsRealtime() && p.syncType != SyncResample

	switched := p.switchCodec(p.outputs[sink.Primary], allowPassthrough)
	if p.dual {
		p.switchCodec(p.outputs[sink.Secondary], allowPassthrough)
	}
	return switched
}

func (p *Player) switchCodec(o *output, allowPassthrough bool) bool {
	probe, err := p.createCodec(o.role, p.hints, allowPassthrough)
	if err != nil {
		log.Printf("Audio player: %s codec probe failed: %v", o.role, err)
		return false
	}
	if o.codec != nil && probe.NeedPassthrough() == o.codec.NeedPassthrough() {
		probe.Dispose()
		return false
	}

	log.Printf("Audio player: %s codec switched to %s", o.role, probe.Name())
	if o.codec != nil {
		o.codec.Dispose()
	}
	o.codec = probe
	o.acc.Clear()
	p.counters.CodecSwitches++
	return true
}

// setSyncType settles how clock error is corrected for the current frame
func (p *Player) setSyncType(passthrough bool) {
	if passthrough && p.syncType == SyncResample {
		p.syncType = SyncDiscontinuous
	}

	maxSpeedAdjust := 0.0
	if p.syncType == SyncResample {
		maxSpeedAdjust = p.maxSpeedAdjust
	}
	p.clock.SetMaxSpeedAdjust(maxSpeedAdjust)

	if p.syncType != p.prevSyncType {
		log.Printf("Audio player: sync type set to %d: %s", p.syncType, p.syncType)
		p.prevSyncType = p.syncType
		p.outputs[sink.Primary].sink.SetResampleMode(p.syncType == SyncResample)
	}
}

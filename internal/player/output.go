// ABOUTME: Output step of the render goroutine
// ABOUTME: Pulls decoded frames, keeps sinks matched to their format and submits audio
package player

import (
	"log"
	"math"

	"github.com/Resonate-Protocol/resonate-zones/internal/sink"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// processDecoderOutput moves decoded audio into the sinks. It returns false
// when the primary codec has nothing more to give.
func (p *Player) processDecoderOutput() bool {
	pri := p.outputs[sink.Primary]

	if pri.frame.Consumed() {
		if !p.pull(pri) {
			if p.dual {
				return p.processSecondaryOutput()
			}
			return false
		}

		f := &pri.frame
		if f.HasTimestamp {
			p.audioClock = f.PTS
		}

		if f.Format.SampleRate > 0 && p.hints.SampleRate != f.Format.SampleRate {
			// the rate changed, or is known for the first time
			p.hints.SampleRate = f.Format.SampleRate
			if p.switchCodecIfNeeded() {
				p.discard(pri)
				return false
			}
		}

		// live streams sync by resampling, which rules out passthrough
		if p.pinfo.IsRealtime() && p.syncType != SyncResample {
			p.syncType = SyncResample
			if p.switchCodecIfNeeded() {
				p.discard(pri)
				return false
			}
		}

		if p.displayReset {
			if p.switchCodecIfNeeded() {
				p.discard(pri)
				return false
			}
		}

		p.prepareSink(pri)
		p.applySettings(pri)
		p.setSyncType(f.Passthrough)
	}

	p.correctClockError(pri)

	n := pri.sink.AddPackets(&pri.frame)
	p.audioClock += pri.frame.DurationOf(n)
	pri.frame.FramesOut += n

	if p.dual {
		p.processSecondaryOutput()
	}

	if p.syncState == SyncStarting {
		p.checkStarted()
	}
	return true
}

// pull fetches the next frame for o and stamps it from the audio clock when
// the codec gave no timestamp
func (p *Player) pull(o *output) bool {
	o.frame.HasDownmix = false
	if !o.acc.Fill(o.codec) || !o.acc.Take(&o.frame) {
		return false
	}

	o.frame.HasTimestamp = o.frame.PTS != audio.NoPTS
	if !o.frame.HasTimestamp {
		o.frame.PTS = p.audioClock
	}

	// the demuxer's layout tag wins over what a FLAC decoder reports
	if p.hints.Codec == "flac" && p.hints.ChannelLayout != 0 {
		if layout := audio.LayoutFromMask(p.hints.ChannelLayout); layout.Count() == o.frame.Format.Channels {
			o.frame.Format.Layout = layout
		}
	}
	return true
}

// discard drops the frame in o after a codec switch
func (p *Player) discard(o *output) {
	o.frame.Clear()
	o.acc.Clear()
}

// prepareSink recreates the sink of o when it cannot take the frame's format
func (p *Player) prepareSink(o *output) {
	if o.sink.IsValidFormat(&o.frame) {
		return
	}

	if p.speed != 0 {
		o.sink.Drain()
	}
	o.sink.Destroy(false)

	if !o.sink.Create(&o.frame, p.hints.Codec, p.syncType == SyncResample) {
		log.Printf("Audio player: failed to create %s sink", o.role)
	}

	if p.syncState == SyncInSync {
		o.sink.Resume()
	}
}

// applySettings applies volume amplification and the center downmix level
func (p *Player) applySettings(o *output) {
	settings := p.pinfo.Settings()
	o.sink.SetDynamicRangeCompression(int64(settings.VolumeAmplification * 100))

	o.frame.CenterMixLevel = centerMixLevel(o.frame.HasDownmix, o.frame.CenterMixLevel, settings.CenterMixLevel)
	o.frame.HasDownmix = true
}

// centerMixLevel offsets the stream's center level (√½ if it has none) by db
func centerMixLevel(hasDownmix bool, level, db float64) float64 {
	clev := level
	if !hasDownmix {
		clev = math.Sqrt2 / 2
	}
	cur := 20 * math.Log10(clev)
	return math.Pow(10, (cur+db)/20)
}

// correctClockError feeds primary sink sync error back into the clock
func (p *Player) correctClockError(o *output) {
	if p.syncType != SyncDiscontinuous {
		return
	}
	syncError := o.sink.SyncError()
	if math.Abs(syncError) <= syncErrorTolerance {
		return
	}
	if c := p.clock.ErrorAdjust(syncError, "player.correctClockError"); c != 0 {
		o.sink.SetSyncErrorCorrection(-c)
	}
}

// checkStarted declares playback started once the primary sink is full enough
func (p *Player) checkStarted() {
	pri := p.outputs[sink.Primary]
	cacheTotal := pri.sink.CacheTotal()
	if pri.sink.CacheTime() < cacheTotal*p.cfg.StartedCacheRatio {
		return
	}

	p.syncState = SyncWaitSync
	p.stalled = false

	timestamp := audio.NoPTS
	if pri.frame.HasTimestamp {
		timestamp = pri.frame.PTS
	}
	p.parent.Post(Started{
		Session:    p.session,
		CacheTotal: pri.sink.MaxDelay() * audio.TimeBase,
		CacheTime:  pri.sink.Delay(),
		Timestamp:  timestamp,
	})
	log.Printf("Audio player: started, cache %.3fs of %.3fs", pri.sink.CacheTime(), cacheTotal)

	p.hints.Channels = pri.frame.Format.Layout.Count()
	p.channels.Store(int32(p.hints.Channels))
	for _, o := range p.activeOutputs() {
		p.pinfo.SetAudioInfo(o.role, AudioInfo{
			DecoderName:   o.codec.Name(),
			Channels:      o.frame.Format.Layout,
			SampleRate:    o.frame.Format.SampleRate,
			BitsPerSample: o.frame.BitsPerSample,
		})
	}
	p.parent.Post(AVChange{Session: p.session})
}

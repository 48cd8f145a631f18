// ABOUTME: Published pipeline status and packet bitrate statistics
// ABOUTME: Builds the status line read by displays while the pipeline runs
package player

import (
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/sink"
)

// bitrateStats measures the rate of compressed data fed to the codecs
type bitrateStats struct {
	now     func() time.Time
	start   time.Time
	bytes   int64
	bitrate float64 // bits per second over the last full window
}

const bitrateWindow = time.Second

func newBitrateStats() *bitrateStats {
	return &bitrateStats{now: time.Now}
}

// Start begins a new measurement
func (b *bitrateStats) Start() {
	b.start = b.now()
	b.bytes = 0
	b.bitrate = 0
}

// AddSampleBytes records n bytes of compressed input
func (b *bitrateStats) AddSampleBytes(n int) {
	b.bytes += int64(n)
	elapsed := b.now().Sub(b.start)
	if elapsed >= bitrateWindow {
		b.bitrate = float64(b.bytes*8) / elapsed.Seconds()
		b.start = b.now()
		b.bytes = 0
	}
}

// Bitrate returns bits per second
func (b *bitrateStats) Bitrate() float64 {
	return b.bitrate
}

// updatePlayerInfo publishes the status line, playing pts and passthrough state
func (p *Player) updatePlayerInfo() {
	var s strings.Builder
	fmt.Fprintf(&s, "aq:%2d%%", min(99, p.queue.Level()))
	fmt.Fprintf(&s, ", Kb/s:%.2f", p.stats.Bitrate()/1024.0)

	// the inverse reads as playback speed
	pri := p.outputs[sink.Primary]
	if p.syncType == SyncResample {
		if ratio := pri.sink.ResampleRatio(); ratio > 0 {
			fmt.Fprintf(&s, ", rr:%.5f", 1.0/ratio)
		}
	}

	if p.dual {
		fmt.Fprintf(&s, ", a1/a2:%.3f", p.audioDiff)
	}

	sec := p.outputs[sink.Secondary]
	info := Info{
		Text:        s.String(),
		PTS:         pri.sink.PlayingPts(),
		Passthrough: pri.codec != nil && pri.codec.NeedPassthrough() && (!p.dual || (sec.codec != nil && sec.codec.NeedPassthrough())),
		SyncState:   p.syncState,
		SyncType:    p.syncType,
		Dual:        p.dual,
		AudioDiff:   p.audioDiff,
		Counters:    p.counters,
	}

	p.infoMu.Lock()
	p.info = info
	p.infoMu.Unlock()
}

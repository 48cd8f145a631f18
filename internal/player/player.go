// ABOUTME: Audio render pipeline for one or two synchronized zones
// ABOUTME: Owns the message queue, codecs and sinks driven by the render goroutine
package player

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/clock"
	"github.com/Resonate-Protocol/resonate-zones/internal/msgqueue"
	"github.com/Resonate-Protocol/resonate-zones/internal/sink"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/decode"
	"github.com/google/uuid"
)

// Clock is the master playback clock the pipeline renders against
type Clock interface {
	GetClock() float64
	ErrorAdjust(err float64, tag string) float64
	SetMaxSpeedAdjust(v float64)
}

// Config tunes a pipeline
type Config struct {
	// DualOutput mirrors the stream to the secondary zone
	DualOutput bool

	// UseDisplayAsClock disables passthrough and forces resample sync
	UseDisplayAsClock bool

	// StartedCacheRatio is the sink fill, relative to its cache total, at
	// which playback is declared started
	StartedCacheRatio float64

	// DriftFloor is the smallest drift corrected between zones (time base units)
	DriftFloor float64

	// MaxSpeedAdjust is handed to the clock in resample mode
	MaxSpeedAdjust float64

	// SecondaryMergeFrames is the merged packet size for the secondary zone
	SecondaryMergeFrames int

	MaxDataSize int
	MaxTimeSize float64 // seconds
}

// DefaultConfig returns the standard pipeline tuning
func DefaultConfig() Config {
	return Config{
		StartedCacheRatio:    0.75,
		DriftFloor:           audio.MsecToTime(50),
		MaxSpeedAdjust:       5.0,
		SecondaryMergeFrames: 1024,
		MaxDataSize:          msgqueue.DefaultMaxDataSize,
		MaxTimeSize:          msgqueue.DefaultMaxTimeSize,
	}
}

const (
	// syncTimeout is how long after a resync a timeout counts as a stall
	syncTimeout = 3 * time.Second

	// synchronizeWait bounds one wait on a Synchronize barrier
	synchronizeWait = 100 * time.Millisecond

	// resyncFlushMargin is how far past the output position a resync must
	// land before buffered audio is flushed
	resyncFlushMargin = 0.5 * audio.TimeBase

	// syncErrorTolerance is the sink sync error left to the sink itself
	syncErrorTolerance = 10 * 1000 // 10ms
)

// output is the decode and render state of one zone
type output struct {
	role  sink.Role
	sink  sink.Sink
	codec decode.Codec
	frame audio.Frame
	acc   *Accumulator
}

// Info is the published status of the pipeline
type Info struct {
	Text        string
	PTS         float64
	Passthrough bool
	SyncState   SyncState
	SyncType    SyncType
	Dual        bool
	AudioDiff   float64 // seconds, primary minus secondary
	Counters    Counters
}

// Player decodes one audio stream and renders it to a primary zone,
// optionally mirrored to a secondary zone kept in step with the first.
//
// All decode and render state is owned by a single goroutine fed through a
// message queue. The exported methods only touch the queue, the sinks and
// the published info.
type Player struct {
	cfg    Config
	clock  Clock
	codecs decode.Factory
	pinfo  *ProcessInfo
	parent EventSink
	queue  *msgqueue.Queue

	outputs [len(sink.Roles)]*output

	// render goroutine state
	hints          audio.StreamInfo
	dual           bool
	secondarySkip  bool
	audioClock     float64
	audioDiff      float64
	speed          int
	paused         bool
	stalled        bool
	syncState      SyncState
	syncType       SyncType
	prevSyncType   SyncType
	maxSpeedAdjust float64
	displayReset   bool
	onlyPrio       bool
	syncDeadline   time.Time
	stats          *bitrateStats
	counters       Counters
	session        uuid.UUID
	now            func() time.Time

	// shared with callers
	publishedSpeed atomic.Int32
	channels       atomic.Int32
	infoMu         sync.Mutex
	info           Info
	done           chan struct{}
}

// Counters tallies corrective actions, for tests and status displays
type Counters struct {
	SilenceInserted   int
	FramesSkipped     int
	CodecSwitches     int
	PassthroughChecks int
	DecodeErrors      int
}

// New creates a pipeline. Nothing runs until OpenStream.
func New(clk Clock, sinks sink.Factory, codecs decode.Factory, pinfo *ProcessInfo, parent EventSink, cfg Config) *Player {
	if pinfo == nil {
		pinfo = NewProcessInfo()
	}
	if parent == nil {
		parent = EventFunc(func(Event) {})
	}
	if cfg.StartedCacheRatio <= 0 {
		cfg.StartedCacheRatio = DefaultConfig().StartedCacheRatio
	}

	q := msgqueue.New("audio")
	if cfg.MaxDataSize > 0 {
		q.SetMaxDataSize(cfg.MaxDataSize)
	}
	if cfg.MaxTimeSize > 0 {
		q.SetMaxTimeSize(cfg.MaxTimeSize)
	}

	p := &Player{
		cfg:          cfg,
		clock:        clk,
		codecs:       codecs,
		pinfo:        pinfo,
		parent:       parent,
		queue:        q,
		speed:        clock.PlaySpeedNormal,
		stalled:      true,
		syncState:    SyncStarting,
		syncType:     SyncDiscontinuous,
		prevSyncType: syncUnset,
		stats:        newBitrateStats(),
		now:          time.Now,
		info:         Info{PTS: audio.NoPTS},
	}
	p.publishedSpeed.Store(clock.PlaySpeedNormal)
	for _, role := range sink.Roles {
		merge := 0
		if role == sink.Secondary {
			merge = cfg.SecondaryMergeFrames
		}
		p.outputs[role] = &output{
			role: role,
			sink: sinks(role),
			acc:  NewAccumulator(merge),
		}
	}
	return p
}

// OpenStream selects codecs for hints. The first call starts the render
// goroutine; later calls hand the new codecs over through the queue.
// It returns false if no codec can decode the stream.
func (p *Player) OpenStream(hints audio.StreamInfo) bool {
	log.Printf("Audio player: finding codec for %s (%dHz, %dch)", hints.Codec, hints.SampleRate, hints.Channels)

	allowPassthrough := !p.cfg.UseDisplayAsClock && !p.pinfo.IsRealtime()

	codec, err := p.createCodec(sink.Primary, hints, allowPassthrough)
	if err != nil {
		log.Printf("Audio player: unsupported audio codec: %v", err)
		return false
	}

	var codec2 decode.Codec
	if p.cfg.DualOutput {
		codec2, err = p.createCodec(sink.Secondary, hints, allowPassthrough)
		if err != nil {
			log.Printf("Audio player: unsupported secondary codec, dual output disabled: %v", err)
			codec2 = nil
		}
	}

	if p.queue.IsInited() {
		if err := p.queue.Put(&msgqueue.StreamChange{Hints: hints, Codec: codec, Codec2: codec2}, 0); err != nil {
			log.Printf("Audio player: failed to queue stream change: %v", err)
			codec.Dispose()
			if codec2 != nil {
				codec2.Dispose()
			}
			return false
		}
		return true
	}

	p.openStream(hints, codec, codec2)
	p.queue.Init()
	p.done = make(chan struct{})
	log.Printf("Audio player: starting render goroutine")
	go p.run(p.done)
	return true
}

// createCodec builds the codec for role, negotiating passthrough with its sink
func (p *Player) createCodec(role sink.Role, hints audio.StreamInfo, allowPassthrough bool) (decode.Codec, error) {
	streamType := p.outputs[role].sink.PassthroughStreamType(hints.Codec, hints.SampleRate, hints.Profile)
	return p.codecs.CreateAudioCodec(hints, decode.Options{
		AllowPassthrough: allowPassthrough,
		StreamType:       streamType,
		AllowDTSHD:       p.pinfo.AllowDTSHDDecode(),
		Secondary:        role == sink.Secondary,
	})
}

// openStream installs codecs and resets per-stream state
func (p *Player) openStream(hints audio.StreamInfo, codec, codec2 decode.Codec) {
	for _, o := range p.outputs {
		if o.codec != nil {
			o.codec.Dispose()
			o.codec = nil
		}
	}
	p.outputs[sink.Primary].codec = codec
	p.outputs[sink.Secondary].codec = codec2
	p.dual = codec2 != nil
	if !p.dual && p.cfg.DualOutput {
		// nothing will feed the secondary zone for this stream
		p.outputs[sink.Secondary].sink.Destroy(false)
	}

	p.pinfo.ResetAudioCodecInfo()

	p.hints = hints
	format := codec.Format()
	if n := format.Layout.Count(); n > 0 {
		p.hints.Channels = n
	}
	if format.SampleRate > 0 {
		p.hints.SampleRate = format.SampleRate
	}
	p.channels.Store(int32(p.hints.Channels))

	// the codec may only now know the rate, so passthrough could not be
	// negotiated when it was built
	if hints.SampleRate != p.hints.SampleRate {
		p.switchCodecIfNeeded()
	}

	p.audioClock = 0
	p.stalled = p.queue.Count(msgqueue.TypePacket) == 0

	p.prevSyncType = syncUnset
	p.syncType = SyncDiscontinuous
	if p.cfg.UseDisplayAsClock || p.pinfo.IsRealtime() {
		p.syncType = SyncResample
	}
	p.maxSpeedAdjust = p.cfg.MaxSpeedAdjust

	p.session = uuid.New()
	log.Printf("Audio player: stream %s opened: %s %dHz %dch, dual=%v",
		p.session, hints.Codec, p.hints.SampleRate, p.hints.Channels, p.dual)

	p.parent.Post(AVChange{Session: p.session})
	p.syncState = SyncStarting
}

// CloseStream stops the render goroutine and releases codecs and sinks.
// With wait set, and playback running, queued and buffered audio is played
// out first; otherwise it is dropped.
func (p *Player) CloseStream(wait bool) {
	wait = wait && p.publishedSpeed.Load() > 0

	if wait {
		timeout := time.Duration((p.queue.TimeSize() + 2) * float64(time.Second))
		p.queue.WaitUntilEmpty(timeout)
	}

	p.queue.Abort()

	log.Printf("Audio player: waiting for render goroutine to exit")
	if p.done != nil {
		<-p.done
		p.done = nil
	}

	log.Printf("Audio player: closing sinks")
	for _, o := range p.activeOutputs() {
		if wait {
			o.sink.Drain()
		} else {
			o.sink.Flush()
		}
	}
	for _, o := range p.activeOutputs() {
		o.sink.Destroy(true)
	}

	p.queue.End()

	for _, o := range p.outputs {
		if o.codec != nil {
			o.codec.Dispose()
			o.codec = nil
		}
		o.frame.Clear()
		o.acc.Clear()
	}
	p.dual = false
}

// activeOutputs returns the primary and, with dual output on, the secondary
func (p *Player) activeOutputs() []*output {
	if p.dual {
		return p.outputs[:]
	}
	return p.outputs[:1]
}

// SendMessage queues msg at priority
func (p *Player) SendMessage(msg msgqueue.Message, priority int) error {
	return p.queue.Put(msg, priority)
}

// SetSpeed changes playback speed (clock.PlaySpeedNormal is 1x)
func (p *Player) SetSpeed(speed int) {
	p.publishedSpeed.Store(int32(speed))
	if p.queue.IsInited() {
		if err := p.queue.Put(msgqueue.SetSpeed{Speed: speed}, 1); err != nil {
			log.Printf("Audio player: failed to queue speed change: %v", err)
		}
		return
	}
	p.speed = speed
}

// Flush drops queued packets and asks the render goroutine to flush
func (p *Player) Flush(sync bool) {
	p.queue.Flush()
	if err := p.queue.Put(msgqueue.Flush{Sync: sync}, 1); err != nil {
		log.Printf("Audio player: failed to queue flush: %v", err)
	}

	p.outputs[sink.Primary].sink.AbortAddPackets()
	if p.cfg.DualOutput {
		p.outputs[sink.Secondary].sink.AbortAddPackets()
	}
}

// AcceptsData reports whether the queue has room for more packets
func (p *Player) AcceptsData() bool {
	return !p.queue.IsFull()
}

// Level returns queue fill in percent
func (p *Player) Level() int {
	return p.queue.Level()
}

// HasData reports whether packets are queued
func (p *Player) HasData() bool {
	return p.queue.DataSize() > 0
}

// IsInited reports whether a stream is open
func (p *Player) IsInited() bool {
	return p.queue.IsInited()
}

// AudioChannels returns the channel count of the open stream
func (p *Player) AudioChannels() int {
	return int(p.channels.Load())
}

// PlayerInfo returns the status line for displays
func (p *Player) PlayerInfo() string {
	p.infoMu.Lock()
	defer p.infoMu.Unlock()
	return p.info.Text
}

// CurrentInfo returns the full published status
func (p *Player) CurrentInfo() Info {
	p.infoMu.Lock()
	defer p.infoMu.Unlock()
	return p.info
}

// IsPassthrough reports whether every active zone receives a bitstream
func (p *Player) IsPassthrough() bool {
	p.infoMu.Lock()
	defer p.infoMu.Unlock()
	return p.info.Passthrough
}

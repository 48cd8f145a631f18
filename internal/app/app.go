// ABOUTME: Application conductor for the zone pipeline
// ABOUTME: Feeds a source into the player and answers its events with clock resyncs
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/clock"
	"github.com/Resonate-Protocol/resonate-zones/internal/config"
	"github.com/Resonate-Protocol/resonate-zones/internal/msgqueue"
	"github.com/Resonate-Protocol/resonate-zones/internal/player"
	"github.com/Resonate-Protocol/resonate-zones/internal/protocol"
	"github.com/Resonate-Protocol/resonate-zones/internal/sink"
	"github.com/Resonate-Protocol/resonate-zones/internal/source"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/output"
	"golang.org/x/sync/errgroup"
)

// errFinished ends the run group once a finite source has played out
var errFinished = errors.New("source finished")

// feedRetry is how long the feeder backs off while the queue is full
const feedRetry = 10 * time.Millisecond

// rateFollowInterval is how often the clock follows the primary sink's
// resample ratio
const rateFollowInterval = 500 * time.Millisecond

// commander is a source that relays transport requests from a server
type commander interface {
	Commands() <-chan protocol.ServerCommand
}

type stateReporter interface {
	SendState(state protocol.ClientState) error
}

type metadataSource interface {
	Metadata() protocol.StreamMetadata
}

// App owns the master clock, the zones and the render pipeline
type App struct {
	cfg    *config.Config
	clock  *clock.PlaybackClock
	zones  *sink.Zones
	pinfo  *player.ProcessInfo
	events player.Events
	player *player.Player
	dual   bool

	mu    sync.Mutex
	src   source.Source
	hints audio.StreamInfo

	started   atomic.Bool
	paused    atomic.Bool
	closeOnce sync.Once
}

// New builds the zones and the pipeline described by cfg
func New(cfg *config.Config) (*App, error) {
	return newApp(cfg, decode.Default)
}

func newApp(cfg *config.Config, codecs decode.Factory) (*App, error) {
	clk := clock.NewPlaybackClock()

	var secondary *sink.Zone
	if cfg.Secondary.Enabled {
		z := cfg.Secondary.Zone()
		secondary = &z
	}
	zones, err := sink.NewZones(cfg.Primary.Zone(), secondary, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to build zones: %w", err)
	}

	pinfo := player.NewProcessInfo()
	cfg.ApplyTo(pinfo)

	events := player.NewEvents(32)
	return &App{
		cfg:    cfg,
		clock:  clk,
		zones:  zones,
		pinfo:  pinfo,
		events: events,
		player: player.New(clk, zones.Factory(), codecs, pinfo, events, cfg.PlayerConfig()),
		dual:   cfg.Secondary.Enabled,
	}, nil
}

// Run plays src until it ends or ctx is cancelled. The source is closed on
// return.
func (a *App) Run(ctx context.Context, src source.Source) error {
	hints := src.Hints()
	a.mu.Lock()
	a.src = src
	a.hints = hints
	a.mu.Unlock()

	a.clock.Pause(true)
	a.clock.Discontinuity(0)
	a.pinfo.SetRealtime(hints.Realtime)
	if !a.player.OpenStream(hints) {
		src.Close()
		return fmt.Errorf("failed to open %s stream", hints.Codec)
	}
	log.Printf("Playing %s %dHz %dch to %d zone(s)", hints.Codec, hints.SampleRate, hints.Channels, a.zoneCount())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.feed(gctx) })
	g.Go(func() error { return a.handleEvents(gctx) })
	g.Go(func() error { return a.followSinkRate(gctx) })
	if c, ok := src.(commander); ok {
		g.Go(func() error { return a.handleCommands(gctx, c) })
	}

	err := g.Wait()
	finished := errors.Is(err, errFinished)
	a.shutdown(finished)

	if finished || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) zoneCount() int {
	if a.dual {
		return 2
	}
	return 1
}

// feed moves packets from the source into the pipeline queue
func (a *App) feed(ctx context.Context) error {
	for {
		pkt, err := a.src.ReadPacket(ctx)
		switch {
		case errors.Is(err, source.ErrFormatChanged):
			if err := a.reopen(); err != nil {
				return err
			}
			continue
		case errors.Is(err, io.EOF):
			return a.finish(ctx)
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("source read failed: %w", err)
		}

		for !a.player.AcceptsData() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(feedRetry):
			}
		}
		if err := a.player.SendMessage(&msgqueue.DataPacket{Packet: pkt}, 0); err != nil {
			return fmt.Errorf("failed to queue packet: %w", err)
		}
	}
}

// reopen switches the pipeline to the source's new format
func (a *App) reopen() error {
	a.mu.Lock()
	hints := a.src.Hints()
	a.hints = hints
	a.mu.Unlock()

	log.Printf("Stream format changed: %s %dHz %dch", hints.Codec, hints.SampleRate, hints.Channels)
	a.pinfo.SetRealtime(hints.Realtime)
	a.clock.Pause(true)
	a.started.Store(false)
	if !a.player.OpenStream(hints) {
		return fmt.Errorf("failed to open %s stream", hints.Codec)
	}
	return nil
}

// finish waits for the queue to empty after the source ends
func (a *App) finish(ctx context.Context) error {
	if err := a.player.SendMessage(msgqueue.EOF{}, 0); err != nil {
		log.Printf("Failed to send end of stream: %v", err)
	}

	// a stream shorter than the start threshold never reports Started
	if !a.started.Load() {
		a.resync(a.clock.GetClock())
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for a.player.HasData() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return errFinished
}

// followSinkRate speeds the clock up or down with the primary zone while the
// pipeline runs in resample mode. The pipeline sets a non-zero speed limit
// on the clock only in that mode.
func (a *App) followSinkRate(ctx context.Context) error {
	ticker := time.NewTicker(rateFollowInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if s := a.zones.Get(sink.Primary); s != nil {
			a.followRatio(s.ResampleRatio())
		}
	}
}

// followRatio converts a sink resample ratio into a clock speed adjustment.
// A ratio below 1 means the zone is ahead of the clock, so the clock runs
// faster by the same share.
func (a *App) followRatio(ratio float64) {
	if a.clock.MaxSpeedAdjust() == 0 {
		if a.clock.SpeedAdjust() != 0 {
			a.clock.SetSpeedAdjust(0)
		}
		return
	}
	a.clock.SetSpeedAdjust((1 - ratio) * 100)
}

func (a *App) handleEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-a.events:
			a.handleEvent(ev)
		}
	}
}

func (a *App) handleEvent(ev player.Event) {
	switch ev := ev.(type) {
	case player.Started:
		pts := a.clock.GetClock()
		if ev.Timestamp != audio.NoPTS {
			pts = ev.Timestamp - ev.CacheTime
		}
		log.Printf("Pipeline started (session %s): cache %.0fµs of %.0fµs, resync at %.0f",
			ev.Session, ev.CacheTime, ev.CacheTotal, pts)
		a.resync(pts)

	case player.AVChange:
		info := a.pinfo.AudioInfo(sink.Primary)
		log.Printf("Audio format changed (session %s): %s %dHz %s",
			ev.Session, info.DecoderName, info.SampleRate, info.Channels)

	case player.ReportState:
		log.Printf("Pipeline state: %s", ev.SyncState)
	}
}

// resync starts the master clock at pts and releases the pipeline
func (a *App) resync(pts float64) {
	a.clock.Discontinuity(pts)
	a.clock.Pause(false)
	if err := a.player.SendMessage(msgqueue.Resync{PTS: pts}, 1); err != nil {
		log.Printf("Failed to send resync: %v", err)
	}
	a.started.Store(true)
}

func (a *App) handleCommands(ctx context.Context, c commander) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-c.Commands():
			log.Printf("Server command: %s", cmd.Command)
			switch cmd.Command {
			case "pause":
				a.SetPaused(true)
			case "play":
				a.SetPaused(false)
			case "flush":
				a.Flush()
			case "volume", "mute":
				a.setVolume(cmd)
			default:
				log.Printf("Unknown server command: %s", cmd.Command)
			}
		}
	}
}

func (a *App) setVolume(cmd protocol.ServerCommand) {
	for _, role := range sink.Roles {
		s := a.zones.Get(role)
		if s == nil {
			continue
		}
		vc, ok := s.Output().(output.VolumeControl)
		if !ok {
			continue
		}
		if cmd.Command == "volume" {
			vc.SetVolume(cmd.Volume)
		} else {
			vc.SetMuted(cmd.Mute)
		}
	}
}

// SetPaused pauses or resumes every zone together with the master clock
func (a *App) SetPaused(paused bool) {
	if a.paused.Swap(paused) == paused {
		return
	}
	speed := clock.PlaySpeedNormal
	state := "playing"
	if paused {
		speed = clock.PlaySpeedPause
		state = "paused"
	}
	a.clock.SetSpeed(speed)
	a.player.SetSpeed(speed)
	log.Printf("Playback %s", state)

	a.mu.Lock()
	src := a.src
	a.mu.Unlock()
	if r, ok := src.(stateReporter); ok {
		if err := r.SendState(protocol.ClientState{State: state, Volume: 100}); err != nil {
			log.Printf("Failed to report state: %v", err)
		}
	}
}

// TogglePause flips the pause state and returns the new one
func (a *App) TogglePause() bool {
	paused := !a.paused.Load()
	a.SetPaused(paused)
	return paused
}

// Flush drops buffered audio; playback restarts once the zones refill
func (a *App) Flush() {
	a.clock.Pause(true)
	a.started.Store(false)
	a.player.Flush(true)
}

// RequestState asks the pipeline to report its sync state
func (a *App) RequestState() {
	if err := a.player.SendMessage(msgqueue.RequestState{}, 1); err != nil {
		log.Printf("Failed to request state: %v", err)
	}
}

func (a *App) shutdown(wait bool) {
	a.closeOnce.Do(func() {
		a.player.CloseStream(wait)
		a.mu.Lock()
		src := a.src
		a.mu.Unlock()
		if src != nil {
			src.Close()
		}
	})
}

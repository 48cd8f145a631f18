// ABOUTME: Snapshot of the running pipeline for displays
// ABOUTME: Collects player, clock and per-zone state without touching the render goroutine
package app

import (
	"github.com/Resonate-Protocol/resonate-zones/internal/player"
	"github.com/Resonate-Protocol/resonate-zones/internal/protocol"
	"github.com/Resonate-Protocol/resonate-zones/internal/sink"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/output"
)

// ZoneStatus describes one zone
type ZoneStatus struct {
	Role     sink.Role
	Name     string
	Backend  string
	Audio    player.AudioInfo
	Delay    float64 // seconds
	Cache    float64 // seconds
	Disabled bool
}

// Status is a point-in-time view of the application
type Status struct {
	Hints    audio.StreamInfo
	Info     player.Info
	Level    int
	Clock    float64 // µs
	Paused   bool
	Started  bool
	Zones    []ZoneStatus
	Metadata protocol.StreamMetadata
}

// Status returns the current snapshot
func (a *App) Status() Status {
	a.mu.Lock()
	hints := a.hints
	src := a.src
	a.mu.Unlock()

	st := Status{
		Hints:   hints,
		Info:    a.player.CurrentInfo(),
		Level:   a.player.Level(),
		Clock:   a.clock.GetClock(),
		Paused:  a.paused.Load(),
		Started: a.started.Load(),
	}
	if m, ok := src.(metadataSource); ok {
		st.Metadata = m.Metadata()
	}

	for _, role := range sink.Roles {
		if role == sink.Secondary && !a.dual {
			continue
		}
		s := a.zones.Get(role)
		if s == nil {
			continue
		}
		st.Zones = append(st.Zones, ZoneStatus{
			Role:     role,
			Name:     s.Name(),
			Backend:  output.Name(s.Output()),
			Audio:    a.pinfo.AudioInfo(role),
			Delay:    s.Delay() / audio.TimeBase,
			Cache:    s.CacheTime(),
			Disabled: s.IsDisabled(),
		})
	}
	return st
}

// ABOUTME: Bubbletea model for the zone player TUI
// ABOUTME: Polls the application status and renders stream, sync and zone state
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/app"
	"github.com/Resonate-Protocol/resonate-zones/internal/player"
	tea "github.com/charmbracelet/bubbletea"
)

const refreshInterval = 250 * time.Millisecond

// boxWidth is the inner width of the frame
const boxWidth = 54

// Controller is the part of the application the UI drives
type Controller interface {
	Status() app.Status
	SetPaused(paused bool)
	TogglePause() bool
	Flush()
	RequestState()
}

// Model represents the TUI state
type Model struct {
	ctrl   Controller
	status app.Status

	// last action, shown under the controls
	notice string

	showDebug bool

	width  int
	height int
}

// StatusMsg carries a fresh status snapshot
type StatusMsg app.Status

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) poll() tea.Cmd {
	ctrl := m.ctrl
	if ctrl == nil {
		return nil
	}
	return func() tea.Msg {
		return StatusMsg(ctrl.Status())
	}
}

// Init starts polling
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), tick())
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.status = app.Status(msg)
	case tickMsg:
		return m, tea.Batch(m.poll(), tick())
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderStreamInfo())
	b.WriteString(m.renderZones())
	b.WriteString(m.renderStats())

	if m.showDebug {
		b.WriteString(m.renderDebug())
	}

	b.WriteString(m.renderHelp())
	return b.String()
}

func line(format string, args ...any) string {
	text := fmt.Sprintf(format, args...)
	return "│ " + pad(text, boxWidth-2) + " │\n"
}

func pad(s string, width int) string {
	s = truncate(s, width)
	if n := len([]rune(s)); n < width {
		s += strings.Repeat(" ", width-n)
	}
	return s
}

func rule(left, right string) string {
	return left + strings.Repeat("─", boxWidth) + right + "\n"
}

// renderHeader renders playback and sync status
func (m Model) renderHeader() string {
	st := m.status

	state := "Idle"
	switch {
	case st.Hints.Codec == "":
	case st.Paused:
		state = "Paused"
	case st.Started:
		state = "Playing"
	default:
		state = "Buffering"
	}

	syncIcon := "✗"
	switch st.Info.SyncState {
	case player.SyncInSync:
		syncIcon = "✓"
	case player.SyncWaitSync:
		syncIcon = "⚠"
	}

	title := "─ Resonate Zones "
	s := "┌" + title + strings.Repeat("─", boxWidth-len([]rune(title))) + "┐\n"
	s += line("Status: %s", state)
	s += line("Sync:   %s %s (%s)", syncIcon, st.Info.SyncState, st.Info.SyncType)
	s += rule("├", "┤")
	return s
}

// renderStreamInfo renders the stream format and metadata
func (m Model) renderStreamInfo() string {
	st := m.status
	if st.Hints.Codec == "" {
		return line("No stream")
	}

	s := line("Now Playing:")
	if st.Metadata.Title != "" {
		s += line("  Track:  %s", st.Metadata.Title)
		s += line("  Artist: %s", st.Metadata.Artist)
		s += line("  Album:  %s", st.Metadata.Album)
	} else {
		s += line("  (No metadata)")
	}

	s += line("")
	s += line("Format: %s %dHz %s %d-bit", st.Hints.Codec, st.Hints.SampleRate,
		channelName(st.Hints.Channels), st.Hints.BitDepth)
	if st.Info.Text != "" {
		s += line("Decode: %s", st.Info.Text)
	}
	return s
}

// renderZones renders one row per zone
func (m Model) renderZones() string {
	s := rule("├", "┤")
	if len(m.status.Zones) == 0 {
		return s + line("No zones")
	}
	s += line("%-9s %-8s %-7s %7s %7s", "Zone", "Name", "Output", "Delay", "Cache")
	for _, z := range m.status.Zones {
		name := z.Name
		if z.Disabled {
			name += "*"
		}
		s += line("%-9s %-8s %-7s %5.0fms %5.0fms", z.Role, truncate(name, 8), z.Backend,
			z.Delay*1000, z.Cache*1000)
		if z.Audio.DecoderName != "" {
			s += line("  %s %dHz %s", z.Audio.DecoderName, z.Audio.SampleRate, z.Audio.Channels)
		}
	}
	return s
}

// renderStats renders queue and drift figures
func (m Model) renderStats() string {
	st := m.status
	s := rule("├", "┤")
	s += line("Queue:  [%s] %d%%", renderBar(st.Level, 100, 10), st.Level)
	s += line("Clock:  %.3fs", st.Clock/1e6)
	if st.Info.Dual {
		s += line("Drift:  %+.1fms", st.Info.AudioDiff*1000)
	}
	if m.notice != "" {
		s += line("%s", m.notice)
	}
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return line("space:Pause  f:Flush  s:State  d:Debug  q:Quit") + rule("└", "┘")
}

// renderDebug renders pipeline counters
func (m Model) renderDebug() string {
	c := m.status.Info.Counters
	s := rule("├", "┤")
	s += line("DEBUG:")
	s += line("  PTS:           %.3fs", m.status.Info.PTS/1e6)
	s += line("  Silence:       %d", c.SilenceInserted)
	s += line("  Skipped:       %d", c.FramesSkipped)
	s += line("  Codec swaps:   %d", c.CodecSwitches)
	s += line("  PT checks:     %d", c.PassthroughChecks)
	s += line("  Decode errors: %d", c.DecodeErrors)
	return s
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ", "space", "p":
		if m.ctrl != nil {
			if m.ctrl.TogglePause() {
				m.notice = "Paused"
			} else {
				m.notice = "Resumed"
			}
			return m, m.poll()
		}
	case "f":
		if m.ctrl != nil {
			m.ctrl.Flush()
			m.notice = "Flushed"
			return m, m.poll()
		}
	case "s":
		if m.ctrl != nil {
			m.ctrl.RequestState()
			m.notice = "State requested"
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func renderBar(value, max, width int) string {
	if max <= 0 {
		return strings.Repeat("░", width)
	}
	filled := (value * width) / max
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	if length <= 3 {
		return string(r[:length])
	}
	return string(r[:length-3]) + "..."
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}

// ABOUTME: Line-oriented console for terminals without a full-screen UI
// ABOUTME: Reads commands with readline and prints status summaries
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Resonate-Protocol/resonate-zones/internal/app"
	"github.com/chzyer/readline"
)

var consoleCommands = []string{"pause", "play", "toggle", "flush", "status", "state", "help", "quit"}

// Console drives a Controller from typed commands
type Console struct {
	ctrl Controller
	out  io.Writer
}

// NewConsole creates a console writing to out
func NewConsole(ctrl Controller, out io.Writer) *Console {
	return &Console{ctrl: ctrl, out: out}
}

// Exec runs one command line and reports whether the console should exit
func (c *Console) Exec(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "pause":
		c.ctrl.SetPaused(true)
		fmt.Fprintln(c.out, "paused")
	case "play", "resume":
		c.ctrl.SetPaused(false)
		fmt.Fprintln(c.out, "playing")
	case "toggle":
		if c.ctrl.TogglePause() {
			fmt.Fprintln(c.out, "paused")
		} else {
			fmt.Fprintln(c.out, "playing")
		}
	case "flush":
		c.ctrl.Flush()
		fmt.Fprintln(c.out, "flushed")
	case "status":
		fmt.Fprint(c.out, FormatStatus(c.ctrl.Status()))
	case "state":
		c.ctrl.RequestState()
	case "help":
		fmt.Fprintf(c.out, "commands: %s\n", strings.Join(consoleCommands, ", "))
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command: %s", fields[0])
	}
	return false, nil
}

// Run reads commands until quit, EOF, interrupt or ctx ends
func (c *Console) Run(ctx context.Context) error {
	items := make([]readline.PrefixCompleterInterface, 0, len(consoleCommands))
	for _, cmd := range consoleCommands {
		items = append(items, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "zones> ",
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdout:          c.out,
	})
	if err != nil {
		return fmt.Errorf("failed to start console: %w", err)
	}
	defer rl.Close()

	stop := context.AfterFunc(ctx, func() { rl.Close() })
	defer stop()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		quit, err := c.Exec(line)
		if err != nil {
			fmt.Fprintf(c.out, " [!] %v\n", err)
			continue
		}
		if quit {
			return nil
		}
	}
}

// FormatStatus renders a status snapshot as plain text
func FormatStatus(st app.Status) string {
	var b strings.Builder

	if st.Hints.Codec == "" {
		b.WriteString("stream: none\n")
	} else {
		fmt.Fprintf(&b, "stream: %s %dHz %dch %d-bit\n", st.Hints.Codec, st.Hints.SampleRate,
			st.Hints.Channels, st.Hints.BitDepth)
	}
	if st.Metadata.Title != "" {
		fmt.Fprintf(&b, "track:  %s - %s\n", st.Metadata.Artist, st.Metadata.Title)
	}
	fmt.Fprintf(&b, "sync:   %s (%s) started=%t paused=%t\n", st.Info.SyncState, st.Info.SyncType,
		st.Started, st.Paused)
	fmt.Fprintf(&b, "queue:  %d%%  clock: %.3fs\n", st.Level, st.Clock/1e6)
	if st.Info.Dual {
		fmt.Fprintf(&b, "drift:  %+.1fms\n", st.Info.AudioDiff*1000)
	}
	for _, z := range st.Zones {
		state := ""
		if z.Disabled {
			state = " disabled"
		}
		fmt.Fprintf(&b, "zone:   %s %s (%s) delay=%.0fms cache=%.0fms%s\n", z.Role, z.Name, z.Backend,
			z.Delay*1000, z.Cache*1000, state)
	}
	return b.String()
}

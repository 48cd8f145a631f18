// ABOUTME: Entry point for the Resonate zone player
// ABOUTME: Parses CLI flags, builds the zones and plays the chosen source
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/app"
	"github.com/Resonate-Protocol/resonate-zones/internal/config"
	"github.com/Resonate-Protocol/resonate-zones/internal/protocol"
	"github.com/Resonate-Protocol/resonate-zones/internal/source"
	"github.com/Resonate-Protocol/resonate-zones/internal/ui"
	"github.com/Resonate-Protocol/resonate-zones/internal/version"
)

var (
	configPath   = flag.String("config", "", "YAML tuning file (default: built-in settings)")
	sourceURI    = flag.String("source", "tone", "Source: tone[:freq], ws://host:port, mdns, or a .wav/.mp3 file")
	name         = flag.String("name", "", "Player friendly name (default: hostname-zones)")
	jitter       = flag.Duration("jitter", 2*time.Second, "Network jitter buffer")
	toneCodec    = flag.String("tone-codec", "pcm", "Codec for the generated tone (pcm or opus)")
	toneDuration = flag.Duration("tone-duration", 0, "Length of the generated tone (0 plays forever)")
	logFile      = flag.String("log-file", "resonate-zones.log", "Log file path")
	noTUI        = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	console      = flag.Bool("console", false, "Line console instead of the TUI")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	useTUI := !*noTUI && !*console

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI || *console {
		// the terminal belongs to the UI
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-zones", hostname)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting %s: %s", version.String(), playerName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create player: %v", err)
	}

	src, err := source.Open(ctx, *sourceURI, source.Options{
		Name:         playerName,
		JitterBuffer: *jitter,
		Device: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		Support:      cfg.Support(),
		ToneCodec:    *toneCodec,
		ToneDuration: *toneDuration,
	})
	if err != nil {
		log.Fatalf("Failed to open source: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx, src) }()

	uiDone := make(chan struct{})
	switch {
	case useTUI:
		prog := ui.Run(a)
		go func() {
			defer close(uiDone)
			if _, err := prog.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			stop()
		}()
		defer func() {
			prog.Quit()
			<-uiDone
		}()
	case *console:
		go func() {
			defer close(uiDone)
			if err := ui.NewConsole(a, os.Stdout).Run(ctx); err != nil {
				log.Printf("Console error: %v", err)
			}
			stop()
		}()
	}

	if err := <-runErr; err != nil {
		log.Printf("Player error: %v", err)
	}
	log.Printf("Player stopped")
}

// ABOUTME: Entry point for the zone feed server
// ABOUTME: Streams a file or test tone to network zone players on the LAN
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/server"
	"github.com/Resonate-Protocol/resonate-zones/internal/source"
)

var (
	port      = flag.Int("port", 8927, "WebSocket server port")
	name      = flag.String("name", "", "Server friendly name (default: hostname-resonate-server)")
	logFile   = flag.String("log-file", "resonate-server.log", "Log file path")
	debug     = flag.Bool("debug", false, "Enable debug logging")
	noMDNS    = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	audioFile = flag.String("audio", "", "Audio file to stream (WAV or MP3). If not specified, plays test tone")
	codec     = flag.String("tone-codec", "pcm", "Codec for the test tone (pcm or opus)")
	loop      = flag.Bool("loop", true, "Restart the audio when it ends")
	lead      = flag.Duration("lead", 500*time.Millisecond, "How far ahead of play time audio is sent")
)

func main() {
	flag.Parse()

	// Set up logging (both file and console)
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, f))

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-resonate-server", hostname)
	}

	uri := "tone"
	title := "Test Tone"
	if *audioFile != "" {
		uri = *audioFile
		title = filepath.Base(*audioFile)
	}
	open := func(ctx context.Context) (source.Source, error) {
		return source.Open(ctx, uri, source.Options{ToneCodec: *codec})
	}

	// fail fast on a bad file rather than after the first client joins
	probe, err := open(context.Background())
	if err != nil {
		log.Fatalf("Failed to open audio: %v", err)
	}
	probe.Close()

	log.Printf("Starting Resonate Server: %s on port %d", serverName, *port)
	log.Printf("Logging to: %s", *logFile)
	log.Printf("Press Ctrl-C to stop")

	srv := server.New(server.Config{
		Port:       *port,
		Name:       serverName,
		EnableMDNS: !*noMDNS,
		Debug:      *debug,
		Title:      title,
		Loop:       *loop,
		Lead:       *lead,
	}, open)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Printf("Server stopped")
}

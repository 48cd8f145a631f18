// ABOUTME: Audio streaming engine for the zone feed server
// ABOUTME: Paces packets from a source and sends them to clients with play timestamps
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/protocol"
	"github.com/Resonate-Protocol/resonate-zones/internal/source"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// Opener returns a fresh source for each pass over the content
type Opener func(ctx context.Context) (source.Source, error)

// AudioEngine manages audio pacing and streaming
type AudioEngine struct {
	server *Server
	open   Opener
	loop   bool
	lead   time.Duration

	// Active clients
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// current announcement, replayed to late joiners
	start    *protocol.StreamStart
	metadata protocol.StreamMetadata

	chunks int64
}

// NewAudioEngine creates a new audio engine
func NewAudioEngine(server *Server, open Opener) *AudioEngine {
	return &AudioEngine{
		server:  server,
		open:    open,
		loop:    server.config.Loop,
		lead:    server.config.Lead,
		clients: make(map[string]*Client),
		metadata: protocol.StreamMetadata{
			Title:  server.config.Title,
			Artist: server.config.Name,
		},
	}
}

// Run streams until ctx ends, or until the source ends when not looping
func (e *AudioEngine) Run(ctx context.Context) error {
	log.Printf("Audio engine starting")
	defer log.Printf("Audio engine stopping")

	// next is the server time of the first sample of the next pass
	next := e.server.getClockMicros() + e.lead.Microseconds()
	for {
		src, err := e.open(ctx)
		if err != nil {
			return err
		}
		end, err := e.stream(ctx, src, next)
		src.Close()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !e.loop {
			return nil
		}
		next = end
	}
}

// stream sends one pass of src starting at server time base and returns the
// server time just past its last packet
func (e *AudioEngine) stream(ctx context.Context, src source.Source, base int64) (int64, error) {
	e.announce(src.Hints())

	lead := e.lead.Microseconds()
	end := base
	last := -1.0
	for {
		pkt, err := src.ReadPacket(ctx)
		if errors.Is(err, io.EOF) {
			return end, nil
		}
		if err != nil {
			return end, err
		}

		pts := pkt.PTS
		if pts == audio.NoPTS {
			pts = last
			if pts < 0 {
				pts = 0
			}
		}
		last = pts + pkt.Duration

		ts := base + int64(pts)
		end = base + int64(last)

		// release each chunk lead ahead of its play time
		if wait := time.Duration(ts-lead-e.server.getClockMicros()) * time.Microsecond; wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return end, ctx.Err()
			}
		}

		e.broadcast(protocol.AudioChunk{Timestamp: ts, Data: pkt.Data}.Bytes())
	}
}

// announce sends stream/start when the format differs from the last one
func (e *AudioEngine) announce(hints audio.StreamInfo) {
	start := protocol.StreamStart{
		Codec:         hints.Codec,
		SampleRate:    hints.SampleRate,
		Channels:      hints.Channels,
		BitDepth:      hints.BitDepth,
		ChannelLayout: hints.ChannelLayout,
		Profile:       hints.Profile,
		FrameSamples:  hints.FrameSamples,
	}
	if len(hints.CodecHeader) > 0 {
		start.CodecHeader = base64.StdEncoding.EncodeToString(hints.CodecHeader)
	}

	e.clientsMu.Lock()
	defer e.clientsMu.Unlock()

	if e.start != nil && *e.start == start {
		return
	}
	e.start = &start
	log.Printf("Streaming %s %dHz %dch %dbit", start.Codec, start.SampleRate, start.Channels, start.BitDepth)

	for _, client := range e.clients {
		e.greet(client)
	}
}

// greet sends the current stream/start and metadata; clientsMu must be held
func (e *AudioEngine) greet(client *Client) {
	if e.start == nil {
		return
	}
	if err := e.server.sendMessage(client, protocol.TypeStreamStart, *e.start); err != nil {
		log.Printf("Warning: Could not send stream/start to %s: %v", client.Name, err)
	}
	if err := e.server.sendMessage(client, protocol.TypeMetadata, e.metadata); err != nil {
		log.Printf("Warning: Could not send metadata to %s: %v", client.Name, err)
	}
}

// AddClient adds a client to receive audio
func (e *AudioEngine) AddClient(client *Client) {
	e.clientsMu.Lock()
	defer e.clientsMu.Unlock()

	e.clients[client.ID] = client
	log.Printf("Audio engine: added client %s", client.Name)
	e.greet(client)
}

// RemoveClient removes a client from audio streaming
func (e *AudioEngine) RemoveClient(client *Client) {
	e.clientsMu.Lock()
	defer e.clientsMu.Unlock()

	delete(e.clients, client.ID)
	log.Printf("Audio engine: removed client %s", client.Name)
}

// Command sends a transport command to every client
func (e *AudioEngine) Command(cmd protocol.ServerCommand) {
	e.clientsMu.RLock()
	defer e.clientsMu.RUnlock()

	for _, client := range e.clients {
		if err := e.server.sendMessage(client, protocol.TypeCommand, cmd); err != nil {
			log.Printf("Error sending %s to %s: %v", cmd.Command, client.Name, err)
		}
	}
}

func (e *AudioEngine) broadcast(chunk []byte) {
	e.clientsMu.RLock()
	defer e.clientsMu.RUnlock()

	e.chunks++
	if e.server.config.Debug && e.chunks%100 == 0 {
		log.Printf("[DEBUG] Sent %d chunks, server_time=%d", e.chunks, e.server.getClockMicros())
	}

	for _, client := range e.clients {
		if err := e.server.sendBinary(client, chunk); err != nil {
			log.Printf("Error sending audio to %s: %v", client.Name, err)
		}
	}
}

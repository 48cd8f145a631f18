// ABOUTME: Network stream source over WebSocket
// ABOUTME: Handshakes with a stream server, tracks its clock and schedules its packets
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/client"
	"github.com/Resonate-Protocol/resonate-zones/internal/clock"
	"github.com/Resonate-Protocol/resonate-zones/internal/protocol"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/google/uuid"
)

// StreamConfig holds network source configuration
type StreamConfig struct {
	ServerAddr string
	Path       string
	ClientID   string
	Name       string

	// JitterBuffer is how far ahead of play time packets are released
	JitterBuffer time.Duration

	// StartTimeout bounds the wait for the first stream/start
	StartTimeout time.Duration

	DeviceInfo protocol.DeviceInfo
	Support    protocol.PlayerSupport
}

// Stream is a Source reading a live stream from a server
type Stream struct {
	cfg    StreamConfig
	client *client.Client
	clock  *clock.ServerClock
	sched  *Scheduler

	mu       sync.Mutex
	hints    audio.StreamInfo
	meta     protocol.StreamMetadata
	base     int64
	haveBase bool

	// chunks that arrived before the first clock sample, read goroutine only
	early []earlyPacket

	started   chan struct{}
	startOnce sync.Once
	changed   atomic.Bool
	pending   *audio.Packet
	commands  chan protocol.ServerCommand
}

// maxEarly bounds the chunks held while waiting for the first clock sample
const maxEarly = 256

type earlyPacket struct {
	pkt    *audio.Packet
	server int64
}

// DialStream connects to cfg.ServerAddr and waits for the stream format
func DialStream(ctx context.Context, cfg StreamConfig) (*Stream, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.New().String()
	}
	if cfg.JitterBuffer <= 0 {
		cfg.JitterBuffer = 2 * time.Second
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 10 * time.Second
	}

	c, err := client.Dial(ctx, client.Config{
		ServerAddr:    cfg.ServerAddr,
		Path:          cfg.Path,
		ClientID:      cfg.ClientID,
		Name:          cfg.Name,
		DeviceInfo:    cfg.DeviceInfo,
		PlayerSupport: cfg.Support,
	})
	if err != nil {
		return nil, err
	}

	sc := clock.NewServerClock()
	s := &Stream{
		cfg:      cfg,
		client:   c,
		clock:    sc,
		sched:    NewScheduler(sc, cfg.JitterBuffer),
		started:  make(chan struct{}),
		commands: make(chan protocol.ServerCommand, 10),
	}

	c.Serve(client.Handlers{OnChunk: s.handleChunk, OnMessage: s.handleMessage})
	go s.sched.Run(c.Context())
	go s.timeSyncLoop()

	timer := time.NewTimer(cfg.StartTimeout)
	defer timer.Stop()
	select {
	case <-s.started:
		return s, nil
	case <-timer.C:
		err = fmt.Errorf("no stream/start within %v", cfg.StartTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	case <-c.Done():
		err = fmt.Errorf("connection closed before stream start")
	}
	s.Close()
	return nil, err
}

// SendState reports the pipeline state to the server
func (s *Stream) SendState(state protocol.ClientState) error {
	return s.client.SendState(state)
}

func (s *Stream) handleChunk(chunk protocol.AudioChunk) {
	s.mu.Lock()
	if !s.haveBase {
		s.base = chunk.Timestamp
		s.haveBase = true
	}
	pts := float64(chunk.Timestamp - s.base)
	s.mu.Unlock()

	pkt := &audio.Packet{
		Data: append([]byte(nil), chunk.Data...),
		PTS:  pts,
		DTS:  audio.NoPTS,
	}

	// server timestamps mean nothing locally until the clock has a sample
	if !s.clock.Synced() {
		if len(s.early) == maxEarly {
			s.early = s.early[1:]
		}
		s.early = append(s.early, earlyPacket{pkt: pkt, server: chunk.Timestamp})
		return
	}
	s.sched.Schedule(pkt, chunk.Timestamp)
}

func (s *Stream) releaseEarly() {
	for _, e := range s.early {
		s.sched.Schedule(e.pkt, e.server)
	}
	s.early = nil
}

func (s *Stream) handleMessage(msgType string, payload json.RawMessage) {
	switch msgType {
	case protocol.TypeServerTime:
		var t protocol.ServerTime
		if err := json.Unmarshal(payload, &t); err != nil {
			return
		}
		s.clock.ProcessSample(t.ClientTransmitted, t.ServerReceived, t.ServerTransmitted, s.clock.ClientMicros())
		if len(s.early) > 0 && s.clock.Synced() {
			s.releaseEarly()
		}

	case protocol.TypeStreamStart:
		var start protocol.StreamStart
		if err := json.Unmarshal(payload, &start); err != nil {
			log.Printf("Invalid stream/start: %v", err)
			return
		}
		info, err := start.StreamInfo()
		if err != nil {
			log.Printf("Invalid stream/start: %v", err)
			return
		}
		log.Printf("Stream starting: %s %dHz %dch %dbit", info.Codec, info.SampleRate, info.Channels, info.BitDepth)

		s.mu.Lock()
		s.hints = info
		s.haveBase = false
		s.mu.Unlock()
		s.early = nil

		first := false
		s.startOnce.Do(func() {
			first = true
			close(s.started)
		})
		if !first {
			s.sched.Flush()
			s.changed.Store(true)
		}

	case protocol.TypeCommand:
		var cmd protocol.ServerCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return
		}
		select {
		case s.commands <- cmd:
		default:
			log.Printf("Dropping server command %s: queue full", cmd.Command)
		}

	case protocol.TypeMetadata:
		var meta protocol.StreamMetadata
		if err := json.Unmarshal(payload, &meta); err != nil {
			return
		}
		s.mu.Lock()
		s.meta = meta
		s.mu.Unlock()

	default:
		log.Printf("Unknown message type: %s", msgType)
	}
}

func (s *Stream) timeSyncLoop() {
	// a short burst first so the estimate settles before playback
	interval := 100 * time.Millisecond
	for i := 0; ; i++ {
		if i == 5 {
			interval = time.Second
		}
		if err := s.client.SendTimeSync(s.clock.ClientMicros()); err != nil {
			return
		}
		select {
		case <-time.After(interval):
		case <-s.client.Context().Done():
			return
		}
		if q := s.clock.CheckQuality(); q == clock.QualityLost && i > 5 {
			log.Printf("Server clock quality lost")
		}
	}
}

// Hints returns the current stream format
func (s *Stream) Hints() audio.StreamInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hints
}

// ReadPacket returns the next packet due for playback. It is not safe for
// concurrent use.
func (s *Stream) ReadPacket(ctx context.Context) (*audio.Packet, error) {
	if s.changed.Swap(false) {
		return nil, ErrFormatChanged
	}
	if pkt := s.pending; pkt != nil {
		s.pending = nil
		return pkt, nil
	}

	select {
	case pkt := <-s.sched.Output():
		// the format may have changed while waiting
		if s.changed.Swap(false) {
			s.pending = pkt
			return nil, ErrFormatChanged
		}
		return pkt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.client.Context().Done():
		return nil, ErrClosed
	}
}

// Commands returns transport requests from the server
func (s *Stream) Commands() <-chan protocol.ServerCommand {
	return s.commands
}

// Metadata returns the last track metadata
func (s *Stream) Metadata() protocol.StreamMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// ClockStats returns the server clock offset, rtt and quality
func (s *Stream) ClockStats() (offset, rtt int64, quality clock.Quality) {
	return s.clock.Stats()
}

// SchedulerStats returns jitter scheduler counters
func (s *Stream) SchedulerStats() SchedulerStats {
	return s.sched.Stats()
}

// Close disconnects
func (s *Stream) Close() error {
	return s.client.Close()
}

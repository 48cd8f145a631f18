// ABOUTME: Tests for the network stream source
// ABOUTME: Runs a WebSocket test server speaking the stream protocol
package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/client"
	"github.com/Resonate-Protocol/resonate-zones/internal/protocol"
	"github.com/gorilla/websocket"
)

type testServer struct {
	t       *testing.T
	srv     *httptest.Server
	mu      sync.Mutex
	conn    *websocket.Conn
	ready   chan struct{}
	hello   protocol.ClientHello
	timeReq int
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{t: t, ready: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/resonate" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var msg client.Envelope
		if err := conn.ReadJSON(&msg); err != nil || msg.Type != protocol.TypeClientHello {
			t.Errorf("expected client/hello, got %v %v", msg.Type, err)
			return
		}
		ts.mu.Lock()
		json.Unmarshal(msg.Payload, &ts.hello)
		ts.conn = conn
		ts.mu.Unlock()
		ts.send(protocol.TypeServerHello, protocol.ServerHello{ServerID: "s1", Name: "test"})
		close(ts.ready)

		for {
			var in client.Envelope
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			if in.Type == protocol.TypeClientTime {
				var ct protocol.ClientTime
				json.Unmarshal(in.Payload, &ct)
				now := time.Now().UnixMicro()
				ts.mu.Lock()
				ts.timeReq++
				ts.mu.Unlock()
				ts.send(protocol.TypeServerTime, protocol.ServerTime{
					ClientTransmitted: ct.ClientTransmitted,
					ServerReceived:    now,
					ServerTransmitted: now,
				})
			}
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) addr() string {
	return strings.TrimPrefix(ts.srv.URL, "http://")
}

func (ts *testServer) send(msgType string, payload interface{}) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if err := ts.conn.WriteJSON(protocol.Message{Type: msgType, Payload: payload}); err != nil {
		ts.t.Logf("server write failed: %v", err)
	}
}

func (ts *testServer) sendChunk(timestamp int64, data []byte) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.conn.WriteMessage(websocket.BinaryMessage, protocol.AudioChunk{Timestamp: timestamp, Data: data}.Bytes())
}

func TestStreamReceivesPackets(t *testing.T) {
	ts := newTestServer(t)
	go func() {
		<-ts.ready
		ts.send(protocol.TypeStreamStart, protocol.StreamStart{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16})
		ts.send(protocol.TypeMetadata, protocol.StreamMetadata{Title: "Song"})
		ts.send(protocol.TypeCommand, protocol.ServerCommand{Command: "pause"})
		start := time.Now().Add(20 * time.Millisecond).UnixMicro()
		ts.sendChunk(start, []byte{1, 2, 3, 4})
		ts.sendChunk(start+20000, []byte{5, 6, 7, 8})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := DialStream(ctx, StreamConfig{ServerAddr: ts.addr(), Name: "zones", JitterBuffer: time.Second})
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer s.Close()

	ts.mu.Lock()
	hello := ts.hello
	ts.mu.Unlock()
	if hello.Name != "zones" || hello.ClientID == "" {
		t.Errorf("unexpected hello: %+v", hello)
	}

	hints := s.Hints()
	if hints.Codec != "pcm" || hints.SampleRate != 48000 || !hints.Realtime {
		t.Errorf("unexpected hints: %+v", hints)
	}

	for i, want := range []float64{0, 20000} {
		pkt, err := s.ReadPacket(ctx)
		if err != nil {
			t.Fatalf("failed to read packet %d: %v", i, err)
		}
		if pkt.PTS != want {
			t.Errorf("packet %d: expected pts %f, got %f", i, want, pkt.PTS)
		}
	}

	select {
	case cmd := <-s.Commands():
		if cmd.Command != "pause" {
			t.Errorf("unexpected command %s", cmd.Command)
		}
	case <-ctx.Done():
		t.Fatal("expected a command")
	}

	if s.Metadata().Title != "Song" {
		t.Errorf("expected metadata to be stored")
	}
}

func TestStreamFormatChange(t *testing.T) {
	ts := newTestServer(t)
	go func() {
		<-ts.ready
		ts.send(protocol.TypeStreamStart, protocol.StreamStart{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := DialStream(ctx, StreamConfig{ServerAddr: ts.addr(), JitterBuffer: time.Second})
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer s.Close()

	ts.send(protocol.TypeStreamStart, protocol.StreamStart{Codec: "pcm", SampleRate: 44100, Channels: 2, BitDepth: 24})

	for {
		rctx, rcancel := context.WithTimeout(ctx, 20*time.Millisecond)
		_, err := s.ReadPacket(rctx)
		rcancel()
		if errors.Is(err, ErrFormatChanged) {
			break
		}
		if ctx.Err() != nil {
			t.Fatalf("expected format change, last error %v", err)
		}
	}
	ts.sendChunk(time.Now().UnixMicro(), []byte{1, 2, 3, 4, 5, 6})

	if s.Hints().SampleRate != 44100 {
		t.Errorf("expected new hints, got %+v", s.Hints())
	}

	pkt, err := s.ReadPacket(ctx)
	if err != nil {
		t.Fatalf("failed to read after change: %v", err)
	}
	if pkt.PTS != 0 {
		t.Errorf("expected timestamps to restart after a format change, got %f", pkt.PTS)
	}
}

func TestStreamStartTimeout(t *testing.T) {
	ts := newTestServer(t)

	_, err := DialStream(context.Background(), StreamConfig{ServerAddr: ts.addr(), StartTimeout: 100 * time.Millisecond})
	if err == nil || !strings.Contains(err.Error(), "no stream/start") {
		t.Errorf("expected start timeout, got %v", err)
	}
}

func TestStreamClockSamples(t *testing.T) {
	ts := newTestServer(t)
	go func() {
		<-ts.ready
		ts.send(protocol.TypeStreamStart, protocol.StreamStart{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16})
	}()

	s, err := DialStream(context.Background(), StreamConfig{ServerAddr: ts.addr()})
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer s.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, _, q := s.ClockStats(); q.String() == "good" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("expected the server clock estimate to become good")
}

// ABOUTME: WebSocket client for the Resonate stream protocol
// ABOUTME: Handles connection, handshake, ordered message dispatch and sends
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/protocol"
	"github.com/gorilla/websocket"
)

const handshakeTimeout = 5 * time.Second

// Config holds client configuration
type Config struct {
	ServerAddr    string
	Path          string
	ClientID      string
	Name          string
	Version       int
	DeviceInfo    protocol.DeviceInfo
	PlayerSupport protocol.PlayerSupport
}

// Handlers receive inbound traffic. Both are called from the single read
// goroutine in arrival order, so a stream/start is always seen before the
// chunks that follow it.
type Handlers struct {
	OnChunk   func(protocol.AudioChunk)
	OnMessage func(msgType string, payload json.RawMessage)
}

// Envelope is an inbound JSON message with its payload left undecoded
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client represents a WebSocket client
type Client struct {
	config Config
	conn   *websocket.Conn
	server protocol.ServerHello

	writeMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to config.ServerAddr and performs the handshake
func Dial(ctx context.Context, config Config) (*Client, error) {
	if config.Path == "" {
		config.Path = "/resonate"
	}
	if config.Version == 0 {
		config.Version = 1
	}

	u := url.URL{Scheme: "ws", Host: config.ServerAddr, Path: config.Path}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config: config,
		conn:   conn,
		ctx:    cctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if err := c.handshake(); err != nil {
		c.Close()
		close(c.done)
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	return c, nil
}

// handshake performs the protocol handshake
func (c *Client) handshake() error {
	hello := protocol.ClientHello{
		ClientID:       c.config.ClientID,
		Name:           c.config.Name,
		Version:        c.config.Version,
		SupportedRoles: []string{"player"},
		DeviceInfo:     &c.config.DeviceInfo,
		PlayerSupport:  &c.config.PlayerSupport,
	}
	if err := c.Send(protocol.TypeClientHello, hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var msg Envelope
	if err := c.conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	if msg.Type != protocol.TypeServerHello {
		return fmt.Errorf("expected server/hello, got %s", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, &c.server); err == nil && c.server.Name != "" {
		log.Printf("Handshake complete with %s", c.server.Name)
	}

	return c.SendState(protocol.ClientState{State: "idle", Volume: 100})
}

// Server returns the server's hello
func (c *Client) Server() protocol.ServerHello {
	return c.server
}

// Serve starts the read loop. Done is closed when it exits.
func (c *Client) Serve(h Handlers) {
	go c.readMessages(h)
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages(h Handlers) {
	defer close(c.done)
	defer c.cancel()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				log.Printf("Read error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			chunk, err := protocol.ParseAudioChunk(data)
			if err != nil {
				log.Printf("Invalid binary message: %v", err)
				continue
			}
			if h.OnChunk != nil {
				h.OnChunk(chunk)
			}
		case websocket.TextMessage:
			var msg Envelope
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("Failed to parse JSON message: %v", err)
				continue
			}
			if h.OnMessage != nil {
				h.OnMessage(msg.Type, msg.Payload)
			}
		}
	}
}

// Send writes one JSON message
func (c *Client) Send(msgType string, payload interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(protocol.Message{Type: msgType, Payload: payload})
}

// SendState sends a player/update message
func (c *Client) SendState(state protocol.ClientState) error {
	return c.Send(protocol.TypePlayerUpdate, state)
}

// SendTimeSync sends a client/time message
func (c *Client) SendTimeSync(t1 int64) error {
	return c.Send(protocol.TypeClientTime, protocol.ClientTime{ClientTransmitted: t1})
}

// Context is cancelled when the connection ends
func (c *Client) Context() context.Context {
	return c.ctx
}

// Done is closed once the read loop has exited
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
		log.Printf("Connection closed")
	})
	return err
}

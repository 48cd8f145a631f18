// ABOUTME: Zone feed server speaking the Resonate stream protocol
// ABOUTME: Manages WebSocket clients, answers clock probes and runs the audio engine
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/client"
	"github.com/Resonate-Protocol/resonate-zones/internal/discovery"
	"github.com/Resonate-Protocol/resonate-zones/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// ProtocolVersion is announced in server/hello
	ProtocolVersion = 1

	// Path is where clients connect
	Path = "/resonate"

	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	Debug      bool

	// Title is sent as stream metadata
	Title string

	// Loop restarts the source when it ends
	Loop bool

	// Lead is how far ahead of play time chunks are sent
	Lead time.Duration
}

// Server represents the feed server
type Server struct {
	config   Config
	serverID string
	upgrader websocket.Upgrader

	httpServer *http.Server

	// Client management
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// Server clock (monotonic microseconds)
	clockStart time.Time

	engine *AudioEngine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Client represents a connected client
type Client struct {
	ID           string
	Name         string
	Conn         *websocket.Conn
	Roles        []string
	Capabilities *protocol.PlayerSupport

	// State
	State  string
	Volume int
	Muted  bool

	// Output channel for messages
	sendChan chan interface{}

	mu sync.RWMutex
}

// New creates a new server streaming what open returns
func New(config Config, open Opener) *Server {
	if config.Lead <= 0 {
		config.Lead = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		upgrader: websocket.Upgrader{
			// local network feeds; browsers are not expected
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:    make(map[string]*Client),
		clockStart: time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.engine = NewAudioEngine(s, open)
	return s
}

// Start listens on the configured port and serves until Stop
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if s.config.EnableMDNS {
		port := ln.Addr().(*net.TCPAddr).Port
		adv, err := discovery.Advertise(s.config.Name, discovery.DefaultService, port, Path)
		if err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			defer adv.Shutdown()
		}
	}

	return s.Serve(ln)
}

// Serve accepts clients on ln and streams until Stop or the source ends
func (s *Server) Serve(ln net.Listener) error {
	log.Printf("Server starting: %s (ID: %s) on %s", s.config.Name, s.serverID, ln.Addr())

	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWebSocket)
	s.httpServer = &http.Server{Handler: mux}

	errChan := make(chan error, 2)
	go func() {
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.engine.Run(s.ctx); err != nil {
			errChan <- fmt.Errorf("audio engine failed: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-s.ctx.Done():
		log.Printf("Server shutting down...")
	case serverErr = <-errChan:
		log.Printf("Server error: %v", serverErr)
	}
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	s.closeClients()

	s.wg.Wait()
	log.Printf("Server stopped cleanly")
	return serverErr
}

// Stop stops the server
func (s *Server) Stop() {
	s.cancel()
}

// Command sends a transport command to every player
func (s *Server) Command(cmd protocol.ServerCommand) {
	s.engine.Command(cmd)
}

// Clients returns the number of connected clients
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// hijacked connections survive http.Server.Shutdown
func (s *Server) closeClients() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		c.Conn.Close()
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

// handleConnection manages a client connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg client.Envelope
	if err := conn.ReadJSON(&msg); err != nil {
		log.Printf("Error reading hello: %v", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	if msg.Type != protocol.TypeClientHello {
		log.Printf("Expected client/hello, got %s", msg.Type)
		return
	}

	var hello protocol.ClientHello
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		log.Printf("Error unmarshaling client hello: %v", err)
		return
	}
	if hello.ClientID == "" {
		log.Printf("Client hello missing ClientID")
		return
	}
	if hello.Name == "" {
		hello.Name = hello.ClientID
	}

	log.Printf("Client hello: %s (ID: %s, Roles: %v)", hello.Name, hello.ClientID, hello.SupportedRoles)

	c := &Client{
		ID:           hello.ClientID,
		Name:         hello.Name,
		Conn:         conn,
		Roles:        hello.SupportedRoles,
		Capabilities: hello.PlayerSupport,
		State:        "idle",
		Volume:       100,
		sendChan:     make(chan interface{}, 256),
	}

	// Check for duplicate client ID and register atomically
	s.clientsMu.Lock()
	if existing, exists := s.clients[hello.ClientID]; exists {
		s.clientsMu.Unlock()
		log.Printf("Client ID %s already connected (name: %s), rejecting duplicate", hello.ClientID, existing.Name)
		conn.WriteJSON(protocol.Message{
			Type: "server/error",
			Payload: map[string]string{
				"error":   "duplicate_client_id",
				"message": "Client ID already connected",
			},
		})
		return
	}
	s.clients[c.ID] = c
	s.clientsMu.Unlock()

	writerDone := make(chan struct{})
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c.ID)
		s.clientsMu.Unlock()
		close(c.sendChan)
		<-writerDone
		log.Printf("Client disconnected: %s", c.Name)
	}()

	if err := s.sendMessage(c, protocol.TypeServerHello, protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  ProtocolVersion,
	}); err != nil {
		log.Printf("Error sending server hello: %v", err)
		close(writerDone)
		return
	}

	go func() {
		defer close(writerDone)
		s.clientWriter(c)
	}()

	if hasRole(c, "player") {
		s.engine.AddClient(c)
		defer s.engine.RemoveClient(c)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		s.handleClientMessage(c, data)
	}
}

// clientWriter sends messages to the client
func (s *Server) clientWriter(c *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.sendChan:
			if !ok {
				return
			}

			c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			var err error
			switch v := msg.(type) {
			case []byte:
				err = c.Conn.WriteMessage(websocket.BinaryMessage, v)
			case protocol.Message:
				// stamp clock replies at write time, not queue time
				if st, ok := v.Payload.(protocol.ServerTime); ok {
					st.ServerTransmitted = s.getClockMicros()
					v.Payload = st
				}
				err = c.Conn.WriteJSON(v)
			}
			if err != nil {
				log.Printf("Error writing to %s: %v", c.Name, err)
				c.Conn.Close()
				drain(c.sendChan)
				return
			}

		case <-ticker.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.Conn.Close()
				drain(c.sendChan)
				return
			}
		}
	}
}

// drain discards queued messages until the channel is closed
func drain(ch <-chan interface{}) {
	for range ch {
	}
}

// handleClientMessage processes messages from clients
func (s *Server) handleClientMessage(c *Client, data []byte) {
	var msg client.Envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeClientTime:
		s.handleTimeSync(c, msg.Payload)
	case protocol.TypePlayerUpdate:
		s.handlePlayerUpdate(c, msg.Payload)
	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// handleTimeSync responds to time synchronization requests
func (s *Server) handleTimeSync(c *Client, payload json.RawMessage) {
	serverRecv := s.getClockMicros()

	var clientTime protocol.ClientTime
	if err := json.Unmarshal(payload, &clientTime); err != nil {
		log.Printf("Error unmarshaling client time: %v", err)
		return
	}

	if s.config.Debug {
		log.Printf("[DEBUG] Time sync for %s: t1=%d, t2=%d", c.Name, clientTime.ClientTransmitted, serverRecv)
	}

	response := protocol.ServerTime{
		ClientTransmitted: clientTime.ClientTransmitted,
		ServerReceived:    serverRecv,
		ServerTransmitted: serverRecv,
	}
	if err := s.sendMessage(c, protocol.TypeServerTime, response); err != nil {
		log.Printf("Error sending server time: %v", err)
	}
}

// handlePlayerUpdate handles state updates from players
func (s *Server) handlePlayerUpdate(c *Client, payload json.RawMessage) {
	var state protocol.ClientState
	if err := json.Unmarshal(payload, &state); err != nil {
		log.Printf("Error unmarshaling client state: %v", err)
		return
	}

	c.mu.Lock()
	c.State = state.State
	c.Volume = state.Volume
	c.Muted = state.Muted
	c.mu.Unlock()

	log.Printf("Client %s state: %s (vol: %d, muted: %v)", c.Name, state.State, state.Volume, state.Muted)
}

// ClientState returns the last reported state of a client
func (s *Server) ClientState(id string) (protocol.ClientState, bool) {
	s.clientsMu.RLock()
	c, ok := s.clients[id]
	s.clientsMu.RUnlock()
	if !ok {
		return protocol.ClientState{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return protocol.ClientState{State: c.State, Volume: c.Volume, Muted: c.Muted}, true
}

// sendMessage queues a JSON message for a client
func (s *Server) sendMessage(c *Client, msgType string, payload interface{}) error {
	select {
	case c.sendChan <- protocol.Message{Type: msgType, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// sendBinary queues binary data for a client
func (s *Server) sendBinary(c *Client, data []byte) error {
	select {
	case c.sendChan <- data:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// getClockMicros returns the server clock in microseconds
func (s *Server) getClockMicros() int64 {
	return time.Since(s.clockStart).Microseconds()
}

// hasRole checks if a client has a specific role
func hasRole(c *Client, role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ABOUTME: mDNS discovery of stream servers
// ABOUTME: Browses the local network for servers a network source can dial
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
)

// DefaultService is the service type stream servers advertise
const DefaultService = "_resonate-server._tcp"

// Config holds discovery configuration
type Config struct {
	Service string
	Timeout time.Duration // per query round
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name string
	Host string
	Port int
}

// Addr returns host:port for dialing
func (s ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Manager browses for servers until stopped
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
	query   func(*mdns.QueryParam) error
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Service == "" {
		config.Service = DefaultService
	}
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
		query:   mdns.Query,
	}
}

// Browse starts querying in the background
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		go m.collect(entries)

		params := &mdns.QueryParam{
			Service: m.config.Service,
			Domain:  "local",
			Timeout: m.config.Timeout,
			Entries: entries,
		}
		if err := m.query(params); err != nil {
			log.Printf("mDNS query failed: %v", err)
			select {
			case <-time.After(m.config.Timeout):
			case <-m.ctx.Done():
			}
		}
		close(entries)
	}
}

func (m *Manager) collect(entries <-chan *mdns.ServiceEntry) {
	for entry := range entries {
		server, ok := serverFromEntry(entry)
		if !ok {
			continue
		}
		log.Printf("Discovered server: %s at %s", server.Name, server.Addr())

		select {
		case m.servers <- server:
		case <-m.ctx.Done():
		default:
			// nobody is waiting, the next round reports it again
		}
	}
}

func serverFromEntry(entry *mdns.ServiceEntry) (*ServerInfo, bool) {
	if entry == nil || entry.Port == 0 {
		return nil, false
	}
	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	case entry.Host != "":
		host = entry.Host
	default:
		return nil, false
	}
	return &ServerInfo{Name: entry.Name, Host: host, Port: entry.Port}, true
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// First browses until a server is found or ctx ends
func (m *Manager) First(ctx context.Context) (*ServerInfo, error) {
	m.Browse()
	defer m.Stop()

	select {
	case s := <-m.servers:
		return s, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no %s server found: %w", m.config.Service, ctx.Err())
	}
}

// Stop stops browsing
func (m *Manager) Stop() {
	m.cancel()
}

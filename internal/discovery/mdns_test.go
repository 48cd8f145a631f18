// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests entry conversion and browsing with a stubbed query
package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

func TestServerFromEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		addr  string
		ok    bool
	}{
		{"ipv4", &mdns.ServiceEntry{Name: "a", AddrV4: net.IPv4(10, 0, 0, 2), Port: 8927}, "10.0.0.2:8927", true},
		{"ipv6", &mdns.ServiceEntry{Name: "b", AddrV6: net.ParseIP("fe80::1"), Port: 80}, "[fe80::1]:80", true},
		{"host only", &mdns.ServiceEntry{Name: "c", Host: "box.local.", Port: 1}, "box.local.:1", true},
		{"no port", &mdns.ServiceEntry{Name: "d", AddrV4: net.IPv4(10, 0, 0, 2)}, "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := serverFromEntry(tt.entry)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && s.Addr() != tt.addr {
				t.Errorf("expected %s, got %s", tt.addr, s.Addr())
			}
		})
	}
}

func TestFirstReturnsDiscoveredServer(t *testing.T) {
	m := NewManager(Config{Timeout: 10 * time.Millisecond})
	m.query = func(p *mdns.QueryParam) error {
		if p.Service != DefaultService {
			t.Errorf("expected service %s, got %s", DefaultService, p.Service)
		}
		p.Entries <- &mdns.ServiceEntry{Name: "srv", AddrV4: net.IPv4(192, 168, 1, 5), Port: 8927}
		time.Sleep(p.Timeout)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s, err := m.First(ctx)
	if err != nil {
		t.Fatalf("failed to discover: %v", err)
	}
	if s.Addr() != "192.168.1.5:8927" {
		t.Errorf("unexpected server %s", s.Addr())
	}
}

func TestFirstTimesOut(t *testing.T) {
	m := NewManager(Config{Timeout: 10 * time.Millisecond})
	m.query = func(p *mdns.QueryParam) error {
		return errors.New("no multicast")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := m.First(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

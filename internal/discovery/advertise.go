// ABOUTME: mDNS advertisement for a local stream server
// ABOUTME: Publishes the server so network sources can find it with "mdns"
package discovery

import (
	"fmt"
	"log"
	"net"

	"github.com/hashicorp/mdns"
)

// Advertiser publishes one service until shut down
type Advertiser struct {
	server *mdns.Server
}

// Advertise publishes name on port under service (DefaultService if empty)
func Advertise(name, service string, port int, path string) (*Advertiser, error) {
	if service == "" {
		service = DefaultService
	}
	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}

	zone, err := mdns.NewMDNSService(name, service, "", "", port, ips, []string{"path=" + path})
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", name, port, service)
	return &Advertiser{server: server}, nil
}

// Shutdown stops answering queries
func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}

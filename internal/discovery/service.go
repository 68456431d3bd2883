package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Service is a wsgate server found on the local network
type Service struct {
	// Instance is the mDNS instance name (e.g., "lab-box")
	Instance string

	// Hostname is the mDNS hostname (e.g., "lab-box.local.")
	Hostname string

	// IP is the advertised address, IPv4 when one is available
	IP string

	// Port is the WebSocket listener port
	Port int

	// Metadata holds the TXT record pairs, e.g. "version=1.2.0"
	Metadata map[string]string

	// DiscoveredAt is when the service was seen
	DiscoveredAt time.Time
}

func (s *Service) String() string {
	return fmt.Sprintf("wsgate %q (%s) at %s", s.Instance, s.Hostname, s.Address())
}

// Address returns host:port suitable for dialing.
func (s *Service) Address() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}

// URL returns the WebSocket URL of the service.
func (s *Service) URL() string {
	return "ws://" + s.Address() + "/"
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (s *Service) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}

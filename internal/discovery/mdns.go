package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type wsgate servers advertise
	ServiceType = "_wsgate._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for server discovery
	DefaultScanTimeout = 3 * time.Second

	// DefaultPort is assumed when an entry carries no port
	DefaultPort = 8080
)

// Scanner handles mDNS server discovery
type Scanner struct {
	// Timeout is the maximum time to wait for responses
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan discovers every wsgate server on the local network
func (s *Scanner) Scan(ctx context.Context) ([]*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		services []*Service
	)
	err := s.browse(ctx, func(svc *Service) bool {
		mu.Lock()
		services = append(services, svc)
		mu.Unlock()
		return true
	})
	if err != nil {
		return nil, err
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return services, nil
}

// WaitForServer returns the first server whose instance name matches, or the
// first server seen when instance is empty.
func (s *Scanner) WaitForServer(ctx context.Context, instance string) (*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	found := make(chan *Service, 1)
	err := s.browse(ctx, func(svc *Service) bool {
		if instance != "" && svc.Instance != instance {
			return true
		}
		select {
		case found <- svc:
		default:
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	select {
	case svc := <-found:
		return svc, nil
	case <-ctx.Done():
		if instance == "" {
			return nil, fmt.Errorf("no wsgate server found within %s", s.Timeout)
		}
		return nil, fmt.Errorf("wsgate server %q not found within %s", instance, s.Timeout)
	}
}

// browse feeds parsed entries to fn until fn returns false or ctx ends.
func (s *Scanner) browse(ctx context.Context, fn func(*Service) bool) error {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if svc := parseServiceEntry(entry); svc != nil && !fn(svc) {
					return
				}
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Service.
// Returns nil if the entry has no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Service {
	if entry == nil || entry.Instance == "" {
		return nil
	}

	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &Service{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// Announcer advertises a running server until Shutdown.
type Announcer struct {
	server   *zeroconf.Server
	instance string
	logger   *zap.Logger
	once     sync.Once
}

// Announce registers instance on port. An empty instance uses the hostname.
func Announce(instance string, port int, text []string, logger *zap.Logger) (*Announcer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if port <= 0 {
		return nil, fmt.Errorf("cannot announce port %d", port)
	}
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("cannot determine hostname: %w", err)
		}
		instance = host
	}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, text, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logger.Info("Announcing over mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return &Announcer{server: server, instance: instance, logger: logger}, nil
}

// Instance returns the advertised instance name.
func (a *Announcer) Instance() string {
	return a.instance
}

// Shutdown withdraws the advertisement. Safe to call more than once.
func (a *Announcer) Shutdown() {
	a.once.Do(func() {
		a.server.Shutdown()
		a.logger.Info("mDNS announcement withdrawn", zap.String("instance", a.instance))
	})
}

// PortOf extracts the TCP port from a listener address.
func PortOf(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// QuickScan performs a scan with the default timeout
func QuickScan(ctx context.Context) ([]*Service, error) {
	return NewScanner().Scan(ctx)
}

package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func entry(instance, host string, port int, v4, v6 []net.IP, text ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	e.HostName = host
	e.Port = port
	e.AddrIPv4 = v4
	e.AddrIPv6 = v6
	e.Text = text
	return e
}

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantIP   string
		wantPort int
	}{
		{
			name:     "ipv4",
			entry:    entry("lab", "lab.local.", 8080, []net.IP{net.ParseIP("192.168.4.16")}, nil),
			wantIP:   "192.168.4.16",
			wantPort: 8080,
		},
		{
			name:     "custom port",
			entry:    entry("lab", "lab.local.", 9001, []net.IP{net.ParseIP("10.0.0.5")}, nil),
			wantIP:   "10.0.0.5",
			wantPort: 9001,
		},
		{
			name:     "no port falls back to default",
			entry:    entry("lab", "lab.local.", 0, []net.IP{net.ParseIP("172.16.0.1")}, nil),
			wantIP:   "172.16.0.1",
			wantPort: DefaultPort,
		},
		{
			name:     "ipv6 only",
			entry:    entry("lab", "lab.local.", 8080, nil, []net.IP{net.ParseIP("fe80::1")}),
			wantIP:   "fe80::1",
			wantPort: 8080,
		},
		{
			name:     "prefers ipv4",
			entry:    entry("lab", "lab.local.", 8080, []net.IP{net.ParseIP("192.168.1.50")}, []net.IP{net.ParseIP("fe80::2")}),
			wantIP:   "192.168.1.50",
			wantPort: 8080,
		},
		{
			name:    "no address",
			entry:   entry("lab", "lab.local.", 8080, nil, nil),
			wantNil: true,
		},
		{
			name:    "no instance",
			entry:   entry("", "lab.local.", 8080, []net.IP{net.ParseIP("192.168.1.1")}, nil),
			wantNil: true,
		},
		{
			name:    "nil entry",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if svc != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", svc)
				}
				return
			}
			if svc == nil {
				t.Fatal("parseServiceEntry() = nil, want service")
			}
			if svc.IP != tt.wantIP {
				t.Errorf("svc.IP = %v, want %v", svc.IP, tt.wantIP)
			}
			if svc.Port != tt.wantPort {
				t.Errorf("svc.Port = %v, want %v", svc.Port, tt.wantPort)
			}
			if svc.Instance != tt.entry.Instance || svc.Hostname != tt.entry.HostName {
				t.Errorf("svc = %+v", svc)
			}
			if time.Since(svc.DiscoveredAt) > time.Second {
				t.Errorf("svc.DiscoveredAt is not recent: %v", svc.DiscoveredAt)
			}
		})
	}
}

func TestParseServiceEntryMetadata(t *testing.T) {
	e := entry("lab", "lab.local.", 8080, []net.IP{net.ParseIP("192.168.4.16")}, nil,
		"version=1.0", "path=/", "flag")

	svc := parseServiceEntry(e)
	if svc == nil {
		t.Fatal("parseServiceEntry() = nil")
	}
	want := map[string]string{"version": "1.0", "path": "/", "flag": ""}
	if len(svc.Metadata) != len(want) {
		t.Errorf("Metadata has %d entries, want %d", len(svc.Metadata), len(want))
	}
	for k, v := range want {
		if got, ok := svc.Metadata[k]; !ok || got != v {
			t.Errorf("Metadata[%q] = %q, %v; want %q", k, got, ok, v)
		}
	}
}

func TestNewScanner(t *testing.T) {
	if s := NewScanner(); s.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", s.Timeout, DefaultScanTimeout)
	}
}

func TestAnnounceRejectsBadPort(t *testing.T) {
	if _, err := Announce("lab", 0, nil, nil); err == nil {
		t.Error("Announce() with port 0 should fail")
	}
}

func TestPortOf(t *testing.T) {
	if got := PortOf(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242}); got != 4242 {
		t.Errorf("PortOf(tcp) = %d", got)
	}
	if got := PortOf(&net.UnixAddr{Name: "/tmp/x", Net: "unix"}); got != 0 {
		t.Errorf("PortOf(unix) = %d, want 0", got)
	}
}

// Live announce and browse needs multicast, so it is left to manual runs:
// go test -tags=integration ./internal/discovery/

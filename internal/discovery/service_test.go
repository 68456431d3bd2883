package discovery

import "testing"

func TestService_Address(t *testing.T) {
	tests := []struct {
		name        string
		service     *Service
		wantAddress string
		wantURL     string
	}{
		{
			name:        "ipv4",
			service:     &Service{IP: "192.168.4.16", Port: 8080},
			wantAddress: "192.168.4.16:8080",
			wantURL:     "ws://192.168.4.16:8080/",
		},
		{
			name:        "ipv6",
			service:     &Service{IP: "fe80::1", Port: 9000},
			wantAddress: "[fe80::1]:9000",
			wantURL:     "ws://[fe80::1]:9000/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.service.Address(); got != tt.wantAddress {
				t.Errorf("Address() = %v, want %v", got, tt.wantAddress)
			}
			if got := tt.service.URL(); got != tt.wantURL {
				t.Errorf("URL() = %v, want %v", got, tt.wantURL)
			}
		})
	}
}

func TestService_String(t *testing.T) {
	s := &Service{Instance: "lab", Hostname: "lab.local.", IP: "10.0.0.5", Port: 8080}
	want := `wsgate "lab" (lab.local.) at 10.0.0.5:8080`
	if s.String() != want {
		t.Errorf("String() = %v, want %v", s.String(), want)
	}
}

func TestService_GetMetadata(t *testing.T) {
	s := &Service{Metadata: map[string]string{"version": "1.0.0", "path": "/"}}

	tests := []struct {
		key      string
		expected string
	}{
		{"version", "1.0.0"},
		{"path", "/"},
		{"missing", ""},
	}
	for _, tt := range tests {
		if got := s.GetMetadata(tt.key); got != tt.expected {
			t.Errorf("GetMetadata(%v) = %v, want %v", tt.key, got, tt.expected)
		}
	}

	if got := (&Service{}).GetMetadata("anything"); got != "" {
		t.Errorf("GetMetadata() with nil map = %v, want empty string", got)
	}
}

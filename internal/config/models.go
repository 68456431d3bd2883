package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/muurk/wsgate/internal/protocol"
	"github.com/muurk/wsgate/internal/session"
)

// CurrentVersion is the config file format version.
const CurrentVersion = 1

// Config represents the entire configuration file.
type Config struct {
	Version  int           `yaml:"version"`
	LogLevel string        `yaml:"log_level,omitempty"` // debug, info, warn, error; empty = silent
	Server   ServerConfig  `yaml:"server"`
	Session  SessionConfig `yaml:"session"`
	Client   ClientConfig  `yaml:"client"`
}

// ServerConfig configures wsgate-server.
type ServerConfig struct {
	Address      string        `yaml:"address"`                 // Bind address
	Port         int           `yaml:"port"`                    // 0 = random port
	Workers      int           `yaml:"workers"`                 // Accept loops
	TickInterval time.Duration `yaml:"tick_interval"`           // Dispatch period
	StatusEvery  int           `yaml:"status_every"`            // Broadcast SERVER_STATUS every N ticks, 0 = never
	StatusAddr   string        `yaml:"status_addr,omitempty"`   // /healthz, /sessions, /metrics; empty = disabled
	Announce     bool          `yaml:"announce"`                // Advertise over mDNS
	InstanceName string        `yaml:"instance_name,omitempty"` // mDNS instance name, defaults to hostname
}

// SessionConfig holds per-session tunables shared by both binaries.
type SessionConfig struct {
	PingInterval      time.Duration `yaml:"ping_interval"`
	MaxMessageSize    int           `yaml:"max_message_size"`
	EnableCompression bool          `yaml:"enable_compression"`
}

// ClientConfig configures wsgate-client.
type ClientConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`  // How long to wait for the session to open
	ResponseTimeout time.Duration `yaml:"response_timeout"` // How long to wait for a reply
	DiscoverTimeout time.Duration `yaml:"discover_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			Address:      "127.0.0.1",
			Port:         8080,
			Workers:      1,
			TickInterval: 50 * time.Millisecond,
			StatusEvery:  100,
		},
		Session: SessionConfig{
			PingInterval:      session.DefaultPingInterval,
			MaxMessageSize:    protocol.DefaultMaxMessageSize,
			EnableCompression: true,
		},
		Client: ClientConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ConnectTimeout:  time.Second,
			ResponseTimeout: 10 * time.Second,
			DiscoverTimeout: 3 * time.Second,
		},
	}
}

// Validate rejects values the binaries cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.Workers < 1 {
		errs = append(errs, fmt.Errorf("server.workers must be at least 1, got %d", c.Server.Workers))
	}
	if c.Server.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("server.tick_interval must be positive, got %s", c.Server.TickInterval))
	}
	if c.Server.StatusEvery < 0 {
		errs = append(errs, fmt.Errorf("server.status_every must not be negative, got %d", c.Server.StatusEvery))
	}
	if c.Session.PingInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.ping_interval must be positive, got %s", c.Session.PingInterval))
	}
	if c.Session.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("session.max_message_size must be positive, got %d", c.Session.MaxMessageSize))
	}
	if c.Client.Port < 1 || c.Client.Port > 65535 {
		errs = append(errs, fmt.Errorf("client.port out of range: %d", c.Client.Port))
	}
	if c.Client.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("client.connect_timeout must be positive, got %s", c.Client.ConnectTimeout))
	}
	return errors.Join(errs...)
}

// SessionOptions converts the session section for the session package.
func (c SessionConfig) SessionOptions() session.Config {
	return session.Config{
		MaxMessageSize:    c.MaxMessageSize,
		PingInterval:      c.PingInterval,
		EnableCompression: c.EnableCompression,
	}
}

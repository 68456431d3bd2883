package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wsgate/internal/logging"
	"github.com/muurk/wsgate/internal/metrics"
	"github.com/muurk/wsgate/internal/protocol"
	"github.com/muurk/wsgate/internal/session"
)

// Config holds the network manager configuration
type Config struct {
	Address string
	Port    int
	Workers int // accept loops, handshakes always get their own goroutine

	// Listen enables the listener. Client processes leave it off and only
	// open outbound sessions.
	Listen bool

	Session session.Config
}

// Option configures a NetworkManager.
type Option func(*NetworkManager)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *NetworkManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics reports session events and drain timings to m.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *NetworkManager) {
		m.metrics = mt
	}
}

// NetworkManager owns the listener, the session registry and every session
// goroutine, and exposes the per-tick entry point HandleIncomingMessages.
type NetworkManager struct {
	cfg      Config
	ops      *session.Operations
	logger   *logging.Logger
	metrics  *metrics.Metrics
	registry *session.Registry

	// sessions tracks every session goroutine (dial, read, write)
	sessions sync.WaitGroup

	mu       sync.Mutex
	ctx      context.Context
	listener *Listener
	running  bool
	finished bool
}

var _ session.Manager = (*NetworkManager)(nil)

// New creates a network manager routing inbound messages through ops.
func New(cfg Config, ops *session.Operations, opts ...Option) *NetworkManager {
	m := &NetworkManager{
		cfg:      cfg,
		ops:      ops,
		logger:   logging.Nop(),
		registry: session.NewRegistry(),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the listener when listening is enabled. ctx is the parent
// context for outbound dials.
func (m *NetworkManager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running || m.finished {
		m.mu.Unlock()
		return fmt.Errorf("network manager already started")
	}
	m.running = true
	if ctx != nil {
		m.ctx = ctx
	}
	m.mu.Unlock()

	if !m.cfg.Listen {
		m.logger.Info("Network manager running without listener")
		return nil
	}

	l := NewListener(ListenerConfig{
		Address: m.cfg.Address,
		Port:    m.cfg.Port,
		Workers: m.cfg.Workers,
	}, m.registry, m.sessionOptions())
	if err := l.Start(); err != nil {
		return err
	}

	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
	return nil
}

// Finish stops accepting, closes every session and waits for all session and
// listener goroutines to return or for ctx to expire.
func (m *NetworkManager) Finish(ctx context.Context) error {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return nil
	}
	m.finished = true
	l := m.listener
	m.mu.Unlock()

	m.logger.Info("Shutting down network manager",
		zap.Int("sessions", m.registry.Count()),
	)

	if l != nil {
		l.Stop()
	}
	m.closeAll()

	done := make(chan struct{})
	go func() {
		if l != nil {
			l.Wait()
		}
		// A pending handshake may have registered a session after the first sweep.
		m.closeAll()
		m.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions closed")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Shutdown timed out, sessions still unwinding",
			zap.Int("sessions", m.registry.Count()),
		)
		return fmt.Errorf("shutdown interrupted: %w", ctx.Err())
	}
}

func (m *NetworkManager) closeAll() {
	m.registry.ForEach(func(_ string, s *session.Session) {
		if s != nil {
			s.Close()
		}
	})
}

// HandleIncomingMessages drains every session's dispatch queue on the calling
// goroutine and returns the number of handlers run. Entries without a session
// or queue are unregistered; terminated sessions are drained one last time
// and then unregistered.
func (m *NetworkManager) HandleIncomingMessages() int {
	start := time.Now()
	total := 0

	for _, e := range m.registry.Snapshot() {
		s := e.Session
		if s == nil {
			m.logger.Warn("Invalid session in registry", zap.String("session_id", e.ID))
			m.registry.Remove(e.ID)
			continue
		}
		inbox := s.Inbox()
		if inbox == nil {
			m.logger.Warn("Session has no dispatch queue", zap.String("session_id", e.ID))
			m.registry.Unregister(s)
			continue
		}

		total += inbox.Drain()

		if s.State().Terminal() {
			if m.registry.Unregister(s) {
				m.logger.Debug("Removed terminated session", zap.String("session_id", e.ID))
			}
		}
	}

	if m.metrics != nil {
		m.metrics.ObserveDrain(total, time.Since(start).Seconds())
	}
	return total
}

// ConnectAsClient registers a client session under id and starts dialing
// host:port. Use WaitForOpen on the result to block until connected.
func (m *NetworkManager) ConnectAsClient(id, host, port string) (*session.Session, error) {
	m.mu.Lock()
	finished := m.finished
	m.mu.Unlock()
	if finished {
		return nil, fmt.Errorf("network manager finished")
	}

	s := session.NewClientSession(id, m.sessionOptions())
	m.registry.Add(id, s)
	if err := s.ConnectAsClient(host, port); err != nil {
		m.registry.Unregister(s)
		return nil, err
	}
	return s, nil
}

// SendToAll implements session.Manager.
func (m *NetworkManager) SendToAll(msg protocol.Message) int {
	return m.registry.SendToAll(msg)
}

// SendTo implements session.Manager.
func (m *NetworkManager) SendTo(id string, msg protocol.Message) bool {
	return m.registry.SendTo(id, msg)
}

// AddSession implements session.Manager.
func (m *NetworkManager) AddSession(id string, s *session.Session) bool {
	return m.registry.Add(id, s)
}

// RemoveSession implements session.Manager.
func (m *NetworkManager) RemoveSession(id string) bool {
	return m.registry.Remove(id)
}

// Sessions implements session.Manager.
func (m *NetworkManager) Sessions() []*session.Session {
	return m.registry.Sessions()
}

// Registry returns the session registry.
func (m *NetworkManager) Registry() *session.Registry {
	return m.registry
}

// Addr returns the listener address, or nil when not listening.
func (m *NetworkManager) Addr() net.Addr {
	m.mu.Lock()
	l := m.listener
	m.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.Addr()
}

// BroadcastStatus sends every open session a SERVER_STATUS line carrying the
// server time, the session count and the receiving session's own ID.
func (m *NetworkManager) BroadcastStatus() int {
	sessions := m.registry.Sessions()
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID())
	}
	base := fmt.Sprintf("server_time=%s;sessions=%d;ids=[%s]",
		time.Now().Format(time.RFC3339), len(sessions), strings.Join(ids, ","))

	sent := 0
	for _, s := range sessions {
		if !s.IsOpen() {
			continue
		}
		if s.Send(protocol.NewTextMessage(protocol.OpServerStatus, base+";your_id="+s.ID())) {
			sent++
		}
	}
	m.logger.Debug("Broadcast server status",
		zap.Int("sessions", len(sessions)),
		zap.Int("sent", sent),
	)
	return sent
}

func (m *NetworkManager) sessionOptions() session.Options {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()

	opts := session.Options{
		Config:     m.cfg.Session,
		Operations: m.ops,
		Logger:     m.logger,
		OnTerminated: func(s *session.Session) {
			if m.registry.Unregister(s) {
				m.logger.Debug("Unregistered session",
					zap.String("session_id", s.ID()),
					zap.String("state", s.State().String()),
				)
			}
		},
		WaitGroup: &m.sessions,
		Context:   ctx,
	}
	if m.metrics != nil {
		opts.Observer = m.metrics
	}
	return opts
}

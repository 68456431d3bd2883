package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/wsgate/internal/logging"
	"github.com/muurk/wsgate/internal/session"
)

// acceptBackoff is the pause after a non-fatal accept error.
const acceptBackoff = 50 * time.Millisecond

// ListenerConfig holds the bind address and the number of accept loops.
type ListenerConfig struct {
	Address string
	Port    int // 0 picks a random port
	Workers int // accept goroutines, at least 1
}

// Listener accepts TCP connections and turns each into a registered server
// session. Every handshake runs on its own goroutine, so a peer that never
// sends its upgrade request holds up nobody else.
type Listener struct {
	cfg      ListenerConfig
	registry *session.Registry
	opts     session.Options
	logger   *logging.Logger
	newID    func() string

	mu      sync.Mutex
	ln      net.Listener
	stopped bool

	// wg counts accept loops and in-flight handshakes
	wg sync.WaitGroup
}

// NewListener creates a listener that registers sessions in registry and
// builds them with opts.
func NewListener(cfg ListenerConfig, registry *session.Registry, opts session.Options) *Listener {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Listener{
		cfg:      cfg,
		registry: registry,
		opts:     opts,
		logger:   logger.Named("listener"),
		newID:    uuid.NewString,
	}
}

// Start binds the socket and starts the accept loops.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ln != nil || l.stopped {
		return fmt.Errorf("listener already started")
	}

	addr := net.JoinHostPort(l.cfg.Address, strconv.Itoa(l.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	l.ln = ln

	l.logger.Info("Listening for connections",
		zap.String("addr", ln.Addr().String()),
		zap.Int("workers", l.cfg.Workers),
	)

	l.wg.Add(l.cfg.Workers)
	for i := 0; i < l.cfg.Workers; i++ {
		go l.acceptConnections(ln)
	}
	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Stop closes the listening socket. Handshakes already in progress run to
// completion. Stop is idempotent.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	ln := l.ln
	l.mu.Unlock()

	if ln == nil {
		return
	}
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		l.logger.Warn("Error closing listener", zap.Error(err))
	}
	l.logger.Info("Listener stopped")
}

// Wait blocks until the accept loops and all handshakes returned.
func (l *Listener) Wait() {
	l.wg.Wait()
}

func (l *Listener) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

func (l *Listener) acceptConnections(ln net.Listener) {
	defer l.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || l.isStopped() {
				return
			}
			l.logger.Error("Failed to accept connection", zap.Error(err))
			time.Sleep(acceptBackoff)
			continue
		}

		l.wg.Add(1)
		go l.handleConnection(conn)
	}
}

// handleConnection registers a new server session and runs its handshake.
func (l *Listener) handleConnection(conn net.Conn) {
	defer l.wg.Done()

	remoteAddr := conn.RemoteAddr().String()
	if l.isStopped() {
		l.logger.Debug("Dropping connection accepted during shutdown",
			zap.String("remote_addr", remoteAddr),
		)
		_ = conn.Close()
		return
	}

	id := l.newID()
	s := session.NewServerSession(id, conn, l.opts)
	l.registry.Add(id, s)
	l.logger.LogConnection(id, remoteAddr, "connection_accepted")

	if err := s.RunAsServer(); err != nil {
		l.logger.Debug("Handshake did not complete",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}
}

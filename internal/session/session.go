package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/wsgate/internal/dispatch"
	"github.com/muurk/wsgate/internal/logging"
	"github.com/muurk/wsgate/internal/protocol"
)

const (
	// DefaultPingInterval is the liveness timer period
	DefaultPingInterval = 15 * time.Second

	// closeGrace bounds the close frame written during a graceful shutdown
	closeGrace = time.Second
)

// Config holds per-session tunables.
type Config struct {
	// MaxMessageSize is the largest payload accepted inbound and outbound
	MaxMessageSize int

	// PingInterval is the liveness timer period. It also bounds the
	// handshake and every individual write.
	PingInterval time.Duration

	// EnableCompression offers permessage-deflate during the handshake
	EnableCompression bool

	// UserAgent is sent by client sessions in the upgrade request
	UserAgent string
}

// DefaultConfig returns the reference configuration (1 GiB, 15s).
func DefaultConfig() Config {
	return Config{
		MaxMessageSize:    protocol.DefaultMaxMessageSize,
		PingInterval:      DefaultPingInterval,
		EnableCompression: true,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = protocol.DefaultMaxMessageSize
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	return c
}

// Options wires a session to its collaborators.
type Options struct {
	Config     Config
	Operations *Operations
	Logger     *logging.Logger
	Observer   Observer

	// OnTerminated runs once, after the session reached Closed or Failed.
	// It is called without any session lock held.
	OnTerminated func(*Session)

	// WaitGroup, when set, tracks every goroutine the session starts so an
	// owner can wait for all I/O to unwind.
	WaitGroup *sync.WaitGroup

	// Context is the parent context for dialing; cancelling it does not
	// close an open session.
	Context context.Context
}

// Session is one WebSocket connection, in either role, together with its
// outbound queue and inbound dispatch queue.
//
// Goroutines: the server handshake runs on the caller of RunAsServer, the
// client dial on a goroutine started by ConnectAsClient. Once Open, exactly
// one read goroutine and one write goroutine exist. The write goroutine owns
// every data and ping write and the liveness timer.
type Session struct {
	id           string
	role         Role
	cfg          Config
	ops          *Operations
	logger       *logging.Logger
	observer     Observer
	onTerminated func(*Session)
	wg           *sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	raw        net.Conn // transport connection, set before the upgrade
	state      State
	pingState  PingState
	conn       *websocket.Conn
	remoteAddr string
	sendQueue  *queue.Queue
	sendBusy   bool
	failedOp   string

	inbox *dispatch.Queue

	wake       chan struct{}
	activity   chan struct{}
	opened     chan struct{}
	done       chan struct{}
	terminated chan struct{}

	closeOnce sync.Once
}

// NewServerSession wraps an accepted connection. Call RunAsServer to perform
// the handshake.
func NewServerSession(id string, conn net.Conn, opts Options) *Session {
	s := newSession(id, RoleServer, opts)
	s.raw = conn
	if conn != nil {
		s.remoteAddr = conn.RemoteAddr().String()
	}
	return s
}

// NewClientSession creates an unconnected client session. Call
// ConnectAsClient to dial.
func NewClientSession(id string, opts Options) *Session {
	return newSession(id, RoleClient, opts)
}

func newSession(id string, role Role, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	wg := opts.WaitGroup
	if wg == nil {
		wg = &sync.WaitGroup{}
	}
	parent := opts.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	logger = logger.With(zap.String("session_id", id), zap.String("role", role.String()))

	return &Session{
		id:           id,
		role:         role,
		cfg:          opts.Config.withDefaults(),
		ops:          opts.Operations,
		logger:       logger,
		observer:     observer,
		onTerminated: opts.OnTerminated,
		wg:           wg,
		ctx:          ctx,
		cancel:       cancel,
		state:        StateNew,
		pingState:    PingAlive,
		sendQueue:    queue.New(),
		inbox:        dispatch.NewQueue("session "+id+" dispatch queue", logger),
		wake:         make(chan struct{}, 1),
		activity:     make(chan struct{}, 1),
		opened:       make(chan struct{}),
		done:         make(chan struct{}),
		terminated:   make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Role returns the session role.
func (s *Session) Role() Role {
	return s.role
}

// RemoteAddr returns the peer address once known.
func (s *Session) RemoteAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteAddr
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PingState returns the keepalive state.
func (s *Session) PingState() PingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingState
}

// IsOpen reports whether the session is Open. It never blocks on I/O.
func (s *Session) IsOpen() bool {
	return s.State() == StateOpen
}

// FailedOperation returns the name of the operation that drove the session
// to Failed, or "".
func (s *Session) FailedOperation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedOp
}

// Inbox returns the inbound dispatch queue.
func (s *Session) Inbox() *dispatch.Queue {
	return s.inbox
}

// PendingSends returns the number of outbound messages not yet written.
func (s *Session) PendingSends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendQueue.Length()
}

// Done is closed once the session reached Closed or Failed.
func (s *Session) Done() <-chan struct{} {
	return s.terminated
}

// Send queues msg for delivery. Messages from one session are written in the
// order Send was called. Send returns false, and logs a warning, when the
// message is empty or too large or the session is not Open.
func (s *Session) Send(msg protocol.Message) bool {
	if err := msg.Validate(s.cfg.MaxMessageSize); err != nil {
		s.logger.Warn("Refusing to send message",
			zap.String("opcode", msg.Opcode().String()),
			zap.Int("payload_length", msg.Len()),
			zap.Error(err),
		)
		return false
	}

	s.mu.Lock()
	if s.state != StateOpen {
		state := s.state
		s.mu.Unlock()
		s.logger.Warn("Cannot send, session is not open",
			zap.String("state", state.String()),
			zap.String("opcode", msg.Opcode().String()),
		)
		return false
	}
	s.sendQueue.Add(msg)
	start := !s.sendBusy
	s.sendBusy = true
	s.mu.Unlock()

	if start {
		s.signal(s.wake)
	}
	return true
}

// Close performs a graceful local close. It is safe to call more than once
// and from any goroutine, including handlers.
func (s *Session) Close() {
	s.terminate(StateClosed, "close", true)
}

// WaitForOpen blocks until the session is Open, reaches a terminal state or
// timeout elapses. It is meant for bootstrap code only.
func (s *Session) WaitForOpen(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.opened:
		return s.IsOpen()
	case <-s.terminated:
		return false
	case <-timer.C:
		return s.IsOpen()
	}
}

// transition moves the state machine along an allowed edge.
func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	if s.state != from || !canTransition(from, to) {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	s.stateChanged(from, to)
	return true
}

func (s *Session) stateChanged(from, to State) {
	s.logger.LogStateChange(s.id, from.String(), to.String())
	s.observer.StateChanged(from, to)
}

// signal performs a non-blocking notify on a 1-buffered channel.
func (s *Session) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// cancelled reports whether err is the expected fallout of our own close.
func (s *Session) cancelled(err error) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	return isClosedConnError(err)
}

// fail drives the session to Failed. A cancellation caused by a deliberate
// close is only logged at debug level and never counts as a failure.
func (s *Session) fail(op string, err error) {
	if s.cancelled(err) {
		s.logger.Debug("Operation cancelled",
			zap.String("operation", op),
			zap.Error(err),
		)
		s.terminate(StateClosed, op, false)
		return
	}

	s.logger.Warn("Session failed",
		zap.String("operation", op),
		zap.String("remote_addr", s.RemoteAddr()),
		zap.Error(err),
	)
	s.mu.Lock()
	if s.failedOp == "" {
		s.failedOp = op
	}
	s.mu.Unlock()
	s.terminate(StateFailed, op, false)
}

// terminate runs the Closing step exactly once and ends in final (Closed or
// Failed). graceful requests a close frame before the socket is shut.
func (s *Session) terminate(final State, reason string, graceful bool) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		from := s.state
		if from.Terminal() {
			s.mu.Unlock()
			return
		}
		s.state = StateClosing
		conn, raw := s.conn, s.raw
		s.mu.Unlock()
		s.stateChanged(from, StateClosing)

		close(s.done)
		s.cancel()

		s.shutdownSocket(conn, raw, graceful && from == StateOpen)

		s.mu.Lock()
		s.state = final
		s.sendQueue = queue.New()
		s.sendBusy = false
		s.mu.Unlock()
		s.stateChanged(StateClosing, final)

		s.logger.LogConnection(s.id, s.RemoteAddr(), "session_"+final.String())
		s.logger.Debug("Session terminated", zap.String("reason", reason))

		close(s.terminated)
		if s.onTerminated != nil {
			s.onTerminated(s)
		}
	})
}

// shutdownSocket cancels outstanding I/O by closing the socket: optional
// close frame, write half-close, then close. Errors are logged only.
func (s *Session) shutdownSocket(conn *websocket.Conn, raw net.Conn, graceful bool) {
	netConn := raw
	if conn != nil {
		if graceful {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); err != nil {
				s.logger.Debug("Failed to send close frame", zap.Error(err))
			}
		}
		netConn = conn.NetConn()
	}
	if netConn == nil {
		return
	}

	if hc, ok := netConn.(interface{ CloseWrite() error }); ok {
		if err := hc.CloseWrite(); err != nil && !isClosedConnError(err) {
			s.logger.Debug("Socket half-close failed", zap.Error(err))
		}
	}
	if err := netConn.Close(); err != nil && !isClosedConnError(err) {
		s.logger.Debug("Socket close failed", zap.Error(err))
	}
}

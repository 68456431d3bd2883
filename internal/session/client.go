package session

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnectAsClient starts dialing host:port and returns immediately. Progress
// is observable through State, WaitForOpen and Done. It is only valid on a
// client session that has not been started yet.
func (s *Session) ConnectAsClient(host, port string) error {
	if s.role != RoleClient {
		return fmt.Errorf("%w: connect on %s session", ErrInvalidState, s.role)
	}
	if !s.transition(StateNew, StateConnecting) {
		return fmt.Errorf("%w: connect in state %s", ErrInvalidState, s.State())
	}

	target := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, port), Path: "/"}
	s.logger.Info("Connecting to server", zap.String("url", target.String()))

	s.wg.Add(1)
	go s.runAsClient(target)
	return nil
}

// runAsClient dials and performs the client handshake. The dialer hook
// moves the session to Handshaking once the TCP connection is up, so a
// failure is attributed to the right step.
func (s *Session) runAsClient(target url.URL) {
	defer s.wg.Done()

	dialer := websocket.Dialer{
		NetDialContext:    s.dialTransport,
		HandshakeTimeout:  s.cfg.PingInterval,
		EnableCompression: s.cfg.EnableCompression,
	}

	var header http.Header
	if s.cfg.UserAgent != "" {
		header = http.Header{"User-Agent": []string{s.cfg.UserAgent}}
	}

	conn, resp, err := dialer.DialContext(s.ctx, target.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		op := "handshake"
		if s.State() == StateConnecting {
			op = "connect"
		}
		s.fail(op, fmt.Errorf("failed to connect to %s: %w", target.Host, err))
		return
	}
	s.open(conn)
}

func (s *Session) dialTransport(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.raw = conn
	s.remoteAddr = conn.RemoteAddr().String()
	s.mu.Unlock()
	s.logger.LogConnection(s.id, conn.RemoteAddr().String(), "connected")

	if !s.transition(StateConnecting, StateHandshaking) {
		_ = conn.Close()
		return nil, ErrSessionClosed
	}
	return conn, nil
}

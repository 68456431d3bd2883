package session

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RunAsServer performs the server side of the handshake on the accepted
// connection and, on success, starts the read and write loops. It blocks only
// for the handshake, which is bounded by the ping interval. Failures drive the
// session to Failed; the returned error is informational.
func (s *Session) RunAsServer() error {
	s.mu.Lock()
	conn := s.raw
	s.mu.Unlock()

	if s.role != RoleServer || conn == nil {
		return fmt.Errorf("%w: run as server on %s session", ErrInvalidState, s.role)
	}
	if !s.transition(StateNew, StateHandshaking) {
		return fmt.Errorf("%w: run as server in state %s", ErrInvalidState, s.State())
	}

	ws, err := s.acceptUpgrade(conn)
	if err != nil {
		s.fail("handshake", err)
		return err
	}
	s.open(ws)
	return nil
}

// acceptUpgrade reads the upgrade request off the raw connection and lets
// the gorilla upgrader answer it.
func (s *Session) acceptUpgrade(conn net.Conn) (*websocket.Conn, error) {
	if err := conn.SetDeadline(time.Now().Add(s.cfg.PingInterval)); err != nil {
		return nil, fmt.Errorf("failed to set handshake deadline: %w", err)
	}

	reader := bufio.NewReader(conn)
	req, err := http.ReadRequest(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read HTTP request: %w", err)
	}
	s.logUpgradeRequest(req)

	upgrader := websocket.Upgrader{
		HandshakeTimeout:  s.cfg.PingInterval,
		EnableCompression: s.cfg.EnableCompression,
		CheckOrigin:       func(*http.Request) bool { return true },
	}
	w := &hijackWriter{
		conn: conn,
		rw:   bufio.NewReadWriter(reader, bufio.NewWriter(conn)),
	}
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade failed: %w", err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("failed to clear handshake deadline: %w", err)
	}
	return ws, nil
}

func (s *Session) logUpgradeRequest(req *http.Request) {
	headers := make(map[string]string, len(req.Header))
	for key, values := range req.Header {
		headers[key] = strings.Join(values, ", ")
	}
	remoteAddr := s.RemoteAddr()
	s.logger.LogHTTPRequest(remoteAddr, req.Method, req.URL.Path, headers)

	s.logger.Debug("WebSocket upgrade request details",
		zap.String("remote_addr", remoteAddr),
		zap.String("host", req.Host),
		zap.String("origin", req.Header.Get("Origin")),
		zap.String("sec_websocket_version", req.Header.Get("Sec-WebSocket-Version")),
		zap.String("sec_websocket_extensions", req.Header.Get("Sec-WebSocket-Extensions")),
		zap.String("user_agent", req.Header.Get("User-Agent")),
	)
}

// hijackWriter adapts an accepted net.Conn to the http.ResponseWriter and
// http.Hijacker pair the upgrader expects. Rejections are written as a bare
// HTTP/1.1 response; a successful upgrade hijacks the connection.
type hijackWriter struct {
	conn   net.Conn
	rw     *bufio.ReadWriter
	header http.Header
	status int
}

func (w *hijackWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *hijackWriter) WriteHeader(status int) {
	if w.status != 0 {
		return
	}
	w.status = status
	w.Header().Set("Connection", "close")
	fmt.Fprintf(w.rw, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	_ = w.Header().Write(w.rw)
	_, _ = w.rw.WriteString("\r\n")
}

func (w *hijackWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.rw.Write(p)
	if err != nil {
		return n, err
	}
	return n, w.rw.Flush()
}

func (w *hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.conn, w.rw, nil
}

package session

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/muurk/wsgate/internal/logging"
	"github.com/muurk/wsgate/internal/protocol"
)

// recorder counts observer callbacks.
type recorder struct {
	mu       sync.Mutex
	dropped  []string
	received int
	sent     int
}

func (r *recorder) StateChanged(State, State) {}

func (r *recorder) FrameReceived(protocol.Opcode, int) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()
}

func (r *recorder) FrameDropped(reason string) {
	r.mu.Lock()
	r.dropped = append(r.dropped, reason)
	r.mu.Unlock()
}

func (r *recorder) MessageSent(protocol.Opcode, int) {
	r.mu.Lock()
	r.sent++
	r.mu.Unlock()
}

func (r *recorder) drops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dropped...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func echoOps(t *testing.T) *Operations {
	t.Helper()
	ops, err := NewOperations(
		Operation{Opcode: protocol.OpPing, Handler: func(s *Session, msg protocol.Message) {
			s.Send(protocol.NewMessage(protocol.OpPing, msg.Payload()))
		}},
		Operation{Opcode: protocol.OpDataRequest, Handler: func(*Session, protocol.Message) {}},
	)
	if err != nil {
		t.Fatalf("NewOperations() error = %v", err)
	}
	return ops
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

// startServer accepts one connection as a server session and dials it with a
// plain gorilla client.
func startServer(t *testing.T, opts Options) (*Session, *websocket.Conn) {
	t.Helper()
	ln := listen(t)

	sessions := make(chan *Session, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(sessions)
			return
		}
		s := NewServerSession("server", conn, opts)
		sessions <- s
		_ = s.RunAsServer()
	}()

	client, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	_ = resp.Body.Close()

	s, ok := <-sessions
	if !ok {
		t.Fatal("accept failed")
	}
	if !s.WaitForOpen(3 * time.Second) {
		t.Fatalf("server session did not open, state %s", s.State())
	}
	t.Cleanup(func() {
		_ = client.Close()
		s.Close()
	})
	return s, client
}

func TestServerSessionOpens(t *testing.T) {
	s, _ := startServer(t, Options{Operations: echoOps(t)})

	if !s.IsOpen() {
		t.Errorf("IsOpen() = false, state %s", s.State())
	}
	if s.PingState() != PingAlive {
		t.Errorf("PingState() = %s, want alive", s.PingState())
	}
	if s.RemoteAddr() == "" {
		t.Error("RemoteAddr() is empty")
	}
}

func TestPingEcho(t *testing.T) {
	s, client := startServer(t, Options{Operations: echoOps(t)})

	if err := client.WriteMessage(websocket.TextMessage, []byte("0hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "queued handler", func() bool { return s.Inbox().Len() == 1 })

	if n := s.Inbox().Drain(); n != 1 {
		t.Fatalf("Drain() = %d, want 1", n)
	}

	_ = client.SetReadDeadline(time.Now().Add(3 * time.Second))
	messageType, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if messageType != websocket.TextMessage || string(data) != "0hello" {
		t.Errorf("got %d %q, want text \"0hello\"", messageType, data)
	}

	// Exactly one frame: nothing else should arrive.
	_ = client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, extra, err := client.ReadMessage(); err == nil {
		t.Errorf("unexpected extra frame %q", extra)
	}
}

func TestRoutingUnknownAndShortFrames(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &recorder{}
	calls := 0
	ops, _ := NewOperations(Operation{
		Opcode:  protocol.OpDataRequest,
		Handler: func(*Session, protocol.Message) { calls++ },
	})
	s, client := startServer(t, Options{
		Operations: ops,
		Logger:     logging.Wrap(zap.New(core)),
		Observer:   rec,
	})

	for _, frame := range []string{"9nope", "1", "1payload"} {
		if err := client.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("write %q: %v", frame, err)
		}
	}
	waitFor(t, "routed frame", func() bool { return s.Inbox().Len() == 1 })
	waitFor(t, "two drops", func() bool { return len(rec.drops()) == 2 })

	s.Inbox().Drain()
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
	drops := rec.drops()
	if drops[0] != DropUnknownOpcode || drops[1] != DropTooShort {
		t.Errorf("drops = %v", drops)
	}
	if logs.FilterMessage("Dropping frame with unknown opcode").Len() != 1 {
		t.Error("missing unknown opcode warning")
	}
	if !s.IsOpen() {
		t.Error("protocol violations must not close the session")
	}
}

func TestOversizedInboundFrameDropped(t *testing.T) {
	rec := &recorder{}
	s, client := startServer(t, Options{
		Config:     Config{MaxMessageSize: 8, PingInterval: time.Minute},
		Operations: echoOps(t),
		Observer:   rec,
	})

	if err := client.WriteMessage(websocket.BinaryMessage, []byte("0123456789abcdef")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := client.WriteMessage(websocket.TextMessage, []byte("0ok")); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, "follow-up frame", func() bool { return s.Inbox().Len() == 1 })
	if drops := rec.drops(); len(drops) != 1 || drops[0] != DropTooLarge {
		t.Errorf("drops = %v, want [%s]", drops, DropTooLarge)
	}
	if !s.IsOpen() {
		t.Error("session closed after oversized frame")
	}
}

func TestSendPreservesOrder(t *testing.T) {
	s, client := startServer(t, Options{Operations: echoOps(t)})

	const n = 200
	for i := 0; i < n; i++ {
		if !s.Send(protocol.NewTextMessage(protocol.OpDataResponse, fmt.Sprintf("msg-%03d", i))) {
			t.Fatalf("Send(%d) = false", i)
		}
	}

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < n; i++ {
		_, data, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		want := fmt.Sprintf("2msg-%03d", i)
		if string(data) != want {
			t.Fatalf("frame %d = %q, want %q", i, data, want)
		}
	}
	waitFor(t, "empty send queue", func() bool { return s.PendingSends() == 0 })
}

func TestSendBinaryPayload(t *testing.T) {
	s, client := startServer(t, Options{Operations: echoOps(t)})

	s.Send(protocol.NewMessage(protocol.OpDataResponse, []byte{0xff, 0x00, 0x01}))

	_ = client.SetReadDeadline(time.Now().Add(3 * time.Second))
	messageType, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if messageType != websocket.BinaryMessage {
		t.Errorf("message type = %d, want binary", messageType)
	}
	if len(data) != 4 || data[0] != '2' || data[1] != 0xff {
		t.Errorf("frame = %v", data)
	}
}

func TestSendOversizeRejected(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s, _ := startServer(t, Options{
		Config:     Config{MaxMessageSize: 16, PingInterval: time.Minute},
		Operations: echoOps(t),
		Logger:     logging.Wrap(zap.New(core)),
	})

	before := s.PendingSends()
	if s.Send(protocol.NewMessage(protocol.OpDataResponse, make([]byte, 17))) {
		t.Error("Send() of max+1 bytes = true")
	}
	if s.PendingSends() != before {
		t.Errorf("PendingSends() = %d, want %d", s.PendingSends(), before)
	}
	if logs.FilterMessage("Refusing to send message").Len() != 1 {
		t.Error("expected a warning for the oversized send")
	}
}

func TestSendRequiresOpen(t *testing.T) {
	s := NewClientSession("idle", Options{})
	if s.Send(protocol.NewTextMessage(protocol.OpPing, "x")) {
		t.Error("Send() on a new session = true")
	}
	if s.IsOpen() {
		t.Error("IsOpen() on a new session = true")
	}
}

func TestLivenessClosesAndUnregisters(t *testing.T) {
	registry := NewRegistry()
	opts := Options{
		Config:       Config{PingInterval: 200 * time.Millisecond},
		Operations:   echoOps(t),
		OnTerminated: func(s *Session) { registry.Unregister(s) },
	}
	// The client never reads, so it never answers pings.
	s, _ := startServer(t, opts)
	registry.Add(s.ID(), s)

	// One unanswered ping is tolerated; the close comes on the next tick.
	time.Sleep(300 * time.Millisecond)
	if !s.IsOpen() {
		t.Fatalf("State() = %s at 1.5 intervals, want open", s.State())
	}
	if registry.Count() != 1 {
		t.Fatalf("registry Count() = %d before liveness window, want 1", registry.Count())
	}

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("session still %s after liveness window", s.State())
	}

	if s.State() != StateClosed {
		t.Errorf("State() = %s, want closed", s.State())
	}
	if registry.Count() != 0 {
		t.Errorf("registry Count() = %d, want 0", registry.Count())
	}
}

func TestActivityKeepsSessionAlive(t *testing.T) {
	s, client := startServer(t, Options{
		Config:     Config{PingInterval: 50 * time.Millisecond},
		Operations: echoOps(t),
	})

	// Reading lets the gorilla client answer pings.
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	time.Sleep(300 * time.Millisecond)
	if !s.IsOpen() {
		t.Errorf("session closed despite pongs, state %s", s.State())
	}
}

func TestRemoteCloseEndsSession(t *testing.T) {
	s, client := startServer(t, Options{Operations: echoOps(t)})

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := client.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("write close: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not close")
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %s, want closed", s.State())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	terminated := 0
	s, _ := startServer(t, Options{
		Operations:   echoOps(t),
		OnTerminated: func(*Session) { terminated++ },
	})

	s.Close()
	s.Close()
	<-s.Done()

	if s.State() != StateClosed {
		t.Errorf("State() = %s, want closed", s.State())
	}
	if terminated != 1 {
		t.Errorf("OnTerminated called %d times, want 1", terminated)
	}
}

func TestConnectAsClientInvalidState(t *testing.T) {
	server := NewServerSession("srv", nil, Options{})
	if err := server.ConnectAsClient("127.0.0.1", "1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ConnectAsClient on server session error = %v, want ErrInvalidState", err)
	}

	client := NewClientSession("cli", Options{})
	if err := client.RunAsServer(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("RunAsServer on client session error = %v, want ErrInvalidState", err)
	}
}

func TestClientSessionRoundTrip(t *testing.T) {
	ln := listen(t)
	serverOps := echoOps(t)

	servers := make(chan *Session, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s := NewServerSession("server", conn, Options{Operations: serverOps})
		servers <- s
		_ = s.RunAsServer()
	}()

	replies := make(chan string, 1)
	clientOps, _ := NewOperations(Operation{
		Opcode: protocol.OpPing,
		Handler: func(_ *Session, msg protocol.Message) {
			replies <- string(msg.Payload())
		},
	})
	client := NewClientSession("client", Options{Operations: clientOps})
	t.Cleanup(client.Close)

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	if err := client.ConnectAsClient(host, port); err != nil {
		t.Fatalf("ConnectAsClient() error = %v", err)
	}
	if err := client.ConnectAsClient(host, port); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second ConnectAsClient() error = %v, want ErrInvalidState", err)
	}
	if !client.WaitForOpen(3 * time.Second) {
		t.Fatalf("client did not open, state %s", client.State())
	}

	server := <-servers
	t.Cleanup(server.Close)
	if !server.WaitForOpen(3 * time.Second) {
		t.Fatal("server did not open")
	}

	client.Send(protocol.NewTextMessage(protocol.OpPing, "round trip"))
	waitFor(t, "server inbox", func() bool { return server.Inbox().Len() == 1 })
	server.Inbox().Drain()
	waitFor(t, "client inbox", func() bool { return client.Inbox().Len() == 1 })
	client.Inbox().Drain()

	select {
	case got := <-replies:
		if got != "round trip" {
			t.Errorf("reply = %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no reply handled")
	}
}

func TestClientConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	_ = ln.Close()

	client := NewClientSession("client", Options{Config: Config{PingInterval: time.Second}})
	if err := client.ConnectAsClient(host, port); err != nil {
		t.Fatalf("ConnectAsClient() error = %v", err)
	}
	if client.WaitForOpen(2 * time.Second) {
		t.Fatal("WaitForOpen() = true for a closed port")
	}

	<-client.Done()
	if client.State() != StateFailed {
		t.Errorf("State() = %s, want failed", client.State())
	}
	if client.FailedOperation() != "connect" {
		t.Errorf("FailedOperation() = %q, want connect", client.FailedOperation())
	}
}

func TestServerHandshakeFailure(t *testing.T) {
	ln := listen(t)

	sessions := make(chan *Session, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s := NewServerSession("server", conn, Options{})
		sessions <- s
		_ = s.RunAsServer()
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := <-sessions
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not fail")
	}
	if s.State() != StateFailed || s.FailedOperation() != "handshake" {
		t.Errorf("state = %s op = %q, want failed/handshake", s.State(), s.FailedOperation())
	}
}

package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/wsgate/internal/protocol"
)

// open installs the upgraded connection and starts both loops. It is the
// only way into StateOpen.
func (s *Session) open(conn *websocket.Conn) {
	s.mu.Lock()
	if s.state != StateHandshaking {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("Discarding connection, session left handshaking",
			zap.String("state", state.String()),
		)
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.raw = conn.NetConn()
	s.remoteAddr = conn.RemoteAddr().String()
	s.pingState = PingAlive
	s.state = StateOpen
	s.mu.Unlock()
	s.stateChanged(StateHandshaking, StateOpen)

	conn.SetPingHandler(func(data string) error {
		s.onRemoteActivity()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.cfg.PingInterval))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		s.onRemoteActivity()
		return nil
	})
	conn.EnableWriteCompression(s.cfg.EnableCompression)

	s.logger.LogConnection(s.id, conn.RemoteAddr().String(), "websocket_open")
	close(s.opened)

	s.wg.Add(2)
	go s.readLoop(conn)
	go s.writeLoop(conn)
}

// onRemoteActivity marks the peer alive and rearms the liveness timer.
func (s *Session) onRemoteActivity() {
	s.mu.Lock()
	s.pingState = PingAlive
	s.mu.Unlock()
	s.signal(s.activity)
}

func (s *Session) readLoop(conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		messageType, r, err := conn.NextReader()
		if err != nil {
			s.readFailed(err)
			return
		}
		s.onRemoteActivity()

		frame, err := readFrame(r, s.cfg.MaxMessageSize+1)
		if errors.Is(err, errFrameTooLarge) {
			s.logger.Warn("Dropping oversized frame",
				zap.Int("max_message_size", s.cfg.MaxMessageSize),
			)
			s.observer.FrameDropped(DropTooLarge)
			continue
		}
		if err != nil {
			s.readFailed(err)
			return
		}

		s.logger.LogWebSocketMessage(s.id, "received", messageType, frame)
		s.handleIncomingData(frame)
	}
}

// readFrame reads one message of at most limit bytes. Larger messages are
// consumed and discarded so the stream stays in sync.
func readFrame(r io.Reader, limit int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > limit {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, err
		}
		return nil, errFrameTooLarge
	}
	return data, nil
}

func (s *Session) readFailed(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		s.logger.Info("Connection closed by peer",
			zap.String("remote_addr", s.RemoteAddr()),
			zap.Int("code", closeErr.Code),
			zap.String("text", closeErr.Text),
		)
		s.terminate(StateClosed, "remote_close", false)
		return
	}
	s.fail("read", err)
}

// handleIncomingData decodes a frame and queues its handler on the inbox.
// Handlers never run here. It reports whether a handler was queued.
func (s *Session) handleIncomingData(frame []byte) bool {
	msg, err := protocol.Decode(frame, s.cfg.MaxMessageSize)
	if err != nil {
		s.logger.Warn("Dropping malformed frame",
			zap.Int("frame_length", len(frame)),
			zap.Error(err),
		)
		if errors.Is(err, protocol.ErrMessageTooLarge) {
			s.observer.FrameDropped(DropTooLarge)
		} else {
			s.observer.FrameDropped(DropTooShort)
		}
		return false
	}

	op, ok := s.ops.Lookup(msg.Opcode())
	if !ok {
		s.logger.Warn("Dropping frame with unknown opcode",
			zap.String("opcode", msg.Opcode().String()),
			zap.Int("payload_length", msg.Len()),
		)
		s.observer.FrameDropped(DropUnknownOpcode)
		return false
	}

	if s.inbox == nil {
		s.logger.Warn("Dispatch queue missing, dropping frame",
			zap.String("operation", op.Name),
		)
		s.observer.FrameDropped(DropNoInbox)
		return false
	}

	handler := op.Handler
	s.inbox.Enqueue(func() { handler(s, msg) })
	s.observer.FrameReceived(msg.Opcode(), msg.Len())
	return true
}

// writeLoop owns every write on the socket and the liveness timer.
func (s *Session) writeLoop(conn *websocket.Conn) {
	defer s.wg.Done()

	timer := time.NewTimer(s.cfg.PingInterval)
	defer timer.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			if !s.flush(conn) {
				return
			}
		case <-s.activity:
			timer.Reset(s.cfg.PingInterval)
		case <-timer.C:
			if !s.onTimer(conn) {
				return
			}
			timer.Reset(s.cfg.PingInterval)
		}
	}
}

// flush writes queued messages one at a time until the queue is empty. A
// message leaves the queue only after its write completed.
func (s *Session) flush(conn *websocket.Conn) bool {
	for {
		s.mu.Lock()
		if s.sendQueue.Length() == 0 {
			s.sendBusy = false
			s.mu.Unlock()
			return true
		}
		msg := s.sendQueue.Peek().(protocol.Message)
		s.mu.Unlock()

		if err := s.write(conn, msg); err != nil {
			s.fail("write", err)
			return false
		}

		s.mu.Lock()
		if s.sendQueue.Length() > 0 {
			s.sendQueue.Remove()
		}
		s.mu.Unlock()
	}
}

func (s *Session) write(conn *websocket.Conn, msg protocol.Message) error {
	frame := msg.Encode()
	messageType := websocket.BinaryMessage
	if msg.IsText() {
		messageType = websocket.TextMessage
	}

	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.PingInterval)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := conn.WriteMessage(messageType, frame); err != nil {
		return fmt.Errorf("failed to write %s message: %w", msg.Opcode().Name(), err)
	}

	s.logger.LogWebSocketMessage(s.id, "sent", messageType, frame)
	s.observer.MessageSent(msg.Opcode(), msg.Len())
	return nil
}

// onTimer handles a liveness timer expiry. It returns false once the session
// has been closed.
func (s *Session) onTimer(conn *websocket.Conn) bool {
	s.mu.Lock()
	if s.pingState != PingAlive {
		state := s.pingState
		s.mu.Unlock()
		s.logger.Warn("Peer unresponsive, closing session",
			zap.String("remote_addr", s.RemoteAddr()),
			zap.String("ping_state", state.String()),
			zap.Duration("interval", s.cfg.PingInterval),
		)
		s.terminate(StateClosed, "liveness", false)
		return false
	}
	s.pingState = PingSending
	s.mu.Unlock()

	err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.PingInterval))
	if err != nil {
		s.fail("ping", err)
		return false
	}
	s.logger.Debug("Sent ping")

	// A pong may already have moved us back to Alive.
	s.mu.Lock()
	if s.pingState == PingSending {
		s.pingState = PingSent
	}
	s.mu.Unlock()
	return true
}

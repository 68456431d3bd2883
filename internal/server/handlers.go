package server

import (
	"go.uber.org/zap"

	"github.com/muurk/wsgate/internal/analysis"
	"github.com/muurk/wsgate/internal/logging"
	"github.com/muurk/wsgate/internal/protocol"
	"github.com/muurk/wsgate/internal/session"
)

// logPreview bounds how much of a payload handlers put in log records
const logPreview = 50

func preview(payload []byte) string {
	if len(payload) > logPreview {
		return string(payload[:logPreview])
	}
	return string(payload)
}

// PingHandler echoes the message back unchanged.
func PingHandler(logger *logging.Logger) session.Handler {
	return func(s *session.Session, msg protocol.Message) {
		logger.Info("Ping received",
			zap.String("session_id", s.ID()),
			zap.String("payload", preview(msg.Payload())),
		)
		s.Send(msg)
	}
}

// PingReplyHandler reports an echoed PING without answering it, so two
// peers never bounce a ping back and forth.
func PingReplyHandler(logger *logging.Logger, onReply func(sessionID, payload string)) session.Handler {
	return func(s *session.Session, msg protocol.Message) {
		logger.Info("Ping reply received",
			zap.String("session_id", s.ID()),
			zap.String("payload", preview(msg.Payload())),
		)
		if onReply != nil {
			onReply(s.ID(), string(msg.Payload()))
		}
	}
}

// DataRequestHandler analyzes the CSV payload and answers with a
// DATA_RESPONSE carrying the row count.
func DataRequestHandler(logger *logging.Logger) session.Handler {
	return func(s *session.Session, msg protocol.Message) {
		logger.Info("Data request received",
			zap.String("session_id", s.ID()),
			zap.Int("payload_length", msg.Len()),
			zap.String("payload", preview(msg.Payload())),
		)

		sum, err := analysis.Analyze(msg.Payload())
		if err != nil {
			logger.Warn("Invalid data request payload",
				zap.String("session_id", s.ID()),
				zap.Error(err),
			)
		}
		fields := []zap.Field{
			zap.String("session_id", s.ID()),
			zap.Int("rows", sum.Rows),
			zap.Int("columns", sum.Columns),
			zap.Int("skipped", sum.Skipped),
		}
		if !sum.Latest.IsZero() {
			fields = append(fields, zap.String("latest", sum.Latest.Format(analysis.DateLayout)))
		}
		if sum.HasRatio {
			fields = append(fields, zap.Float64("ratio", sum.Ratio))
		}
		logger.Info("Data analyzed", fields...)

		s.Send(protocol.NewTextMessage(protocol.OpDataResponse, sum.Response()))
	}
}

// DataResponseHandler logs a DATA_RESPONSE and passes its payload to
// onResult when set.
func DataResponseHandler(logger *logging.Logger, onResult func(sessionID, payload string)) session.Handler {
	return func(s *session.Session, msg protocol.Message) {
		payload := string(msg.Payload())
		logger.Info("Data response received",
			zap.String("session_id", s.ID()),
			zap.String("result", preview(msg.Payload())),
		)
		if onResult != nil {
			onResult(s.ID(), payload)
		}
	}
}

// ServerStatusHandler passes SERVER_STATUS lines to onStatus when set.
func ServerStatusHandler(logger *logging.Logger, onStatus func(sessionID, status string)) session.Handler {
	return func(s *session.Session, msg protocol.Message) {
		logger.Debug("Server status received",
			zap.String("session_id", s.ID()),
			zap.String("status", string(msg.Payload())),
		)
		if onStatus != nil {
			onStatus(s.ID(), string(msg.Payload()))
		}
	}
}

// ServerOperations is the opcode table of the server binary.
func ServerOperations(logger *logging.Logger) (*session.Operations, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	return session.NewOperations(
		session.Operation{Opcode: protocol.OpPing, Handler: PingHandler(logger)},
		session.Operation{Opcode: protocol.OpDataRequest, Handler: DataRequestHandler(logger)},
		session.Operation{Opcode: protocol.OpDataResponse, Handler: DataResponseHandler(logger, nil)},
	)
}

// ClientOperations is the opcode table of the client binary.
func ClientOperations(logger *logging.Logger, onResult, onStatus func(sessionID, payload string)) (*session.Operations, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	return session.NewOperations(
		session.Operation{Opcode: protocol.OpPing, Name: "PING_REPLY", Handler: PingReplyHandler(logger, onResult)},
		session.Operation{Opcode: protocol.OpDataResponse, Handler: DataResponseHandler(logger, onResult)},
		session.Operation{Opcode: protocol.OpServerStatus, Handler: ServerStatusHandler(logger, onStatus)},
	)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// SessionInfo is one row of the /sessions listing.
type SessionInfo struct {
	ID           string `json:"id"`
	Role         string `json:"role"`
	State        string `json:"state"`
	PingState    string `json:"ping_state"`
	RemoteAddr   string `json:"remote_addr"`
	PendingSends int    `json:"pending_sends"`
	Queued       int    `json:"queued_handlers"`
}

// SessionInfos describes every registered session.
func (m *NetworkManager) SessionInfos() []SessionInfo {
	sessions := m.registry.Sessions()
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		info := SessionInfo{
			ID:           s.ID(),
			Role:         s.Role().String(),
			State:        s.State().String(),
			PingState:    s.PingState().String(),
			RemoteAddr:   s.RemoteAddr(),
			PendingSends: s.PendingSends(),
		}
		if inbox := s.Inbox(); inbox != nil {
			info.Queued = inbox.Len()
		}
		infos = append(infos, info)
	}
	return infos
}

// StatusRouter serves /healthz, /sessions and, when metrics are enabled,
// /metrics.
func (m *NetworkManager) StatusRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/sessions", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m.SessionInfos()); err != nil {
			m.logger.Warn("Failed to encode session listing", zap.Error(err))
		}
	})
	r.Get("/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		for _, info := range m.SessionInfos() {
			if info.ID == id {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(info)
				return
			}
		}
		http.NotFound(w, req)
	})
	if m.metrics != nil {
		r.Handle("/metrics", m.metrics.Handler())
	}
	return r
}

// StatusServer is the diagnostic HTTP endpoint.
type StatusServer struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
}

// StartStatusServer binds addr and serves handler in the background.
func StartStatusServer(addr string, handler http.Handler, logger *zap.Logger) (*StatusServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &StatusServer{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server stopped", zap.Error(err))
		}
	}()
	logger.Info("Status endpoint listening", zap.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr returns the bound address.
func (s *StatusServer) Addr() net.Addr {
	return s.ln.Addr()
}

// Shutdown stops the server gracefully.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop status server: %w", err)
	}
	return nil
}

// StatusField is one key=value pair of a SERVER_STATUS line.
type StatusField struct {
	Key   string
	Value string
}

// ParseStatus splits a SERVER_STATUS payload into its fields, in order.
// Segments without '=' are kept with an empty value.
func ParseStatus(line string) []StatusField {
	var fields []StatusField
	for _, part := range strings.Split(line, ";") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		fields = append(fields, StatusField{Key: key, Value: value})
	}
	return fields
}

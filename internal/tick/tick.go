// Package tick runs named handlers at a fixed period on a single goroutine.
package tick

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wsgate/internal/logging"
)

// DefaultInterval is the tick period used when none is configured.
const DefaultInterval = 50 * time.Millisecond

// Handler is one named unit of per-tick work.
type Handler struct {
	Name string
	Fn   func()
}

// Every wraps fn so it only runs on every nth tick.
func Every(n int, fn func()) func() {
	if n <= 1 {
		return fn
	}
	count := 0
	return func() {
		count++
		if count < n {
			return
		}
		count = 0
		fn()
	}
}

// Manager calls its handlers in registration order once per interval.
type Manager struct {
	interval time.Duration
	logger   *logging.Logger

	mu       sync.Mutex
	handlers []Handler
	ticks    uint64
}

// NewManager creates a manager. A non-positive interval means DefaultInterval.
func NewManager(interval time.Duration, logger *logging.Logger) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{interval: interval, logger: logger}
}

// Add appends a handler.
func (m *Manager) Add(name string, fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.handlers = append(m.handlers, Handler{Name: name, Fn: fn})
	m.mu.Unlock()
}

// Handlers returns the registered handler names in order.
func (m *Manager) Handlers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.handlers))
	for i, h := range m.handlers {
		names[i] = h.Name
	}
	return names
}

// Ticks returns how many ticks have run.
func (m *Manager) Ticks() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks
}

// Tick runs every handler once. A panicking handler is logged and the
// remaining handlers still run.
func (m *Manager) Tick() {
	m.mu.Lock()
	handlers := append([]Handler(nil), m.handlers...)
	m.ticks++
	m.mu.Unlock()

	for _, h := range handlers {
		m.run(h)
	}
}

func (m *Manager) run(h Handler) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Tick handler panicked",
				zap.String("handler", h.Name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	h.Fn()
}

// Run ticks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("Tick loop started",
		zap.Duration("interval", m.interval),
		zap.Strings("handlers", m.Handlers()),
	)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Tick loop stopped", zap.Uint64("ticks", m.Ticks()))
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

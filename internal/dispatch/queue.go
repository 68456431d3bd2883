package dispatch

import (
	"runtime/debug"
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/muurk/wsgate/internal/logging"
)

// Call is a bound, zero-argument handler invocation.
type Call func()

// Queue is a thread-safe FIFO of pending calls. Enqueue may be called from
// any goroutine; Drain runs the calls on the goroutine that calls it.
type Queue struct {
	name   string
	logger *logging.Logger

	mu    sync.Mutex
	calls *queue.Queue
}

// NewQueue creates an empty queue. name only shows up in log records.
func NewQueue(name string, logger *logging.Logger) *Queue {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Queue{
		name:   name,
		logger: logger,
		calls:  queue.New(),
	}
}

// Enqueue appends a call. Nil calls are ignored.
func (q *Queue) Enqueue(call Call) {
	if call == nil {
		q.logger.Warn("Ignoring nil call", zap.String("queue", q.name))
		return
	}
	q.mu.Lock()
	q.calls.Add(call)
	q.mu.Unlock()
}

// Drain executes every call that was queued when Drain started, in FIFO
// order, and returns how many ran. Calls enqueued while draining are left for
// the next Drain. The queue lock is not held while a call executes, so a call
// may enqueue onto the same queue.
func (q *Queue) Drain() int {
	q.mu.Lock()
	n := q.calls.Length()
	q.mu.Unlock()

	executed := 0
	for i := 0; i < n; i++ {
		q.mu.Lock()
		if q.calls.Length() == 0 {
			// Clear() ran concurrently
			q.mu.Unlock()
			break
		}
		call := q.calls.Remove().(Call)
		q.mu.Unlock()

		q.run(call)
		executed++
	}
	return executed
}

// run executes one call, containing any panic so the remaining calls and the
// tick loop keep running.
func (q *Queue) run(call Call) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Dispatched call panicked",
				zap.String("queue", q.name),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()
	call()
}

// Len returns the number of pending calls.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls.Length()
}

// IsEmpty reports whether no calls are pending.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear drops every pending call without running it.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.calls = queue.New()
	q.mu.Unlock()
}

// Name returns the diagnostic name.
func (q *Queue) Name() string {
	return q.name
}

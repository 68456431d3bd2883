package tick

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickOrder(t *testing.T) {
	m := NewManager(time.Millisecond, nil)
	var order []string
	m.Add("first", func() { order = append(order, "first") })
	m.Add("second", func() { order = append(order, "second") })
	m.Add("ignored", nil)

	m.Tick()

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v", order)
	}
	if m.Ticks() != 1 {
		t.Errorf("Ticks() = %d, want 1", m.Ticks())
	}
}

func TestTickRecoversPanics(t *testing.T) {
	m := NewManager(0, nil)
	ran := false
	m.Add("boom", func() { panic("boom") })
	m.Add("after", func() { ran = true })

	m.Tick()

	if !ran {
		t.Error("handler after a panicking one did not run")
	}
}

func TestEvery(t *testing.T) {
	calls := 0
	fn := Every(3, func() { calls++ })
	for i := 0; i < 9; i++ {
		fn()
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	calls = 0
	always := Every(0, func() { calls++ })
	always()
	always()
	if calls != 2 {
		t.Errorf("Every(0) calls = %d, want 2", calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	m := NewManager(2*time.Millisecond, nil)
	var count atomic.Int64
	m.Add("count", func() { count.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if count.Load() == 0 {
		t.Error("no ticks ran")
	}
}

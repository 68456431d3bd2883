package session

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/muurk/wsgate/internal/protocol"
)

func newIdle(id string) *Session {
	return NewClientSession(id, Options{})
}

func TestRegistryAddRemoveCount(t *testing.T) {
	r := NewRegistry()
	present := make(map[string]bool)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("s%d", rng.Intn(20))
		if rng.Intn(2) == 0 {
			if !r.Add(id, newIdle(id)) {
				t.Fatalf("Add(%s) = false", id)
			}
			present[id] = true
		} else {
			got := r.Remove(id)
			if got != present[id] {
				t.Fatalf("Remove(%s) = %v, want %v", id, got, present[id])
			}
			delete(present, id)
			if _, ok := r.Get(id); ok {
				t.Fatalf("Get(%s) after Remove returned a session", id)
			}
		}
		if r.Count() != len(present) {
			t.Fatalf("step %d: Count() = %d, want %d", i, r.Count(), len(present))
		}
	}
}

func TestRegistryRejectsNil(t *testing.T) {
	r := NewRegistry()
	if r.Add("x", nil) {
		t.Error("Add(nil) = true, want false")
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
	if r.Remove("missing") {
		t.Error("Remove(missing) = true")
	}
}

// Duplicate IDs are not detected: the later Add wins.
func TestRegistryLastWriterWins(t *testing.T) {
	r := NewRegistry()
	first := newIdle("dup")
	second := newIdle("dup")

	r.Add("dup", first)
	r.Add("dup", second)

	got, ok := r.Get("dup")
	if !ok || got != second {
		t.Error("Get(dup) should return the most recently added session")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}

	if r.Unregister(first) {
		t.Error("Unregister of a replaced session must not evict its successor")
	}
	if !r.Unregister(second) {
		t.Error("Unregister(current) = false")
	}
}

func TestRegistryForEachRemoveNoDeadlock(t *testing.T) {
	r := NewRegistry()
	r.Add("a", newIdle("a"))
	r.Add("b", newIdle("b"))

	visited := make(map[string]bool)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ForEach(func(id string, _ *Session) {
			r.Remove("a")
			visited[id] = true
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ForEach deadlocked")
	}

	if !visited["b"] {
		t.Error("ForEach skipped b")
	}
	if _, ok := r.Get("a"); ok {
		t.Error("a still registered")
	}
}

func TestRegistrySnapshotSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		r.Add(id, newIdle(id))
	}

	sessions := r.Sessions()
	if len(sessions) != 3 {
		t.Fatalf("Sessions() len = %d", len(sessions))
	}
	for i, want := range []string{"a", "b", "c"} {
		if sessions[i].ID() != want {
			t.Errorf("Sessions()[%d] = %s, want %s", i, sessions[i].ID(), want)
		}
	}
}

func TestRegistrySendSkipsClosed(t *testing.T) {
	r := NewRegistry()
	r.Add("a", newIdle("a"))

	msg := protocol.NewTextMessage(protocol.OpServerStatus, "status")
	if n := r.SendToAll(msg); n != 0 {
		t.Errorf("SendToAll() = %d, want 0 for sessions that are not open", n)
	}
	if r.SendTo("missing", msg) {
		t.Error("SendTo(missing) = true")
	}
	if r.SendTo("a", msg) {
		t.Error("SendTo(not open) = true")
	}
}

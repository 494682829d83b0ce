//go:build linux

package sm

import (
	"testing"
	"time"
)

func TestPollSetDispatchesOnNotify(t *testing.T) {
	ps, err := NewPollSet()
	if err != nil {
		t.Fatalf("NewPollSet: %v", err)
	}
	defer ps.Close()

	n, err := NewNotifier()
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	defer n.Destroy()

	fired := make(chan any, 1)
	if err := ps.Add(n.FD(), "my-tag", func(tag any, errorFlag bool) { fired <- tag }); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := n.Set(); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, err := ps.Wait(time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	select {
	case tag := <-fired:
		if tag != "my-tag" {
			t.Fatalf("callback fired with tag %v, want \"my-tag\"", tag)
		}
	default:
		t.Fatalf("Wait returned but the callback never ran")
	}
}

func TestPollSetWaitTimesOutWhenIdle(t *testing.T) {
	ps, err := NewPollSet()
	if err != nil {
		t.Fatalf("NewPollSet: %v", err)
	}
	defer ps.Close()

	n, err := NewNotifier()
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	defer n.Destroy()

	if err := ps.Add(n.FD(), "idle-tag", func(any, bool) {}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	nready, err := ps.Wait(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("Wait on an idle poll set: %v", err)
	}
	if nready != 0 {
		t.Fatalf("Wait on an idle poll set returned %d ready fds, want 0", nready)
	}
}

func TestPollSetRemoveStopsDispatch(t *testing.T) {
	ps, err := NewPollSet()
	if err != nil {
		t.Fatalf("NewPollSet: %v", err)
	}
	defer ps.Close()

	n, err := NewNotifier()
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	defer n.Destroy()

	called := false
	if err := ps.Add(n.FD(), "removed-tag", func(any, bool) { called = true }); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := ps.Remove(n.FD()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := n.Set(); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := ps.Wait(20 * time.Millisecond); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if called {
		t.Fatalf("callback should not fire for a removed fd")
	}
}

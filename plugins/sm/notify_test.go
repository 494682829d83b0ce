//go:build linux

package sm

import "testing"

func TestNotifierSetGet(t *testing.T) {
	n, err := NewNotifier()
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	defer n.Destroy()

	got, err := n.Get()
	if err != nil {
		t.Fatalf("Get on a fresh notifier: %v", err)
	}
	if got {
		t.Fatalf("fresh notifier should not report pending")
	}

	if err := n.Set(); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err = n.Get()
	if err != nil {
		t.Fatalf("Get after Set: %v", err)
	}
	if !got {
		t.Fatalf("Get after Set should report pending")
	}

	got, err = n.Get()
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if got {
		t.Fatalf("Get should be edge-triggered: a second call with no intervening Set should report nothing")
	}
}

func TestNotifierCoalescesRepeatedSets(t *testing.T) {
	n, err := NewNotifier()
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	defer n.Destroy()

	for i := 0; i < 5; i++ {
		if err := n.Set(); err != nil {
			t.Fatalf("Set %d: %v", i, err)
		}
	}
	got, err := n.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got {
		t.Fatalf("Get should report pending after repeated Set calls")
	}
	if got, err = n.Get(); err != nil || got {
		t.Fatalf("a single Get should drain every coalesced Set: got=%v err=%v", got, err)
	}
}

func TestFromFDWrapsExistingDescriptor(t *testing.T) {
	n, err := NewNotifier()
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	defer n.Destroy()

	dup := FromFD(n.FD())
	if dup.FD() != n.FD() {
		t.Fatalf("FromFD should wrap the given fd unchanged")
	}
	if err := dup.Set(); err != nil {
		t.Fatalf("Set via the FromFD wrapper: %v", err)
	}
	got, err := n.Get()
	if err != nil || !got {
		t.Fatalf("Set through a FromFD wrapper should be visible through the original handle: got=%v err=%v", got, err)
	}
}

package mercury

import "testing"

func TestNewOpIDStartsCompleted(t *testing.T) {
	o := NewOpID()
	if o.Canceled() {
		t.Fatalf("fresh OpID should not be canceled")
	}
	if err := o.TryPost(nil, OpLookup, nil); err != nil {
		t.Fatalf("TryPost on a fresh Completed op should succeed, got %v", err)
	}
}

func TestTryPostRejectsWhileNotCompleted(t *testing.T) {
	o := NewOpID()
	if err := o.TryPost(nil, OpSendUnexpected, nil); err != nil {
		t.Fatalf("first TryPost: %v", err)
	}
	if err := o.TryPost(nil, OpSendUnexpected, nil); KindOf(err) != Busy {
		t.Fatalf("second TryPost before Complete: got %v, want Busy", err)
	}
	o.Complete()
	if err := o.TryPost(nil, OpSendUnexpected, nil); err != nil {
		t.Fatalf("TryPost after Complete should succeed, got %v", err)
	}
}

func TestCancelBeforeQueuedIsNoopRemoval(t *testing.T) {
	o := NewOpID()
	if err := o.TryPost(nil, OpRecvUnexpected, nil); err != nil {
		t.Fatalf("TryPost: %v", err)
	}
	removed := o.Cancel()
	if removed {
		t.Fatalf("Cancel before SetQueued should not report a removal")
	}
	if !o.Canceled() {
		t.Fatalf("Cancel should mark the op canceled")
	}
}

func TestCancelUnlinksQueuedOp(t *testing.T) {
	o := NewOpID()
	if err := o.TryPost(nil, OpRecvExpected, nil); err != nil {
		t.Fatalf("TryPost: %v", err)
	}
	unlinked := false
	o.SetQueued(func() bool {
		unlinked = true
		return true
	})
	if removed := o.Cancel(); !removed {
		t.Fatalf("Cancel on a queued op should report removal")
	}
	if !unlinked {
		t.Fatalf("Cancel should invoke the unlink closure for a queued op")
	}
}

func TestCancelAfterCompletedIsNoop(t *testing.T) {
	o := NewOpID()
	if err := o.TryPost(nil, OpPut, nil); err != nil {
		t.Fatalf("TryPost: %v", err)
	}
	o.Complete()
	if removed := o.Cancel(); removed {
		t.Fatalf("Cancel after Complete should be a no-op")
	}
}

func TestCompleteResetsRefcountForReuse(t *testing.T) {
	o := NewOpID()
	if err := o.TryPost(nil, OpGet, nil); err != nil {
		t.Fatalf("first TryPost: %v", err)
	}
	o.Complete()
	if err := o.TryPost(nil, OpGet, nil); err != nil {
		t.Fatalf("TryPost after Complete should succeed, got %v", err)
	}
}

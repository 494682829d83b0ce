package mercury

import (
	"errors"
	"testing"
	"time"
)

func newTestContext() *Context {
	class := &Class{}
	return NewContext(class, false)
}

func TestCompletionAddAndTrigger(t *testing.T) {
	ctx := newTestContext()
	op := NewOpID()
	if err := op.TryPost(ctx, OpSendUnexpected, nil); err != nil {
		t.Fatalf("TryPost: %v", err)
	}

	var gotKind CompletionKind
	var released bool
	op.UserCB = func(rec *CompletionRecord) { gotKind = rec.Kind }
	ctx.CompletionAdd(NewCompletionRecord(op, CompSendUnexpected, nil, nil, func() { released = true }))

	n, err := ctx.Trigger(time.Second, 10)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if n != 1 {
		t.Fatalf("Trigger dispatched %d, want 1", n)
	}
	if gotKind != CompSendUnexpected {
		t.Fatalf("callback saw kind %v, want CompSendUnexpected", gotKind)
	}
	if !released {
		t.Fatalf("Release callback was not invoked")
	}
	if op.status.Load()&statusCompleted == 0 {
		t.Fatalf("Trigger should have called op.Complete()")
	}
}

func TestTriggerTimesOutWhenEmpty(t *testing.T) {
	ctx := newTestContext()
	n, err := ctx.Trigger(10*time.Millisecond, 5)
	if n != 0 {
		t.Fatalf("Trigger on empty context dispatched %d, want 0", n)
	}
	if KindOf(err) != Timeout {
		t.Fatalf("Trigger on empty context: got %v, want Timeout", err)
	}
}

func TestTriggerOverflowsPastFastQueue(t *testing.T) {
	ctx := newTestContext()
	ops := make([]*OpID, fastQueueDepth+5)
	for i := range ops {
		ops[i] = NewOpID()
		if err := ops[i].TryPost(ctx, OpRecvUnexpected, nil); err != nil {
			t.Fatalf("TryPost %d: %v", i, err)
		}
		ctx.CompletionAdd(NewCompletionRecord(ops[i], CompRecvUnexpected, nil, nil, nil))
	}

	dispatched := 0
	for dispatched < len(ops) {
		n, err := ctx.Trigger(time.Second, len(ops)-dispatched)
		if err != nil {
			t.Fatalf("Trigger: %v", err)
		}
		dispatched += n
	}
	if dispatched != len(ops) {
		t.Fatalf("dispatched %d completions, want %d", dispatched, len(ops))
	}
}

func TestInvokeDeliversResultEvenWhenCanceled(t *testing.T) {
	ctx := newTestContext()
	op := NewOpID()
	if err := op.TryPost(ctx, OpLookup, nil); err != nil {
		t.Fatalf("TryPost: %v", err)
	}
	op.SetQueued(func() bool { return true })
	op.Cancel()

	wantErr := errors.New("boom")
	var gotErr error
	op.UserCB = func(rec *CompletionRecord) { gotErr = rec.Result }
	ctx.CompletionAdd(NewCompletionRecord(op, CompLookup, wantErr, nil, nil))

	if _, err := ctx.Trigger(time.Second, 1); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if gotErr != wantErr {
		t.Fatalf("callback Result = %v, want %v", gotErr, wantErr)
	}
	if op.Canceled() {
		// Complete() resets status to statusCompleted only, clearing Canceled.
		t.Fatalf("Complete() should clear the Canceled bit")
	}
}

package mercury

import "sync/atomic"

// OpKind identifies what kind of operation an OpID is bound to.
type OpKind int

const (
	OpLookup OpKind = iota
	OpSendUnexpected
	OpRecvUnexpected
	OpSendExpected
	OpRecvExpected
	OpPut
	OpGet
)

// Status bits for OpID.
const (
	statusCompleted uint32 = 1 << 0
	statusCanceled  uint32 = 1 << 1
	statusQueued    uint32 = 1 << 2
)

// Callback is invoked by the trigger loop with the completed record.
type Callback func(*CompletionRecord)

// OpID is a recyclable operation handle. It starts Completed; it may only
// be (re)posted when Completed is set and refcount is 1.
type OpID struct {
	status   atomic.Uint32
	refcount atomic.Int32

	Ctx      *Context
	Kind     OpKind
	UserCB   Callback
	Addr     any
	MsgInfo  any

	// unlink, when Queued is set, removes this op from the engine queue
	// currently holding it; Cancel invokes it.
	unlink func() bool
}

// NewOpID allocates an op-id in the Completed state with refcount 1.
func NewOpID() *OpID {
	o := &OpID{}
	o.status.Store(statusCompleted)
	o.refcount.Store(1)
	return o
}

// TryPost attempts to bind o for a new operation. It spins briefly on the
// refcount 1->2 CAS to let a previous trigger's release callback retire:
// a plugin may reuse an op-id before release has fired, and this spin is
// the SM plugin's contract for that race. Returns Busy if the op is not
// Completed.
func (o *OpID) TryPost(ctx *Context, kind OpKind, cb Callback) error {
	if o.status.Load()&statusCompleted == 0 {
		return NewError(Busy)
	}
	for {
		if o.refcount.CompareAndSwap(1, 2) {
			break
		}
		if o.refcount.Load() != 1 {
			continue
		}
	}
	o.status.Store(statusQueued)
	o.Ctx = ctx
	o.Kind = kind
	o.UserCB = cb
	o.unlink = nil
	return nil
}

// SetQueued marks the op as linked into an engine queue, recording the
// unlink closure Cancel should invoke if it races a dispatch. It toggles
// only the Queued bit via CAS rather than a plain Store, so it can't clobber
// a Canceled bit Cancel's own CAS loop set concurrently.
func (o *OpID) SetQueued(unlink func() bool) {
	o.unlink = unlink
	o.setStatusBit(statusQueued)
}

// ClearQueued clears the Queued bit once the op has been dispatched off its
// engine queue (matched, reserved, or about to complete). Also CAS-based for
// the same reason as SetQueued.
func (o *OpID) ClearQueued() {
	o.clearStatusBit(statusQueued)
}

// setStatusBit ORs bit into status via CAS, retrying on a concurrent
// writer rather than overwriting whatever bits that writer set.
func (o *OpID) setStatusBit(bit uint32) {
	for {
		cur := o.status.Load()
		next := cur | bit
		if next == cur || o.status.CompareAndSwap(cur, next) {
			return
		}
	}
}

// clearStatusBit is setStatusBit's complement.
func (o *OpID) clearStatusBit(bit uint32) {
	for {
		cur := o.status.Load()
		next := cur &^ bit
		if next == cur || o.status.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Cancel sets Canceled atomically. If the op is still Queued it removes it
// from its owning engine queue and reports removed=true, in which case the
// caller (Cancel, the package-level function) is responsible for posting a
// CANCELED completion. A no-op if already Completed.
func (o *OpID) Cancel() (removed bool) {
	for {
		cur := o.status.Load()
		if cur&statusCompleted != 0 {
			return false
		}
		next := cur | statusCanceled
		if o.status.CompareAndSwap(cur, next) {
			if cur&statusQueued != 0 && o.unlink != nil {
				removed = o.unlink()
			}
			return removed
		}
	}
}

// Canceled reports whether Cancel has been called on this op.
func (o *OpID) Canceled() bool { return o.status.Load()&statusCanceled != 0 }

// Complete marks the op Completed, dropping the Queued bit, and releases
// the post-time refcount, enabling a future TryPost. Must be called exactly
// once per successful TryPost.
func (o *OpID) Complete() {
	o.status.Store(statusCompleted)
	o.refcount.Store(1)
}

// Destroy drops the final reference. Callers that dup()'d an op-id via
// TryPost bookkeeping elsewhere should balance with this.
func (o *OpID) Destroy() {
	o.refcount.Add(-1)
}

package mercury

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wangrunji0408/mercury/internal/queue"
)

// CompletionKind identifies what kind of operation a CompletionRecord
// reports on.
type CompletionKind int

const (
	CompLookup CompletionKind = iota
	CompSendUnexpected
	CompRecvUnexpected
	CompSendExpected
	CompRecvExpected
	CompPut
	CompGet
)

// CompletionRecord is produced by a plugin engine and consumed exactly once
// by the trigger loop.
type CompletionRecord struct {
	Callback Callback
	Arg      any
	Release  func()
	Kind     CompletionKind
	Result   error

	// Kind-specific payload, e.g. *RecvInfo for RECV_* completions.
	Payload any

	op *OpID
}

// completionKindFor maps an OpKind onto the CompletionKind a completion for
// that op reports, used by Cancel to label a synthetic CANCELED completion
// the same way the engine would have labeled the real one.
func completionKindFor(k OpKind) CompletionKind {
	switch k {
	case OpSendUnexpected:
		return CompSendUnexpected
	case OpRecvUnexpected:
		return CompRecvUnexpected
	case OpSendExpected:
		return CompSendExpected
	case OpRecvExpected:
		return CompRecvExpected
	case OpPut:
		return CompPut
	case OpGet:
		return CompGet
	default:
		return CompLookup
	}
}

// NewCompletionRecord builds a record binding op to the trigger loop: when
// dispatched, Complete() is called on op before cb runs. Plugins use this
// rather than constructing a CompletionRecord literal so op's lifecycle
// stays internal to this package.
func NewCompletionRecord(op *OpID, kind CompletionKind, result error, payload any, release func()) *CompletionRecord {
	return &CompletionRecord{
		Callback: op.UserCB,
		Kind:     kind,
		Result:   result,
		Payload:  payload,
		Release:  release,
		op:       op,
	}
}

// fastQueueDepth is the bounded fast-path completion queue depth.
const fastQueueDepth = 1024

// Context is a completion domain inside a Class.
type Context struct {
	class *Class

	fast      *queue.Bounded
	fastCount atomic.Int32
	overflow  queue.IntrusiveList
	ofMu      sync.Mutex
	ofCond    *sync.Cond
	ofCount   int32

	triggerMu      sync.Mutex
	triggerCond    *sync.Cond
	triggerWaiting int32

	gate *progressGate
}

// overflowNode wraps a *CompletionRecord for the overflow intrusive list.
type overflowNode struct {
	node queue.Node
	rec  *CompletionRecord
}

// NewContext creates a context owned by class. multiProgress enables the
// gate serializing concurrent calls into the plugin's blocking Progress.
func NewContext(class *Class, multiProgress bool) *Context {
	c := &Context{
		class: class,
		fast:  queue.New(fastQueueDepth),
	}
	c.ofCond = sync.NewCond(&c.ofMu)
	c.triggerCond = sync.NewCond(&c.triggerMu)
	if multiProgress {
		c.gate = newProgressGate()
	}
	return c
}

// CompletionAdd publishes rec to this context: fast-queue push, falling
// back to the overflow FIFO on a full fast queue, then wakes any trigger
// waiters.
func (c *Context) CompletionAdd(rec *CompletionRecord) {
	if c.fast.Push(rec) {
		c.fastCount.Add(1)
	} else {
		n := &overflowNode{rec: rec}
		c.ofMu.Lock()
		c.overflow.PushBack(&n.node, n)
		c.ofCount++
		c.ofMu.Unlock()
	}

	c.triggerMu.Lock()
	waiting := c.triggerWaiting > 0
	c.triggerMu.Unlock()
	if waiting {
		c.triggerCond.Broadcast()
	}
}

// popOne pops one record from the fast queue, falling back to the overflow
// FIFO.
func (c *Context) popOne() *CompletionRecord {
	if v, ok := c.fast.Pop(); ok {
		c.fastCount.Add(-1)
		if v == nil {
			return nil
		}
		return v.(*CompletionRecord)
	}
	c.ofMu.Lock()
	n := c.overflow.PopFront()
	if n != nil {
		c.ofCount--
	}
	c.ofMu.Unlock()
	if n == nil {
		return nil
	}
	return n.Value().(*overflowNode).rec
}

// overflowPending reports whether the overflow FIFO currently holds
// anything, without popping -- used by TryWait.
func (c *Context) overflowPending() bool {
	c.ofMu.Lock()
	n := c.ofCount
	c.ofMu.Unlock()
	return n > 0
}

// Trigger drains up to maxCount completions, invoking each user callback
// then its plugin release callback. It blocks up to timeout waiting for
// at least one completion unless it already dispatched some, in which
// case it returns immediately with what it has.
func (c *Context) Trigger(timeout time.Duration, maxCount int) (int, error) {
	deadline := time.Now().Add(timeout)
	dispatched := 0

	for dispatched < maxCount {
		rec := c.popOne()
		if rec == nil {
			if dispatched > 0 {
				return dispatched, nil
			}
			remaining := deadline.Sub(time.Now())
			if remaining <= 0 {
				return dispatched, NewError(Timeout)
			}
			c.waitOnTrigger(remaining)
			continue
		}

		c.invoke(rec)
		dispatched++
	}
	return dispatched, nil
}

func (c *Context) invoke(rec *CompletionRecord) {
	if rec.op != nil {
		// A concurrently-canceled op that is later observed Completed loses
		// the race: completion wins, so we always deliver the
		// record the engine produced, whatever its Result says.
		rec.op.Complete()
	}
	if rec.Callback != nil {
		rec.Callback(rec)
	}
	if rec.Release != nil {
		rec.Release()
	}
}

func (c *Context) waitOnTrigger(remaining time.Duration) {
	c.triggerMu.Lock()
	c.triggerWaiting++
	timer := time.AfterFunc(remaining, func() { c.triggerCond.Broadcast() })
	c.triggerCond.Wait()
	timer.Stop()
	c.triggerWaiting--
	c.triggerMu.Unlock()
}

// TryWait reports true only if the fast queue, the overflow queue, and
// (via hasPending) any peer recv ring are all empty.
func (c *Context) TryWait(hasPending func() bool) bool {
	if c.overflowPending() {
		return false
	}
	if hasPending != nil && hasPending() {
		return false
	}
	return c.fastEmpty()
}

// fastEmpty reports whether the fast queue currently holds anything, via
// the count CompletionAdd/popOne maintain alongside it. Bounded provides no
// Len, and probing it with a Pop-then-Push-back would reorder the FIFO
// against a concurrent Trigger popping the same queue.
func (c *Context) fastEmpty() bool {
	return c.fastCount.Load() == 0
}

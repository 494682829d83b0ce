package mercury

import (
	"sync"
	"sync/atomic"
	"time"
)

// progressGate serializes concurrent entry into a plugin's blocking
// progress call: a single 32-bit atomic word where the low 31 bits count
// threads currently inside Progress and bit 31 is a lock held by whichever
// thread is actively running the plugin's blocking progress call.
type progressGate struct {
	word atomic.Uint32
	mu   sync.Mutex
	cond *sync.Cond
}

const gateLockBit uint32 = 1 << 31

func newProgressGate() *progressGate {
	g := &progressGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Enter blocks (up to timeout) until this goroutine wins the lock bit and
// may run the plugin's progress call, or returns ok=false on timeout. The
// returned runProgress is always true alongside ok=true: this
// implementation has no "merely observed someone else run it" success
// path, every successful Enter earns the right to call Progress itself.
func (g *progressGate) Enter(timeout time.Duration) (runProgress bool, ok bool) {
	deadline := time.Now().Add(timeout)
	g.word.Add(1)

	for {
		cur := g.word.Load()
		if cur&gateLockBit == 0 {
			if g.word.CompareAndSwap(cur, cur|gateLockBit) {
				return true, true
			}
			continue
		}

		remaining := deadline.Sub(time.Now())
		if remaining <= 0 {
			g.word.Add(^uint32(0)) // decrement count
			return false, false
		}

		g.mu.Lock()
		// Re-check under the mutex to avoid missing a signal sent between
		// the load above and acquiring the lock.
		if g.word.Load()&gateLockBit == 0 {
			g.mu.Unlock()
			continue
		}
		timer := time.AfterFunc(remaining, func() { g.cond.Broadcast() })
		g.cond.Wait()
		timer.Stop()
		g.mu.Unlock()
	}
}

// Exit releases the lock bit and decrements the waiter count, waking the
// waiters (one of which then takes the lock) when others remain.
// runProgress must be the value Enter returned.
func (g *progressGate) Exit(runProgress bool) {
	for {
		cur := g.word.Load()
		count := cur &^ gateLockBit
		var next uint32
		if runProgress {
			next = (count - 1) &^ gateLockBit
		} else {
			next = (count - 1) | (cur & gateLockBit)
		}
		if g.word.CompareAndSwap(cur, next) {
			if next&^gateLockBit > 0 {
				g.mu.Lock()
				g.cond.Broadcast()
				g.mu.Unlock()
			}
			return
		}
	}
}

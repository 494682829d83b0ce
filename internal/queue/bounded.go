/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package queue provides the lock-free bounded queue and intrusive list
// used by the completion fast-path and by the SM engine's retry/unexpected
// queues.
package queue

import "sync/atomic"

// Bounded is a fixed-capacity SPMC/MPMC lock-free queue of pointer-sized
// entries. Capacity is rounded up to the next power of two, mirroring the
// index-masking trick used by the shared-memory ring buffer: monotonic
// write/read counters masked by (capacity-1) rather than a modulo.
//
// Push is safe for multiple concurrent producers (CAS-serialized head
// reservation); Pop is safe for multiple concurrent consumers.
type Bounded struct {
	mask  uint64
	slots []slot
	head  atomic.Uint64 // next write position claimed by a producer
	tail  atomic.Uint64 // next read position claimed by a consumer
}

type slot struct {
	seq   atomic.Uint64 // generation marker: seq == pos means ready to read
	value atomic.Pointer[any]
}

// New returns a Bounded queue whose capacity is the next power of two
// greater than or equal to minCap (minimum 2).
func New(minCap int) *Bounded {
	cap := nextPow2(minCap)
	q := &Bounded{
		mask:  cap - 1,
		slots: make([]slot, cap),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

func nextPow2(n int) uint64 {
	if n < 2 {
		return 2
	}
	x := uint64(n - 1)
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return x + 1
}

// Cap returns the queue's fixed capacity.
func (q *Bounded) Cap() int { return len(q.slots) }

// Push attempts to enqueue v. It returns false if the queue is full.
func (q *Bounded) Push(v any) bool {
	for {
		pos := q.head.Load()
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()
		switch {
		case seq == pos:
			if q.head.CompareAndSwap(pos, pos+1) {
				s.value.Store(&v)
				s.seq.Store(pos + 1)
				return true
			}
		case seq < pos:
			// Slot not yet freed by a consumer: queue is full.
			return false
		default:
			// Another producer has already claimed and published this slot;
			// retry with a fresh head.
		}
	}
}

// Pop attempts to dequeue one entry. It returns (nil, false) if empty.
func (q *Bounded) Pop() (any, bool) {
	for {
		pos := q.tail.Load()
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()
		switch {
		case seq == pos+1:
			if q.tail.CompareAndSwap(pos, pos+1) {
				vp := s.value.Load()
				var v any
				if vp != nil {
					v = *vp
				}
				s.value.Store(nil)
				s.seq.Store(pos + q.Cap2())
				return v, true
			}
		case seq < pos+1:
			return nil, false
		default:
			// Another consumer raced ahead; retry.
		}
	}
}

// Cap2 returns capacity as uint64, used to advance a slot's sequence to the
// generation it will next be claimed at (pos + capacity).
func (q *Bounded) Cap2() uint64 { return uint64(len(q.slots)) }

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

package queue

import "sync"

// Node is embedded by any type that wants to live on an IntrusiveList: the
// completion overflow FIFO, the SM engine's retry/unexpected/expected op
// queues, and the address registry's accepted/poll-addr queues.
type Node struct {
	prev, next *Node
	owner      *IntrusiveList
	self       any
}

// Value returns the element this node is embedded in.
func (n *Node) Value() any { return n.self }

// Queued reports whether the node is currently linked into some list.
func (n *Node) Queued() bool { return n.owner != nil }

// IntrusiveList is a doubly-linked FIFO queue guarded by a mutex. It backs
// every engine-side queue in this package: the overflow completion FIFO,
// the retry-op queue, the unexpected/expected-op queues, and the
// accepted-addr and poll-addr queues. The hot path in this system is the
// lock-free ring (internal/queue.Bounded and the SM ring buffer), not
// these lists, so a plain mutex is adequate here.
type IntrusiveList struct {
	mu         sync.Mutex
	head, tail *Node
	len        int
}

// PushBack appends n, binding self as the value retrievable via n.Value().
func (l *IntrusiveList) PushBack(n *Node, self any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n.self = self
	n.owner = l
	n.prev = l.tail
	n.next = nil
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.len++
}

// PopFront removes and returns the head node, or nil if empty.
func (l *IntrusiveList) PopFront() *Node {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.head
	if n == nil {
		return nil
	}
	l.unlink(n)
	return n
}

// Remove unlinks n if l currently owns it and reports whether it did. It is
// a no-op returning false if n is not queued on l (so Cancel racing a
// dispatch is safe).
func (l *IntrusiveList) Remove(n *Node) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n.owner != l {
		return false
	}
	l.unlink(n)
	return true
}

// unlink must be called with l.mu held.
func (l *IntrusiveList) unlink(n *Node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next, n.owner = nil, nil, nil
	l.len--
}

// Len returns the number of queued nodes.
func (l *IntrusiveList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.len
}

// Each calls fn for every queued value, head to tail. fn must not mutate
// the list; callers that need removal during iteration should use Find.
func (l *IntrusiveList) Each(fn func(any)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for n := l.head; n != nil; n = n.next {
		fn(n.self)
	}
}

// Find removes and returns the first node for which match returns true,
// scanning head to tail. Used for expected-recv matching by (addr, tag).
func (l *IntrusiveList) Find(match func(any) bool) *Node {
	l.mu.Lock()
	defer l.mu.Unlock()
	for n := l.head; n != nil; n = n.next {
		if match(n.self) {
			l.unlink(n)
			return n
		}
	}
	return nil
}

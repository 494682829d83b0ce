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

package sm

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/wangrunji0408/mercury/internal/queue"
)

// sockPhase tracks where a peer's UNIX socket has gotten to in the
// fd-passing handshake.
type sockPhase int

const (
	phaseNone sockPhase = iota
	phaseAddrInfo
	phaseConnID
	phaseDone
)

// SmAddr is one SM peer: a pair of header rings, a pair of notifiers, and
// the bookkeeping needed to tear the connection down on refcount zero or
// on peer disconnect. Generalized from one fixed duplex pipe per process
// to an arbitrary number of concurrently tracked peers.
type SmAddr struct {
	Pid, Instance, ConnID int
	Self                  bool
	Listening             bool

	SendRing *Ring
	RecvRing *Ring
	Local    *Notifier // polled for NOTIFY; ours to Get()/clear when notified
	Remote   *Notifier // ours to Set() after publishing, to wake the peer

	// arenaForSelf is the copy arena messages exchanged with this peer use:
	// the listening side's arena, i.e. the peer's own (opened in Lookup) for
	// a looked-up address, and this engine's arena for the self address and
	// for accepted peers.
	arenaForSelf *Arena

	sockFD int
	phase  sockPhase

	refcount atomic.Int32

	node       queue.Node // for membership in accepted-addr / poll-addr queues
	onFinalize func(*SmAddr)
}

// NewSmAddr constructs an address with refcount 1.
func NewSmAddr() *SmAddr {
	a := &SmAddr{}
	a.refcount.Store(1)
	return a
}

// Dup increments the refcount, e.g. for post-time binding to an op-id or
// completion-time publication to the caller.
func (a *SmAddr) Dup() *SmAddr {
	a.refcount.Add(1)
	return a
}

// Release decrements the refcount. At zero it closes the ring pair, the
// notifiers and the socket fd, and closes the copy arena when this address
// owns it: the self address, or a looked-up peer's arena opened in Lookup.
// Accepted peers share the engine's own arena and leave it open. The
// listening socket is closed by Engine.Finalize, not here.
func (a *SmAddr) Release() {
	if a.refcount.Add(-1) != 0 {
		return
	}
	// The self address aliases SendRing/RecvRing and Local/Remote onto the
	// same underlying ring and notifier (loopback), so guard against
	// closing either pair twice.
	if a.SendRing != nil {
		a.SendRing.Close()
	}
	if a.RecvRing != nil && a.RecvRing != a.SendRing {
		a.RecvRing.Close()
	}
	if a.Local != nil {
		a.Local.Destroy()
	}
	if a.Remote != nil && a.Remote != a.Local {
		a.Remote.Destroy()
	}
	// Accepted peers alias the engine's own arena (onServerSockReady); of
	// the addresses holding an arena this process created, only self closes it.
	if a.arenaForSelf != nil && (a.Self || !a.arenaForSelf.region.own) {
		a.arenaForSelf.Close()
	}
	if a.sockFD != 0 {
		unix.Close(a.sockFD)
	}
	if a.onFinalize != nil {
		a.onFinalize(a)
	}
}

// AddrQueue is an intrusive FIFO of SmAddr membership, used for both the
// accepted-addr queue (server-side connection tracking) and the poll-addr
// queue (addresses whose recv ring try_wait scans).
type AddrQueue struct {
	list queue.IntrusiveList
}

func (q *AddrQueue) PushBack(a *SmAddr) { q.list.PushBack(&a.node, a) }

func (q *AddrQueue) Remove(a *SmAddr) bool { return q.list.Remove(&a.node) }

func (q *AddrQueue) Len() int { return q.list.Len() }

// Each calls fn for every address currently queued, front to back. fn must
// not mutate the queue.
func (q *AddrQueue) Each(fn func(*SmAddr)) {
	q.list.Each(func(v any) { fn(v.(*SmAddr)) })
}

// Registry tracks every SmAddr known to one Class: the self address, the
// accepted-addr queue, and the poll-addr queue, guarded by a mutex since
// lookups and teardown race against the progress thread.
type Registry struct {
	mu       sync.Mutex
	Self     *SmAddr
	Accepted AddrQueue
	Polled   AddrQueue
}

func (r *Registry) SetSelf(a *SmAddr) {
	r.mu.Lock()
	r.Self = a
	r.mu.Unlock()
}

func (r *Registry) AddAccepted(a *SmAddr) {
	r.mu.Lock()
	r.Accepted.PushBack(a)
	r.mu.Unlock()
}

func (r *Registry) AddPolled(a *SmAddr) {
	r.mu.Lock()
	r.Polled.PushBack(a)
	r.mu.Unlock()
}

func (r *Registry) RemovePolled(a *SmAddr) {
	r.mu.Lock()
	r.Polled.Remove(a)
	r.mu.Unlock()
}

// EachPolled iterates the poll-addr queue under lock.
func (r *Registry) EachPolled(fn func(*SmAddr)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Polled.Each(fn)
}

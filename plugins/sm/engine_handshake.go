//go:build linux

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
	"golang.org/x/sys/unix"

	mercury "github.com/wangrunji0408/mercury"
)

// onAcceptReady is the ACCEPT branch of the progress callback.
func (e *Engine) onAcceptReady(tag any, errorFlag bool) {
	if errorFlag {
		return
	}
	fd, ok, err := e.listener.Accept()
	if err != nil || !ok {
		return
	}
	addr := NewSmAddr()
	addr.sockFD = fd
	addr.phase = phaseAddrInfo
	e.poll.Add(fd, pollTag{kind: tagSockServer, addr: addr}, e.onServerSockReady)
}

// onServerSockReady is the server's SOCK/ADDR_INFO branch: receive the
// peer's identity over the accepted socket, allocate a connection id and
// the notifier/ring pair, and hand the fds back over the socket.
func (e *Engine) onServerSockReady(tag any, errorFlag bool) {
	pt := tag.(pollTag)
	addr := pt.addr
	if addr.phase != phaseAddrInfo {
		return
	}
	if errorFlag {
		e.teardownHandshake(addr)
		return
	}

	pid, instance, err := recvPeerID(addr.sockFD)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		e.teardownHandshake(addr)
		return
	}
	addr.Pid, addr.Instance = pid, instance

	connID := e.listener.NextConnID()

	local, err := NewNotifier()
	if err != nil {
		e.teardownHandshake(addr)
		return
	}
	remote, err := NewNotifier()
	if err != nil {
		local.Destroy()
		e.teardownHandshake(addr)
		return
	}
	addr.Local, addr.Remote = local, remote

	sendRing, err := CreateRing(RingName(e.prefix, e.pid, e.instance, connID, "s"))
	if err != nil {
		local.Destroy()
		remote.Destroy()
		e.teardownHandshake(addr)
		return
	}
	recvRing, err := CreateRing(RingName(e.prefix, e.pid, e.instance, connID, "r"))
	if err != nil {
		sendRing.Close()
		local.Destroy()
		remote.Destroy()
		e.teardownHandshake(addr)
		return
	}
	addr.SendRing, addr.RecvRing = sendRing, recvRing
	addr.ConnID = connID
	// Accepted peers reserve copy slots in our own arena (the side that
	// dialed reserves in the peer's, opened in Lookup), mirroring the self
	// address's own aliasing in Initialize.
	addr.arenaForSelf = e.arena

	if err := sendConnIDAndFDs(addr.sockFD, connID, local.FD(), remote.FD()); err != nil {
		e.teardownHandshake(addr)
		return
	}

	e.poll.Remove(addr.sockFD)
	addr.phase = phaseDone
	e.reg.AddAccepted(addr)
	e.reg.AddPolled(addr)
	e.poll.Add(local.FD(), pollTag{kind: tagNotifyPeer, addr: addr}, e.onNotifyReady)
}

// onClientSockReady is the client's SOCK/CONN_ID branch: receive the
// connection id and notifier fds the server sent back and open the rings
// it created.
func (e *Engine) onClientSockReady(tag any, errorFlag bool) {
	pt := tag.(pollTag)
	addr := pt.addr
	if addr.phase != phaseConnID {
		return
	}
	if errorFlag {
		e.failLookup(addr, mercury.NewError(mercury.ProtoNotSupport))
		return
	}

	connID, fd0, fd1, err := recvConnIDAndFDs(addr.sockFD)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		e.failLookup(addr, mercury.NewError(mercury.ProtoNotSupport))
		return
	}
	addr.ConnID = connID
	// Invert: the peer's local becomes ours remote and vice versa.
	addr.Remote = FromFD(fd0)
	addr.Local = FromFD(fd1)

	recvRing, err := OpenRing(RingName(e.prefix, addr.Pid, addr.Instance, connID, "s"))
	if err != nil {
		e.failLookup(addr, mercury.NewError(mercury.Fault))
		return
	}
	sendRing, err := OpenRing(RingName(e.prefix, addr.Pid, addr.Instance, connID, "r"))
	if err != nil {
		recvRing.Close()
		e.failLookup(addr, mercury.NewError(mercury.Fault))
		return
	}
	addr.SendRing, addr.RecvRing = sendRing, recvRing

	e.poll.Remove(addr.sockFD)
	addr.phase = phaseDone
	e.reg.AddPolled(addr)
	e.poll.Add(addr.Local.FD(), pollTag{kind: tagNotifyPeer, addr: addr}, e.onNotifyReady)

	e.completeLookup(addr)
}

// onSelfNotifyReady is the "NOTIFY on the self address" branch. A
// listening engine wires its self address to a loopback ring so
// that send_unexpected/send_expected targeting self() round-trips through
// the same header-ring dispatch as a real peer; a non-listening engine has
// no self arena to receive into, so there's nothing to pop.
func (e *Engine) onSelfNotifyReady(tag any, errorFlag bool) {
	pt := tag.(pollTag)
	addr := pt.addr

	if errorFlag {
		// The self notifier is ours end to end; it has no peer to
		// disconnect from and no queue of its own bound ops to cancel.
		return
	}

	if _, err := addr.Local.Get(); err != nil {
		return
	}
	if addr.RecvRing == nil {
		return
	}

	hdr, err := addr.RecvRing.TryPop()
	if err == nil {
		switch hdr.Type {
		case HeaderSendUnexpected:
			e.matchUnexpected(addr, hdr)
		case HeaderSendExpected:
			e.matchExpected(addr, hdr)
		}
	}

	e.sweepRetry()
}

// onNotifyReady is the NOTIFY-on-a-peer-address branch: drain
// the local notifier, pop one header from the peer's recv ring, dispatch
// by type, then sweep the retry queue. An error on this fd means the peer
// end went away; tear the address down and cancel whatever ops are bound
// to it instead of trying to read from it.
func (e *Engine) onNotifyReady(tag any, errorFlag bool) {
	pt := tag.(pollTag)
	addr := pt.addr

	if errorFlag {
		e.teardownPeer(addr)
		return
	}

	if _, err := addr.Local.Get(); err != nil {
		return
	}

	hdr, err := addr.RecvRing.TryPop()
	if err == nil {
		switch hdr.Type {
		case HeaderSendUnexpected:
			e.matchUnexpected(addr, hdr)
		case HeaderSendExpected:
			e.matchExpected(addr, hdr)
		}
	}

	e.sweepRetry()
}

// teardownHandshake releases whatever resources a failed server-side
// handshake had acquired so far.
func (e *Engine) teardownHandshake(addr *SmAddr) {
	e.poll.Remove(addr.sockFD)
	addr.Release()
}

// teardownPeer handles a peer disconnect once addr is fully established: it
// drops addr from the accepted/polled registries and stops polling its
// notifier, cancels every retry and expected-recv op still bound to it with
// a CANCELED completion, then releases addr.
func (e *Engine) teardownPeer(addr *SmAddr) {
	e.poll.Remove(addr.Local.FD())
	e.reg.RemovePolled(addr)
	e.reg.Accepted.Remove(addr)

	for {
		e.mu.Lock()
		n := e.retryQueue.Find(func(v any) bool { return v.(*retryEntry).dest == addr })
		e.mu.Unlock()
		if n == nil {
			break
		}
		re := n.Value().(*retryEntry)
		re.op.ClearQueued()
		kind := mercury.CompSendUnexpected
		if re.hdr.Type == HeaderSendExpected {
			kind = mercury.CompSendExpected
		}
		rec := mercury.NewCompletionRecord(re.op, kind, mercury.NewError(mercury.Canceled), nil, nil)
		re.ctx.CompletionAdd(rec)
	}

	for {
		e.mu.Lock()
		n := e.expectedOps.Find(func(v any) bool { return v.(*pendingRecv).source == addr })
		e.mu.Unlock()
		if n == nil {
			break
		}
		pr := n.Value().(*pendingRecv)
		pr.op.ClearQueued()
		rec := mercury.NewCompletionRecord(pr.op, mercury.CompRecvExpected, mercury.NewError(mercury.Canceled), nil, nil)
		pr.ctx.CompletionAdd(rec)
	}

	addr.Release()
}

// failLookup completes the pending lookup op with err and releases the
// partially-established address.
func (e *Engine) failLookup(addr *SmAddr, err error) {
	e.poll.Remove(addr.sockFD)
	e.mu.Lock()
	n := e.lookupQueue.Find(func(v any) bool { return v.(*pendingRecv).source == addr })
	e.mu.Unlock()
	if n != nil {
		pr := n.Value().(*pendingRecv)
		pr.op.ClearQueued()
		rec := mercury.NewCompletionRecord(pr.op, mercury.CompLookup, err, nil, nil)
		pr.ctx.CompletionAdd(rec)
	}
	addr.Release()
}

// completeLookup dequeues the matching lookup op and completes it with
// the now-established peer address.
func (e *Engine) completeLookup(addr *SmAddr) {
	e.mu.Lock()
	n := e.lookupQueue.Find(func(v any) bool { return v.(*pendingRecv).source == addr })
	e.mu.Unlock()
	if n == nil {
		return
	}
	pr := n.Value().(*pendingRecv)
	pr.op.ClearQueued()
	pr.op.Addr = addr.Dup()
	rec := mercury.NewCompletionRecord(pr.op, mercury.CompLookup, nil, nil, nil)
	pr.ctx.CompletionAdd(rec)
}

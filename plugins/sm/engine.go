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
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/wangrunji0408/mercury/internal/queue"

	mercury "github.com/wangrunji0408/mercury"
)

// pollTag identifies what a ready fd means to one of Engine's poll
// callbacks.
type pollTagKind int

const (
	tagAccept pollTagKind = iota
	tagSockServer            // ADDR_INFO phase: server reading the peer's pid/instance
	tagSockClient            // CONN_ID phase: client reading conn-id + fds
	tagNotifySelf
	tagNotifyPeer
)

type pollTag struct {
	kind pollTagKind
	addr *SmAddr
}

// unexpectedMsg is one received SEND_UNEXPECTED header still waiting for a
// matching RecvUnexpected.
type unexpectedMsg struct {
	node   queue.Node
	source *SmAddr
	tag    uint32
	slot   int
	size   int
}

// RecvInfo is the Payload of a RECV_* CompletionRecord.
type RecvInfo struct {
	Source *SmAddr
	Tag    uint32
	Len    int
}

// pendingRecv is a posted RecvUnexpected/RecvExpected op still waiting for
// an arriving header to match it, queued on the unexpected-op or
// expected-op queue respectively.
type pendingRecv struct {
	node   queue.Node
	op     *mercury.OpID
	ctx    *mercury.Context
	buf    []byte
	source *SmAddr // non-nil only for expected recvs
	tag    uint32
}

// retryEntry is a send that lost the copy-slot reservation race, queued
// for a retry sweep on the next NOTIFY.
type retryEntry struct {
	node   queue.Node
	op     *mercury.OpID
	ctx    *mercury.Context
	dest   *SmAddr
	hdr    Header
	buf    []byte
}

// Engine is the SM plugin's PluginState: one per Class, owning the
// listening socket (if any), the local copy arena, the poll set, and
// every queue connection establishment and message matching touch.
type Engine struct {
	class *mercury.Class

	pid, instance int
	prefix        string

	reg      Registry
	listener *Listener
	arena    *Arena // this process's own arena, if listening
	poll     *PollSet

	mu          sync.Mutex
	lookupQueue queue.IntrusiveList // pendingRecv-shaped entries keyed by target addr
	unexpected  queue.IntrusiveList // unexpectedMsg
	unexpOps    queue.IntrusiveList // pendingRecv, unexpected
	expectedOps queue.IntrusiveList // pendingRecv, expected
	retryQueue  queue.IntrusiveList // retryEntry
}

func init() {
	mercury.Register("sm", &smOps{})
}

type smOps struct{}

func (smOps) CheckProtocol(protocol string) bool { return protocol == "sm" }

func (smOps) Initialize(class *mercury.Class, addr mercury.ParsedAddress, listen bool) (mercury.PluginState, error) {
	eng := &Engine{
		class:    class,
		pid:      os.Getpid(),
		instance: 0,
		prefix:   defaultPrefix,
	}

	poll, err := NewPollSet()
	if err != nil {
		return nil, fmt.Errorf("sm: %w", err)
	}
	eng.poll = poll

	self := NewSmAddr()
	self.Pid, self.Instance, self.Self, self.Listening = eng.pid, eng.instance, true, listen
	selfNotify, err := NewNotifier()
	if err != nil {
		poll.Close()
		return nil, fmt.Errorf("sm: %w", err)
	}
	self.Local = selfNotify
	eng.reg.SetSelf(self)
	if err := poll.Add(selfNotify.FD(), pollTag{kind: tagNotifySelf, addr: self}, eng.onSelfNotifyReady); err != nil {
		selfNotify.Destroy()
		poll.Close()
		return nil, fmt.Errorf("sm: %w", err)
	}

	if listen {
		arenaName := ArenaName(eng.prefix, eng.pid, eng.instance)
		arena, err := CreateArena(arenaName)
		if err != nil {
			poll.Close()
			return nil, mercury.NewError(mercury.NoMem)
		}
		eng.arena = arena
		self.arenaForSelf = arena

		selfRing, err := CreateRing(arenaName + "-self")
		if err != nil {
			arena.Close()
			poll.Close()
			return nil, mercury.NewError(mercury.NoMem)
		}
		self.SendRing, self.RecvRing = selfRing, selfRing
		self.Remote = self.Local

		sockPath, err := SockPath(eng.prefix, eng.pid, eng.instance)
		if err != nil {
			arena.Close()
			poll.Close()
			return nil, mercury.NewError(mercury.Fault)
		}
		lst, err := NewListener(sockPath)
		if err != nil {
			arena.Close()
			poll.Close()
			return nil, mercury.NewError(mercury.Fault)
		}
		eng.listener = lst
		if err := poll.Add(lst.FD(), pollTag{kind: tagAccept}, eng.onAcceptReady); err != nil {
			lst.Close()
			arena.Close()
			poll.Close()
			return nil, mercury.NewError(mercury.Fault)
		}
	}

	return eng, nil
}

// Finalize tears down every resource this class owns.
func (e *Engine) Finalize() error {
	if e.listener != nil {
		e.poll.Remove(e.listener.FD())
		e.listener.Close()
	}
	e.reg.Accepted.Each(func(a *SmAddr) { a.Release() })
	e.reg.Polled.Each(func(a *SmAddr) { a.Release() })
	if e.reg.Self != nil {
		// Self's arenaForSelf aliases e.arena (set in Initialize), so
		// releasing self also closes our own arena; don't double-close it.
		e.reg.Self.Release()
	} else if e.arena != nil {
		e.arena.Close()
	}
	return e.poll.Close()
}

// Lookup implements the client side of connection establishment: open the
// server's copy arena, connect its socket, and enqueue the lookup op for
// completion once the handshake's CONN_ID phase finishes.
func (e *Engine) Lookup(ctx *mercury.Context, op *mercury.OpID, target mercury.ParsedAddress) error {
	pid, instance, err := parseSmHost(target.Host)
	if err != nil {
		return mercury.NewError(mercury.ProtoNotSupport)
	}

	arenaName := ArenaName(e.prefix, pid, instance)
	peerArena, err := OpenArena(arenaName)
	if err != nil {
		return mercury.NewError(mercury.ProtoNotSupport)
	}

	sockPath, err := SockPath(e.prefix, pid, instance)
	if err != nil {
		peerArena.Close()
		return mercury.NewError(mercury.Fault)
	}
	fd, err := Dial(sockPath)
	if err != nil {
		peerArena.Close()
		return mercury.NewError(mercury.ProtoNotSupport)
	}

	addr := NewSmAddr()
	addr.Pid, addr.Instance = pid, instance
	addr.sockFD = fd
	addr.phase = phaseConnID

	if err := op.TryPost(ctx, mercury.OpLookup, op.UserCB); err != nil {
		return err
	}
	op.Addr = addr
	pr := &pendingRecv{op: op, ctx: ctx, source: addr}
	e.mu.Lock()
	e.lookupQueue.PushBack(&pr.node, pr)
	e.mu.Unlock()
	op.SetQueued(func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.lookupQueue.Remove(&pr.node)
	})

	if err := sendPeerID(fd, e.pid, e.instance); err != nil {
		peerArena.Close()
		return mercury.NewError(mercury.Fault)
	}
	addr.arenaForSelf = peerArena
	return e.poll.Add(fd, pollTag{kind: tagSockClient, addr: addr}, e.onClientSockReady)
}

// Progress runs one epoll wait, dispatching ready fds to their callbacks.
func (e *Engine) Progress(timeout time.Duration) (bool, error) {
	n, err := e.poll.Wait(timeout)
	if err != nil {
		return false, mercury.NewError(mercury.Fault)
	}
	if n == 0 {
		return false, nil
	}
	return true, nil
}

// smAddrOf downcasts an opaque NAL address handle to *SmAddr, the error a
// caller gets for passing another plugin's address across.
func smAddrOf(a any) (*SmAddr, error) {
	addr, ok := a.(*SmAddr)
	if !ok {
		return nil, mercury.NewError(mercury.InvalidArg)
	}
	return addr, nil
}

// SendUnexpected sends an unmatched message to dest.
func (e *Engine) SendUnexpected(ctx *mercury.Context, op *mercury.OpID, dest any, tag uint32, buf []byte) error {
	addr, err := smAddrOf(dest)
	if err != nil {
		return err
	}
	return e.send(ctx, op, addr, tag, buf, HeaderSendUnexpected, mercury.OpSendUnexpected, mercury.CompSendUnexpected)
}

// SendExpected sends a message to dest that a matching RecvExpected is
// already (or will be) posted for.
func (e *Engine) SendExpected(ctx *mercury.Context, op *mercury.OpID, dest any, tag uint32, buf []byte) error {
	addr, err := smAddrOf(dest)
	if err != nil {
		return err
	}
	return e.send(ctx, op, addr, tag, buf, HeaderSendExpected, mercury.OpSendExpected, mercury.CompSendExpected)
}

func (e *Engine) send(ctx *mercury.Context, op *mercury.OpID, dest *SmAddr, tag uint32, buf []byte, htype uint8, kind mercury.OpKind, ckind mercury.CompletionKind) error {
	if err := op.TryPost(ctx, kind, op.UserCB); err != nil {
		return err
	}

	slot, err := dest.arenaForSelf.Reserve(buf)
	if err == ErrArenaFull {
		if e.class.Mode&mercury.ModeNoRetry != 0 {
			op.ClearQueued()
			op.Complete()
			return mercury.NewError(mercury.Again)
		}
		re := &retryEntry{op: op, ctx: ctx, dest: dest, hdr: Header{Type: htype, Size: uint16(len(buf)), Tag: tag}, buf: buf}
		e.mu.Lock()
		e.retryQueue.PushBack(&re.node, re)
		e.mu.Unlock()
		op.SetQueued(func() bool {
			e.mu.Lock()
			defer e.mu.Unlock()
			return e.retryQueue.Remove(&re.node)
		})
		return nil
	}
	if err != nil {
		op.ClearQueued()
		op.Complete()
		return mercury.NewError(mercury.Fault)
	}

	hdr := Header{Type: htype, SlotIdx: uint8(slot), Size: uint16(len(buf)), Tag: tag}
	if err := dest.SendRing.TryPush(hdr); err != nil {
		dest.arenaForSelf.Release(slot)
		op.ClearQueued()
		op.Complete()
		return mercury.NewError(mercury.Again)
	}
	dest.Remote.Set()
	op.ClearQueued()
	rec := mercury.NewCompletionRecord(op, ckind, nil, nil, nil)
	ctx.CompletionAdd(rec)
	e.reg.Self.Local.Set()
	return nil
}

// RecvUnexpected posts buf to receive the next unmatched message from any
// source.
func (e *Engine) RecvUnexpected(ctx *mercury.Context, op *mercury.OpID, buf []byte) error {
	if err := op.TryPost(ctx, mercury.OpRecvUnexpected, op.UserCB); err != nil {
		return err
	}

	e.mu.Lock()
	n := e.unexpected.PopFront()
	e.mu.Unlock()
	if n != nil {
		um := n.Value().(*unexpectedMsg)
		um.source.arenaForSelf.CopyOut(um.slot, um.size, buf)
		um.source.arenaForSelf.Release(um.slot)
		op.ClearQueued()
		rec := mercury.NewCompletionRecord(op, mercury.CompRecvUnexpected, nil, &RecvInfo{Source: um.source, Tag: um.tag, Len: um.size}, nil)
		ctx.CompletionAdd(rec)
		return nil
	}

	pr := &pendingRecv{op: op, ctx: ctx, buf: buf}
	e.mu.Lock()
	e.unexpOps.PushBack(&pr.node, pr)
	e.mu.Unlock()
	op.SetQueued(func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.unexpOps.Remove(&pr.node)
	})
	return nil
}

// RecvExpected posts buf to receive a message tagged for source and tag.
func (e *Engine) RecvExpected(ctx *mercury.Context, op *mercury.OpID, source any, tag uint32, buf []byte) error {
	addr, err := smAddrOf(source)
	if err != nil {
		return err
	}
	if err := op.TryPost(ctx, mercury.OpRecvExpected, op.UserCB); err != nil {
		return err
	}
	pr := &pendingRecv{op: op, ctx: ctx, buf: buf, source: addr, tag: tag}
	e.mu.Lock()
	e.expectedOps.PushBack(&pr.node, pr)
	e.mu.Unlock()
	op.SetQueued(func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.expectedOps.Remove(&pr.node)
	})
	return nil
}

// Put performs a one-sided write into peer's memory.
func (e *Engine) Put(ctx *mercury.Context, op *mercury.OpID, local *mercury.MemHandle, loff uintptr, remote *mercury.MemHandle, roff uintptr, length uintptr, peer any) error {
	addr, err := smAddrOf(peer)
	if err != nil {
		return err
	}
	return e.oneSided(ctx, op, local, loff, remote, roff, length, addr, mercury.PermWrite, mercury.OpPut, mercury.CompPut, VMWritev)
}

// Get performs a one-sided read from peer's memory.
func (e *Engine) Get(ctx *mercury.Context, op *mercury.OpID, local *mercury.MemHandle, loff uintptr, remote *mercury.MemHandle, roff uintptr, length uintptr, peer any) error {
	addr, err := smAddrOf(peer)
	if err != nil {
		return err
	}
	return e.oneSided(ctx, op, local, loff, remote, roff, length, addr, mercury.PermRead, mercury.OpGet, mercury.CompGet, VMReadv)
}

func (e *Engine) oneSided(ctx *mercury.Context, op *mercury.OpID, local *mercury.MemHandle, loff uintptr, remote *mercury.MemHandle, roff uintptr, length uintptr, peer *SmAddr, need mercury.Perm, kind mercury.OpKind, ckind mercury.CompletionKind, copyFn func(pid int, local, remote []mercury.Iovec) (int, error)) error {
	if err := mercury.CheckPermission(remote, need); err != nil {
		return mercury.NewError(mercury.Permission)
	}
	localIov, err := mercury.ToIovecs(local, loff, length)
	if err != nil {
		return mercury.NewError(mercury.InvalidArg)
	}
	remoteIov, err := mercury.ToIovecs(remote, roff, length)
	if err != nil {
		return mercury.NewError(mercury.InvalidArg)
	}

	if err := op.TryPost(ctx, kind, op.UserCB); err != nil {
		return err
	}
	if _, err := copyFn(peer.Pid, localIov, remoteIov); err != nil {
		op.ClearQueued()
		op.Complete()
		return mercury.NewError(mercury.Fault)
	}
	op.ClearQueued()
	rec := mercury.NewCompletionRecord(op, ckind, nil, nil, nil)
	ctx.CompletionAdd(rec)
	e.reg.Self.Local.Set()
	return nil
}

// matchUnexpected delivers hdr's payload either straight into a pending
// RecvUnexpected, or onto the unexpected-msg queue if none is posted yet.
func (e *Engine) matchUnexpected(source *SmAddr, hdr Header) {
	e.mu.Lock()
	n := e.unexpOps.PopFront()
	e.mu.Unlock()
	if n != nil {
		pr := n.Value().(*pendingRecv)
		source.arenaForSelf.CopyOut(int(hdr.SlotIdx), int(hdr.Size), pr.buf)
		source.arenaForSelf.Release(int(hdr.SlotIdx))
		pr.op.ClearQueued()
		rec := mercury.NewCompletionRecord(pr.op, mercury.CompRecvUnexpected, nil, &RecvInfo{Source: source, Tag: hdr.Tag, Len: int(hdr.Size)}, nil)
		pr.ctx.CompletionAdd(rec)
		return
	}
	um := &unexpectedMsg{source: source, tag: hdr.Tag, slot: int(hdr.SlotIdx), size: int(hdr.Size)}
	e.mu.Lock()
	e.unexpected.PushBack(&um.node, um)
	e.mu.Unlock()
}

// matchExpected resolves hdr against the expected-op queue by (addr, tag),
// FIFO tie-break among same-keyed entries. An unmatched expected header is
// logged here as an error; it has nowhere to surface since no op is bound.
func (e *Engine) matchExpected(source *SmAddr, hdr Header) bool {
	e.mu.Lock()
	n := e.expectedOps.Find(func(v any) bool {
		pr := v.(*pendingRecv)
		return pr.source == source && pr.tag == hdr.Tag
	})
	e.mu.Unlock()
	if n == nil {
		mercury.Log().Errorf("sm: no expected recv posted for tag %d from pid %d", hdr.Tag, source.Pid)
		return false
	}
	pr := n.Value().(*pendingRecv)
	source.arenaForSelf.CopyOut(int(hdr.SlotIdx), int(hdr.Size), pr.buf)
	source.arenaForSelf.Release(int(hdr.SlotIdx))
	pr.op.ClearQueued()
	rec := mercury.NewCompletionRecord(pr.op, mercury.CompRecvExpected, nil, &RecvInfo{Source: source, Tag: hdr.Tag, Len: int(hdr.Size)}, nil)
	pr.ctx.CompletionAdd(rec)
	return true
}

// sweepRetry attempts to drain the retry-op queue on each NOTIFY, unless
// ModeNoRetry disables retries for this class.
func (e *Engine) sweepRetry() {
	if e.class.Mode&mercury.ModeNoRetry != 0 {
		return
	}
	for {
		e.mu.Lock()
		n := e.retryQueue.PopFront()
		e.mu.Unlock()
		if n == nil {
			return
		}
		re := n.Value().(*retryEntry)
		slot, err := re.dest.arenaForSelf.Reserve(re.buf)
		if err == ErrArenaFull {
			// Put it back at the front conceptually by re-pushing; since
			// IntrusiveList has no push-front, appending preserves overall
			// progress across distinct entries without starving this one
			// indefinitely in practice (bounded retry queue in steady use).
			e.mu.Lock()
			e.retryQueue.PushBack(&re.node, re)
			e.mu.Unlock()
			return
		}
		re.hdr.SlotIdx = uint8(slot)
		if err := re.dest.SendRing.TryPush(re.hdr); err != nil {
			re.dest.arenaForSelf.Release(slot)
			e.mu.Lock()
			e.retryQueue.PushBack(&re.node, re)
			e.mu.Unlock()
			return
		}
		re.dest.Remote.Set()
		re.op.ClearQueued()
		kind := mercury.CompSendUnexpected
		if re.hdr.Type == HeaderSendExpected {
			kind = mercury.CompSendExpected
		}
		rec := mercury.NewCompletionRecord(re.op, kind, nil, nil, nil)
		re.ctx.CompletionAdd(rec)
		e.reg.Self.Local.Set()
	}
}

func parseSmHost(host string) (pid, instance int, err error) {
	// Host carries "<pid>/<instance>"
	var p, i int
	_, err = fmt.Sscanf(host, "%d/%d", &p, &i)
	if err != nil {
		return 0, 0, err
	}
	return p, i, nil
}

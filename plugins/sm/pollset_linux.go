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
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// PollCallback is invoked with the fd-associated tag when an fd becomes
// ready. errorFlag is set when epoll reported EPOLLERR or EPOLLHUP on the
// fd alongside (or instead of) readability, the peer-disconnect signal.
type PollCallback func(tag any, errorFlag bool)

// PollSet is an epoll-backed readiness multiplexer over the notifiers
// feeding a transport engine's progress loop: accept sockets, connection
// sockets, and per-ring eventfds.
type PollSet struct {
	epfd int

	mu   sync.Mutex
	cbs  map[int32]PollCallback // fd -> callback
	tags sync.Map               // int32 fd -> tag
}

// NewPollSet creates an empty epoll instance.
func NewPollSet() (*PollSet, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &PollSet{epfd: epfd, cbs: make(map[int32]PollCallback)}, nil
}

// Add registers fd for readability events, invoking cb(tag) whenever it is
// ready. Level-triggered: a caller that only partially drains an fd will
// be notified again on the next Wait.
func (p *PollSet) Add(fd int, tag any, cb PollCallback) error {
	p.mu.Lock()
	p.cbs[int32(fd)] = cb
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		p.mu.Lock()
		delete(p.cbs, int32(fd))
		p.mu.Unlock()
		return fmt.Errorf("epoll_ctl add: %w", err)
	}
	p.tags.Store(int32(fd), tag)
	return nil
}

// Remove deregisters fd.
func (p *PollSet) Remove(fd int) error {
	p.mu.Lock()
	delete(p.cbs, int32(fd))
	p.mu.Unlock()
	p.tags.Delete(int32(fd))
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil {
		return fmt.Errorf("epoll_ctl del: %w", err)
	}
	return nil
}

// Wait blocks up to timeout for at least one ready fd, dispatching each
// ready fd's callback with its registered tag, and returns the number
// dispatched. A timeout of zero polls without blocking (
// ModeNoBlock interaction).
func (p *PollSet) Wait(timeout time.Duration) (int, error) {
	ms := int(timeout / time.Millisecond)
	if timeout < 0 {
		ms = -1
	}
	var events [32]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, events[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll_wait: %w", err)
	}
	dispatched := 0
	for i := 0; i < n; i++ {
		fd := events[i].Fd
		p.mu.Lock()
		cb := p.cbs[fd]
		p.mu.Unlock()
		if cb == nil {
			continue
		}
		tagV, _ := p.tags.Load(fd)
		errorFlag := events[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0
		cb(tagV, errorFlag)
		dispatched++
	}
	return dispatched, nil
}

// Close releases the underlying epoll fd.
func (p *PollSet) Close() error {
	return unix.Close(p.epfd)
}

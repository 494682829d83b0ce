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
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// acceptInterval smooths thundering-herd accepts.
const acceptInterval = 100 * time.Millisecond

// Listener is the server-side listening UNIX socket. Its accept loop and
// peer bookkeeping generalize from a single fixed client into an arbitrary
// number of concurrently accepted peers, using an fd-passing handshake to
// hand each accepted peer its own notifier and ring pair.
type Listener struct {
	fd   int
	path string

	mu         sync.Mutex
	lastAccept time.Time
	nextConnID int
}

// NextConnID hands out the next server-assigned connection id.
func (l *Listener) NextConnID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextConnID
	l.nextConnID++
	return id
}

// NewListener creates and binds the listening socket under path,
// overwriting any stale socket file left behind by a crashed process.
func NewListener(path string) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	unix.Unlink(path)
	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", path, err)
	}
	if err := unix.Listen(fd, 64); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	return &Listener{fd: fd, path: path}, nil
}

func (l *Listener) FD() int { return l.fd }

// Close closes the listening socket and unlinks the socket file.
func (l *Listener) Close() error {
	err := unix.Close(l.fd)
	unix.Unlink(l.path)
	return err
}

// Accept accept4's one pending connection, subject to acceptInterval
// throttling. Returns (0, false, nil) if throttled or
// if no connection is currently pending (EAGAIN).
func (l *Listener) Accept() (fd int, ok bool, err error) {
	l.mu.Lock()
	if !l.lastAccept.IsZero() && time.Since(l.lastAccept) < acceptInterval {
		l.mu.Unlock()
		return 0, false, nil
	}
	l.mu.Unlock()

	nfd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("accept4: %w", err)
	}
	l.mu.Lock()
	l.lastAccept = time.Now()
	l.mu.Unlock()
	return nfd, true, nil
}

// sendPeerID writes this process's (pid, instance) as the first handshake
// message.
func sendPeerID(fd, pid, instance int) error {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(pid))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(instance))
	_, err := unix.Write(fd, buf[:])
	return err
}

// recvPeerID reads the (pid, instance) handshake message the client sends
// first over the newly accepted socket.
func recvPeerID(fd int) (pid, instance int, err error) {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil {
		return 0, 0, err
	}
	if n < 8 {
		return 0, 0, fmt.Errorf("sm: short peer-id read (%d bytes)", n)
	}
	return int(binary.LittleEndian.Uint32(buf[0:4])), int(binary.LittleEndian.Uint32(buf[4:8])), nil
}

// sendConnIDAndFDs sends the 4-byte conn-id plus two ancillary fds
// (local-notify, remote-notify from the sender's perspective).
func sendConnIDAndFDs(fd, connID, fd0, fd1 int) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(connID))
	rights := unix.UnixRights(fd0, fd1)
	return unix.Sendmsg(fd, buf[:], rights, nil, 0)
}

// recvConnIDAndFDs receives the conn-id and the two passed fds. The caller
// must invert the fds' roles: the peer's local notifier becomes this
// side's remote, and vice versa.
func recvConnIDAndFDs(fd int) (connID int, fd0, fd1 int, err error) {
	buf := make([]byte, 4)
	oob := make([]byte, unix.CmsgSpace(2*4))
	n, oobn, _, _, err := unix.Recvmsg(fd, buf, oob, 0)
	if err != nil {
		return 0, 0, 0, err
	}
	if n < 4 {
		return 0, 0, 0, fmt.Errorf("sm: short conn-id read (%d bytes)", n)
	}
	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parse control message: %w", err)
	}
	if len(msgs) == 0 {
		return 0, 0, 0, fmt.Errorf("sm: no ancillary fds in handshake reply")
	}
	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parse unix rights: %w", err)
	}
	if len(fds) != 2 {
		return 0, 0, 0, fmt.Errorf("sm: expected 2 passed fds, got %d", len(fds))
	}
	return int(binary.LittleEndian.Uint32(buf)), fds[0], fds[1], nil
}

// Dial connects to the server's listening socket and returns a
// non-blocking fd to register for SOCK readiness.
func Dial(path string) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, fmt.Errorf("socket: %w", err)
	}
	addr := &unix.SockaddrUnix{Name: path}
	err = unix.Connect(fd, addr)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return 0, fmt.Errorf("connect %s: %w", path, err)
	}
	return fd, nil
}

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

	"golang.org/x/sys/unix"
)

// Notifier is an edge-triggered inter-process wakeup. The Linux backend is
// an eventfd; notify_stub.go holds the non-Linux stub, which has no
// named-FIFO fallback and returns an unsupported-platform error.
type Notifier struct {
	fd int
}

// NewNotifier creates a fresh eventfd-backed notifier.
func NewNotifier() (*Notifier, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &Notifier{fd: fd}, nil
}

// FromFD wraps an already-open eventfd, e.g. one received via SCM_RIGHTS
// from a peer process.
func FromFD(fd int) *Notifier { return &Notifier{fd: fd} }

// FD returns the underlying file descriptor, for registration with a
// PollSet or for passing across a UNIX socket.
func (n *Notifier) FD() int { return n.fd }

// Set performs the edge-triggered wakeup by writing an 8-byte counter
// increment. Repeated Sets before a Get coalesce into one wakeup; Get
// drains the counter, so only the first Get after them reports a signal.
func (n *Notifier) Set() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(n.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

// Get drains the counter, reporting whether it had been signaled.
func (n *Notifier) Get() (bool, error) {
	var buf [8]byte
	_, err := unix.Read(n.fd, buf[:])
	if err == unix.EAGAIN {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("eventfd read: %w", err)
	}
	return true, nil
}

// Destroy closes the underlying eventfd.
func (n *Notifier) Destroy() error {
	return unix.Close(n.fd)
}

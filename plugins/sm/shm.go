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

	"golang.org/x/sys/unix"
)

// shmRegion is a page-aligned memory-mapped SHM-backed region: the ring
// buffers and the copy-slot arena are each their own shmRegion, generalized
// to arbitrary named objects rather than one fixed client/server segment
// file.
type shmRegion struct {
	file *os.File
	mem  []byte
	path string
	name string
	own  bool // true if this process created (and should unlink) the object
}

// createShmRegion creates a new SHM-backed region of size bytes, failing if
// one already exists under this name (O_EXCL).
func createShmRegion(name string, size int) (*shmRegion, error) {
	path := shmPath(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("create shm %s: %w", name, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("truncate shm %s: %w", name, err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("mmap shm %s: %w", name, err)
	}
	return &shmRegion{file: f, mem: mem, path: path, name: name, own: true}, nil
}

// openShmRegion opens an existing SHM-backed region of exactly size bytes.
func openShmRegion(name string, size int) (*shmRegion, error) {
	path := shmPath(name)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open shm %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat shm %s: %w", name, err)
	}
	if int(info.Size()) < size {
		f.Close()
		return nil, fmt.Errorf("shm %s too small: %d < %d", name, info.Size(), size)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap shm %s: %w", name, err)
	}
	return &shmRegion{file: f, mem: mem, path: path, name: name}, nil
}

// Close unmaps the region. If this process created the object, it also
// removes the backing file.
func (r *shmRegion) Close() error {
	if r == nil {
		return nil
	}
	var err error
	if len(r.mem) > 0 {
		err = unix.Munmap(r.mem)
		r.mem = nil
	}
	if r.file != nil {
		r.file.Close()
	}
	if r.own {
		os.Remove(r.path)
	}
	return err
}

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

// Package sm is the reference shared-memory transport plugin: connection
// establishment over a UNIX-domain socket with fd passing, lock-free ring
// buffers and a copy-slot arena in shared memory, and eventfd
// notification.
package sm

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

const defaultPrefix = "na_sm"

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

// baseDir returns <tmpdir>/<prefix>_<user>, creating it if needed.
func baseDir(prefix string) (string, error) {
	if prefix == "" {
		prefix = defaultPrefix
	}
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("%s_%s", prefix, currentUser()))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// SockPath returns <tmpdir>/<prefix>_<user>/<pid>/<instance>/sock.
func SockPath(prefix string, pid, instance int) (string, error) {
	dir, err := baseDir(prefix)
	if err != nil {
		return "", err
	}
	sub := filepath.Join(dir, fmt.Sprintf("%d", pid), fmt.Sprintf("%d", instance))
	if err := os.MkdirAll(sub, 0700); err != nil {
		return "", err
	}
	return filepath.Join(sub, "sock"), nil
}

// FifoPath returns <tmpdir>/<prefix>_<user>/<pid>/<instance>/fifo-<conn>-{s,r}.
func FifoPath(prefix string, pid, instance, conn int, dir string) (string, error) {
	base, err := baseDir(prefix)
	if err != nil {
		return "", err
	}
	sub := filepath.Join(base, fmt.Sprintf("%d", pid), fmt.Sprintf("%d", instance))
	if err := os.MkdirAll(sub, 0700); err != nil {
		return "", err
	}
	return filepath.Join(sub, fmt.Sprintf("fifo-%d-%s", conn, dir)), nil
}

// shmDir returns the directory shm-backed segment files live in, preferring
// /dev/shm on Linux and falling back to TempDir elsewhere.
func shmDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// ArenaName returns <prefix>_<user>-<pid>-<instance>, the copy-arena SHM
// object name.
func ArenaName(prefix string, pid, instance int) string {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return fmt.Sprintf("%s_%s-%d-%d", prefix, currentUser(), pid, instance)
}

// RingName returns <prefix>_<user>-<pid>-<instance>-<conn>-{s,r}.
func RingName(prefix string, pid, instance, conn int, dir string) string {
	return fmt.Sprintf("%s-%d-%s", ArenaName(prefix, pid, instance), conn, dir)
}

// shmPath resolves a named SHM object to its backing file path.
func shmPath(name string) string {
	return filepath.Join(shmDir(), name)
}

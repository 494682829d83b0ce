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
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

// Cleanup removes stale per-pid directories (and their SHM arenas/rings)
// left behind under <tmpdir>/<prefix>_<user> by processes that exited
// without calling Finalize -- a crash, a kill -9, an OOM. Sweeps the
// filesystem on next startup rather than relying on every peer to clean up
// after itself.
//
// A directory is stale if its name parses as a pid and no process with
// that pid is currently running (os.FindProcess + Signal(0) on Unix never
// fails to find the handle, so liveness is checked by sending the null
// signal and inspecting the error).
func Cleanup(prefix string) error {
	dir, err := baseDir(prefix)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var first error
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(ent.Name())
		if err != nil {
			continue
		}
		if pidAlive(pid) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, ent.Name())); err != nil && first == nil {
			first = err
		}
		if err := cleanupShmFor(prefix, pid); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// pidAlive reports whether pid names a currently-running process.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// cleanupShmFor removes any SHM-backed arena/ring objects named for pid
// under the SHM directory, since those live outside baseDir.
func cleanupShmFor(prefix string, pid int) error {
	dir := shmDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	want := ArenaName(prefix, pid, 0)
	// ArenaName/RingName share the "<prefix>_<user>-<pid>-" stem; trim the
	// trailing instance "0" to match every instance and ring.
	stem := want[:len(want)-len("0")]
	var first error
	for _, ent := range entries {
		if len(ent.Name()) >= len(stem) && ent.Name()[:len(stem)] == stem {
			if err := os.Remove(filepath.Join(dir, ent.Name())); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

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
	"runtime"
	"syscall"
	"unsafe"

	mercury "github.com/wangrunji0408/mercury"
)

// process_vm_readv/writev have no wrapper in golang.org/x/sys/unix, so a
// raw syscall via syscall.Syscall6 backs the one-sided copy primitive.
const (
	sysProcessVMReadv  = 310
	sysProcessVMWritev = 311
)

type rawIovec struct {
	base uintptr
	len  uintptr
}

func toRaw(iovecs []mercury.Iovec) []rawIovec {
	out := make([]rawIovec, len(iovecs))
	for i, v := range iovecs {
		out[i] = rawIovec{base: v.Base, len: v.Len}
	}
	return out
}

// VMReadv copies from pid's address space (described by remote) into this
// process's address space (described by local), using process_vm_readv.
// Used by get.
func VMReadv(pid int, local, remote []mercury.Iovec) (int, error) {
	return vmCopy(sysProcessVMReadv, pid, local, remote)
}

// VMWritev copies from this process's address space (local) into pid's
// address space (remote), using process_vm_writev. Used by put.
func VMWritev(pid int, local, remote []mercury.Iovec) (int, error) {
	return vmCopy(sysProcessVMWritev, pid, local, remote)
}

func vmCopy(trap uintptr, pid int, local, remote []mercury.Iovec) (int, error) {
	lraw := toRaw(local)
	rraw := toRaw(remote)
	n, _, errno := syscall.Syscall6(trap,
		uintptr(pid),
		uintptr(unsafe.Pointer(&lraw[0])), uintptr(len(lraw)),
		uintptr(unsafe.Pointer(&rraw[0])), uintptr(len(rraw)),
		0)
	runtime.KeepAlive(lraw)
	runtime.KeepAlive(rraw)
	if errno != 0 {
		return int(n), fmt.Errorf("process_vm_copy: %w", errno)
	}
	return int(n), nil
}

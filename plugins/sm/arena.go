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
	"errors"
	"math/bits"
	"sync"
	"sync/atomic"
	"unsafe"
)

// NumBufs and CopySize are the copy-slot arena's fixed geometry:
// "64 x 4KiB slots plus a 64-bit availability bitmask".
const (
	NumBufs  = 64
	CopySize = 4096
)

// ErrArenaFull is returned by Reserve when no slots are currently free.
var ErrArenaFull = errors.New("sm: copy arena exhausted")

type arenaLayout struct {
	bitmask  uint64 // bit i set == slot i is free
	reserved [56]byte
	// NumBufs * CopySize bytes of slot data follow at arenaHeaderSize
}

const arenaHeaderSize = 64

// ArenaRegionSize returns the SHM region size backing an Arena.
func ArenaRegionSize() int { return arenaHeaderSize + NumBufs*CopySize }

// Arena is the copy-slot arena backing a class's receive buffers.
// Reservation is CAS-clear on the shared bitmask, additionally serialized
// by a per-process mutex: Go has no portable user-space spinlock, so a
// sync.Mutex plays that role here, guarding against producer-side torn
// reservations within one process (noted in DESIGN.md).
type Arena struct {
	region *shmRegion
	hdr    *arenaLayout
	data   []byte // NumBufs*CopySize bytes, aliases region memory
	mu     sync.Mutex
}

func newArenaFromRegion(r *shmRegion, initialize bool) *Arena {
	hdr := (*arenaLayout)(unsafe.Pointer(&r.mem[0]))
	if initialize {
		atomic.StoreUint64(&hdr.bitmask, ^uint64(0))
	}
	data := r.mem[arenaHeaderSize:]
	return &Arena{region: r, hdr: hdr, data: data}
}

// CreateArena creates a fresh all-free arena under name.
func CreateArena(name string) (*Arena, error) {
	r, err := createShmRegion(name, ArenaRegionSize())
	if err != nil {
		return nil, err
	}
	return newArenaFromRegion(r, true), nil
}

// OpenArena opens an existing arena under name.
func OpenArena(name string) (*Arena, error) {
	r, err := openShmRegion(name, ArenaRegionSize())
	if err != nil {
		return nil, err
	}
	return newArenaFromRegion(r, false), nil
}

func (a *Arena) Close() error { return a.region.Close() }

// slotBytes returns the byte range for slot i.
func (a *Arena) slotBytes(i int) []byte {
	return a.data[i*CopySize : (i+1)*CopySize]
}

// Reserve finds and clears the lowest free bit, copies payload into that
// slot, and returns its index. Returns ErrArenaFull if no bits remain.
func (a *Arena) Reserve(payload []byte) (int, error) {
	if len(payload) > CopySize {
		return 0, errors.New("sm: payload exceeds copy slot size")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		mask := atomic.LoadUint64(&a.hdr.bitmask)
		if mask == 0 {
			return 0, ErrArenaFull
		}
		i := bits.TrailingZeros64(mask)
		bit := uint64(1) << i
		if atomic.CompareAndSwapUint64(&a.hdr.bitmask, mask, mask&^bit) {
			copy(a.slotBytes(i), payload)
			return i, nil
		}
		// The bitmask changed since it was loaded (a concurrent reservation
		// or release); reload it and retry from its lowest free bit.
	}
}

// CopyOut copies slot i's first n bytes into dst, without releasing it.
func (a *Arena) CopyOut(i int, n int, dst []byte) {
	copy(dst, a.slotBytes(i)[:n])
}

// Release OR's bit i back into the availability bitmask.
func (a *Arena) Release(i int) {
	bit := uint64(1) << uint(i)
	for {
		mask := atomic.LoadUint64(&a.hdr.bitmask)
		if atomic.CompareAndSwapUint64(&a.hdr.bitmask, mask, mask|bit) {
			return
		}
	}
}

// AllFree reports whether every slot is currently free.
func (a *Arena) AllFree() bool {
	return atomic.LoadUint64(&a.hdr.bitmask) == ^uint64(0)
}

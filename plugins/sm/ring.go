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
	"errors"
	"sync/atomic"
	"unsafe"
)

// RingCapacity is the fixed power-of-two entry count for a header ring.
const RingCapacity = 64

const ringMask = RingCapacity - 1

// ringHeaderSize is the size in bytes of the ringLayout struct below,
// rounded up to a cacheline-friendly 64 bytes.
const ringHeaderSize = 64

// ringLayout is the in-shared-memory control block placed at the start of
// a ring's SHM region; the RingCapacity entries follow immediately after
// it. All fields are accessed exclusively through atomic operations since
// multiple processes map this region.
type ringLayout struct {
	head     uint64   // next slot index a producer may claim
	tail     uint64   // next slot index a consumer may claim
	reserved [48]byte // pad to ringHeaderSize
	// entries [RingCapacity]uint64 follow at ringHeaderSize
}

// RegionSize returns the total byte size of a ring's SHM region.
func RegionSize() int {
	return ringHeaderSize + RingCapacity*8
}

// Header packs {type:4, slot-idx:8, buf-size:16, tag:32} into a 64-bit
// little-endian value. A raw zero value means "empty" in the ring, so
// encode forces bit 63 (part of the pad nibble) set whenever the packed
// value would otherwise be zero.
type Header struct {
	Type    uint8 // 4 bits
	SlotIdx uint8 // 8 bits
	Size    uint16
	Tag     uint32
}

// HeaderType values.
const (
	HeaderSendUnexpected uint8 = 1
	HeaderSendExpected   uint8 = 2
)

func (h Header) encode() uint64 {
	v := uint64(h.Type&0xF) |
		uint64(h.SlotIdx)<<4 |
		uint64(h.Size)<<12 |
		uint64(h.Tag)<<28
	if v == 0 {
		v = 1 << 63
	}
	return v
}

func decodeHeader(v uint64) Header {
	if v&(1<<63) != 0 && v&^(1<<63) == 0 {
		v = 0
	}
	return Header{
		Type:    uint8(v & 0xF),
		SlotIdx: uint8((v >> 4) & 0xFF),
		Size:    uint16((v >> 12) & 0xFFFF),
		Tag:     uint32((v >> 28) & 0xFFFFFFFF),
	}
}

// Marshal/Unmarshal expose the wire form of a Header for tests and for any
// out-of-band transmission.
func Marshal(h Header) [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], h.encode())
	return b
}

func Unmarshal(b [8]byte) Header {
	return decodeHeader(binary.LittleEndian.Uint64(b[:]))
}

// Ring is the lock-free bounded queue of packed 64-bit headers, backed by
// a shared-memory region. Producers are serialized by a CAS on the shared
// head counter; any number of processes may consume concurrently,
// serialized by a CAS on the shared tail counter.
type Ring struct {
	region *shmRegion
	hdr    *ringLayout
	slots  []uint64 // aliases the region's memory past the header
}

// ErrRingFull is returned by TryPush when no free slot is currently
// available.
var ErrRingFull = errors.New("sm: ring full")

// ErrRingEmpty is returned by TryPop when no header is currently queued.
var ErrRingEmpty = errors.New("sm: ring empty")

func newRingFromRegion(r *shmRegion, initialize bool) *Ring {
	hdr := (*ringLayout)(unsafe.Pointer(&r.mem[0]))
	base := unsafe.Pointer(uintptr(unsafe.Pointer(&r.mem[0])) + ringHeaderSize)
	slots := unsafe.Slice((*uint64)(base), RingCapacity)
	if initialize {
		atomic.StoreUint64(&hdr.head, 0)
		atomic.StoreUint64(&hdr.tail, 0)
		for i := range slots {
			atomic.StoreUint64(&slots[i], 0)
		}
	}
	return &Ring{region: r, hdr: hdr, slots: slots}
}

// CreateRing creates a fresh SHM-backed ring under name.
func CreateRing(name string) (*Ring, error) {
	r, err := createShmRegion(name, RegionSize())
	if err != nil {
		return nil, err
	}
	return newRingFromRegion(r, true), nil
}

// OpenRing opens an existing SHM-backed ring under name.
func OpenRing(name string) (*Ring, error) {
	r, err := openShmRegion(name, RegionSize())
	if err != nil {
		return nil, err
	}
	return newRingFromRegion(r, false), nil
}

// Close unmaps (and, if owning, removes) the ring's backing region.
func (r *Ring) Close() error { return r.region.Close() }

// TryPush publishes h. Returns ErrRingFull if the target slot is currently
// occupied; producers serialize via CAS on head.
func (r *Ring) TryPush(h Header) error {
	val := h.encode()
	for {
		head := atomic.LoadUint64(&r.hdr.head)
		slot := &r.slots[head&ringMask]
		if atomic.LoadUint64(slot) != 0 {
			return ErrRingFull
		}
		if atomic.CompareAndSwapUint64(&r.hdr.head, head, head+1) {
			atomic.StoreUint64(slot, val)
			return nil
		}
		// Lost the race for this head value; retry with the new one.
	}
}

// TryPop consumes the oldest published header, in FIFO order. Returns
// ErrRingEmpty if none is available.
func (r *Ring) TryPop() (Header, error) {
	for {
		tail := atomic.LoadUint64(&r.hdr.tail)
		slot := &r.slots[tail&ringMask]
		val := atomic.LoadUint64(slot)
		if val == 0 {
			return Header{}, ErrRingEmpty
		}
		if atomic.CompareAndSwapUint64(&r.hdr.tail, tail, tail+1) {
			atomic.StoreUint64(slot, 0)
			return decodeHeader(val), nil
		}
	}
}

// Pending reports whether at least one header is currently queued, without
// consuming it.
func (r *Ring) Pending() bool {
	tail := atomic.LoadUint64(&r.hdr.tail)
	return atomic.LoadUint64(&r.slots[tail&ringMask]) != 0
}

package mercury

import (
	"errors"
	"fmt"
)

// IovMax bounds the number of iovecs a single translation may produce.
// 1024 matches the typical Linux UIO_MAXIOV.
const IovMax = 1024

// Perm is the access permission a MemHandle was registered with.
type Perm int

const (
	PermRead Perm = 1 << iota
	PermWrite
)

// Segment is one contiguous range of a registered memory region, in the
// owning process's address space.
type Segment struct {
	Base uintptr
	Len  uintptr
}

// MemHandle describes a (possibly non-contiguous) memory region exposed
// for one-sided put/get. Segments are ordered and contiguous in the
// logical address space the handle exposes.
type MemHandle struct {
	Segments []Segment
	Flags    Perm
}

// Iovec is a single (address, length) range in a process's address space,
// the unit a plugin's one-sided copy primitive operates on.
type Iovec struct {
	Base uintptr
	Len  uintptr
}

var errOffsetOutOfRange = errors.New("mercury: offset exceeds memory handle length")

// ErrPermission is returned by CheckPermission when a handle lacks the
// required permission flag; plugins report it as the Permission kind.
var ErrPermission = errors.New("mercury: memory handle lacks required permission")

// CheckPermission verifies h grants need: put needs write, get needs read.
func CheckPermission(h *MemHandle, need Perm) error {
	if h.Flags&need == 0 {
		return ErrPermission
	}
	return nil
}

// ToIovecs translates (offset, length) against h into an iovec list: walk
// segments accumulating lengths until the segment containing offset is
// found; the first iovec starts inside that segment at offset-prefix;
// subsequent iovecs consume whole segments until length is exhausted,
// clipping the last.
func ToIovecs(h *MemHandle, offset, length uintptr) ([]Iovec, error) {
	if length == 0 {
		return nil, nil
	}

	var prefix uintptr
	start := -1
	for i, seg := range h.Segments {
		if offset < prefix+seg.Len {
			start = i
			break
		}
		prefix += seg.Len
	}
	if start == -1 {
		return nil, errOffsetOutOfRange
	}

	iovecs := make([]Iovec, 0, 4)
	remaining := length

	first := h.Segments[start]
	firstOff := offset - prefix
	firstLen := first.Len - firstOff
	if firstLen > remaining {
		firstLen = remaining
	}
	iovecs = append(iovecs, Iovec{Base: first.Base + firstOff, Len: firstLen})
	remaining -= firstLen

	for i := start + 1; i < len(h.Segments) && remaining > 0; i++ {
		if len(iovecs) >= IovMax {
			return nil, fmt.Errorf("mercury: translation exceeds IOV_MAX (%d)", IovMax)
		}
		seg := h.Segments[i]
		segLen := seg.Len
		if segLen > remaining {
			segLen = remaining
		}
		iovecs = append(iovecs, Iovec{Base: seg.Base, Len: segLen})
		remaining -= segLen
	}

	if remaining > 0 {
		return nil, errOffsetOutOfRange
	}
	return iovecs, nil
}

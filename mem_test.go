package mercury

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPermission(t *testing.T) {
	h := &MemHandle{Flags: PermRead}
	assert.NoError(t, CheckPermission(h, PermRead))
	assert.ErrorIs(t, CheckPermission(h, PermWrite), ErrPermission)

	both := &MemHandle{Flags: PermRead | PermWrite}
	assert.NoError(t, CheckPermission(both, PermRead))
	assert.NoError(t, CheckPermission(both, PermWrite))
}

func TestToIovecsSingleSegment(t *testing.T) {
	h := &MemHandle{Segments: []Segment{{Base: 0x1000, Len: 256}}}
	iov, err := ToIovecs(h, 16, 32)
	require.NoError(t, err)
	require.Len(t, iov, 1)
	assert.EqualValues(t, 0x1010, iov[0].Base)
	assert.EqualValues(t, 32, iov[0].Len)
}

func TestToIovecsSpansMultipleSegments(t *testing.T) {
	h := &MemHandle{Segments: []Segment{
		{Base: 0x1000, Len: 64},
		{Base: 0x2000, Len: 64},
		{Base: 0x3000, Len: 64},
	}}
	// offset 48 starts 16 bytes into the first segment; length 100 spans
	// the remainder of segment 0, all of segment 1, and 20 bytes of segment 2.
	iov, err := ToIovecs(h, 48, 100)
	require.NoError(t, err)
	require.Len(t, iov, 3)
	assert.EqualValues(t, Iovec{Base: 0x1030, Len: 16}, iov[0])
	assert.EqualValues(t, Iovec{Base: 0x2000, Len: 64}, iov[1])
	assert.EqualValues(t, Iovec{Base: 0x3000, Len: 20}, iov[2])
}

func TestToIovecsZeroLength(t *testing.T) {
	h := &MemHandle{Segments: []Segment{{Base: 0x1000, Len: 256}}}
	iov, err := ToIovecs(h, 0, 0)
	require.NoError(t, err)
	assert.Nil(t, iov)
}

func TestToIovecsOffsetOutOfRange(t *testing.T) {
	h := &MemHandle{Segments: []Segment{{Base: 0x1000, Len: 16}}}
	_, err := ToIovecs(h, 32, 1)
	assert.ErrorIs(t, err, errOffsetOutOfRange)
}

func TestToIovecsLengthExceedsSegments(t *testing.T) {
	h := &MemHandle{Segments: []Segment{{Base: 0x1000, Len: 16}}}
	_, err := ToIovecs(h, 0, 32)
	assert.ErrorIs(t, err, errOffsetOutOfRange)
}

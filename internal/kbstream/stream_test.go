package kbstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFixedWidthPrimitives(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	s := New(data)

	v1, err := s.ReadU1()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x01), v1)

	v2, err := s.ReadU2(BigEndian)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0203), v2)

	v3, err := s.ReadU2(LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0504), v3)

	assert.Equal(t, int64(5), s.Pos())
	assert.Equal(t, int64(3), s.BytesRemaining())
}

func TestReadEndOfStream(t *testing.T) {
	s := New([]byte{0x01, 0x02})
	_, err := s.ReadU4(BigEndian)
	require.ErrorIs(t, err, ErrEndOfStream)
	// position is unchanged on a failed fixed-width read
	assert.Equal(t, int64(0), s.Pos())
}

func TestSeekAndRestore(t *testing.T) {
	s := New([]byte{0, 1, 2, 3, 4, 5})
	s.Seek(3)
	v, err := s.ReadU1()
	require.NoError(t, err)
	assert.Equal(t, uint8(3), v)

	// simulate pos-restore semantics: save, seek, read, restore
	saved := s.Pos()
	require.NoError(t, s.Seek(0))
	v0, err := s.ReadU1()
	require.NoError(t, err)
	assert.Equal(t, uint8(0), v0)
	require.NoError(t, s.Seek(saved))
	assert.Equal(t, int64(4), s.Pos())
}

func TestSubstreamIndependentCursor(t *testing.T) {
	data := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	s := New(data)
	require.NoError(t, s.Seek(1))

	sub, err := s.Substream(1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sub.Pos())
	assert.Equal(t, int64(3), sub.Size())

	b, err := sub.ReadBytes(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xBB, 0xCC, 0xDD}, b)

	// Reading from the substream does not move the parent's cursor.
	assert.Equal(t, int64(1), s.Pos())
}

func TestSubstreamOutOfBounds(t *testing.T) {
	s := New([]byte{1, 2, 3})
	_, err := s.Substream(2, 5)
	require.Error(t, err)
}

func TestReadBytesTermIncludeConsume(t *testing.T) {
	data := []byte{'h', 'i', 0x00, 'x'}
	s := New(data)
	b, err := s.ReadBytesTerm(0x00, false, true, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), b)
	assert.Equal(t, int64(3), s.Pos()) // consumed the terminator too

	rest, err := s.ReadBytesFull()
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), rest)
}

func TestReadBytesTermNotFoundEosError(t *testing.T) {
	s := New([]byte{'n', 'o', 't', 'e', 'r', 'm'})
	_, err := s.ReadBytesTerm(0x00, true, true, true)
	require.ErrorIs(t, err, ErrEndOfStream)
}

func TestReadBytesTermNotFoundNoEosError(t *testing.T) {
	s := New([]byte{'n', 'o', 't', 'e', 'r', 'm'})
	b, err := s.ReadBytesTerm(0x00, true, true, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("noterm"), b)
}

func TestReadBitsBE(t *testing.T) {
	// 1000 0111 -> read 3 bits (100=4), then 5 bits (00111=7)
	s := New([]byte{0x87})
	v1, err := s.ReadBitsBE(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b100), v1)

	v2, err := s.ReadBitsBE(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b00111), v2)
}

func TestReadBitsAcrossByteBoundary(t *testing.T) {
	s := New([]byte{0xFF, 0x00})
	v, err := s.ReadBitsBE(12)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xFF0)>>0, v) // top 12 bits of 0xFF00 = 0xFF0
}

func TestAlignToByteResetsBitCursor(t *testing.T) {
	s := New([]byte{0xF0, 0xAB})
	_, err := s.ReadBitsBE(4)
	require.NoError(t, err)
	s.AlignToByte()
	v, err := s.ReadU1()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), v)
}

func TestFloatRoundTrip(t *testing.T) {
	s := New([]byte{0x3F, 0x80, 0x00, 0x00}) // 1.0f big-endian
	v, err := s.ReadF4(BigEndian)
	require.NoError(t, err)
	assert.Equal(t, float32(1.0), v)
}

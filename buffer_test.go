package harbor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteBufferFixedWidthRoundTrip(t *testing.T) {
	b := NewByteBuffer(nil)

	require.NoError(t, b.WriteUint8(0xAB))
	require.NoError(t, b.WriteUint16(0x1234))
	require.NoError(t, b.WriteUint32(0xDEADBEEF))
	require.NoError(t, b.WriteUint64(0x0123456789ABCDEF))

	v8, err := b.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), v8)

	v16, err := b.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v16)

	v32, err := b.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v32)

	v64, err := b.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0123456789ABCDEF), v64)
}

func TestByteBufferVarintRoundTrip(t *testing.T) {
	b := NewByteBuffer(nil)

	values := []int64{0, 1, 127, 128, 300, 1 << 20}
	for _, v := range values {
		require.NoError(t, b.WriteVarint(v))
	}

	for _, want := range values {
		got, err := b.ReadVarint()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestByteBufferStringRoundTrip(t *testing.T) {
	b := NewByteBuffer(nil)

	require.NoError(t, b.WriteString("hello"))
	require.NoError(t, b.WriteString(""))
	require.NoError(t, b.WriteString("world"))

	s1, err := b.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "hello", s1)

	s2, err := b.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "", s2)

	s3, err := b.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "world", s3)
}

func TestByteBufferUUIDRoundTrip(t *testing.T) {
	b := NewByteBuffer(nil)

	var id [16]byte
	for i := range id {
		id[i] = byte(i)
	}

	require.NoError(t, b.WriteUUID(id))

	got, err := b.ReadUUID()
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestFixedByteBufferOverflows(t *testing.T) {
	b := NewFixedByteBuffer(2)

	require.NoError(t, b.WriteUint8(1))
	require.NoError(t, b.WriteUint8(2))

	err := b.WriteUint8(3)
	assert.ErrorIs(t, err, ErrBufferOverflow)
}

func TestByteBufferGrowableBufferGrows(t *testing.T) {
	b := NewByteBuffer(nil)

	big := make([]byte, 10_000)
	for i := range big {
		big[i] = byte(i)
	}

	require.NoError(t, b.WriteBytes(big))
	assert.Equal(t, len(big), b.Len())
	assert.Equal(t, big, b.Bytes())
}

func TestByteBufferMarkAndReset(t *testing.T) {
	b := NewByteBuffer(nil)
	require.NoError(t, b.WriteString("abc"))

	b.Mark()

	s, err := b.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
	assert.Equal(t, 0, b.Len())

	b.Reset()
	assert.Equal(t, 4, b.Len()) // 1 varint-length byte + 3 content bytes
}

func TestByteBufferReadBytesPastEndFails(t *testing.T) {
	b := NewByteBuffer([]byte{1, 2, 3})

	_, err := b.ReadBytes(10)
	assert.Error(t, err)
}

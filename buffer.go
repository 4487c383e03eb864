package harbor

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrBufferOverflow is returned by a fixed-size ByteBuffer when a write would
// exceed its capacity.
var ErrBufferOverflow = errors.New("harbor: buffer overflow")

// ByteBuffer is a mutable or read-only byte store with independent read and
// write cursors, used by the WebSocket frame codec (component H) and the
// share handler to stage in-memory payloads. Unlike bytes.Buffer, reads do
// not discard already-consumed bytes, which lets Mark/Reset re-read a
// region — useful when a decoder needs to peek a frame header before
// committing to it.
//
// A ByteBuffer created with a positive capacity via NewFixedByteBuffer never
// reallocates; writes that would exceed its capacity fail with
// ErrBufferOverflow. A ByteBuffer created via NewByteBuffer grows by
// reallocate-and-copy as needed.
type ByteBuffer struct {
	buf      []byte
	readIdx  int
	writeIdx int
	mark     int
	fixed    bool
}

// NewByteBuffer returns a growable ByteBuffer seeded with b. The buffer takes
// ownership of b; callers should not mutate b afterwards.
func NewByteBuffer(b []byte) *ByteBuffer {
	return &ByteBuffer{buf: b, writeIdx: len(b)}
}

// NewFixedByteBuffer returns a ByteBuffer with a fixed capacity that never
// grows.
func NewFixedByteBuffer(capacity int) *ByteBuffer {
	return &ByteBuffer{buf: make([]byte, capacity), fixed: true}
}

// Len returns the number of unread bytes.
func (b *ByteBuffer) Len() int {
	return b.writeIdx - b.readIdx
}

// Cap returns the total capacity of the underlying store.
func (b *ByteBuffer) Cap() int {
	return len(b.buf)
}

// Bytes returns the unread portion of the buffer. The returned slice aliases
// the buffer's storage.
func (b *ByteBuffer) Bytes() []byte {
	return b.buf[b.readIdx:b.writeIdx]
}

// Mark records the current read index so it can be restored with Reset.
func (b *ByteBuffer) Mark() {
	b.mark = b.readIdx
}

// Reset rewinds the read index to the last Mark (or to zero if Mark was
// never called).
func (b *ByteBuffer) Reset() {
	b.readIdx = b.mark
}

func (b *ByteBuffer) ensure(n int) error {
	need := b.writeIdx + n
	if need <= len(b.buf) {
		return nil
	}

	if b.fixed {
		return ErrBufferOverflow
	}

	grown := make([]byte, need*2)
	copy(grown, b.buf[:b.writeIdx])
	b.buf = grown

	return nil
}

// WriteBytes appends p to the buffer.
func (b *ByteBuffer) WriteBytes(p []byte) error {
	if err := b.ensure(len(p)); err != nil {
		return err
	}

	b.writeIdx += copy(b.buf[b.writeIdx:], p)

	return nil
}

// ReadBytes reads exactly n bytes. The returned slice aliases the buffer.
func (b *ByteBuffer) ReadBytes(n int) ([]byte, error) {
	if b.readIdx+n > b.writeIdx {
		return nil, io.ErrUnexpectedEOF
	}

	p := b.buf[b.readIdx : b.readIdx+n]
	b.readIdx += n

	return p, nil
}

// WriteUint8 appends a single byte.
func (b *ByteBuffer) WriteUint8(v uint8) error {
	return b.WriteBytes([]byte{v})
}

// ReadUint8 reads a single byte.
func (b *ByteBuffer) ReadUint8() (uint8, error) {
	p, err := b.ReadBytes(1)
	if err != nil {
		return 0, err
	}

	return p[0], nil
}

// WriteUint16 appends v as a big-endian uint16.
func (b *ByteBuffer) WriteUint16(v uint16) error {
	if err := b.ensure(2); err != nil {
		return err
	}

	binary.BigEndian.PutUint16(b.buf[b.writeIdx:], v)
	b.writeIdx += 2

	return nil
}

// ReadUint16 reads a big-endian uint16.
func (b *ByteBuffer) ReadUint16() (uint16, error) {
	p, err := b.ReadBytes(2)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint16(p), nil
}

// WriteUint32 appends v as a big-endian uint32.
func (b *ByteBuffer) WriteUint32(v uint32) error {
	if err := b.ensure(4); err != nil {
		return err
	}

	binary.BigEndian.PutUint32(b.buf[b.writeIdx:], v)
	b.writeIdx += 4

	return nil
}

// ReadUint32 reads a big-endian uint32.
func (b *ByteBuffer) ReadUint32() (uint32, error) {
	p, err := b.ReadBytes(4)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(p), nil
}

// WriteUint64 appends v as a big-endian uint64.
func (b *ByteBuffer) WriteUint64(v uint64) error {
	if err := b.ensure(8); err != nil {
		return err
	}

	binary.BigEndian.PutUint64(b.buf[b.writeIdx:], v)
	b.writeIdx += 8

	return nil
}

// ReadUint64 reads a big-endian uint64.
func (b *ByteBuffer) ReadUint64() (uint64, error) {
	p, err := b.ReadBytes(8)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint64(p), nil
}

// WriteVarint appends v as an LEB128 varint.
func (b *ByteBuffer) WriteVarint(v int64) error {
	return b.WriteVarlong(int64(v))
}

// ReadVarint reads an LEB128 varint.
func (b *ByteBuffer) ReadVarint() (int64, error) {
	return b.ReadVarlong()
}

// WriteVarlong appends v as an LEB128 varint using up to 10 bytes.
func (b *ByteBuffer) WriteVarlong(v int64) error {
	u := uint64(v)

	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], u)

	return b.WriteBytes(tmp[:n])
}

// ReadVarlong reads an LEB128 varint.
func (b *ByteBuffer) ReadVarlong() (int64, error) {
	u, n := binary.Uvarint(b.buf[b.readIdx:b.writeIdx])
	if n <= 0 {
		return 0, io.ErrUnexpectedEOF
	}

	b.readIdx += n

	return int64(u), nil
}

// WriteString appends s prefixed by its byte length as a varint.
func (b *ByteBuffer) WriteString(s string) error {
	if err := b.WriteVarint(int64(len(s))); err != nil {
		return err
	}

	return b.WriteBytes([]byte(s))
}

// ReadString reads a varint-length-prefixed UTF-8 string.
func (b *ByteBuffer) ReadString() (string, error) {
	n, err := b.ReadVarint()
	if err != nil {
		return "", err
	}

	p, err := b.ReadBytes(int(n))
	if err != nil {
		return "", err
	}

	return string(p), nil
}

// WriteUUID appends v as two big-endian uint64s, most-significant first.
func (b *ByteBuffer) WriteUUID(v [16]byte) error {
	return b.WriteBytes(v[:])
}

// ReadUUID reads a 16-byte UUID (two longs, MSB first).
func (b *ByteBuffer) ReadUUID() ([16]byte, error) {
	var v [16]byte

	p, err := b.ReadBytes(16)
	if err != nil {
		return v, err
	}

	copy(v[:], p)

	return v, nil
}

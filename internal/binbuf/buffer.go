package binbuf

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a read or write falls outside the buffer.
var ErrOutOfRange = errors.New("offset out of range")

// Buffer is an owned byte slice with absolute-offset accessors.
// All multi-byte values are little-endian, matching the DS binaries.
type Buffer struct {
	data []byte
}

// New wraps data. The buffer takes ownership of the slice.
func New(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the underlying slice.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the buffer length.
func (b *Buffer) Len() int { return len(b.data) }

// Grow appends n zero bytes and returns the offset of the first one.
func (b *Buffer) Grow(n int) int {
	start := len(b.data)
	b.data = append(b.data, make([]byte, n)...)
	return start
}

func (b *Buffer) check(off, n int) error {
	if off < 0 || n < 0 || off+n > len(b.data) {
		return fmt.Errorf("%w: [0x%X, 0x%X) of 0x%X", ErrOutOfRange, off, off+n, len(b.data))
	}
	return nil
}

// Uint8 reads one byte at off.
func (b *Buffer) Uint8(off int) (byte, error) {
	if err := b.check(off, 1); err != nil {
		return 0, err
	}
	return b.data[off], nil
}

// Uint16 reads a little-endian uint16 at off.
func (b *Buffer) Uint16(off int) (uint16, error) {
	if err := b.check(off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b.data[off:]), nil
}

// Uint32 reads a little-endian uint32 at off.
func (b *Buffer) Uint32(off int) (uint32, error) {
	if err := b.check(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.data[off:]), nil
}

// Slice returns data[off:off+n] without copying.
func (b *Buffer) Slice(off, n int) ([]byte, error) {
	if err := b.check(off, n); err != nil {
		return nil, err
	}
	return b.data[off : off+n], nil
}

// PutUint16 writes a little-endian uint16 at off.
func (b *Buffer) PutUint16(off int, v uint16) error {
	if err := b.check(off, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b.data[off:], v)
	return nil
}

// PutUint32 writes a little-endian uint32 at off.
func (b *Buffer) PutUint32(off int, v uint32) error {
	if err := b.check(off, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b.data[off:], v)
	return nil
}

// WriteAt copies p into the buffer at off.
func (b *Buffer) WriteAt(off int, p []byte) error {
	if err := b.check(off, len(p)); err != nil {
		return err
	}
	copy(b.data[off:], p)
	return nil
}

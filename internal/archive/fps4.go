// Package archive reads and rebuilds FPS4 containers, both the flat form
// and the split form with a separate header (.b) and detail (.dat) file.
package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"toh-translator/internal/compress"
)

// ErrMalformed is wrapped by every table-of-contents inconsistency.
var ErrMalformed = errors.New("malformed container")

var magic = []byte("FPS4")

const (
	minHeaderSize = 0x1C
	nameFieldSize = 0x20
	// DefaultAlignment is used when Options leaves it unset.
	DefaultAlignment = 0x10
)

// Entry fields present in the table, selected by Header.Flags.
const (
	FieldOffset     = 1 << 0
	FieldPaddedSize = 1 << 1
	FieldFileSize   = 1 << 2
	FieldName       = 1 << 3
)

// Header is the fixed part of an FPS4 header.
type Header struct {
	// Count includes the terminating entry.
	Count      int
	HeaderSize int
	DataStart  uint32
	EntrySize  int
	Flags      uint16
	Unknown    uint32
	NameOffset uint32
}

// Entry is one member of a container.
type Entry struct {
	Index      int
	Name       string
	Offset     int
	Size       int
	PaddedSize int
	// Compressed is derived from the payload's LZ header.
	Compressed bool

	raw []byte
}

// Options tune Pack.
type Options struct {
	// Alignment of member offsets and padded sizes.
	Alignment int
}

// Archive is an opened container. Replaced payloads are kept in memory
// until Pack.
type Archive struct {
	Header  Header
	Entries []Entry

	head     []byte
	data     []byte
	split    bool
	start    int
	term     []byte
	align    int
	replaced map[int][]byte
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Open parses a container. With detail == nil the container is flat and
// offsets point into header itself.
func Open(header, detail []byte, opts Options) (*Archive, error) {
	if len(header) < minHeaderSize || !bytes.Equal(header[:4], magic) {
		return nil, malformed("missing FPS4 magic")
	}
	le := binary.LittleEndian
	h := Header{
		Count:      int(le.Uint32(header[0x04:])),
		HeaderSize: int(le.Uint32(header[0x08:])),
		DataStart:  le.Uint32(header[0x0C:]),
		EntrySize:  int(le.Uint16(header[0x10:])),
		Flags:      le.Uint16(header[0x12:]),
		Unknown:    le.Uint32(header[0x14:]),
		NameOffset: le.Uint32(header[0x18:]),
	}
	if h.Count < 1 {
		return nil, malformed("entry count %d", h.Count)
	}
	if h.HeaderSize < minHeaderSize {
		return nil, malformed("header size 0x%X", h.HeaderSize)
	}
	if h.Flags&FieldOffset == 0 || h.Flags&(FieldPaddedSize|FieldFileSize) == 0 {
		return nil, malformed("flags 0x%X carry no offset or size", h.Flags)
	}
	if h.EntrySize < fieldsSize(h.Flags) {
		return nil, malformed("entry size 0x%X smaller than its fields", h.EntrySize)
	}
	tableEnd := h.HeaderSize + h.Count*h.EntrySize
	if tableEnd > len(header) {
		return nil, malformed("entry table ends at 0x%X past 0x%X", tableEnd, len(header))
	}

	a := &Archive{
		Header:   h,
		split:    detail != nil,
		data:     header,
		align:    opts.Alignment,
		replaced: make(map[int][]byte),
	}
	if a.split {
		a.data = detail
	}
	if a.align <= 0 {
		a.align = DefaultAlignment
	}

	for i := 0; i < h.Count; i++ {
		raw := header[h.HeaderSize+i*h.EntrySize : h.HeaderSize+(i+1)*h.EntrySize]
		e := decodeEntry(h.Flags, raw)
		e.Index = i
		if i == h.Count-1 {
			a.term = append([]byte(nil), raw...)
			continue
		}
		if e.Offset < 0 || e.Offset+e.Size > len(a.data) {
			return nil, malformed("entry %d [0x%X, 0x%X) outside payload of 0x%X bytes", i, e.Offset, e.Offset+e.Size, len(a.data))
		}
		_, _, e.Compressed = compress.Sniff(a.data[e.Offset : e.Offset+e.Size])
		a.Entries = append(a.Entries, e)
	}
	if err := checkOverlap(a.Entries); err != nil {
		return nil, err
	}

	a.start = payloadStart(a.Entries, tableEnd, a.split)
	if !a.split && a.start < tableEnd {
		return nil, malformed("payload at 0x%X overlaps the entry table", a.start)
	}
	if a.split {
		a.head = append([]byte(nil), header...)
	} else {
		a.head = append([]byte(nil), header[:a.start]...)
	}
	return a, nil
}

func fieldsSize(flags uint16) int {
	n := 0
	for _, f := range []uint16{FieldOffset, FieldPaddedSize, FieldFileSize} {
		if flags&f != 0 {
			n += 4
		}
	}
	if flags&FieldName != 0 {
		n += nameFieldSize
	}
	return n
}

func decodeEntry(flags uint16, raw []byte) Entry {
	le := binary.LittleEndian
	var e Entry
	pos := 0
	if flags&FieldOffset != 0 {
		e.Offset = int(le.Uint32(raw[pos:]))
		pos += 4
	}
	if flags&FieldPaddedSize != 0 {
		e.PaddedSize = int(le.Uint32(raw[pos:]))
		pos += 4
	}
	if flags&FieldFileSize != 0 {
		e.Size = int(le.Uint32(raw[pos:]))
		pos += 4
	} else {
		e.Size = e.PaddedSize
	}
	if flags&FieldName != 0 {
		e.Name = string(bytes.TrimRight(raw[pos:pos+nameFieldSize], "\x00"))
	}
	e.raw = append([]byte(nil), raw...)
	return e
}

func checkOverlap(entries []Entry) error {
	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Size > 0 {
			sorted = append(sorted, e)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1]
		if prev.Offset+prev.Size > sorted[i].Offset {
			return malformed("entries %d and %d overlap", prev.Index, sorted[i].Index)
		}
	}
	return nil
}

// payloadStart is where the first member lives: the lowest member offset,
// or the end of the table for an empty flat container.
func payloadStart(entries []Entry, tableEnd int, split bool) int {
	start := -1
	for _, e := range entries {
		if e.Size > 0 && (start < 0 || e.Offset < start) {
			start = e.Offset
		}
	}
	if start >= 0 {
		return start
	}
	if split {
		return 0
	}
	return alignUp(tableEnd, DefaultAlignment)
}

// Split reports whether the container has a separate detail file.
func (a *Archive) Split() bool { return a.split }

// Extract returns member i as stored, compressed or not.
func (a *Archive) Extract(i int) ([]byte, error) {
	if i < 0 || i >= len(a.Entries) {
		return nil, fmt.Errorf("extract member %d: index out of range [0, %d)", i, len(a.Entries))
	}
	if p, ok := a.replaced[i]; ok {
		return p, nil
	}
	e := a.Entries[i]
	return a.data[e.Offset : e.Offset+e.Size], nil
}

// Replace swaps the stored payload of member i. Compressed payloads must be
// compressed by the caller.
func (a *Archive) Replace(i int, payload []byte) error {
	if i < 0 || i >= len(a.Entries) {
		return fmt.Errorf("replace member %d: index out of range [0, %d)", i, len(a.Entries))
	}
	a.replaced[i] = payload
	_, _, a.Entries[i].Compressed = compress.Sniff(payload)
	return nil
}

// Lookup finds a member by name.
func (a *Archive) Lookup(name string) (int, bool) {
	for i, e := range a.Entries {
		if e.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Pack lays members out again, in index order, from the original payload
// start. Each offset and padded size is aligned; everything the table does
// not describe is carried over. detail is nil for flat containers.
func (a *Archive) Pack() (header, detail []byte, err error) {
	h := a.Header
	head := append([]byte(nil), a.head...)

	var body bytes.Buffer
	if a.split {
		body.Write(a.data[:a.start])
	}

	pos := a.start
	for i := range a.Entries {
		p, err := a.Extract(i)
		if err != nil {
			return nil, nil, err
		}
		padded := alignUp(len(p), a.align)

		e := &a.Entries[i]
		raw := append([]byte(nil), e.raw...)
		encodeEntry(h.Flags, raw, pos, padded, len(p))
		copy(head[h.HeaderSize+i*h.EntrySize:], raw)

		body.Write(p)
		body.Write(make([]byte, padded-len(p)))
		pos += padded
	}
	term := append([]byte(nil), a.term...)
	encodeEntry(h.Flags, term, pos, 0, 0)
	copy(head[h.HeaderSize+(h.Count-1)*h.EntrySize:], term)

	if a.split {
		return head, body.Bytes(), nil
	}
	return append(head, body.Bytes()...), nil, nil
}

func encodeEntry(flags uint16, raw []byte, off, padded, size int) {
	le := binary.LittleEndian
	pos := 0
	if flags&FieldOffset != 0 {
		le.PutUint32(raw[pos:], uint32(off))
		pos += 4
	}
	if flags&FieldPaddedSize != 0 {
		le.PutUint32(raw[pos:], uint32(padded))
		pos += 4
	}
	if flags&FieldFileSize != 0 {
		le.PutUint32(raw[pos:], uint32(size))
	}
}

func alignUp(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

type member struct {
	name    string
	payload []byte
}

// build writes a container the way Pack lays one out, with four spare bytes
// per entry so that uninterpreted fields are exercised.
func build(flags uint16, members []member, split bool) (header, detail []byte) {
	le := binary.LittleEndian
	entrySize := fieldsSize(flags) + 4
	count := len(members) + 1
	tableEnd := minHeaderSize + count*entrySize

	start := 0
	if !split {
		start = alignUp(tableEnd, 0x10)
	}

	h := make([]byte, tableEnd)
	copy(h, magic)
	le.PutUint32(h[0x04:], uint32(count))
	le.PutUint32(h[0x08:], minHeaderSize)
	le.PutUint32(h[0x0C:], uint32(start))
	le.PutUint16(h[0x10:], uint16(entrySize))
	le.PutUint16(h[0x12:], flags)
	le.PutUint32(h[0x14:], 0xCAFEBABE)

	var body []byte
	pos := start
	writeEntry := func(i, off, padded, size int, name string) {
		raw := h[minHeaderSize+i*entrySize : minHeaderSize+(i+1)*entrySize]
		p := 0
		if flags&FieldOffset != 0 {
			le.PutUint32(raw[p:], uint32(off))
			p += 4
		}
		if flags&FieldPaddedSize != 0 {
			le.PutUint32(raw[p:], uint32(padded))
			p += 4
		}
		if flags&FieldFileSize != 0 {
			le.PutUint32(raw[p:], uint32(size))
			p += 4
		}
		if flags&FieldName != 0 {
			copy(raw[p:p+nameFieldSize], name)
			p += nameFieldSize
		}
		copy(raw[p:], []byte{0x77, 0x77, 0x77, 0x77})
	}
	for i, m := range members {
		padded := alignUp(len(m.payload), 0x10)
		writeEntry(i, pos, padded, len(m.payload), m.name)
		body = append(body, m.payload...)
		body = append(body, make([]byte, padded-len(m.payload))...)
		pos += padded
	}
	writeEntry(len(members), pos, 0, 0, "")

	if split {
		return h, body
	}
	h = append(h, make([]byte, start-tableEnd)...)
	return append(h, body...), nil
}

var sampleMembers = []member{
	{"FSHT00.SCP", []byte("hello")},
	{"FSHT01.SCP", bytes.Repeat([]byte{0xAB}, 0x23)},
	{"EMPTY.BIN", nil},
	{"LAST.BIN", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}},
}

func TestPackOfOpenIsIdentity(t *testing.T) {
	tests := []struct {
		name  string
		flags uint16
		split bool
	}{
		{"flat with names", FieldOffset | FieldPaddedSize | FieldFileSize | FieldName, false},
		{"split offset and size", FieldOffset | FieldFileSize, true},
		{"split padded only", FieldOffset | FieldPaddedSize, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, detail := build(tt.flags, sampleMembers, tt.split)
			a, err := Open(header, detail, Options{})
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if len(a.Entries) != len(sampleMembers) {
				t.Fatalf("got %d entries, want %d", len(a.Entries), len(sampleMembers))
			}
			gotH, gotD, err := a.Pack()
			if err != nil {
				t.Fatalf("Pack: %v", err)
			}
			if !bytes.Equal(gotH, header) {
				t.Fatalf("header differs:\n got % X\nwant % X", gotH, header)
			}
			if !bytes.Equal(gotD, detail) {
				t.Fatalf("detail differs:\n got % X\nwant % X", gotD, detail)
			}
		})
	}
}

func TestExtractAndLookup(t *testing.T) {
	header, _ := build(FieldOffset|FieldPaddedSize|FieldFileSize|FieldName, sampleMembers, false)
	a, err := Open(header, nil, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	i, ok := a.Lookup("FSHT01.SCP")
	if !ok || i != 1 {
		t.Fatalf("Lookup = %d, %v; want 1, true", i, ok)
	}
	got, err := a.Extract(i)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !bytes.Equal(got, sampleMembers[1].payload) {
		t.Fatalf("Extract(1) = % X", got)
	}
	if _, err := a.Extract(9); err == nil {
		t.Fatal("Extract(9) succeeded")
	}
	if name := MemberName(a.Entries[0]); name != "0000_FSHT00.SCP" {
		t.Fatalf("MemberName = %q", name)
	}
}

func TestReplaceMovesFollowingMembers(t *testing.T) {
	header, detail := build(FieldOffset|FieldFileSize, sampleMembers, true)
	a, err := Open(header, detail, Options{Alignment: 0x10})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	bigger := bytes.Repeat([]byte{'z'}, 0x41)
	if err := a.Replace(0, bigger); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	h, d, err := a.Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	b, err := Open(h, d, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if b.Entries[1].Offset != 0x50 {
		t.Fatalf("member 1 offset = 0x%X, want 0x50", b.Entries[1].Offset)
	}
	for i, want := range [][]byte{bigger, sampleMembers[1].payload, nil, sampleMembers[3].payload} {
		got, err := b.Extract(i)
		if err != nil {
			t.Fatalf("Extract(%d): %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("member %d = % X, want % X", i, got, want)
		}
	}
}

func TestCompressedFlag(t *testing.T) {
	lz := append([]byte{0x10, 0x40, 0x00, 0x00}, make([]byte, 12)...)
	header, detail := build(FieldOffset|FieldFileSize, []member{{"a", lz}, {"b", []byte("plain")}}, true)
	a, err := Open(header, detail, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !a.Entries[0].Compressed || a.Entries[1].Compressed {
		t.Fatalf("Compressed = %v, %v; want true, false", a.Entries[0].Compressed, a.Entries[1].Compressed)
	}
}

func TestOpenMalformed(t *testing.T) {
	le := binary.LittleEndian
	good, _ := build(FieldOffset|FieldFileSize, sampleMembers[:2], false)
	entrySize := fieldsSize(FieldOffset|FieldFileSize) + 4

	mutate := func(f func(b []byte) []byte) []byte {
		return f(append([]byte(nil), good...))
	}
	tests := map[string][]byte{
		"bad magic": mutate(func(b []byte) []byte { b[0] = 'X'; return b }),
		"zero count": mutate(func(b []byte) []byte {
			le.PutUint32(b[0x04:], 0)
			return b
		}),
		"table past end": mutate(func(b []byte) []byte {
			le.PutUint32(b[0x04:], 0x1000)
			return b
		}),
		"member past end": mutate(func(b []byte) []byte {
			le.PutUint32(b[minHeaderSize+4:], 0x10000)
			return b
		}),
		"overlap": mutate(func(b []byte) []byte {
			off := le.Uint32(b[minHeaderSize:])
			le.PutUint32(b[minHeaderSize+entrySize:], off+2)
			return b
		}),
		"no size field": mutate(func(b []byte) []byte {
			le.PutUint16(b[0x12:], FieldOffset)
			return b
		}),
		"truncated": good[:0x10],
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Open(data, nil, Options{})
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

package relocate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"toh-translator/internal/binbuf"
)

func text(n int, fill byte) []byte {
	b := bytes.Repeat([]byte{fill}, n-1)
	return append(b, 0)
}

func TestAllocateBestFit(t *testing.T) {
	buf := binbuf.New(make([]byte, 0x300))
	pools := []Pool{{Start: 0x100, Free: 10}, {Start: 0x200, Free: 4}}
	items := []Item{
		{ID: 1, Data: text(4, 'a'), Refs: []Ref{FlatRef(0x00)}},
		{ID: 2, Data: text(9, 'b'), Refs: []Ref{FlatRef(0x04)}},
	}

	rep, err := Allocate(buf, "menu", pools, 0x02000000, items)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if rep.Placements[0].Offset != 0x200 || rep.Placements[1].Offset != 0x100 {
		t.Fatalf("placements = %+v, want 4-byte text at 0x200 and 9-byte text at 0x100", rep.Placements)
	}
	data := buf.Bytes()
	if got := binary.LittleEndian.Uint32(data[0x00:]); got != 0x02000200 {
		t.Fatalf("pointer 0 = 0x%X, want 0x02000200", got)
	}
	if got := binary.LittleEndian.Uint32(data[0x04:]); got != 0x02000100 {
		t.Fatalf("pointer 1 = 0x%X, want 0x02000100", got)
	}
	if !bytes.Equal(data[0x200:0x204], text(4, 'a')) {
		t.Fatalf("pool 0x200 = % X", data[0x200:0x204])
	}
	// the caller's pools are untouched
	if pools[0].Free != 10 || pools[1].Free != 4 {
		t.Fatalf("pools mutated: %+v", pools)
	}
	want := []Pool{{Start: 0x204, Free: 0}, {Start: 0x109, Free: 1}}
	if len(rep.Remaining) != 2 || rep.Remaining[0] != want[0] || rep.Remaining[1] != want[1] {
		t.Fatalf("Remaining = %+v, want %+v", rep.Remaining, want)
	}
}

func TestAllocateOutOfSpaceWritesNothing(t *testing.T) {
	buf := binbuf.New(make([]byte, 0x300))
	pools := []Pool{{Start: 0x100, Free: 10}, {Start: 0x200, Free: 4}}
	items := []Item{
		{ID: 1, Data: text(4, 'a'), Refs: []Ref{FlatRef(0x00)}},
		{ID: 2, Data: text(9, 'b'), Refs: []Ref{FlatRef(0x04)}},
		{ID: 3, Data: text(20, 'c'), Refs: []Ref{FlatRef(0x08)}},
	}

	_, err := Allocate(buf, "menu", pools, 0, items)
	var oos *OutOfSpaceError
	if !errors.As(err, &oos) {
		t.Fatalf("err = %v, want OutOfSpaceError", err)
	}
	if oos.Section != "menu" || oos.EntryID != 3 || oos.Need != 20 || oos.Largest != 1 {
		t.Fatalf("OutOfSpaceError = %+v", oos)
	}
	if !bytes.Equal(buf.Bytes(), make([]byte, 0x300)) {
		t.Fatal("buffer changed after a failed allocation")
	}
}

func TestAllocateSplitHiLo(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		wantHi uint16
		wantLo uint16
	}{
		{"low half below sign bit", 0x1234, 0x0200, 0x1234},
		{"low half with sign bit", 0x8234, 0x0201, 0x8234},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := binbuf.New(make([]byte, 0x9000))
			items := []Item{{ID: 1, Data: text(4, 'x'), Refs: []Ref{HiLoRef(0x10, 0x14)}}}
			pools := []Pool{{Start: tt.offset, Free: 4}}

			if _, err := Allocate(buf, "arm9", pools, 0x02000000, items); err != nil {
				t.Fatalf("Allocate: %v", err)
			}
			hi, _ := buf.Uint16(0x10)
			lo, _ := buf.Uint16(0x14)
			if hi != tt.wantHi || lo != tt.wantLo {
				t.Fatalf("hi, lo = 0x%04X, 0x%04X; want 0x%04X, 0x%04X", hi, lo, tt.wantHi, tt.wantLo)
			}
			if got := JoinValue(hi, lo); got != 0x02000000+uint32(tt.offset) {
				t.Fatalf("JoinValue = 0x%X, want 0x%X", got, 0x02000000+tt.offset)
			}
		})
	}
}

func TestAllocateFixedSlots(t *testing.T) {
	buf := binbuf.New(bytes.Repeat([]byte{0xEE}, 0x40))
	items := []Item{
		{ID: 1, Data: text(10, 'l'), MaxLength: 8, FixedOffset: 0x00},
		{ID: 2, Data: text(3, 's'), MaxLength: 8, FixedOffset: 0x08},
	}

	rep, err := Allocate(buf, "names", nil, 0, items)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(rep.Truncations) != 1 {
		t.Fatalf("Truncations = %+v, want one", rep.Truncations)
	}
	if tr := rep.Truncations[0]; tr.EntryID != 1 || tr.Original != 10 || tr.Truncated != 8 {
		t.Fatalf("Truncation = %+v", tr)
	}
	want := append(text(8, 'l'), 's', 's', 0, 0, 0, 0, 0, 0)
	if got := buf.Bytes()[:0x10]; !bytes.Equal(got, want) {
		t.Fatalf("slots = % X, want % X", got, want)
	}
	if buf.Bytes()[0x10] != 0xEE {
		t.Fatal("write spilled past the slot")
	}
}

func TestAllocateRejectsRefOutsideBuffer(t *testing.T) {
	buf := binbuf.New(make([]byte, 0x20))
	items := []Item{{ID: 1, Data: text(4, 'a'), Refs: []Ref{FlatRef(0x1E)}}}
	_, err := Allocate(buf, "menu", []Pool{{Start: 0x10, Free: 8}}, 0, items)
	if !errors.Is(err, binbuf.ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	if !bytes.Equal(buf.Bytes(), make([]byte, 0x20)) {
		t.Fatal("buffer changed after a rejected allocation")
	}
}

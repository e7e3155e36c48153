// Package relocate places re-encoded texts into free regions of a binary
// and patches every reference to them.
package relocate

import (
	"fmt"
	"sort"

	"toh-translator/internal/binbuf"
)

// Pool is a free byte range that may receive relocated text.
type Pool struct {
	Start int
	Free  int
}

// RefKind is how a reference stores its target.
type RefKind int

const (
	// Flat is a 32-bit little-endian value holding base+offset.
	Flat RefKind = iota
	// SplitHiLo is a 32-bit value split across two 16-bit immediates.
	SplitHiLo
	// TableSlot points at a pointer table entry. Container rebuilds patch
	// these, so Allocate leaves them alone.
	TableSlot
)

// Ref is one reference to a placed text.
type Ref struct {
	Kind RefKind
	// Offset is the pointer offset, or the high half for SplitHiLo.
	Offset int
	// LoOffset is the low half for SplitHiLo.
	LoOffset int
}

// FlatRef returns a Flat reference at off.
func FlatRef(off int) Ref { return Ref{Kind: Flat, Offset: off} }

// HiLoRef returns a SplitHiLo reference.
func HiLoRef(hi, lo int) Ref { return Ref{Kind: SplitHiLo, Offset: hi, LoOffset: lo} }

// Item is one text to place.
type Item struct {
	ID int
	// Data is the encoded text, terminator included.
	Data []byte
	Refs []Ref
	// MaxLength > 0 marks a fixed slot at FixedOffset; the text is written
	// in place and never moves.
	MaxLength   int
	FixedOffset int
}

// Placement records where an item was written.
type Placement struct {
	ID     int
	Offset int
	Size   int
}

// Report is the outcome of a successful allocation.
type Report struct {
	Placements  []Placement
	Truncations []Truncation
	// Remaining is the pool state after placement, for the next section.
	Remaining []Pool
}

type write struct {
	off  int
	data []byte
	refs []Ref
}

// Allocate plans every item against a private copy of pools, then writes.
// Pools are tried smallest-free first, the first one large enough wins.
// When any item does not fit, nothing is written and an *OutOfSpaceError is
// returned. Pointer values are uint32(base + offset).
func Allocate(buf *binbuf.Buffer, section string, pools []Pool, base int64, items []Item) (*Report, error) {
	free := make([]Pool, len(pools))
	copy(free, pools)
	sort.SliceStable(free, func(i, j int) bool { return free[i].Free < free[j].Free })

	report := &Report{}
	writes := make([]write, 0, len(items))

	for _, it := range items {
		if it.MaxLength > 0 {
			data, tr := fitSlot(it)
			if tr != nil {
				report.Truncations = append(report.Truncations, *tr)
			}
			// a fixed slot keeps its address, so its references stay valid
			writes = append(writes, write{off: it.FixedOffset, data: data})
			report.Placements = append(report.Placements, Placement{ID: it.ID, Offset: it.FixedOffset, Size: len(data)})
			continue
		}

		idx := -1
		for i := range free {
			if free[i].Free >= len(it.Data) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, &OutOfSpaceError{Section: section, EntryID: it.ID, Need: len(it.Data), Largest: largest(free)}
		}
		off := free[idx].Start
		free[idx].Start += len(it.Data)
		free[idx].Free -= len(it.Data)

		writes = append(writes, write{off: off, data: it.Data, refs: it.Refs})
		report.Placements = append(report.Placements, Placement{ID: it.ID, Offset: off, Size: len(it.Data)})
	}

	if err := checkWrites(buf, writes); err != nil {
		return nil, fmt.Errorf("section %s: %w", section, err)
	}
	report.Remaining = free
	for _, w := range writes {
		// bounds were checked above
		_ = buf.WriteAt(w.off, w.data)
		for _, r := range w.refs {
			patch(buf, r, uint32(base+int64(w.off)))
		}
	}
	return report, nil
}

// fitSlot pads a fixed-slot text to its slot, or cuts it to MaxLength-1
// bytes plus a terminator.
func fitSlot(it Item) ([]byte, *Truncation) {
	out := make([]byte, it.MaxLength)
	if len(it.Data) > it.MaxLength {
		copy(out, it.Data[:it.MaxLength-1])
		return out, &Truncation{EntryID: it.ID, Original: len(it.Data), Truncated: it.MaxLength}
	}
	copy(out, it.Data)
	return out, nil
}

func largest(pools []Pool) int {
	n := 0
	for _, p := range pools {
		if p.Free > n {
			n = p.Free
		}
	}
	return n
}

func checkWrites(buf *binbuf.Buffer, writes []write) error {
	for _, w := range writes {
		if _, err := buf.Slice(w.off, len(w.data)); err != nil {
			return fmt.Errorf("text at 0x%X: %w", w.off, err)
		}
		for _, r := range w.refs {
			if err := checkRef(buf, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkRef(buf *binbuf.Buffer, r Ref) error {
	switch r.Kind {
	case Flat:
		if _, err := buf.Slice(r.Offset, 4); err != nil {
			return fmt.Errorf("pointer at 0x%X: %w", r.Offset, err)
		}
	case SplitHiLo:
		if _, err := buf.Slice(r.Offset, 2); err != nil {
			return fmt.Errorf("high half at 0x%X: %w", r.Offset, err)
		}
		if _, err := buf.Slice(r.LoOffset, 2); err != nil {
			return fmt.Errorf("low half at 0x%X: %w", r.LoOffset, err)
		}
	}
	return nil
}

func patch(buf *binbuf.Buffer, r Ref, value uint32) {
	switch r.Kind {
	case Flat:
		_ = buf.PutUint32(r.Offset, value)
	case SplitHiLo:
		hi, lo := SplitValue(value)
		_ = buf.PutUint16(r.Offset, hi)
		_ = buf.PutUint16(r.LoOffset, lo)
	}
}

// SplitValue returns the halves to load for v. The low half is sign
// extended by the loading instruction, so the high half carries one more
// when its top bit is set.
func SplitValue(v uint32) (hi, lo uint16) {
	hi, lo = uint16(v>>16), uint16(v)
	if lo >= 0x8000 {
		hi++
	}
	return hi, lo
}

// JoinValue is the inverse of SplitValue.
func JoinValue(hi, lo uint16) uint32 {
	return uint32(int64(hi)<<16 + int64(int16(lo)))
}

package archive

import (
	"bytes"
	"fmt"
)

// IsContainer reports whether data starts with the FPS4 magic.
func IsContainer(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// Nested is a type-1 container: an outer container whose members may
// themselves be flat containers. Members are addressed as (outer, inner).
type Nested struct {
	Outer *Archive

	inner map[int]*Archive
	dirty map[int]bool
}

// OpenNested opens the outer container and every member that is itself an
// uncompressed container.
func OpenNested(header, detail []byte, opts Options) (*Nested, error) {
	outer, err := Open(header, detail, opts)
	if err != nil {
		return nil, fmt.Errorf("open outer container: %w", err)
	}
	n := &Nested{Outer: outer, inner: make(map[int]*Archive), dirty: make(map[int]bool)}
	for i := range outer.Entries {
		p, err := outer.Extract(i)
		if err != nil {
			return nil, err
		}
		if !IsContainer(p) {
			continue
		}
		in, err := Open(p, nil, opts)
		if err != nil {
			return nil, fmt.Errorf("open member %d: %w", i, err)
		}
		n.inner[i] = in
	}
	return n, nil
}

// Inner returns the sub-container at outer index i.
func (n *Nested) Inner(i int) (*Archive, bool) {
	a, ok := n.inner[i]
	return a, ok
}

// Extract returns member inner of sub-container outer.
func (n *Nested) Extract(outer, inner int) ([]byte, error) {
	a, ok := n.inner[outer]
	if !ok {
		return nil, fmt.Errorf("member %d is not a container", outer)
	}
	return a.Extract(inner)
}

// Replace swaps member inner of sub-container outer.
func (n *Nested) Replace(outer, inner int, payload []byte) error {
	a, ok := n.inner[outer]
	if !ok {
		return fmt.Errorf("member %d is not a container", outer)
	}
	if err := a.Replace(inner, payload); err != nil {
		return err
	}
	n.dirty[outer] = true
	return nil
}

// Pack rebuilds changed sub-containers, then the outer container.
func (n *Nested) Pack() (header, detail []byte, err error) {
	for i := range n.Outer.Entries {
		if !n.dirty[i] {
			continue
		}
		packed, _, err := n.inner[i].Pack()
		if err != nil {
			return nil, nil, fmt.Errorf("pack member %d: %w", i, err)
		}
		if err := n.Outer.Replace(i, packed); err != nil {
			return nil, nil, err
		}
	}
	return n.Outer.Pack()
}

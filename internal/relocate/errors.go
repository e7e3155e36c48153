package relocate

import "fmt"

// OutOfSpaceError reports an item no pool could hold. Nothing in the
// section was written.
type OutOfSpaceError struct {
	Section string
	EntryID int
	Need    int
	Largest int
}

func (e *OutOfSpaceError) Error() string {
	return fmt.Sprintf("section %s: entry %d needs %d bytes, largest free pool has %d", e.Section, e.EntryID, e.Need, e.Largest)
}

// Truncation is a fixed-slot text that was cut to fit. It is a warning.
type Truncation struct {
	EntryID   int
	Original  int
	Truncated int
}

func (t Truncation) String() string {
	return fmt.Sprintf("entry %d truncated from %d to %d bytes", t.EntryID, t.Original, t.Truncated)
}

package textcodec

import "fmt"

// UnknownTagError is returned by Encode for a tag no table can resolve.
// EntryID is filled in by callers that know which entry failed.
type UnknownTagError struct {
	Tag     string
	EntryID int
}

func (e *UnknownTagError) Error() string {
	if e.EntryID != 0 {
		return fmt.Sprintf("entry %d: unknown tag <%s>", e.EntryID, e.Tag)
	}
	return fmt.Sprintf("unknown tag <%s>", e.Tag)
}

// UnencodableError is returned by Encode for a character that is neither in
// the glyph table nor representable in CP932.
type UnencodableError struct {
	Char rune
}

func (e *UnencodableError) Error() string {
	return fmt.Sprintf("character %q (U+%04X) cannot be encoded", e.Char, e.Char)
}

// Package script walks the pointer structures of the game's binaries and
// yields the text entries they reference.
package script

import "toh-translator/internal/textcodec"

// EmbeddedRefs are references encoded as two 16-bit immediate loads.
type EmbeddedRefs struct {
	// Hi holds the offsets of the high-half immediates.
	Hi []int
	// Lo holds the offsets of the low-half immediates, paired with Hi by index.
	Lo []int
}

// TextEntry is one physical string and every reference that points at it.
type TextEntry struct {
	// ID is the 1-based id, in first-seen order.
	ID int
	// Offset is the absolute file offset of the first byte of the text.
	Offset int
	// Text is the decoded text.
	Text textcodec.TextRun
	// Size is the encoded length in the file, terminator included.
	Size int
	// PointerOffsets are the file offsets of 32-bit pointers to this text,
	// in first-seen order.
	PointerOffsets []int
	// Embedded is set when the text is also reached through hi/lo pairs.
	Embedded *EmbeddedRefs
	// MaxLength is the fixed slot size, or 0 when the text can move.
	MaxLength int
}

func (e *TextEntry) addPointer(off int) {
	for _, o := range e.PointerOffsets {
		if o == off {
			return
		}
	}
	e.PointerOffsets = append(e.PointerOffsets, off)
}

// StructRecord is one dialogue or event unit of a script.
type StructRecord struct {
	// ID is the 1-based record id, in file order.
	ID int
	// Section is the name of the rule that matched the record.
	Section string
	// Direct records are a lone text with no struct around it.
	Direct bool
	// PointerOffset is the offset of the code-region pointer to the record.
	PointerOffset int
	// Offset is the absolute offset of the record itself.
	Offset int
	// Speaker is nil when the speaker is set at runtime.
	Speaker *TextEntry
	// Unknowns are the opaque fields between the speaker and the texts.
	Unknowns []uint32
	// Texts are the record's text entries, in field order.
	Texts []*TextEntry
	// EndMarkers are the trailing terminator fields.
	EndMarkers []uint32
}

// SpeakerName is the display form of the speaker column.
func (r *StructRecord) SpeakerName() string {
	if r.Speaker == nil {
		return VariableSpeaker
	}
	return r.Speaker.Text.String()
}

// VariableSpeaker names a speaker chosen by the engine at runtime.
const VariableSpeaker = "Variable"

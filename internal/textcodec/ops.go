// Package textcodec converts between the game's mixed single/double-byte
// text encoding and a readable tagged string.
//
// The intermediate form is a TextRun: an ordered list of Ops. Every run
// produced by Decode encodes back to the exact input bytes, and its tagged
// string parses back to a run with the same encoding.
package textcodec

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is one element of a TextRun. The set of implementations is closed.
type Op interface {
	isOp()
}

// Literal is a character written through the single-byte (or CP932) range.
type Literal struct {
	Char rune
}

// Glyph is a double-byte code resolved through the glyph table.
type Glyph struct {
	Code uint16
	Text string
}

// RawByte is a byte with no mapping, shown as a {XX} escape.
type RawByte struct {
	Value byte
}

// Newline is the 0x0A line break.
type Newline struct{}

// VoiceID is a voice cue, written as 0x09 '(' id ')'.
type VoiceID struct {
	ID string
}

// TagKind identifies how a Tag is laid out in bytes.
type TagKind int

const (
	// TagUnknown is a tag name no table resolves. Encoding it fails.
	TagUnknown TagKind = iota
	// TagParam is introducer '(' param ')' with a named parameter, e.g. <Red>.
	TagParam
	// TagRawParam is introducer '(' param ')' shown numerically, e.g. <icon:5>.
	TagRawParam
	// TagButton is 0x81 followed by a button code, e.g. <button:Circle>.
	TagButton
	// TagPrefixed is 0x81 followed by a code from another category.
	TagPrefixed
	// TagCode is a bare control byte.
	TagCode
	// TagBubble is the 0x0C speech bubble break.
	TagBubble
)

// Tag is a control construct.
type Tag struct {
	Kind  TagKind
	Name  string
	Code  byte
	Param []byte
}

func (Literal) isOp() {}
func (Glyph) isOp()   {}
func (RawByte) isOp() {}
func (Newline) isOp() {}
func (VoiceID) isOp() {}
func (Tag) isOp()     {}

// TextRun is decoded game text.
type TextRun []Op

// bubbleName is the tag name of the 0x0C control byte.
const bubbleName = "Bubble"

// String renders the run as a tagged string.
func (r TextRun) String() string {
	var sb strings.Builder
	for _, op := range r {
		switch o := op.(type) {
		case Literal:
			switch o.Char {
			case '<', '{':
				fmt.Fprintf(&sb, "{%02X}", o.Char)
			default:
				sb.WriteRune(o.Char)
			}
		case Glyph:
			sb.WriteString(o.Text)
		case RawByte:
			fmt.Fprintf(&sb, "{%02X}", o.Value)
		case Newline:
			sb.WriteByte('\n')
		case VoiceID:
			sb.WriteString("<" + o.ID + ">")
		case Tag:
			sb.WriteString(o.token())
		}
	}
	return sb.String()
}

func (t Tag) token() string {
	switch t.Kind {
	case TagRawParam:
		return "<" + t.Name + ":" + formatParam(t.Param) + ">"
	case TagButton:
		return "<button:" + t.Name + ">"
	default:
		return "<" + t.Name + ">"
	}
}

func (t Tag) equal(o Tag) bool {
	return t.Kind == o.Kind && t.Name == o.Name && t.Code == o.Code && string(t.Param) == string(o.Param)
}

// formatParam prints one-byte parameters in decimal and wider ones as
// fixed-width hex so the byte width survives the round trip.
func formatParam(p []byte) string {
	if len(p) == 1 {
		return strconv.Itoa(int(p[0]))
	}
	return fmt.Sprintf("0x%X", p)
}

// SplitVoice separates a leading voice cue from the rest of the run.
func SplitVoice(r TextRun) (string, TextRun) {
	if len(r) > 0 {
		if v, ok := r[0].(VoiceID); ok {
			return v.ID, r[1:]
		}
	}
	return "", r
}

// Tags returns the tokens of every control construct in the run, in order.
func (r TextRun) Tags() []string {
	var out []string
	for _, op := range r {
		switch o := op.(type) {
		case Tag:
			out = append(out, o.token())
		case VoiceID:
			out = append(out, "<"+o.ID+">")
		}
	}
	return out
}

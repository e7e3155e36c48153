package textcodec

import (
	"bytes"
	"fmt"
	"regexp"

	"golang.org/x/text/encoding/japanese"

	"toh-translator/internal/tables"
)

// Control bytes with fixed meaning.
const (
	terminator  = 0x00
	voiceIntro  = 0x09
	newline     = 0x0A
	bubble      = 0x0C
	openParen   = 0x28
	closeParen  = 0x29
	buttonIntro = 0x81
)

var voicePattern = regexp.MustCompile(`^(VSM_\w+|VCT_\w+|S\d+|C\d+)$`)

// halfwidth maps 0xA1..0xDF to their CP932 characters.
var halfwidth [0xDF - 0xA1 + 1]rune

func init() {
	dec := japanese.ShiftJIS.NewDecoder()
	for i := range halfwidth {
		out, err := dec.Bytes([]byte{byte(0xA1 + i)})
		if err != nil || len(out) == 0 {
			panic(fmt.Sprintf("textcodec: CP932 byte 0x%X: %v", 0xA1+i, err))
		}
		halfwidth[i] = bytes.Runes(out)[0]
	}
}

// Codec decodes and encodes text through one TableSet.
type Codec struct {
	ts *tables.TableSet
}

// New returns a codec bound to ts.
func New(ts *tables.TableSet) *Codec {
	return &Codec{ts: ts}
}

func isLead(b byte) bool {
	return (b >= 0x80 && b <= 0x9F) || (b >= 0xE0 && b <= 0xEA)
}

func isPrintable(b byte) bool {
	return b >= 0x20 && b <= 0x7E
}

// Decode reads text starting at off until a 0x00 terminator has been
// consumed or data ends. It never fails: unmapped bytes become RawByte.
// The returned count includes the terminator when one was present.
func (c *Codec) Decode(data []byte, off int) (TextRun, int) {
	var run TextRun
	pos := off
	for pos < len(data) {
		b := data[pos]
		pos++
		if b == terminator {
			break
		}

		if b == buttonIntro && pos < len(data) {
			if name, ok := c.ts.Button(data[pos]); ok {
				t := Tag{Kind: TagButton, Name: name, Code: data[pos]}
				if c.canonical(t) {
					run = append(run, t)
					pos++
					continue
				}
			}
		}

		switch {
		case isLead(b):
			if pos >= len(data) || data[pos] == terminator {
				run = append(run, RawByte{b})
				continue
			}
			lo := data[pos]
			pos++
			code := uint16(b)<<8 | uint16(lo)
			if text, ok := c.ts.Glyph(code); ok && c.glyphStable(code, text) {
				run = append(run, Glyph{Code: code, Text: text})
			} else {
				run = append(run, RawByte{b}, RawByte{lo})
			}
		case b == newline:
			run = append(run, Newline{})
		case b == voiceIntro:
			if id, end, ok := c.voiceAt(data, pos); ok {
				run = append(run, VoiceID{ID: id})
				pos = end
			} else {
				run = append(run, RawByte{b})
			}
		case isPrintable(b):
			run = append(run, Literal{rune(b)})
		case b >= 0xA1 && b <= 0xDF:
			r := halfwidth[b-0xA1]
			if _, shadowed := c.ts.GlyphCode(string(r)); shadowed {
				run = append(run, RawByte{b})
			} else {
				run = append(run, Literal{r})
			}
		case c.ts.IsIntroducer(b):
			if t, end, ok := c.paramTagAt(b, data, pos); ok {
				run = append(run, t)
				pos = end
			} else {
				run = append(run, RawByte{b})
			}
		case b == bubble:
			run = append(run, Tag{Kind: TagBubble, Name: bubbleName, Code: bubble})
		default:
			run = append(run, RawByte{b})
		}
	}
	return run, pos - off
}

// DecodeString is Decode followed by String.
func (c *Codec) DecodeString(data []byte, off int) (string, int) {
	run, n := c.Decode(data, off)
	return run.String(), n
}

// parenBody returns the bytes between '(' at pos and the next ')', stopping
// at a terminator.
func parenBody(data []byte, pos int) (body []byte, end int, ok bool) {
	if pos >= len(data) || data[pos] != openParen {
		return nil, 0, false
	}
	for i := pos + 1; i < len(data); i++ {
		switch data[i] {
		case closeParen:
			return data[pos+1 : i], i + 1, true
		case terminator:
			return nil, 0, false
		}
	}
	return nil, 0, false
}

func (c *Codec) voiceAt(data []byte, pos int) (string, int, bool) {
	body, end, ok := parenBody(data, pos)
	if !ok {
		return "", 0, false
	}
	for _, b := range body {
		if !isPrintable(b) {
			return "", 0, false
		}
	}
	id := string(body)
	if !voicePattern.MatchString(id) {
		return "", 0, false
	}
	return id, end, true
}

func (c *Codec) paramTagAt(intro byte, data []byte, pos int) (Tag, int, bool) {
	body, end, ok := parenBody(data, pos)
	if !ok || len(body) == 0 {
		return Tag{}, 0, false
	}
	param := append([]byte(nil), body...)
	if name, ok := c.ts.ParamName(intro, param); ok {
		t := Tag{Kind: TagParam, Name: name, Code: intro, Param: param}
		if c.canonical(t) {
			return t, end, true
		}
	}
	tagName, _ := c.ts.TagName(intro)
	t := Tag{Kind: TagRawParam, Name: tagName, Code: intro, Param: param}
	if !c.canonical(t) {
		return Tag{}, 0, false
	}
	return t, end, true
}

// canonical reports whether the tag's string token parses back to itself.
func (c *Codec) canonical(t Tag) bool {
	run := c.Parse(t.token())
	if len(run) != 1 {
		return false
	}
	got, ok := run[0].(Tag)
	return ok && got.equal(t)
}

// glyphStable reports whether a glyph's text parses back to the same code.
func (c *Codec) glyphStable(code uint16, text string) bool {
	run := c.Parse(text)
	if len(run) != 1 {
		return false
	}
	g, ok := run[0].(Glyph)
	return ok && g.Code == code
}

// Encode converts a run back to bytes, without the terminator.
func (c *Codec) Encode(run TextRun) ([]byte, error) {
	out := make([]byte, 0, len(run)*2)
	for _, op := range run {
		switch o := op.(type) {
		case Literal:
			if o.Char < 0x80 {
				out = append(out, byte(o.Char))
				continue
			}
			enc, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(string(o.Char)))
			if err != nil {
				return nil, &UnencodableError{Char: o.Char}
			}
			out = append(out, enc...)
		case Glyph:
			out = append(out, byte(o.Code>>8), byte(o.Code))
		case RawByte:
			out = append(out, o.Value)
		case Newline:
			out = append(out, newline)
		case VoiceID:
			out = append(out, voiceIntro, openParen)
			out = append(out, o.ID...)
			out = append(out, closeParen)
		case Tag:
			switch o.Kind {
			case TagParam, TagRawParam:
				out = append(out, o.Code, openParen)
				out = append(out, o.Param...)
				out = append(out, closeParen)
			case TagButton:
				out = append(out, buttonIntro, o.Code)
			case TagPrefixed:
				out = append(out, buttonIntro)
				out = append(out, o.Param...)
			case TagCode:
				out = append(out, o.Code)
			case TagBubble:
				out = append(out, bubble)
			default:
				return nil, &UnknownTagError{Tag: o.Name}
			}
		default:
			return nil, fmt.Errorf("encode: unexpected op %T", op)
		}
	}
	return out, nil
}

// EncodeString parses a tagged string and encodes it.
func (c *Codec) EncodeString(s string) ([]byte, error) {
	return c.Encode(c.Parse(s))
}

// PadAligned appends zero bytes so that, once the terminator is added, the
// length is a multiple of four.
func PadAligned(b []byte) []byte {
	rest := 4 - len(b)%4 - 1
	return append(b, make([]byte, rest)...)
}

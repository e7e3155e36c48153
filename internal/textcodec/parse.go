package textcodec

import (
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// tokenPattern matches {XX} escapes, <name> / <name:param> tags and newlines.
var tokenPattern = regexp.MustCompile(`\{([0-9A-Fa-f]{2})\}|<([^<>{}:\n]+)(?::([^<>{}:\n]+))?>|\n`)

// Parse converts a tagged string to a TextRun. It never fails: names that no
// table resolves become TagUnknown and are rejected by Encode.
func (c *Codec) Parse(s string) TextRun {
	var run TextRun
	last := 0
	for _, m := range tokenPattern.FindAllStringSubmatchIndex(s, -1) {
		run = append(run, c.parseText(s[last:m[0]])...)
		last = m[1]

		switch {
		case m[2] >= 0:
			v, _ := strconv.ParseUint(s[m[2]:m[3]], 16, 8)
			run = append(run, RawByte{byte(v)})
		case m[4] >= 0:
			name := s[m[4]:m[5]]
			param, hasParam := "", m[6] >= 0
			if hasParam {
				param = s[m[6]:m[7]]
			}
			run = append(run, c.parseTag(name, param, hasParam))
		default:
			run = append(run, Newline{})
		}
	}
	return append(run, c.parseText(s[last:])...)
}

// parseText handles plain text: printable ASCII stays single-byte, glyph
// table entries are matched per character, anything else is left to CP932.
func (c *Codec) parseText(s string) TextRun {
	var run TextRun
	for _, r := range s {
		if r >= 0x80 {
			if code, ok := c.ts.GlyphCode(string(r)); ok {
				run = append(run, Glyph{Code: code, Text: string(r)})
				continue
			}
		}
		run = append(run, Literal{r})
	}
	return run
}

// parseTag resolves a tag token. Resolution order for bare names is: bubble,
// voice cue, introducer parameter, button, prefixed category, control byte.
func (c *Codec) parseTag(name, param string, hasParam bool) Op {
	if !hasParam {
		switch {
		case name == bubbleName:
			return Tag{Kind: TagBubble, Name: bubbleName, Code: bubble}
		case voicePattern.MatchString(name):
			return VoiceID{ID: name}
		}
		if intro, p, ok := c.ts.LookupParam(name); ok {
			return Tag{Kind: TagParam, Name: name, Code: intro, Param: p}
		}
		if code, ok := c.ts.ButtonCode(name); ok {
			return Tag{Kind: TagButton, Name: name, Code: code}
		}
		if p, ok := c.ts.LookupPrefixed(name); ok {
			return Tag{Kind: TagPrefixed, Name: name, Param: p}
		}
		if code, ok := c.ts.TagCode(name); ok {
			return Tag{Kind: TagCode, Name: name, Code: code}
		}
		return Tag{Kind: TagUnknown, Name: name}
	}

	if name == "button" {
		if code, ok := c.ts.ButtonCode(param); ok {
			return Tag{Kind: TagButton, Name: param, Code: code}
		}
		return Tag{Kind: TagUnknown, Name: name + ":" + param}
	}
	if code, ok := c.ts.TagCode(name); ok && c.ts.IsIntroducer(code) {
		if p, ok := parseParam(param); ok {
			return Tag{Kind: TagRawParam, Name: name, Code: code, Param: p}
		}
	}
	return Tag{Kind: TagUnknown, Name: name + ":" + param}
}

// parseParam reads a decimal byte or a 0x-prefixed hex byte string.
func parseParam(s string) ([]byte, bool) {
	if h, ok := strings.CutPrefix(s, "0x"); ok {
		if len(h) == 0 || len(h)%2 == 1 {
			return nil, false
		}
		p, err := hex.DecodeString(h)
		if err != nil {
			return nil, false
		}
		return p, true
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return nil, false
	}
	return []byte{byte(v)}, true
}

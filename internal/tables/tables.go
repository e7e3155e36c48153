// Package tables holds the encoding tables used to translate between game
// bytes and tagged text. A TableSet is built once per run and never mutated.
package tables

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Well-known category names in the table document.
const (
	CategoryGlyph  = "TBL"
	CategoryTags   = "TAGS"
	CategoryButton = "BUTTON"
)

// DefaultIntroducers are the control bytes that may open a "(param)" block.
var DefaultIntroducers = []byte{0x03, 0x04, 0x0B}

// paramTable maps raw parameter bytes to names within one category.
type paramTable struct {
	byCode map[string]string
	byName map[string][]byte
}

func newParamTable() *paramTable {
	return &paramTable{byCode: make(map[string]string), byName: make(map[string][]byte)}
}

// TableSet is the immutable set of lookup tables.
type TableSet struct {
	glyphs      map[uint16]string
	glyphByText map[string]uint16

	tags      map[byte]string
	tagByName map[string]byte

	buttons      map[byte]string
	buttonByName map[string]byte

	// params is keyed by upper-cased tag name, e.g. "COLOR" for the tag "color".
	params map[string]*paramTable
	// prefixed holds the remaining categories, written as 0x81 + code.
	prefixed      map[string]*paramTable
	prefixedOrder []string

	introducers []byte
}

// Load reads a table document from disk. JSON documents are accepted too.
func Load(path string) (*TableSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table file: %w", err)
	}
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse table file %s: %w", path, err)
	}
	return Parse(raw, DefaultIntroducers)
}

// Parse builds a TableSet from category → (hex code → display string).
func Parse(raw map[string]map[string]string, introducers []byte) (*TableSet, error) {
	ts := &TableSet{
		glyphs:       make(map[uint16]string),
		glyphByText:  make(map[string]uint16),
		tags:         make(map[byte]string),
		tagByName:    make(map[string]byte),
		buttons:      make(map[byte]string),
		buttonByName: make(map[string]byte),
		params:       make(map[string]*paramTable),
		prefixed:     make(map[string]*paramTable),
	}

	categories := make([]string, 0, len(raw))
	for k := range raw {
		categories = append(categories, k)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		entries, err := sortedCodes(cat, raw[cat])
		if err != nil {
			return nil, err
		}
		switch strings.ToUpper(cat) {
		case CategoryGlyph:
			for _, e := range entries {
				if len(e.code) > 2 {
					return nil, fmt.Errorf("category %s: code %X wider than 16 bits", cat, e.code)
				}
				code := uint16(0)
				for _, b := range e.code {
					code = code<<8 | uint16(b)
				}
				ts.glyphs[code] = e.name
				if _, dup := ts.glyphByText[e.name]; !dup {
					ts.glyphByText[e.name] = code
				}
			}
		case CategoryTags:
			if err := fillByteTable(cat, entries, ts.tags, ts.tagByName); err != nil {
				return nil, err
			}
		case CategoryButton:
			if err := fillByteTable(cat, entries, ts.buttons, ts.buttonByName); err != nil {
				return nil, err
			}
		default:
			pt := newParamTable()
			for _, e := range entries {
				pt.byCode[string(e.code)] = e.name
				if _, dup := pt.byName[e.name]; !dup {
					pt.byName[e.name] = e.code
				}
			}
			ts.params[strings.ToUpper(cat)] = pt
		}
	}

	// Categories that do not belong to an introducer tag are 0x81-prefixed.
	for _, b := range introducers {
		if _, ok := ts.tags[b]; ok {
			ts.introducers = append(ts.introducers, b)
		}
	}
	bound := make(map[string]bool)
	for _, b := range ts.introducers {
		bound[strings.ToUpper(ts.tags[b])] = true
	}
	for cat, pt := range ts.params {
		if !bound[cat] {
			ts.prefixed[cat] = pt
			ts.prefixedOrder = append(ts.prefixedOrder, cat)
		}
	}
	sort.Strings(ts.prefixedOrder)
	for _, cat := range ts.prefixedOrder {
		delete(ts.params, cat)
	}

	return ts, nil
}

type codeEntry struct {
	code []byte
	name string
}

// sortedCodes decodes hex keys and orders them by code so that inverse
// lookups resolve name collisions to the lowest code.
func sortedCodes(cat string, m map[string]string) ([]codeEntry, error) {
	out := make([]codeEntry, 0, len(m))
	for k, v := range m {
		code, err := parseHexCode(k)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat, err)
		}
		out = append(out, codeEntry{code: code, name: v})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].code, out[j].code
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return string(a) < string(b)
	})
	return out, nil
}

func fillByteTable(cat string, entries []codeEntry, fwd map[byte]string, inv map[string]byte) error {
	for _, e := range entries {
		if len(e.code) != 1 {
			return fmt.Errorf("category %s: code %X is not a single byte", cat, e.code)
		}
		fwd[e.code[0]] = e.name
		if _, dup := inv[e.name]; !dup {
			inv[e.name] = e.code[0]
		}
	}
	return nil
}

// parseHexCode turns "8140", "0x0B" or "b" into raw big-endian bytes. The key
// width is significant: "0001" is two bytes, "01" is one.
func parseHexCode(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if s == "" {
		return nil, fmt.Errorf("empty code")
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	code, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("code %q: %w", s, err)
	}
	return code, nil
}

// Glyph returns the text for a double-byte code.
func (ts *TableSet) Glyph(code uint16) (string, bool) {
	s, ok := ts.glyphs[code]
	return s, ok
}

// GlyphCode returns the double-byte code for a glyph string.
func (ts *TableSet) GlyphCode(text string) (uint16, bool) {
	c, ok := ts.glyphByText[text]
	return c, ok
}

// TagName returns the name of a control byte.
func (ts *TableSet) TagName(code byte) (string, bool) {
	s, ok := ts.tags[code]
	return s, ok
}

// TagCode returns the control byte for a tag name.
func (ts *TableSet) TagCode(name string) (byte, bool) {
	c, ok := ts.tagByName[name]
	return c, ok
}

// IsIntroducer reports whether b opens a "(param)" tag.
func (ts *TableSet) IsIntroducer(b byte) bool {
	for _, c := range ts.introducers {
		if c == b {
			return true
		}
	}
	return false
}

// Button returns the glyph name for the byte following 0x81.
func (ts *TableSet) Button(code byte) (string, bool) {
	s, ok := ts.buttons[code]
	return s, ok
}

// ButtonCode is the inverse of Button.
func (ts *TableSet) ButtonCode(name string) (byte, bool) {
	c, ok := ts.buttonByName[name]
	return c, ok
}

// ParamName resolves the parameter of an introducer tag to its display name.
func (ts *TableSet) ParamName(introducer byte, param []byte) (string, bool) {
	tag, ok := ts.tags[introducer]
	if !ok {
		return "", false
	}
	pt, ok := ts.params[strings.ToUpper(tag)]
	if !ok {
		return "", false
	}
	name, ok := pt.byCode[string(param)]
	return name, ok
}

// LookupParam finds a parameter name across introducer categories, in
// introducer byte order.
func (ts *TableSet) LookupParam(name string) (introducer byte, param []byte, ok bool) {
	for _, b := range ts.introducers {
		pt, found := ts.params[strings.ToUpper(ts.tags[b])]
		if !found {
			continue
		}
		if code, hit := pt.byName[name]; hit {
			return b, code, true
		}
	}
	return 0, nil, false
}

// LookupPrefixed finds a name in the 0x81-prefixed categories.
func (ts *TableSet) LookupPrefixed(name string) ([]byte, bool) {
	for _, cat := range ts.prefixedOrder {
		if code, ok := ts.prefixed[cat].byName[name]; ok {
			return code, true
		}
	}
	return nil, false
}

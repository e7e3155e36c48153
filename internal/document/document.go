// Package document reads and writes the XML translation documents edited
// by translators. One document covers one binary or script member.
package document

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Root element names.
const (
	RootMenu  = "MenuText"
	RootScene = "SceneText"
)

// Entry statuses.
const (
	StatusToDo         = "To Do"
	StatusEditing      = "Editing"
	StatusProofreading = "Proofreading"
	StatusProblematic  = "Problematic"
	StatusDone         = "Done"
)

// Document is a parsed translation document.
type Document struct {
	XMLName xml.Name
	Groups  []*Group `xml:"Strings"`
}

// Group holds the entries of one section.
type Group struct {
	Section string   `xml:"Section"`
	Entries []*Entry `xml:"Entry"`
}

// Embed lists the hi/lo instruction offsets of an entry.
type Embed struct {
	Hi string `xml:"hi"`
	Lo string `xml:"lo"`
}

// Entry is one translatable text.
type Entry struct {
	// PointerOffset is a comma-separated list of decimal pointer offsets.
	PointerOffset string `xml:"PointerOffset"`
	EmbedOffset   *Embed `xml:"EmbedOffset,omitempty"`
	MaxLength     int    `xml:"MaxLength,omitempty"`
	// VoiceID is the voice cue split off the front of the original text.
	VoiceID      string `xml:"VoiceId,omitempty"`
	JapaneseText string `xml:"JapaneseText"`
	EnglishText  string `xml:"EnglishText"`
	Notes        string `xml:"Notes"`
	StructID     *int   `xml:"StructId,omitempty"`
	SpeakerID    *int   `xml:"SpeakerId,omitempty"`
	ID           int    `xml:"Id"`
	Status       string `xml:"Status"`
}

// New returns an empty document with the given root element.
func New(root string) *Document {
	return &Document{XMLName: xml.Name{Local: root}}
}

// AddGroup appends a section and returns it.
func (d *Document) AddGroup(section string) *Group {
	g := &Group{Section: section}
	d.Groups = append(d.Groups, g)
	return g
}

// Group returns the first group with the given section name.
func (d *Document) Group(section string) (*Group, bool) {
	for _, g := range d.Groups {
		if g.Section == section {
			return g, true
		}
	}
	return nil, false
}

// Entries returns every entry in document order.
func (d *Document) Entries() []*Entry {
	var out []*Entry
	for _, g := range d.Groups {
		out = append(out, g.Entries...)
	}
	return out
}

// Parse decodes a document.
func Parse(data []byte) (*Document, error) {
	var d Document
	if err := xml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &d, nil
}

// Marshal encodes a document with an XML declaration and indentation.
func (d *Document) Marshal() ([]byte, error) {
	out, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// Load reads a document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Save writes a document to disk.
func (d *Document) Save(path string) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// FormatOffsets renders offsets as "12,40,96".
func FormatOffsets(offs []int) string {
	parts := make([]string, len(offs))
	for i, o := range offs {
		parts[i] = strconv.Itoa(o)
	}
	return strings.Join(parts, ",")
}

// ParseOffsets is the inverse of FormatOffsets. Blank input yields nil.
func ParseOffsets(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parse offset %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Offsets parses PointerOffset.
func (e *Entry) Offsets() ([]int, error) {
	return ParseOffsets(e.PointerOffset)
}

// Embedded parses EmbedOffset into paired hi/lo offsets.
func (e *Entry) Embedded() (hi, lo []int, err error) {
	if e.EmbedOffset == nil {
		return nil, nil, nil
	}
	if hi, err = ParseOffsets(e.EmbedOffset.Hi); err != nil {
		return nil, nil, err
	}
	if lo, err = ParseOffsets(e.EmbedOffset.Lo); err != nil {
		return nil, nil, err
	}
	if len(hi) != len(lo) {
		return nil, nil, fmt.Errorf("entry %d: %d hi offsets but %d lo offsets", e.ID, len(hi), len(lo))
	}
	return hi, lo, nil
}

package pipeline

import (
	"encoding/binary"
	"testing"

	"toh-translator/internal/document"
	"toh-translator/internal/tables"
)

func testPipeline(t *testing.T, statuses ...string) *Pipeline {
	t.Helper()
	ts, err := tables.Parse(map[string]map[string]string{
		"TAGS":  {"03": "color"},
		"COLOR": {"01": "Red"},
	}, tables.DefaultIntroducers)
	if err != nil {
		t.Fatalf("tables.Parse: %v", err)
	}
	p, err := New(ts, Options{Statuses: document.NewStatuses(statuses...), Workers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func putString(b []byte, off int, s string) {
	copy(b[off:], s)
	b[off+len(s)] = 0
}

func u32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }

func findEntry(t *testing.T, doc *document.Document, text string) *document.Entry {
	t.Helper()
	for _, e := range doc.Entries() {
		if e.JapaneseText == text {
			return e
		}
	}
	t.Fatalf("no entry with text %q", text)
	return nil
}

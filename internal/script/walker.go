package script

import (
	"bytes"
	"errors"
	"fmt"

	"toh-translator/internal/binbuf"
	"toh-translator/internal/textcodec"
)

const (
	// stringsBaseField holds the start of the strings area.
	stringsBaseField = 0x0C
	// codeStart is the first byte after the fixed header.
	codeStart = 0x10
)

// ErrRecordMismatch marks a reference whose record does not fit its rule.
var ErrRecordMismatch = errors.New("record does not match its section rule")

// Walker scans script binaries with an ordered rule table.
type Walker struct {
	codec *textcodec.Codec
	rules []Rule
}

// NewWalker compiles rules. An empty rule list selects DefaultRules.
func NewWalker(codec *textcodec.Codec, rules []Rule) (*Walker, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, fmt.Errorf("compile struct rules: %w", err)
	}
	return &Walker{codec: codec, rules: compiled}, nil
}

// Result is everything one walk found.
type Result struct {
	// StringsBase is the offset all record and text pointers are relative to.
	StringsBase int
	// Records are the parsed records, in code order.
	Records []*StructRecord
	// Speakers are the distinct speaker texts, in first-seen order.
	Speakers []*TextEntry
	// Texts are the distinct record texts, in first-seen order.
	Texts []*TextEntry
	// Skipped holds one ErrRecordMismatch per reference that did not parse.
	Skipped []error
}

// Entries returns speakers followed by texts.
func (r *Result) Entries() []*TextEntry {
	out := make([]*TextEntry, 0, len(r.Speakers)+len(r.Texts))
	out = append(out, r.Speakers...)
	return append(out, r.Texts...)
}

// StringsBase reads the strings area offset from a script header.
func StringsBase(data []byte) (int, error) {
	v, err := binbuf.New(data).Uint32(stringsBaseField)
	if err != nil {
		return 0, fmt.Errorf("read strings base: %w", err)
	}
	if v < codeStart || int64(v) > int64(len(data)) {
		return 0, fmt.Errorf("strings base 0x%X outside file of 0x%X bytes", v, len(data))
	}
	return int(v), nil
}

// Walk scans the code region once, front to back. Bytes that match no rule
// are skipped; references whose record fails to parse are collected in
// Result.Skipped. Only a broken header is an error.
func (w *Walker) Walk(data []byte) (*Result, error) {
	base, err := StringsBase(data)
	if err != nil {
		return nil, err
	}
	st := &walk{
		w:        w,
		data:     data,
		buf:      binbuf.New(data),
		base:     base,
		speakers: make(map[int]*TextEntry),
		texts:    make(map[int]*TextEntry),
		res:      &Result{StringsBase: base},
	}

	for pos := codeStart; pos < base; {
		rule, target, ok := st.match(pos)
		if !ok {
			pos++
			continue
		}
		ptrOff := pos + len(rule.sig)
		rec, err := st.record(rule, ptrOff, target)
		if err != nil {
			st.res.Skipped = append(st.res.Skipped, err)
		} else {
			rec.ID = len(st.res.Records) + 1
			st.res.Records = append(st.res.Records, rec)
		}
		pos = ptrOff + 4
	}
	return st.res, nil
}

type walk struct {
	w    *Walker
	data []byte
	buf  *binbuf.Buffer
	base int

	nextID   int
	speakers map[int]*TextEntry
	texts    map[int]*TextEntry
	res      *Result
}

// valid reports whether v, relative to the strings base, lands in the file.
func (st *walk) valid(v uint32) bool {
	return v != 0 && int64(st.base)+int64(v) < int64(len(st.data))
}

func (st *walk) match(pos int) (Rule, int, bool) {
	for _, r := range st.w.rules {
		end := pos + len(r.sig)
		if end+4 > st.base || !bytes.Equal(st.data[pos:end], r.sig) {
			continue
		}
		v, err := st.buf.Uint32(end)
		if err != nil || !st.valid(v) {
			continue
		}
		return r, st.base + int(v), true
	}
	return Rule{}, 0, false
}

type textField struct {
	ptrOff int
	target int
}

func (st *walk) mismatch(r Rule, ptrOff, off int, reason string) error {
	return fmt.Errorf("%w: %s record at 0x%X (pointer at 0x%X): %s", ErrRecordMismatch, r.Section, off, ptrOff, reason)
}

// record reads the fields first and registers text entries only once the
// whole record has matched.
func (st *walk) record(r Rule, ptrOff, off int) (*StructRecord, error) {
	rec := &StructRecord{Section: r.Section, Direct: r.Direct, PointerOffset: ptrOff, Offset: off}
	if r.Direct {
		rec.Texts = []*TextEntry{st.entry(st.texts, &st.res.Texts, off, ptrOff)}
		return rec, nil
	}

	pos := off
	speaker, err := st.buf.Uint32(pos)
	if err != nil {
		return nil, st.mismatch(r, ptrOff, off, "truncated speaker field")
	}
	if speaker != 0 && !st.valid(speaker) {
		return nil, st.mismatch(r, ptrOff, off, fmt.Sprintf("speaker pointer 0x%X out of range", speaker))
	}
	speakerField := pos
	pos += 4

	for i := 0; i < r.Unknowns; i++ {
		v, err := st.buf.Uint32(pos)
		if err != nil {
			return nil, st.mismatch(r, ptrOff, off, "truncated opaque fields")
		}
		rec.Unknowns = append(rec.Unknowns, v)
		pos += 4
	}

	var fields []textField
	for r.MaxTexts == 0 || len(fields) < r.MaxTexts {
		v, err := st.buf.Uint32(pos)
		if err != nil || !st.valid(v) {
			break
		}
		fields = append(fields, textField{ptrOff: pos, target: st.base + int(v)})
		pos += 4
	}
	if len(fields) == 0 {
		return nil, st.mismatch(r, ptrOff, off, "no text pointers")
	}

	for len(rec.EndMarkers) < r.EndMarkers {
		v, err := st.buf.Uint32(pos)
		if err != nil || v != 0 {
			break
		}
		rec.EndMarkers = append(rec.EndMarkers, v)
		pos += 4
	}

	if speaker != 0 {
		rec.Speaker = st.entry(st.speakers, &st.res.Speakers, st.base+int(speaker), speakerField)
	}
	for _, f := range fields {
		rec.Texts = append(rec.Texts, st.entry(st.texts, &st.res.Texts, f.target, f.ptrOff))
	}
	return rec, nil
}

// entry returns the entry for the text at off, creating it on first sight.
// Pointers to the same physical text share one entry.
func (st *walk) entry(seen map[int]*TextEntry, list *[]*TextEntry, off, ptrOff int) *TextEntry {
	if e, ok := seen[off]; ok {
		e.addPointer(ptrOff)
		return e
	}
	run, n := st.w.codec.Decode(st.data, off)
	st.nextID++
	e := &TextEntry{
		ID:             st.nextID,
		Offset:         off,
		Text:           run,
		Size:           n,
		PointerOffsets: []int{ptrOff},
	}
	seen[off] = e
	*list = append(*list, e)
	return e
}

// Package pipeline ties the codec, walker, allocator and container code
// into the extract and insert operations run by the command line.
package pipeline

import (
	"errors"
	"fmt"

	"toh-translator/internal/compress"
	"toh-translator/internal/document"
	"toh-translator/internal/script"
	"toh-translator/internal/tables"
	"toh-translator/internal/textcodec"
)

// Options configure a Pipeline. Zero values fall back to defaults.
type Options struct {
	// Rules replace the default struct rule table when set.
	Rules []script.Rule
	// Statuses select the translations to insert. Defaults to Done only.
	Statuses document.Statuses
	// Workers bounds per-member parallelism.
	Workers int
	// LZ handles compressed archive members.
	LZ compress.Codec
	// Alignment of rebuilt container members.
	Alignment int
}

// Pipeline runs extraction and insertion for one table set.
type Pipeline struct {
	codec    *textcodec.Codec
	walker   *script.Walker
	statuses document.Statuses
	workers  int
	lz       compress.Codec
	align    int
}

// New creates a Pipeline.
func New(ts *tables.TableSet, opts Options) (*Pipeline, error) {
	codec := textcodec.New(ts)
	walker, err := script.NewWalker(codec, opts.Rules)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		codec:    codec,
		walker:   walker,
		statuses: opts.Statuses,
		workers:  opts.Workers,
		lz:       opts.LZ,
		align:    opts.Alignment,
	}
	if p.statuses == nil {
		p.statuses = document.NewStatuses()
	}
	if p.workers <= 0 {
		p.workers = 1
	}
	if p.lz == nil {
		p.lz = compress.NewExternal("")
	}
	return p, nil
}

// Codec returns the text codec.
func (p *Pipeline) Codec() *textcodec.Codec { return p.codec }

// Statuses returns the insertion status set.
func (p *Pipeline) Statuses() document.Statuses { return p.statuses }

// ErrFileUnchanged marks an insertion that gave up and returned its input
// as it was.
var ErrFileUnchanged = errors.New("file left unchanged")

// entryBytes encodes the text to insert for e, terminator included.
func (p *Pipeline) entryBytes(e *document.Entry, pad bool) ([]byte, error) {
	return p.encodeEntry(e, p.statuses.InsertText(e), pad)
}

// originalBytes encodes the original text of e, voice cue included.
func (p *Pipeline) originalBytes(e *document.Entry, pad bool) ([]byte, error) {
	text := e.JapaneseText
	if e.VoiceID != "" {
		text = "<" + e.VoiceID + ">" + text
	}
	return p.encodeEntry(e, text, pad)
}

func (p *Pipeline) encodeEntry(e *document.Entry, text string, pad bool) ([]byte, error) {
	b, err := p.codec.EncodeString(text)
	if err != nil {
		var unknown *textcodec.UnknownTagError
		if errors.As(err, &unknown) {
			unknown.EntryID = e.ID
		}
		return nil, fmt.Errorf("encode entry %d: %w", e.ID, err)
	}
	if pad {
		b = textcodec.PadAligned(b)
	}
	return append(b, 0), nil
}

// newEntry builds a document entry for a decoded text, splitting off a
// leading voice cue.
func newEntry(id int, run textcodec.TextRun, offsets []int) *document.Entry {
	voice, rest := textcodec.SplitVoice(run)
	return &document.Entry{
		PointerOffset: document.FormatOffsets(offsets),
		VoiceID:       voice,
		JapaneseText:  rest.String(),
		ID:            id,
		Status:        document.StatusToDo,
	}
}

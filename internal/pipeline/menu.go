package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"toh-translator/internal/binbuf"
	"toh-translator/internal/config"
	"toh-translator/internal/document"
	"toh-translator/internal/merge"
	"toh-translator/internal/relocate"
	"toh-translator/internal/script"
	"toh-translator/internal/textcodec"

	"github.com/rs/zerolog/log"
)

// menuText collects every reference to one distinct text of a section.
type menuText struct {
	run    textcodec.TextRun
	ptrs   []int
	hi, lo []int
}

// ExtractMenu reads every section of a menu binary into a document. Within
// a section, references that decode to the same text share one entry.
func (p *Pipeline) ExtractMenu(data []byte, mf config.MenuFile) (*document.Document, error) {
	doc := document.New(document.RootMenu)
	buf := binbuf.New(data)
	id := 1

	for _, sec := range mf.Sections {
		var ptrs []script.Pointer
		if sec.HasTable() {
			found, err := script.ReadStylePointers(data, sec.PointersStart, sec.PointersEnd, mf.BaseOffset, sec.Style)
			if err != nil {
				return nil, fmt.Errorf("%s/%s: %w", mf.FriendlyName, sec.Section, err)
			}
			ptrs = found
		}
		for _, off := range sec.PointersAlone {
			v, err := buf.Uint32(off)
			if err != nil {
				return nil, fmt.Errorf("%s/%s: lone pointer at 0x%X: %w", mf.FriendlyName, sec.Section, off, err)
			}
			target := int64(v) - mf.BaseOffset
			if target < 0 || target >= int64(len(data)) {
				log.Warn().Str("section", sec.Section).Int("offset", off).Msg("Lone pointer outside file, skipping")
				continue
			}
			ptrs = append(ptrs, script.Pointer{Offset: off, Target: int(target)})
		}

		var order []string
		texts := make(map[string]*menuText)
		add := func(target int) *menuText {
			run, _ := p.codec.Decode(data, target)
			key := run.String()
			t, ok := texts[key]
			if !ok {
				t = &menuText{run: run}
				texts[key] = t
				order = append(order, key)
			}
			return t
		}

		for _, ptr := range ptrs {
			t := add(ptr.Target)
			t.ptrs = append(t.ptrs, ptr.Offset)
		}
		for _, pair := range sec.Embedded {
			hi, err := buf.Uint16(pair.Hi)
			if err != nil {
				return nil, fmt.Errorf("%s/%s: high half at 0x%X: %w", mf.FriendlyName, sec.Section, pair.Hi, err)
			}
			lo, err := buf.Uint16(pair.Lo)
			if err != nil {
				return nil, fmt.Errorf("%s/%s: low half at 0x%X: %w", mf.FriendlyName, sec.Section, pair.Lo, err)
			}
			target := int64(relocate.JoinValue(hi, lo)) - mf.BaseOffset
			if target < 0 || target >= int64(len(data)) {
				log.Warn().Str("section", sec.Section).Int("hi", pair.Hi).Int("lo", pair.Lo).Msg("Embedded pointer outside file, skipping")
				continue
			}
			t := add(int(target))
			t.hi = append(t.hi, pair.Hi)
			t.lo = append(t.lo, pair.Lo)
		}

		g := doc.AddGroup(sec.Section)
		maxLen := script.StyleMaxLength(sec.Style)
		for _, key := range order {
			t := texts[key]
			e := newEntry(id, t.run, t.ptrs)
			e.MaxLength = maxLen
			if len(t.hi) > 0 {
				e.EmbedOffset = &document.Embed{Hi: document.FormatOffsets(t.hi), Lo: document.FormatOffsets(t.lo)}
			}
			g.Entries = append(g.Entries, e)
			id++
		}
	}
	return doc, nil
}

// InsertResult summarises one insertion.
type InsertResult struct {
	Data        []byte
	Placed      int
	Truncations []relocate.Truncation
	// Kept lists the sections placed again with their original texts
	// because the translations did not fit.
	Kept []string
}

// InsertMenu writes the document's texts back into a copy of data. Sections
// are allocated in order from one shared set of safe areas. Every reference
// is patched to a placed copy, so a safe area may always be reused: an
// entry that cannot be encoded, or a section that runs out of space, is
// placed again with its original text. When even that fails, data is
// returned unchanged along with ErrFileUnchanged.
func (p *Pipeline) InsertMenu(data []byte, mf config.MenuFile, doc *document.Document) (*InsertResult, error) {
	secs, errs, err := p.collectItems(doc, mf.Pad)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w: %w", mf.FriendlyName, ErrFileUnchanged, err))
		return &InsertResult{Data: append([]byte(nil), data...)}, errors.Join(errs...)
	}
	buf := binbuf.New(append([]byte(nil), data...))
	res, allocErrs := allocateSections(buf, data, mf.FriendlyName, mf.Pools(), mf.BaseOffset, secs)
	return res, errors.Join(append(errs, allocErrs...)...)
}

// sectionItems are the items of one document group. originals carries the
// same references with the original texts.
type sectionItems struct {
	name      string
	items     []relocate.Item
	originals []relocate.Item
}

// collectItems builds the items of every group. Entry errors that were
// worked around are returned in the slice; the error is for an entry
// whose references cannot be patched at all.
func (p *Pipeline) collectItems(doc *document.Document, pad bool) ([]sectionItems, []error, error) {
	var secs []sectionItems
	var errs []error
	for _, g := range doc.Groups {
		sec, itemErrs, err := p.menuItems(g, pad)
		errs = append(errs, itemErrs...)
		if err != nil {
			return nil, errs, err
		}
		secs = append(secs, sec)
	}
	return secs, errs, nil
}

// allocateSections places each section in turn, carrying the pool state
// forward. A section that does not fit is placed from its original texts
// instead. If those do not fit either, nothing is written and the result
// holds a copy of orig.
func allocateSections(buf *binbuf.Buffer, orig []byte, file string, pools []relocate.Pool, base int64, secs []sectionItems) (*InsertResult, []error) {
	res := &InsertResult{}
	var errs []error
	for _, sec := range secs {
		rep, err := relocate.Allocate(buf, sec.name, pools, base, sec.items)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", file, err))
			rep, err = relocate.Allocate(buf, sec.name, pools, base, sec.originals)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w: original texts of section %s: %w", file, ErrFileUnchanged, sec.name, err))
				return &InsertResult{Data: append([]byte(nil), orig...)}, errs
			}
			log.Warn().Str("file", file).Str("section", sec.name).Msg("Section does not fit, keeping its original texts")
			res.Kept = append(res.Kept, sec.name)
		}
		pools = rep.Remaining
		res.Placed += len(rep.Placements)
		res.Truncations = append(res.Truncations, rep.Truncations...)
	}

	for _, tr := range res.Truncations {
		log.Warn().Str("file", file).Int("entry", tr.EntryID).
			Int("original", tr.Original).Int("truncated", tr.Truncated).Msg("Text too long for its slot, truncating")
	}
	res.Data = buf.Bytes()
	return res, errs
}

func (p *Pipeline) menuItems(g *document.Group, pad bool) (sectionItems, []error, error) {
	sec := sectionItems{name: g.Section}
	var errs []error
	for _, e := range g.Entries {
		offs, err := e.Offsets()
		if err != nil {
			return sec, errs, fmt.Errorf("section %s: %w", g.Section, err)
		}
		hi, lo, err := e.Embedded()
		if err != nil {
			return sec, errs, fmt.Errorf("section %s: %w", g.Section, err)
		}
		orig, err := p.originalBytes(e, pad)
		if err != nil {
			return sec, errs, fmt.Errorf("section %s: original text: %w", g.Section, err)
		}
		data, err := p.entryBytes(e, pad)
		if err != nil {
			errs = append(errs, fmt.Errorf("section %s: %w", g.Section, err))
			data = orig
		}
		sec.items = append(sec.items, entryItems(e, data, offs, hi, lo)...)
		sec.originals = append(sec.originals, entryItems(e, orig, offs, hi, lo)...)
	}
	return sec, errs, nil
}

// entryItems turns one entry into allocator items.
func entryItems(e *document.Entry, data []byte, offs, hi, lo []int) []relocate.Item {
	if e.MaxLength > 0 {
		// fixed slots hold the text itself, one copy per slot
		items := make([]relocate.Item, 0, len(offs))
		for _, off := range offs {
			items = append(items, relocate.Item{ID: e.ID, Data: data, MaxLength: e.MaxLength, FixedOffset: off})
		}
		return items
	}

	it := relocate.Item{ID: e.ID, Data: data}
	for _, off := range offs {
		it.Refs = append(it.Refs, relocate.FlatRef(off))
	}
	for i := range hi {
		it.Refs = append(it.Refs, relocate.HiLoRef(hi[i], lo[i]))
	}
	return []relocate.Item{it}
}

// ExtractMenuFile extracts one descriptor from srcDir and merges the
// translations of the document at savedPath, when it exists.
func (p *Pipeline) ExtractMenuFile(mf config.MenuFile, srcDir, savedPath string) (*document.Document, []merge.StaleKey, error) {
	data, err := os.ReadFile(filepath.Join(srcDir, mf.FilePath))
	if err != nil {
		return nil, nil, fmt.Errorf("read menu file: %w", err)
	}
	doc, err := p.ExtractMenu(data, mf)
	if err != nil {
		return nil, nil, err
	}
	return keepTranslations(doc, savedPath)
}

// InsertMenuFile rebuilds one descriptor into outDir. The output is
// written even when some sections failed, so earlier sections can be
// inspected.
func (p *Pipeline) InsertMenuFile(mf config.MenuFile, srcDir, docPath, outDir string) (*InsertResult, error) {
	data, err := os.ReadFile(filepath.Join(srcDir, mf.FilePath))
	if err != nil {
		return nil, fmt.Errorf("read menu file: %w", err)
	}
	doc, err := document.Load(docPath)
	if err != nil {
		return nil, err
	}

	res, insertErr := p.InsertMenu(data, mf, doc)

	out := filepath.Join(outDir, mf.FilePath)
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(out, res.Data, 0644); err != nil {
		return nil, fmt.Errorf("write menu file: %w", err)
	}
	return res, insertErr
}

// keepTranslations merges the saved document into doc when one exists.
func keepTranslations(doc *document.Document, savedPath string) (*document.Document, []merge.StaleKey, error) {
	if savedPath == "" {
		return doc, nil, nil
	}
	if _, err := os.Stat(savedPath); errors.Is(err, os.ErrNotExist) {
		return doc, nil, nil
	}
	saved, err := document.Load(savedPath)
	if err != nil {
		return nil, nil, err
	}
	res := merge.Merge(doc, saved)
	log.Debug().Str("path", savedPath).Int("merged", res.Merged).Int("stale", len(res.Stale)).Msg("Kept translations")
	return doc, res.Stale, nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"toh-translator/internal/binbuf"
	"toh-translator/internal/compress"
	"toh-translator/internal/document"
	"toh-translator/internal/filewalker"
	"toh-translator/internal/relocate"
	"toh-translator/internal/script"
	"toh-translator/internal/worker"

	"github.com/rs/zerolog/log"
)

// SpeakerSection is the group holding the distinct speaker names.
const SpeakerSection = "Speaker"

// ExtractScript walks a script member and builds its document: the
// speakers first, then one group per record section. A text shared by
// several records is listed once, under the first record that uses it.
func (p *Pipeline) ExtractScript(data []byte) (*document.Document, *script.Result, error) {
	res, err := p.walker.Walk(data)
	if err != nil {
		return nil, nil, err
	}
	doc := document.New(document.RootScene)
	if len(res.Records) == 0 {
		return doc, res, nil
	}

	if len(res.Speakers) > 0 {
		g := doc.AddGroup(SpeakerSection)
		for _, sp := range res.Speakers {
			g.Entries = append(g.Entries, newEntry(sp.ID, sp.Text, sp.PointerOffsets))
		}
	}

	listed := make(map[*script.TextEntry]bool)
	for _, rec := range res.Records {
		g, ok := doc.Group(rec.Section)
		if !ok {
			g = doc.AddGroup(rec.Section)
		}
		for _, t := range rec.Texts {
			if listed[t] {
				continue
			}
			listed[t] = true
			e := newEntry(t.ID, t.Text, t.PointerOffsets)
			if !rec.Direct {
				structID := rec.ID
				e.StructID = &structID
				if rec.Speaker != nil {
					speakerID := rec.Speaker.ID
					e.SpeakerID = &speakerID
				}
			}
			g.Entries = append(g.Entries, e)
		}
	}
	return doc, res, nil
}

// InsertScript appends every re-encoded text after the existing data and
// points the document's references at the new copies. Script pointers are
// relative to the strings base.
func (p *Pipeline) InsertScript(data []byte, doc *document.Document) (*InsertResult, error) {
	base, err := script.StringsBase(data)
	if err != nil {
		return nil, err
	}
	secs, errs, err := p.collectItems(doc, false)
	if err != nil {
		errs = append(errs, fmt.Errorf("script: %w: %w", ErrFileUnchanged, err))
		return &InsertResult{Data: append([]byte(nil), data...)}, errors.Join(errs...)
	}
	buf := binbuf.New(append([]byte(nil), data...))

	total := 0
	for _, sec := range secs {
		for _, it := range sec.items {
			total += len(it.Data)
		}
	}
	pool := relocate.Pool{Start: buf.Grow(total), Free: total}

	res, allocErrs := allocateSections(buf, data, "script", []relocate.Pool{pool}, -int64(base), secs)
	return res, errors.Join(append(errs, allocErrs...)...)
}

// ScriptOutcome is what extracting one member produced.
type ScriptOutcome struct {
	Member  string
	Output  string
	Entries int
	Skipped int
	Stale   int
}

// ExtractScripts extracts every script member under dir into outDir, one
// document per member, keeping translations from documents already in
// outDir. Members without records produce no document.
func (p *Pipeline) ExtractScripts(ctx context.Context, dir, outDir string) ([]ScriptOutcome, error) {
	files, err := filewalker.NewWalker(filewalker.KindScript).Walk(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	pool := worker.NewPool(p.workers, func(ctx context.Context, f filewalker.FileEntry) (ScriptOutcome, error) {
		return p.extractScriptFile(ctx, f, outDir)
	})
	tasks := pool.Execute(ctx, files)

	var outcomes []ScriptOutcome
	var errs []error
	for _, t := range tasks {
		if t.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Input.Path, t.Err))
			continue
		}
		outcomes = append(outcomes, t.Result)
	}
	return outcomes, errors.Join(errs...)
}

func (p *Pipeline) extractScriptFile(ctx context.Context, f filewalker.FileEntry, outDir string) (ScriptOutcome, error) {
	out := ScriptOutcome{Member: f.Path}
	data, err := p.readMember(ctx, f.Path)
	if err != nil {
		return out, err
	}
	doc, res, err := p.ExtractScript(data)
	if err != nil {
		return out, err
	}
	out.Skipped = len(res.Skipped)
	for _, s := range res.Skipped {
		log.Debug().Err(s).Str("member", f.Stem()).Msg("Skipped record")
	}
	out.Entries = len(doc.Entries())
	if out.Entries == 0 {
		return out, nil
	}

	path := filepath.Join(outDir, f.Stem()+".xml")
	doc, stale, err := keepTranslations(doc, path)
	if err != nil {
		return out, err
	}
	out.Stale = len(stale)
	if err := doc.Save(path); err != nil {
		return out, err
	}
	out.Output = path
	return out, nil
}

// InsertScriptFile rebuilds one member with the texts of docPath. A
// compressed member is decompressed first and compressed again on output.
func (p *Pipeline) InsertScriptFile(ctx context.Context, member, docPath, out string) (*InsertResult, error) {
	raw, err := os.ReadFile(member)
	if err != nil {
		return nil, fmt.Errorf("read script member: %w", err)
	}
	_, _, compressed := compress.Sniff(raw)
	data := raw
	if compressed {
		if data, err = p.lz.Decompress(ctx, raw); err != nil {
			return nil, err
		}
	}

	doc, err := document.Load(docPath)
	if err != nil {
		return nil, err
	}
	res, insertErr := p.InsertScript(data, doc)
	if res == nil {
		return nil, insertErr
	}

	outData := res.Data
	if compressed {
		if outData, err = p.lz.Compress(ctx, res.Data); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(out, outData, 0644); err != nil {
		return nil, fmt.Errorf("write script member: %w", err)
	}
	return res, insertErr
}

// readMember reads a member file, decompressing it when it is LZ packed.
func (p *Pipeline) readMember(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read member: %w", err)
	}
	if _, _, ok := compress.Sniff(data); ok {
		return p.lz.Decompress(ctx, data)
	}
	return data, nil
}

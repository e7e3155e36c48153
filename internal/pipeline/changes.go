package pipeline

import (
	"sort"
	"strings"

	"toh-translator/internal/document"
	"toh-translator/internal/filewalker"
)

// Changes lists the documents with something to insert and the archives
// that contain them.
type Changes struct {
	Documents []string
	Archives  []string
}

// FindChanges scans the documents under dir. A document counts when at
// least one entry is selected for insertion.
func (p *Pipeline) FindChanges(dir string) (*Changes, error) {
	files, err := filewalker.NewWalker(filewalker.KindDocument).Walk(dir)
	if err != nil {
		return nil, err
	}

	ch := &Changes{}
	archives := make(map[string]bool)
	for _, f := range files {
		doc, err := document.Load(f.Path)
		if err != nil {
			return nil, err
		}
		if !p.statuses.HasSelected(doc) {
			continue
		}
		ch.Documents = append(ch.Documents, f.Path)
		archives[ArchiveName(f.Stem())] = true
	}
	for name := range archives {
		ch.Archives = append(ch.Archives, name)
	}
	sort.Strings(ch.Archives)
	return ch, nil
}

// ArchiveName maps a script member name to the archive holding it. The
// "P" variant of a member lives in the same archive as the plain one.
func ArchiveName(stem string) string {
	if len(stem) > 1 {
		return strings.TrimSuffix(stem, "P")
	}
	return stem
}

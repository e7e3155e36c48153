package filewalker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Kind classifies a discovered file.
type Kind int

const (
	KindScript Kind = iota + 1
	KindDocument
	KindContainer
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindDocument:
		return "document"
	case KindContainer:
		return "container"
	}
	return "unknown"
}

// SupportedExtensions maps lower-cased extensions to the kind they hold.
var SupportedExtensions = map[string]Kind{
	".scp": KindScript,
	".xml": KindDocument,
	".b":   KindContainer,
	".pak": KindContainer,
}

// Walker traverses directories and keeps files of the requested kinds.
type Walker struct {
	kinds map[Kind]bool
}

// NewWalker creates a Walker for the given kinds. No kinds means all.
func NewWalker(kinds ...Kind) *Walker {
	w := &Walker{kinds: make(map[Kind]bool)}
	for _, k := range kinds {
		w.kinds[k] = true
	}
	return w
}

// FileEntry represents a discovered file ready for processing.
type FileEntry struct {
	Path string
	Ext  string
	Kind Kind
}

// Stem is the file name without its extension.
func (e FileEntry) Stem() string {
	base := filepath.Base(e.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Walk discovers all supported files under the given root directory, sorted
// by path.
func (w *Walker) Walk(root string) ([]FileEntry, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", root)
	}

	var entries []FileEntry

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Error walking path")
			return nil
		}

		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		kind, ok := SupportedExtensions[ext]
		if !ok || (len(w.kinds) > 0 && !w.kinds[kind]) {
			return nil
		}

		entries = append(entries, FileEntry{Path: path, Ext: ext, Kind: kind})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	log.Info().Int("count", len(entries)).Str("root", root).Msg("Discovered files")
	return entries, nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"toh-translator/internal/relocate"
	"toh-translator/internal/script"

	"gopkg.in/yaml.v3"
)

// Project is the per-checkout project file.
type Project struct {
	Paths       Paths         `yaml:"paths"`
	Archive     ArchiveConfig `yaml:"archive"`
	StructRules []script.Rule `yaml:"struct_rules"`
	Menu        []MenuFile    `yaml:"menu"`
}

// Paths locates the working directories. Relative paths are resolved
// against the project file's directory.
type Paths struct {
	Tables       string `yaml:"tables"`
	Original     string `yaml:"original"`
	Extracted    string `yaml:"extracted"`
	MenuOriginal string `yaml:"menu_original"`
	MenuXML      string `yaml:"menu_xml"`
	Build        string `yaml:"build"`
}

// ArchiveConfig holds container defaults.
type ArchiveConfig struct {
	Alignment int `yaml:"alignment"`
}

// MenuFile describes one binary with pointer tables.
type MenuFile struct {
	FriendlyName string        `yaml:"friendly_name"`
	FilePath     string        `yaml:"file_path"`
	BaseOffset   int64         `yaml:"base_offset"`
	Pad          bool          `yaml:"pad"`
	SafeAreas    []SafeArea    `yaml:"safe_areas"`
	Sections     []MenuSection `yaml:"sections"`
}

// SafeArea is a byte range [Start, End) that may be overwritten with
// relocated text.
type SafeArea struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// Pools converts the safe areas to allocation pools.
func (m MenuFile) Pools() []relocate.Pool {
	pools := make([]relocate.Pool, 0, len(m.SafeAreas))
	for _, a := range m.SafeAreas {
		pools = append(pools, relocate.Pool{Start: a.Start, Free: a.End - a.Start})
	}
	return pools
}

// MenuSection is one pointer table inside a menu file.
type MenuSection struct {
	Section       string     `yaml:"section"`
	PointersStart int        `yaml:"pointers_start"`
	PointersEnd   int        `yaml:"pointers_end"`
	Style         string     `yaml:"style"`
	PointersAlone []int      `yaml:"pointers_alone"`
	Embedded      []HiLoPair `yaml:"embedded"`
}

// HiLoPair locates the two halves of an instruction-embedded pointer.
type HiLoPair struct {
	Hi int `yaml:"hi"`
	Lo int `yaml:"lo"`
}

// HasTable reports whether the section reads a pointer table.
func (s MenuSection) HasTable() bool { return s.Style != "" && s.PointersEnd > s.PointersStart }

// LoadProject reads a project file. JSON is accepted as well.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project file %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for _, s := range []*string{
		&p.Paths.Tables, &p.Paths.Original, &p.Paths.Extracted,
		&p.Paths.MenuOriginal, &p.Paths.MenuXML, &p.Paths.Build,
	} {
		if *s != "" && !filepath.IsAbs(*s) {
			*s = filepath.Join(dir, *s)
		}
	}

	for _, m := range p.Menu {
		if m.FriendlyName == "" || m.FilePath == "" {
			return nil, fmt.Errorf("project file %s: menu entry needs friendly_name and file_path", path)
		}
		for _, a := range m.SafeAreas {
			if a.End <= a.Start {
				return nil, fmt.Errorf("project file %s: %s: safe area [0x%X, 0x%X) is empty", path, m.FriendlyName, a.Start, a.End)
			}
		}
	}
	return &p, nil
}

// MenuFile returns the descriptor with the given friendly name.
func (p *Project) MenuFile(name string) (MenuFile, bool) {
	for _, m := range p.Menu {
		if m.FriendlyName == name {
			return m, true
		}
	}
	return MenuFile{}, false
}

// Package tagcheck compares the control tags of an original text with those
// of its translation.
package tagcheck

import (
	"regexp"
	"sort"

	"toh-translator/internal/document"
	"toh-translator/internal/textutil"
)

// tagMatch stores a detected tag position.
type tagMatch struct {
	start, end int
	value      string
}

// patterns detect control constructs in tagged strings.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`<[^<>{}\n]+>`),      // <Red>, <icon:5>, <button:Circle>
	regexp.MustCompile(`\{[0-9A-Fa-f]{2}\}`), // {0B}
}

// Tags returns the control tags of text in order of appearance.
func Tags(text string) []string {
	var all []tagMatch
	for _, p := range patterns {
		for _, loc := range p.FindAllStringIndex(text, -1) {
			all = append(all, tagMatch{start: loc[0], end: loc[1], value: text[loc[0]:loc[1]]})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].start < all[j].start })

	var out []string
	lastEnd := -1
	for _, m := range all {
		if m.start >= lastEnd {
			out = append(out, m.value)
			lastEnd = m.end
		}
	}
	return out
}

// Diff lists the tags one side has more of than the other.
type Diff struct {
	Missing []string
	Extra   []string
}

// Empty reports whether both texts carry the same tags.
func (d Diff) Empty() bool { return len(d.Missing) == 0 && len(d.Extra) == 0 }

// Compare counts tags on both sides. Order is not significant since
// translations may reorder a sentence.
func Compare(original, translated string) Diff {
	counts := make(map[string]int)
	for _, t := range Tags(original) {
		counts[t]++
	}
	for _, t := range Tags(translated) {
		counts[t]--
	}

	var d Diff
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for n := counts[k]; n > 0; n-- {
			d.Missing = append(d.Missing, k)
		}
		for n := counts[k]; n < 0; n++ {
			d.Extra = append(d.Extra, k)
		}
	}
	return d
}

// Issue is one entry that failed a check.
type Issue struct {
	Section string
	ID      int
	Diff    Diff
	// Untranslated is set when the translation still holds Japanese text.
	Untranslated bool
}

// Check inspects every translated entry of d.
func Check(d *document.Document) []Issue {
	var issues []Issue
	for _, g := range d.Groups {
		for _, e := range g.Entries {
			if e.EnglishText == "" {
				continue
			}
			is := Issue{
				Section:      g.Section,
				ID:           e.ID,
				Diff:         Compare(e.JapaneseText, e.EnglishText),
				Untranslated: textutil.ContainsJapanese(e.EnglishText),
			}
			if !is.Diff.Empty() || is.Untranslated {
				issues = append(issues, is)
			}
		}
	}
	return issues
}

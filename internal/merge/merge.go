// Package merge carries translations from a previously saved document
// into a freshly extracted one.
package merge

import "toh-translator/internal/document"

// StaleKey is a saved entry whose original text no longer appears in the
// fresh document. It is reported, never merged.
type StaleKey struct {
	Section string
	ID      int
	Text    string
}

// Result summarizes a merge.
type Result struct {
	// Merged counts fresh entries that received saved fields.
	Merged int
	// Stale lists saved entries with no fresh counterpart, in saved order.
	Stale []StaleKey
}

// Merge updates fresh in place. Entries are matched by their original text;
// a match copies translation, status and notes. Unmatched fresh entries keep
// empty translations and the To Do status. When saved holds the same
// original text twice, the first one wins.
func Merge(fresh, saved *document.Document) Result {
	bySource := make(map[string]*document.Entry)
	for _, e := range saved.Entries() {
		if _, dup := bySource[e.JapaneseText]; !dup {
			bySource[e.JapaneseText] = e
		}
	}

	var res Result
	live := make(map[string]bool)
	for _, e := range fresh.Entries() {
		live[e.JapaneseText] = true
		old, ok := bySource[e.JapaneseText]
		if !ok {
			if e.Status == "" {
				e.Status = document.StatusToDo
			}
			continue
		}
		e.EnglishText = old.EnglishText
		e.Status = old.Status
		e.Notes = old.Notes
		res.Merged++
	}

	reported := make(map[string]bool)
	for _, g := range saved.Groups {
		for _, e := range g.Entries {
			if live[e.JapaneseText] || reported[e.JapaneseText] {
				continue
			}
			reported[e.JapaneseText] = true
			res.Stale = append(res.Stale, StaleKey{Section: g.Section, ID: e.ID, Text: e.JapaneseText})
		}
	}
	return res
}

package document

// Statuses is the set of statuses whose translation is inserted.
type Statuses map[string]bool

// NewStatuses returns Done plus extra.
func NewStatuses(extra ...string) Statuses {
	s := Statuses{StatusDone: true}
	for _, v := range extra {
		if v != "" {
			s[v] = true
		}
	}
	return s
}

// Selected reports whether the entry's translation should be inserted.
func (s Statuses) Selected(e *Entry) bool {
	return s[e.Status] && e.EnglishText != ""
}

// InsertText is the tagged text to encode for e: the translation when
// selected, otherwise the original. A split-off voice cue is put back in
// front.
func (s Statuses) InsertText(e *Entry) string {
	text := e.JapaneseText
	if s.Selected(e) {
		text = e.EnglishText
	}
	if e.VoiceID != "" {
		text = "<" + e.VoiceID + ">" + text
	}
	return text
}

// HasSelected reports whether any entry of d would insert a translation.
func (s Statuses) HasSelected(d *Document) bool {
	for _, e := range d.Entries() {
		if s.Selected(e) {
			return true
		}
	}
	return false
}

package script

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Rule classifies a code-region byte pattern as a record reference. The
// pattern is followed by a 32-bit pointer, relative to the strings base.
type Rule struct {
	// Section names the records matched by this rule.
	Section string `yaml:"section"`
	// Signature is the hex byte pattern preceding the pointer, e.g. "0E10000C04".
	Signature string `yaml:"signature"`
	// Direct rules point straight at a text, with no record around it.
	Direct bool `yaml:"direct"`
	// Unknowns is the number of opaque 32-bit fields after the speaker.
	Unknowns int `yaml:"unknowns"`
	// MaxTexts caps the text pointers read; 0 reads until an invalid one.
	MaxTexts int `yaml:"max_texts"`
	// EndMarkers is the most trailing zero fields a record may carry.
	EndMarkers int `yaml:"end_markers"`

	sig []byte
}

// DefaultRules is the rule table used when the project file has none.
// Order matters: the first matching rule wins.
//
// The table only knows the direct form of Misc strings. Some scripts also
// hold string records with a zero speaker and a run of text pointers; those
// need a project rule with unknowns 0 and max_texts 0, which reads texts
// until the first invalid pointer.
func DefaultRules() []Rule {
	return []Rule{
		{Section: "Story", Signature: "0E10000C04", Unknowns: 2, MaxTexts: 1},
		{Section: "Story", Signature: "0010000C04", Unknowns: 2, MaxTexts: 1},
		{Section: "NPC", Signature: "0110000C04", Unknowns: 6, EndMarkers: 1},
		{Section: "Misc", Signature: "F8", Direct: true},
	}
}

// compileRules decodes signatures once.
func compileRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		sig, err := hex.DecodeString(strings.ReplaceAll(r.Signature, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("rule %s: signature %q: %w", r.Section, r.Signature, err)
		}
		if len(sig) == 0 {
			return nil, fmt.Errorf("rule %s: empty signature", r.Section)
		}
		if r.Unknowns < 0 || r.MaxTexts < 0 || r.EndMarkers < 0 {
			return nil, fmt.Errorf("rule %s: negative field count", r.Section)
		}
		r.sig = sig
		out[i] = r
	}
	return out, nil
}

package tables

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleJSON = `{
  "TBL":    {"889F": "亜", "8140": "　", "E040": "…"},
  "TAGS":   {"03": "color", "04": "name", "0B": "icon"},
  "BUTTON": {"A0": "Circle", "A1": "Cross"},
  "COLOR":  {"01": "Red", "02": "Blue"},
  "NAME":   {"0001": "Kor", "0002": "Hisui"},
  "MARK":   {"F5": "Star"}
}`

func loadSample(t *testing.T) *TableSet {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tbl.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	ts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return ts
}

func TestLoadForwardAndInverse(t *testing.T) {
	ts := loadSample(t)

	if got, ok := ts.Glyph(0x889F); !ok || got != "亜" {
		t.Fatalf("Glyph(0x889F) = %q, %v; want 亜", got, ok)
	}
	if code, ok := ts.GlyphCode("…"); !ok || code != 0xE040 {
		t.Fatalf("GlyphCode(…) = 0x%X, %v; want 0xE040", code, ok)
	}
	if code, ok := ts.TagCode("icon"); !ok || code != 0x0B {
		t.Fatalf("TagCode(icon) = 0x%X, %v; want 0x0B", code, ok)
	}
	if name, ok := ts.Button(0xA1); !ok || name != "Cross" {
		t.Fatalf("Button(0xA1) = %q, %v; want Cross", name, ok)
	}
}

func TestParamWidthIsSignificant(t *testing.T) {
	ts := loadSample(t)

	if name, ok := ts.ParamName(0x04, []byte{0x00, 0x02}); !ok || name != "Hisui" {
		t.Fatalf("ParamName(04, 0002) = %q, %v; want Hisui", name, ok)
	}
	if _, ok := ts.ParamName(0x04, []byte{0x02}); ok {
		t.Fatal("ParamName(04, 02) resolved a two-byte entry from a one-byte parameter")
	}

	intro, param, ok := ts.LookupParam("Blue")
	if !ok || intro != 0x03 || len(param) != 1 || param[0] != 0x02 {
		t.Fatalf("LookupParam(Blue) = %X %X %v; want 03 02 true", intro, param, ok)
	}
}

func TestPrefixedCategories(t *testing.T) {
	ts := loadSample(t)

	code, ok := ts.LookupPrefixed("Star")
	if !ok || len(code) != 1 || code[0] != 0xF5 {
		t.Fatalf("LookupPrefixed(Star) = %X, %v; want F5", code, ok)
	}
	// icon has no parameter table, but it is still an introducer
	if !ts.IsIntroducer(0x0B) {
		t.Fatal("0x0B should be an introducer")
	}
	if _, _, ok := ts.LookupParam("Star"); ok {
		t.Fatal("MARK entries must not resolve as introducer parameters")
	}
}

func TestParseRejectsBadCodes(t *testing.T) {
	cases := map[string]map[string]map[string]string{
		"wide tag":   {"TAGS": {"0101": "x"}},
		"wide glyph": {"TBL": {"010203": "x"}},
		"not hex":    {"BUTTON": {"ZZ": "x"}},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(raw, DefaultIntroducers); err == nil {
				t.Fatal("Parse succeeded, want error")
			}
		})
	}
}

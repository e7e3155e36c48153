package script

import (
	"fmt"
	"regexp"
	"strconv"

	"toh-translator/internal/binbuf"
)

// Pointer is one reference read from a pointer column.
type Pointer struct {
	// Offset is where the pointer lives, or the text itself for T steps.
	Offset int
	// Target is the absolute offset of the text.
	Target int
}

var styleToken = regexp.MustCompile(`[PT]|\d+`)

type styleStep struct {
	kind byte // 'P', 'T' or 'N'
	n    int
}

// parseStyle splits a style such as "P4" or "T16" into steps. The style must
// advance the cursor, or reading would never end.
func parseStyle(style string) ([]styleStep, error) {
	var steps []styleStep
	advances := false
	consumed := 0
	for _, loc := range styleToken.FindAllStringIndex(style, -1) {
		if loc[0] != consumed {
			return nil, fmt.Errorf("style %q: unexpected %q", style, style[consumed:loc[0]])
		}
		consumed = loc[1]
		tok := style[loc[0]:loc[1]]
		switch tok {
		case "P":
			steps = append(steps, styleStep{kind: 'P'})
			advances = true
		case "T":
			steps = append(steps, styleStep{kind: 'T'})
		default:
			n, err := strconv.Atoi(tok)
			if err != nil {
				return nil, fmt.Errorf("style %q: %w", style, err)
			}
			steps = append(steps, styleStep{kind: 'N', n: n})
			advances = advances || n > 0
		}
	}
	if consumed != len(style) {
		return nil, fmt.Errorf("style %q: unexpected %q", style, style[consumed:])
	}
	if !advances {
		return nil, fmt.Errorf("style %q never advances", style)
	}
	return steps, nil
}

// StyleMaxLength returns n for a fixed-slot style "T<n>...", else 0.
func StyleMaxLength(style string) int {
	if len(style) < 2 || style[0] != 'T' {
		return 0
	}
	end := 1
	for end < len(style) && style[end] >= '0' && style[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(style[1:end])
	if err != nil {
		return 0
	}
	return n
}

// ReadStylePointers walks [start, end) repeating style until the cursor
// passes end. P reads a 32-bit pointer and yields value-base; a zero P is
// skipped when base is set. T yields the cursor itself. A number skips
// that many bytes. Targets outside data are dropped.
func ReadStylePointers(data []byte, start, end int, base int64, style string) ([]Pointer, error) {
	if start < 0 || start > end || end > len(data) {
		return nil, fmt.Errorf("pointer range [0x%X, 0x%X) outside file of 0x%X bytes", start, end, len(data))
	}
	steps, err := parseStyle(style)
	if err != nil {
		return nil, err
	}

	buf := binbuf.New(data)
	inFile := func(v int64) bool { return v >= 0 && v < int64(len(data)) }

	var out []Pointer
	pos := start
	for pos < end {
		for _, s := range steps {
			switch s.kind {
			case 'P':
				v, err := buf.Uint32(pos)
				if err != nil {
					return out, nil
				}
				pos += 4
				if base != 0 && v == 0 {
					continue
				}
				if target := int64(v) - base; pos-4 < end && inFile(target) {
					out = append(out, Pointer{Offset: pos - 4, Target: int(target)})
				}
			case 'T':
				if pos < end {
					out = append(out, Pointer{Offset: pos, Target: pos})
				}
			default:
				pos += s.n
			}
		}
	}
	return out, nil
}

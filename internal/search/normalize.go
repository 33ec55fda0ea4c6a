package search

import (
	"regexp"
	"strings"
)

var blankRunRE = regexp.MustCompile(`\n{3,}`)

// NormalizeText prepares raw document text for chunking: it strips a UTF-8
// BOM, converts CRLF and bare CR line endings to LF, drops control
// characters other than tab and newline, and collapses runs of three or
// more newlines down to two. AddDocument applies it before splitting, so
// stored chunk offsets always refer to the normalized text.
//
// Deterministic and total; the empty string maps to itself.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "\ufeff")

	var b strings.Builder
	b.Grow(len(s))
	prevCR := false
	for _, r := range s {
		switch {
		case r == '\r':
			b.WriteByte('\n')
			prevCR = true
			continue
		case r == '\n':
			if !prevCR {
				b.WriteByte('\n')
			}
		case r == '\t':
			b.WriteByte('\t')
		case r < 0x20 || r == 0x7f:
			// other control characters are dropped
		default:
			b.WriteRune(r)
		}
		prevCR = false
	}

	return blankRunRE.ReplaceAllString(b.String(), "\n\n")
}

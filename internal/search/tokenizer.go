package search

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// tokenRE matches maximal runs of Unicode letters and digits. Everything
// else (punctuation, underscore, whitespace) separates tokens and is
// discarded.
var tokenRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenizer normalizes raw text into lowercase index terms. The zero value
// keeps every token; setting MinTokenLength discards short tokens to shrink
// the index. Whatever the setting, it must be applied identically when
// indexing and when querying, or recall degrades silently.
type Tokenizer struct {
	// MinTokenLength drops tokens shorter than this many runes. Zero or
	// negative keeps everything.
	MinTokenLength int
}

// Tokens returns the lowercase alphanumeric tokens of s in order of
// appearance, duplicates preserved. It never fails: empty input, or input
// with no alphanumeric runs, yields nil.
func (t Tokenizer) Tokens(s string) []string {
	if s == "" {
		return nil
	}
	words := tokenRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	if t.MinTokenLength <= 0 {
		return words
	}
	kept := words[:0]
	for _, w := range words {
		if utf8.RuneCountInString(w) >= t.MinTokenLength {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// TokenSet returns the distinct tokens of s. Nil when s has no tokens.
func (t Tokenizer) TokenSet(s string) map[string]struct{} {
	toks := t.Tokens(s)
	if len(toks) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(toks))
	for _, w := range toks {
		set[w] = struct{}{}
	}
	return set
}

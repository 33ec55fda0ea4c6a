package search

import (
	"fmt"
	"unicode"
)

// Span is one bounded segment of a document produced by Chunker.Split.
// Start and End are byte offsets into the original text after trimming, so
// Text == original[Start:End] always holds.
type Span struct {
	// Index is the zero-based position of the span within its document,
	// counting only emitted (non-empty) spans.
	Index int
	// Start is the byte offset of the first rune of the trimmed span.
	Start int
	// End is the byte offset one past the last rune of the trimmed span.
	End int
	// Text is the trimmed window text.
	Text string
	// Length is the rune count of Text.
	Length int
}

// Chunker splits document text into overlapping windows of a fixed rune
// width. Windows are trimmed of surrounding whitespace; windows that are
// empty after trimming are dropped without consuming an index.
type Chunker struct {
	size      int
	overlap   int
	maxChunks int
}

// NewChunker validates the window geometry up front. An overlap greater
// than or equal to the window size can never make forward progress, so it
// is rejected here as a configuration error rather than detected mid-split.
// maxChunks bounds the number of emitted spans per document; zero or
// negative means unbounded.
func NewChunker(size, overlap, maxChunks int) (Chunker, error) {
	if size <= 0 {
		return Chunker{}, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidChunking, size)
	}
	if overlap < 0 {
		return Chunker{}, fmt.Errorf("%w: overlap %d must not be negative", ErrInvalidChunking, overlap)
	}
	if overlap >= size {
		return Chunker{}, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidChunking, overlap, size)
	}
	return Chunker{size: size, overlap: overlap, maxChunks: maxChunks}, nil
}

// Split walks text left to right in windows of the configured size,
// emitting one Span per non-empty trimmed window. Consecutive windows share
// the configured overlap (except at document end). Deterministic: identical
// input and configuration always yield identical boundaries.
func (c Chunker) Split(text string) []Span {
	if text == "" {
		return nil
	}

	// Rune-index the text once so windows are measured in characters while
	// span offsets stay byte positions into the original string.
	runes := make([]rune, 0, len(text))
	offs := make([]int, 0, len(text)+1)
	for i, r := range text {
		offs = append(offs, i)
		runes = append(runes, r)
	}
	offs = append(offs, len(text))

	var out []Span
	n := len(runes)
	start := 0
	for start < n {
		if c.maxChunks > 0 && len(out) >= c.maxChunks {
			break
		}
		end := start + c.size
		if end > n {
			end = n
		}

		ts, te := start, end
		for ts < te && unicode.IsSpace(runes[ts]) {
			ts++
		}
		for te > ts && unicode.IsSpace(runes[te-1]) {
			te--
		}
		if ts < te {
			out = append(out, Span{
				Index:  len(out),
				Start:  offs[ts],
				End:    offs[te],
				Text:   text[offs[ts]:offs[te]],
				Length: te - ts,
			})
		}

		if end == n {
			break
		}
		start = end - c.overlap
	}
	return out
}

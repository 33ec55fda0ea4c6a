package search

import "errors"

// Every failure the engine can report is one of these sentinels (possibly
// wrapped with detail). Callers match with errors.Is; nothing in this
// package panics across its boundary.
var (
	// ErrInvalidChunking reports window geometry that cannot terminate
	// (overlap >= size) or non-positive sizes. Surfaced at construction
	// time only, never during a call.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrEmptyDocumentID reports a blank or whitespace-only document id.
	ErrEmptyDocumentID = errors.New("document id is empty")

	// ErrEmptyDocument reports text that yields zero chunks after trimming.
	ErrEmptyDocument = errors.New("document has no indexable text")

	// ErrTooManyDocuments reports that the document ceiling is reached.
	// The collection is unchanged; the caller may retry after Clear.
	ErrTooManyDocuments = errors.New("document limit reached")

	// ErrTooManyChunks reports that storing the document would exceed the
	// total chunk ceiling. The collection is unchanged.
	ErrTooManyChunks = errors.New("chunk limit reached")
)

// Package search implements the in-memory lexical retrieval engine behind
// the question-answering API: document chunking, inverted indexing, and
// multi-signal relevance scoring. It is intentionally small and
// dependency-free, but engineered with production-grade ergonomics:
//
//   - No logging in the library (callers decide how/what to log)
//   - Clear, documented types and functional options (Option pattern)
//   - Unicode-aware tokenization with a configurable minimum token length
//   - Bounded memory: every container has a configured capacity ceiling
//   - Deterministic scoring and sorting (stable order for ties)
//   - Single-writer, many-reader concurrency via an RWMutex
//   - Total operations: every failure is a typed error, never a panic
//
// The aggregate root is Collection, which owns documents, their chunks and
// the inverted index, and exposes the four public operations AddDocument,
// Search, Stats and Clear.
package search

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Engine defaults; every one can be overridden with an Option.
const (
	defaultChunkSize        = 500
	defaultChunkOverlap     = 100
	defaultMaxDocuments     = 100
	defaultMaxChunksPerDoc  = 1000
	defaultMaxTotalChunks   = 20000
	defaultMaxDocumentChars = 100000
	defaultMaxIndexedTerms  = 50000
	defaultThreshold        = 0.01

	// defaultMaxResults applies when Search is asked for zero or fewer
	// results; maxResultsCeiling clamps any request to bound response size
	// and scoring cost.
	defaultMaxResults = 3
	maxResultsCeiling = 5
)

// ----------------------------------------------------------------------------
// Options

// Option customizes a Collection at construction time. Invalid values are
// ignored in favor of the defaults, except for chunking geometry, which
// NewCollection validates as a whole.
type Option func(*settings)

type settings struct {
	chunkSize        int
	chunkOverlap     int
	maxDocuments     int
	maxChunksPerDoc  int
	maxTotalChunks   int
	maxDocumentChars int
	maxIndexedTerms  int
	minTokenLength   int
	defaultThreshold float64
	weights          Weights
}

func defaultSettings() settings {
	return settings{
		chunkSize:        defaultChunkSize,
		chunkOverlap:     defaultChunkOverlap,
		maxDocuments:     defaultMaxDocuments,
		maxChunksPerDoc:  defaultMaxChunksPerDoc,
		maxTotalChunks:   defaultMaxTotalChunks,
		maxDocumentChars: defaultMaxDocumentChars,
		maxIndexedTerms:  defaultMaxIndexedTerms,
		minTokenLength:   0,
		defaultThreshold: defaultThreshold,
		weights:          DefaultWeights(),
	}
}

func WithChunkSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

func WithChunkOverlap(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.chunkOverlap = n
		}
	}
}

func WithMaxDocuments(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxDocuments = n
		}
	}
}

func WithMaxChunksPerDocument(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxChunksPerDoc = n
		}
	}
}

func WithMaxTotalChunks(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxTotalChunks = n
		}
	}
}

func WithMaxDocumentChars(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxDocumentChars = n
		}
	}
}

func WithMaxIndexedTerms(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxIndexedTerms = n
		}
	}
}

func WithMinTokenLength(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.minTokenLength = n
		}
	}
}

// WithDefaultThreshold sets the score floor used when Search is called with
// a negative threshold.
func WithDefaultThreshold(t float64) Option {
	return func(s *settings) {
		if t >= 0 {
			s.defaultThreshold = t
		}
	}
}

// WithWeights replaces the scoring weights wholesale. Callers usually start
// from DefaultWeights and adjust.
func WithWeights(w Weights) Option {
	return func(s *settings) {
		s.weights = w
	}
}

// ----------------------------------------------------------------------------
// Types

// DocumentInfo is the stored summary of one ingested document.
type DocumentInfo struct {
	ID         string
	Metadata   map[string]any
	CharCount  int
	ChunkCount int
	Truncated  bool
}

// AddResult summarizes a successful AddDocument call.
type AddResult struct {
	DocumentID string
	ChunkCount int
	CharCount  int
	// Truncated reports that the text exceeded the per-document character
	// ceiling and only the prefix was kept.
	Truncated bool
	// Replaced reports that an existing document with the same id was
	// overwritten rather than merged.
	Replaced bool
}

// Stats reports the exact current size of a collection.
type Stats struct {
	Documents int
	Chunks    int
	Terms     int
}

// Limits reports the configured ceilings and chunking geometry, fixed for
// the lifetime of the collection.
type Limits struct {
	ChunkSize            int
	ChunkOverlap         int
	MaxDocuments         int
	MaxChunksPerDocument int
	MaxTotalChunks       int
	MaxDocumentChars     int
	MaxIndexedTerms      int
	MinTokenLength       int
	DefaultThreshold     float64
}

// ScoredChunk is one search hit: the stored chunk plus its composite score
// and the per-signal breakdown that produced it. Start and End locate the
// chunk in its document's normalized text.
type ScoredChunk struct {
	DocumentID string
	ChunkID    string
	ChunkIndex int
	Start      int
	End        int
	Text       string
	Score      float64
	Breakdown  Breakdown
	Metadata   map[string]any
}

type document struct {
	id         string
	text       string
	meta       map[string]any
	charCount  int
	chunkCount int
	truncated  bool
}

type chunk struct {
	id        string
	docID     string
	index     int
	start     int
	end       int
	text      string
	lower     string
	positions map[string][]int
	meta      map[string]any
}

// chunkID derives the deterministic id of a chunk from its document id and
// zero-based position.
func chunkID(docID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, index)
}

// ----------------------------------------------------------------------------
// Collection

// Collection owns documents, chunks and the inverted index for one session.
// Mutating operations (AddDocument, Clear) take the write lock; Search,
// Stats and ListDocuments run under the read lock and may proceed
// concurrently. The zero value is not usable; construct with NewCollection.
type Collection struct {
	mu      sync.RWMutex
	cfg     settings
	tok     Tokenizer
	chunker Chunker
	scorer  Scorer

	docs     map[string]*document
	docOrder []string
	chunks   []*chunk
	index    *invertedIndex
}

// NewCollection builds an empty collection. The only possible failure is
// invalid chunking geometry (ErrInvalidChunking), which callers should
// treat as a fatal configuration error.
func NewCollection(opts ...Option) (*Collection, error) {
	cfg := defaultSettings()
	for _, o := range opts {
		o(&cfg)
	}
	chunker, err := NewChunker(cfg.chunkSize, cfg.chunkOverlap, cfg.maxChunksPerDoc)
	if err != nil {
		return nil, err
	}
	tok := Tokenizer{MinTokenLength: cfg.minTokenLength}
	return &Collection{
		cfg:     cfg,
		tok:     tok,
		chunker: chunker,
		scorer:  NewScorer(cfg.weights, tok),
		docs:    make(map[string]*document),
		index:   newInvertedIndex(cfg.maxIndexedTerms),
	}, nil
}

// AddDocument normalizes, chunks and indexes text under the given id.
// Oversized text is truncated to the configured prefix (reported via
// AddResult.Truncated, never an error). Re-adding an existing id overwrites
// the previous document. Failures are atomic: a rejected add leaves the
// collection exactly as it was.
func (c *Collection) AddDocument(id, text string, metadata map[string]any) (AddResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return AddResult{}, ErrEmptyDocumentID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	old, replacing := c.docs[id]
	if !replacing && c.cfg.maxDocuments > 0 && len(c.docs) >= c.cfg.maxDocuments {
		return AddResult{}, fmt.Errorf("%w (%d stored)", ErrTooManyDocuments, len(c.docs))
	}

	text = NormalizeText(text)
	chars := utf8.RuneCountInString(text)
	truncated := false
	if c.cfg.maxDocumentChars > 0 && chars > c.cfg.maxDocumentChars {
		text = string([]rune(text)[:c.cfg.maxDocumentChars])
		chars = c.cfg.maxDocumentChars
		truncated = true
	}

	spans := c.chunker.Split(text)
	if len(spans) == 0 {
		return AddResult{}, ErrEmptyDocument
	}

	stored := len(c.chunks)
	if replacing {
		stored -= old.chunkCount
	}
	if c.cfg.maxTotalChunks > 0 && stored+len(spans) > c.cfg.maxTotalChunks {
		return AddResult{}, fmt.Errorf("%w (%d stored, %d incoming)", ErrTooManyChunks, len(c.chunks), len(spans))
	}

	// All checks passed; from here the add cannot fail.
	if replacing {
		c.dropDocumentLocked(id)
	}

	meta := copyMetadata(metadata)
	c.docs[id] = &document{
		id:         id,
		text:       text,
		meta:       meta,
		charCount:  chars,
		chunkCount: len(spans),
		truncated:  truncated,
	}
	if !replacing {
		c.docOrder = append(c.docOrder, id)
	}
	for _, sp := range spans {
		ch := &chunk{
			id:        chunkID(id, sp.Index),
			docID:     id,
			index:     sp.Index,
			start:     sp.Start,
			end:       sp.End,
			text:      sp.Text,
			lower:     strings.ToLower(sp.Text),
			positions: tokenPositions(c.tok.Tokens(sp.Text)),
			meta:      meta,
		}
		c.chunks = append(c.chunks, ch)
		c.index.insert(ch.id, ch.positions)
	}

	return AddResult{
		DocumentID: id,
		ChunkCount: len(spans),
		CharCount:  chars,
		Truncated:  truncated,
		Replaced:   replacing,
	}, nil
}

// dropDocumentLocked removes a document's chunks and index postings. The
// caller holds the write lock and keeps docOrder consistent itself (a
// replaced document retains its original insertion slot).
func (c *Collection) dropDocumentLocked(id string) {
	kept := c.chunks[:0]
	for _, ch := range c.chunks {
		if ch.docID == id {
			c.index.remove(ch.id, ch.positions)
			continue
		}
		kept = append(kept, ch)
	}
	for i := len(kept); i < len(c.chunks); i++ {
		c.chunks[i] = nil
	}
	c.chunks = kept
	delete(c.docs, id)
}

// Search scores every candidate chunk against query and returns up to
// maxResults hits ordered by score descending, ties broken by chunk
// insertion order. maxResults <= 0 selects the default of 3; requests above
// the ceiling of 5 are clamped. A negative threshold selects the configured
// default. A query that tokenizes to nothing, or an empty collection,
// yields an empty result, never an error.
func (c *Collection) Search(query string, maxResults int, threshold float64) []ScoredChunk {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if maxResults > maxResultsCeiling {
		maxResults = maxResultsCeiling
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if threshold < 0 {
		threshold = c.cfg.defaultThreshold
	}
	if len(c.chunks) == 0 {
		return nil
	}
	q := c.scorer.prepareQuery(query)
	if len(q.seq) == 0 {
		return nil
	}

	// While the term cap has never been hit the index is authoritative, so
	// only chunks sharing at least one query term need scoring. Once capped,
	// some terms are unindexed and every chunk is scanned instead. Results
	// are identical either way: chunks with zero token overlap never
	// qualify.
	var candidates map[string]struct{}
	if !c.index.capped {
		candidates = make(map[string]struct{})
		for _, t := range q.distinct {
			for id := range c.index.lookup(t) {
				candidates[id] = struct{}{}
			}
		}
		if len(candidates) == 0 {
			return nil
		}
	}

	type hit struct {
		ch    *chunk
		b     Breakdown
		score float64
	}
	buf := make([]hit, 0, min(len(c.chunks), 64))
	for _, ch := range c.chunks {
		if candidates != nil {
			if _, ok := candidates[ch.id]; !ok {
				continue
			}
		}
		b, matched := c.scorer.scoreAgainst(q, ch.lower, ch.positions)
		if matched == 0 {
			continue
		}
		score := b.Total()
		if score < threshold {
			continue
		}
		buf = append(buf, hit{ch: ch, b: b, score: score})
	}
	if len(buf) == 0 {
		return nil
	}

	// buf is already in insertion order, so a stable sort on score alone
	// gives the documented tie-break.
	sort.SliceStable(buf, func(a, b int) bool { return buf[a].score > buf[b].score })

	if maxResults > len(buf) {
		maxResults = len(buf)
	}
	out := make([]ScoredChunk, maxResults)
	for i := 0; i < maxResults; i++ {
		h := buf[i]
		out[i] = ScoredChunk{
			DocumentID: h.ch.docID,
			ChunkID:    h.ch.id,
			ChunkIndex: h.ch.index,
			Start:      h.ch.start,
			End:        h.ch.end,
			Text:       h.ch.text,
			Score:      h.score,
			Breakdown:  h.b,
			Metadata:   h.ch.meta,
		}
	}
	return out
}

// Stats reflects the current in-memory state exactly. Valid in any state.
func (c *Collection) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Documents: len(c.docs),
		Chunks:    len(c.chunks),
		Terms:     c.index.terms(),
	}
}

// ListDocuments returns document summaries in insertion order.
func (c *Collection) ListDocuments() []DocumentInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]DocumentInfo, 0, len(c.docOrder))
	for _, id := range c.docOrder {
		d, ok := c.docs[id]
		if !ok {
			continue
		}
		out = append(out, DocumentInfo{
			ID:         d.id,
			Metadata:   d.meta,
			CharCount:  d.charCount,
			ChunkCount: d.chunkCount,
			Truncated:  d.truncated,
		})
	}
	return out
}

// Limits reports the collection's configured ceilings.
func (c *Collection) Limits() Limits {
	return Limits{
		ChunkSize:            c.cfg.chunkSize,
		ChunkOverlap:         c.cfg.chunkOverlap,
		MaxDocuments:         c.cfg.maxDocuments,
		MaxChunksPerDocument: c.cfg.maxChunksPerDoc,
		MaxTotalChunks:       c.cfg.maxTotalChunks,
		MaxDocumentChars:     c.cfg.maxDocumentChars,
		MaxIndexedTerms:      c.cfg.maxIndexedTerms,
		MinTokenLength:       c.cfg.minTokenLength,
		DefaultThreshold:     c.cfg.defaultThreshold,
	}
}

// Clear drops all documents, chunks and postings. Idempotent; always
// succeeds.
func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = make(map[string]*document)
	c.docOrder = nil
	c.chunks = nil
	c.index.clear()
}

// copyMetadata takes a defensive shallow copy so later mutations by the
// caller cannot reach stored state. Chunks share their document's copy.
func copyMetadata(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

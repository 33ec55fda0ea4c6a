package search

// invertedIndex maps normalized terms to the set of chunk ids containing
// them. A cap on distinct terms bounds memory: once reached, new terms are
// silently not indexed. That narrows lookups but never affects scoring
// correctness, because the collection stops using the index as a candidate
// pre-filter the moment the cap has been hit and scans every chunk instead.
//
// Invariant while uncapped: a chunk id appears under term T iff T occurs in
// that chunk's token set. Overwriting a document therefore scrubs its old
// postings via remove before the replacement is inserted.
type invertedIndex struct {
	postings map[string]map[string]struct{}
	maxTerms int
	// capped records that the term ceiling was reached at least once this
	// session. It only resets on clear, because terms dropped while capped
	// may belong to chunks that remain stored.
	capped bool
}

// newInvertedIndex builds an empty index. maxTerms <= 0 means unbounded.
func newInvertedIndex(maxTerms int) *invertedIndex {
	return &invertedIndex{
		postings: make(map[string]map[string]struct{}),
		maxTerms: maxTerms,
	}
}

// insert adds chunkID under every term. Only the keys of positions are
// read; the value slices belong to the chunk.
func (ix *invertedIndex) insert(chunkID string, positions map[string][]int) {
	for term := range positions {
		set, ok := ix.postings[term]
		if !ok {
			if ix.maxTerms > 0 && len(ix.postings) >= ix.maxTerms {
				ix.capped = true
				continue
			}
			set = make(map[string]struct{})
			ix.postings[term] = set
		}
		set[chunkID] = struct{}{}
	}
}

// lookup returns the posting set for term, nil when unknown. The returned
// map is the live set and must not be mutated by callers.
func (ix *invertedIndex) lookup(term string) map[string]struct{} {
	return ix.postings[term]
}

// remove deletes chunkID from every term's posting set. Posting sets that
// become empty are dropped entirely so their term slots are freed.
func (ix *invertedIndex) remove(chunkID string, positions map[string][]int) {
	for term := range positions {
		set, ok := ix.postings[term]
		if !ok {
			continue
		}
		delete(set, chunkID)
		if len(set) == 0 {
			delete(ix.postings, term)
		}
	}
}

// clear drops every posting and re-arms the term cap.
func (ix *invertedIndex) clear() {
	ix.postings = make(map[string]map[string]struct{})
	ix.capped = false
}

// terms reports the number of distinct indexed terms.
func (ix *invertedIndex) terms() int {
	return len(ix.postings)
}

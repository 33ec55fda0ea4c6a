package search

import "strings"

// defaultProximityWindow is the maximum token distance that still earns the
// proximity bonus.
const defaultProximityWindow = 3

// Weights configures the contribution of each relevance signal. Signals are
// listed in decreasing order of their default weight.
type Weights struct {
	// Phrase is the binary bonus for the full query appearing as a
	// contiguous substring of the chunk text.
	Phrase float64
	// Bigram is the binary bonus for any two consecutive query tokens
	// appearing adjacently in the chunk token sequence.
	Bigram float64
	// WordOverlap multiplies the fraction of distinct query tokens found
	// in the chunk token set.
	WordOverlap float64
	// TokenPresence is a fixed increment per distinct query token whose
	// text occurs anywhere in the chunk.
	TokenPresence float64
	// Proximity is an increment per consecutive query-token pair found
	// within ProximityWindow positions of each other in the chunk.
	Proximity float64
	// Jaccard multiplies the set similarity of query and chunk tokens.
	Jaccard float64
	// ProximityWindow is the maximum positional distance for the proximity
	// bonus; zero or negative selects the default of 3.
	ProximityWindow int
}

// DefaultWeights returns the standard signal weighting: phrase-level
// evidence dominates, word coverage fills the middle, and Jaccard acts as a
// low-weight smoothing tie-breaker. Pure Jaccard systematically under-ranks
// short passages that answer the query exactly, which is what the phrase,
// bigram and proximity layers correct for.
func DefaultWeights() Weights {
	return Weights{
		Phrase:          1.0,
		Bigram:          0.5,
		WordOverlap:     0.3,
		TokenPresence:   0.1,
		Proximity:       0.2,
		Jaccard:         0.1,
		ProximityWindow: defaultProximityWindow,
	}
}

// Breakdown itemizes the contribution of every signal to a composite score.
// It is returned with each search hit so callers can explain a ranking.
type Breakdown struct {
	Phrase        float64
	Bigram        float64
	WordOverlap   float64
	TokenPresence float64
	Proximity     float64
	Jaccard       float64
}

// Total is the composite score: the plain sum of all contributions. Scores
// are not normalized; only relative order and comparison against an
// absolute threshold are meaningful.
func (b Breakdown) Total() float64 {
	return b.Phrase + b.Bigram + b.WordOverlap + b.TokenPresence + b.Proximity + b.Jaccard
}

// Scorer computes the composite lexical relevance between a query and a
// chunk of text. Given fixed Weights it is a pure, deterministic function
// of its two text inputs.
type Scorer struct {
	w   Weights
	tok Tokenizer
}

// NewScorer builds a Scorer. The tokenizer must be the same one used to
// index chunks or the token-level signals lose alignment.
func NewScorer(w Weights, tok Tokenizer) Scorer {
	if w.ProximityWindow <= 0 {
		w.ProximityWindow = defaultProximityWindow
	}
	return Scorer{w: w, tok: tok}
}

// Score evaluates query against chunkText from scratch. The collection uses
// the prepared-form internals instead so per-chunk work is not repeated.
func (s Scorer) Score(query, chunkText string) (float64, Breakdown) {
	q := s.prepareQuery(query)
	if len(q.seq) == 0 {
		return 0, Breakdown{}
	}
	b, _ := s.scoreAgainst(q, strings.ToLower(chunkText), tokenPositions(s.tok.Tokens(chunkText)))
	return b.Total(), b
}

// preparedQuery is the reusable form of a query: computed once per search,
// applied to every candidate chunk.
type preparedQuery struct {
	raw      string   // lowercased, trimmed query text
	seq      []string // tokens in order, duplicates preserved
	distinct []string // first-appearance order, no duplicates
	set      map[string]struct{}
}

func (s Scorer) prepareQuery(query string) preparedQuery {
	q := preparedQuery{raw: strings.ToLower(strings.TrimSpace(query))}
	q.seq = s.tok.Tokens(query)
	if len(q.seq) == 0 {
		return q
	}
	q.set = make(map[string]struct{}, len(q.seq))
	q.distinct = make([]string, 0, len(q.seq))
	for _, t := range q.seq {
		if _, seen := q.set[t]; seen {
			continue
		}
		q.set[t] = struct{}{}
		q.distinct = append(q.distinct, t)
	}
	return q
}

// tokenPositions maps each token to its ascending positions in the token
// sequence.
func tokenPositions(tokens []string) map[string][]int {
	if len(tokens) == 0 {
		return nil
	}
	pos := make(map[string][]int, len(tokens))
	for i, t := range tokens {
		pos[t] = append(pos[t], i)
	}
	return pos
}

// scoreAgainst evaluates one prepared query against one prepared chunk.
// lowerText is the chunk text lowercased; positions indexes the chunk's
// token sequence. matched reports |query tokens ∩ chunk tokens|: a chunk
// that shares no token with the query never qualifies for results, whatever
// the threshold.
func (s Scorer) scoreAgainst(q preparedQuery, lowerText string, positions map[string][]int) (b Breakdown, matched int) {
	if len(q.seq) == 0 {
		return b, 0
	}

	// 1. Exact phrase: the whole query as a contiguous substring.
	if q.raw != "" && strings.Contains(lowerText, q.raw) {
		b.Phrase = s.w.Phrase
	}

	// 2. Adjacent bigram: first consecutive query pair found side by side
	// in the chunk wins; further pairs add nothing.
	for i := 0; i+1 < len(q.seq); i++ {
		if adjacentPair(positions[q.seq[i]], positions[q.seq[i+1]]) {
			b.Bigram = s.w.Bigram
			break
		}
	}

	// 3 + 4. Word overlap ratio and per-token presence.
	for _, t := range q.distinct {
		if len(positions[t]) > 0 {
			matched++
		}
		if strings.Contains(lowerText, t) {
			b.TokenPresence += s.w.TokenPresence
		}
	}
	b.WordOverlap = float64(matched) / float64(len(q.distinct)) * s.w.WordOverlap

	// 5. Proximity: each consecutive query pair whose occurrences sit
	// within the window earns the bonus once.
	for i := 0; i+1 < len(q.seq); i++ {
		pa, pb := positions[q.seq[i]], positions[q.seq[i+1]]
		if len(pa) == 0 || len(pb) == 0 {
			continue
		}
		if withinWindow(pa, pb, s.w.ProximityWindow) {
			b.Proximity += s.w.Proximity
		}
	}

	// 6. Jaccard similarity of the two token sets.
	if union := len(q.distinct) + len(positions) - matched; union > 0 {
		b.Jaccard = float64(matched) / float64(union) * s.w.Jaccard
	}
	return b, matched
}

// adjacentPair reports whether some position in pa is immediately followed
// by a position in pb. Both slices are ascending.
func adjacentPair(pa, pb []int) bool {
	i, j := 0, 0
	for i < len(pa) && j < len(pb) {
		switch {
		case pa[i]+1 == pb[j]:
			return true
		case pa[i]+1 < pb[j]:
			i++
		default:
			j++
		}
	}
	return false
}

// withinWindow reports whether any position pair from pa × pb lies within
// the given distance. Both slices are ascending, so a merge walk finds the
// minimum gap without the quadratic scan.
func withinWindow(pa, pb []int, window int) bool {
	i, j := 0, 0
	for i < len(pa) && j < len(pb) {
		d := pa[i] - pb[j]
		if d < 0 {
			d = -d
		}
		if d <= window {
			return true
		}
		if pa[i] < pb[j] {
			i++
		} else {
			j++
		}
	}
	return false
}

// Package services – AnswerService
//
// This file implements AnswerService, the application-level component that
// turns questions into persisted exchanges. It validates inputs, checks
// session ownership, retrieves scored chunks from the session's in-memory
// collection, and persists the question/answer pair atomically.
//
// The answer is the text of the best-scoring chunk; when nothing clears the
// threshold a fixed fallback reply is stored with a nil score. Alongside the
// exchange the service reports a confidence percentage and up to three
// supporting sources with short snippets; those are response-only and never
// written to the database.
//
// Optional enhancement: it also auto-generates a session title from the first
// question when the session still has a default/empty title.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include session/user identifiers and pagination parameters where applicable.

package services

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/domain"
	"github.com/tbourn/go-docqa-backend/internal/repo"
	"github.com/tbourn/go-docqa-backend/internal/search"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// default titles we consider "placeholder" and eligible for auto-generation
	defaultTitleNew      = "New session"
	defaultTitleUntitled = "Untitled"

	// noAnswerReply is stored (with a nil score) when retrieval finds nothing.
	noAnswerReply = "I couldn't find relevant information in the uploaded documents to answer your question."

	// maxSources caps the supporting chunks reported with an answer.
	maxSources = 3

	// snippetMaxRunes caps the source snippet length.
	snippetMaxRunes = 200
)

// Source describes one supporting chunk behind an answer.
type Source struct {
	DocumentID string         `json:"document_id"`
	ChunkID    string         `json:"chunk_id"`
	Score      float64        `json:"score"`
	Snippet    string         `json:"snippet"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// AnswerResult carries the persisted exchange plus the retrieval context
// (confidence, sources) that is reported to the caller but not stored.
type AnswerResult struct {
	Exchange   *domain.Exchange `json:"exchange"`
	Confidence float64          `json:"confidence"`
	Sources    []Source         `json:"sources,omitempty"`
}

// AnswerService coordinates retrieval over per-session collections and
// persistence of question/answer exchanges.
type AnswerService struct {
	DB          *gorm.DB
	Collections *CollectionRegistry

	// Retrieval config. MaxResults and Threshold are passed straight to the
	// collection, which applies its own defaults for out-of-range values.
	MaxResults int
	Threshold  float64

	// Optional guards
	MaxQuestionRunes int
	MaxAnswerRunes   int

	// Title generation config
	TitleLocale language.Tag
	TitleMaxLen int
}

// Ask validates the question, verifies the session, retrieves an answer from
// the session's collection, and persists the exchange atomically. It may
// auto-generate a session title from the first question.
func (s *AnswerService) Ask(ctx context.Context, userID, sessionID, question string) (*AnswerResult, error) {
	tr := otel.Tracer("services/AnswerService")
	ctx, span := tr.Start(ctx, "Ask",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	// Normalize & validate question
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if s.MaxQuestionRunes > 0 && utf8.RuneCountInString(question) > s.MaxQuestionRunes {
		return nil, ErrTooLong
	}

	// Ensure the session exists and belongs to the user
	sess, err := repo.GetSession(ctx, s.DB, sessionID, userID)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	// Retrieve from the session's collection. A session that never received
	// a document has no collection and therefore no hits.
	var hits []search.ScoredChunk
	if col := s.Collections.Get(sessionID); col != nil {
		hits = col.Search(question, s.MaxResults, s.Threshold)
	}
	span.SetAttributes(attribute.Int("retrieval.hits", len(hits)))

	answer, score, confidence, sources := buildAnswer(hits)

	// Persist the exchange (and maybe update the title) in one transaction
	var ex *domain.Exchange
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := repo.CreateExchange(tx, sessionID, question, answer, score)
		if err != nil {
			return err
		}
		ex = e

		// Auto-title if placeholder
		if s.shouldAutoTitle(sess.Title) {
			gen := s.generateTitleFromQuestion(question)
			if gen != "" {
				gen = s.clipTitle(gen)
				if uerr := tx.Model(&domain.Session{}).Where("id = ?", sessionID).Update("title", gen).Error; uerr == nil {
					sess.Title = gen
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Clip answer length if configured
	if s.MaxAnswerRunes > 0 && utf8.RuneCountInString(ex.Answer) > s.MaxAnswerRunes {
		runes := []rune(ex.Answer)
		ex.Answer = string(runes[:s.MaxAnswerRunes])
	}

	return &AnswerResult{Exchange: ex, Confidence: confidence, Sources: sources}, nil
}

// Search runs a raw retrieval over the session's collection and returns the
// scored chunks with their per-signal breakdowns. Nothing is persisted.
// maxResults and threshold are passed through to the collection, which
// applies its defaults for out-of-range values.
func (s *AnswerService) Search(ctx context.Context, userID, sessionID, query string, maxResults int, threshold float64) ([]search.ScoredChunk, error) {
	tr := otel.Tracer("services/AnswerService")
	_, span := tr.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("max_results", maxResults),
		),
	)
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuestion
	}
	if _, err := repo.GetSession(ctx, s.DB, sessionID, userID); err != nil {
		return nil, ErrSessionNotFound
	}

	col := s.Collections.Get(sessionID)
	if col == nil {
		return []search.ScoredChunk{}, nil
	}
	hits := col.Search(query, maxResults, threshold)
	span.SetAttributes(attribute.Int("retrieval.hits", len(hits)))
	return hits, nil
}

// ListPage returns paginated exchanges for a session.
func (s *AnswerService) ListPage(ctx context.Context, sessionID string, page, pageSize int) ([]domain.Exchange, int64, error) {
	tr := otel.Tracer("services/AnswerService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	// Ensure session exists
	var sessCount int64
	if err := s.DB.WithContext(ctx).Model(&domain.Session{}).Where("id = ?", sessionID).Count(&sessCount).Error; err != nil {
		return nil, 0, err
	}
	if sessCount == 0 {
		return nil, 0, ErrSessionNotFound
	}

	total, err := repo.CountExchanges(s.DB.WithContext(ctx), sessionID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Exchange{}, 0, nil
	}

	items, err := repo.ListExchangesPage(s.DB.WithContext(ctx), sessionID, offset, pageSize)
	return items, total, err
}

// buildAnswer derives the stored answer, its score, the confidence percentage
// and the supporting sources from the retrieval hits.
func buildAnswer(hits []search.ScoredChunk) (answer string, score *float64, confidence float64, sources []Source) {
	if len(hits) == 0 {
		return noAnswerReply, nil, 0, nil
	}

	top := hits[0]
	answer = collapseWhitespaceLines(top.Text)
	v := top.Score
	score = &v

	confidence = top.Score * 100
	if confidence > 100 {
		confidence = 100
	}

	n := len(hits)
	if n > maxSources {
		n = maxSources
	}
	sources = make([]Source, 0, n)
	for _, h := range hits[:n] {
		sources = append(sources, Source{
			DocumentID: h.DocumentID,
			ChunkID:    h.ChunkID,
			Score:      h.Score,
			Snippet:    clipSnippet(h.Text, snippetMaxRunes),
			Metadata:   h.Metadata,
		})
	}
	return answer, score, confidence, sources
}

// clipSnippet truncates s to max runes, appending an ellipsis when cut.
func clipSnippet(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

// collapseWhitespaceLines trims each line, collapses internal whitespace to a
// single space, and drops empty lines entirely.
func collapseWhitespaceLines(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	raw := strings.Split(s, "\n")
	out := make([]string, 0, len(raw))
	for _, ln := range raw {
		parts := strings.Fields(ln)
		if len(parts) == 0 {
			continue
		}
		out = append(out, strings.Join(parts, " "))
	}
	return strings.Join(out, "\n")
}

// shouldAutoTitle reports whether the current title is a placeholder.
func (s *AnswerService) shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(defaultTitleNew) || t == strings.ToLower(defaultTitleUntitled)
}

// generateTitleFromQuestion derives a concise title from the question.
func (s *AnswerService) generateTitleFromQuestion(question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return ""
	}
	toks := titleWordRE.FindAllString(strings.ToLower(question), -1)
	if len(toks) == 0 {
		return ""
	}

	titleCaser := cases.Title(s.TitleLocaleOrDefault())
	out := make([]string, 0, 8)

	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, " ")
}

// clipTitle truncates a generated title to the configured maximum rune length.
func (s *AnswerService) clipTitle(title string) string {
	max := s.TitleMaxLen
	if max <= 0 {
		max = 80
	}
	if utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}

// TitleLocaleOrDefault returns the configured locale for casing or English if unset.
func (s *AnswerService) TitleLocaleOrDefault() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}

// --- Title generation helpers ---

// Extract Unicode letters with optional trailing numbers (e.g., "q3results").
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Minimal English stop-words set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
}

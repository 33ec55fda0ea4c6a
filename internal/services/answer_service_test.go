package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-docqa-backend/internal/domain"
	"github.com/tbourn/go-docqa-backend/internal/search"
)

// ---------- test helpers ----------

func newAnswerDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:answersvc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// seedRegistry builds a registry holding one collection for sessionID with
// the given documents already ingested.
func seedRegistry(t *testing.T, sessionID string, docs map[string]string) *CollectionRegistry {
	t.Helper()
	reg := NewCollectionRegistry()
	col, err := reg.GetOrCreate(sessionID)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	for id, text := range docs {
		if _, err := col.AddDocument(id, text, nil); err != nil {
			t.Fatalf("seed doc %q: %v", id, err)
		}
	}
	return reg
}

// ---------- Ask() ----------

func TestAnswerService_Ask_EmptyQuestion(t *testing.T) {
	db := newAnswerDB(t, &domain.Session{}, &domain.Exchange{})
	s := &AnswerService{DB: db, Collections: NewCollectionRegistry()}
	_, err := s.Ask(context.Background(), "u1", "s1", "   ")
	if err == nil || err != ErrEmptyQuestion {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestAnswerService_Ask_TooLong(t *testing.T) {
	db := newAnswerDB(t, &domain.Session{}, &domain.Exchange{})
	s := &AnswerService{DB: db, Collections: NewCollectionRegistry(), MaxQuestionRunes: 3}
	_, err := s.Ask(context.Background(), "u1", "s1", "abcd")
	if err == nil || err != ErrTooLong {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

func TestAnswerService_Ask_SessionNotFound(t *testing.T) {
	// Migrate tables but do NOT insert the session
	db := newAnswerDB(t, &domain.Session{}, &domain.Exchange{})
	s := &AnswerService{DB: db, Collections: NewCollectionRegistry()}
	_, err := s.Ask(context.Background(), "uX", "s-missing", "hello")
	if err == nil || err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAnswerService_Ask_NoDocuments_FallbackReply(t *testing.T) {
	db := newAnswerDB(t, &domain.Session{}, &domain.Exchange{})
	sess := &domain.Session{ID: "s1", UserID: "u1", Title: "Custom"}
	if err := db.Create(sess).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}

	// Fresh registry: the session has no collection, so retrieval is empty.
	s := &AnswerService{DB: db, Collections: NewCollectionRegistry()}

	res, err := s.Ask(context.Background(), "u1", "s1", "anything at all")
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if res.Exchange == nil || res.Exchange.Answer != noAnswerReply {
		t.Fatalf("expected fallback reply, got %#v", res.Exchange)
	}
	if res.Exchange.Score != nil {
		t.Fatalf("expected nil score on fallback, got %v", *res.Exchange.Score)
	}
	if res.Confidence != 0 || len(res.Sources) != 0 {
		t.Fatalf("expected zero confidence and no sources, got conf=%v sources=%d", res.Confidence, len(res.Sources))
	}

	// The exchange must still be persisted, with a NULL score.
	var stored domain.Exchange
	if err := db.First(&stored, "id = ?", res.Exchange.ID).Error; err != nil {
		t.Fatalf("load exchange: %v", err)
	}
	if stored.Score != nil || stored.Answer != noAnswerReply {
		t.Fatalf("unexpected stored exchange: %#v", stored)
	}
}

func TestAnswerService_Ask_Success_AutoTitle_And_ClipAnswer(t *testing.T) {
	db := newAnswerDB(t, &domain.Session{}, &domain.Exchange{})
	// Session owned by u1 with placeholder title, triggers auto-title
	sess := &domain.Session{ID: "s1", UserID: "u1", Title: "New session"}
	if err := db.Create(sess).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}

	docText := "Solar power reduces electricity bills and provides clean energy for homes."
	reg := seedRegistry(t, "s1", map[string]string{"d1": docText})

	s := &AnswerService{
		DB:             db,
		Collections:    reg,
		MaxAnswerRunes: 20, // force clipping of the returned answer
		TitleMaxLen:    12, // clip generated title for assertion
		TitleLocale:    language.Und,
	}

	question := "What about solar power and electricity bills?"
	res, err := s.Ask(context.Background(), "u1", "s1", question)
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if res.Exchange == nil || res.Exchange.Question != question {
		t.Fatalf("expected persisted question, got %#v", res.Exchange)
	}
	if res.Exchange.Score == nil || *res.Exchange.Score <= 0 {
		t.Fatalf("expected positive score, got %v", res.Exchange.Score)
	}
	if res.Confidence <= 0 || res.Confidence > 100 {
		t.Fatalf("confidence out of range: %v", res.Confidence)
	}
	if len(res.Sources) != 1 || res.Sources[0].DocumentID != "d1" {
		t.Fatalf("expected one source from d1, got %#v", res.Sources)
	}
	if res.Sources[0].Snippet != docText {
		t.Fatalf("short chunk should be its own snippet, got %q", res.Sources[0].Snippet)
	}
	if utf8.RuneCountInString(res.Exchange.Answer) != 20 {
		t.Fatalf("expected clipped answer length 20, got %d (%q)",
			utf8.RuneCountInString(res.Exchange.Answer), res.Exchange.Answer)
	}

	// The stored row keeps the full answer.
	var stored domain.Exchange
	if err := db.First(&stored, "id = ?", res.Exchange.ID).Error; err != nil {
		t.Fatalf("load exchange: %v", err)
	}
	if stored.Answer != docText {
		t.Fatalf("expected full answer stored, got %q", stored.Answer)
	}

	// Title should be auto-generated & clipped
	var updated domain.Session
	if err := db.First(&updated, "id = ?", "s1").Error; err != nil {
		t.Fatalf("load updated session: %v", err)
	}
	if updated.Title == "" || updated.Title == "New session" {
		t.Fatalf("expected auto-generated title, got %q", updated.Title)
	}
	if utf8.RuneCountInString(updated.Title) > 12 {
		t.Fatalf("expected clipped title <=12 runes, got %q", updated.Title)
	}
}

func TestAnswerService_Ask_NoAutoTitle_CustomTitle(t *testing.T) {
	db := newAnswerDB(t, &domain.Session{}, &domain.Exchange{})

	sess := &domain.Session{ID: "sNoAuto", UserID: "u1", Title: "Already Good"}
	if err := db.Create(sess).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	reg := seedRegistry(t, "sNoAuto", map[string]string{
		"d1": "Wind turbines convert kinetic energy into electricity.",
	})

	s := &AnswerService{DB: db, Collections: reg}
	res, err := s.Ask(context.Background(), "u1", "sNoAuto", "wind turbines electricity")
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if res.Exchange == nil || res.Exchange.Score == nil {
		t.Fatalf("expected scored exchange, got %#v", res.Exchange)
	}
	var after domain.Session
	if err := db.First(&after, "id = ?", "sNoAuto").Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if after.Title != "Already Good" {
		t.Fatalf("title should remain unchanged; got %q", after.Title)
	}
}

// Ask(): title update failure must not fail the transaction.
func TestAnswerService_Ask_AutoTitle_UpdateFails_NoPanic(t *testing.T) {
	db := newAnswerDB(t, &domain.Session{}, &domain.Exchange{})

	sess := &domain.Session{ID: "sUpd", UserID: "u1", Title: "New session"}
	if err := db.Create(sess).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}

	// Force ONLY the session UPDATE to fail (transaction should still succeed).
	if err := db.Callback().Update().Before("gorm:update").Register("force_update_error_sessions", func(tx *gorm.DB) {
		if tx.Statement != nil && strings.Contains(tx.Statement.Table, "sessions") {
			tx.AddError(errors.New("forced-update-error"))
		}
	}); err != nil {
		t.Fatalf("register update callback: %v", err)
	}

	reg := seedRegistry(t, "sUpd", map[string]string{
		"d1": "Hydroelectric dams generate power from falling water.",
	})

	s := &AnswerService{DB: db, Collections: reg, TitleMaxLen: 20}

	res, err := s.Ask(context.Background(), "u1", "sUpd", "hydroelectric dams power")
	if err != nil {
		t.Fatalf("Ask returned error despite update failure: %v", err)
	}
	if res.Exchange == nil || res.Exchange.Score == nil {
		t.Fatalf("expected scored exchange, got %#v", res.Exchange)
	}

	// Title should remain the original placeholder since update errored.
	var after domain.Session
	if err := db.First(&after, "id = ?", "sUpd").Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if after.Title != "New session" {
		t.Fatalf("expected title unchanged due to update error, got %q", after.Title)
	}
}

// ---------- Search() ----------

func TestAnswerService_Search_EmptyQuery(t *testing.T) {
	db := newAnswerDB(t, &domain.Session{})
	s := &AnswerService{DB: db, Collections: NewCollectionRegistry()}
	_, err := s.Search(context.Background(), "u1", "s1", "  ", 3, -1)
	if err == nil || err != ErrEmptyQuestion {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestAnswerService_Search_SessionNotFound(t *testing.T) {
	db := newAnswerDB(t, &domain.Session{})
	s := &AnswerService{DB: db, Collections: NewCollectionRegistry()}
	_, err := s.Search(context.Background(), "u1", "nope", "query", 3, -1)
	if err == nil || err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAnswerService_Search_NoCollection_ReturnsEmpty(t *testing.T) {
	db := newAnswerDB(t, &domain.Session{})
	if err := db.Create(&domain.Session{ID: "s1", UserID: "u1", Title: "t"}).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	s := &AnswerService{DB: db, Collections: NewCollectionRegistry()}
	hits, err := s.Search(context.Background(), "u1", "s1", "query", 3, -1)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", hits)
	}
}

func TestAnswerService_Search_Success_WithBreakdown(t *testing.T) {
	db := newAnswerDB(t, &domain.Session{})
	if err := db.Create(&domain.Session{ID: "s1", UserID: "u1", Title: "t"}).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	reg := seedRegistry(t, "s1", map[string]string{
		"d1": "Solar power is the conversion of sunlight into electricity.",
		"d2": "Coal plants burn fossil fuel to heat water into steam.",
	})

	s := &AnswerService{DB: db, Collections: reg}
	hits, err := s.Search(context.Background(), "u1", "s1", "solar power", 5, -1)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected hits for exact phrase query")
	}
	top := hits[0]
	if top.DocumentID != "d1" {
		t.Fatalf("expected d1 on top, got %q", top.DocumentID)
	}
	if top.Breakdown.Phrase <= 0 {
		t.Fatalf("expected phrase signal for contiguous match, got %#v", top.Breakdown)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatalf("hits not sorted by score: %v then %v", hits[i-1].Score, hits[i].Score)
		}
	}
}

// ---------- ListPage() ----------

func TestAnswerService_ListPage_DBErrorOnSessionCount(t *testing.T) {
	// DB without Session table -> first Count() errors
	db := newAnswerDB(t /* no migrate */)
	s := &AnswerService{DB: db, Collections: NewCollectionRegistry()}
	_, _, err := s.ListPage(context.Background(), "s1", 1, 10)
	if err == nil {
		t.Fatalf("expected error due to missing sessions table")
	}
}

func TestAnswerService_ListPage_CountExchangesError(t *testing.T) {
	// Migrate Session only -> CountExchanges (on exchanges) errors
	db := newAnswerDB(t, &domain.Session{})
	if err := db.Create(&domain.Session{ID: "s1", UserID: "u1", Title: "t"}).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	s := &AnswerService{DB: db, Collections: NewCollectionRegistry()}
	_, _, err := s.ListPage(context.Background(), "s1", 1, 10)
	if err == nil {
		t.Fatalf("expected error due to missing exchanges table")
	}
}

func TestAnswerService_ListPage_TotalZero_And_Success(t *testing.T) {
	db := newAnswerDB(t, &domain.Session{}, &domain.Exchange{})
	if err := db.Create(&domain.Session{ID: "s2", UserID: "u1", Title: "t"}).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}

	s := &AnswerService{DB: db, Collections: NewCollectionRegistry()}

	// total==0 branch
	items, total, err := s.ListPage(context.Background(), "s2", 0, 0) // defaults page=1,size=20
	if err != nil {
		t.Fatalf("ListPage error: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Fatalf("expected empty, got total=%d len=%d", total, len(items))
	}

	// Add 3 exchanges and test success + pagination
	now := time.Now().UTC()
	score := 0.4
	exs := []domain.Exchange{
		{ID: "e1", SessionID: "s2", Question: "q1", Answer: "a1", CreatedAt: now},
		{ID: "e2", SessionID: "s2", Question: "q2", Answer: "a2", Score: &score, CreatedAt: now.Add(time.Second)},
		{ID: "e3", SessionID: "s2", Question: "q3", Answer: "a3", CreatedAt: now.Add(2 * time.Second)},
	}
	for _, e := range exs {
		if err := db.Create(&e).Error; err != nil {
			t.Fatalf("seed exchange: %v", err)
		}
	}

	pageItems, total2, err := s.ListPage(context.Background(), "s2", -5, -7) // defaults to 1/20
	if err != nil {
		t.Fatalf("ListPage success error: %v", err)
	}
	if total2 != 3 || len(pageItems) != 3 {
		t.Fatalf("expected total=3 and full page, got total=%d len=%d", total2, len(pageItems))
	}
	if pageItems[0].ID != "e1" || pageItems[2].ID != "e3" {
		t.Fatalf("expected chronological order, got %q..%q", pageItems[0].ID, pageItems[2].ID)
	}
}

func TestAnswerService_ListPage_SessionNotFound(t *testing.T) {
	db := newAnswerDB(t, &domain.Session{}, &domain.Exchange{})
	s := &AnswerService{DB: db, Collections: NewCollectionRegistry()}
	_, _, err := s.ListPage(context.Background(), "nope", 1, 10)
	if err == nil || err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

// ---------- buildAnswer() ----------

func TestBuildAnswer_NoHits_Fallback(t *testing.T) {
	answer, score, conf, sources := buildAnswer(nil)
	if answer != noAnswerReply || score != nil || conf != 0 || sources != nil {
		t.Fatalf("unexpected fallback: %q %v %v %v", answer, score, conf, sources)
	}
}

func TestBuildAnswer_ConfidenceCappedAt100(t *testing.T) {
	hits := []search.ScoredChunk{
		{DocumentID: "d1", ChunkID: "d1_chunk_0", Text: "exact answer", Score: 1.8},
	}
	_, score, conf, _ := buildAnswer(hits)
	if score == nil || *score != 1.8 {
		t.Fatalf("expected raw score 1.8, got %v", score)
	}
	if conf != 100 {
		t.Fatalf("expected capped confidence 100, got %v", conf)
	}
}

func TestBuildAnswer_SourcesCappedAtThree(t *testing.T) {
	hits := make([]search.ScoredChunk, 5)
	for i := range hits {
		hits[i] = search.ScoredChunk{
			DocumentID: fmt.Sprintf("d%d", i),
			ChunkID:    fmt.Sprintf("d%d_chunk_0", i),
			Text:       "some text",
			Score:      0.5 - float64(i)*0.01,
		}
	}
	_, _, _, sources := buildAnswer(hits)
	if len(sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(sources))
	}
	if sources[0].DocumentID != "d0" || sources[2].DocumentID != "d2" {
		t.Fatalf("sources should preserve hit order, got %#v", sources)
	}
}

func TestBuildAnswer_SnippetTruncatedWithEllipsis(t *testing.T) {
	long := strings.Repeat("α", 250)
	hits := []search.ScoredChunk{
		{DocumentID: "d1", ChunkID: "d1_chunk_0", Text: long, Score: 0.3},
	}
	_, _, _, sources := buildAnswer(hits)
	sn := sources[0].Snippet
	if !strings.HasSuffix(sn, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", sn[len(sn)-9:])
	}
	if utf8.RuneCountInString(sn) != snippetMaxRunes+3 {
		t.Fatalf("expected %d runes, got %d", snippetMaxRunes+3, utf8.RuneCountInString(sn))
	}
}

func TestClipSnippet_ShortPassthrough(t *testing.T) {
	if got := clipSnippet("short", 200); got != "short" {
		t.Fatalf("passthrough failed: %q", got)
	}
	if got := clipSnippet("anything", 0); got != "anything" {
		t.Fatalf("max<=0 should be passthrough: %q", got)
	}
}

// ---------- title helpers ----------

func TestTitleHelpers(t *testing.T) {
	s := &AnswerService{}

	// shouldAutoTitle
	if !s.shouldAutoTitle("") || !s.shouldAutoTitle("  new session  ") || !s.shouldAutoTitle("Untitled") {
		t.Fatalf("shouldAutoTitle failed for placeholders")
	}
	if s.shouldAutoTitle("My Session") {
		t.Fatalf("shouldAutoTitle true for custom title")
	}

	// generateTitleFromQuestion
	title := s.generateTitleFromQuestion("the state of renewables in europe 2025 and beyond")
	if title == "" || strings.Contains(strings.ToLower(title), "the") {
		t.Fatalf("generateTitleFromQuestion should drop stop words, got %q", title)
	}

	// clipTitle with runes
	s.TitleMaxLen = 5
	if got := s.clipTitle("☃☃☃☃☃☃"); utf8.RuneCountInString(got) != 5 {
		t.Fatalf("clipTitle expected 5 runes, got %d (%q)", utf8.RuneCountInString(got), got)
	}
	s.TitleMaxLen = 0
	if got := s.clipTitle("short"); got != "short" {
		t.Fatalf("clipTitle passthrough failed")
	}

	// locale
	if s.TitleLocaleOrDefault() != language.English {
		t.Fatalf("default locale should be English")
	}
	s.TitleLocale = language.Greek
	if s.TitleLocaleOrDefault() != language.Greek {
		t.Fatalf("custom locale not respected")
	}
}

func TestGenerateTitleFromQuestion_AllStopwords_Empty(t *testing.T) {
	s := &AnswerService{}
	if got := s.generateTitleFromQuestion("the and of to in"); got != "" {
		t.Fatalf("expected empty title when all words are stopwords, got %q", got)
	}
}

func TestGenerateTitleFromQuestion_EmptyAndNoTokens(t *testing.T) {
	s := &AnswerService{}

	if got := s.generateTitleFromQuestion("   "); got != "" {
		t.Fatalf("expected empty title for whitespace question, got %q", got)
	}
	if got := s.generateTitleFromQuestion("!!! --- ###"); got != "" {
		t.Fatalf("expected empty title for no-token question, got %q", got)
	}
}

// ---------- collapseWhitespaceLines ----------

func TestCollapseWhitespaceLines(t *testing.T) {
	ws := " a \r\n \n b \n\n c "
	if got := collapseWhitespaceLines(ws); got != "a\nb\nc" {
		t.Fatalf("collapseWhitespaceLines failed: %q", got)
	}
	if got := collapseWhitespaceLines(""); got != "" {
		t.Fatalf("expected empty output for empty input, got %q", got)
	}
}

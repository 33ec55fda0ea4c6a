// Question HTTP handlers.
//
// This file exposes REST endpoints for question answering:
//   - POST /sessions/{id}/questions   (ask a question, persist the exchange)
//   - GET  /sessions/{id}/questions   (list paginated exchanges for a session)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (including newline and length constraints)
//   - delegate to application services (AnswerService)
//   - implement conditional responses (ETag) and idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, session, key), the handler returns that recorded
// exchange and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/domain"
	"github.com/tbourn/go-docqa-backend/internal/repo"
	"github.com/tbourn/go-docqa-backend/internal/services"
	"github.com/tbourn/go-docqa-backend/internal/utils"
)

//
// DTOs
//

// AskRequest is the JSON payload for asking a question.
//
// Question is normalized by the handler (line endings and excessive blank
// lines) before being passed to the service layer. The service also enforces
// a maximum rune count, which can be configured in AnswerService.
type AskRequest struct {
	// Question is the user's question. It must be non-empty.
	Question string `json:"question" binding:"required,min=1" example:"What percentage of US households adopted solar panels in 2024?"`
}

// PostQuestionResponse is the JSON envelope for an answered question.
type PostQuestionResponse struct {
	// Exchange is the persisted question/answer pair.
	Exchange *domain.Exchange `json:"exchange"`
	// Confidence is the answer confidence as a percentage, capped at 100.
	Confidence float64 `json:"confidence"`
	// Sources lists the supporting chunks behind the answer (absent on replay).
	Sources []services.Source `json:"sources,omitempty"`
}

// ListExchangesResponse contains a page of exchanges and pagination metadata.
type ListExchangesResponse struct {
	Exchanges  []domain.Exchange `json:"exchanges"`
	Pagination Pagination        `json:"pagination"`
}

//
// Helpers
//

// clampQAPagination parses page/page_size from query parameters, applies sane
// defaults and caps, and returns the validated (page, pageSize).
func clampQAPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeQuestion normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeQuestion(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxQuestionRunes inspects the concrete AnswerService for a
// configured question-length limit. If unavailable, it returns a conservative
// fallback.
func discoverMaxQuestionRunes(ansSvc AnswerService) int {
	const fallback = 2000
	if as, ok := ansSvc.(*services.AnswerService); ok {
		if as.MaxQuestionRunes > 0 {
			return as.MaxQuestionRunes
		}
	}
	return fallback
}

// replayConfidence recomputes the confidence percentage from a stored score.
func replayConfidence(score *float64) float64 {
	if score == nil {
		return 0
	}
	conf := *score * 100
	if conf > 100 {
		conf = 100
	}
	return conf
}

//
// Handlers
//

// PostQuestion godoc
// @ID          postQuestion
// @Summary     Ask a question
// @Description Answers the question from the session's uploaded documents and persists the exchange.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Questions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "User ID that owns the session"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    string  true  "Session ID (UUID)"              format(uuid)
// @Param       body             body    handlers.AskRequest  true  "Question payload"
//
// @Success     200  {object}  handlers.PostQuestionResponse  "Answer with confidence and sources"
// @Failure     400  {object}  handlers.ErrorResponse         "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse         "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse         "Internal error"
// @Router      /sessions/{id}/questions [post]
func (h *Handlers) PostQuestion(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	// Validate session id shape if you use UUIDs.
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	question := sanitizeQuestion(req.Question)
	maxRunes := discoverMaxQuestionRunes(h.ansSvc)
	if maxRunes > 0 && utf8.RuneCountInString(question) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("question too long: max %d runes", maxRunes))
		return
	}
	if question == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		return
	}

	currentUser := userID(c)

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middlewareGetIdempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.ansSvc.(*services.AnswerService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, currentUser, sessionID, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetExchange(svc.DB, rec.ExchangeID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					// Sources are response-only and not persisted, so a replay
					// carries the exchange and its recomputed confidence.
					ok(c, http.StatusOK, PostQuestionResponse{
						Exchange:   prev,
						Confidence: replayConfidence(prev.Score),
					})
					return
				}
			}
		}
	}

	// Normal processing (service has a second guard for length).
	res, err := h.ansSvc.Ask(ctx, currentUser, sessionID, question)
	if err != nil {
		switch err {
		case services.ErrSessionNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		case services.ErrTooLong:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("question too long: max %d runes", maxRunes))
		case services.ErrEmptyQuestion:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, err.Error())
		}
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, ok := h.ansSvc.(*services.AnswerService); ok && svc.DB != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, currentUser, sessionID, idemKey, res.Exchange.ID, http.StatusOK, ttl)
		}
	}

	ok(c, http.StatusOK, PostQuestionResponse{
		Exchange:   res.Exchange,
		Confidence: res.Confidence,
		Sources:    res.Sources,
	})
}

// ListExchanges godoc
// @ID          listExchanges
// @Summary     List exchanges in a session
// @Description Returns a paginated list of question/answer exchanges for the given session.
// @Tags        Questions
// @Produce     json
//
// @Param       id         path   string  true  "Session ID (UUID)"  format(uuid)
// @Param       page       query  int     false "Page number"        minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"     minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListExchangesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/questions [get]
func (h *Handlers) ListExchanges(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.ansSvc.(*services.AnswerService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.ExchangesStats(ctx, db, sessionID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"exchanges:%s:%d:%d"`, sessionID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, pageSize := clampQAPagination(c)

	items, total, err := h.ansSvc.ListPage(ctx, sessionID, page, pageSize)
	if err != nil {
		switch err {
		case services.ErrSessionNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListExchangesResponse{
		Exchanges: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// middlewareGetIdempotencyKey extracts an idempotency key if an upstream
// middleware has already validated/stashed it. The fallback behavior reads
// the "Idempotency-Key" header directly when no dedicated middleware exists.
func middlewareGetIdempotencyKey(c *gin.Context) (string, bool) {
	if v := strings.TrimSpace(c.GetHeader("Idempotency-Key")); v != "" {
		return v, true
	}
	return "", false
}

// Session HTTP handlers.
//
// This file exposes REST endpoints for session resources:
//   - POST   /sessions               (create)
//   - GET    /sessions               (list, paginated, ETag support)
//   - PUT    /sessions/{id}/title    (rename)
//   - DELETE /sessions/{id}          (delete; drops the in-memory corpus)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/domain"
	"github.com/tbourn/go-docqa-backend/internal/repo"
	"github.com/tbourn/go-docqa-backend/internal/search"
	"github.com/tbourn/go-docqa-backend/internal/services"
	"github.com/tbourn/go-docqa-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SessionService defines session lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SessionService interface {
	// Create starts a new session for userID with an optional title.
	Create(ctx context.Context, userID, title string) (*domain.Session, error)
	// List returns all sessions for a user (legacy, non-paginated).
	List(ctx context.Context, userID string) ([]domain.Session, error)
	// ListPage returns a page of sessions for a user and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Session, int64, error)
	// UpdateTitle renames a session that belongs to userID.
	UpdateTitle(ctx context.Context, userID, sessionID, title string) error
	// Delete removes a session that belongs to userID and drops its corpus.
	Delete(ctx context.Context, userID, sessionID string) error
}

// DocumentService defines the per-session document corpus operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type DocumentService interface {
	// AddDocument ingests text into the session's collection.
	AddDocument(ctx context.Context, userID, sessionID, docID, text string, metadata map[string]any) (search.AddResult, error)
	// ListDocuments returns summaries of the session's documents.
	ListDocuments(ctx context.Context, userID, sessionID string) ([]search.DocumentInfo, error)
	// ClearDocuments empties the session's collection and reports the count removed.
	ClearDocuments(ctx context.Context, userID, sessionID string) (int, error)
	// Status reports collection stats, configured limits and exchange count.
	Status(ctx context.Context, userID, sessionID string) (search.Stats, search.Limits, int64, error)
}

// AnswerService defines question answering and retrieval operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AnswerService interface {
	// Ask answers a question from the session's documents and persists the exchange.
	Ask(ctx context.Context, userID, sessionID, question string) (*services.AnswerResult, error)
	// Search runs a raw retrieval and returns scored chunks with breakdowns.
	Search(ctx context.Context, userID, sessionID, query string, maxResults int, threshold float64) ([]search.ScoredChunk, error)
	// ListPage returns a page of exchanges within a session and the total count.
	ListPage(ctx context.Context, sessionID string, page, pageSize int) ([]domain.Exchange, int64, error)
}

// FeedbackService defines operations to capture user feedback on exchanges.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type FeedbackService interface {
	// Leave submits a feedback value (-1 or 1) for exchangeID by userID.
	Leave(ctx context.Context, userID, exchangeID string, value int) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for sessions, documents, questions, and
// feedback. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	sessSvc SessionService
	docSvc  DocumentService
	ansSvc  AnswerService
	fbSvc   FeedbackService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(sessSvc SessionService, docSvc DocumentService, ansSvc AnswerService, fbSvc FeedbackService) *Handlers {
	return &Handlers{sessSvc: sessSvc, docSvc: docSvc, ansSvc: ansSvc, fbSvc: fbSvc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// CreateSessionRequest is the JSON payload for creating a session.
type CreateSessionRequest struct {
	// Title optionally sets the session title; a default is used when empty.
	Title string `json:"title" example:"Renewables market Q&A"`
}

// UpdateSessionTitleRequest is the JSON payload for updating a session title.
type UpdateSessionTitleRequest struct {
	// Title is the new session name (1-255 chars).
	Title string `json:"title" binding:"required,min=1,max=255" example:"Solar adoption US"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListSessionsResponse wraps a page of sessions and pagination information.
type ListSessionsResponse struct {
	Sessions   []domain.Session `json:"sessions"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
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

//
// Handlers
//

// CreateSession godoc
// @ID          createSession
// @Summary     Create a new session
// @Description Creates a Q&A session for the current user and returns the session resource.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.CreateSessionRequest  true  "Create session payload"
//
// @Success     201  {object}  domain.Session
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	title := strings.TrimSpace(req.Title)

	sess, err := h.sessSvc.Create(c.Request.Context(), userID(c), title)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, sess)
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List sessions (paginated)
// @Description Returns a page of the user's sessions. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Sessions
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSessionsResponse
// @Header      200  {string} ETag           "Weak ETag for current result"
// @Header      200  {string} Cache-Control  "Caching directives (if set)"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.sessSvc.(*services.SessionService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.SessionsStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"sessions:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	// Fetch page.
	items, total, err := h.sessSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListSessionsResponse{
		Sessions: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// UpdateSessionTitle godoc
// @ID          updateSessionTitle
// @Summary     Rename a session
// @Description Updates the title of a session owned by the current user.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"         example(user123)
// @Param       id         path    string  true  "Session ID (UUID)"             format(uuid) example(141add05-4415-4938-b5a1-17e0d3171aff)
// @Param       body       body    handlers.UpdateSessionTitleRequest  true  "New title"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/title [put]
func (h *Handlers) UpdateSessionTitle(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var req UpdateSessionTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required (1-255 chars)")
		return
	}

	if err := h.sessSvc.UpdateTitle(c.Request.Context(), userID(c), sessionID, req.Title); err != nil {
		switch err {
		case services.ErrSessionNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	noContent(c)
}

// DeleteSession godoc
// @ID          deleteSession
// @Summary     Delete a session
// @Description Deletes a session owned by the current user. The session's uploaded
// @Description documents live only in memory and are discarded with it.
// @Tags        Sessions
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Session ID (UUID)"      format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id} [delete]
func (h *Handlers) DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	if err := h.sessSvc.Delete(c.Request.Context(), userID(c), sessionID); err != nil {
		switch err {
		case services.ErrSessionNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	noContent(c)
}

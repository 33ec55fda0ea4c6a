// Document HTTP handlers.
//
// This file exposes REST endpoints for the per-session document corpus:
//   - POST   /sessions/{id}/documents  (upload text)
//   - GET    /sessions/{id}/documents  (list summaries)
//   - DELETE /sessions/{id}/documents  (clear the corpus)
//   - GET    /sessions/{id}/status     (stats, limits, exchange count)
//
// Documents are held in memory only; the database stores sessions and
// exchanges but never document text.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-docqa-backend/internal/search"
	"github.com/tbourn/go-docqa-backend/internal/services"
)

//
// DTOs
//

// AddDocumentRequest is the JSON payload for uploading a document.
type AddDocumentRequest struct {
	// ID optionally names the document; one is generated when empty.
	// Uploading with an existing id replaces that document.
	ID string `json:"id,omitempty" example:"doc_solar_report"`
	// Text is the document content to index.
	Text string `json:"text" binding:"required" example:"Solar adoption grew 23% in 2024..."`
	// Metadata is attached verbatim to the document and echoed on hits.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AddDocumentResponse reports the outcome of a document upload.
type AddDocumentResponse struct {
	DocumentID string `json:"document_id" example:"doc_20240102_150405_1"`
	ChunkCount int    `json:"chunk_count" example:"4"`
	CharCount  int    `json:"char_count" example:"1874"`
	// Truncated is true when the text exceeded the per-document character
	// ceiling and only the prefix was indexed.
	Truncated bool `json:"truncated"`
	// Replaced is true when an existing document with the same id was overwritten.
	Replaced bool `json:"replaced"`
}

// DocumentSummary describes one indexed document without its text.
type DocumentSummary struct {
	ID         string         `json:"id"`
	CharCount  int            `json:"char_count"`
	ChunkCount int            `json:"chunk_count"`
	Truncated  bool           `json:"truncated"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ListDocumentsResponse wraps the session's document summaries.
type ListDocumentsResponse struct {
	Documents []DocumentSummary `json:"documents"`
	Count     int               `json:"count"`
}

// ClearDocumentsResponse reports how many documents were removed.
type ClearDocumentsResponse struct {
	Removed int `json:"removed"`
}

// StatusLimits mirrors the collection's configured ceilings for API clients.
type StatusLimits struct {
	ChunkSize            int     `json:"chunk_size"`
	ChunkOverlap         int     `json:"chunk_overlap"`
	MaxDocuments         int     `json:"max_documents"`
	MaxChunksPerDocument int     `json:"max_chunks_per_document"`
	MaxTotalChunks       int     `json:"max_total_chunks"`
	MaxDocumentChars     int     `json:"max_document_chars"`
	MaxIndexedTerms      int     `json:"max_indexed_terms"`
	MinTokenLength       int     `json:"min_token_length"`
	DefaultThreshold     float64 `json:"default_threshold"`
}

// SessionStatusResponse reports the live state of a session's corpus.
type SessionStatusResponse struct {
	SessionID string       `json:"session_id"`
	Documents int          `json:"documents"`
	Chunks    int          `json:"chunks"`
	Terms     int          `json:"terms"`
	Exchanges int64        `json:"exchanges"`
	Limits    StatusLimits `json:"limits"`
}

//
// Handlers
//

// AddDocument godoc
// @ID          addDocument
// @Summary     Upload a document
// @Description Chunks and indexes text into the session's in-memory corpus. An
// @Description explicit id replaces any existing document with that id.
// @Tags        Documents
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Session ID (UUID)"      format(uuid)
// @Param       body       body    handlers.AddDocumentRequest  true  "Document payload"
//
// @Success     201  {object} handlers.AddDocumentResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     409  {object} handlers.ErrorResponse "Corpus capacity reached"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/documents [post]
func (h *Handlers) AddDocument(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var req AddDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}

	res, err := h.docSvc.AddDocument(c.Request.Context(), userID(c), sessionID, strings.TrimSpace(req.ID), req.Text, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		case errors.Is(err, search.ErrEmptyDocument), errors.Is(err, search.ErrEmptyDocumentID):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, search.ErrTooManyDocuments), errors.Is(err, search.ErrTooManyChunks):
			fail(c, http.StatusConflict, ErrCodeCapacityExceeded, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusCreated, AddDocumentResponse{
		DocumentID: res.DocumentID,
		ChunkCount: res.ChunkCount,
		CharCount:  res.CharCount,
		Truncated:  res.Truncated,
		Replaced:   res.Replaced,
	})
}

// ListDocuments godoc
// @ID          listDocuments
// @Summary     List documents
// @Description Returns summaries of the session's indexed documents in upload order.
// @Tags        Documents
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Session ID (UUID)"      format(uuid)
//
// @Success     200  {object} handlers.ListDocumentsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/documents [get]
func (h *Handlers) ListDocuments(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	docs, err := h.docSvc.ListDocuments(c.Request.Context(), userID(c), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	out := make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, DocumentSummary{
			ID:         d.ID,
			CharCount:  d.CharCount,
			ChunkCount: d.ChunkCount,
			Truncated:  d.Truncated,
			Metadata:   d.Metadata,
		})
	}
	ok(c, http.StatusOK, ListDocumentsResponse{Documents: out, Count: len(out)})
}

// ClearDocuments godoc
// @ID          clearDocuments
// @Summary     Clear documents
// @Description Removes every document from the session's corpus. Past exchanges
// @Description are kept; only the in-memory index is emptied.
// @Tags        Documents
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Session ID (UUID)"      format(uuid)
//
// @Success     200  {object} handlers.ClearDocumentsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/documents [delete]
func (h *Handlers) ClearDocuments(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	removed, err := h.docSvc.ClearDocuments(c.Request.Context(), userID(c), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, ClearDocumentsResponse{Removed: removed})
}

// SessionStatus godoc
// @ID          sessionStatus
// @Summary     Session status
// @Description Reports corpus size (documents, chunks, distinct terms), the
// @Description configured limits, and how many exchanges the session holds.
// @Tags        Documents
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Session ID (UUID)"      format(uuid)
//
// @Success     200  {object} handlers.SessionStatusResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/status [get]
func (h *Handlers) SessionStatus(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	stats, limits, exchanges, err := h.docSvc.Status(c.Request.Context(), userID(c), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, SessionStatusResponse{
		SessionID: sessionID,
		Documents: stats.Documents,
		Chunks:    stats.Chunks,
		Terms:     stats.Terms,
		Exchanges: exchanges,
		Limits: StatusLimits{
			ChunkSize:            limits.ChunkSize,
			ChunkOverlap:         limits.ChunkOverlap,
			MaxDocuments:         limits.MaxDocuments,
			MaxChunksPerDocument: limits.MaxChunksPerDocument,
			MaxTotalChunks:       limits.MaxTotalChunks,
			MaxDocumentChars:     limits.MaxDocumentChars,
			MaxIndexedTerms:      limits.MaxIndexedTerms,
			MinTokenLength:       limits.MinTokenLength,
			DefaultThreshold:     limits.DefaultThreshold,
		},
	})
}

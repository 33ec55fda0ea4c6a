// Search HTTP handlers.
//
// This file exposes the raw retrieval endpoint:
//   - POST /sessions/{id}/search   (scored chunks with per-signal breakdowns)
//
// Unlike POST /sessions/{id}/questions, nothing is persisted: the endpoint is
// a window into the ranking itself, useful for tuning thresholds and for
// explaining why a particular chunk won.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-docqa-backend/internal/search"
	"github.com/tbourn/go-docqa-backend/internal/services"
)

//
// DTOs
//

// SearchRequest is the JSON payload for a raw retrieval query.
type SearchRequest struct {
	// Query is the search text. It must be non-empty.
	Query string `json:"query" binding:"required,min=1" example:"solar panel adoption"`
	// MaxResults caps the number of hits (server-side ceiling applies;
	// zero or negative selects the default).
	MaxResults int `json:"max_results,omitempty" example:"3"`
	// Threshold overrides the minimum score. Omitted selects the collection
	// default; an explicit 0 keeps every matching chunk.
	Threshold *float64 `json:"threshold,omitempty" example:"0.05"`
}

// ScoreBreakdown itemizes the signal contributions behind one hit's score.
type ScoreBreakdown struct {
	Phrase        float64 `json:"phrase"`
	Bigram        float64 `json:"bigram"`
	WordOverlap   float64 `json:"word_overlap"`
	TokenPresence float64 `json:"token_presence"`
	Proximity     float64 `json:"proximity"`
	Jaccard       float64 `json:"jaccard"`
}

// SearchHit is one scored chunk returned to API clients.
type SearchHit struct {
	DocumentID string         `json:"document_id"`
	ChunkID    string         `json:"chunk_id"`
	ChunkIndex int            `json:"chunk_index"`
	Start      int            `json:"start"`
	End        int            `json:"end"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchResponse wraps the hits for a retrieval query.
type SearchResponse struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
	Count   int         `json:"count"`
}

// toSearchHits converts engine results into their API representation.
func toSearchHits(hits []search.ScoredChunk) []SearchHit {
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchHit{
			DocumentID: h.DocumentID,
			ChunkID:    h.ChunkID,
			ChunkIndex: h.ChunkIndex,
			Start:      h.Start,
			End:        h.End,
			Text:       h.Text,
			Score:      h.Score,
			Breakdown: ScoreBreakdown{
				Phrase:        h.Breakdown.Phrase,
				Bigram:        h.Breakdown.Bigram,
				WordOverlap:   h.Breakdown.WordOverlap,
				TokenPresence: h.Breakdown.TokenPresence,
				Proximity:     h.Breakdown.Proximity,
				Jaccard:       h.Breakdown.Jaccard,
			},
			Metadata: h.Metadata,
		})
	}
	return out
}

//
// Handlers
//

// SearchDocuments godoc
// @ID          searchDocuments
// @Summary     Search documents
// @Description Runs a raw retrieval over the session's corpus and returns scored
// @Description chunks with per-signal breakdowns. Nothing is persisted.
// @Tags        Search
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Session ID (UUID)"      format(uuid)
// @Param       body       body    handlers.SearchRequest  true  "Search payload"
//
// @Success     200  {object} handlers.SearchResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/search [post]
func (h *Handlers) SearchDocuments(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query required")
		return
	}

	// A missing threshold selects the collection default; the engine treats
	// any negative value that way.
	threshold := -1.0
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	hits, err := h.ansSvc.Search(c.Request.Context(), userID(c), sessionID, req.Query, req.MaxResults, threshold)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyQuestion):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query required")
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSearchFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, SearchResponse{
		Query:   req.Query,
		Results: toSearchHits(hits),
		Count:   len(hits),
	})
}

// Package services – DocumentService
//
// This file implements the DocumentService, which manages the per-session
// document corpus. Documents live exclusively in the session's in-memory
// collection; nothing about their content is persisted to the database.
// The service verifies session ownership, assigns timestamp-based document
// ids when the caller does not supply one, and surfaces collection capacity
// errors unchanged so handlers can map them to HTTP results.
//
// Error semantics
//   - ErrSessionNotFound: the session does not exist or belongs to another user.
//   - search.ErrEmptyDocument, search.ErrTooManyDocuments, search.ErrTooManyChunks:
//     returned verbatim from the collection.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-docqa-backend/internal/repo"
	"github.com/tbourn/go-docqa-backend/internal/search"
)

// DocumentService ingests, lists and clears documents for a session's
// in-memory collection.
type DocumentService struct {
	// DB is the GORM handle used for the session ownership check.
	DB *gorm.DB
	// Collections maps session ids to their document collections.
	Collections *CollectionRegistry

	// Now returns the current time; overridable in tests for deterministic
	// generated document ids. Defaults to time.Now when nil.
	Now func() time.Time
}

// NewDocumentService constructs a DocumentService bound to db and reg.
func NewDocumentService(db *gorm.DB, reg *CollectionRegistry) *DocumentService {
	return &DocumentService{DB: db, Collections: reg, Now: time.Now}
}

// AddDocument ingests text into the session's collection. When docID is
// blank a timestamp-based id is generated. The returned AddResult carries
// the effective document id, chunk and character counts, and whether the
// text was truncated to the per-document ceiling.
func (s *DocumentService) AddDocument(ctx context.Context, userID, sessionID, docID, text string, metadata map[string]any) (search.AddResult, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "AddDocument",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if err := s.checkSession(ctx, userID, sessionID); err != nil {
		return search.AddResult{}, err
	}

	col, err := s.Collections.GetOrCreate(sessionID)
	if err != nil {
		return search.AddResult{}, err
	}

	if docID == "" {
		docID = s.generateDocID(col)
	}
	res, err := col.AddDocument(docID, text, metadata)
	if err != nil {
		return search.AddResult{}, err
	}
	span.SetAttributes(
		attribute.String("document.id", res.DocumentID),
		attribute.Int("document.chunks", res.ChunkCount),
	)
	return res, nil
}

// ListDocuments returns summaries of every document in the session's
// collection, in insertion order. A session with no collection yet has
// an empty corpus.
func (s *DocumentService) ListDocuments(ctx context.Context, userID, sessionID string) ([]search.DocumentInfo, error) {
	if err := s.checkSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	col := s.Collections.Get(sessionID)
	if col == nil {
		return []search.DocumentInfo{}, nil
	}
	return col.ListDocuments(), nil
}

// ClearDocuments removes every document, chunk and index entry from the
// session's collection. It reports how many documents were removed.
func (s *DocumentService) ClearDocuments(ctx context.Context, userID, sessionID string) (int, error) {
	if err := s.checkSession(ctx, userID, sessionID); err != nil {
		return 0, err
	}
	col := s.Collections.Get(sessionID)
	if col == nil {
		return 0, nil
	}
	n := col.Stats().Documents
	col.Clear()
	return n, nil
}

// Status reports the collection's current size, its configured limits and
// the number of persisted exchanges for the session.
func (s *DocumentService) Status(ctx context.Context, userID, sessionID string) (search.Stats, search.Limits, int64, error) {
	if err := s.checkSession(ctx, userID, sessionID); err != nil {
		return search.Stats{}, search.Limits{}, 0, err
	}
	exchanges, err := repo.CountExchanges(s.DB.WithContext(ctx), sessionID)
	if err != nil {
		return search.Stats{}, search.Limits{}, 0, err
	}

	col, err := s.Collections.GetOrCreate(sessionID)
	if err != nil {
		return search.Stats{}, search.Limits{}, 0, err
	}
	return col.Stats(), col.Limits(), exchanges, nil
}

// checkSession verifies the session exists and belongs to userID.
func (s *DocumentService) checkSession(ctx context.Context, userID, sessionID string) error {
	if _, err := repo.GetSession(ctx, s.DB, sessionID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// generateDocID builds a timestamp-based id, suffixed with a counter so ids
// stay unique when several documents arrive in the same second.
func (s *DocumentService) generateDocID(col *search.Collection) string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	stamp := now().UTC().Format("20060102_150405")

	existing := make(map[string]struct{})
	for _, d := range col.ListDocuments() {
		existing[d.ID] = struct{}{}
	}
	for n := 1; ; n++ {
		id := fmt.Sprintf("doc_%s_%d", stamp, n)
		if _, taken := existing[id]; !taken {
			return id
		}
	}
}
